package cadence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func observeAt(e *Estimator, minutes ...int) {
	for i, m := range minutes {
		e.Observe(base.Add(time.Duration(m)*time.Minute), string(rune('a'+i)))
	}
}

func TestEstimateDefaultsBelowThreeObservations(t *testing.T) {
	e := NewEstimator()
	require.Equal(t, 5, e.EstimateIntervalMinutes())

	observeAt(e, 0)
	require.Equal(t, 5, e.EstimateIntervalMinutes())

	observeAt(e, 30)
	require.Equal(t, 5, e.EstimateIntervalMinutes())
}

func TestEstimateInterval(t *testing.T) {
	cases := []struct {
		name    string
		minutes []int
		want    int
	}{
		{"regular", []int{0, 5, 10}, 5},
		{"irregular", []int{0, 7, 14}, 5},
		{"ten", []int{0, 8, 16}, 10},
		{"tie rounds to even", []int{0, 12, 25}, 10},
		{"only last three count", []int{0, 1, 100, 115, 130}, 15},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := NewEstimator()
			observeAt(e, tc.minutes...)
			require.Equal(t, tc.want, e.EstimateIntervalMinutes())
		})
	}
}

func TestHistoryRetainsThree(t *testing.T) {
	e := NewEstimator()
	observeAt(e, 0, 5, 10, 15, 20)

	entries := e.History()
	require.Len(t, entries, HistorySize)
	require.Equal(t, base.Add(10*time.Minute), entries[0].At)
	require.Equal(t, base.Add(20*time.Minute), entries[2].At)
}

func TestDriftedAndUnchanged(t *testing.T) {
	e := NewEstimator()
	observeAt(e, 0, 10, 20)
	require.True(t, e.Drifted(5*time.Minute))
	require.False(t, e.Drifted(10*time.Minute))
	require.True(t, e.Drifted(10*time.Minute+30*time.Second))
	require.True(t, e.Drifted(10*time.Minute-time.Second))
	require.False(t, e.Unchanged())

	e.Observe(base.Add(30*time.Minute), "same")
	e.Observe(base.Add(35*time.Minute), "same")
	require.True(t, e.Unchanged())
}

func TestAlignTimestamp(t *testing.T) {
	at := func(h, m, s int) time.Time { return time.Date(2025, 3, 14, h, m, s, 123, time.UTC) }

	require.Equal(t, time.Date(2025, 3, 14, 9, 55, 0, 0, time.UTC), AlignTimestamp(at(9, 59, 42), 5))
	require.Equal(t, time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC), AlignTimestamp(at(9, 0, 1), 5))
	require.Equal(t, time.Date(2025, 3, 14, 9, 45, 0, 0, time.UTC), AlignTimestamp(at(9, 59, 0), 15))
	require.Equal(t, time.Date(2025, 3, 14, 9, 10, 0, 0, time.UTC), AlignTimestamp(at(9, 13, 0), 0))
}

func TestAlignTimestampIdempotent(t *testing.T) {
	for _, interval := range []int{1, 2, 3, 4, 5, 6, 10, 12, 15, 20, 30, 60} {
		for minute := 0; minute < 60; minute++ {
			once := AlignTimestamp(time.Date(2025, 1, 1, 23, minute, 59, 0, time.UTC), interval)
			require.Equal(t, once, AlignTimestamp(once, interval), "interval %d minute %d", interval, minute)
		}
	}
}

func TestAlignTimestampNeverMinuteSixty(t *testing.T) {
	for interval := -5; interval <= 120; interval++ {
		for minute := 0; minute < 60; minute++ {
			got := AlignTimestamp(time.Date(2025, 1, 1, 23, minute, 30, 0, time.UTC), interval)
			require.Less(t, got.Minute(), 60)
			require.Zero(t, got.Second())
			require.Zero(t, got.Nanosecond())
		}
	}
}

func TestFormatTimestamp(t *testing.T) {
	require.Equal(t, "14 Mar 2025, 09:05", FormatTimestamp(time.Date(2025, 3, 14, 9, 5, 0, 0, time.UTC)))
}
