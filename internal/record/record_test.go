package record

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var captured = time.Date(2025, 3, 14, 9, 58, 31, 0, time.UTC)

func newTestBuilder(opts Options) *Builder {
	return NewBuilder(opts, zerolog.Nop())
}

func TestBuildWithMarketCap(t *testing.T) {
	b := newTestBuilder(Options{})
	rec, err := b.Build(Observation{CapturedAt: captured, RawText: "BTC -$1.2B $500M $0 Market Cap $2.1T"}, 5)
	require.NoError(t, err)

	require.Equal(t, []string{"-1200000000.0", "500000000.0", "0.0"}, rec.Values)
	require.Equal(t, "$2.1T", rec.MarketCap)
	require.Equal(t, "14 Mar 2025, 09:58", rec.Timestamp)
	require.Equal(t, []string{"14 Mar 2025, 09:58", "-1200000000.0", "500000000.0", "0.0", "$2.1T"}, rec.Row())
}

func TestBuildKeepsOrderAcrossLines(t *testing.T) {
	b := newTestBuilder(Options{})
	raw := "1\nBTC\n$10K\n-$20K\n$30M\n-$4B\n$5"
	rec, err := b.Build(Observation{CapturedAt: captured, RawText: raw}, 5)
	require.NoError(t, err)
	require.Equal(t, []string{"10000.0", "-20000.0", "30000000.0", "-4000000000.0", "5.0"}, rec.Values)
	require.False(t, rec.HasMarketCap())
	require.Len(t, rec.Row(), 6)
}

func TestBuildFallsBackToRawToken(t *testing.T) {
	b := newTestBuilder(Options{})
	rec, err := b.Build(Observation{CapturedAt: captured, RawText: "BTC $1.5M $N/A -$2K"}, 5)
	require.NoError(t, err)
	require.Equal(t, []string{"1500000.0", "$N/A", "-2000.0"}, rec.Values)
}

func TestBuildKeepsOutOfRangeExponentRaw(t *testing.T) {
	b := newTestBuilder(Options{})
	rec, err := b.Build(Observation{CapturedAt: captured, RawText: "BTC $1e200000000B $2K"}, 5)
	require.NoError(t, err)
	require.Equal(t, []string{"$1e200000000B", "2000.0"}, rec.Values)
	require.Equal(t, 1, rec.Fallbacks)
}

func TestBuildNoValidValues(t *testing.T) {
	b := newTestBuilder(Options{})
	_, err := b.Build(Observation{CapturedAt: captured, RawText: "BTC Bitcoin 12.5% Market Cap"}, 5)
	require.True(t, errors.Is(err, ErrNoValidValues))

	_, err = b.Build(Observation{CapturedAt: captured, RawText: "   "}, 5)
	require.True(t, errors.Is(err, ErrNoValidValues))
}

func TestBuildMarketMarkerWithoutAmount(t *testing.T) {
	b := newTestBuilder(Options{})
	rec, err := b.Build(Observation{CapturedAt: captured, RawText: "BTC $1K Market Cap"}, 5)
	require.NoError(t, err)
	require.Equal(t, []string{"1000.0"}, rec.Values)
	require.Empty(t, rec.MarketCap)
}

func TestBuildAlignsTimestamp(t *testing.T) {
	b := newTestBuilder(Options{AlignTimestamps: true})
	rec, err := b.Build(Observation{CapturedAt: captured, RawText: "BTC $1K"}, 15)
	require.NoError(t, err)
	require.Equal(t, "14 Mar 2025, 09:45", rec.Timestamp)
	require.Equal(t, captured, rec.CapturedAt)
}

func TestBuildCustomMarker(t *testing.T) {
	b := newTestBuilder(Options{MarketMarker: "MCap"})
	rec, err := b.Build(Observation{CapturedAt: captured, RawText: "BTC $1K MCap = $3T"}, 5)
	require.NoError(t, err)
	require.Equal(t, "$3T", rec.MarketCap)
	require.Equal(t, []string{"1000.0"}, rec.Values)
}
