package cadence

import (
	"math"
	"sync"
	"time"
)

// DefaultIntervalMinutes is assumed until enough observations exist.
const DefaultIntervalMinutes = 5

// granularity is the step the upstream source refreshes on.
const granularity = 5

// Estimator infers the upstream refresh interval from the last observations.
type Estimator struct {
	mu      sync.Mutex
	history History
}

// NewEstimator returns an estimator with an empty history.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Observe records a payload captured at t.
func (e *Estimator) Observe(t time.Time, payload string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history.Push(Entry{At: t, Payload: payload})
}

// EstimateIntervalMinutes averages the two most recent inter-arrival gaps and
// rounds to the nearest multiple of five minutes, ties to even.
func (e *Estimator) EstimateIntervalMinutes() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.history.Len() < HistorySize {
		return DefaultIntervalMinutes
	}

	entries := e.history.entries
	n := len(entries)
	d1 := entries[n-2].At.Sub(entries[n-3].At).Minutes()
	d2 := entries[n-1].At.Sub(entries[n-2].At).Minutes()
	avg := (d1 + d2) / 2

	return int(math.RoundToEven(avg/granularity)) * granularity
}

// Drifted reports whether the estimated cadence disagrees with the configured one.
// Intervals that are not whole minutes always drift from the estimate.
func (e *Estimator) Drifted(configured time.Duration) bool {
	estimated := time.Duration(e.EstimateIntervalMinutes()) * time.Minute
	return estimated != configured
}

// Unchanged reports whether the last two payloads are identical, i.e. the
// latest read most likely happened before the source refreshed.
func (e *Estimator) Unchanged() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := e.history.Len()
	if n < 2 {
		return false
	}
	return e.history.entries[n-1].Payload == e.history.entries[n-2].Payload
}

// History returns a snapshot of the retained observations.
func (e *Estimator) History() []Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Entries()
}
