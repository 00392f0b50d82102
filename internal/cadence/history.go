package cadence

import "time"

// HistorySize is the number of observations the estimator keeps.
const HistorySize = 3

// Entry is one observation of the source payload.
type Entry struct {
	At      time.Time
	Payload string
}

// History is a bounded, oldest-first window of observations.
type History struct {
	entries []Entry
}

// Push appends e and drops anything older than the last HistorySize entries.
func (h *History) Push(e Entry) {
	h.entries = append(h.entries, e)
	if len(h.entries) > HistorySize {
		h.entries = append(h.entries[:0:0], h.entries[len(h.entries)-HistorySize:]...)
	}
}

// Len returns the number of retained entries.
func (h *History) Len() int { return len(h.entries) }

// Entries returns a copy of the retained entries, oldest first.
func (h *History) Entries() []Entry {
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}
