package cadence

import "time"

// TimestampLayout is the "DD Mon YYYY, HH:MM" layout stored in the log.
const TimestampLayout = "02 Jan 2006, 15:04"

// AlignTimestamp floors t's minute to a multiple of intervalMinutes and zeroes
// everything below the minute. A non-positive interval falls back to five minutes.
func AlignTimestamp(t time.Time, intervalMinutes int) time.Time {
	if intervalMinutes <= 0 {
		intervalMinutes = DefaultIntervalMinutes
	}

	minute := (t.Minute() / intervalMinutes) * intervalMinutes
	hour := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	if minute >= 60 {
		return hour.Add(time.Hour)
	}
	return hour.Add(time.Duration(minute) * time.Minute)
}

// FormatTimestamp renders t with TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}
