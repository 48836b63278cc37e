package util

import "time"

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DateRange returns n consecutive calendar days starting at from (truncated to midnight).
func DateRange(from time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	start := StartOfDay(from)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.AddDate(0, 0, i)
	}
	return out
}
