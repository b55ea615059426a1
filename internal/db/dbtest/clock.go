package dbtest

import "time"

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// stamp gives each write a strictly increasing timestamp.
func stamp(seq int) time.Time {
	return epoch.Add(time.Duration(seq) * time.Millisecond)
}
