package engine

import "time"

// Clock supplies wall time for timeout deadlines.
//
// Deadlines are the only use of wall time; results never carry timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the system wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}
