package utils

import "time"

// Clock lets services take "now" from somewhere tests can pin.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the system clock
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// FixedClock always returns T.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time {
	return c.T
}
