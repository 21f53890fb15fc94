package domain

import "time"

// Clock supplies wall-clock time. Tests inject a fixed clock so stored
// timestamps are reproducible.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
