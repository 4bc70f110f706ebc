package util

import "time"

// Clock supplies the current instant. Engines default open-ended time ranges with it.
type Clock interface {
	Now() time.Time
}

// DefaultClock reads the system clock in UTC.
type DefaultClock struct{}

func (c *DefaultClock) Now() time.Time { return time.Now().UTC() }

// DummyClock always returns T.
type DummyClock struct {
	T time.Time
}

func (c *DummyClock) Now() time.Time {
	return c.T
}
