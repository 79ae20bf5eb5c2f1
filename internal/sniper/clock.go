package sniper

import "time"

// Timer is a cancellable pending callback.
type Timer interface {
	Stop() bool
}

// Clock is the engine's source of time. All scheduling goes through
// AfterFunc so that ticks, expiry and round re-arming can be driven by a
// fake clock in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// RealClock returns a Clock backed by the time package.
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
