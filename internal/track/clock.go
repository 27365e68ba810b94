package track

import "time"

// Timer is a cancellable one-shot, satisfied by *time.Timer.
type Timer interface {
	Stop() bool
}

// Clock abstracts wall time and one-shot scheduling so the engine's exposure
// and debounce timers can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }
