package form

import "time"

// Timer is a scheduled action that can be cancelled.
type Timer interface {
	Stop() bool
}

// Clock schedules delayed actions.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemClock schedules on the runtime's timers.
type SystemClock struct{}

// AfterFunc runs f in its own goroutine after d.
func (SystemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
