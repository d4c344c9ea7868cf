package gesture

import "time"

// Timer is a pending callback that can be disarmed.
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d. The real implementation fires on its own
// goroutine; the controller serializes the callback behind its lock.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealScheduler is backed by time.AfterFunc.
func RealScheduler() Scheduler {
	return realScheduler{}
}
