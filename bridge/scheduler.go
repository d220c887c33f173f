package bridge

import "time"

// Scheduler runs deferred work on the control goroutine.
type Scheduler interface {
	After(d time.Duration, fn func()) (cancel func())
}

type postScheduler struct {
	post func(func())
}

func (s postScheduler) After(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, func() { s.post(fn) })
	return func() { t.Stop() }
}
