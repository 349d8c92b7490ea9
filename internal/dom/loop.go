package dom

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLoopStopped is returned when work is submitted to a stopped loop.
var ErrLoopStopped = errors.New("page loop stopped")

// Loop is a single-threaded task queue. Every DOM access for a page runs as a
// task on its loop, so page scripts, timers and automation commands never
// interleave mid-operation.
type Loop struct {
	tasks    chan func()
	quit     chan struct{}
	stopOnce sync.Once
}

// NewLoop creates and starts a loop.
func NewLoop() *Loop {
	l := &Loop{
		tasks: make(chan func(), 256),
		quit:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	for {
		select {
		case <-l.quit:
			return
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Post queues fn without waiting. It reports false if the loop is stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.quit:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.quit:
		return false
	}
}

// Do runs fn on the loop and waits for it to finish. It must not be called
// from a task already running on the loop.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return ErrLoopStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.quit:
		return ErrLoopStopped
	}
}

// AfterFunc schedules fn to run on the loop after d.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(d, func() { l.Post(fn) })
}

// Stop terminates the loop. Queued tasks that have not started are dropped.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.quit) })
}

// Done is closed once the loop is stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.quit
}
