package runner

import (
	"time"

	eventloop "github.com/joeycumines/go-eventloop"

	"github.com/joeycumines/go-bigtrace/async"
)

// LoopRunner adapts an *eventloop.Loop to async.TaskRunner. The Loop must
// already be running (via Loop.Run in a dedicated goroutine) for posted
// tasks and handle watches to make progress.
type LoopRunner struct {
	loop *eventloop.Loop
}

// New wraps loop as an async.TaskRunner.
func New(loop *eventloop.Loop) *LoopRunner {
	return &LoopRunner{loop: loop}
}

// Loop returns the wrapped event loop, for callers that need to start or
// shut it down directly.
func (r *LoopRunner) Loop() *eventloop.Loop { return r.loop }

// PostTask implements async.TaskRunner.
func (r *LoopRunner) PostTask(t async.Task) error {
	return r.loop.Submit(eventloop.Task{Runnable: func() { t() }})
}

// PostDelayedTask implements async.TaskRunner.
func (r *LoopRunner) PostDelayedTask(t async.Task, delay time.Duration) error {
	return r.loop.ScheduleTimer(delay, func() { t() })
}

// AddHandleWatch implements async.TaskRunner by registering fd for
// readability with the loop's poller. Only read-style readiness is used:
// every Handle this module hands to a TaskRunner (both ends of an
// async.Channel) signals itself via read-readiness on its own descriptor.
func (r *LoopRunner) AddHandleWatch(h async.Handle, onReady func()) error {
	return r.loop.RegisterFD(int(h), eventloop.EventRead, func(eventloop.IOEvents) {
		onReady()
	})
}

// RemoveHandleWatch implements async.TaskRunner.
func (r *LoopRunner) RemoveHandleWatch(h async.Handle) error {
	return r.loop.UnregisterFD(int(h))
}

var _ async.TaskRunner = (*LoopRunner)(nil)
