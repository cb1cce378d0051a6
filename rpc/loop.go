package rpc

import (
	eventloop "github.com/joeycumines/go-eventloop"
)

// EventLoop adapts an *eventloop.Loop to inprocgrpc.Loop. The two packages
// converged on almost the same shape independently: inprocgrpc wants plain
// func() submission, eventloop wants a Task{Runnable: func()}. This is the
// same adaptation runner.LoopRunner makes for async.TaskRunner, just against
// a different target interface.
type EventLoop struct {
	loop *eventloop.Loop
}

// NewEventLoop wraps loop as an inprocgrpc.Loop. The loop must already be
// running (via loop.Run in a dedicated goroutine).
func NewEventLoop(loop *eventloop.Loop) *EventLoop {
	return &EventLoop{loop: loop}
}

// Submit implements inprocgrpc.Loop.
func (l *EventLoop) Submit(fn func()) error {
	return l.loop.Submit(eventloop.Task{Runnable: fn})
}

// SubmitInternal implements inprocgrpc.Loop.
func (l *EventLoop) SubmitInternal(fn func()) error {
	return l.loop.SubmitInternal(eventloop.Task{Runnable: fn})
}
