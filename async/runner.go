package async

import "time"

// Task is a unit of work posted to a TaskRunner.
type Task func()

// TaskRunner is the single-threaded executor that drives spawned
// futures/streams. It is satisfied by runner.LoopRunner, which adapts
// go-eventloop's Loop; tests may substitute a simpler in-memory
// implementation. All of TaskRunner's methods must be safe to call from any
// goroutine; the tasks and callbacks they schedule, however, always run
// serialized on the runner's own goroutine, which is what lets the rest of
// this package skip locking.
type TaskRunner interface {
	// PostTask schedules t to run on the runner's goroutine as soon as
	// possible.
	PostTask(t Task) error
	// PostDelayedTask schedules t to run on the runner's goroutine no
	// sooner than delay from now.
	PostDelayedTask(t Task, delay time.Duration) error
	// AddHandleWatch arranges for onReady to be invoked, on the runner's
	// goroutine, whenever h is readable. May fire more than once before
	// RemoveHandleWatch is called; the Spawner driver coalesces
	// redundant firings into a single re-poll.
	AddHandleWatch(h Handle, onReady func()) error
	// RemoveHandleWatch cancels a previously registered watch. A no-op
	// if h is not currently watched.
	RemoveHandleWatch(h Handle) error
}
