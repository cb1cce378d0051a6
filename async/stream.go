package async

// Stream represents a sequence of values produced over zero or more polls,
// terminated by StepDone. Single-use, like Future.
type Stream[T any] interface {
	PollNext(ctx *PollContext) StreamPoll[T]
}

type streamFunc[T any] struct {
	poll func(ctx *PollContext) StreamPoll[T]
	drop func()
}

func (s *streamFunc[T]) PollNext(ctx *PollContext) StreamPoll[T] { return s.poll(ctx) }
func (s *streamFunc[T]) Drop() {
	if s.drop != nil {
		s.drop()
	}
}

// StreamFunc adapts a poll function into a Stream.
func StreamFunc[T any](poll func(ctx *PollContext) StreamPoll[T]) Stream[T] {
	return &streamFunc[T]{poll: poll}
}

// StreamFuncWithDrop is StreamFunc plus a cleanup hook invoked by Drop.
func StreamFuncWithDrop[T any](poll func(ctx *PollContext) StreamPoll[T], drop func()) Stream[T] {
	return &streamFunc[T]{poll: poll, drop: drop}
}

type sliceStream[T any] struct {
	items []T
	i     int
}

func (s *sliceStream[T]) PollNext(_ *PollContext) StreamPoll[T] {
	if s.i >= len(s.items) {
		return StreamDone[T]()
	}
	v := s.items[s.i]
	s.i++
	return StreamItem(v)
}

// StreamFrom returns a Stream that yields each element of items, in order,
// one per poll, then completes. Never registers a handle; always makes
// progress synchronously.
func StreamFrom[T any](items []T) Stream[T] {
	return &sliceStream[T]{items: items}
}

// Empty returns a Stream that completes immediately without yielding an
// item.
func Empty[T any]() Stream[T] {
	return StreamFrom[T](nil)
}

// StreamOf returns a single-element Stream yielding v.
func StreamOf[T any](v T) Stream[T] {
	return StreamFrom([]T{v})
}

type streamFromFuture[T any] struct {
	f    Future[T]
	done bool
}

func (s *streamFromFuture[T]) PollNext(ctx *PollContext) StreamPoll[T] {
	if s.done {
		return StreamDone[T]()
	}
	p := s.f.Poll(ctx)
	if p.Step == StepPending {
		return StreamPending[T]()
	}
	s.done = true
	return StreamItem(p.Value)
}

func (s *streamFromFuture[T]) Drop() {
	dropValue(s.f)
}

// StreamFromFuture returns a one-element Stream whose single item is f's
// resolved value.
func StreamFromFuture[T any](f Future[T]) Stream[T] {
	return &streamFromFuture[T]{f: f}
}

type onDestroyStream[T any] struct {
	fn     func()
	closed bool
}

func (s *onDestroyStream[T]) PollNext(_ *PollContext) StreamPoll[T] {
	return StreamDone[T]()
}

func (s *onDestroyStream[T]) Drop() {
	if s.closed {
		return
	}
	s.closed = true
	if s.fn != nil {
		s.fn()
	}
}

// OnDestroy returns a Stream that is already done on its first poll but
// runs fn exactly once when the stream is dropped, whether or not it was
// ever polled. Used to tie resource cleanup (closing a bound Channel) to
// the lifetime of a larger combinator chain via Concat.
func OnDestroy[T any](fn func()) Stream[T] {
	return &onDestroyStream[T]{fn: fn}
}
