package async

// Void stands in for C++'s void in positions that carry no value.
type Void = struct{}

// Future represents a single value that will become available after zero
// or more polls. Single-use: once Poll returns StepValue, a Future must not
// be polled again.
type Future[T any] interface {
	Poll(ctx *PollContext) FuturePoll[T]
}

// Dropper is implemented by futures and streams that hold resources (an
// open Channel, a registered handle) that must be released when the
// combinator tree they belong to is torn down, whether by completing
// normally or by cancellation. Go has no destructors, so the Spawner calls
// Drop explicitly, exactly once, on whatever top-level value it is driving.
// Combinators that wrap other futures/streams implement Drop by forwarding
// it to their children.
type Dropper interface {
	Drop()
}

// dropValue calls Drop on v if it implements Dropper. Safe to call on any
// value, including nil interfaces.
func dropValue(v any) {
	if d, ok := v.(Dropper); ok {
		d.Drop()
	}
}

type futureFunc[T any] struct {
	poll func(ctx *PollContext) FuturePoll[T]
	drop func()
}

func (f *futureFunc[T]) Poll(ctx *PollContext) FuturePoll[T] { return f.poll(ctx) }
func (f *futureFunc[T]) Drop() {
	if f.drop != nil {
		f.drop()
	}
}

// FutureFunc adapts a poll function into a Future.
func FutureFunc[T any](poll func(ctx *PollContext) FuturePoll[T]) Future[T] {
	return &futureFunc[T]{poll: poll}
}

// FutureFuncWithDrop is FutureFunc plus a cleanup hook invoked by Drop.
func FutureFuncWithDrop[T any](poll func(ctx *PollContext) FuturePoll[T], drop func()) Future[T] {
	return &futureFunc[T]{poll: poll, drop: drop}
}

type readyFuture[T any] struct {
	value T
}

func (f readyFuture[T]) Poll(_ *PollContext) FuturePoll[T] {
	return Ready(f.value)
}

// Val returns a Future that is immediately ready with v on its first poll.
func Val[T any](v T) Future[T] {
	return readyFuture[T]{value: v}
}
