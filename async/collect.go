package async

// Result carries either a value or an error, mirroring the StatusOr-style
// payloads the query pipeline threads through streams.
type Result[T any] struct {
	Value T
	Err   error
}

// Ok wraps v as a successful Result.
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// ErrResult wraps err as a failed Result.
func ErrResult[T any](err error) Result[T] {
	return Result[T]{Err: err}
}

// IsOk reports whether r carries no error.
func (r Result[T]) IsOk() bool {
	return r.Err == nil
}

type allOkFuture struct {
	upstream Stream[error]
	settled  bool
	result   error
}

func (f *allOkFuture) Poll(ctx *PollContext) FuturePoll[error] {
	if f.settled {
		return Ready(f.result)
	}
	for {
		p := f.upstream.PollNext(ctx)
		switch p.Step {
		case StepPending:
			return Pending[error]()
		case StepDone:
			f.settled = true
			return Ready[error](nil)
		default:
			if p.Value != nil {
				f.settled = true
				f.result = p.Value
				return Ready(p.Value)
			}
		}
	}
}

func (f *allOkFuture) Drop() {
	if !f.settled {
		dropValue(f.upstream)
	}
}

// CollectAllOk drains s, a stream of per-item errors (nil meaning ok),
// short-circuiting on the first non-nil error. Resolves to nil if every
// item (or zero items) were ok.
func CollectAllOk(s Stream[error]) Future[error] {
	return &allOkFuture{upstream: s}
}

type toFutureCheckedFuture[T any] struct {
	upstream Stream[T]
	value    T
	gotOne   bool
	settled  bool
}

func (f *toFutureCheckedFuture[T]) Poll(ctx *PollContext) FuturePoll[T] {
	if f.settled {
		return Ready(f.value)
	}
	for {
		p := f.upstream.PollNext(ctx)
		switch p.Step {
		case StepPending:
			return Pending[T]()
		case StepDone:
			if !f.gotOne {
				panic("async: ToFutureChecked stream produced no items")
			}
			f.settled = true
			return Ready(f.value)
		default:
			if f.gotOne {
				panic("async: ToFutureChecked stream produced more than one item")
			}
			f.value = p.Value
			f.gotOne = true
		}
	}
}

func (f *toFutureCheckedFuture[T]) Drop() {
	if !f.settled {
		dropValue(f.upstream)
	}
}

// CollectToFutureChecked drains s, asserting it produces exactly one item,
// and resolves to that item. Panics (programmer error, not a runtime
// condition a caller should recover from) if s produces zero or more than
// one item.
func CollectToFutureChecked[T any](s Stream[T]) Future[T] {
	return &toFutureCheckedFuture[T]{upstream: s}
}

type statusOrVecFuture[T any] struct {
	upstream Stream[Result[T]]
	items    []T
	settled  bool
	result   Result[[]T]
}

func (f *statusOrVecFuture[T]) Poll(ctx *PollContext) FuturePoll[Result[[]T]] {
	if f.settled {
		return Ready(f.result)
	}
	for {
		p := f.upstream.PollNext(ctx)
		switch p.Step {
		case StepPending:
			return Pending[Result[[]T]]()
		case StepDone:
			f.settled = true
			f.result = Ok(f.items)
			return Ready(f.result)
		default:
			if p.Value.Err != nil {
				f.settled = true
				f.result = ErrResult[[]T](p.Value.Err)
				return Ready(f.result)
			}
			f.items = append(f.items, p.Value.Value)
		}
	}
}

func (f *statusOrVecFuture[T]) Drop() {
	if !f.settled {
		dropValue(f.upstream)
	}
}

// CollectStatusOrVec drains s, short-circuiting to the first error
// carried by an item; otherwise resolves to the ordered slice of every
// item's value once s is done.
func CollectStatusOrVec[T any](s Stream[Result[T]]) Future[Result[[]T]] {
	return &statusOrVecFuture[T]{upstream: s}
}
