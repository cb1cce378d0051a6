package async

// mapFutureStream drives upstream one item at a time, mapping each item
// through fn to a Future[B] and awaiting it before requesting the next
// upstream item.
type mapFutureStream[A, B any] struct {
	upstream Stream[A]
	fn       func(A) Future[B]
	pending  Future[B]
	done     bool
}

func (m *mapFutureStream[A, B]) PollNext(ctx *PollContext) StreamPoll[B] {
	for {
		if m.done {
			return StreamDone[B]()
		}
		if m.pending == nil {
			p := m.upstream.PollNext(ctx)
			switch p.Step {
			case StepPending:
				return StreamPending[B]()
			case StepDone:
				m.done = true
				return StreamDone[B]()
			default:
				m.pending = m.fn(p.Value)
			}
		}
		fp := m.pending.Poll(ctx)
		if fp.Step == StepPending {
			return StreamPending[B]()
		}
		m.pending = nil
		return StreamItem(fp.Value)
	}
}

func (m *mapFutureStream[A, B]) Drop() {
	if m.pending != nil {
		dropValue(m.pending)
	}
	dropValue(m.upstream)
}

// MapFuture returns a Stream that maps each item of s through fn, which
// produces a Future per item; the resulting stream yields fn's resolved
// value for each input item, in order.
func MapFuture[A, B any](s Stream[A], fn func(A) Future[B]) Stream[B] {
	return &mapFutureStream[A, B]{upstream: s, fn: fn}
}

type mapStream[A, B any] struct {
	upstream Stream[A]
	fn       func(A) B
}

func (m *mapStream[A, B]) PollNext(ctx *PollContext) StreamPoll[B] {
	p := m.upstream.PollNext(ctx)
	switch p.Step {
	case StepDone:
		return StreamDone[B]()
	case StepValue:
		return StreamItem(m.fn(p.Value))
	default:
		return StreamPending[B]()
	}
}

func (m *mapStream[A, B]) Drop() { dropValue(m.upstream) }

// MapStream returns a Stream that transforms each item of s through fn, a
// pure synchronous projection. Unlike MapFuture, fn produces a value
// directly rather than a Future, so no per-item sequencing point is
// introduced.
func MapStream[A, B any](s Stream[A], fn func(A) B) Stream[B] {
	return &mapStream[A, B]{upstream: s, fn: fn}
}

type concatStream[T any] struct {
	first     Stream[T]
	second    Stream[T]
	firstDone bool
}

func (c *concatStream[T]) PollNext(ctx *PollContext) StreamPoll[T] {
	if !c.firstDone {
		p := c.first.PollNext(ctx)
		if p.Step != StepDone {
			return p
		}
		c.firstDone = true
	}
	return c.second.PollNext(ctx)
}

func (c *concatStream[T]) Drop() {
	if !c.firstDone {
		dropValue(c.first)
	}
	dropValue(c.second)
}

// Concat returns a Stream that yields every item of first, then every item
// of second.
func Concat[T any](first, second Stream[T]) Stream[T] {
	return &concatStream[T]{first: first, second: second}
}

// flattenStream polls every not-yet-done constituent stream, in order, on
// each call. The first item produced is returned immediately; if none is
// produced and at least one constituent is still pending, the union of the
// handles each pending constituent registered is reported interested. Once
// every constituent is done, the flattened stream is done. Ordering beyond
// "first item found, scanning in vector order" is not guaranteed: a
// constituent stream that is always ready will starve later ones within a
// single poll, but every constituent is re-scanned on the next poll.
type flattenStream[T any] struct {
	streams []Stream[T]
	done    []bool
}

// FlattenStreams returns a Stream that interleaves the items of every
// stream in streams, completing once all of them have completed.
func FlattenStreams[T any](streams []Stream[T]) Stream[T] {
	done := make([]bool, len(streams))
	return &flattenStream[T]{streams: streams, done: done}
}

func (f *flattenStream[T]) PollNext(ctx *PollContext) StreamPoll[T] {
	anyPending := false
	for i, s := range f.streams {
		if f.done[i] {
			continue
		}
		sub := NewPollContext(ctx.ready)
		p := s.PollNext(sub)
		switch p.Step {
		case StepDone:
			f.done[i] = true
		case StepValue:
			return p
		default:
			anyPending = true
			ctx.RegisterAllInterested(sub.interested)
		}
	}
	if anyPending {
		return StreamPending[T]()
	}
	for _, d := range f.done {
		if !d {
			// Every constituent transitioned straight to done or value
			// this round without registering as pending; re-scan once
			// more so a constituent that just turned done doesn't
			// silently swallow a sibling that still has work.
			return f.PollNext(ctx)
		}
	}
	return StreamDone[T]()
}

func (f *flattenStream[T]) Drop() {
	for i, s := range f.streams {
		if !f.done[i] {
			dropValue(s)
		}
	}
}

type continueWithFuture[A, B any] struct {
	first  Future[A]
	fn     func(A) Future[B]
	second Future[B]
}

func (c *continueWithFuture[A, B]) Poll(ctx *PollContext) FuturePoll[B] {
	if c.second == nil {
		p := c.first.Poll(ctx)
		if p.Step == StepPending {
			return Pending[B]()
		}
		c.second = c.fn(p.Value)
	}
	return c.second.Poll(ctx)
}

func (c *continueWithFuture[A, B]) Drop() {
	if c.second != nil {
		dropValue(c.second)
	} else {
		dropValue(c.first)
	}
}

// ContinueWith returns a Future that awaits f, then feeds its value to fn
// to produce a second future, and awaits that.
func ContinueWith[A, B any](f Future[A], fn func(A) Future[B]) Future[B] {
	return &continueWithFuture[A, B]{first: f, fn: fn}
}

type drainFuture[T any] struct {
	upstream Stream[T]
}

func (d *drainFuture[T]) Poll(ctx *PollContext) FuturePoll[Void] {
	for {
		p := d.upstream.PollNext(ctx)
		switch p.Step {
		case StepPending:
			return Pending[Void]()
		case StepDone:
			return Ready(Void{})
		default:
			// discard and keep draining
		}
	}
}

func (d *drainFuture[T]) Drop() {
	dropValue(d.upstream)
}

// DrainVoid returns a Future that polls s to completion, discarding every
// item, resolving once s is done.
func DrainVoid[T any](s Stream[T]) Future[Void] {
	return &drainFuture[T]{upstream: s}
}
