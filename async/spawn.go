package async

import (
	"runtime"
	"sync"
)

const resultChannelCapacity = 4

// SpawnHandle is an RAII-style cancellation token for a spawned
// future/stream. Go has no destructors, so cancellation is not implicit:
// callers must call Close to request it. Close is idempotent and
// asynchronous — the in-flight future is dropped on the runner's
// goroutine, not synchronously within Close itself. As a leak backstop, a
// finalizer also calls Close if the handle is garbage collected without
// one.
type SpawnHandle struct {
	closeOnce sync.Once
	doClose   func()
}

func newSpawnHandle(doClose func()) *SpawnHandle {
	h := &SpawnHandle{doClose: doClose}
	runtime.SetFinalizer(h, func(h *SpawnHandle) { h.Close() })
	return h
}

// Close requests cancellation of the spawned future/stream.
func (h *SpawnHandle) Close() {
	h.closeOnce.Do(func() {
		runtime.SetFinalizer(h, nil)
		if h.doClose != nil {
			h.doClose()
		}
	})
}

// driver pumps a single Future[T] to completion on a TaskRunner,
// maintaining the set of handles currently watched with the runner and
// coalescing readiness callbacks into a single re-poll task.
type driver[T any] struct {
	runner       TaskRunner
	future       Future[T] // nil once finished or cancelled
	watched      *HandleSet
	pendingReady *HandleSet
	rePollPosted bool
	onComplete   func(T)
}

func spawn[T any](r TaskRunner, f Future[T], onComplete func(T)) *SpawnHandle {
	d := &driver[T]{
		runner:       r,
		future:       f,
		watched:      NewHandleSet(),
		pendingReady: NewHandleSet(),
		onComplete:   onComplete,
	}
	_ = r.PostTask(d.poll)
	return newSpawnHandle(func() {
		_ = r.PostTask(d.cancel)
	})
}

func (d *driver[T]) poll() {
	if d.future == nil {
		return
	}
	ready := d.pendingReady
	d.pendingReady = NewHandleSet()
	d.rePollPosted = false

	ctx := NewPollContext(ready)
	result := d.future.Poll(ctx)
	if result.Step == StepValue {
		d.finish(result.Value)
		return
	}
	d.reconcile(ctx.interested)
}

func (d *driver[T]) reconcile(interested *HandleSet) {
	interested.Each(func(h Handle) {
		if !d.watched.Has(h) {
			d.watched.Add(h)
			hh := h
			_ = d.runner.AddHandleWatch(hh, func() { d.onHandleReady(hh) })
		}
	})
	var stale []Handle
	d.watched.Each(func(h Handle) {
		if !interested.Has(h) {
			stale = append(stale, h)
		}
	})
	for _, h := range stale {
		d.watched.Remove(h)
		_ = d.runner.RemoveHandleWatch(h)
	}
}

func (d *driver[T]) onHandleReady(h Handle) {
	d.pendingReady.Add(h)
	if !d.rePollPosted {
		d.rePollPosted = true
		_ = d.runner.PostTask(d.poll)
	}
}

func (d *driver[T]) finish(v T) {
	dropValue(d.future)
	d.future = nil
	d.unwatchAll()
	if d.onComplete != nil {
		d.onComplete(v)
	}
}

func (d *driver[T]) cancel() {
	if d.future == nil {
		return
	}
	dropValue(d.future)
	d.future = nil
	d.unwatchAll()
}

func (d *driver[T]) unwatchAll() {
	d.watched.Each(func(h Handle) { _ = d.runner.RemoveHandleWatch(h) })
	d.watched = NewHandleSet()
}

// Spawn drives f to completion on r, discarding its resolved value.
// Returns a SpawnHandle that cancels f if closed before it completes.
func Spawn(r TaskRunner, f Future[Void]) *SpawnHandle {
	return spawn[Void](r, f, nil)
}

// ResultSpawnHandle is a SpawnHandle paired with the Channel its spawned
// stream writes its items to.
type ResultSpawnHandle[T any] struct {
	handle *SpawnHandle
	ch     *Channel[T]
}

// Close cancels the underlying spawn.
func (h *ResultSpawnHandle[T]) Close() { h.handle.Close() }

// Channel returns the channel that the spawned stream's items are
// delivered on. Closed automatically once the stream completes or is
// cancelled.
func (h *ResultSpawnHandle[T]) Channel() *Channel[T] { return h.ch }

// SpawnStream drives s to completion on r, writing every item it produces
// to a bounded Channel[T], which is closed once s completes or the
// returned handle is closed. This is how a Stream crosses from the
// cooperative poll world into something a consumer can read from
// independently.
func SpawnStream[T any](r TaskRunner, s Stream[T]) (*ResultSpawnHandle[T], error) {
	ch, err := NewChannel[T](resultChannelCapacity)
	if err != nil {
		return nil, err
	}
	writeStep := MapFuture[T, Void](s, func(v T) Future[Void] {
		return futureWriteToChannel(ch, v)
	})
	closeStep := OnDestroy[Void](func() { ch.Close() })
	combined := Concat[Void](writeStep, closeStep)
	overall := DrainVoid[Void](combined)
	handle := spawn[Void](r, overall, nil)
	return &ResultSpawnHandle[T]{handle: handle, ch: ch}, nil
}
