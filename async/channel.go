package async

import (
	"context"
	"sync"
)

// signalFD is a single OS-level readiness source that a Channel toggles
// between signalled (readable) and drained (not readable) as its buffer
// state changes. Implementations are platform-specific; see
// signal_linux.go and signal_unix.go.
type signalFD interface {
	FD() Handle
	Signal()
	Drain()
	Close() error
}

// WriteStatus reports the outcome of a non-blocking write.
type WriteStatus struct {
	// Success is true if the item was enqueued.
	Success bool
	// Closed is true if the channel was already closed; Success is
	// always false in that case, and the caller retains the value it
	// tried to write (Go passes by value, so there is nothing further
	// to hand back).
	Closed bool
}

// ReadResult reports the outcome of a non-blocking read.
type ReadResult[T any] struct {
	Item T
	// Ok is true if Item holds a dequeued value.
	Ok bool
	// Closed is true if the channel is closed. A closed, drained channel
	// reports Ok=false, Closed=true; a closed channel with buffered
	// items still in it reports Ok=true, Closed=true until drained.
	Closed bool
}

// Channel is a bounded, single-producer single-consumer queue whose two
// ends are each associated with an OS-level readiness Handle, suitable for
// registration with a TaskRunner. ReadHandle becomes ready whenever a read
// would make progress (an item is buffered, or the channel is closed);
// WriteHandle becomes ready whenever a write would make progress (there is
// spare capacity, or the channel is closed, in which case the write fails
// immediately rather than blocking forever).
type Channel[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	closed   bool

	readSig  signalFD
	writeSig signalFD

	readSignalled  bool
	writeSignalled bool

	cond *sync.Cond
}

// NewChannel creates a Channel with the given buffer capacity (minimum 1).
func NewChannel[T any](capacity int) (*Channel[T], error) {
	if capacity < 1 {
		capacity = 1
	}
	rs, err := newSignalFD()
	if err != nil {
		return nil, err
	}
	ws, err := newSignalFD()
	if err != nil {
		_ = rs.Close()
		return nil, err
	}
	c := &Channel[T]{capacity: capacity, readSig: rs, writeSig: ws}
	c.cond = sync.NewCond(&c.mu)
	c.updateSignalsLocked()
	return c, nil
}

// ReadHandle returns the handle that becomes ready when a read would make
// progress.
func (c *Channel[T]) ReadHandle() Handle { return c.readSig.FD() }

// WriteHandle returns the handle that becomes ready when a write would
// make progress.
func (c *Channel[T]) WriteHandle() Handle { return c.writeSig.FD() }

func (c *Channel[T]) updateSignalsLocked() {
	readReady := len(c.items) > 0 || c.closed
	if readReady != c.readSignalled {
		c.readSignalled = readReady
		if readReady {
			c.readSig.Signal()
		} else {
			c.readSig.Drain()
		}
	}
	writeReady := len(c.items) < c.capacity || c.closed
	if writeReady != c.writeSignalled {
		c.writeSignalled = writeReady
		if writeReady {
			c.writeSig.Signal()
		} else {
			c.writeSig.Drain()
		}
	}
	if c.cond != nil {
		c.cond.Broadcast()
	}
}

// WriteNonblocking attempts to enqueue v. On failure (channel full and not
// closed), v is left untouched for the caller to retry; Go's pass-by-value
// semantics mean there is no ownership to transfer back explicitly.
func (c *Channel[T]) WriteNonblocking(v T) WriteStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return WriteStatus{Closed: true}
	}
	if len(c.items) >= c.capacity {
		return WriteStatus{}
	}
	c.items = append(c.items, v)
	c.updateSignalsLocked()
	return WriteStatus{Success: true}
}

// ReadNonblocking attempts to dequeue an item.
func (c *Channel[T]) ReadNonblocking() ReadResult[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) == 0 {
		return ReadResult[T]{Closed: c.closed}
	}
	v := c.items[0]
	var zero T
	c.items[0] = zero
	c.items = c.items[1:]
	c.updateSignalsLocked()
	return ReadResult[T]{Item: v, Ok: true, Closed: c.closed}
}

// Close marks the channel closed. Idempotent. Remaining buffered items can
// still be drained by ReadNonblocking after Close.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.updateSignalsLocked()
}

// Recv blocks until an item is available, the channel closes and drains,
// or ctx is cancelled. It is the cross-thread counterpart to
// ReadNonblocking/StreamFromChannel: intended for a consumer goroutine
// that is not itself driving a poll loop (an RPC handler goroutine
// forwarding a worker's spawned stream onto a grpc.ServerStream, for
// example), so it never touches a Handle or a TaskRunner.
func (c *Channel[T]) Recv(ctx context.Context) (item T, ok bool, err error) {
	if ctx != nil {
		if cerr := ctx.Err(); cerr != nil {
			return item, false, cerr
		}
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-ctx.Done():
				c.mu.Lock()
				c.cond.Broadcast()
				c.mu.Unlock()
			case <-stop:
			}
		}()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		if len(c.items) > 0 {
			v := c.items[0]
			var zero T
			c.items[0] = zero
			c.items = c.items[1:]
			c.updateSignalsLocked()
			return v, true, nil
		}
		if c.closed {
			return item, false, nil
		}
		if ctx != nil {
			if cerr := ctx.Err(); cerr != nil {
				return item, false, cerr
			}
		}
		c.cond.Wait()
	}
}

// Release closes the underlying OS readiness handles. Call once both ends
// of the channel are permanently done with it (the producer has stopped
// writing and the consumer has stopped reading); reusing the channel after
// Release is undefined.
func (c *Channel[T]) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err1 := c.readSig.Close()
	err2 := c.writeSig.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

type streamFromChannel[T any] struct {
	ch *Channel[T]
}

func (s *streamFromChannel[T]) PollNext(ctx *PollContext) StreamPoll[T] {
	rr := s.ch.ReadNonblocking()
	if rr.Ok {
		return StreamItem(rr.Item)
	}
	if rr.Closed {
		return StreamDone[T]()
	}
	ctx.RegisterInterested(s.ch.ReadHandle())
	return StreamPending[T]()
}

// StreamFromChannel adapts the read side of ch into a Stream[T], completing
// once ch is closed and drained. The inverse of the write side SpawnStream
// uses internally: it lets a value produced by a spawned, independently
// driven stream re-enter the cooperative poll world of a caller composing
// it into a larger combinator tree.
func StreamFromChannel[T any](ch *Channel[T]) Stream[T] {
	return &streamFromChannel[T]{ch: ch}
}

// futureWriteToChannel returns a Future that resolves once v has been
// written to ch, either because it fit or because ch was already closed
// (in which case the item is silently dropped).
func futureWriteToChannel[T any](ch *Channel[T], v T) Future[Void] {
	return FutureFunc(func(ctx *PollContext) FuturePoll[Void] {
		st := ch.WriteNonblocking(v)
		if st.Success || st.Closed {
			return Ready(Void{})
		}
		ctx.RegisterInterested(ch.WriteHandle())
		return Pending[Void]()
	})
}
