package rpc

import (
	"errors"
	"io"

	"google.golang.org/grpc"

	"github.com/joeycumines/go-bigtrace/async"
	"github.com/joeycumines/go-bigtrace/traceproc"
)

// clientStep is one clientStreamReader pump cycle's outcome: a decoded
// message, the end of the stream, or a terminal error.
type clientStep[T any] struct {
	val T
	eof bool
	err error
}

// clientStreamReader pulls a grpc.ClientStream one message at a time on
// pool, the same single-flight pull state machine bigtraceenv.fileReader
// uses for os.File.Read: pollNext only submits the next blocking RecvMsg
// once the previous one has resolved, so the stream is never read from two
// goroutines at once despite RecvMsg happening off the poll loop.
type clientStreamReader[T any] struct {
	pool   traceproc.BlockingPool
	stream grpc.ClientStream
	cancel func()

	finished bool
	pending  async.Future[clientStep[T]]
}

// newClientStreamReader adapts stream into a Stream of decoded T values (or
// errors), running each blocking RecvMsg on pool. cancel is called, at most
// once, if the stream is dropped before reaching its natural end — it is
// expected to be the context.CancelFunc paired with the ctx the stream was
// created with, which unblocks any RecvMsg currently in flight on pool.
func newClientStreamReader[T any](pool traceproc.BlockingPool, stream grpc.ClientStream, cancel func()) async.Stream[async.Result[T]] {
	r := &clientStreamReader[T]{pool: pool, stream: stream, cancel: cancel}
	return async.StreamFuncWithDrop(r.pollNext, r.drop)
}

func (r *clientStreamReader[T]) runStepSync() clientStep[T] {
	var m T
	if err := r.stream.RecvMsg(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return clientStep[T]{eof: true}
		}
		return clientStep[T]{err: err}
	}
	return clientStep[T]{val: m}
}

func (r *clientStreamReader[T]) submitStep() {
	ch, chErr := async.NewChannel[clientStep[T]](1)
	if chErr != nil {
		r.pending = async.Val(clientStep[T]{err: chErr})
		return
	}
	submitErr := r.pool.Submit(func() {
		v := r.runStepSync()
		ch.WriteNonblocking(v)
		ch.Close()
	})
	if submitErr != nil {
		r.pending = async.Val(clientStep[T]{err: submitErr})
		return
	}
	r.pending = async.FutureFunc(func(ctx *async.PollContext) async.FuturePoll[clientStep[T]] {
		rr := ch.ReadNonblocking()
		if rr.Ok {
			return async.Ready(rr.Item)
		}
		ctx.RegisterInterested(ch.ReadHandle())
		return async.Pending[clientStep[T]]()
	})
}

func (r *clientStreamReader[T]) pollNext(ctx *async.PollContext) async.StreamPoll[async.Result[T]] {
	if r.finished {
		return async.StreamDone[async.Result[T]]()
	}
	if r.pending == nil {
		r.submitStep()
	}
	p := r.pending.Poll(ctx)
	if p.Step == async.StepPending {
		return async.StreamPending[async.Result[T]]()
	}
	r.pending = nil
	step := p.Value

	if step.err != nil {
		r.finished = true
		return async.StreamItem(async.ErrResult[T](step.err))
	}
	if step.eof {
		r.finished = true
		return async.StreamDone[async.Result[T]]()
	}
	return async.StreamItem(async.Ok(step.val))
}

func (r *clientStreamReader[T]) drop() {
	if r.finished {
		return
	}
	r.finished = true
	if r.cancel != nil {
		r.cancel()
	}
}
