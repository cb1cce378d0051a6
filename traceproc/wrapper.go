package traceproc

import (
	"sync"
	"sync/atomic"

	"github.com/joeycumines/go-bigtrace/async"
	"github.com/joeycumines/go-bigtrace/bigtrace"
)

// Statefulness controls what Wrapper does between queries: a Stateless
// processor is wiped back to its just-loaded state after every query
// finishes, so per-query SQL-side effects (temporary tables, settings)
// never leak into the next query; a Stateful one is left exactly as the
// query left it.
type Statefulness int

const (
	Stateful Statefulness = iota
	Stateless
)

// Option configures a Wrapper.
type Option func(*Wrapper)

// WithLogger overrides the Wrapper's logger, the default being a no-op.
func WithLogger(logger bigtrace.Logger) Option {
	return func(w *Wrapper) { w.logger = logger }
}

// Wrapper serializes all access to one Processor: at most one of LoadTrace
// or Query may be in flight at a time, enforced by a CompareAndSwap guard
// rather than a mutex, so a second caller gets an immediate InFlight
// Status instead of queueing up behind the first.
type Wrapper struct {
	path         string
	processor    Processor
	pool         BlockingPool
	statefulness Statefulness
	logger       bigtrace.Logger

	busy atomic.Bool
}

// NewWrapper returns a Wrapper around processor, loaded from path, running
// its blocking work on pool.
func NewWrapper(path string, processor Processor, pool BlockingPool, statefulness Statefulness, opts ...Option) *Wrapper {
	w := &Wrapper{
		path:         path,
		processor:    processor,
		pool:         pool,
		statefulness: statefulness,
		logger:       bigtrace.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Path returns the trace path this Wrapper was constructed with.
func (w *Wrapper) Path() string { return w.path }

func (w *Wrapper) tryAcquire() bool {
	return w.busy.CompareAndSwap(false, true)
}

func (w *Wrapper) release() {
	w.busy.Store(false)
}

// runOnPool submits fn to pool and returns a Future that resolves to fn's
// result once it runs. If the pool cannot accept the submission, onErr
// converts the error into a T the caller's Future can resolve to directly.
func runOnPool[T any](pool BlockingPool, fn func() T, onErr func(error) T) (async.Future[T], <-chan struct{}) {
	ch, err := async.NewChannel[T](1)
	done := make(chan struct{})
	if err != nil {
		close(done)
		return async.Val(onErr(err)), done
	}
	submitErr := pool.Submit(func() {
		v := fn()
		ch.WriteNonblocking(v)
		ch.Close()
		close(done)
	})
	if submitErr != nil {
		close(done)
		return async.Val(onErr(submitErr)), done
	}
	fut := async.FutureFunc(func(ctx *async.PollContext) async.FuturePoll[T] {
		rr := ch.ReadNonblocking()
		if rr.Ok {
			return async.Ready(rr.Item)
		}
		ctx.RegisterInterested(ch.ReadHandle())
		return async.Pending[T]()
	})
	return fut, done
}

// LoadTrace feeds every chunk of chunks into the processor in order, then
// notifies end-of-file. Resolves to the first error encountered (parse
// failure, a failed chunk read, or the end-of-file notification itself),
// or nil on success. Returns an immediately-resolved InFlight error if a
// load or query is already running.
func (w *Wrapper) LoadTrace(chunks async.Stream[async.Result[[]byte]]) async.Future[error] {
	if !w.tryAcquire() {
		return async.Val[error](bigtrace.InFlight("trace processor is busy with another request"))
	}
	parseResults := async.MapFuture(chunks, func(chunk async.Result[[]byte]) async.Future[error] {
		if chunk.Err != nil {
			return async.Val[error](chunk.Err)
		}
		fut, _ := runOnPool(w.pool, func() error {
			return w.processor.Parse(chunk.Value)
		}, func(err error) error { return err })
		return fut
	})
	allOk := async.CollectAllOk(parseResults)
	return async.ContinueWith(allOk, func(parseErr error) async.Future[error] {
		if parseErr != nil {
			w.release()
			return async.Val(parseErr)
		}
		eofFut, _ := runOnPool(w.pool, func() error {
			return w.processor.NotifyEndOfFile()
		}, func(err error) error { return err })
		return async.ContinueWith(eofFut, func(eofErr error) async.Future[error] {
			w.release()
			return async.Val(eofErr)
		})
	})
}

// stepOutcome is one pump cycle of a running query: ExecuteQuery followed by
// the first SerializeNext on the first call, SerializeNext alone on every
// call thereafter.
type stepOutcome struct {
	item    bigtrace.QueryResult
	hasMore bool
}

type queryRunner struct {
	w       *Wrapper
	sql     string
	started bool
	iter    QueryIterator

	pending     async.Future[stepOutcome]
	pendingDone <-chan struct{}
	finished    bool

	releaseOnce sync.Once
}

func (r *queryRunner) release() {
	r.releaseOnce.Do(r.w.release)
}

func (r *queryRunner) runStepSync() stepOutcome {
	if !r.started {
		r.started = true
		iter, err := r.w.processor.ExecuteQuery(r.sql)
		if err != nil {
			return stepOutcome{item: bigtrace.QueryResult{Err: err}}
		}
		r.iter = iter
	}
	rows, hasMore, err := r.iter.SerializeNext()
	if err != nil {
		return stepOutcome{item: bigtrace.QueryResult{Err: err}}
	}
	if !hasMore && r.w.statefulness == Stateless {
		if rerr := r.w.processor.RestoreInitialState(); rerr != nil {
			bigtrace.LogError(r.w.logger, "traceproc", "restore_initial_state failed", rerr, map[string]any{"path": r.w.path})
		}
	}
	return stepOutcome{item: bigtrace.QueryResult{Rows: rows}, hasMore: hasMore}
}

func (r *queryRunner) submitStep() {
	r.pending, r.pendingDone = runOnPool(r.w.pool, r.runStepSync, func(err error) stepOutcome {
		return stepOutcome{item: bigtrace.QueryResult{Err: err}}
	})
}

func (r *queryRunner) pollNext(ctx *async.PollContext) async.StreamPoll[bigtrace.QueryResult] {
	if r.finished {
		return async.StreamDone[bigtrace.QueryResult]()
	}
	if r.pending == nil {
		r.submitStep()
	}
	p := r.pending.Poll(ctx)
	if p.Step == async.StepPending {
		return async.StreamPending[bigtrace.QueryResult]()
	}
	r.pending = nil
	if !p.Value.hasMore {
		r.finished = true
		r.release()
	}
	return async.StreamItem(p.Value.item)
}

// drop runs when the query stream is torn down before it finished, whether
// the consumer only ever polled it partway or never polled it at all. It
// interrupts the processor so an in-flight SerializeNext unwinds promptly,
// and defers releasing the busy guard until that in-flight pool step has
// actually returned, since the processor is not safe to hand to a new
// caller while it is.
func (r *queryRunner) drop() {
	if r.finished {
		return
	}
	r.w.processor.Interrupt()
	done := r.pendingDone
	if done == nil {
		r.release()
		return
	}
	go func() {
		<-done
		r.release()
	}()
}

// Query runs sql against the wrapped processor, yielding one QueryResult
// per pump cycle until the processor reports no more rows. Returns an
// immediately-resolved single-item stream carrying an InFlight error if a
// load or query is already running. Dropping the returned stream before it
// completes interrupts the query.
func (w *Wrapper) Query(sql string) async.Stream[bigtrace.QueryResult] {
	if !w.tryAcquire() {
		return async.StreamOf(bigtrace.QueryResult{Err: bigtrace.InFlight("trace processor is busy with another request")})
	}
	r := &queryRunner{w: w, sql: sql}
	return async.StreamFuncWithDrop(r.pollNext, r.drop)
}
