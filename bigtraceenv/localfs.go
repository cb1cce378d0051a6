package bigtraceenv

import (
	"io"
	"os"
	"sync"

	"github.com/joeycumines/go-bigtrace/async"
	"github.com/joeycumines/go-bigtrace/traceproc"
)

// DefaultChunkSize is the read size LocalFS uses absent WithChunkSize: the
// chunk size is implementation-defined, typically around 1 MiB.
const DefaultChunkSize = 1 << 20

// Option configures a LocalFS.
type Option func(*LocalFS)

// WithChunkSize overrides DefaultChunkSize.
func WithChunkSize(n int) Option {
	return func(fs *LocalFS) {
		if n > 0 {
			fs.chunkSize = n
		}
	}
}

// LocalFS is an Environment backed by the local filesystem: ReadFile opens
// path and streams it back in fixed-size chunks, one os.File.Read per pump
// cycle, run on pool so a slow disk never blocks a TaskRunner's poll loop.
type LocalFS struct {
	pool      traceproc.BlockingPool
	chunkSize int
}

// NewLocalFS returns a LocalFS that runs its blocking reads on pool.
func NewLocalFS(pool traceproc.BlockingPool, opts ...Option) *LocalFS {
	fs := &LocalFS{pool: pool, chunkSize: DefaultChunkSize}
	for _, opt := range opts {
		opt(fs)
	}
	return fs
}

func (fs *LocalFS) ReadFile(path string) async.Stream[async.Result[[]byte]] {
	r := &fileReader{pool: fs.pool, path: path, chunkSize: fs.chunkSize}
	return async.StreamFuncWithDrop(r.pollNext, r.drop)
}

// readStep is one pump cycle's outcome: a chunk of bytes, optionally the
// last one (eof), or a terminal error.
type readStep struct {
	chunk []byte
	eof   bool
	err   error
}

// fileReader is a single-flight pull state machine, the same shape as
// traceproc's queryRunner: pollNext submits the next step to pool only
// once the previous one has resolved, so r.f is never touched from two
// goroutines at once despite the reads happening off the poll loop.
type fileReader struct {
	pool      traceproc.BlockingPool
	path      string
	chunkSize int

	f        *os.File
	finished bool

	pending     async.Future[readStep]
	pendingDone <-chan struct{}

	releaseOnce sync.Once
}

func (r *fileReader) runStepSync() readStep {
	if r.f == nil {
		f, err := os.Open(r.path)
		if err != nil {
			return readStep{err: err}
		}
		r.f = f
	}
	buf := make([]byte, r.chunkSize)
	n, err := r.f.Read(buf)
	switch {
	case n > 0 && err == nil:
		return readStep{chunk: buf[:n]}
	case n > 0 && err == io.EOF:
		return readStep{chunk: buf[:n], eof: true}
	case err == io.EOF:
		return readStep{eof: true}
	default:
		return readStep{err: err}
	}
}

func (r *fileReader) submitStep() {
	ch, chErr := async.NewChannel[readStep](1)
	done := make(chan struct{})
	if chErr != nil {
		close(done)
		r.pending = async.Val(readStep{err: chErr})
		r.pendingDone = done
		return
	}
	submitErr := r.pool.Submit(func() {
		v := r.runStepSync()
		ch.WriteNonblocking(v)
		ch.Close()
		close(done)
	})
	if submitErr != nil {
		close(done)
		r.pending = async.Val(readStep{err: submitErr})
		r.pendingDone = done
		return
	}
	r.pending = async.FutureFunc(func(ctx *async.PollContext) async.FuturePoll[readStep] {
		rr := ch.ReadNonblocking()
		if rr.Ok {
			return async.Ready(rr.Item)
		}
		ctx.RegisterInterested(ch.ReadHandle())
		return async.Pending[readStep]()
	})
	r.pendingDone = done
}

func (r *fileReader) pollNext(ctx *async.PollContext) async.StreamPoll[async.Result[[]byte]] {
	if r.finished {
		return async.StreamDone[async.Result[[]byte]]()
	}
	if r.pending == nil {
		r.submitStep()
	}
	p := r.pending.Poll(ctx)
	if p.Step == async.StepPending {
		return async.StreamPending[async.Result[[]byte]]()
	}
	r.pending = nil
	step := p.Value

	if step.err != nil {
		r.finished = true
		r.closeFile()
		return async.StreamItem(async.ErrResult[[]byte](step.err))
	}
	if step.eof {
		r.finished = true
		r.closeFile()
	}
	if len(step.chunk) == 0 {
		if r.finished {
			return async.StreamDone[async.Result[[]byte]]()
		}
		return r.pollNext(ctx)
	}
	return async.StreamItem(async.Ok(step.chunk))
}

func (r *fileReader) closeFile() {
	r.releaseOnce.Do(func() {
		if r.f != nil {
			_ = r.f.Close()
		}
	})
}

// drop runs when the chunk stream is torn down before reaching EOF: it
// closes the file once any in-flight pool read returns, since the file
// handle is only safe to close once nothing is reading from it.
func (r *fileReader) drop() {
	if r.finished {
		return
	}
	done := r.pendingDone
	if done == nil {
		r.closeFile()
		return
	}
	go func() {
		<-done
		r.closeFile()
	}()
}
