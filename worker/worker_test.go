package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	eventloop "github.com/joeycumines/go-eventloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-bigtrace/async"
	"github.com/joeycumines/go-bigtrace/faketp"
	"github.com/joeycumines/go-bigtrace/runner"
	"github.com/joeycumines/go-bigtrace/traceproc"
)

func startLoop(t *testing.T) async.TaskRunner {
	t.Helper()
	loop, err := eventloop.New()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return runner.New(loop)
}

func drainStream[T any](t *testing.T, r async.TaskRunner, s async.Stream[T]) []T {
	t.Helper()
	rsh, err := async.SpawnStream(r, s)
	require.NoError(t, err)
	defer rsh.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var items []T
	for {
		v, ok, err := rsh.Channel().Recv(ctx)
		require.NoError(t, err)
		if !ok {
			return items
		}
		items = append(items, v)
	}
}

// memEnv is a minimal in-memory bigtraceenv.Environment for tests: each
// path maps to a fixed list of chunks, or to an error yielded as the sole
// stream item.
type memEnv struct {
	mu     sync.Mutex
	chunks map[string][][]byte
	errs   map[string]error
}

func newMemEnv() *memEnv {
	return &memEnv{chunks: map[string][][]byte{}, errs: map[string]error{}}
}

func (e *memEnv) put(path string, chunks ...[]byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.chunks[path] = chunks
}

func (e *memEnv) putErr(path string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs[path] = err
}

func (e *memEnv) ReadFile(path string) async.Stream[async.Result[[]byte]] {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err, ok := e.errs[path]; ok {
		return async.StreamOf(async.ErrResult[[]byte](err))
	}
	chunks := e.chunks[path]
	items := make([]async.Result[[]byte], len(chunks))
	for i, c := range chunks {
		items[i] = async.Ok(c)
	}
	return async.StreamFrom(items)
}

func newFactory(procs *sync.Map, failFor map[string]error) ProcessorFactory {
	return func(path string) (traceproc.Processor, error) {
		if err, ok := failFor[path]; ok {
			return nil, err
		}
		p := faketp.New()
		procs.Store(path, p)
		return p, nil
	}
}

func TestSyncTraceStateLoadsNewTraces(t *testing.T) {
	r := startLoop(t)
	env := newMemEnv()
	env.put("a", []byte("chunk-a"))
	env.put("b", []byte("chunk-b"))

	var procs sync.Map
	w := New(r, env, traceproc.NewGoroutinePool(), newFactory(&procs, nil))

	items := drainStream(t, r, w.SyncTraceState([]string{"a", "b"}))
	require.Len(t, items, 2)
	byTrace := map[string]SyncItem{}
	for _, it := range items {
		byTrace[it.Trace] = it
	}
	assert.Nil(t, byTrace["a"].Status)
	assert.Nil(t, byTrace["b"].Status)
}

func TestSyncTraceStateSkipsAlreadyLoadedTraces(t *testing.T) {
	r := startLoop(t)
	env := newMemEnv()
	env.put("a", []byte("chunk"))

	var procs sync.Map
	w := New(r, env, traceproc.NewGoroutinePool(), newFactory(&procs, nil))

	first := drainStream(t, r, w.SyncTraceState([]string{"a"}))
	require.Len(t, first, 1)

	second := drainStream(t, r, w.SyncTraceState([]string{"a"}))
	assert.Empty(t, second, "re-syncing an already-loaded trace produces no item")
}

func TestSyncTraceStateEvictsRemovedTraces(t *testing.T) {
	r := startLoop(t)
	env := newMemEnv()
	env.put("a", []byte("chunk"))
	env.put("b", []byte("chunk"))

	var procs sync.Map
	w := New(r, env, traceproc.NewGoroutinePool(), newFactory(&procs, nil))

	drainStream(t, r, w.SyncTraceState([]string{"a", "b"}))
	drainStream(t, r, w.SyncTraceState([]string{"a"}))

	results := drainStream(t, r, w.QueryTrace("b", "select 1"))
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Status)
	assert.Equal(t, "trace not found: b", results[0].Status.Message)
}

func TestSyncTraceStateSurfacesLoadFailure(t *testing.T) {
	r := startLoop(t)
	env := newMemEnv()
	env.putErr("bad", fmt.Errorf("disk error"))

	var procs sync.Map
	w := New(r, env, traceproc.NewGoroutinePool(), newFactory(&procs, nil))

	items := drainStream(t, r, w.SyncTraceState([]string{"bad"}))
	require.Len(t, items, 1)
	require.NotNil(t, items[0].Status)

	// Querying a trace left in the load-errored state fails fast with
	// the same status, rather than hanging on an unloaded processor.
	results := drainStream(t, r, w.QueryTrace("bad", "select 1"))
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Status)
}

func TestQueryTraceNotFound(t *testing.T) {
	r := startLoop(t)
	env := newMemEnv()
	var procs sync.Map
	w := New(r, env, traceproc.NewGoroutinePool(), newFactory(&procs, nil))

	results := drainStream(t, r, w.QueryTrace("missing", "select 1"))
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Status)
	assert.Equal(t, "trace not found: missing", results[0].Status.Message)
}

func TestQueryTraceRunsAgainstLoadedTrace(t *testing.T) {
	r := startLoop(t)
	env := newMemEnv()
	env.put("a", []byte("chunk"))

	var procs sync.Map
	w := New(r, env, traceproc.NewGoroutinePool(), newFactory(&procs, nil))

	drainStream(t, r, w.SyncTraceState([]string{"a"}))

	p, ok := procs.Load("a")
	require.True(t, ok)
	p.(*faketp.Processor).Rows = [][]byte{[]byte("row1")}

	results := drainStream(t, r, w.QueryTrace("a", "select 1"))
	require.Len(t, results, 1)
	assert.Nil(t, results[0].Status)
	assert.NoError(t, results[0].Result.Err)
	assert.Equal(t, [][]byte{[]byte("row1")}, results[0].Result.Rows)
}
