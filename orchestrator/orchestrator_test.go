package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	eventloop "github.com/joeycumines/go-eventloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-bigtrace/async"
	"github.com/joeycumines/go-bigtrace/bigtrace"
	"github.com/joeycumines/go-bigtrace/runner"
	"github.com/joeycumines/go-bigtrace/worker"
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

// fakeWorker is a controllable WorkerClient: it records every sync call it
// receives and serves queries from a static, per-trace row set.
type fakeWorker struct {
	mu        sync.Mutex
	syncCalls [][]string
	rows      map[string][][]byte
}

func newFakeWorker() *fakeWorker {
	return &fakeWorker{rows: map[string][][]byte{}}
}

func (w *fakeWorker) SyncTraceState(traces []string) async.Stream[worker.SyncItem] {
	w.mu.Lock()
	w.syncCalls = append(w.syncCalls, append([]string(nil), traces...))
	w.mu.Unlock()
	items := make([]worker.SyncItem, len(traces))
	for i, t := range traces {
		items[i] = worker.SyncItem{Trace: t}
	}
	return async.StreamFrom(items)
}

func (w *fakeWorker) QueryTrace(tracePath, sql string) async.Stream[worker.QueryItem] {
	w.mu.Lock()
	rows, ok := w.rows[tracePath]
	w.mu.Unlock()
	if !ok {
		return async.StreamOf(worker.QueryItem{
			Trace:  tracePath,
			Status: bigtrace.NotFound("trace not found: %s", tracePath),
		})
	}
	return async.StreamOf(worker.QueryItem{Trace: tracePath, Result: bigtrace.QueryResult{Rows: rows}})
}

func (w *fakeWorker) syncCallCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.syncCalls)
}

func TestTracePoolCreateRejectsEmptyNameAndDuplicates(t *testing.T) {
	r := startLoop(t)
	o := New(r, nil)

	_, status := o.TracePoolCreate(bigtrace.TracePoolCreateArgs{PoolName: ""})
	require.NotNil(t, status)
	assert.Equal(t, bigtrace.CodeInvalidArgument, status.Code)

	resp, status := o.TracePoolCreate(bigtrace.TracePoolCreateArgs{PoolName: "p1"})
	require.Nil(t, status)
	assert.Equal(t, "stateless:p1", resp.PoolID)

	_, status = o.TracePoolCreate(bigtrace.TracePoolCreateArgs{PoolName: "p1"})
	require.NotNil(t, status)
	assert.Equal(t, bigtrace.CodeAlreadyExists, status.Code)
}

func TestTracePoolSetTracesAssignsRoundRobinAndRejectsIncrementalUpdates(t *testing.T) {
	r := startLoop(t)
	w0, w1 := newFakeWorker(), newFakeWorker()
	o := New(r, []WorkerClient{w0, w1})

	resp, status := o.TracePoolCreate(bigtrace.TracePoolCreateArgs{PoolName: "p1"})
	require.Nil(t, status)
	poolID := resp.PoolID

	_, status = o.TracePoolSetTraces(bigtrace.TracePoolSetTracesArgs{PoolID: poolID, Traces: []string{"x", "y", "z"}})
	require.Nil(t, status)

	o.mu.Lock()
	assert.Equal(t, WorkerClient(w0), o.traces["x"].worker)
	assert.Equal(t, WorkerClient(w1), o.traces["y"].worker)
	assert.Equal(t, WorkerClient(w0), o.traces["z"].worker)
	assert.Equal(t, 1, o.traces["x"].refcount)
	o.mu.Unlock()

	_, status = o.TracePoolSetTraces(bigtrace.TracePoolSetTracesArgs{PoolID: poolID, Traces: []string{"w"}})
	require.NotNil(t, status)
	assert.Equal(t, bigtrace.CodeAlreadyExists, status.Code)

	_, status = o.TracePoolSetTraces(bigtrace.TracePoolSetTracesArgs{PoolID: "stateless:missing", Traces: []string{"w"}})
	require.NotNil(t, status)
	assert.Equal(t, bigtrace.CodeNotFound, status.Code)
}

func TestTracePoolSetTracesSharesRefcountAcrossPools(t *testing.T) {
	r := startLoop(t)
	w0 := newFakeWorker()
	o := New(r, []WorkerClient{w0})

	r1, _ := o.TracePoolCreate(bigtrace.TracePoolCreateArgs{PoolName: "p1"})
	r2, _ := o.TracePoolCreate(bigtrace.TracePoolCreateArgs{PoolName: "p2"})

	_, status := o.TracePoolSetTraces(bigtrace.TracePoolSetTracesArgs{PoolID: r1.PoolID, Traces: []string{"x", "y"}})
	require.Nil(t, status)
	_, status = o.TracePoolSetTraces(bigtrace.TracePoolSetTracesArgs{PoolID: r2.PoolID, Traces: []string{"x"}})
	require.Nil(t, status)

	o.mu.Lock()
	assert.Equal(t, 2, o.traces["x"].refcount)
	assert.Equal(t, 1, o.traces["y"].refcount)
	o.mu.Unlock()
}

func TestTracePoolQueryFansOutAndFlattens(t *testing.T) {
	r := startLoop(t)
	w0, w1 := newFakeWorker(), newFakeWorker()
	w0.rows["x"] = [][]byte{[]byte("row-x")}
	w1.rows["y"] = [][]byte{[]byte("row-y")}
	o := New(r, []WorkerClient{w0, w1})

	resp, _ := o.TracePoolCreate(bigtrace.TracePoolCreateArgs{PoolName: "p1"})
	_, status := o.TracePoolSetTraces(bigtrace.TracePoolSetTracesArgs{PoolID: resp.PoolID, Traces: []string{"x", "y"}})
	require.Nil(t, status)

	items := drainStream(t, r, o.TracePoolQuery(bigtrace.TracePoolQueryArgs{PoolID: resp.PoolID, SQLQuery: "select 1"}))
	require.Len(t, items, 2)
	byTrace := map[string]bigtrace.TracePoolQueryResponse{}
	for _, it := range items {
		byTrace[it.Trace] = it
	}
	decodedX, err := bigtrace.DecodeQueryResult(byTrace["x"].Result)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("row-x")}, decodedX.Rows)
	decodedY, err := bigtrace.DecodeQueryResult(byTrace["y"].Result)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("row-y")}, decodedY.Rows)
}

func TestTracePoolQueryNotFound(t *testing.T) {
	r := startLoop(t)
	o := New(r, nil)

	items := drainStream(t, r, o.TracePoolQuery(bigtrace.TracePoolQueryArgs{PoolID: "stateless:missing"}))
	require.Len(t, items, 1)
	require.NotNil(t, items[0].Status)
	assert.Equal(t, bigtrace.CodeNotFound, items[0].Status.Code)
}

func TestTracePoolDestroyDecrementsEntireRegistry(t *testing.T) {
	// TracePoolDestroy iterates the whole trace registry, not just the
	// destroyed pool's own paths: a trace referenced only by a surviving
	// pool still loses a refcount it should, by conservation, have kept.
	r := startLoop(t)
	w0 := newFakeWorker()
	o := New(r, []WorkerClient{w0})

	p1, _ := o.TracePoolCreate(bigtrace.TracePoolCreateArgs{PoolName: "p1"})
	p2, _ := o.TracePoolCreate(bigtrace.TracePoolCreateArgs{PoolName: "p2"})
	_, status := o.TracePoolSetTraces(bigtrace.TracePoolSetTracesArgs{PoolID: p1.PoolID, Traces: []string{"shared"}})
	require.Nil(t, status)
	_, status = o.TracePoolSetTraces(bigtrace.TracePoolSetTracesArgs{PoolID: p2.PoolID, Traces: []string{"shared", "p2-only"}})
	require.Nil(t, status)

	o.mu.Lock()
	require.Equal(t, 2, o.traces["shared"].refcount)
	o.mu.Unlock()

	_, status = o.TracePoolDestroy(bigtrace.TracePoolDestroyArgs{PoolID: p1.PoolID})
	require.Nil(t, status)

	o.mu.Lock()
	assert.Equal(t, 1, o.traces["shared"].refcount)
	_, p2OnlyPresent := o.traces["p2-only"]
	o.mu.Unlock()
	assert.False(t, p2OnlyPresent, "p2-only was never in p1, yet destroying p1 evicts it")

	_, status = o.TracePoolDestroy(bigtrace.TracePoolDestroyArgs{PoolID: p2.PoolID})
	require.Nil(t, status)

	o.mu.Lock()
	_, stillPresent := o.traces["shared"]
	o.mu.Unlock()
	assert.False(t, stillPresent)
}

func TestExecuteSyncWorkersPushesRegistryToWorkers(t *testing.T) {
	r := startLoop(t)
	w0 := newFakeWorker()
	o := New(r, []WorkerClient{w0})

	resp, _ := o.TracePoolCreate(bigtrace.TracePoolCreateArgs{PoolName: "p1"})
	_, status := o.TracePoolSetTraces(bigtrace.TracePoolSetTracesArgs{PoolID: resp.PoolID, Traces: []string{"x"}})
	require.Nil(t, status)

	require.Eventually(t, func() bool { return w0.syncCallCount() >= 1 }, time.Second, 5*time.Millisecond)
}

// blockingFirstSyncWorker is a WorkerClient whose first SyncTraceState call
// returns a stream that never resolves on its own, so a test can hold a
// sync pass "in flight" for real rather than faking it by poking
// Orchestrator.syncRunning directly. It records whether that first call's
// stream was ever dropped (cancelled), as opposed to left to complete or
// simply abandoned. Every subsequent call resolves immediately.
type blockingFirstSyncWorker struct {
	mu    sync.Mutex
	calls int

	started   chan struct{}
	cancelled chan struct{}
	wait      *async.Channel[worker.SyncItem]
}

func newBlockingFirstSyncWorker(t *testing.T) *blockingFirstSyncWorker {
	ch, err := async.NewChannel[worker.SyncItem](1)
	require.NoError(t, err)
	return &blockingFirstSyncWorker{
		started:   make(chan struct{}),
		cancelled: make(chan struct{}),
		wait:      ch,
	}
}

func (w *blockingFirstSyncWorker) SyncTraceState(traces []string) async.Stream[worker.SyncItem] {
	w.mu.Lock()
	w.calls++
	first := w.calls == 1
	w.mu.Unlock()
	if !first {
		items := make([]worker.SyncItem, len(traces))
		for i, tr := range traces {
			items[i] = worker.SyncItem{Trace: tr}
		}
		return async.StreamFrom(items)
	}
	close(w.started)
	return async.StreamFuncWithDrop(
		func(ctx *async.PollContext) async.StreamPoll[worker.SyncItem] {
			// w.wait is never written to or closed, so this never makes
			// progress on its own; only Drop (cancellation) ends it.
			ctx.RegisterInterested(w.wait.ReadHandle())
			return async.StreamPending[worker.SyncItem]()
		},
		func() { close(w.cancelled) },
	)
}

func (w *blockingFirstSyncWorker) QueryTrace(tracePath, sql string) async.Stream[worker.QueryItem] {
	return async.StreamOf(worker.QueryItem{Trace: tracePath})
}

func (w *blockingFirstSyncWorker) callCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

func TestExecuteForceSyncWorkersCancelsInFlightPass(t *testing.T) {
	r := startLoop(t)
	w0 := newBlockingFirstSyncWorker(t)
	o := New(r, []WorkerClient{w0})

	resp, _ := o.TracePoolCreate(bigtrace.TracePoolCreateArgs{PoolName: "p1"})
	_, status := o.TracePoolSetTraces(bigtrace.TracePoolSetTracesArgs{PoolID: resp.PoolID, Traces: []string{"x"}})
	require.Nil(t, status)

	select {
	case <-w0.started:
	case <-time.After(time.Second):
		t.Fatal("first sync pass never called SyncTraceState")
	}

	// The first pass is now genuinely stuck: its stream will never resolve
	// on its own. ExecuteForceSyncWorkers must cancel it, not let it run
	// alongside a second pass.
	o.ExecuteForceSyncWorkers()

	select {
	case <-w0.cancelled:
	case <-time.After(time.Second):
		t.Fatal("ExecuteForceSyncWorkers did not cancel the in-flight pass")
	}

	require.Eventually(t, func() bool { return w0.callCount() >= 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		o.mu.Lock()
		defer o.mu.Unlock()
		return !o.syncRunning
	}, time.Second, 5*time.Millisecond)
}

func TestExecuteSyncWorkersSkipsOverlappingRun(t *testing.T) {
	r := startLoop(t)
	w0 := newFakeWorker()
	o := New(r, []WorkerClient{w0})

	o.mu.Lock()
	o.syncRunning = true
	o.mu.Unlock()

	o.ExecuteSyncWorkers()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, w0.syncCallCount())

	o.mu.Lock()
	o.syncRunning = false
	o.mu.Unlock()
	o.ExecuteForceSyncWorkers()
	require.Eventually(t, func() bool { return w0.syncCallCount() >= 1 }, time.Second, 5*time.Millisecond)
}
