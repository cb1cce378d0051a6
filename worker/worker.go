package worker

import (
	"sync"
	"sync/atomic"

	"github.com/joeycumines/go-bigtrace/async"
	"github.com/joeycumines/go-bigtrace/bigtrace"
	"github.com/joeycumines/go-bigtrace/bigtraceenv"
	"github.com/joeycumines/go-bigtrace/traceproc"
)

// ProcessorFactory constructs a fresh, unloaded Processor for a trace
// path. The worker is agnostic to which SQL engine this produces and
// treats the processor as an opaque collaborator.
type ProcessorFactory func(path string) (traceproc.Processor, error)

// Option configures a Worker.
type Option func(*Worker)

// WithLogger overrides the Worker's logger, the default being a no-op.
func WithLogger(logger bigtrace.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

// WithStatefulness overrides the Statefulness every trace on this worker
// loads with. The default is traceproc.Stateless, matching the "stateless:"
// pool prefix reserved for this pool kind (stateful/dedicated pools are
// the cloud_trace_processor variant's, explicitly unimplemented here).
func WithStatefulness(s traceproc.Statefulness) Option {
	return func(w *Worker) { w.statefulness = s }
}

// WithMetrics attaches a metrics sink observing trace loads and queries.
func WithMetrics(m Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// Metrics is the subset of observability a Worker reports through. See
// package metrics for a Prometheus-backed implementation.
type Metrics interface {
	TraceLoaded(path string)
	TraceLoadFailed(path string)
	TraceEvicted(path string)
	QueryStarted(path string)
	QueryFinished(path string)
}

type noOpMetrics struct{}

func (noOpMetrics) TraceLoaded(string)     {}
func (noOpMetrics) TraceLoadFailed(string) {}
func (noOpMetrics) TraceEvicted(string)    {}
func (noOpMetrics) QueryStarted(string)    {}
func (noOpMetrics) QueryFinished(string)   {}

type traceEntry struct {
	wrapper    *traceproc.Wrapper
	loadHandle *async.ResultSpawnHandle[error]
	// loadErr is set when a failed load outcome is read from the
	// SyncTraceState response stream; a query against an entry in this
	// state fails fast with the same Status rather than blocking on a
	// processor that never finished loading.
	loadErr atomic.Pointer[bigtrace.Status]
}

// Worker owns a trace-path → processor map and drives every load/query
// through async.Spawn on its TaskRunner, so loads keep running in the
// background even if nothing is currently observing their status stream.
// The map itself is ordinary Go bookkeeping guarded by a mutex: only the
// Future/Stream combinator trees Worker builds are single-threaded
// cooperative state, driven exclusively on runner's goroutine via Spawn.
type Worker struct {
	runner       async.TaskRunner
	env          bigtraceenv.Environment
	pool         traceproc.BlockingPool
	newProcessor ProcessorFactory
	statefulness traceproc.Statefulness
	logger       bigtrace.Logger
	metrics      Metrics

	mu     sync.Mutex
	traces map[string]*traceEntry
}

// New returns a Worker that spawns its work on runner, reads trace bytes
// via env, runs processor operations on pool, and builds a fresh Processor
// per trace via newProcessor.
func New(runner async.TaskRunner, env bigtraceenv.Environment, pool traceproc.BlockingPool, newProcessor ProcessorFactory, opts ...Option) *Worker {
	w := &Worker{
		runner:       runner,
		env:          env,
		pool:         pool,
		newProcessor: newProcessor,
		statefulness: traceproc.Stateless,
		logger:       bigtrace.NewNoOpLogger(),
		metrics:      noOpMetrics{},
		traces:       make(map[string]*traceEntry),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// SyncItem is one item of a SyncTraceState response stream: the outcome of
// loading one newly-added trace. Status is nil on success.
type SyncItem struct {
	Trace  string
	Status *bigtrace.Status
}

// SyncTraceState makes the worker's loaded-trace set exactly traces:
// existing entries are kept as-is, new paths are loaded, and entries no
// longer present are evicted (cancelling any in-flight load). The returned
// stream yields one SyncItem per newly-loaded trace; pre-existing traces
// produce no item. A failing load surfaces as an Err item on that trace's
// sub-stream without terminating the others.
func (w *Worker) SyncTraceState(traces []string) async.Stream[SyncItem] {
	w.mu.Lock()
	old := w.traces
	next := make(map[string]*traceEntry, len(traces))
	var newStreams []async.Stream[SyncItem]
	for _, path := range traces {
		if e, ok := old[path]; ok {
			next[path] = e
			delete(old, path)
			continue
		}
		e, stream := w.startLoad(path)
		next[path] = e
		newStreams = append(newStreams, stream)
	}
	evicted := old
	w.traces = next
	w.mu.Unlock()

	for path, e := range evicted {
		if e.loadHandle != nil {
			e.loadHandle.Close()
		}
		w.metrics.TraceEvicted(path)
		bigtrace.LogDebug(w.logger, "worker", "evicted trace", map[string]any{"path": path})
	}

	if len(newStreams) == 0 {
		return async.Empty[SyncItem]()
	}
	return async.FlattenStreams(newStreams)
}

func (w *Worker) startLoad(path string) (*traceEntry, async.Stream[SyncItem]) {
	processor, err := w.newProcessor(path)
	if err != nil {
		status := bigtrace.LoadFailure("%s: %v", path, err)
		w.metrics.TraceLoadFailed(path)
		return &traceEntry{}, async.StreamOf(SyncItem{Trace: path, Status: status})
	}

	wrapper := traceproc.NewWrapper(path, processor, w.pool, w.statefulness, traceproc.WithLogger(w.logger))
	chunks := w.env.ReadFile(path)
	loadFut := wrapper.LoadTrace(chunks)
	rsh, spawnErr := async.SpawnStream[error](w.runner, async.StreamFromFuture(loadFut))
	if spawnErr != nil {
		status := bigtrace.LoadFailure("%s: %v", path, spawnErr)
		w.metrics.TraceLoadFailed(path)
		return &traceEntry{wrapper: wrapper}, async.StreamOf(SyncItem{Trace: path, Status: status})
	}

	entry := &traceEntry{wrapper: wrapper, loadHandle: rsh}
	path2 := path
	metrics := w.metrics
	logger := w.logger
	outcome := async.MapStream(async.StreamFromChannel(rsh.Channel()), func(loadErr error) SyncItem {
		if loadErr != nil {
			status := bigtrace.LoadFailure("%s: %v", path2, loadErr)
			entry.loadErr.Store(status)
			metrics.TraceLoadFailed(path2)
			bigtrace.LogWarn(logger, "worker", "trace load failed", loadErr, map[string]any{"path": path2})
			return SyncItem{Trace: path2, Status: status}
		}
		metrics.TraceLoaded(path2)
		bigtrace.LogInfo(logger, "worker", "trace loaded", map[string]any{"path": path2})
		return SyncItem{Trace: path2}
	})
	return entry, outcome
}

// QueryItem is one item of a QueryTrace response stream.
type QueryItem struct {
	Trace  string
	Result bigtrace.QueryResult
	// Status is non-nil only for a worker-level precondition failure
	// (trace not found); a processor-level query error is carried inside
	// Result.Err instead.
	Status *bigtrace.Status
}

// QueryTrace runs sql against tracePath's processor. If tracePath is not
// currently loaded, returns a single-item stream carrying a NotFound
// Status. Dropping the returned stream before it completes interrupts the
// underlying query.
func (w *Worker) QueryTrace(tracePath, sql string) async.Stream[QueryItem] {
	w.mu.Lock()
	entry, ok := w.traces[tracePath]
	w.mu.Unlock()
	if !ok {
		return async.StreamOf(QueryItem{
			Trace:  tracePath,
			Status: bigtrace.NotFound("trace not found: %s", tracePath),
		})
	}
	if entry.wrapper == nil {
		return async.StreamOf(QueryItem{
			Trace:  tracePath,
			Status: bigtrace.NotFound("trace not found: %s", tracePath),
		})
	}
	if status := entry.loadErr.Load(); status != nil {
		return async.StreamOf(QueryItem{Trace: tracePath, Status: status})
	}

	w.metrics.QueryStarted(tracePath)
	qStream := entry.wrapper.Query(sql)
	rsh, err := async.SpawnStream[bigtrace.QueryResult](w.runner, qStream)
	if err != nil {
		w.metrics.QueryFinished(tracePath)
		return async.StreamOf(QueryItem{
			Trace:  tracePath,
			Status: bigtrace.LoadFailure("failed to spawn query: %v", err),
		})
	}

	metrics := w.metrics
	onDone := async.OnDestroy[bigtrace.QueryResult](func() {
		rsh.Close()
		metrics.QueryFinished(tracePath)
	})
	combined := async.Concat(async.StreamFromChannel(rsh.Channel()), onDone)
	return async.MapStream(combined, func(r bigtrace.QueryResult) QueryItem {
		return QueryItem{Trace: tracePath, Result: r}
	})
}
