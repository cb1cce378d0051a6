package orchestrator

import (
	"sync"
	"time"

	"github.com/joeycumines/go-bigtrace/async"
	"github.com/joeycumines/go-bigtrace/bigtrace"
	"github.com/joeycumines/go-bigtrace/worker"
)

// WorkerClient is the subset of worker.Worker the orchestrator drives a
// trace registry entry through. Satisfied directly by *worker.Worker for
// an in-process orchestrator, and by package rpc's client stub for one
// talking to a remote process over go-inprocgrpc.
type WorkerClient interface {
	SyncTraceState(traces []string) async.Stream[worker.SyncItem]
	QueryTrace(tracePath, sql string) async.Stream[worker.QueryItem]
}

// DefaultSyncPeriod is how often the orchestrator re-pushes its registry's
// view of each worker's trace set, absent WithSyncPeriod.
const DefaultSyncPeriod = 15 * time.Second

// TracePool is a named, single-shot set of trace paths. Its id carries the
// "stateless:" prefix reserved for this pool kind; a "stateful:" or
// dedicated-processor pool kind is a cloud_trace_processor-variant concept
// this module does not implement.
type TracePool struct {
	ID     string
	Traces []string
}

type registryEntry struct {
	worker   WorkerClient
	refcount int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger overrides the Orchestrator's logger, the default being a
// no-op.
func WithLogger(logger bigtrace.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithMetrics attaches a metrics sink observing pool and sync activity.
func WithMetrics(m Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithSyncPeriod overrides DefaultSyncPeriod.
func WithSyncPeriod(d time.Duration) Option {
	return func(o *Orchestrator) { o.syncPeriod = d }
}

// Metrics is the subset of observability an Orchestrator reports through.
// See package metrics for a Prometheus-backed implementation.
type Metrics interface {
	PoolCreated(poolID string)
	PoolDestroyed(poolID string)
	TraceAssigned(path string)
	SyncCompleted(err error)
}

type noOpMetrics struct{}

func (noOpMetrics) PoolCreated(string)   {}
func (noOpMetrics) PoolDestroyed(string) {}
func (noOpMetrics) TraceAssigned(string) {}
func (noOpMetrics) SyncCompleted(error)  {}

// Orchestrator owns the pool and trace-registry bookkeeping. Every public
// method is safe to call from any goroutine: the maps
// are guarded by an ordinary mutex, since they are plain bookkeeping
// rather than cooperative poll state. The actual async work it drives
// (fanning a query out to workers, periodically syncing worker state)
// is built from async.Stream/Future combinator trees, run exclusively on
// runner via Spawn/SpawnStream, exactly as package worker does for its own
// per-trace work.
type Orchestrator struct {
	runner     async.TaskRunner
	logger     bigtrace.Logger
	metrics    Metrics
	syncPeriod time.Duration

	mu         sync.Mutex
	workers    []WorkerClient
	nextWorker int
	pools      map[string]*TracePool
	traces     map[string]*registryEntry

	syncTask    *async.PeriodicTask
	syncHandle  *async.SpawnHandle
	syncRunning bool
}

// New returns an Orchestrator that fans queries and sync traffic out
// across workers, driving all of it on runner. Call Start to begin the
// periodic sync loop.
func New(runner async.TaskRunner, workers []WorkerClient, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		runner:     runner,
		logger:     bigtrace.NewNoOpLogger(),
		metrics:    noOpMetrics{},
		syncPeriod: DefaultSyncPeriod,
		workers:    append([]WorkerClient(nil), workers...),
		pools:      make(map[string]*TracePool),
		traces:     make(map[string]*registryEntry),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.syncTask = async.NewPeriodicTask(runner)
	return o
}

// Start begins the periodic worker-sync loop, firing its first pass
// immediately.
func (o *Orchestrator) Start() {
	o.syncTask.Start(async.PeriodicTaskArgs{
		Task:                      o.ExecuteSyncWorkers,
		Period:                    o.syncPeriod,
		StartFirstTaskImmediately: true,
	})
}

// Stop halts the periodic worker-sync loop and cancels any in-flight pass.
func (o *Orchestrator) Stop() {
	o.syncTask.Stop()
	o.mu.Lock()
	h := o.syncHandle
	o.syncHandle = nil
	o.mu.Unlock()
	if h != nil {
		h.Close()
	}
}

// TracePoolCreate creates a new, empty pool named "stateless:"+poolName.
// Rejects an empty name or a name already in use.
func (o *Orchestrator) TracePoolCreate(args bigtrace.TracePoolCreateArgs) (bigtrace.TracePoolCreateResponse, *bigtrace.Status) {
	if args.PoolName == "" {
		return bigtrace.TracePoolCreateResponse{}, bigtrace.InvalidArgument("pool_name must not be empty")
	}
	id := "stateless:" + args.PoolName

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.pools[id]; exists {
		return bigtrace.TracePoolCreateResponse{}, bigtrace.AlreadyExists("trace pool already exists: %s", id)
	}
	o.pools[id] = &TracePool{ID: id}
	o.metrics.PoolCreated(id)
	bigtrace.LogInfo(o.logger, "orchestrator", "trace pool created", map[string]any{"pool_id": id})
	return bigtrace.TracePoolCreateResponse{PoolID: id}, nil
}

// TracePoolSetTraces assigns a pool's (one-shot) trace set, round-robin
// assigning any path new to the registry to the next worker in sequence
// and bumping the refcount of any path already tracked. Rejects a pool
// that does not exist or that already has a trace set.
func (o *Orchestrator) TracePoolSetTraces(args bigtrace.TracePoolSetTracesArgs) (bigtrace.TracePoolSetTracesResponse, *bigtrace.Status) {
	o.mu.Lock()
	pool, ok := o.pools[args.PoolID]
	if !ok {
		o.mu.Unlock()
		return bigtrace.TracePoolSetTracesResponse{}, bigtrace.NotFound("trace pool not found: %s", args.PoolID)
	}
	if len(pool.Traces) > 0 {
		o.mu.Unlock()
		return bigtrace.TracePoolSetTracesResponse{}, bigtrace.AlreadyExists("trace pool %s already has a trace set assigned", args.PoolID)
	}
	if len(args.Traces) > 0 && len(o.workers) == 0 {
		o.mu.Unlock()
		return bigtrace.TracePoolSetTracesResponse{}, bigtrace.InvalidArgument("no workers registered")
	}

	for _, path := range args.Traces {
		if e, exists := o.traces[path]; exists {
			e.refcount++
			continue
		}
		w := o.workers[o.nextWorker%len(o.workers)]
		o.nextWorker++
		o.traces[path] = &registryEntry{worker: w, refcount: 1}
		o.metrics.TraceAssigned(path)
	}
	pool.Traces = append([]string(nil), args.Traces...)
	o.mu.Unlock()

	bigtrace.LogInfo(o.logger, "orchestrator", "trace pool traces assigned", map[string]any{"pool_id": args.PoolID, "count": len(args.Traces)})
	// Push the new assignments to their workers right away rather than
	// waiting for the next periodic tick.
	o.ExecuteSyncWorkers()
	return bigtrace.TracePoolSetTracesResponse{}, nil
}

// TracePoolQuery runs sql against every trace in the named pool, fanning
// the per-trace QueryTrace calls out to their assigned workers and
// flattening the resulting streams into one response stream. Returns a
// single-item error stream if the pool does not exist.
func (o *Orchestrator) TracePoolQuery(args bigtrace.TracePoolQueryArgs) async.Stream[bigtrace.TracePoolQueryResponse] {
	o.mu.Lock()
	pool, ok := o.pools[args.PoolID]
	if !ok {
		o.mu.Unlock()
		return async.StreamOf(bigtrace.TracePoolQueryResponse{
			Status: bigtrace.NotFound("trace pool not found: %s", args.PoolID),
		})
	}
	paths := append([]string(nil), pool.Traces...)
	streams := make([]async.Stream[bigtrace.TracePoolQueryResponse], 0, len(paths))
	for _, path := range paths {
		e, exists := o.traces[path]
		if !exists {
			streams = append(streams, async.StreamOf(bigtrace.TracePoolQueryResponse{
				Trace:  path,
				Status: bigtrace.NotFound("trace registry entry missing for: %s", path),
			}))
			continue
		}
		w := e.worker
		streams = append(streams, async.MapStream(w.QueryTrace(path, args.SQLQuery), func(item worker.QueryItem) bigtrace.TracePoolQueryResponse {
			if item.Status != nil {
				return bigtrace.TracePoolQueryResponse{Trace: item.Trace, Status: item.Status}
			}
			return bigtrace.TracePoolQueryResponse{Trace: item.Trace, Result: bigtrace.EncodeQueryResult(item.Result)}
		}))
	}
	o.mu.Unlock()

	if len(streams) == 0 {
		return async.Empty[bigtrace.TracePoolQueryResponse]()
	}
	return async.FlattenStreams(streams)
}

// TracePoolDestroy tears down a pool. It decrements the refcount of every
// entry currently in the trace registry, not only the destroyed pool's own
// paths: the behavior this implementation is grounded on iterates the
// whole registry table unconditionally on every destroy, and that choice
// is preserved here rather than "fixed" (see DESIGN.md). Entries whose
// refcount reaches zero are evicted from the registry.
func (o *Orchestrator) TracePoolDestroy(args bigtrace.TracePoolDestroyArgs) (bigtrace.TracePoolDestroyResponse, *bigtrace.Status) {
	o.mu.Lock()
	if _, ok := o.pools[args.PoolID]; !ok {
		o.mu.Unlock()
		return bigtrace.TracePoolDestroyResponse{}, bigtrace.NotFound("trace pool not found: %s", args.PoolID)
	}
	delete(o.pools, args.PoolID)
	for path, e := range o.traces {
		e.refcount--
		if e.refcount <= 0 {
			delete(o.traces, path)
		}
	}
	o.mu.Unlock()

	o.metrics.PoolDestroyed(args.PoolID)
	bigtrace.LogInfo(o.logger, "orchestrator", "trace pool destroyed", map[string]any{"pool_id": args.PoolID})
	return bigtrace.TracePoolDestroyResponse{}, nil
}

// groupByWorkerLocked inverts the trace registry into a worker → paths
// map reflecting the orchestrator's current view of what each worker
// should have loaded. Caller must hold o.mu.
func (o *Orchestrator) groupByWorkerLocked() map[WorkerClient][]string {
	grouped := make(map[WorkerClient][]string)
	for path, e := range o.traces {
		grouped[e.worker] = append(grouped[e.worker], path)
	}
	return grouped
}

// ExecuteSyncWorkers pushes the orchestrator's current registry view to
// every worker that owns at least one trace, unless a previous pass is
// still in flight (in which case this call is a no-op; the next periodic
// tick, or a future explicit call, will pick up any changes made in the
// meantime). ExecuteForceSyncWorkers bypasses that guard.
func (o *Orchestrator) ExecuteSyncWorkers() {
	o.mu.Lock()
	if o.syncRunning {
		o.mu.Unlock()
		return
	}
	o.syncRunning = true
	o.mu.Unlock()
	o.syncWorkers()
}

// ExecuteForceSyncWorkers runs a sync pass even if one is already running,
// for callers (tests, an explicit admin RPC) that need to wait for a fresh
// pass rather than an indefinitely-delayed one. Any in-flight pass's handle
// is dropped (cancelling it) before the new one starts, the same way Stop
// tears down a pass, so the two passes never overlap.
func (o *Orchestrator) ExecuteForceSyncWorkers() {
	o.mu.Lock()
	h := o.syncHandle
	o.syncHandle = nil
	o.syncRunning = true
	o.mu.Unlock()
	if h != nil {
		h.Close()
	}
	o.syncWorkers()
}

func (o *Orchestrator) syncWorkers() {
	o.mu.Lock()
	grouped := o.groupByWorkerLocked()
	o.mu.Unlock()

	streams := make([]async.Stream[error], 0, len(grouped))
	for w, paths := range grouped {
		wCopy := w
		pathsCopy := paths
		streams = append(streams, async.MapStream(wCopy.SyncTraceState(pathsCopy), func(item worker.SyncItem) error {
			if item.Status != nil {
				return item.Status
			}
			return nil
		}))
	}

	var overall async.Future[error]
	if len(streams) == 0 {
		overall = async.Val[error](nil)
	} else {
		overall = async.CollectAllOk(async.FlattenStreams(streams))
	}

	logger := o.logger
	metrics := o.metrics
	finishing := async.ContinueWith(overall, func(err error) async.Future[async.Void] {
		o.mu.Lock()
		o.syncRunning = false
		o.mu.Unlock()
		metrics.SyncCompleted(err)
		if err != nil {
			bigtrace.LogWarn(logger, "orchestrator", "worker sync encountered an error", err, nil)
		} else {
			bigtrace.LogDebug(logger, "orchestrator", "worker sync completed", nil)
		}
		return async.Val(async.Void{})
	})

	handle := async.Spawn(o.runner, finishing)
	o.mu.Lock()
	o.syncHandle = handle
	o.mu.Unlock()
}
