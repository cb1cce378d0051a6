package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joeycumines/go-bigtrace/orchestrator"
	"github.com/joeycumines/go-bigtrace/worker"
)

var (
	_ worker.Metrics       = (*Collector)(nil)
	_ orchestrator.Metrics = (*Collector)(nil)
)

// Collector is a Prometheus-backed implementation of worker.Metrics and
// orchestrator.Metrics. It registers against a dedicated *prometheus.Registry
// rather than the global default registry, so more than one Collector can
// coexist in a process (one per orchestrator, say, in a test binary that
// spins up several) without a MustRegister panic on the second instance.
type Collector struct {
	registry *prometheus.Registry

	tracesLoaded     prometheus.Counter
	tracesLoadFailed prometheus.Counter
	tracesEvicted    prometheus.Counter
	queriesInFlight  prometheus.Gauge
	queriesTotal     prometheus.Counter

	poolsCreated   prometheus.Counter
	poolsDestroyed prometheus.Counter
	tracesAssigned prometheus.Counter
	syncTotal      *prometheus.CounterVec
}

// NewCollector returns a Collector with all metrics registered against a
// fresh registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		tracesLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bigtrace_worker_traces_loaded_total",
			Help: "Total number of traces successfully loaded by a worker.",
		}),
		tracesLoadFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bigtrace_worker_trace_load_failures_total",
			Help: "Total number of trace loads that failed.",
		}),
		tracesEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bigtrace_worker_traces_evicted_total",
			Help: "Total number of traces evicted by a SyncTraceState call.",
		}),
		queriesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bigtrace_worker_queries_in_flight",
			Help: "Current number of queries being served by a worker.",
		}),
		queriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bigtrace_worker_queries_total",
			Help: "Total number of queries a worker has finished serving.",
		}),
		poolsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bigtrace_orchestrator_pools_created_total",
			Help: "Total number of trace pools created.",
		}),
		poolsDestroyed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bigtrace_orchestrator_pools_destroyed_total",
			Help: "Total number of trace pools destroyed.",
		}),
		tracesAssigned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bigtrace_orchestrator_traces_assigned_total",
			Help: "Total number of trace paths newly assigned to a worker.",
		}),
		syncTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bigtrace_orchestrator_sync_passes_total",
			Help: "Total number of periodic worker-sync passes, by outcome.",
		}, []string{"outcome"}),
	}
	c.registry.MustRegister(
		c.tracesLoaded,
		c.tracesLoadFailed,
		c.tracesEvicted,
		c.queriesInFlight,
		c.queriesTotal,
		c.poolsCreated,
		c.poolsDestroyed,
		c.tracesAssigned,
		c.syncTotal,
	)
	return c
}

// Registry returns the registry this Collector's metrics live in, for a
// caller wiring it into something other than Handler (a multi-registry
// promhttp.Handler, for instance).
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler returns an http.Handler serving this Collector's metrics in the
// Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) TraceLoaded(string)     { c.tracesLoaded.Inc() }
func (c *Collector) TraceLoadFailed(string) { c.tracesLoadFailed.Inc() }
func (c *Collector) TraceEvicted(string)    { c.tracesEvicted.Inc() }
func (c *Collector) QueryStarted(string)    { c.queriesInFlight.Inc() }
func (c *Collector) QueryFinished(string) {
	c.queriesInFlight.Dec()
	c.queriesTotal.Inc()
}

func (c *Collector) PoolCreated(string)   { c.poolsCreated.Inc() }
func (c *Collector) PoolDestroyed(string) { c.poolsDestroyed.Inc() }
func (c *Collector) TraceAssigned(string) { c.tracesAssigned.Inc() }
func (c *Collector) SyncCompleted(err error) {
	if err != nil {
		c.syncTotal.WithLabelValues("error").Inc()
		return
	}
	c.syncTotal.WithLabelValues("ok").Inc()
}
