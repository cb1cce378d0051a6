// Package worker implements the trace-query worker: it owns a set of loaded
// traces, each backed by a traceproc.Wrapper, and exposes the two RPCs an
// orchestrator drives it through: SyncTraceState (reconcile the loaded set)
// and QueryTrace (run sql against one of them).
package worker
