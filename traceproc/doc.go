// Package traceproc wraps an opaque trace-processor handle (the SQL engine
// over one loaded trace, out of scope per the core's purpose) with the
// serializing, single-flight, statefulness-aware behaviour the rest of the
// system depends on: load a trace from a chunk stream, then run queries
// against it one at a time, interrupting on cancellation.
package traceproc
