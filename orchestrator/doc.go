// Package orchestrator implements the trace-query orchestrator: it owns named
// trace pools and a flat trace registry shared across them, assigns each
// newly-registered trace to a worker round-robin, fans queries out across
// per-pool workers, and periodically reconciles every worker's loaded-trace
// set against the registry so a crashed or newly-joined worker converges
// without manual intervention.
package orchestrator
