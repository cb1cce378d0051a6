// Package bigtrace holds the types shared across the orchestrator, worker,
// and rpc packages: the logical request/response message shapes exchanged
// between orchestrator and workers, the Status/Code error taxonomy used for
// orchestrator/worker-level preconditions, the QueryResult payload shape
// used to carry processor-level query outcomes, and a small structured
// logging interface every other package in this module accepts via a
// functional WithLogger option.
package bigtrace
