// Package metrics provides a Prometheus-backed Collector implementing both
// worker.Metrics and orchestrator.Metrics, so a single instance can be
// wired into both halves of a deployment and scraped from one endpoint.
package metrics
