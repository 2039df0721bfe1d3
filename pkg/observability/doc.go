// Package observability provides structured logging and Prometheus metrics
// for the Paperbase access-control engine.
//
// Logger wraps stdlib slog with JSON output and chainable field helpers;
// context helpers thread a logger and a request ID through call chains.
// Metrics collects check/restrict counters and latencies, grant mutation
// counts, cache hit rates and janitor activity, and exposes them over a
// standard promhttp handler.
package observability
