// Package observability provides structured logging, Prometheus metrics,
// optional OpenTelemetry tracing, health probes, and graceful-shutdown
// coordination for the bot service.
package observability
