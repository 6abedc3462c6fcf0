// Package observe provides the telemetry surface for the engine: a JSON
// structured logger, OpenTelemetry tracing and metrics, and the Metrics
// interface every component records through.
//
// Telemetry is strictly fire-and-forget: no component blocks on it, and a
// disabled Observer degrades to no-ops. Bearer tokens and credentials are
// redacted from log output.
package observe
