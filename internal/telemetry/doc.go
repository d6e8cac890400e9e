// Package telemetry wraps OpenTelemetry SDK setup for traces. When
// telemetry is disabled, no exporters are created and the global tracer
// provider remains noop. Metrics are served through Prometheus and stay
// out of this package.
// This package is internal and should not be imported by external projects.
package telemetry
