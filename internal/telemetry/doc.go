// Package telemetry provides OpenTelemetry tracing and metrics for ctxgraph.
//
// When enabled it installs global tracer and meter providers that export over
// OTLP (grpc or http/protobuf) to a collector. Instrumented packages obtain
// tracers and meters from the global otel API, so they need no reference to
// this package.
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc
//	  sampling:
//	    rate: 1.0
//	  metrics:
//	    enabled: true
//	    export_interval: 15s
//
// Telemetry failures never stop the process. An exporter that cannot be
// built leaves the instance degraded with no-op providers.
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
