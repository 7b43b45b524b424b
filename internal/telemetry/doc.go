// Package telemetry exports run traces and metrics over OTLP.
//
// The orchestrator opens one span per phase and records phase durations on
// an otel histogram. Set telemetry.enabled and point telemetry.endpoint at
// a collector to ship them; gRPC and HTTP/protobuf are supported:
//
//	telemetry:
//	  enabled: true
//	  endpoint: localhost:4317
//	  protocol: grpc
//	  sample_ratio: 1
//	  metric_interval: 15s
//
// Plaintext export is refused unless the collector is on a loopback
// address. Exporter construction failures mark the instance degraded, which
// /healthz reports, but never abort a run.
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
