// Package metric provides the Prometheus registry, the per-client GraphQL
// metrics and a small HTTP server that exposes them.
//
// Metrics are optional everywhere: components hold a *Metrics that may be nil
// and every Record method is a no-op on a nil receiver.
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(":9090", "/metrics", registry)
//	go server.Start()
//	defer server.Stop(ctx)
//
//	registry.ClientMetrics().RecordOperation("default", "query", false, elapsed)
package metric
