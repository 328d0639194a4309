// Package prometheus exposes engine metrics as a prometheus.Collector.
//
// Counters are named authz_*_total and the Authorize latency histogram is
// authz_authorize_latency_seconds. [Exporter.Handler] serves a private
// registry, so nothing is added to the global default registry.
package prometheus
