// Package metrics defines the service's Prometheus metrics. Metrics records
// denoiser sessions, the session pool and the HTTP API.
package metrics
