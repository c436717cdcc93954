// Package server implements the HTTP API: the POST /denoise upload endpoint
// plus health, configuration, statistics and Prometheus endpoints.
//
// Every denoise request leases its own session from the pool, so uploads
// never share recurrent denoiser state. Errors are returned as JSON with the
// request ID that is also sent in the X-Request-ID header.
package server
