// Package stream pools denoiser sessions for concurrent requests. Every
// request leases its own session, so recurrent denoiser state never leaks
// between uploads, and the pool bounds how many native states exist at once.
package stream
