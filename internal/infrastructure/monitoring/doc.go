// Package monitoring provides Prometheus metrics for the terminal service.
//
// Metrics live in a private registry exposed through Metrics.Handler, so
// several collectors can coexist in one test binary. Every recording method
// accepts a nil receiver.
package monitoring
