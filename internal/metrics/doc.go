// Package metrics exposes Prometheus instrumentation for document store operations.
package metrics
