package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation status label values
const (
	StatusOK       = "ok"
	StatusNotFound = "not_found"
	StatusError    = "error"
)

// Collector records document store operations
type Collector struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	DocumentsInserted *prometheus.CounterVec
}

// New creates a Collector and registers it with reg. A nil reg leaves the
// metrics unregistered, which is convenient in tests.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "docstore",
				Name:      "operations_total",
				Help:      "Total number of document store operations",
			},
			[]string{"collection", "operation", "status"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "docstore",
				Name:      "operation_duration_seconds",
				Help:      "Document store operation duration in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"collection", "operation"},
		),
		DocumentsInserted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "docstore",
				Name:      "documents_inserted_total",
				Help:      "Total number of documents inserted",
			},
			[]string{"collection"},
		),
	}

	if reg == nil {
		return c, nil
	}
	var err error
	if c.OperationsTotal, err = register(reg, c.OperationsTotal); err != nil {
		return nil, err
	}
	if c.OperationDuration, err = register(reg, c.OperationDuration); err != nil {
		return nil, err
	}
	if c.DocumentsInserted, err = register(reg, c.DocumentsInserted); err != nil {
		return nil, err
	}
	return c, nil
}

// register adds col to reg, returning the already registered collector
// when an identical one exists.
func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return col, err
	}
	return col, nil
}

// Observe records one finished operation
func (c *Collector) Observe(collection, operation, status string, started time.Time) {
	if c == nil {
		return
	}
	c.OperationsTotal.WithLabelValues(collection, operation, status).Inc()
	c.OperationDuration.WithLabelValues(collection, operation).Observe(time.Since(started).Seconds())
}

// Inserted counts a stored document
func (c *Collector) Inserted(collection string) {
	if c == nil {
		return
	}
	c.DocumentsInserted.WithLabelValues(collection).Inc()
}

// StatusOf maps an operation error to a status label
func StatusOf(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}
