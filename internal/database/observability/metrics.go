// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package observability

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/qolzam/docstore/internal/database/interfaces"
)

// Operation status labels
const (
	StatusOK        = "ok"
	StatusError     = "error"
	StatusDuplicate = "duplicate"
	StatusConflict  = "conflict"
)

// MetricsCollector records store operations as Prometheus metrics
type MetricsCollector struct {
	operations   *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	filterErrors prometheus.Counter
}

// NewMetricsCollector registers the store metrics on reg
func NewMetricsCollector(reg prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(reg)
	return &MetricsCollector{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docstore_operations_total",
				Help: "Total number of executed store operations",
			},
			[]string{"collection", "operation", "status"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docstore_operation_duration_seconds",
				Help:    "Latency of executed store operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"collection", "operation"},
		),
		filterErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "docstore_filter_errors_total",
				Help: "Total number of filter texts rejected by the parser",
			},
		),
	}
}

// Global metrics collector instance
var globalMetrics = NewMetricsCollector(prometheus.DefaultRegisterer)

// GetGlobalMetrics returns the global metrics collector
func GetGlobalMetrics() *MetricsCollector {
	return globalMetrics
}

// Observe records one finished operation started at start
func (mc *MetricsCollector) Observe(collection, operation string, start time.Time, err error) {
	mc.operations.WithLabelValues(collection, operation, Status(err)).Inc()
	mc.duration.WithLabelValues(collection, operation).Observe(time.Since(start).Seconds())
}

// FilterError counts a rejected filter text
func (mc *MetricsCollector) FilterError() {
	mc.filterErrors.Inc()
}

// Status maps an operation error onto its status label
func Status(err error) string {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, interfaces.ErrDuplicateKey):
		return StatusDuplicate
	case errors.Is(err, interfaces.ErrWriteConflict):
		return StatusConflict
	}
	return StatusError
}
