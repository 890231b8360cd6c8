// Package metrics provides internal Prometheus metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/hustlerlabs/hustler/event"
)

// Collector registers and records engine metrics on its own registry, so
// multiple collectors can coexist in one process.
type Collector struct {
	registry *prometheus.Registry

	runsTotal           *prometheus.CounterVec
	tasksTotal          *prometheus.CounterVec
	branchesEnded       prometheus.Counter
	retriesTotal        *prometheus.CounterVec
	retryExhaustedTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates a collector under the given metric namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of runs by terminal status",
		},
		[]string{"status"}, // completed, failed
	)

	c.tasksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_executed_total",
			Help:      "Total number of task steps executed",
		},
		[]string{"task"},
	)

	c.branchesEnded = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "branches_ended_total",
			Help:      "Total number of branches terminated on an unlinked route",
		},
	)

	c.retriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Total number of retry attempts",
		},
		[]string{"source"},
	)

	c.retryExhaustedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_exhausted_total",
			Help:      "Total number of operations that failed permanently",
		},
		[]string{"source"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// Registry exposes the collector's registry for scraping handlers.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordRun records one finished run.
func (c *Collector) RecordRun(status string) {
	c.runsTotal.WithLabelValues(status).Inc()
}

// RecordTask records one executed task step.
func (c *Collector) RecordTask(task string) {
	c.tasksTotal.WithLabelValues(task).Inc()
}

// RecordBranchEnd records a branch terminating on an unlinked route.
func (c *Collector) RecordBranchEnd() {
	c.branchesEnded.Inc()
}

// RecordRetry records one retry attempt for source.
func (c *Collector) RecordRetry(source string) {
	c.retriesTotal.WithLabelValues(source).Inc()
}

// RecordRetryExhausted records a permanent failure for source.
func (c *Collector) RecordRetryExhausted(source string) {
	c.retryExhaustedTotal.WithLabelValues(source).Inc()
}

// Sink adapts the collector to the engine's event stream. Unknown event
// names are ignored.
func (c *Collector) Sink() event.Sink {
	return event.SinkFunc(func(e event.Event) {
		switch e.Name {
		case event.RunComplete:
			c.RecordRun("completed")
		case event.RunFailed:
			c.RecordRun("failed")
		case event.TaskComplete:
			c.RecordTask(fieldString(e, "task"))
		case event.BranchEnd:
			c.RecordBranchEnd()
		case event.RetryAttempt:
			c.RecordRetry(fieldString(e, "source"))
		case event.RetryExhausted:
			c.RecordRetryExhausted(fieldString(e, "source"))
		}
	})
}

func fieldString(e event.Event, key string) string {
	v, ok := e.Fields[key]
	if !ok {
		return "unknown"
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
