package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/execution"
)

// Collector records workflow execution metrics. It satisfies
// execution.Observer so the manager stays free of any Prometheus types.
type Collector struct {
	executionsTotal    *prometheus.CounterVec
	executionDuration  *prometheus.HistogramVec
	executionsInFlight prometheus.Gauge

	logger *zap.Logger
}

// NewCollector registers the execution metrics on the given registerer.
// Pass prometheus.DefaultRegisterer outside of tests.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.executionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Total number of workflow executions",
		},
		[]string{"workflow", "status"},
	)

	c.executionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Workflow execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"workflow"},
	)

	c.executionsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "executions_in_flight",
			Help:      "Number of workflow executions currently running",
		},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// ExecutionStarted records a workflow entering the running state.
func (c *Collector) ExecutionStarted(workflowID string) {
	c.executionsInFlight.Inc()
}

// ExecutionFinished records a workflow reaching a terminal status.
func (c *Collector) ExecutionFinished(workflowID string, status execution.Status, duration time.Duration) {
	c.executionsInFlight.Dec()
	c.executionsTotal.WithLabelValues(workflowID, string(status)).Inc()
	c.executionDuration.WithLabelValues(workflowID).Observe(duration.Seconds())
}
