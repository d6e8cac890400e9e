package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/execution"
)

func TestCollector_ExecutionLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("crewflow", reg, zap.NewNop())

	c.ExecutionStarted("wf-1")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.executionsInFlight))

	c.ExecutionFinished("wf-1", execution.StatusCompleted, 2*time.Second)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.executionsInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.executionsTotal.WithLabelValues("wf-1", "COMPLETED")))

	c.ExecutionStarted("wf-1")
	c.ExecutionFinished("wf-1", execution.StatusError, time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.executionsTotal.WithLabelValues("wf-1", "ERROR")))
}

func TestCollector_ImplementsObserver(t *testing.T) {
	var _ execution.Observer = NewCollector("crewflow", prometheus.NewRegistry(), zap.NewNop())
}
