package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveAction(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveAction("wake", OutcomeOK)
	m.ObserveAction("wake", OutcomeOK)
	m.ObserveAction("wake", OutcomeRejected)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActionsTotal.WithLabelValues("wake", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActionsTotal.WithLabelValues("wake", OutcomeRejected)))
}

func TestObserveSleep(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveSleep(8 * time.Hour)

	assert.Equal(t, 1, testutil.CollectAndCount(m.SleepDuration))
}
