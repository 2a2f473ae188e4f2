package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("/x", "GET", 200, time.Millisecond)
		m.RecordTransition("claim", "in_progress")
		m.SessionOpened()
		m.RecordAutoClose(3)
	})
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()
	m.RecordTransition("claim", "in_progress")
	m.RecordTransition("claim", "in_progress")
	m.RecordAssignment("already_taken")
	m.RecordAutoClose(4)
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("claim", "in_progress")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.assignments.WithLabelValues("already_taken")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.autoClosed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions))
}
