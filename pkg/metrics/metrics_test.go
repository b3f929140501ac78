package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IDAssigned(true)
		m.DocIndexed()
		m.Commit(3, nil)
		m.Flush(10, errors.New("boom"))
		m.Search("field", 2, time.Millisecond, nil)
	})
}

func TestRecording(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IDAssigned(false)
	m.IDAssigned(true)
	m.Flush(4, nil)
	m.Flush(0, errors.New("store down"))
	m.Search("score", 5, time.Millisecond, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DocIDsAssigned))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PartialAssignments))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SegmentFlushes.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SegmentFlushes.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("score", "ok")))
}
