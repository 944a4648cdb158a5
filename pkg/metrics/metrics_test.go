package metrics

import (
	"errors"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, write func(*dto.Metric) error) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, write(&m))
	return m.GetCounter().GetValue()
}

func TestRecordDecision(t *testing.T) {
	c := DecisionsTotal.WithLabelValues("denied", "no_role")
	before := counterValue(t, c.Write)

	RecordDecision("denied", "no_role")
	RecordDecision("denied", "no_role")

	assert.Equal(t, before+2, counterValue(t, c.Write))
}

func TestRecordIndexRebuild(t *testing.T) {
	ok := IndexRebuildsTotal.WithLabelValues("ok")
	failed := IndexRebuildsTotal.WithLabelValues("error")
	okBefore, failedBefore := counterValue(t, ok.Write), counterValue(t, failed.Write)

	RecordIndexRebuild(nil, 7, true, 3*time.Millisecond)
	RecordIndexRebuild(errors.New("db down"), 0, false, time.Millisecond)

	assert.Equal(t, okBefore+1, counterValue(t, ok.Write))
	assert.Equal(t, failedBefore+1, counterValue(t, failed.Write))

	var m dto.Metric
	require.NoError(t, IndexEntries.Write(&m))
	assert.Equal(t, float64(7), m.GetGauge().GetValue())
}

func TestRecordIndexRebuild_UnpublishedKeepsGauge(t *testing.T) {
	RecordIndexRebuild(nil, 3, true, time.Millisecond)
	RecordIndexRebuild(nil, 42, false, time.Millisecond)

	var m dto.Metric
	require.NoError(t, IndexEntries.Write(&m))
	assert.Equal(t, float64(3), m.GetGauge().GetValue())
}
