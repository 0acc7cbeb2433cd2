package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewNotificationMetrics_NilMeter(t *testing.T) {
	m, err := NewNotificationMetrics(nil)
	assert.ErrorIs(t, err, ErrMeterNil)
	assert.Nil(t, m)
}

func TestNotificationMetrics(t *testing.T) {
	mp, reader := newTestMeter(t)
	ctx := context.Background()

	m, err := NewNotificationMetrics(mp.Meter("invoicing"))
	require.NoError(t, err)

	m.RecordOutcome(ctx, "delivered")
	m.RecordOutcome(ctx, "delivered")
	m.RecordOutcome(ctx, "failed")
	m.RecordDetected(ctx, 3)
	m.RecordDetected(ctx, 0)

	metrics := collect(t, reader)

	outcomes := metrics["invoicing_overdue_notifications_total"].Data.(metricdata.Sum[int64])
	byOutcome := map[string]int64{}
	for _, dp := range outcomes.DataPoints {
		v, ok := dp.Attributes.Value(AttrOutcome)
		require.True(t, ok)
		byOutcome[v.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"delivered": 2, "failed": 1}, byOutcome)

	detected := metrics["invoicing_overdue_candidates_total"].Data.(metricdata.Sum[int64])
	require.Len(t, detected.DataPoints, 1)
	assert.Equal(t, int64(3), detected.DataPoints[0].Value)

	batch := metrics["invoicing_overdue_detection_batch_size"].Data.(metricdata.Histogram[float64])
	require.Len(t, batch.DataPoints, 1)
	assert.Equal(t, uint64(2), batch.DataPoints[0].Count)
	assert.Equal(t, 3.0, batch.DataPoints[0].Sum)
}
