package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func TestNewDBMetrics_Defaults(t *testing.T) {
	mp, _ := newTestMeter(t)

	m, err := NewDBMetrics(mp.Meter("db"), DBMetricsConfig{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 200*time.Millisecond, m.config.SlowQueryThreshold)
	assert.Equal(t, 15*time.Second, m.config.PoolStatsInterval)

	_, err = NewDBMetrics(nil, DBMetricsConfig{}, nil)
	assert.ErrorIs(t, err, ErrMeterNil)
}

func TestDBMetrics_CallbacksRecordQueries(t *testing.T) {
	mp, reader := newTestMeter(t)
	db := setupTestDB(t)

	m, err := NewDBMetrics(mp.Meter("db"), DBMetricsConfig{SlowQueryThreshold: time.Hour}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, registerAround(db, "test_metrics", m.before, m.after))

	ctx := context.Background()
	require.NoError(t, db.WithContext(ctx).Create(&probeRow{Name: "a"}).Error)
	var rows []probeRow
	require.NoError(t, db.WithContext(ctx).Find(&rows).Error)
	require.NoError(t, db.WithContext(ctx).Exec("DELETE FROM probe_rows").Error)

	metrics := collect(t, reader)
	totals := metrics["db_query_total"].Data.(metricdata.Sum[int64])
	byOp := map[string]int64{}
	for _, dp := range totals.DataPoints {
		v, _ := dp.Attributes.Value(AttrDBOperation)
		byOp[v.AsString()] = dp.Value
	}
	assert.Equal(t, int64(1), byOp["INSERT"])
	assert.Equal(t, int64(1), byOp["SELECT"])
	assert.Equal(t, int64(1), byOp["DELETE"])
}

func TestDBMetrics_SlowQuery(t *testing.T) {
	mp, reader := newTestMeter(t)
	m, err := NewDBMetrics(mp.Meter("db"), DBMetricsConfig{SlowQueryThreshold: time.Millisecond}, nil)
	require.NoError(t, err)

	m.RecordQuery(context.Background(), "select", "", time.Second)

	slow := collect(t, reader)["db_slow_query_total"].Data.(metricdata.Sum[int64])
	require.Len(t, slow.DataPoints, 1)
	table, _ := slow.DataPoints[0].Attributes.Value(AttrDBTable)
	assert.Equal(t, "unknown", table.AsString())
}

func TestDBMetrics_PoolStats(t *testing.T) {
	mp, reader := newTestMeter(t)
	db := setupTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)

	m, err := NewDBMetrics(mp.Meter("db"), DBMetricsConfig{PoolStatsInterval: time.Hour}, nil)
	require.NoError(t, err)
	m.StartPoolStatsCollection(context.Background(), sqlDB)
	m.Stop()
	m.Stop()

	pool := collect(t, reader)["db_pool_connections"].Data.(metricdata.Gauge[int64])
	states := map[string]bool{}
	for _, dp := range pool.DataPoints {
		v, _ := dp.Attributes.Value(AttrDBState)
		states[v.AsString()] = true
	}
	assert.Equal(t, map[string]bool{"idle": true, "in_use": true, "open": true, "max": true}, states)
}

func TestDetectOperationType(t *testing.T) {
	tests := map[string]string{
		"select 1":                 "SELECT",
		"  INSERT INTO x VALUES()": "INSERT",
		"update x set a = 1":       "UPDATE",
		"DELETE FROM x":            "DELETE",
		"PRAGMA foreign_keys":      "OTHER",
	}
	for statement, want := range tests {
		assert.Equal(t, want, detectOperationType(statement), statement)
	}
}

func TestRegisterDBMetrics_DisabledProvider(t *testing.T) {
	db := setupTestDB(t)
	mp := &MeterProvider{config: MetricsConfig{Enabled: false}, logger: zap.NewNop()}

	m, err := RegisterDBMetrics(context.Background(), db, mp, DefaultDBMetricsConfig(), zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, m)
}
