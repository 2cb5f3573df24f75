package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/priceimport/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db
}

func TestDBTracingFromAppConfig(t *testing.T) {
	cfg := DBTracingFromAppConfig(config.TelemetryConfig{Enabled: true, DBTraceEnabled: true})
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 200*time.Millisecond, cfg.SlowQueryThresh)
	assert.Equal(t, "postgresql", cfg.DBSystem)

	// Database tracing needs telemetry itself
	cfg = DBTracingFromAppConfig(config.TelemetryConfig{DBTraceEnabled: true})
	assert.False(t, cfg.Enabled)
}

func TestRegisterDBTracing(t *testing.T) {
	t.Run("disabled leaves the db untouched", func(t *testing.T) {
		db := setupTestDB(t)
		require.NoError(t, RegisterDBTracing(db, DBTracingConfig{}, zap.NewNop()))
		assert.NotContains(t, db.Config.Plugins, "otelgorm")
	})

	t.Run("enabled installs the plugin", func(t *testing.T) {
		db := setupTestDB(t)
		cfg := DBTracingConfig{Enabled: true, SlowQueryThresh: time.Second, DBSystem: "sqlite"}
		require.NoError(t, RegisterDBTracing(db, cfg, zap.NewNop()))
		assert.Contains(t, db.Config.Plugins, "otelgorm")

		var n int
		require.NoError(t, db.Raw("SELECT 1").Scan(&n).Error)
		assert.Equal(t, 1, n)
	})
}

func TestAnnotateSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	db := setupTestDB(t)

	ctx, span := tp.Tracer("test").Start(context.Background(), "replace")
	ctx = context.WithValue(ctx, queryStartKey{}, time.Now().Add(-time.Second))

	tx := db.WithContext(ctx)
	tx.Statement.Table = "generic_product_prices"
	tx.Statement.RowsAffected = 3
	tx.Error = errors.New("constraint violation")

	annotateSpan(tx, 100*time.Millisecond)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	got := spans[0]
	assert.Equal(t, codes.Error, got.Status().Code)

	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range got.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, int64(3), attrs["db.rows_affected"].AsInt64())
	assert.Equal(t, "generic_product_prices", attrs["db.sql.table"].AsString())
	assert.True(t, attrs["db.slow_query"].AsBool())

	var names []string
	for _, e := range got.Events() {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, "slow_query_warning")
}

func TestAnnotateSpan_IgnoresRecordNotFound(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	db := setupTestDB(t)

	ctx, span := tp.Tracer("test").Start(context.Background(), "lookup")
	tx := db.WithContext(ctx)
	tx.Error = gorm.ErrRecordNotFound

	annotateSpan(tx, time.Second)
	span.End()

	require.Len(t, recorder.Ended(), 1)
	assert.Equal(t, codes.Unset, recorder.Ended()[0].Status().Code)
}
