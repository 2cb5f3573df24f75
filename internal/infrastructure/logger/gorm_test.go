package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func newObservedGorm(level gormlogger.LogLevel, slow time.Duration) (*GormLogger, *observer.ObservedLogs) {
	core, recorded := observer.New(zapcore.DebugLevel)
	return NewGormLogger(zap.New(core), level, slow), recorded
}

func statement() (string, int64) {
	return `DELETE FROM "generic_product_prices" WHERE product_id = 'p'`, 3
}

func TestGormLogger_LogMode(t *testing.T) {
	gl, _ := newObservedGorm(gormlogger.Info, 0)
	changed, ok := gl.LogMode(gormlogger.Error).(*GormLogger)
	require.True(t, ok)

	assert.Equal(t, gormlogger.Info, gl.level)
	assert.Equal(t, gormlogger.Error, changed.level)
}

func TestGormLogger_Trace(t *testing.T) {
	t.Run("statement at debug with run id", func(t *testing.T) {
		gl, recorded := newObservedGorm(gormlogger.Info, 0)
		ctx, _ := WithRun(context.Background(), zap.NewNop(), "run-7", "t", "s")

		gl.Trace(ctx, time.Now(), statement, nil)

		logs := recorded.All()
		require.Len(t, logs, 1)
		assert.Equal(t, zapcore.DebugLevel, logs[0].Level)
		assert.Equal(t, "run-7", logs[0].ContextMap()["run_id"])
		assert.Equal(t, int64(3), logs[0].ContextMap()["rows"])
	})

	t.Run("error", func(t *testing.T) {
		gl, recorded := newObservedGorm(gormlogger.Warn, 0)
		gl.Trace(context.Background(), time.Now(), statement, errors.New("deadlock"))

		require.Len(t, recorded.All(), 1)
		assert.Equal(t, "sql failed", recorded.All()[0].Message)
	})

	t.Run("record not found is not an error", func(t *testing.T) {
		gl, recorded := newObservedGorm(gormlogger.Warn, 0)
		gl.Trace(context.Background(), time.Now(), statement, gormlogger.ErrRecordNotFound)
		assert.Empty(t, recorded.All())
	})

	t.Run("slow statement", func(t *testing.T) {
		gl, recorded := newObservedGorm(gormlogger.Warn, time.Millisecond)
		gl.Trace(context.Background(), time.Now().Add(-time.Second), statement, nil)

		require.Len(t, recorded.All(), 1)
		assert.Equal(t, zapcore.WarnLevel, recorded.All()[0].Level)
	})

	t.Run("silent", func(t *testing.T) {
		gl, recorded := newObservedGorm(gormlogger.Silent, 0)
		gl.Trace(context.Background(), time.Now(), statement, errors.New("boom"))
		assert.Empty(t, recorded.All())
	})
}

func TestGormLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Info, GormLevel("debug"))
	assert.Equal(t, gormlogger.Error, GormLevel("error"))
	assert.Equal(t, gormlogger.Warn, GormLevel("info"))
}

func TestGormLogger_ImplementsInterface(t *testing.T) {
	var _ gormlogger.Interface = NewGormLogger(zap.NewNop(), gormlogger.Warn, 0)
}
