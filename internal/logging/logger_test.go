package logging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewWithCore_RecordsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewWithCore(core).With(String("run_id", "run-1"))

	log.Warn("audit write failed", Error(errors.New("db down")), Int("attempt", 2))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "audit write failed", entry.Message)
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "run-1", fields["run_id"])
	assert.Equal(t, "db down", fields["error"])
	assert.EqualValues(t, 2, fields["attempt"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel(""))
}

func TestFromContext(t *testing.T) {
	nop := NewNop()
	core, _ := observer.New(zapcore.InfoLevel)
	real := NewWithCore(core)

	ctx := WithContext(context.Background(), real)
	assert.Same(t, real, FromContext(ctx, nop))
	assert.Equal(t, nop, FromContext(context.Background(), nop))
	assert.NotNil(t, FromContext(context.Background(), nil))
}

func TestNop_DoesNotPanic(t *testing.T) {
	log := NewNop()
	log.Debug("debug")
	log.Info("info", String("k", "v"))
	log.With(Bool("b", true)).Error("error")
	assert.NoError(t, log.Sync())
}
