package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New("loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid log level "loud"`)
}

func TestNew_ValidLevel(t *testing.T) {
	logger, err := New("debug")
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestLogger_LevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := FromZap(zap.New(core)).Named("coordinator")
	ctx := context.Background()

	logger.Debug(ctx, "signal delivery failed, retrying", "attempt", 1)
	logger.Info(ctx, "pipeline started", "pipeline", "traffic")
	logger.Error(ctx, "reconcile failed", "error", "boom")

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)

	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)

	assert.Equal(t, "coordinator", entries[1].LoggerName)
	assert.Equal(t, "pipeline started", entries[1].Message)
	assert.Equal(t, map[string]interface{}{"pipeline": "traffic"}, entries[1].ContextMap())
	assert.Equal(t, int64(1), entries[0].ContextMap()["attempt"])
}

func TestLogger_RespectsLevel(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := FromZap(zap.New(core))

	logger.Debug(context.Background(), "hidden")
	logger.Info(context.Background(), "shown")

	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, 1, logs.FilterMessage("shown").Len())
}
