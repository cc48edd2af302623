package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/waypointlabs/waypoint/internal/config"
)

func TestInitializeIsIdempotent(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	sink := zapcore.AddSync(nopWriter{})

	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "test"}, sink)
	first := GetLogger()
	require.NotNil(t, first)

	// Second call must not replace the stored logger.
	Initialize(config.LoggerConfig{Level: "debug", Format: "console", ServiceName: "other"}, sink)
	assert.Same(t, first, GetLogger())
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger)
	assert.NotPanics(t, func() { logger.Info("fallback logger works") })
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	Initialize(config.LoggerConfig{Level: "shouty", Format: "json", ServiceName: "test"},
		zapcore.AddSync(nopWriter{}))
	logger := GetLogger()
	assert.False(t, logger.Core().Enabled(zap.DebugLevel))
	assert.True(t, logger.Core().Enabled(zap.InfoLevel))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
