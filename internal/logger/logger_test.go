package logger_test

import (
	"testing"

	"inventory-engine/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_Level(t *testing.T) {
	log, err := logger.New("warn")
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))

	_, err = logger.New("chatty")
	assert.Error(t, err)
}

func TestNamed_NilBase(t *testing.T) {
	log := logger.Named(nil, "close")
	require.NotNil(t, log)
	log.Info("dropped")
}
