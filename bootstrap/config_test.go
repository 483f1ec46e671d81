package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInitLogger_Formats(t *testing.T) {
	for _, format := range []string{"", "console", "JSON", "json"} {
		logger, sugar, err := InitLogger(format)
		require.NoError(t, err, format)
		require.NotNil(t, logger)
		require.NotNil(t, sugar)
	}

	_, _, err := InitLogger("xml")
	assert.Error(t, err)
}

func TestSetLogLevel(t *testing.T) {
	original := LogLevel()
	t.Cleanup(func() { logLevel.SetLevel(original) })

	require.NoError(t, SetLogLevel("warn"))
	assert.Equal(t, zapcore.WarnLevel, LogLevel())

	logger, _, err := InitLogger("console")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.ErrorLevel))

	require.NoError(t, SetLogLevel("DEBUG"))
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	assert.Error(t, SetLogLevel("loud"))
	assert.Equal(t, zapcore.DebugLevel, LogLevel())
}
