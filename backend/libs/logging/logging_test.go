package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLevelFromEnv(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"WARN":  zapcore.WarnLevel,
		"":      zapcore.InfoLevel,
		"loud":  zapcore.InfoLevel,
	}
	for raw, want := range cases {
		t.Setenv("LOG_LEVEL", raw)
		assert.Equal(t, want, levelFromEnv(), raw)
	}
}

func TestNewLogger(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	logger, err := NewLogger("parking-service")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.ErrorLevel))
}
