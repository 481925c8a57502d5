package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestForEnv(t *testing.T) {
	cfg := ForEnv("production", "warn")
	assert.False(t, cfg.Development)
	assert.Equal(t, "json", cfg.Encoding)
	assert.Equal(t, "warn", cfg.Level)

	cfg = ForEnv("development", "")
	assert.True(t, cfg.Development)
	assert.Equal(t, "console", cfg.Encoding)
}

func TestNew(t *testing.T) {
	l, err := New(Config{Level: "WARN", Encoding: "json"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	_, err = New(Config{Level: "loud"})
	assert.Error(t, err)

	_, err = New(Config{Encoding: "xml"})
	assert.Error(t, err)
}

func TestInitReplacesGlobal(t *testing.T) {
	l := MustInit(Config{Level: "error"})
	assert.Same(t, l, L())
	_ = Sync()
}
