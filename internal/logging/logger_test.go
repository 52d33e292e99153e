package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "default config", config: nil},
		{name: "json format", config: &Config{Level: LevelInfo, Format: "json", Output: &bytes.Buffer{}}},
		{name: "text format", config: &Config{Level: LevelDebug, Format: "text", Output: &bytes.Buffer{}, NoColor: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(tt.config)
			require.NotNil(t, logger)
		})
	}
}

func TestLoggerWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Format: "json", Output: &buf})

	taskLogger := logger.WithDevice(42)
	taskLogger.Info("test message")
	assert.Contains(t, buf.String(), `"device_id":42`)

	buf.Reset()
	cpuLogger := taskLogger.WithQueue(1)
	cpuLogger.Info("queue message")
	output := buf.String()
	assert.Contains(t, output, `"device_id":42`)
	assert.Contains(t, output, `"queue_id":1`)
}

func TestLoggerWithRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Format: "json", Output: &buf})

	requestLogger := logger.WithRequest(123, "READ")
	requestLogger.Debug("processing request")

	output := buf.String()
	assert.Contains(t, output, `"tag":123`)
	assert.Contains(t, output, `"op":"READ"`)
}

func TestLoggerWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Format: "json", Output: &buf})

	errorLogger := logger.WithError(errors.New("test error"))
	errorLogger.Error("operation failed")

	assert.Contains(t, buf.String(), "test error")
}

func TestGlobalLoggerFunctions(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(NewLogger(&Config{Level: LevelDebug, Format: "json", Output: &buf}))

	Debug("debug message", "key", "value")
	output := buf.String()
	assert.True(t, strings.Contains(output, "debug message"))
	assert.Contains(t, output, `"key":"value"`)

	buf.Reset()
	Info("info message")
	assert.Contains(t, buf.String(), "info message")

	buf.Reset()
	Warn("warning message")
	assert.Contains(t, buf.String(), "warning message")

	buf.Reset()
	Error("error message")
	assert.Contains(t, buf.String(), "error message")
}
