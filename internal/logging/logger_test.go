package logging

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelWarn, Format: "text", Output: &buf})

	logger.Debug(context.Background(), "debug message")
	logger.Info(context.Background(), "info message")
	assert.Empty(t, buf.String())

	logger.Warn(context.Background(), nil, "warn message")
	assert.Contains(t, buf.String(), "warn message")
}

func TestEngineLogger_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Format: "text", Output: &buf})

	scoped := logger.WithComponent("cache")
	scoped.Info(context.Background(), "hit")
	assert.Contains(t, buf.String(), "component=cache")
}

func TestEngineLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Format: "text", Output: &buf})

	scoped := logger.With("path", "/a/b.jpg")
	scoped.Error(context.Background(), errors.New("boom"), "extraction failed")
	assert.Contains(t, buf.String(), "path=/a/b.jpg")
	assert.Contains(t, buf.String(), "boom")
}

func TestSanitizeForLog(t *testing.T) {
	assert.Equal(t, "[REDACTED]", SanitizeForLog("api_token=abc123"))
	assert.Equal(t, "plain value", SanitizeForLog("plain value"))
}

func TestNewFileLogger_RejectsTraversal(t *testing.T) {
	_, err := NewFileLogger(nil, "../../etc")
	require.Error(t, err)
}

func TestNewTestLogger(t *testing.T) {
	logger := NewTestLogger()
	require.NotNil(t, logger)
	logger.Info(context.Background(), "noop")
}
