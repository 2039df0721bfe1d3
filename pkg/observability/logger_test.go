package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithField("target", "document#42").Info("access check")

	entry := logLine(t, &buf)
	assert.Equal(t, "access check", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "document#42", entry["target"])
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithFields(map[string]interface{}{
		"role_id": 7,
		"granted": true,
	}).Info("grant updated")

	entry := logLine(t, &buf)
	assert.Equal(t, float64(7), entry["role_id"])
	assert.Equal(t, true, entry["granted"])
}

func TestLoggerWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithError(errors.New("boom")).Warn("audit write failed")
	entry := logLine(t, &buf)
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "WARN", entry["level"])

	// A nil error adds nothing.
	buf.Reset()
	logger.WithError(nil).Info("fine")
	entry = logLine(t, &buf)
	_, ok := entry["error"]
	assert.False(t, ok)
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WarnLevel, &buf)

	logger.Debug("hidden")
	logger.Info("hidden")
	assert.Zero(t, buf.Len())

	logger.Warnf("shown %d", 1)
	assert.NotZero(t, buf.Len())
}

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", DebugLevel.String())
	assert.Equal(t, "ERROR", ErrorLevel.String())
}

func TestLoggerContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	ctx := WithLogger(context.Background(), logger)
	ctx = WithRequestID(ctx, "req-123")

	assert.Equal(t, "req-123", GetRequestID(ctx))
	assert.Equal(t, logger, GetLogger(ctx))

	FromContext(ctx).Info("handled")
	entry := logLine(t, &buf)
	assert.Equal(t, "req-123", entry["request_id"])

	// A bare context still yields a usable logger.
	assert.NotNil(t, FromContext(context.Background()))
	assert.Equal(t, "", GetRequestID(context.Background()))
}
