package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestFromContextAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := build(Config{Level: "debug"}, zapcore.AddSync(&buf))

	ctx := ContextWithRequestID(context.Background(), "req-1")
	FromContext(ctx, base).Info("handled")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "req-1", line["request_id"])
	assert.Equal(t, "handled", line["msg"])
	assert.Contains(t, line, "timestamp")
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := build(Config{Level: "chatty"}, zapcore.AddSync(&buf))

	log.Debug("hidden")
	assert.Zero(t, buf.Len())
	log.Info("shown")
	assert.NotZero(t, buf.Len())
}

func TestFromContextWithoutRequestID(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background(), nil))
	assert.Empty(t, RequestID(nil))
}
