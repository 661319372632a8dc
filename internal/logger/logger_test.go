package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(buf *bytes.Buffer) *Logger {
	return New(&Config{Level: "debug", Format: "json", Output: buf, ServiceName: "sfbulk-test"})
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	return line
}

func TestContextFieldsPropagate(t *testing.T) {
	var buf bytes.Buffer
	ctx := newBufferLogger(&buf).WithContext(context.Background())
	ctx = SetJobID(ctx, "750R0000000zlh9IAA")
	ctx = SetComponent(ctx, "bulk")

	CtxInfo(ctx, "job %s", "created")

	line := decodeLine(t, &buf)
	assert.Equal(t, "job created", line["message"])
	assert.Equal(t, "750R0000000zlh9IAA", line[FieldJobID])
	assert.Equal(t, "bulk", line[FieldComponent])
	assert.Equal(t, "sfbulk-test", line["service"])
	assert.Equal(t, "750R0000000zlh9IAA", GetJobID(ctx))
}

func TestEntryMetricFields(t *testing.T) {
	var buf bytes.Buffer
	ctx := newBufferLogger(&buf).WithContext(context.Background())

	With(Fields{FieldAttempts: 4}).WithDuration(1500 * time.Millisecond).WithState("JobComplete").Info(ctx, "wait finished")

	line := decodeLine(t, &buf)
	assert.EqualValues(t, 4, line[FieldAttempts])
	assert.EqualValues(t, 1500, line[FieldDurationMs])
	assert.Equal(t, "JobComplete", line[FieldState])
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.Same(t, GetDefault(), FromContext(context.Background()))
	assert.Empty(t, GetRequestID(context.Background()))
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: "warn", Format: "text", Output: &buf})

	l.Info("hidden")
	assert.Zero(t, buf.Len())

	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}
