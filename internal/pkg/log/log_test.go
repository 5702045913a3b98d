package log

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	prev := output
	SetOutput(buf)
	t.Cleanup(func() { SetOutput(prev) })
	return buf
}

func TestLevels(t *testing.T) {
	buf := captureOutput(t)

	Info("hello %s", "world")
	Warn("careful")
	Error("failed: %d", 3)

	out := buf.String()
	assert.Contains(t, out, "hello world")
	assert.Contains(t, out, "careful")
	assert.Contains(t, out, "failed: 3")
}

func TestDebugIsGated(t *testing.T) {
	buf := captureOutput(t)
	prev := DebugEnabled()
	t.Cleanup(func() { SetDebug(prev) })

	SetDebug(false)
	Debug("hidden")
	assert.NotContains(t, buf.String(), "hidden")

	SetDebug(true)
	Debug("shown")
	Dump("doc", map[string]int{"a": 1})
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "doc")
}

func TestWithRequestID(t *testing.T) {
	buf := captureOutput(t)

	ctx := WithRequestID(context.Background(), "r-42")
	InfoWithContext(ctx, "query %s", "ok")

	assert.Contains(t, buf.String(), "[req_id=r-42] query ok")
}
