package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInit(t *testing.T) {
	Init()
	assert.NotNil(t, log)
}

func TestInfo(t *testing.T) {
	var buf bytes.Buffer
	log = New(NewJSONHandler(&buf, nil))

	Info("test message")

	assert.Contains(t, buf.String(), "test message")
}

func TestError(t *testing.T) {
	var buf bytes.Buffer
	log = New(NewJSONHandler(&buf, nil))

	Error("test error")

	assert.Contains(t, buf.String(), "test error")
}

func TestDebug(t *testing.T) {
	var buf bytes.Buffer
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	log = New(NewJSONHandler(&buf, opts))

	Debug("test debug")

	assert.Contains(t, buf.String(), "test debug")
}

func TestInfof(t *testing.T) {
	var buf bytes.Buffer
	log = New(NewJSONHandler(&buf, nil))

	Infof("granted %d points", 42)

	assert.Contains(t, buf.String(), "granted 42 points")
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	log = New(NewJSONHandler(&buf, nil))

	WithError(assert.AnError).Info("operation failed")

	output := buf.String()
	assert.Contains(t, output, "operation failed")
	assert.Contains(t, output, "error")
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	log = New(NewJSONHandler(&buf, nil))

	WithFields(map[string]any{
		"customer_id": 7,
		"reference":   "invoice:55:earn",
	}).Info("points granted")

	output := buf.String()
	assert.Contains(t, output, "points granted")
	assert.Contains(t, output, "customer_id")
	assert.Contains(t, output, "invoice:55:earn")
}
