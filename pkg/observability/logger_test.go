package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, "json", &buf)

	logger.WithField("rid", "abc-123").Info("request accepted")

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "request accepted", record["msg"])
	assert.Equal(t, "abc-123", record["rid"])
	assert.Equal(t, "info", record["level"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(WarnLevel, "json", &buf)

	logger.Info("suppressed")
	assert.Zero(t, buf.Len())

	logger.Warn("emitted")
	assert.NotZero(t, buf.Len())
}

func TestLogger_WithFieldsAndError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, "json", &buf)

	logger.WithFields(map[string]interface{}{
		"request_id": 42,
		"worker_id":  7,
	}).WithError(assert.AnError).Error("job failed")

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, float64(42), record["request_id"])
	assert.Equal(t, float64(7), record["worker_id"])
	assert.Contains(t, record["error"], "assert.AnError")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("debug"))
	assert.Equal(t, WarnLevel, ParseLevel("WARNING"))
	assert.Equal(t, ErrorLevel, ParseLevel("error"))
	assert.Equal(t, InfoLevel, ParseLevel("unknown"))
}

func TestLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, "text", &buf)

	logger.Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}
