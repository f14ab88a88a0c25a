package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONFormat(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := newLogger(buf, "JSON")
	logger.Info().Int("conn_id", 2).Msg("stream started")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "stream started", line["message"])
	assert.Equal(t, "info", line["level"])
	assert.EqualValues(t, 2, line["conn_id"])
	assert.Contains(t, line, "time")
}

func TestConsoleFormat(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := newLogger(buf, "")
	logger.Warn().Msg("chunk fetch failed")

	out := buf.String()
	assert.Contains(t, out, "| WARN  |")
	assert.Contains(t, out, "[ chunk fetch failed ]")
	assert.NotContains(t, out, "\x1b[")
}
