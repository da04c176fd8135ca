package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogFormat(t *testing.T) {
	assert.Equal(t, FormatConsole, ParseLogFormat("console"))
	assert.Equal(t, FormatConsole, ParseLogFormat("CONSOLE"))
	assert.Equal(t, FormatJSON, ParseLogFormat("json"))
	assert.Equal(t, FormatJSON, ParseLogFormat("anything else"))
}

func TestSetupJSONOutput(t *testing.T) {
	ResetForTesting()
	defer ResetForTesting()

	var buf bytes.Buffer
	Setup(Config{Level: "debug", Format: FormatJSON, Output: &buf})

	log := Get()
	require.NotNil(t, log)

	log.Info("hello", map[string]interface{}{"key": "value"})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "value", entry["key"])
	assert.Equal(t, "info", entry["level"])
}

func TestLevelFiltering(t *testing.T) {
	ResetForTesting()
	defer ResetForTesting()

	var buf bytes.Buffer
	Setup(Config{Level: "warn", Format: FormatJSON, Output: &buf})

	log := Get()
	log.Debug("suppressed")
	log.Info("suppressed too")
	log.Warn("kept")

	out := buf.String()
	assert.NotContains(t, out, "suppressed")
	assert.Contains(t, out, "kept")
}

func TestNilLoggerIsSafe(t *testing.T) {
	var log *Logger
	// None of these should panic
	log.Info("msg")
	log.Warn("msg")
	log.Debug("msg")
	log.Error("msg")
	log.Infof("msg %d", 1)
}

func TestWithFields(t *testing.T) {
	ResetForTesting()
	defer ResetForTesting()

	var buf bytes.Buffer
	Setup(Config{Level: "info", Format: FormatJSON, Output: &buf})

	child := Get().With(map[string]interface{}{"component": "cache"})
	child.Info("from child")

	assert.True(t, strings.Contains(buf.String(), `"component":"cache"`))
}
