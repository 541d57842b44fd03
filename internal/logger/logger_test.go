package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spatialization-module/internal/config"
)

func TestInit_JSON(t *testing.T) {
	var buf bytes.Buffer
	InitWithOutput(config.LoggerConfig{Level: "debug", Format: "json"}, &buf)
	t.Cleanup(func() { InitWithOutput(config.LoggerConfig{Level: "info"}, &bytes.Buffer{}) })

	log.WithField("unit", "AAA").Debug("masked")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "masked", entry["msg"])
	assert.Equal(t, "AAA", entry["unit"])
	assert.Equal(t, "debug", entry["level"])
}

func TestInit_UnknownLevel(t *testing.T) {
	InitWithOutput(config.LoggerConfig{Level: "chatty", Format: "text"}, &bytes.Buffer{})
	assert.Equal(t, log.InfoLevel, log.GetLevel())
}
