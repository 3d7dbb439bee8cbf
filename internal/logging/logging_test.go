package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWriter_JSON(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })
	var buf bytes.Buffer
	require.NoError(t, SetupWriter(&buf, "warn", "json"))

	log.Info().Msg("hidden")
	log.Warn().Str("file", "a.go").Msg("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "a.go", entry["file"])
	assert.Equal(t, "shown", entry["message"])
}

func TestSetupWriter_EmptyLevelIsInfo(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SetupWriter(&buf, "", "console"))
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestSetupWriter_Invalid(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, SetupWriter(&buf, "loud", "json"))
	assert.Error(t, SetupWriter(&buf, "info", "xml"))
}
