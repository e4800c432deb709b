package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/jrsteele09/family-budget-client/internal/logging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSetupWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.SetupWriter(&buf, "PROD", "debug")
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	logger.Info().Str("path", "/users/profile/").Msg("request")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "request", line["message"])
	require.Equal(t, "/users/profile/", line["path"])
	require.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestSetupWriter_BadLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logging.SetupWriter(&buf, "DEV", "loud")
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	require.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
