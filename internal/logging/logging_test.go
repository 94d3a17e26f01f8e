package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rentcopilot/connection-hub/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestInit_JSONOutsideDev(t *testing.T) {
	var buf bytes.Buffer
	logging.InitWithWriter("warn", "PROD", &buf)
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	log.Info().Msg("dropped")
	log.Warn().Str("k", "v").Msg("kept")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "kept", entry["message"])
	require.Equal(t, "v", entry["k"])
}

func TestInit_UnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logging.InitWithWriter("chatty", "PROD", &buf)

	log.Debug().Msg("dropped")
	require.Zero(t, buf.Len())
	log.Info().Msg("kept")
	require.NotZero(t, buf.Len())
}

func TestWithSession(t *testing.T) {
	var buf bytes.Buffer
	logging.InitWithWriter("info", "PROD", &buf)

	logger := logging.WithSession("abc")
	logger.Info().Msg("hello")
	require.Contains(t, buf.String(), `"session_id":"abc"`)
}
