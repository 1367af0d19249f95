package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSONInProd(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "prod", "debug")

	logger.Debug().Str("chat_id", "c1").Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "hello", line["message"])
	require.Equal(t, "c1", line["chat_id"])
	require.Equal(t, "debug", line["level"])
}

func TestNewLoggerLevelFallback(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "prod", "bogus")

	logger.Debug().Msg("hidden")
	require.Zero(t, buf.Len())

	logger.Info().Msg("shown")
	require.NotZero(t, buf.Len())
}
