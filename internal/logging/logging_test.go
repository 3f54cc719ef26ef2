package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelFromString(t *testing.T) {
	t.Parallel()

	require.Equal(t, slog.LevelError, levelFromString("ERROR"))
	require.Equal(t, slog.LevelWarn, levelFromString(" warning "))
	require.Equal(t, slog.LevelInfo, levelFromString("info"))
	require.Equal(t, slog.LevelDebug, levelFromString(""))
}

func TestJSONFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, "info", "json"))
	logger.Debug("hidden")
	logger.Info("payout completed", "payout_id", "p-1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "payout completed", entry["msg"])
	require.Equal(t, "p-1", entry["payout_id"])
}

func TestTextFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	slog.New(newHandler(&buf, "debug", "text")).Info("hello", "k", "v")
	require.True(t, strings.Contains(buf.String(), "k=v"))
}
