package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}

	for in, want := range cases {
		require.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNamedWritesJSON(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	var buf bytes.Buffer
	InitializeTo(&buf, slog.LevelInfo)

	Named("registry").Debug("hidden")
	Named("registry").With("network", "localhost").Info("recorded")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "registry", entry["name"])
	require.Equal(t, "localhost", entry["network"])
	require.Equal(t, "recorded", entry["msg"])
}
