package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrettyHandler(t *testing.T) {
	t.Parallel()

	t.Run("writes message and attributes without color", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		log := New(&buf, slog.LevelInfo, false)

		log.Info("cart synced", "items", 3, "reason", "login merge", "error", errors.New("boom"))

		out := buf.String()
		require.Contains(t, out, "INFO  cart synced")
		require.Contains(t, out, "items=3")
		require.Contains(t, out, `reason="login merge"`)
		require.Contains(t, out, `error="boom"`)
		require.NotContains(t, out, "\033[")
	})

	t.Run("filters by level", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		log := New(&buf, slog.LevelWarn, true)

		log.Info("hidden")
		log.Warn("shown")

		require.NotContains(t, buf.String(), "hidden")
		require.Contains(t, buf.String(), "shown")
	})

	t.Run("prefixes grouped attributes", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		log := New(&buf, slog.LevelDebug, false).With("component", "refresh").WithGroup("token")

		log.Debug("armed", "delay", "10m0s")

		require.Contains(t, buf.String(), "component=refresh")
		require.Contains(t, buf.String(), "token.delay=10m0s")
	})
}
