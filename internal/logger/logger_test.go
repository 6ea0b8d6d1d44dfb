package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	original := log.Logger
	t.Cleanup(func() { log.Logger = original })

	t.Run("console output", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := newWithConsole(Config{Level: "info", Console: true}, &buf)
		require.NoError(t, err)
		defer l.Close()

		component := l.Component("registry")
		component.Info().Msg("merged")
		zl := l.Zerolog()
		zl.Debug().Msg("hidden")

		assert.Contains(t, buf.String(), `"component":"registry"`)
		assert.Contains(t, buf.String(), `"message":"merged"`)
		assert.NotContains(t, buf.String(), "hidden")
	})

	t.Run("file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "logs", "toolbelt.log")

		l, err := New(Config{Level: "debug", File: logFile})
		require.NoError(t, err)

		zl := l.Zerolog()
		zl.Debug().Msg("written to file")
		require.NoError(t, l.Close())

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "written to file")
	})

	t.Run("installs global logger", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := newWithConsole(Config{Level: "warn", Console: true}, &buf)
		require.NoError(t, err)
		defer l.Close()

		log.Warn().Msg("global")
		assert.Contains(t, buf.String(), "global")
		assert.Equal(t, zerolog.WarnLevel, log.Logger.GetLevel())
	})

	t.Run("redaction", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := newWithConsole(Config{Console: true, Redaction: true}, &buf)
		require.NoError(t, err)
		defer l.Close()

		zl := l.Zerolog()
		zl.Info().Str("token", "abc").Msg("call")
		assert.Contains(t, buf.String(), `"token":"[REDACTED]"`)
	})

	t.Run("custom redaction patterns", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := newWithConsole(Config{Console: true, Redaction: true, RedactPatterns: []string{`acct-\d+`}}, &buf)
		require.NoError(t, err)
		defer l.Close()

		zl := l.Zerolog()
		zl.Info().Msg("charged acct-12345")
		assert.Contains(t, buf.String(), "charged [REDACTED]")
		assert.NotContains(t, buf.String(), "acct-12345")

		_, err = newWithConsole(Config{Redaction: true, RedactPatterns: []string{`(`}}, &buf)
		assert.ErrorContains(t, err, "invalid redaction pattern")
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := newWithConsole(Config{Level: "loud", Console: true}, &buf)
		require.NoError(t, err)
		defer l.Close()

		assert.Equal(t, zerolog.InfoLevel, l.Zerolog().GetLevel())
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Redaction)
}
