package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesToConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Console: &buf, NoColor: true})
	require.NoError(t, err)
	defer logger.Close()

	logger.Info().Str("channel", "room1").Msg("Client joined channel")

	assert.Contains(t, buf.String(), "Client joined channel")
	assert.Contains(t, buf.String(), "room1")
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "WARN", Console: &buf, NoColor: true})
	require.NoError(t, err)

	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Options{Level: "loud", Console: &bytes.Buffer{}})
	assert.Error(t, err)
}

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "gohub.log")

	logger, err := New(Options{File: path, Console: &bytes.Buffer{}})
	require.NoError(t, err)

	logger.Info().Msg("Hub started")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"Hub started"`)
	assert.Contains(t, string(data), `"app":"gohub"`)
}
