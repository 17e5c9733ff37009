package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, lvl)

	lvl, err = ParseLevel("WARNING")
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestSetup_JSONToBuffer(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	var buf bytes.Buffer
	closer, err := Setup(Options{Level: "warn", Out: &buf})
	require.NoError(t, err)
	defer closer.Close()

	log.Info().Msg("hidden")
	log.Warn().Str("coin", "ethereum").Msg("shown")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "shown", entry["message"])
	assert.Equal(t, "ethereum", entry["coin"])
	assert.Equal(t, "warn", entry["level"])
}

func TestSetup_ConsoleAndFile(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	path := filepath.Join(t.TempDir(), "betalens.log")
	console := true
	var buf bytes.Buffer
	closer, err := Setup(Options{Level: "debug", File: path, Console: &console, Out: &buf})
	require.NoError(t, err)

	log.Debug().Msg("to both")
	require.NoError(t, closer.Close())

	assert.Contains(t, buf.String(), "to both")
	assert.NotEqual(t, byte('{'), buf.Bytes()[0])

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"to both"`)
}

func TestSetup_BadLevel(t *testing.T) {
	_, err := Setup(Options{Level: "chatty"})
	assert.Error(t, err)
}
