package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

// capture points the global logger at a buffer for the duration of the test.
func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	var buf bytes.Buffer
	log.Logger = zerolog.New(&buf).With().Caller().Logger()
	return &buf
}

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		entry := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestHelpers_WriteFieldsAndCaller(t *testing.T) {
	req := require.New(t)
	buf := capture(t)

	Error(errors.New("boom"), "send failed", "user", "alice")

	entries := lines(t, buf)
	req.Len(entries, 1)
	req.Equal("error", entries[0]["level"])
	req.Equal("boom", entries[0]["error"])
	req.Equal("alice", entries[0]["user"])
	req.Contains(entries[0]["caller"], "logx_test.go")
}

func TestHelpers_DropUnpairedFields(t *testing.T) {
	req := require.New(t)
	buf := capture(t)

	Info("joined", "user")

	entries := lines(t, buf)
	req.Len(entries, 2)
	req.Equal("warn", entries[0]["level"])
	req.Equal("joined", entries[1]["message"])
	req.NotContains(entries[1], "user")
}

func TestComponent_TagsEntries(t *testing.T) {
	req := require.New(t)
	buf := capture(t)

	l := Component("Registry")
	l.Info().Msg("ready")

	entries := lines(t, buf)
	req.Len(entries, 1)
	req.Equal("Registry", entries[0]["component"])
}
