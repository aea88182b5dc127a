package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("stream closed")
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		out = append(out, entry)
	}
	return out
}

func TestLevels(t *testing.T) {
	tests := []struct {
		level string
		want  []string
	}{
		{LevelDebug, []string{"DEBUG", "INFO", "WARN", "ERROR"}},
		{LevelInfo, []string{"INFO", "WARN", "ERROR"}},
		{"warning", []string{"WARN", "ERROR"}},
		{LevelError, []string{"ERROR"}},
		{"bogus", []string{"INFO", "WARN", "ERROR"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			l := New(&buf, tt.level, true)
			l.Debug("d")
			l.Info("i")
			l.Warn("w")
			l.Error("e")

			var got []string
			for _, entry := range decodeLines(t, &buf) {
				got = append(got, entry["level"].(string))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelInfo, true).With("run_id", "abc", "bucket", "shotwatch_host")
	l.Info("tick", "application", "firefox")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "abc", entries[0]["run_id"])
	assert.Equal(t, "shotwatch_host", entries[0]["bucket"])
	assert.Equal(t, "firefox", entries[0]["application"])
	assert.Equal(t, "tick", entries[0]["msg"])
}

func TestWriteSurfacesFailures(t *testing.T) {
	l := New(brokenWriter{}, LevelInfo, true)

	err := l.Write(slog.LevelWarn, "sample failed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream closed")

	assert.NoError(t, l.Write(slog.LevelDebug, "below level"), "disabled records are not written")
	assert.NotPanics(t, func() { l.Error("swallowed") })
}

func TestTextHandler(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelInfo, false)
	l.Info("hello", "key", "value")
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "key=value")
}

func TestSetupWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "shotwatch.log")

	l, err := Setup(Options{Level: LevelError, File: path, Verbose: true})
	require.NoError(t, err)

	l.Debug("verbose forces debug")
	require.NoError(t, l.Close())
	assert.NoError(t, l.Close(), "second close is a no-op")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"verbose forces debug"`)
}

func TestValidLevel(t *testing.T) {
	for _, lvl := range ValidLevels() {
		assert.True(t, ValidLevel(lvl))
		assert.True(t, ValidLevel(strings.ToLower(lvl)))
	}
	assert.False(t, ValidLevel("TRACE"))
}

func TestNopLogger(t *testing.T) {
	l := NopLogger()
	assert.NoError(t, l.Write(slog.LevelError, "discarded"))
	assert.NotNil(t, l.Slog())
}
