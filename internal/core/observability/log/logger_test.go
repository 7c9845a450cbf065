package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readEntries(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var entries []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		entries = append(entries, e)
	}
	require.NoError(t, sc.Err())
	return entries
}

func TestLogger_WritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	l := NewWithConfig(Config{Level: LevelInfo, OutputPaths: []string{path}})

	scoped := l.With(String("component", "tcp"))
	scoped.Debug("hidden")
	scoped.Info("Peer connected", Uint16("port", 9001), Uint64("network_id", 42))
	scoped.Warn("Peer dropped", Error(errors.New("boom")))
	require.NoError(t, l.Sync())

	entries := readEntries(t, path)
	require.Len(t, entries, 2)

	assert.Equal(t, "info", entries[0]["level"])
	assert.Equal(t, "Peer connected", entries[0]["msg"])
	assert.Equal(t, "tcp", entries[0]["component"])
	assert.EqualValues(t, 9001, entries[0]["port"])
	assert.EqualValues(t, 42, entries[0]["network_id"])

	assert.Equal(t, "warn", entries[1]["level"])
	assert.Equal(t, "boom", entries[1]["error"])
}

func TestLogger_SetLevelAppliesToDerived(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	l := NewWithConfig(Config{Level: LevelError, OutputPaths: []string{path}})
	child := l.With(String("component", "session"))

	child.Info("dropped")
	l.SetLevel(LevelDebug)
	assert.Equal(t, LevelDebug, child.GetLevel())
	child.Debug("kept")
	require.NoError(t, l.Sync())

	entries := readEntries(t, path)
	require.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0]["msg"])
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{
		"":        LevelInfo,
		"debug":   LevelDebug,
		" INFO ":  LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"fatal":   LevelFatal,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	require.Error(t, err)
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Info("nothing", Int("n", 1))
	assert.Equal(t, LevelFatal, l.GetLevel())
	assert.NotNil(t, Provide())
}
