package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsolatedLoggerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.log")
	l := NewIsolatedLogger(path)

	l.Info("CACHE", "first", map[string]interface{}{"key": "a"})
	l.Warn("CACHE", "second", nil)
	l.Error("CACHE", "third", map[string]interface{}{"error": "boom"})
	_ = l.Sync()

	all, err := l.GetLogs("", 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "third", all[0].Message, "newest first")
	assert.Equal(t, "CACHE", all[0].Module)
	assert.NotEmpty(t, all[0].Id)

	warns, err := l.GetLogs("WARN", 10, 0)
	require.NoError(t, err)
	require.Len(t, warns, 1)
	assert.Equal(t, "second", warns[0].Message)

	byID, err := l.GetLogById(all[2].Id)
	require.NoError(t, err)
	assert.Equal(t, "first", byID.Message)
	assert.Equal(t, "a", byID.Details["key"])

	page, err := l.GetLogs("", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "second", page[0].Message)
}

func TestReadLogFileMissing(t *testing.T) {
	entries, err := ReadLogFile(filepath.Join(t.TempDir(), "none.log"), "", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNopLoggerSatisfiesInterface(t *testing.T) {
	var l ILogger = NewNopLogger()
	l.Info("X", "ignored", nil)
	assert.NoError(t, l.Sync())
}
