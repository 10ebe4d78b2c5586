package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, "acct-1")

	l.Info("hello %d", 1)
	l.Critical("remaining quantity %.2f", -1.0)
	l.LogTradeExecution("buy", "o-1", "BTCUSDT", 0.1, 50025, 5.0025, false)

	out := buf.String()
	assert.Contains(t, out, "[INFO] [acct-1] hello 1")
	assert.Contains(t, out, "[CRITICAL] [acct-1] remaining quantity -1.00")
	assert.Contains(t, out, "[TRADE] [acct-1] OPEN buy 0.10000000 BTCUSDT")
	assert.Equal(t, "", l.GetLogPath())
}

func TestNilLogger_IsSafe(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() {
		l.Info("ignored")
		_ = l.Close()
	})
}

func TestFileLogger_WritesHeaderAndFooter(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger("session", dir)
	require.NoError(t, err)

	l.Warning("near limit")
	path := l.GetLogPath()
	require.NoError(t, l.Close())

	assert.Equal(t, dir, filepath.Dir(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "PAPER TRADING SESSION STARTED")
	assert.Contains(t, string(data), "[WARN] [session] near limit")
	assert.Contains(t, string(data), "PAPER TRADING SESSION ENDED")
}
