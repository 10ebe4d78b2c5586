package common

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagValidator(t *testing.T) {
	assert.NoError(t, NewFlagValidator().ValidateInt("workers", 4, 1, 8).Err())

	err := NewFlagValidator().ValidateInt("workers", 0, 1, 8).Err()
	require.Error(t, err)
	assert.Equal(t, "validation error: workers must be between 1 and 8, got: 0", err.Error())

	v := NewFlagValidator().
		ValidateFloat("fee", 2, 0, 1).
		ValidateChoice("side", "up", []string{"long", "short"}).
		ValidateFile("data", filepath.Join(t.TempDir(), "missing.csv"), true).
		ValidateFile("config", "", true)
	assert.True(t, v.HasErrors())
	msg := v.Err().Error()
	assert.Contains(t, msg, "validation errors:")
	assert.Contains(t, msg, "side must be one of [long, short], got: up")
	assert.Contains(t, msg, "data file does not exist")
	assert.Contains(t, msg, "config is required")
}

func TestConsole(t *testing.T) {
	var out bytes.Buffer
	c := &Console{Out: &out}
	c.Info("loaded %d candles", 3)
	c.Success("done")
	assert.Equal(t, "[INFO] loaded 3 candles\n[SUCCESS] done\n", out.String())

	out.Reset()
	c.SilentMode = true
	c.Info("hidden")
	c.Warn("shown")
	assert.Equal(t, "[WARN] shown\n", out.String())

	assert.Equal(t, "$12.50", FormatCurrency(12.5))
	assert.Equal(t, "12.5%", FormatPercent(12.5, 1))
}
