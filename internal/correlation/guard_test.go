package correlation

import (
	"math"
	"testing"
	"time"

	riskerrors "github.com/ducminhle1904/crypto-paper-risk/internal/errors"
	"github.com/ducminhle1904/crypto-paper-risk/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func feed(g *Guard, symbol string, prices []float64) {
	for i, p := range prices {
		g.AddPrice(symbol, p, start.Add(time.Duration(i)*time.Minute))
	}
}

func newTestGuard(maxCorrelated int) *Guard {
	return NewGuard(Config{Period: 30, Threshold: 0.7, MaxCorrelatedPositions: maxCorrelated}, logger.Nop())
}

var (
	upDown   = []float64{100, 102, 101, 104, 103, 107, 106, 110}
	scaled   = []float64{50, 51, 50.5, 52, 51.5, 53.5, 53, 55}
	inverted = []float64{100, 98, 99, 96, 97, 93, 94, 90}
)

func TestPearson(t *testing.T) {
	c, ok := Pearson([]float64{1, 2, 3, 4}, []float64{2, 4, 6, 8})
	require.True(t, ok)
	assert.InDelta(t, 1.0, c, 1e-12)

	c, ok = Pearson([]float64{1, 2, 3, 4}, []float64{8, 6, 4, 2})
	require.True(t, ok)
	assert.InDelta(t, -1.0, c, 1e-12)

	_, ok = Pearson([]float64{1, 2}, []float64{1, 2})
	assert.False(t, ok, "two points are not enough")

	_, ok = Pearson([]float64{1, 1, 1}, []float64{1, 2, 3})
	assert.False(t, ok, "zero variance is undefined")
}

func TestGuard_Correlation(t *testing.T) {
	g := newTestGuard(1)
	feed(g, "BTCUSDT", upDown)
	feed(g, "ETHUSDT", scaled)
	feed(g, "XRPUSDT", inverted)

	c, ok := g.Correlation("BTCUSDT", "ETHUSDT")
	require.True(t, ok)
	assert.Greater(t, c, 0.9)

	c, ok = g.Correlation("BTCUSDT", "XRPUSDT")
	require.True(t, ok)
	assert.Less(t, c, 0.0)

	_, ok = g.Correlation("BTCUSDT", "UNKNOWN")
	assert.False(t, ok)
}

func TestGuard_WindowIsBounded(t *testing.T) {
	g := NewGuard(Config{Period: 5, Threshold: 0.7, MaxCorrelatedPositions: 1}, logger.Nop())
	feed(g, "BTCUSDT", upDown)

	h := g.History("BTCUSDT")
	require.Len(t, h, 5)
	assert.Equal(t, 110.0, h[4].Close)
	assert.Equal(t, 104.0, h[0].Close)
}

func TestGuard_SameTimestampReplacesLastBar(t *testing.T) {
	g := newTestGuard(1)
	g.AddPrice("BTCUSDT", 100, start)
	g.AddPrice("BTCUSDT", 101, start)

	h := g.History("BTCUSDT")
	require.Len(t, h, 1)
	assert.Equal(t, 101.0, h[0].Close)
}

func TestGuard_CheckRejectsAtLimit(t *testing.T) {
	g := newTestGuard(1)
	feed(g, "BTCUSDT", upDown)
	feed(g, "ETHUSDT", scaled)
	feed(g, "XRPUSDT", inverted)

	assert.NoError(t, g.Check("ETHUSDT", nil))
	assert.NoError(t, g.Check("ETHUSDT", []string{"XRPUSDT"}), "negative correlation does not count")
	assert.NoError(t, g.Check("BTCUSDT", []string{"BTCUSDT"}), "same symbol is not counted")

	err := g.Check("ETHUSDT", []string{"BTCUSDT"})
	require.Error(t, err)
	assert.ErrorIs(t, err, riskerrors.ErrCorrelationLimitExceeded)
	assert.Contains(t, riskerrors.ReasonOf(err), "BTCUSDT")
}

func TestGuard_InsufficientHistoryFailsOpen(t *testing.T) {
	g := newTestGuard(1)
	feed(g, "BTCUSDT", upDown[:3])
	feed(g, "ETHUSDT", scaled[:3])

	assert.NoError(t, g.Check("ETHUSDT", []string{"BTCUSDT"}))
}

func TestGuard_MatrixAndPairsAreDeterministic(t *testing.T) {
	g := newTestGuard(2)
	feed(g, "XRPUSDT", inverted)
	feed(g, "BTCUSDT", upDown)
	feed(g, "ETHUSDT", scaled)
	feed(g, "NEWUSDT", []float64{1})

	m := g.Matrix()
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT", "NEWUSDT", "XRPUSDT"}, m.Symbols)
	for i := range m.Symbols {
		assert.Equal(t, 1.0, m.Values[i][i])
		for j := range m.Symbols {
			if math.IsNaN(m.Values[i][j]) {
				assert.True(t, math.IsNaN(m.Values[j][i]))
				continue
			}
			assert.Equal(t, m.Values[i][j], m.Values[j][i])
		}
	}

	_, ok := m.Get("BTCUSDT", "NEWUSDT")
	assert.False(t, ok)

	pairs := g.Pairs()
	require.Len(t, pairs, 6)
	keys := make([]string, len(pairs))
	for i, p := range pairs {
		keys[i] = p.Key()
		assert.Less(t, p.A, p.B)
	}
	assert.Equal(t, []string{
		"BTCUSDT|ETHUSDT", "BTCUSDT|NEWUSDT", "BTCUSDT|XRPUSDT",
		"ETHUSDT|NEWUSDT", "ETHUSDT|XRPUSDT", "NEWUSDT|XRPUSDT",
	}, keys)
	assert.Equal(t, "BTCUSDT|ETHUSDT", PairKey("ETHUSDT", "BTCUSDT"))
}

func TestGuard_UpdateConfigTrims(t *testing.T) {
	g := newTestGuard(1)
	feed(g, "BTCUSDT", upDown)

	g.UpdateConfig(Config{Period: 4, Threshold: 0.5, MaxCorrelatedPositions: 3})
	assert.Len(t, g.History("BTCUSDT"), 4)
	assert.Equal(t, 0.5, g.Config().Threshold)
}

func TestGuard_CorrelationAlignsOnTimestamps(t *testing.T) {
	g := newTestGuard(1)
	// BTC every minute, ETH every other minute tracking BTC at those minutes.
	btc := []float64{100, 130, 102, 90, 101, 140, 104, 85, 103, 150, 107, 80, 110}
	feed(g, "BTCUSDT", btc)
	for i := 0; i < len(btc); i += 2 {
		g.AddPrice("ETHUSDT", btc[i]/2, start.Add(time.Duration(i)*time.Minute))
	}

	c, ok := g.Correlation("BTCUSDT", "ETHUSDT")
	require.True(t, ok)
	assert.InDelta(t, 1.0, c, 1e-9)

	// Disjoint timestamps share no bars.
	g.AddPrice("SOLUSDT", 10, start.Add(30*time.Second))
	g.AddPrice("SOLUSDT", 11, start.Add(90*time.Second))
	g.AddPrice("SOLUSDT", 12, start.Add(150*time.Second))
	g.AddPrice("SOLUSDT", 13, start.Add(210*time.Second))
	g.AddPrice("SOLUSDT", 12, start.Add(270*time.Second))
	_, ok = g.Correlation("BTCUSDT", "SOLUSDT")
	assert.False(t, ok)
}

func TestGuard_CheckCountsEachOpenPosition(t *testing.T) {
	g := newTestGuard(2)
	feed(g, "BTCUSDT", upDown)
	feed(g, "ETHUSDT", scaled)

	assert.NoError(t, g.Check("BTCUSDT", []string{"ETHUSDT"}))

	err := g.Check("BTCUSDT", []string{"ETHUSDT", "ETHUSDT"})
	require.Error(t, err)
	assert.ErrorIs(t, err, riskerrors.ErrCorrelationLimitExceeded)
	assert.Len(t, g.CorrelatedWith("BTCUSDT", []string{"ETHUSDT", "ETHUSDT"}), 2)
}
