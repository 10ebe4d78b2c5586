package stats

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/ducminhle1904/crypto-paper-risk/internal/paper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func closing(pnl, entry, qty float64, held time.Duration) paper.PaperTrade {
	return paper.PaperTrade{
		IsClosing:   true,
		RealizedPnL: pnl,
		EntryPrice:  entry,
		Quantity:    qty,
		OpenedAt:    t0,
		Timestamp:   t0.Add(held),
		Fees:        1,
	}
}

func TestCompute_Empty(t *testing.T) {
	s := Compute(10000, nil, paper.Balance{Equity: 10000, PeakEquity: 10000}, nil)

	assert.Zero(t, s.TotalTrades)
	assert.Zero(t, s.WinRate)
	assert.Zero(t, s.ProfitFactor)
	assert.Zero(t, s.SharpeRatio)
	assert.Zero(t, s.ReturnPercent)
}

func TestCompute_SingleWinningTrade(t *testing.T) {
	trades := []paper.PaperTrade{
		{IsClosing: false, Fees: 5.0025, Quantity: 0.1},
		closing(184.7, 50025, 0.1, time.Hour),
	}
	s := Compute(10000, trades, paper.Balance{Equity: 10184.7, PeakEquity: 10184.7}, nil)

	assert.Equal(t, 1, s.TotalTrades)
	assert.Equal(t, 1, s.WinningTrades)
	assert.Equal(t, 100.0, s.WinRate)
	assert.True(t, math.IsInf(s.ProfitFactor, 1))
	assert.InDelta(t, 184.7, s.AvgWin, 1e-9)
	assert.InDelta(t, 6.0025, s.TotalFees, 1e-9)
	assert.Equal(t, time.Hour, s.AvgHoldingTime)
	assert.InDelta(t, 1.847, s.ReturnPercent, 1e-9)
}

func TestCompute_MixedTrades(t *testing.T) {
	trades := []paper.PaperTrade{
		closing(100, 1000, 1, time.Hour),
		closing(-50, 1000, 1, 3*time.Hour),
		closing(200, 1000, 1, 2*time.Hour),
		closing(-25, 1000, 1, 2*time.Hour),
	}
	s := Compute(10000, trades, paper.Balance{Equity: 10225}, nil)

	assert.Equal(t, 4, s.TotalTrades)
	assert.Equal(t, 2, s.WinningTrades)
	assert.Equal(t, 2, s.LosingTrades)
	assert.Equal(t, 50.0, s.WinRate)
	assert.InDelta(t, 225, s.TotalPnL, 1e-9)
	assert.InDelta(t, 150, s.AvgWin, 1e-9)
	assert.InDelta(t, 37.5, s.AvgLoss, 1e-9)
	assert.InDelta(t, 4, s.ProfitFactor, 1e-9)
	assert.Equal(t, 200.0, s.LargestWin)
	assert.Equal(t, -50.0, s.LargestLoss)
	assert.InDelta(t, 56.25, s.Expectancy, 1e-9)
	assert.Greater(t, s.SharpeRatio, 0.0)
	assert.Equal(t, 2*time.Hour, s.AvgHoldingTime)
}

func TestCompute_BreakevenIsNeitherWinNorLoss(t *testing.T) {
	trades := []paper.PaperTrade{
		closing(0, 100, 1, time.Minute),
		closing(10, 100, 1, time.Minute),
		closing(-4, 100, 1, time.Minute),
		closing(0, 100, 1, time.Minute),
	}
	s := Compute(1000, trades, paper.Balance{Equity: 1006}, nil)

	assert.Equal(t, 4, s.TotalTrades)
	assert.Equal(t, 2, s.BreakevenTrades)
	assert.Equal(t, 1, s.WinningTrades)
	assert.Equal(t, 1, s.LosingTrades)
	assert.Equal(t, 50.0, s.WinRate)
	assert.InDelta(t, 4.0, s.AvgLoss, 1e-9)
	assert.Equal(t, -4.0, s.LargestLoss)
	assert.InDelta(t, 1.5, s.Expectancy, 1e-9)

	only := Compute(1000, []paper.PaperTrade{closing(0, 100, 1, time.Minute)}, paper.Balance{Equity: 1000}, nil)
	assert.Zero(t, only.LosingTrades)
	assert.Zero(t, only.WinRate)
	assert.Zero(t, only.AvgLoss)
}

func TestSharpeRatio(t *testing.T) {
	assert.Zero(t, SharpeRatio(nil))
	assert.Zero(t, SharpeRatio([]float64{0.1, 0.1, 0.1}), "zero variance")
	assert.Greater(t, SharpeRatio([]float64{0.1, 0.05, 0.2}), 0.0)
	assert.Less(t, SharpeRatio([]float64{-0.1, -0.05, -0.2}), 0.0)
}

func TestProfitFactor(t *testing.T) {
	assert.Zero(t, ProfitFactor(0, 0))
	assert.Zero(t, ProfitFactor(0, 10))
	assert.True(t, math.IsInf(ProfitFactor(10, 0), 1))
	assert.Equal(t, 2.0, ProfitFactor(20, 10))
}

func TestTracker_DrawdownSurvivesCurveBound(t *testing.T) {
	tr := NewTracker(1000, 3)
	equities := []float64{1000, 1200, 900, 1000, 1050, 1100}
	for i, e := range equities {
		tr.RecordEquity(t0.Add(time.Duration(i)*time.Minute), e, 0.5)
	}

	assert.Len(t, tr.Curve(), 3)
	s := tr.Compute(nil, paper.Balance{Equity: 1100, PeakEquity: 1200})
	assert.InDelta(t, 0.25, s.MaxDrawdown, 1e-9)
	assert.Equal(t, 1200.0, s.PeakEquity)
	assert.InDelta(t, 0.5, s.AvgExposure, 1e-9)
}

func TestTracker_RecordBalanceExposure(t *testing.T) {
	tr := NewTracker(1000, 0)
	tr.RecordBalance(paper.Balance{Equity: 1000, UpdatedAt: t0}, []paper.Position{
		{RemainingQuantity: 2, CurrentPrice: 100},
		{RemainingQuantity: 1, CurrentPrice: 300},
	})

	curve := tr.Curve()
	require.Len(t, curve, 1)
	assert.InDelta(t, 0.5, curve[0].Exposure, 1e-9)
	assert.Equal(t, t0, curve[0].Timestamp)
}

func TestStatsJSON_InfiniteRatiosAreNull(t *testing.T) {
	s := Stats{TotalTrades: 1, ProfitFactor: math.Inf(1), SortinoRatio: 1.5}
	data, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Nil(t, decoded["profit_factor"])
	assert.Equal(t, 1.5, decoded["sortino_ratio"])
	assert.Equal(t, 1.0, decoded["total_trades"])
}
