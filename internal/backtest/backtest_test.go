package backtest

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/crypto-paper-risk/internal/config"
	riskerrors "github.com/ducminhle1904/crypto-paper-risk/internal/errors"
	"github.com/ducminhle1904/crypto-paper-risk/internal/events"
	"github.com/ducminhle1904/crypto-paper-risk/internal/logger"
	"github.com/ducminhle1904/crypto-paper-risk/internal/orchestrator"
	"github.com/ducminhle1904/crypto-paper-risk/internal/paper"
	"github.com/ducminhle1904/crypto-paper-risk/pkg/types"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func series(closes []float64) []types.OHLCV {
	out := make([]types.OHLCV, len(closes))
	prev := closes[0]
	for i, c := range closes {
		out[i] = types.OHLCV{
			Timestamp: t0.Add(time.Duration(i) * time.Hour),
			Open:      prev,
			High:      math.Max(prev, c) + 0.1,
			Low:       math.Min(prev, c) - 0.1,
			Close:     c,
			Volume:    1000,
		}
		prev = c
	}
	return out
}

func rising(n int) []types.OHLCV {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	return series(closes)
}

func falling(n int) []types.OHLCV {
	closes := make([]float64, n)
	p := 100.0
	for i := range closes {
		closes[i] = p
		p *= 0.97
	}
	return series(closes)
}

func job(id string, candles []types.OHLCV, s Strategy) Job {
	return Job{
		ID:       id,
		Symbol:   "BTCUSDT",
		Candles:  candles,
		Ledger:   paper.LedgerConfig{InitialBalance: 10000},
		Risk:     config.DefaultRiskConfig(),
		Strategy: s,
	}
}

func TestBreakout_Signal(t *testing.T) {
	b := Breakout{Lookback: 3, AllowShort: true}
	c := series([]float64{100, 101, 102, 103, 104})
	side, ok := b.Signal(c)
	require.True(t, ok)
	assert.Equal(t, types.Long, side)

	side, ok = b.Signal(series([]float64{100, 99, 98, 97, 96}))
	require.True(t, ok)
	assert.Equal(t, types.Short, side)

	_, ok = Breakout{Lookback: 3}.Signal(series([]float64{100, 99, 98, 97, 96}))
	assert.False(t, ok, "shorts disabled")

	_, ok = b.Signal(c[:3])
	assert.False(t, ok, "not enough history")
}

func TestEveryN_Signal(t *testing.T) {
	e := EveryN{N: 3, Side: types.Short}
	c := rising(6)
	_, ok := e.Signal(c[:2])
	assert.False(t, ok)
	side, ok := e.Signal(c[:3])
	require.True(t, ok)
	assert.Equal(t, types.Short, side)
}

func TestRun_TakeProfitCycles(t *testing.T) {
	j := job("rising", rising(30), EveryN{N: 3, Side: types.Long})
	j.CloseAtEnd = true

	res := Run(context.Background(), j, logger.Nop())
	require.NoError(t, res.Error)

	assert.Equal(t, 5, res.Signals)
	assert.Empty(t, res.Rejections)
	assert.False(t, res.Halted)
	require.Len(t, res.Positions, 5)
	for _, p := range res.Positions[:4] {
		assert.Equal(t, paper.ExitReasonTakeProfit, p.ExitReason)
	}
	assert.Equal(t, paper.ExitReasonManual, res.Positions[4].ExitReason)

	assert.Equal(t, 5, res.Stats.WinningTrades)
	assert.InDelta(t, 100, res.Stats.WinRate, 1e-9)
	assert.Greater(t, res.Snapshot.Account.Balance.Cash, 10000.0)
	assert.Empty(t, res.Snapshot.Account.Positions)
	assert.NotEmpty(t, res.EquityCurve)
	assert.Equal(t, 30, res.Candles)
	assert.Equal(t, "every_3_long", res.Strategy)
}

func TestRun_DrawdownHaltsRun(t *testing.T) {
	j := job("falling", falling(40), EveryN{N: 2, Side: types.Long})
	j.Risk.MaxDrawdownPercent = 1

	res := Run(context.Background(), j, logger.Nop())
	require.NoError(t, res.Error)

	assert.True(t, res.Halted)
	assert.NotEmpty(t, res.HaltReason)
	assert.GreaterOrEqual(t, res.Signals, 4)
	assert.Empty(t, res.Snapshot.Account.Positions)
	for _, p := range res.Positions {
		assert.Less(t, p.RealizedPnL, 0.0)
	}

	var breached bool
	for _, ev := range res.Events {
		if ev.Type == events.DrawdownBreached {
			breached = true
		}
	}
	assert.True(t, breached)
}

func TestRun_CompanionsShareCorrelationLimit(t *testing.T) {
	btc := rising(12)
	eth := make([]types.OHLCV, len(btc))
	for i, c := range btc {
		eth[i] = types.OHLCV{Timestamp: c.Timestamp, Open: c.Open / 2, High: c.High / 2, Low: c.Low / 2, Close: c.Close / 2, Volume: c.Volume}
	}

	j := job("pair", btc, EveryN{N: 5, Side: types.Long})
	j.Companions = map[string][]types.OHLCV{"ETHUSDT": eth}
	j.Risk.MaxCorrelatedPositions = 1
	j.Risk.CorrelationPeriod = 10

	var seen []string
	j.OnCandle = func(symbol string, c types.OHLCV, out orchestrator.TickOutcome) {
		if c.Timestamp.Equal(t0) {
			seen = append(seen, symbol)
		}
	}

	res := Run(context.Background(), j, logger.Nop())
	require.NoError(t, res.Error)

	assert.Equal(t, 24, res.Candles)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, seen)
	assert.GreaterOrEqual(t, res.Rejections[string(riskerrors.CodeCorrelationLimitExceeded)], 1)

	var rejected *events.RiskEvent
	for i, ev := range res.Events {
		if ev.Type == events.CorrelationRejected {
			rejected = &res.Events[i]
			break
		}
	}
	require.NotNil(t, rejected)
	assert.Equal(t, "ETHUSDT", rejected.Symbol)

	var opened []string
	for _, ev := range res.Events {
		if ev.Type == events.PositionOpened {
			opened = append(opened, ev.Symbol)
		}
	}
	require.NotEmpty(t, opened)
	assert.Equal(t, "BTCUSDT", opened[0], "the first symbol in a timestamp opens first")
}

func TestRun_SkipsInvalidCandles(t *testing.T) {
	candles := rising(5)
	candles[2].High = candles[2].Low - 1

	res := Run(context.Background(), job("skip", candles, EveryN{N: 100, Side: types.Long}), nil)
	require.NoError(t, res.Error)
	assert.Equal(t, 1, res.Skipped)
}

func TestRun_RejectsIncompleteJob(t *testing.T) {
	res := Run(context.Background(), Job{ID: "x"}, nil)
	assert.Error(t, res.Error)
}

func TestWorkerPool_RunBatchKeepsOrder(t *testing.T) {
	jobs := []Job{
		job("", rising(30), EveryN{N: 3, Side: types.Long}),
		{ID: "broken"},
		job("second", falling(20), EveryN{N: 2, Side: types.Long}),
	}

	wp := NewWorkerPool(2, nil)
	results := wp.RunBatch(context.Background(), jobs)
	require.Len(t, results, 3)

	assert.NotEmpty(t, results[0].ID, "missing ids are generated")
	assert.NoError(t, results[0].Error)
	assert.Equal(t, "broken", results[1].ID)
	assert.Error(t, results[1].Error)
	assert.Equal(t, "second", results[2].ID)
	assert.NoError(t, results[2].Error)

	done, total, pct, _ := wp.Progress().GetProgress()
	assert.Equal(t, 3, done)
	assert.Equal(t, 3, total)
	assert.InDelta(t, 100, pct, 1e-9)
}

func TestWorkerPool_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	jobs := []Job{
		job("a", rising(10), EveryN{N: 3, Side: types.Long}),
		job("b", rising(10), EveryN{N: 3, Side: types.Long}),
	}
	for _, r := range NewWorkerPool(1, nil).RunBatch(ctx, jobs) {
		assert.ErrorIs(t, r.Error, context.Canceled)
	}
}
