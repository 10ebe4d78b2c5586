package backtest

import (
	"fmt"

	"github.com/ducminhle1904/crypto-paper-risk/internal/indicators"
	"github.com/ducminhle1904/crypto-paper-risk/pkg/types"
)

// Strategy decides entries from the closed candles seen so far. Exits are
// left to the risk plan attached on open.
type Strategy interface {
	Name() string
	Signal(history []types.OHLCV) (types.PositionSide, bool)
}

// Breakout enters long when the latest close clears the highest high of the
// previous Lookback candles, and short on the mirror break when AllowShort.
type Breakout struct {
	Lookback   int
	AllowShort bool
}

// Name identifies the strategy in results
func (b Breakout) Name() string {
	return fmt.Sprintf("breakout_%d", b.Lookback)
}

// Signal implements Strategy
func (b Breakout) Signal(history []types.OHLCV) (types.PositionSide, bool) {
	if b.Lookback <= 0 || len(history) <= b.Lookback {
		return "", false
	}
	last := history[len(history)-1]
	prev := history[:len(history)-1]

	if high, ok := indicators.SwingHigh(prev, b.Lookback); ok && last.Close > high {
		return types.Long, true
	}
	if !b.AllowShort {
		return "", false
	}
	if low, ok := indicators.SwingLow(prev, b.Lookback); ok && last.Close < low {
		return types.Short, true
	}
	return "", false
}

// EveryN opens a position of Side every N candles. Useful to exercise the
// risk layer independently of market structure.
type EveryN struct {
	N    int
	Side types.PositionSide
}

// Name identifies the strategy in results
func (e EveryN) Name() string {
	return fmt.Sprintf("every_%d_%s", e.N, e.Side)
}

// Signal implements Strategy
func (e EveryN) Signal(history []types.OHLCV) (types.PositionSide, bool) {
	if e.N <= 0 || len(history) == 0 || len(history)%e.N != 0 {
		return "", false
	}
	return e.Side, true
}
