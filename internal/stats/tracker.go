// Package stats derives trading performance figures from the trades and
// balance of a paper account. Nothing here is authoritative state: every
// Stats value is recomputed from its inputs on demand.
package stats

import (
	"sync"
	"time"

	"github.com/ducminhle1904/crypto-paper-risk/internal/paper"
)

// DefaultCurveLimit bounds the equity samples a Tracker keeps
const DefaultCurveLimit = 10000

// EquityPoint is one sample of the equity curve
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
	Exposure  float64   `json:"exposure"` // open notional / equity
}

// Stats is the derived performance summary of one account
type Stats struct {
	TotalTrades     int           `json:"total_trades"`
	WinningTrades   int           `json:"winning_trades"`
	LosingTrades    int           `json:"losing_trades"`
	BreakevenTrades int           `json:"breakeven_trades"`
	WinRate         float64       `json:"win_rate"` // percent of decided trades
	TotalPnL        float64       `json:"total_pnl"`
	GrossProfit     float64       `json:"gross_profit"`
	GrossLoss       float64       `json:"gross_loss"`
	AvgWin          float64       `json:"avg_win"`
	AvgLoss         float64       `json:"avg_loss"`
	LargestWin      float64       `json:"largest_win"`
	LargestLoss     float64       `json:"largest_loss"`
	ProfitFactor    float64       `json:"profit_factor"`
	Expectancy      float64       `json:"expectancy"`
	SharpeRatio     float64       `json:"sharpe_ratio"`
	SortinoRatio    float64       `json:"sortino_ratio"`
	TotalFees       float64       `json:"total_fees"`
	TotalSlippage   float64       `json:"total_slippage"`
	AvgHoldingTime  time.Duration `json:"avg_holding_time"`
	InitialBalance  float64       `json:"initial_balance"`
	Equity          float64       `json:"equity"`
	ReturnPercent   float64       `json:"return_percent"`
	PeakEquity      float64       `json:"peak_equity"`
	MaxDrawdown     float64       `json:"max_drawdown"` // fraction of peak
	CurrentDrawdown float64       `json:"current_drawdown"`
	MaxExposure     float64       `json:"max_exposure"`
	AvgExposure     float64       `json:"avg_exposure"`
	OpenPositions   int           `json:"open_positions"`
	UnrealizedPnL   float64       `json:"unrealized_pnl"`
}

// Tracker keeps the equity curve of one account. Trade figures are always
// recomputed from the account's own trade list.
type Tracker struct {
	mu      sync.RWMutex
	initial float64
	limit   int
	curve   []EquityPoint

	// the curve is bounded; peak and drawdown are tracked over every sample
	peak        float64
	maxDrawdown float64
}

// NewTracker creates a tracker for an account funded with initial
func NewTracker(initial float64, limit int) *Tracker {
	if limit <= 0 {
		limit = DefaultCurveLimit
	}
	return &Tracker{
		initial: initial,
		limit:   limit,
		peak:    initial,
	}
}

// RecordEquity appends an equity sample
func (t *Tracker) RecordEquity(ts time.Time, equity, exposure float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if equity > t.peak {
		t.peak = equity
	}
	if t.peak > 0 {
		if dd := (t.peak - equity) / t.peak; dd > t.maxDrawdown {
			t.maxDrawdown = dd
		}
	}

	t.curve = append(t.curve, EquityPoint{Timestamp: ts, Equity: equity, Exposure: exposure})
	if len(t.curve) > t.limit {
		t.curve = append(t.curve[:0], t.curve[len(t.curve)-t.limit:]...)
	}
}

// RecordBalance samples equity and exposure from a balance and its open positions
func (t *Tracker) RecordBalance(bal paper.Balance, open []paper.Position) {
	exposure := 0.0
	if bal.Equity > 0 {
		notional := 0.0
		for _, p := range open {
			notional += p.RemainingQuantity * p.CurrentPrice
		}
		exposure = notional / bal.Equity
	}
	t.RecordEquity(bal.UpdatedAt, bal.Equity, exposure)
}

// Curve returns a copy of the recorded equity samples
func (t *Tracker) Curve() []EquityPoint {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]EquityPoint, len(t.curve))
	copy(out, t.curve)
	return out
}

// InitialBalance returns the starting balance
func (t *Tracker) InitialBalance() float64 {
	return t.initial
}

// Reset drops the curve and restarts drawdown tracking from equity
func (t *Tracker) Reset(equity float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.curve = nil
	t.peak = equity
	t.maxDrawdown = 0
}

// Compute derives Stats from the account's trades and current balance
func (t *Tracker) Compute(trades []paper.PaperTrade, bal paper.Balance) Stats {
	t.mu.RLock()
	curve := make([]EquityPoint, len(t.curve))
	copy(curve, t.curve)
	peak, maxDD := t.peak, t.maxDrawdown
	t.mu.RUnlock()

	s := Compute(t.initial, trades, bal, curve)
	if peak > s.PeakEquity {
		s.PeakEquity = peak
	}
	if maxDD > s.MaxDrawdown {
		s.MaxDrawdown = maxDD
	}
	return s
}
