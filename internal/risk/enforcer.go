// Package risk enforces portfolio limits: position count, per-asset and
// aggregate exposure, daily loss and drawdown.
package risk

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ducminhle1904/crypto-paper-risk/internal/config"
	riskerrors "github.com/ducminhle1904/crypto-paper-risk/internal/errors"
	"github.com/ducminhle1904/crypto-paper-risk/internal/logger"
)

const component = "risk"

// Limit names carried in the "limit" context of a LimitExceeded error
const (
	LimitDailyLoss     = "daily_loss"
	LimitDrawdown      = "drawdown"
	LimitMaxPositions  = "max_positions"
	LimitAssetExposure = "asset_exposure"
	LimitTotalExposure = "total_exposure"
)

// EmergencyStopper is invoked when drawdown first crosses its limit.
type EmergencyStopper interface {
	EmergencyStop(ctx context.Context, reason string) error
}

type exposure struct {
	symbol string
	size   float64
}

// Enforcer tracks exposure, daily P&L and drawdown and approves new positions.
// Safe for concurrent use.
type Enforcer struct {
	mu     sync.Mutex
	cfg    config.RiskConfig
	logger *logger.Logger

	positions     map[string]exposure
	assetExposure map[string]float64
	totalExposure float64

	dailyPnL    float64
	dailyDate   time.Time
	dailyHalted bool

	peakEquity       float64
	currentEquity    float64
	drawdown         float64
	drawdownBreached bool

	clock time.Time
}

// Status is a point-in-time view of the enforcer
type Status struct {
	OpenPositions    int                `json:"open_positions"`
	TotalExposure    float64            `json:"total_exposure"`
	AssetExposure    map[string]float64 `json:"asset_exposure"`
	DailyPnL         float64            `json:"daily_pnl"`
	DailyDate        time.Time          `json:"daily_date"`
	DailyHalted      bool               `json:"daily_halted"`
	PeakEquity       float64            `json:"peak_equity"`
	CurrentEquity    float64            `json:"current_equity"`
	Drawdown         float64            `json:"drawdown"`
	DrawdownBreached bool               `json:"drawdown_breached"`
}

// CloseOutcome reports what a recorded close did to the daily limits
type CloseOutcome struct {
	DailyPnL    float64
	NewlyHalted bool
}

// DrawdownStatus reports the result of an equity update
type DrawdownStatus struct {
	PeakEquity    float64
	Drawdown      float64 // fraction, 0.1 = 10%
	Breached      bool
	NewlyBreached bool
}

// NewEnforcer creates an enforcer for cfg starting at initialEquity
func NewEnforcer(cfg config.RiskConfig, initialEquity float64, log *logger.Logger) *Enforcer {
	return &Enforcer{
		cfg:           cfg,
		logger:        log,
		positions:     make(map[string]exposure),
		assetExposure: make(map[string]float64),
		peakEquity:    initialEquity,
		currentEquity: initialEquity,
	}
}

// UpdateConfig swaps the limits. Tracked state is kept.
func (e *Enforcer) UpdateConfig(cfg config.RiskConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
}

// AdvanceTo moves the enforcer clock to ts and resets the daily counters
// when the UTC day changed. Simulations drive the clock with tick time.
func (e *Enforcer) AdvanceTo(ts time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ts.After(e.clock) {
		e.clock = ts
	}
	e.resetDailyIfNeeded()
}

func (e *Enforcer) now() time.Time {
	if e.clock.IsZero() {
		return time.Now().UTC()
	}
	return e.clock.UTC()
}

func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// resetDailyIfNeeded resets daily counters if a new UTC day has started
func (e *Enforcer) resetDailyIfNeeded() {
	today := utcDay(e.now())
	if e.dailyDate.IsZero() {
		e.dailyDate = today
		return
	}
	if today.After(e.dailyDate) {
		e.logger.Info("Daily limits reset: previous day P&L $%.2f, halted=%t", e.dailyPnL, e.dailyHalted)
		e.dailyDate = today
		e.dailyPnL = 0
		e.dailyHalted = false
	}
}

// ResetDaily clears the daily P&L and the halt flag
func (e *Enforcer) ResetDaily() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dailyDate = utcDay(e.now())
	e.dailyPnL = 0
	e.dailyHalted = false
}

func limitErr(limit, format string, args ...interface{}) error {
	return riskerrors.LimitExceeded(component, "CheckNewPosition", format, args...).WithContext("limit", limit)
}

// CheckNewPosition approves or rejects a new position of size (quote value)
// on symbol against balance.
func (e *Enforcer) CheckNewPosition(symbol string, size, balance float64) error {
	if symbol == "" {
		return riskerrors.InvalidParameter(component, "CheckNewPosition", "symbol is required")
	}
	if size <= 0 {
		return riskerrors.InvalidParameter(component, "CheckNewPosition", "position size must be positive, got %.2f", size)
	}
	if balance <= 0 {
		return riskerrors.InvalidParameter(component, "CheckNewPosition", "balance must be positive, got %.2f", balance)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetDailyIfNeeded()

	if e.dailyHalted {
		return limitErr(LimitDailyLoss, "trading halted for the day: daily P&L $%.2f breached the %.2f%% loss limit",
			e.dailyPnL, e.cfg.MaxDailyLossPercent)
	}
	if e.drawdown*100 >= e.cfg.MaxDrawdownPercent {
		return limitErr(LimitDrawdown, "drawdown %.2f%% is at or above the %.2f%% limit",
			e.drawdown*100, e.cfg.MaxDrawdownPercent)
	}
	if len(e.positions) >= e.cfg.MaxPositions {
		return limitErr(LimitMaxPositions, "maximum open positions reached (%d/%d)", len(e.positions), e.cfg.MaxPositions)
	}

	maxAsset := balance * e.cfg.MaxAssetExposurePercent / 100
	if current := e.assetExposure[symbol]; current+size > maxAsset {
		return limitErr(LimitAssetExposure, "%s exposure $%.2f + $%.2f would exceed $%.2f (%.2f%% of balance)",
			symbol, current, size, maxAsset, e.cfg.MaxAssetExposurePercent)
	}

	maxTotal := balance * e.cfg.MaxPositionSizePercent / 100 * float64(e.cfg.MaxPositions)
	if e.totalExposure+size > maxTotal {
		return limitErr(LimitTotalExposure, "total exposure $%.2f + $%.2f would exceed $%.2f",
			e.totalExposure, size, maxTotal)
	}

	return nil
}

// RegisterPosition starts tracking an open position's exposure
func (e *Enforcer) RegisterPosition(positionID, symbol string, size float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if old, ok := e.positions[positionID]; ok {
		e.removeExposure(old)
	}
	exp := exposure{symbol: symbol, size: size}
	e.positions[positionID] = exp
	e.assetExposure[symbol] += size
	e.totalExposure += size
}

// UpdatePositionSize replaces the tracked exposure of a partially closed position
func (e *Enforcer) UpdatePositionSize(positionID string, size float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	old, ok := e.positions[positionID]
	if !ok {
		return
	}
	if size <= 0 {
		e.removeExposure(old)
		delete(e.positions, positionID)
		return
	}
	e.removeExposure(old)
	old.size = size
	e.positions[positionID] = old
	e.assetExposure[old.symbol] += size
	e.totalExposure += size
}

// ReleasePosition stops tracking a closed position
func (e *Enforcer) ReleasePosition(positionID string) {
	e.UpdatePositionSize(positionID, 0)
}

func (e *Enforcer) removeExposure(exp exposure) {
	e.assetExposure[exp.symbol] -= exp.size
	if e.assetExposure[exp.symbol] <= 1e-9 {
		delete(e.assetExposure, exp.symbol)
	}
	e.totalExposure -= exp.size
	if e.totalExposure < 1e-9 {
		e.totalExposure = 0
	}
}

// RecordClose adds realized pnl to the daily P&L. A close that drives the
// daily P&L to or below -balance*MaxDailyLoss% halts new opens for the day.
func (e *Enforcer) RecordClose(pnl, balance float64) CloseOutcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetDailyIfNeeded()

	e.dailyPnL += pnl
	out := CloseOutcome{DailyPnL: e.dailyPnL}

	limit := -balance * e.cfg.MaxDailyLossPercent / 100
	if !e.dailyHalted && balance > 0 && e.dailyPnL <= limit {
		e.dailyHalted = true
		out.NewlyHalted = true
		e.logger.LogWarning("Daily Loss Limit", "daily P&L $%.2f reached limit $%.2f, new positions halted", e.dailyPnL, limit)
	}
	return out
}

// UpdateEquity records equity, maintains the peak and computes drawdown. The
// first crossing of MaxDrawdown% sets NewlyBreached.
func (e *Enforcer) UpdateEquity(equity float64) DrawdownStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.currentEquity = equity
	if equity > e.peakEquity {
		e.peakEquity = equity
	}
	if e.peakEquity > 0 {
		e.drawdown = (e.peakEquity - equity) / e.peakEquity
		if e.drawdown < 0 {
			e.drawdown = 0
		}
	}

	out := DrawdownStatus{PeakEquity: e.peakEquity, Drawdown: e.drawdown}
	if e.drawdown*100 >= e.cfg.MaxDrawdownPercent {
		out.Breached = true
		if !e.drawdownBreached {
			e.drawdownBreached = true
			out.NewlyBreached = true
			e.logger.Critical("Max drawdown breached: %.2f%% >= %.2f%% (peak $%.2f, equity $%.2f)",
				e.drawdown*100, e.cfg.MaxDrawdownPercent, e.peakEquity, equity)
		}
	} else {
		e.drawdownBreached = false
	}
	return out
}

// IsHalted reports whether new positions are halted for the day
func (e *Enforcer) IsHalted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetDailyIfNeeded()
	return e.dailyHalted
}

// Status returns a copy of the tracked state
func (e *Enforcer) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	assets := make(map[string]float64, len(e.assetExposure))
	for k, v := range e.assetExposure {
		assets[k] = v
	}
	return Status{
		OpenPositions:    len(e.positions),
		TotalExposure:    e.totalExposure,
		AssetExposure:    assets,
		DailyPnL:         e.dailyPnL,
		DailyDate:        e.dailyDate,
		DailyHalted:      e.dailyHalted,
		PeakEquity:       e.peakEquity,
		CurrentEquity:    e.currentEquity,
		Drawdown:         e.drawdown,
		DrawdownBreached: e.drawdownBreached,
	}
}

// PositionIDs returns the tracked position ids in sorted order
func (e *Enforcer) PositionIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.positions))
	for id := range e.positions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
