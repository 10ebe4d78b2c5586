// Package orchestrator ties sizing, stops, targets, limits and the paper
// account together into the position workflows of one simulation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ducminhle1904/crypto-paper-risk/internal/config"
	"github.com/ducminhle1904/crypto-paper-risk/internal/correlation"
	riskerrors "github.com/ducminhle1904/crypto-paper-risk/internal/errors"
	"github.com/ducminhle1904/crypto-paper-risk/internal/events"
	"github.com/ducminhle1904/crypto-paper-risk/internal/logger"
	"github.com/ducminhle1904/crypto-paper-risk/internal/monitoring"
	"github.com/ducminhle1904/crypto-paper-risk/internal/notifications"
	"github.com/ducminhle1904/crypto-paper-risk/internal/paper"
	"github.com/ducminhle1904/crypto-paper-risk/internal/risk"
	"github.com/ducminhle1904/crypto-paper-risk/internal/stats"
	"github.com/ducminhle1904/crypto-paper-risk/internal/stoploss"
)

const component = "orchestrator"

// DefaultWarningThresholdPercent is the share of a limit at which a risk
// warning is raised
const DefaultWarningThresholdPercent = 80

// Notifier accepts notifications without blocking. *notifications.Dispatcher
// satisfies it.
type Notifier interface {
	Notify(n notifications.Notification) bool
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithNotifier sends events worth a human's attention to n
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithEmergencyStopper signals s when drawdown first crosses its limit
func WithEmergencyStopper(s risk.EmergencyStopper) Option {
	return func(o *Orchestrator) { o.stopper = s }
}

// WithWarningThreshold raises warnings at pct percent of each limit. Zero disables warnings.
func WithWarningThreshold(pct float64) Option {
	return func(o *Orchestrator) { o.warnPct = pct }
}

// WithCurveLimit bounds the equity curve kept for statistics
func WithCurveLimit(n int) Option {
	return func(o *Orchestrator) { o.curveLimit = n }
}

// plan keeps the stop method a position was opened with; trailing and time
// exits need it on every update.
type plan struct {
	stop stoploss.Method
}

// Orchestrator runs the position workflows of one account. Workflows are
// serialized; readers of Stats, Snapshot and the event log do not block them.
type Orchestrator struct {
	mu       sync.Mutex
	cfg      config.RiskConfig
	account  *paper.Account
	enforcer *risk.Enforcer
	guard    *correlation.Guard
	events   *events.Log
	tracker  *stats.Tracker
	errStats *riskerrors.ErrorStats
	logger   *logger.Logger

	notifier   Notifier
	stopper    risk.EmergencyStopper
	warnPct    float64
	curveLimit int

	plans  map[string]plan
	warned map[string]bool
}

// New creates an orchestrator over account. Positions already open on the
// account are registered with the enforcer and get their stop method back
// from the descriptor stored with them.
func New(account *paper.Account, cfg config.RiskConfig, log *logger.Logger, opts ...Option) (*Orchestrator, error) {
	if account == nil {
		return nil, riskerrors.InvalidParameter(component, "New", "account is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, riskerrors.Wrap(err, riskerrors.CodeInvalidParameter, component, "New")
	}
	if log == nil {
		log = logger.Nop()
	}

	bal := account.Balance()
	o := &Orchestrator{
		cfg:        cfg,
		account:    account,
		enforcer:   risk.NewEnforcer(cfg, bal.Equity, log),
		guard:      correlation.NewGuard(guardConfig(cfg), log),
		events:     events.NewLog(cfg.EventHistoryLimit),
		errStats:   riskerrors.NewErrorStats(100),
		logger:     log,
		warnPct:    DefaultWarningThresholdPercent,
		curveLimit: stats.DefaultCurveLimit,
		plans:      make(map[string]plan),
		warned:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.tracker = stats.NewTracker(account.Config().Ledger.InitialBalance, o.curveLimit)

	for _, p := range account.OpenPositions() {
		o.enforcer.RegisterPosition(p.ID, p.Symbol, p.RemainingSize())
		if p.StopMethod.IsZero() {
			continue
		}
		m, err := p.StopMethod.Method()
		if err != nil {
			o.logger.LogError("Restore stop method of "+p.ID, err)
			continue
		}
		o.plans[p.ID] = plan{stop: m}
	}
	o.enforcer.UpdateEquity(bal.Equity)
	o.tracker.RecordBalance(bal, account.OpenPositions())
	return o, nil
}

func guardConfig(cfg config.RiskConfig) correlation.Config {
	return correlation.Config{
		Period:                 cfg.CorrelationPeriod,
		Threshold:              cfg.CorrelationThreshold,
		MaxCorrelatedPositions: cfg.MaxCorrelatedPositions,
	}
}

// Account returns the paper account the orchestrator drives
func (o *Orchestrator) Account() *paper.Account {
	return o.account
}

// Guard returns the correlation guard
func (o *Orchestrator) Guard() *correlation.Guard {
	return o.guard
}

// Events returns the risk event log
func (o *Orchestrator) Events() *events.Log {
	return o.events
}

// RecentEvents returns the newest limit events, oldest first
func (o *Orchestrator) RecentEvents(limit int) []events.RiskEvent {
	return o.events.Recent(limit)
}

// EventsByType returns the stored events of type t
func (o *Orchestrator) EventsByType(t events.Type) []events.RiskEvent {
	return o.events.ByType(t)
}

// EventsBySymbol returns the stored events about symbol
func (o *Orchestrator) EventsBySymbol(symbol string) []events.RiskEvent {
	return o.events.BySymbol(symbol)
}

// EventsByPosition returns the stored events about one position
func (o *Orchestrator) EventsByPosition(positionID string) []events.RiskEvent {
	return o.events.ByPosition(positionID)
}

// ErrorStats returns the rejection counters
func (o *Orchestrator) ErrorStats() *riskerrors.ErrorStats {
	return o.errStats
}

// Config returns the active risk configuration
func (o *Orchestrator) Config() config.RiskConfig {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cfg
}

// RiskStatus returns the enforcer's view of exposure, daily P&L and drawdown
func (o *Orchestrator) RiskStatus() risk.Status {
	return o.enforcer.Status()
}

// Stats derives performance statistics from the account's trades
func (o *Orchestrator) Stats() stats.Stats {
	return o.tracker.Compute(o.account.Trades(), o.account.Balance())
}

// EquityCurve returns the recorded equity points, oldest first
func (o *Orchestrator) EquityCurve() []stats.EquityPoint {
	return o.tracker.Curve()
}

// Snapshot returns a consistent-enough view for reporting. The account part
// is the account's published snapshot.
func (o *Orchestrator) Snapshot() Snapshot {
	cfg := o.Config()
	snap := o.account.Snapshot()
	return Snapshot{
		Account:    snap,
		Risk:       o.enforcer.Status(),
		Stats:      o.Stats(),
		Config:     cfg,
		EventCount: o.events.Len(),
		TakenAt:    snap.TakenAt,
	}
}

// UpdateConfig applies patch to the active configuration. The result is
// validated before anything changes.
func (o *Orchestrator) UpdateConfig(patch config.RiskConfigPatch) (config.RiskConfig, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	next, err := o.cfg.Merge(patch)
	if err != nil {
		wrapped := riskerrors.Wrap(err, riskerrors.CodeInvalidParameter, component, "UpdateConfig")
		o.recordError(wrapped)
		return o.cfg, wrapped
	}

	prev := o.cfg
	o.cfg = next
	o.enforcer.UpdateConfig(next)
	o.guard.UpdateConfig(guardConfig(next))
	o.events.SetLimit(next.EventHistoryLimit)

	o.logger.Info("Risk configuration updated")
	o.record(events.RiskEvent{
		Type:    events.ConfigUpdated,
		Message: "risk configuration updated",
		Data: map[string]interface{}{
			"previous": prev,
			"current":  next,
		},
	}, false)
	return next, nil
}

// EmergencyStop cancels every pending order and closes every open position
// with the emergency exit reason. It satisfies risk.EmergencyStopper.
func (o *Orchestrator) EmergencyStop(ctx context.Context, reason string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.logger.Critical("Emergency stop: %s", reason)
	cancelled := o.account.CancelAll("")

	var errs []error
	for _, p := range o.account.OpenPositions() {
		if _, err := o.closeLocked(p.ID, 0, paper.ExitReasonEmergency); err != nil {
			errs = append(errs, err)
		}
	}
	o.record(events.RiskEvent{
		Type:     events.RiskWarning,
		Severity: events.SeverityCritical,
		Message:  fmt.Sprintf("emergency stop: %s", reason),
		Data: map[string]interface{}{
			"cancelled_orders": len(cancelled),
			"failed_closes":    len(errs),
		},
	}, true)
	o.refreshLocked()
	return errors.Join(errs...)
}

// signalStop invokes the emergency stopper outside the workflow lock so the
// stopper may call back into the orchestrator.
func (o *Orchestrator) signalStop(ctx context.Context, reason string) {
	if reason == "" || o.stopper == nil {
		return
	}
	if err := o.stopper.EmergencyStop(ctx, reason); err != nil {
		o.logger.LogError("Emergency stop", err)
	}
}

// record appends ev to the event log, counts it and optionally notifies
func (o *Orchestrator) record(ev events.RiskEvent, notify bool) events.RiskEvent {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = o.account.Now()
	}
	stored := o.events.Append(ev)
	monitoring.RecordRiskEvent(string(stored.Type), string(stored.Severity))

	if notify && o.notifier != nil {
		o.notifier.Notify(notifications.Notification{
			Type:      string(stored.Type),
			Level:     levelFor(stored),
			Message:   stored.Message,
			Symbol:    stored.Symbol,
			Data:      stored.Data,
			Timestamp: stored.Timestamp,
		})
	}
	return stored
}

func levelFor(ev events.RiskEvent) notifications.Level {
	switch ev.Severity {
	case events.SeverityCritical:
		return notifications.LevelCritical
	case events.SeverityWarning:
		return notifications.LevelWarning
	}
	if pnl, ok := ev.Data["pnl"].(float64); ok && pnl > 0 {
		return notifications.LevelSuccess
	}
	return notifications.LevelInfo
}

func (o *Orchestrator) recordError(err error) {
	if err == nil {
		return
	}
	o.errStats.RecordError(err)
	code := riskerrors.CodeOf(err)
	monitoring.RecordError(string(code))
	if code == riskerrors.CodeInvariantViolation {
		o.logger.Critical("%v", err)
	}
}

// refreshLocked pushes the account's equity through the drawdown check,
// the statistics curve, metrics and warning thresholds. It returns the
// emergency-stop reason when drawdown newly crossed its limit.
func (o *Orchestrator) refreshLocked() (risk.DrawdownStatus, string) {
	bal := o.account.Balance()
	open := o.account.OpenPositions()

	dd := o.enforcer.UpdateEquity(bal.Equity)
	o.tracker.RecordBalance(bal, open)
	monitoring.UpdateAccount(o.account.ID(), bal.Equity, dd.Drawdown, len(open))

	stopReason := ""
	if dd.NewlyBreached {
		stopReason = fmt.Sprintf("drawdown %.2f%% reached the %.2f%% limit", dd.Drawdown*100, o.cfg.MaxDrawdownPercent)
		o.record(events.RiskEvent{
			Type:     events.DrawdownBreached,
			Severity: events.SeverityCritical,
			Message:  stopReason,
			Data: map[string]interface{}{
				"drawdown":    dd.Drawdown,
				"peak_equity": dd.PeakEquity,
				"equity":      bal.Equity,
			},
		}, true)
	}

	o.checkWarningsLocked(bal.Equity)
	return dd, stopReason
}

// checkWarningsLocked raises one warning per limit while it stays above the
// threshold; a limit that drops back below may warn again later.
func (o *Orchestrator) checkWarningsLocked(balance float64) {
	if o.warnPct <= 0 {
		return
	}
	warnings := o.enforcer.CheckWarningThresholds(o.warnPct, balance)
	active := make(map[string]bool, len(warnings))
	for _, w := range warnings {
		key := w.Type + "|" + w.Symbol
		active[key] = true
		if o.warned[key] {
			continue
		}
		o.record(events.RiskEvent{
			Type:     events.RiskWarning,
			Severity: events.SeverityWarning,
			Symbol:   w.Symbol,
			Message:  w.Message,
			Data: map[string]interface{}{
				"warning": w.Type,
				"current": w.Current,
				"limit":   w.Limit,
				"ratio":   w.Ratio,
			},
		}, true)
	}
	o.warned = active
}

// openPositionSymbolsLocked returns the symbol of every open position,
// one entry per position, sorted
func (o *Orchestrator) openPositionSymbolsLocked() []string {
	open := o.account.OpenPositions()
	symbols := make([]string, 0, len(open))
	for _, p := range open {
		symbols = append(symbols, p.Symbol)
	}
	sort.Strings(symbols)
	return symbols
}
