package orchestrator

import (
	"context"
	"fmt"
	"math"
	"time"

	riskerrors "github.com/ducminhle1904/crypto-paper-risk/internal/errors"
	"github.com/ducminhle1904/crypto-paper-risk/internal/events"
	"github.com/ducminhle1904/crypto-paper-risk/internal/monitoring"
	"github.com/ducminhle1904/crypto-paper-risk/internal/paper"
	"github.com/ducminhle1904/crypto-paper-risk/internal/sizing"
	"github.com/ducminhle1904/crypto-paper-risk/internal/stoploss"
	"github.com/ducminhle1904/crypto-paper-risk/internal/takeprofit"
	"github.com/ducminhle1904/crypto-paper-risk/pkg/types"
)

// OpenPosition sizes, checks and opens a position with a market order, then
// attaches its stop-loss and take-profit levels computed on the fill price.
func (o *Orchestrator) OpenPosition(ctx context.Context, req OpenRequest) OpenResult {
	o.mu.Lock()
	res, stop := o.openLocked(ctx, req)
	o.mu.Unlock()
	o.signalStop(ctx, stop)
	return res
}

func (o *Orchestrator) openLocked(ctx context.Context, req OpenRequest) (OpenResult, string) {
	const op = "OpenPosition"
	fail := func(err error) (OpenResult, string) {
		o.recordError(err)
		monitoring.RecordOrderRejected(string(riskerrors.CodeOf(err)))
		return OpenResult{Error: err, Reason: riskerrors.ReasonOf(err)}, ""
	}

	if err := ctx.Err(); err != nil {
		return fail(riskerrors.Wrap(err, riskerrors.CodeInvalidParameter, component, op))
	}
	if req.Symbol == "" {
		return fail(riskerrors.InvalidParameter(component, op, "symbol is required"))
	}
	if !req.Side.Valid() {
		return fail(riskerrors.InvalidParameter(component, op, "unknown position side %q", req.Side))
	}
	if req.EntryPrice < 0 || req.Quantity < 0 || math.IsNaN(req.EntryPrice) || math.IsNaN(req.Quantity) {
		return fail(riskerrors.InvalidParameter(component, op, "entry price and quantity must not be negative"))
	}

	stopMethod := req.StopLoss
	if stopMethod == nil {
		if req.Trailing {
			stopMethod = stoploss.Trailing{
				InitialPercent:    o.cfg.DefaultStopLossPercent,
				ActivationPercent: o.cfg.TrailingActivationPercent,
				DistancePercent:   o.cfg.TrailingDistancePercent,
			}
		} else {
			stopMethod = stoploss.Fixed{Percent: o.cfg.DefaultStopLossPercent}
		}
	}
	tpMethod := req.TakeProfit
	if tpMethod == nil {
		tpMethod = takeprofit.DefaultLevels(o.cfg.DefaultTakeProfitPercent)
	}

	now := o.account.Now()
	quote, hasQuote := o.account.Quote(req.Symbol)
	entry := req.EntryPrice
	if entry == 0 {
		if !hasQuote {
			return fail(riskerrors.InvalidParameter(component, op, "no market price for %s and no entry price given", req.Symbol))
		}
		entry = quote.AskOrPrice()
		if req.Side == types.Short {
			entry = quote.BidOrPrice()
		}
	}

	// Validate the whole plan before anything is committed.
	pre, err := stoploss.Initial(stopMethod, entry, req.Side, now)
	if err != nil {
		return fail(err)
	}
	if _, err := takeprofit.Compute(tpMethod, entry, pre.StopLoss, req.Side); err != nil {
		return fail(err)
	}
	stopPct := o.cfg.DefaultStopLossPercent
	if pre.StopLoss > 0 {
		stopPct = math.Abs(entry-pre.StopLoss) / entry * 100
	}

	bal := o.account.Balance()
	var sized sizing.Result
	if req.Quantity > 0 {
		sized, err = sizing.Calculate(sizing.Input{
			Method:          sizing.Fixed{Amount: req.Quantity * entry},
			Balance:         bal.Equity,
			StopLossPercent: stopPct,
			EntryPrice:      entry,
		})
	} else {
		method := req.Sizing
		if method == nil {
			method = sizing.Percentage{}
		}
		riskPct := req.RiskPerTradePercent
		if riskPct == 0 {
			riskPct = o.cfg.MaxPositionSizePercent
		}
		sized, err = sizing.Calculate(sizing.Input{
			Method:                 method,
			Balance:                bal.Equity,
			RiskPerTradePercent:    riskPct,
			StopLossPercent:        stopPct,
			EntryPrice:             entry,
			MaxPositionSizePercent: o.cfg.MaxPositionSizePercent,
		})
	}
	if err != nil {
		return fail(err)
	}
	if !(sized.Quantity > 0) {
		return fail(riskerrors.InvalidParameter(component, op, "%s sizing produced no quantity for %s", sized.Method, req.Symbol))
	}

	if err := o.gateLocked(req.Symbol, req.Side, sized.Size, bal.Equity); err != nil {
		return fail(err)
	}

	if !hasQuote {
		if err := o.account.MarkPrice(req.Symbol, entry, now); err != nil {
			return fail(err)
		}
	}

	reason := req.Reason
	if reason == "" {
		reason = paper.ExitReasonSignal
	}
	order, report, err := o.account.OpenMarket(req.Symbol, req.Side, sized.Quantity, reason)
	o.applyReportLocked(report)
	if err != nil {
		o.record(events.RiskEvent{
			Type:     events.OrderRejected,
			Severity: events.SeverityWarning,
			Symbol:   req.Symbol,
			Message:  riskerrors.ReasonOf(err),
			Data: map[string]interface{}{
				"quantity": sized.Quantity,
				"side":     string(req.Side),
			},
		}, true)
		return fail(err)
	}
	if len(report.Opened) == 0 {
		return fail(riskerrors.InvariantViolation(component, op, "market order %s opened no position", order.ID))
	}

	pos := report.Opened[0]
	stopPlan, err := stoploss.Initial(stopMethod, pos.EntryPrice, pos.Side, now)
	var levels []takeprofit.Level
	if err == nil {
		levels, err = takeprofit.Compute(tpMethod, pos.EntryPrice, stopPlan.StopLoss, pos.Side)
	}
	if err != nil {
		o.logger.LogError("Risk plan on fill price", err)
		if _, closeErr := o.closeLocked(pos.ID, 0, paper.ExitReasonEmergency); closeErr != nil {
			o.logger.LogError("Unwind position "+pos.ID, closeErr)
		}
		_, stop := o.refreshLocked()
		res, _ := fail(err)
		return res, stop
	}

	pos, err = o.account.SetRiskPlan(pos.ID, paper.RiskPlan{
		StopLoss:     stopPlan.StopLoss,
		StopLossType: stopMethod.Kind(),
		StopMethod:   stoploss.Describe(stopMethod),
		TakeProfits:  levels,
		MaxHoldUntil: stopPlan.MaxHoldUntil,
		Trailing:     stopPlan.Trailing,
	})
	if err != nil {
		return fail(err)
	}
	o.enforcer.RegisterPosition(pos.ID, pos.Symbol, pos.Size)
	o.plans[pos.ID] = plan{stop: stopMethod}

	targets := make([]float64, len(levels))
	for i, l := range levels {
		targets[i] = l.Price
	}
	o.logger.Trade("OPEN %s %s %.8f @ %.4f stop=%.4f targets=%v (%s sizing, size $%.2f)",
		pos.Side, pos.Symbol, pos.Quantity, pos.EntryPrice, pos.StopLoss, targets, sized.Method, sized.Size)
	o.record(events.RiskEvent{
		Type:       events.PositionOpened,
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		Message:    fmt.Sprintf("opened %s %s %.8f @ %.4f", pos.Side, pos.Symbol, pos.Quantity, pos.EntryPrice),
		Data: map[string]interface{}{
			"side":          string(pos.Side),
			"entry_price":   pos.EntryPrice,
			"quantity":      pos.Quantity,
			"size":          pos.Size,
			"stop_loss":     pos.StopLoss,
			"stop_type":     string(stopMethod.Kind()),
			"take_profits":  targets,
			"sizing_method": string(sized.Method),
			"risk_amount":   sized.RiskAmount,
		},
	}, true)

	_, stop := o.refreshLocked()
	return OpenResult{Success: true, Position: &pos, Order: &order, Sizing: sized}, stop
}

// UpdatePosition marks one position to a new price and runs the first exit
// rule that applies: stop-loss or time exit, else a trailing stop update,
// else take-profit levels.
func (o *Orchestrator) UpdatePosition(ctx context.Context, positionID string, upd PriceUpdate) UpdateResult {
	o.mu.Lock()
	res, stop := o.updateLocked(positionID, upd)
	o.mu.Unlock()
	o.signalStop(ctx, stop)
	return res
}

func (o *Orchestrator) updateLocked(positionID string, upd PriceUpdate) (UpdateResult, string) {
	const op = "UpdatePosition"
	if !(upd.Price > 0) || math.IsInf(upd.Price, 0) {
		err := riskerrors.InvalidParameter(component, op, "price must be positive, got %.8f", upd.Price)
		o.recordError(err)
		return UpdateResult{Error: err}, ""
	}
	pos, ok := o.account.Position(positionID)
	if !ok || !pos.IsOpen() {
		err := riskerrors.PositionNotFound(component, op, positionID)
		o.recordError(err)
		return UpdateResult{Error: err}, ""
	}

	ts := upd.Timestamp
	if ts.IsZero() {
		ts = o.account.Now()
	}
	o.enforcer.AdvanceTo(ts)
	if err := o.account.MarkPrice(pos.Symbol, upd.Price, ts); err != nil {
		o.recordError(err)
		return UpdateResult{Error: err}, ""
	}
	pos, _ = o.account.Position(positionID)

	actions, err := o.evaluateLocked(pos, upd.Price, ts)
	if err != nil {
		o.recordError(err)
	}
	_, stop := o.refreshLocked()

	res := UpdateResult{Actions: actions, Error: err}
	if final, ok := o.account.Position(positionID); ok {
		res.Position = &final
	}
	return res, stop
}

// evaluateLocked runs the exit rules of one open position at price
func (o *Orchestrator) evaluateLocked(pos paper.Position, price float64, now time.Time) ([]Action, error) {
	pl := o.plans[pos.ID]
	var actions []Action

	if stoploss.IsTriggered(pos.Side, pos.StopLoss, price) {
		o.record(events.RiskEvent{
			Type:       events.StopLossTriggered,
			Severity:   events.SeverityWarning,
			PositionID: pos.ID,
			Symbol:     pos.Symbol,
			Message:    fmt.Sprintf("%s %s stop %.4f hit at %.4f", pos.Side, pos.Symbol, pos.StopLoss, price),
			Data: map[string]interface{}{
				"stop_loss": pos.StopLoss,
				"price":     price,
				"trailing":  pos.TrailingActive,
			},
		}, true)
		out, err := o.closeLocked(pos.ID, 0, paper.ExitReasonStopLoss)
		if err != nil {
			return actions, err
		}
		return append(actions, Action{
			Type:     ActionStopLoss,
			Price:    out.price,
			Quantity: out.quantity,
			PnL:      out.pnl,
			StopLoss: pos.StopLoss,
		}), nil
	}

	if pl.stop != nil && stoploss.TimeExitDue(pl.stop, pos.Side, pos.EntryPrice, price, pos.MaxHoldUntil, now) {
		o.record(events.RiskEvent{
			Type:       events.TimeExit,
			PositionID: pos.ID,
			Symbol:     pos.Symbol,
			Message:    fmt.Sprintf("%s %s held past %s", pos.Side, pos.Symbol, pos.MaxHoldUntil.Format(time.RFC3339)),
			Data: map[string]interface{}{
				"max_hold_until": pos.MaxHoldUntil,
				"price":          price,
			},
		}, true)
		out, err := o.closeLocked(pos.ID, 0, paper.ExitReasonTimeExit)
		if err != nil {
			return actions, err
		}
		return append(actions, Action{Type: ActionTimeExit, Price: out.price, Quantity: out.quantity, PnL: out.pnl}), nil
	}

	if pl.stop != nil && stoploss.IsTrailing(pl.stop) {
		u := stoploss.UpdateTrailing(pl.stop, pos.StopSnapshot(), price)
		prevStop := pos.StopLoss
		updated, moved, err := o.account.ApplyStopUpdate(pos.ID, u)
		if err != nil {
			return actions, err
		}
		if moved {
			o.record(events.RiskEvent{
				Type:       events.TrailingStopUpdated,
				PositionID: pos.ID,
				Symbol:     pos.Symbol,
				Message:    fmt.Sprintf("%s %s stop %.4f -> %.4f", pos.Side, pos.Symbol, prevStop, updated.StopLoss),
				Data: map[string]interface{}{
					"previous_stop": prevStop,
					"stop_loss":     updated.StopLoss,
					"price":         price,
				},
			}, false)
			// A tick that tightened the stop does not also take profit.
			return append(actions, Action{Type: ActionTrailingUpdate, Price: price, StopLoss: updated.StopLoss}), nil
		}
		pos = updated
	}

	for {
		idx := takeprofit.NextTriggered(pos.TakeProfits, pos.Side, price)
		if idx < 0 {
			break
		}
		qty := takeprofit.CloseQuantity(pos.RemainingQuantity, pos.TakeProfits, idx)
		level := pos.TakeProfits[idx]
		marked, err := o.account.MarkTakeProfitTriggered(pos.ID, idx)
		if err != nil {
			return actions, err
		}
		pos = marked

		o.record(events.RiskEvent{
			Type:       events.TakeProfitTriggered,
			PositionID: pos.ID,
			Symbol:     pos.Symbol,
			Message:    fmt.Sprintf("%s %s target %d (%.4f) hit at %.4f", pos.Side, pos.Symbol, idx+1, level.Price, price),
			Data: map[string]interface{}{
				"level":         idx,
				"target":        level.Price,
				"close_percent": level.ClosePercent,
				"quantity":      qty,
				"price":         price,
			},
		}, true)
		if qty <= 0 {
			continue
		}

		out, err := o.closeLocked(pos.ID, qty, paper.ExitReasonTakeProfit)
		if err != nil {
			return actions, err
		}
		actions = append(actions, Action{
			Type:     ActionTakeProfit,
			Price:    out.price,
			Quantity: out.quantity,
			PnL:      out.pnl,
			Level:    idx,
		})
		if out.position == nil || !out.position.IsOpen() {
			break
		}
		pos = *out.position
	}
	return actions, nil
}

// ClosePosition closes everything remaining of a position at the latest quote
func (o *Orchestrator) ClosePosition(ctx context.Context, positionID, reason string) CloseResult {
	return o.closePosition(ctx, positionID, 100, reason)
}

// PartialClosePosition closes percent (0, 100] of the remaining quantity
func (o *Orchestrator) PartialClosePosition(ctx context.Context, positionID string, percent float64, reason string) CloseResult {
	return o.closePosition(ctx, positionID, percent, reason)
}

func (o *Orchestrator) closePosition(ctx context.Context, positionID string, percent float64, reason string) CloseResult {
	o.mu.Lock()
	res, stop := o.closePercentLocked(positionID, percent, reason)
	o.mu.Unlock()
	o.signalStop(ctx, stop)
	return res
}

func (o *Orchestrator) closePercentLocked(positionID string, percent float64, reason string) (CloseResult, string) {
	const op = "ClosePosition"
	fail := func(err error) (CloseResult, string) {
		o.recordError(err)
		return CloseResult{Error: err, Reason: riskerrors.ReasonOf(err)}, ""
	}

	if !(percent > 0) || percent > 100 {
		return fail(riskerrors.InvalidParameter(component, op, "close percent must be within (0, 100], got %.4f", percent))
	}
	pos, ok := o.account.Position(positionID)
	if !ok || !pos.IsOpen() {
		return fail(riskerrors.PositionNotFound(component, op, positionID))
	}
	if reason == "" {
		reason = paper.ExitReasonManual
	}

	qty := 0.0
	if percent < 100 {
		qty = pos.RemainingQuantity * percent / 100
	}
	out, err := o.closeLocked(positionID, qty, reason)
	if err != nil {
		return fail(err)
	}
	_, stop := o.refreshLocked()
	return CloseResult{Success: true, Position: out.position, PnL: out.pnl}, stop
}

// closeOutcome summarizes one market close
type closeOutcome struct {
	position *paper.Position
	pnl      float64
	price    float64 // volume weighted exit price
	quantity float64
}

// closeLocked sends a market close through the account and books the result
func (o *Orchestrator) closeLocked(positionID string, qty float64, reason string) (closeOutcome, error) {
	report, err := o.account.ClosePosition(paper.CloseRequest{PositionID: positionID, Quantity: qty, Reason: reason})
	o.applyReportLocked(report)
	if err != nil {
		return closeOutcome{}, err
	}

	out := closeOutcome{pnl: report.RealizedPnL()}
	notional := 0.0
	for _, t := range report.Trades {
		if t.IsClosing {
			out.quantity += t.Quantity
			notional += t.Price * t.Quantity
		}
	}
	if out.quantity > 0 {
		out.price = notional / out.quantity
	}
	if p, ok := o.account.Position(positionID); ok {
		out.position = &p
	}
	return out, nil
}

// applyReportLocked books closes, partial closes, trades and violations of
// an execution report with the enforcer, the event log and metrics. Opened
// positions are left to the caller.
func (o *Orchestrator) applyReportLocked(report paper.ExecutionReport) {
	for _, t := range report.Trades {
		monitoring.RecordTrade(t.Symbol, string(t.Side), t.IsClosing, t.TotalValue)
		if !t.IsClosing {
			continue
		}
		outcome := o.enforcer.RecordClose(t.RealizedPnL, o.account.Balance().Equity)
		if outcome.NewlyHalted {
			o.record(events.RiskEvent{
				Type:     events.DailyLossHalt,
				Severity: events.SeverityCritical,
				Symbol:   t.Symbol,
				Message:  fmt.Sprintf("daily P&L $%.2f breached the %.2f%% loss limit, new positions halted", outcome.DailyPnL, o.cfg.MaxDailyLossPercent),
				Data: map[string]interface{}{
					"daily_pnl": outcome.DailyPnL,
				},
			}, true)
		}
	}

	for _, p := range report.Reduced {
		o.enforcer.UpdatePositionSize(p.ID, p.RemainingSize())
		o.record(events.RiskEvent{
			Type:       events.PositionPartialClosed,
			PositionID: p.ID,
			Symbol:     p.Symbol,
			Message:    fmt.Sprintf("reduced %s %s to %.8f (%s)", p.Side, p.Symbol, p.RemainingQuantity, lastExitReason(report, p.ID)),
			Data: map[string]interface{}{
				"remaining_quantity": p.RemainingQuantity,
				"pnl":                pnlFor(report, p.ID),
				"realized_pnl":       p.RealizedPnL,
				"exit_reason":        lastExitReason(report, p.ID),
			},
		}, true)
	}

	for _, p := range report.Closed {
		o.enforcer.ReleasePosition(p.ID)
		delete(o.plans, p.ID)
		o.logger.Trade("CLOSE %s %s @ %.4f pnl=$%.2f (%s)", p.Side, p.Symbol, p.ExitPrice, p.RealizedPnL, p.ExitReason)
		o.record(events.RiskEvent{
			Type:       events.PositionClosed,
			PositionID: p.ID,
			Symbol:     p.Symbol,
			Message:    fmt.Sprintf("closed %s %s @ %.4f, P&L $%.2f (%s)", p.Side, p.Symbol, p.ExitPrice, p.RealizedPnL, p.ExitReason),
			Data: map[string]interface{}{
				"exit_price":   p.ExitPrice,
				"exit_reason":  p.ExitReason,
				"pnl":          p.RealizedPnL,
				"realized_pnl": p.RealizedPnL,
				"held_for":     p.ClosedAt.Sub(p.OpenedAt).String(),
			},
		}, true)
	}

	for _, v := range report.Violations {
		o.recordError(v)
		o.record(events.RiskEvent{
			Type:     events.InvariantViolation,
			Severity: events.SeverityCritical,
			Message:  riskerrors.ReasonOf(v),
		}, true)
	}
}

func pnlFor(report paper.ExecutionReport, positionID string) float64 {
	total := 0.0
	for _, t := range report.Trades {
		if t.IsClosing && t.PositionID == positionID {
			total += t.RealizedPnL
		}
	}
	return total
}

func lastExitReason(report paper.ExecutionReport, positionID string) string {
	for i := len(report.Trades) - 1; i >= 0; i-- {
		if t := report.Trades[i]; t.IsClosing && t.PositionID == positionID {
			return t.ExitReason
		}
	}
	return ""
}
