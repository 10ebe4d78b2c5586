package orchestrator

import (
	"context"

	riskerrors "github.com/ducminhle1904/crypto-paper-risk/internal/errors"
	"github.com/ducminhle1904/crypto-paper-risk/internal/monitoring"
	"github.com/ducminhle1904/crypto-paper-risk/internal/safety"
	"github.com/ducminhle1904/crypto-paper-risk/pkg/types"
)

// ProcessTick matches pending orders against t, feeds the correlation
// history, evaluates every open position on the symbol and updates
// equity and drawdown. Failures are reported in the outcome.
func (o *Orchestrator) ProcessTick(ctx context.Context, t types.Tick) TickOutcome {
	o.mu.Lock()
	out, stop := o.processTickLocked(t, true)
	o.mu.Unlock()
	o.signalStop(ctx, stop)
	return out
}

// ProcessCandle records a closed candle in the correlation history and
// processes it as a tick at its close.
func (o *Orchestrator) ProcessCandle(ctx context.Context, symbol string, c types.OHLCV) TickOutcome {
	if v := safety.ValidateCandle(symbol, c); !v.Valid {
		err := riskerrors.InvalidParameter(component, "ProcessCandle", "%s", v.Message).WithContext("code", v.Code)
		o.mu.Lock()
		o.recordError(err)
		o.mu.Unlock()
		return TickOutcome{Symbol: symbol, Error: err}
	}

	o.mu.Lock()
	o.guard.AddCandle(symbol, c)
	out, stop := o.processTickLocked(types.TickFromCandle(symbol, c), false)
	o.mu.Unlock()
	o.signalStop(ctx, stop)
	return out
}

func (o *Orchestrator) processTickLocked(t types.Tick, feedGuard bool) (TickOutcome, string) {
	const op = "ProcessTick"
	out := TickOutcome{Symbol: t.Symbol}

	if v := safety.ValidateTick(t); !v.Valid {
		out.Error = riskerrors.InvalidParameter(component, op, "%s", v.Message).WithContext("code", v.Code)
		o.recordError(out.Error)
		return out, ""
	}

	o.enforcer.AdvanceTo(t.Timestamp)
	res, err := o.account.ProcessTick(t)
	if err != nil {
		out.Error = err
		o.recordError(err)
		return out, ""
	}
	out.Fills = res
	o.applyReportLocked(res.ExecutionReport)

	for _, p := range res.Opened {
		o.adoptLocked(p, "resting order")
	}

	quote, _ := o.account.Quote(t.Symbol)
	if feedGuard {
		o.guard.AddPrice(t.Symbol, quote.Price, quote.Timestamp)
	}
	monitoring.UpdatePrice(t.Symbol, quote.Price)

	for _, p := range o.account.OpenPositionsBySymbol(t.Symbol) {
		actions, err := o.evaluateLocked(p, quote.Price, quote.Timestamp)
		if len(actions) > 0 {
			if out.Actions == nil {
				out.Actions = make(map[string][]Action)
			}
			out.Actions[p.ID] = actions
		}
		if err != nil {
			o.recordError(err)
			o.logger.LogError("Evaluate position "+p.ID, err)
			if out.Error == nil {
				out.Error = err
			}
		}
	}

	dd, stop := o.refreshLocked()
	out.Drawdown = dd
	return out, stop
}
