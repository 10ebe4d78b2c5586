package orchestrator

import (
	"context"
	"errors"
	"fmt"

	riskerrors "github.com/ducminhle1904/crypto-paper-risk/internal/errors"
	"github.com/ducminhle1904/crypto-paper-risk/internal/events"
	"github.com/ducminhle1904/crypto-paper-risk/internal/monitoring"
	"github.com/ducminhle1904/crypto-paper-risk/internal/paper"
	"github.com/ducminhle1904/crypto-paper-risk/internal/stoploss"
	"github.com/ducminhle1904/crypto-paper-risk/internal/takeprofit"
	"github.com/ducminhle1904/crypto-paper-risk/pkg/types"
)

// gateLocked runs the enforcer and correlation checks for a new position of
// size on symbol and records the rejection event when one fails.
func (o *Orchestrator) gateLocked(symbol string, side types.PositionSide, size, equity float64) error {
	if err := o.enforcer.CheckNewPosition(symbol, size, equity); err != nil {
		limit := "unknown"
		var re *riskerrors.RiskError
		if errors.As(err, &re) {
			if l, ok := re.Context["limit"].(string); ok {
				limit = l
			}
		}
		monitoring.RecordRiskRejection(limit)
		o.record(events.RiskEvent{
			Type:     events.LimitRejected,
			Severity: events.SeverityWarning,
			Symbol:   symbol,
			Message:  riskerrors.ReasonOf(err),
			Data: map[string]interface{}{
				"limit": limit,
				"size":  size,
				"side":  string(side),
			},
		}, true)
		return err
	}

	if err := o.guard.Check(symbol, o.openPositionSymbolsLocked()); err != nil {
		monitoring.RecordRiskRejection("correlation")
		data := map[string]interface{}{"side": string(side)}
		var re *riskerrors.RiskError
		if errors.As(err, &re) {
			data["correlated"] = re.Context["correlated"]
		}
		o.record(events.RiskEvent{
			Type:     events.CorrelationRejected,
			Severity: events.SeverityWarning,
			Symbol:   symbol,
			Message:  riskerrors.ReasonOf(err),
			Data:     data,
		}, true)
		return err
	}
	return nil
}

// PlaceOrder places an order on the account. An order that would open a
// position passes the same limit and correlation checks as OpenPosition,
// sized at its limit or stop price. Pending orders do not count toward
// exposure until they fill.
func (o *Orchestrator) PlaceOrder(ctx context.Context, req paper.OrderRequest) (paper.VirtualOrder, error) {
	o.mu.Lock()
	order, stop, err := o.placeOrderLocked(ctx, req)
	o.mu.Unlock()
	o.signalStop(ctx, stop)
	return order, err
}

func (o *Orchestrator) placeOrderLocked(ctx context.Context, req paper.OrderRequest) (paper.VirtualOrder, string, error) {
	const op = "PlaceOrder"
	fail := func(err error) (paper.VirtualOrder, string, error) {
		o.recordError(err)
		monitoring.RecordOrderRejected(string(riskerrors.CodeOf(err)))
		return paper.VirtualOrder{}, "", err
	}

	if err := ctx.Err(); err != nil {
		return fail(riskerrors.Wrap(err, riskerrors.CodeInvalidParameter, component, op))
	}

	if o.opensPositionLocked(req) {
		price := o.referencePriceLocked(req)
		if !(price > 0) {
			return fail(riskerrors.InvalidParameter(component, op, "no reference price to size the %s order on %s", req.Type, req.Symbol))
		}
		side := types.PositionSideFor(req.Side)
		if err := o.gateLocked(req.Symbol, side, req.Quantity*price, o.account.Balance().Equity); err != nil {
			return fail(err)
		}
	}

	order, report, err := o.account.PlaceOrder(req)
	o.applyReportLocked(report)
	for _, p := range report.Opened {
		o.adoptLocked(p, "market order")
	}
	if err != nil {
		return order, "", err
	}
	_, stop := o.refreshLocked()
	return order, stop, nil
}

// opensPositionLocked mirrors how the account resolves an order without a
// target: it closes the oldest opposite position on the symbol if any.
func (o *Orchestrator) opensPositionLocked(req paper.OrderRequest) bool {
	if req.PositionID != "" {
		return false
	}
	if req.OpenOnly {
		return true
	}
	closes := types.PositionSideFor(req.Side.Opposite())
	for _, p := range o.account.OpenPositionsBySymbol(req.Symbol) {
		if p.Side == closes {
			return false
		}
	}
	return true
}

func (o *Orchestrator) referencePriceLocked(req paper.OrderRequest) float64 {
	switch req.Type {
	case paper.OrderTypeLimit:
		return req.Price
	case paper.OrderTypeStopLoss, paper.OrderTypeTakeProfit:
		return req.StopPrice
	}
	if q, ok := o.account.Quote(req.Symbol); ok {
		if req.Side == types.SideBuy {
			return q.AskOrPrice()
		}
		return q.BidOrPrice()
	}
	return req.Price
}

// adoptLocked tracks a position opened by an order outside OpenPosition and
// attaches the default stop and target on its fill price.
func (o *Orchestrator) adoptLocked(p paper.Position, via string) paper.Position {
	o.enforcer.RegisterPosition(p.ID, p.Symbol, p.Size)

	stopMethod := stoploss.Fixed{Percent: o.cfg.DefaultStopLossPercent}
	stopPlan, err := stoploss.Initial(stopMethod, p.EntryPrice, p.Side, o.account.Now())
	var levels []takeprofit.Level
	if err == nil {
		levels, err = takeprofit.Compute(takeprofit.DefaultLevels(o.cfg.DefaultTakeProfitPercent), p.EntryPrice, stopPlan.StopLoss, p.Side)
	}
	if err == nil {
		var planned paper.Position
		planned, err = o.account.SetRiskPlan(p.ID, paper.RiskPlan{
			StopLoss:     stopPlan.StopLoss,
			StopLossType: stopMethod.Kind(),
			StopMethod:   stoploss.Describe(stopMethod),
			TakeProfits:  levels,
		})
		if err == nil {
			p = planned
			o.plans[p.ID] = plan{stop: stopMethod}
		}
	}
	if err != nil {
		o.recordError(err)
		o.logger.LogError("Risk plan for "+p.ID, err)
	}

	o.record(events.RiskEvent{
		Type:       events.PositionOpened,
		PositionID: p.ID,
		Symbol:     p.Symbol,
		Message:    fmt.Sprintf("opened %s %s %.8f @ %.4f by %s", p.Side, p.Symbol, p.Quantity, p.EntryPrice, via),
		Data: map[string]interface{}{
			"side":        string(p.Side),
			"entry_price": p.EntryPrice,
			"quantity":    p.Quantity,
			"size":        p.Size,
			"stop_loss":   p.StopLoss,
		},
	}, true)
	return p
}
