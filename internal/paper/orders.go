package paper

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	riskerrors "github.com/ducminhle1904/crypto-paper-risk/internal/errors"
	"github.com/ducminhle1904/crypto-paper-risk/pkg/types"
)

// validateRequest rejects malformed orders before any state mutation
func (a *Account) validateRequest(req OrderRequest) error {
	const op = "PlaceOrder"
	if req.Symbol == "" {
		return riskerrors.InvalidParameter(component, op, "symbol is required")
	}
	if req.Side != types.SideBuy && req.Side != types.SideSell {
		return riskerrors.InvalidParameter(component, op, "unknown order side %q", req.Side)
	}
	if !(req.Quantity > 0) || math.IsInf(req.Quantity, 0) {
		return riskerrors.InvalidParameter(component, op, "quantity must be positive, got %.8f", req.Quantity)
	}

	switch req.Type {
	case OrderTypeMarket:
		if req.Price < 0 {
			return riskerrors.InvalidParameter(component, op, "reference price must not be negative")
		}
	case OrderTypeLimit:
		if !(req.Price > 0) {
			return riskerrors.InvalidParameter(component, op, "limit orders require a positive price, got %.8f", req.Price)
		}
	case OrderTypeStopLoss, OrderTypeTakeProfit:
		if !(req.StopPrice > 0) {
			return riskerrors.InvalidParameter(component, op, "%s orders require a positive stop price, got %.8f", req.Type, req.StopPrice)
		}
	default:
		return riskerrors.InvalidParameter(component, op, "unknown order type %q", req.Type)
	}
	return nil
}

// resolveTarget decides whether req closes a position. An explicit
// PositionID must name an open position on the same symbol held on the
// opposite side. Without one, a sell closes the oldest open long and a buy
// the oldest open short on the symbol.
func (a *Account) resolveTarget(req OrderRequest) (string, bool, error) {
	const op = "PlaceOrder"

	if req.OpenOnly {
		if req.PositionID != "" {
			return "", false, riskerrors.InvalidParameter(component, op, "an open-only order cannot target a position")
		}
		return "", false, nil
	}

	var pos *Position
	if req.PositionID != "" {
		p, ok := a.ledger.position(req.PositionID)
		if !ok {
			return "", false, riskerrors.PositionNotFound(component, op, req.PositionID)
		}
		if p.Symbol != req.Symbol {
			return "", false, riskerrors.InvalidParameter(component, op,
				"position %s is on %s, not %s", p.ID, p.Symbol, req.Symbol)
		}
		if req.Side != p.Side.ExitSide() {
			return "", false, riskerrors.InvalidParameter(component, op,
				"a %s order cannot close a %s position", req.Side, p.Side)
		}
		pos = p
	} else {
		p, ok := a.ledger.oldestOpen(req.Symbol, types.PositionSideFor(req.Side.Opposite()))
		if !ok {
			return "", false, nil
		}
		pos = p
	}

	if req.Quantity > pos.RemainingQuantity+quantityEpsilon {
		return "", false, riskerrors.InvalidParameter(component, op,
			"closing quantity %.8f exceeds remaining %.8f of position %s", req.Quantity, pos.RemainingQuantity, pos.ID)
	}
	return pos.ID, true, nil
}

// estimatePrice returns the price a buy lock is computed from
func (a *Account) estimatePrice(req OrderRequest) (float64, bool, error) {
	switch req.Type {
	case OrderTypeLimit:
		return req.Price, true, nil
	case OrderTypeStopLoss, OrderTypeTakeProfit:
		return req.StopPrice, false, nil
	}
	if q, ok := a.quotes[req.Symbol]; ok {
		return q.AskOrPrice(), false, nil
	}
	if req.Price > 0 {
		return req.Price, false, nil
	}
	return 0, false, riskerrors.InvalidParameter(component, "PlaceOrder",
		"no market price for %s: market orders need a tick or a reference price", req.Symbol)
}

// placeLocked validates, locks funds for opening buys, records the order and
// fills market orders immediately when a quote is known. Insufficient funds
// record the order as rejected.
func (a *Account) placeLocked(req OrderRequest, fullLiquidity bool) (*VirtualOrder, ExecutionReport, error) {
	var report ExecutionReport
	if err := a.validateRequest(req); err != nil {
		return nil, report, err
	}

	positionID, closing, err := a.resolveTarget(req)
	if err != nil {
		return nil, report, err
	}

	now := a.now()
	o := &VirtualOrder{
		ID:                uuid.NewString(),
		Symbol:            req.Symbol,
		Type:              req.Type,
		Side:              req.Side,
		Status:            OrderStatusPending,
		Price:             req.Price,
		StopPrice:         req.StopPrice,
		Quantity:          req.Quantity,
		RemainingQuantity: req.Quantity,
		Closing:           closing,
		PositionID:        positionID,
		Reason:            req.Reason,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	// Covering a short is pre-funded; only opening buys lock cash.
	if req.Side == types.SideBuy && !closing {
		price, maker, err := a.estimatePrice(req)
		if err != nil {
			return nil, report, err
		}
		required := a.ledger.RequiredFunds(req.Quantity, price, maker)
		available, _ := a.ledger.available().Float64()
		if decimal.NewFromFloat(required).GreaterThan(a.ledger.available()) {
			fundsErr := riskerrors.InsufficientFunds(component, "PlaceOrder", required, available)
			o.Status = OrderStatusRejected
			o.RejectReason = fundsErr.Reason()
			o.RemainingQuantity = 0
			a.orders[o.ID] = o
			a.orderIDs = append(a.orderIDs, o.ID)
			a.logger.LogWarning("Order Rejected", "%s %s %.8f %s: %s", o.Type, o.Side, o.Quantity, o.Symbol, o.RejectReason)
			report.Order = o
			return o, report, fundsErr
		}
		a.ledger.lock(o.ID, decimal.NewFromFloat(required))
		o.LockedAmount = required
		o.LockedRemaining = a.ledger.lockRemaining(o.ID)
	}

	a.orders[o.ID] = o
	a.orderIDs = append(a.orderIDs, o.ID)
	a.pending = append(a.pending, o.ID)
	a.logger.Info("Order placed: %s %s %s %.8f (price=%.8f stop=%.8f lock=$%.4f closing=%t)",
		o.ID, o.Type, o.Side, o.Quantity, o.Price, o.StopPrice, o.LockedAmount, o.Closing)

	if o.Type == OrderTypeMarket {
		if q, ok := a.quotes[o.Symbol]; ok {
			liquidity := math.Inf(1)
			if !fullLiquidity {
				liquidity = a.liquidity(q)
			}
			report.merge(a.matchLocked(o, q, &liquidity))
		}
	}

	report.Order = o
	return o, report, nil
}

// liquidity is the quantity a tick can absorb. Zero volume means unknown
// depth and imposes no limit.
func (a *Account) liquidity(t types.Tick) float64 {
	if a.cfg.MaxVolumeParticipation <= 0 || t.Volume <= 0 {
		return math.Inf(1)
	}
	return t.Volume * a.cfg.MaxVolumeParticipation
}

// triggerPrice returns the reference execution price when o matches tick
func triggerPrice(o *VirtualOrder, t types.Tick) (float64, bool, bool) {
	buy := o.Side == types.SideBuy
	market := t.BidOrPrice()
	if buy {
		market = t.AskOrPrice()
	}

	switch o.Type {
	case OrderTypeMarket:
		return market, false, market > 0
	case OrderTypeLimit:
		if buy && t.AskOrPrice() <= o.Price {
			return o.Price, true, true
		}
		if !buy && t.BidOrPrice() >= o.Price {
			return o.Price, true, true
		}
	case OrderTypeStopLoss:
		// adverse cross
		if (buy && t.Price >= o.StopPrice) || (!buy && t.Price <= o.StopPrice) {
			return market, false, true
		}
	case OrderTypeTakeProfit:
		// favourable cross
		if (buy && t.Price <= o.StopPrice) || (!buy && t.Price >= o.StopPrice) {
			return market, false, true
		}
	}
	return 0, false, false
}

// matchLocked fills as much of o as liquidity allows when tick matches it
func (a *Account) matchLocked(o *VirtualOrder, t types.Tick, liquidity *float64) ExecutionReport {
	if o.Status.IsTerminal() {
		return ExecutionReport{}
	}
	price, maker, ok := triggerPrice(o, t)
	if !ok || price <= 0 {
		return ExecutionReport{}
	}

	qty := math.Min(o.RemainingQuantity, *liquidity)
	if qty <= quantityEpsilon {
		return ExecutionReport{}
	}
	*liquidity -= qty

	ts := t.Timestamp
	if ts.IsZero() {
		ts = a.now()
	}
	return a.fillLocked(o, qty, price, maker, ts)
}

// fillLocked executes qty of o at price (before slippage) and applies it to
// the ledger. Every fill produces exactly one PaperTrade.
func (a *Account) fillLocked(o *VirtualOrder, qty, price float64, maker bool, ts time.Time) ExecutionReport {
	var report ExecutionReport

	var pos *Position
	if o.Closing {
		p, ok := a.ledger.position(o.PositionID)
		if !ok || !p.IsOpen() {
			a.finalizeLocked(o, OrderStatusCancelled, "position already closed", ts)
			return report
		}
		pos = p
		qty = math.Min(qty, pos.RemainingQuantity)
	}

	exec := price
	if !maker {
		exec = a.ledger.ApplySlippage(price, o.Side)
	}
	value := qty * exec
	fee := a.ledger.CalculateFees(value, maker)
	slippage := math.Abs(exec-price) * qty
	final := qty >= o.RemainingQuantity-quantityEpsilon

	trade := PaperTrade{
		ID:         uuid.NewString(),
		OrderID:    o.ID,
		Symbol:     o.Symbol,
		Side:       o.Side,
		Price:      exec,
		Quantity:   qty,
		Fees:       fee,
		Slippage:   slippage,
		TotalValue: value,
		IsClosing:  o.Closing,
		Timestamp:  ts,
	}

	if o.Closing {
		trade.PositionID = pos.ID
		trade.EntryPrice = pos.EntryPrice
		trade.OpenedAt = pos.OpenedAt
		trade.ExitReason = o.Reason

		res, err := a.ledger.closePosition(pos.ID, qty, exec, fee, o.Reason, ts)
		if err != nil {
			a.logger.LogError("Closing fill failed", err)
			a.finalizeLocked(o, OrderStatusCancelled, riskerrors.ReasonOf(err), ts)
			return report
		}
		trade.RealizedPnL = res.PnL
		if res.Violation != nil {
			report.Violations = append(report.Violations, res.Violation)
		}
		if res.Position.Status == PositionStatusClosed {
			report.Closed = append(report.Closed, res.Position)
		} else {
			report.Reduced = append(report.Reduced, res.Position)
		}
	} else {
		if o.Side == types.SideBuy {
			a.ledger.release(o.ID, qty/o.RemainingQuantity, final)
			if decimal.NewFromFloat(value + fee).GreaterThan(a.ledger.available()) {
				available, _ := a.ledger.available().Float64()
				fundsErr := riskerrors.InsufficientFunds(component, "Fill", value+fee, available)
				status := OrderStatusRejected
				if o.FilledQuantity > 0 {
					status = OrderStatusCancelled
				}
				a.finalizeLocked(o, status, fundsErr.Reason(), ts)
				return report
			}
		}

		side := types.PositionSideFor(o.Side)
		if p, ok := a.ledger.position(o.PositionID); ok && o.PositionID != "" {
			a.ledger.scaleIn(p, qty, exec, fee, ts)
			pos = p
		} else {
			pos = a.ledger.openPosition(o.Symbol, side, qty, exec, fee, ts)
			o.PositionID = pos.ID
			report.Opened = append(report.Opened, pos.clone())
		}
		trade.PositionID = pos.ID
	}

	prevFilled := o.FilledQuantity
	o.FilledQuantity += qty
	o.RemainingQuantity -= qty
	o.ExecutedPrice = (o.ExecutedPrice*prevFilled + exec*qty) / o.FilledQuantity
	o.Fees += fee
	o.Slippage += slippage
	o.UpdatedAt = ts

	a.trades = append(a.trades, trade)
	report.Trades = append(report.Trades, trade)
	a.logger.LogTradeExecution(string(o.Side), o.ID, o.Symbol, qty, exec, fee, o.Closing)

	switch {
	case o.RemainingQuantity <= quantityEpsilon:
		o.RemainingQuantity = 0
		o.Status = OrderStatusFilled
		o.FilledAt = ts
		a.ledger.release(o.ID, 0, true)
		a.removePending(o.ID)
	case o.Closing && len(report.Closed) > 0:
		a.finalizeLocked(o, OrderStatusCancelled, "position closed before the order completed", ts)
	}
	o.LockedRemaining = a.ledger.lockRemaining(o.ID)
	return report
}

// finalizeLocked moves a pending order to a terminal status and releases
// whatever it still has locked. Releasing twice is impossible because the
// lock entry is deleted on the first final release.
func (a *Account) finalizeLocked(o *VirtualOrder, status OrderStatus, reason string, ts time.Time) {
	if o.Status.IsTerminal() {
		return
	}
	a.ledger.release(o.ID, 0, true)
	o.Status = status
	o.UpdatedAt = ts
	o.LockedRemaining = 0
	o.RejectReason = reason
	if status == OrderStatusCancelled {
		o.CancelledAt = ts
	}
	a.removePending(o.ID)
	a.logger.Info("Order %s %s: %s", o.ID, status, reason)
}

func (a *Account) removePending(id string) {
	for i, pid := range a.pending {
		if pid == id {
			a.pending = append(a.pending[:i], a.pending[i+1:]...)
			return
		}
	}
}
