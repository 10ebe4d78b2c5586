package paper

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	riskerrors "github.com/ducminhle1904/crypto-paper-risk/internal/errors"
	"github.com/ducminhle1904/crypto-paper-risk/internal/logger"
	"github.com/ducminhle1904/crypto-paper-risk/pkg/types"
)

// LedgerConfig holds the execution cost model
type LedgerConfig struct {
	InitialBalance float64 `json:"initial_balance"`
	MakerFeeRate   float64 `json:"maker_fee_rate"`
	TakerFeeRate   float64 `json:"taker_fee_rate"`
	SlippageRate   float64 `json:"slippage_rate"`
}

// DefaultLedgerConfig returns a 10k account with 0.1% fees and 0.05% slippage
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		InitialBalance: 10000,
		MakerFeeRate:   0.001,
		TakerFeeRate:   0.001,
		SlippageRate:   0.0005,
	}
}

// Validate checks the cost model
func (c LedgerConfig) Validate() error {
	const op = "NewLedger"
	if c.InitialBalance <= 0 {
		return riskerrors.InvalidParameter(component, op, "initial balance must be positive, got %.2f", c.InitialBalance)
	}
	for name, rate := range map[string]float64{"maker fee": c.MakerFeeRate, "taker fee": c.TakerFeeRate, "slippage": c.SlippageRate} {
		if rate < 0 || rate >= 1 {
			return riskerrors.InvalidParameter(component, op, "%s rate must be within [0, 1), got %.6f", name, rate)
		}
	}
	return nil
}

// Ledger owns cash, locked funds and positions. Cash moves only by realized
// P&L. Opening a long reserves its cost basis from available cash; shorts are
// margin-free. Equity is cash plus the unrealized P&L of open positions.
//
// Ledger is not safe for concurrent use; Account serializes access.
type Ledger struct {
	cfg    LedgerConfig
	logger *logger.Logger

	cash     decimal.Decimal
	locked   decimal.Decimal
	reserved decimal.Decimal
	realized decimal.Decimal

	locks        map[string]decimal.Decimal // order id -> remaining lock
	reservations map[string]decimal.Decimal // position id -> remaining cost basis

	positions map[string]*Position
	openOrder []string // open position ids, oldest first
	closed    []Position

	peakEquity float64
	updatedAt  time.Time
}

// NewLedger creates a ledger funded with cfg.InitialBalance
func NewLedger(cfg LedgerConfig, log *logger.Logger) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Ledger{
		cfg:          cfg,
		logger:       log,
		cash:         decimal.NewFromFloat(cfg.InitialBalance),
		locks:        make(map[string]decimal.Decimal),
		reservations: make(map[string]decimal.Decimal),
		positions:    make(map[string]*Position),
		peakEquity:   cfg.InitialBalance,
	}, nil
}

// Config returns the cost model
func (l *Ledger) Config() LedgerConfig {
	return l.cfg
}

// CalculateFees returns value * fee rate for the maker or taker side
func (l *Ledger) CalculateFees(value float64, maker bool) float64 {
	rate := l.cfg.TakerFeeRate
	if maker {
		rate = l.cfg.MakerFeeRate
	}
	return math.Abs(value) * rate
}

// CalculateSlippage returns value * slippage rate
func (l *Ledger) CalculateSlippage(value float64) float64 {
	return math.Abs(value) * l.cfg.SlippageRate
}

// ApplySlippage moves price against the trader: up for buys, down for sells
func (l *Ledger) ApplySlippage(price float64, side types.Side) float64 {
	if side == types.SideBuy {
		return price * (1 + l.cfg.SlippageRate)
	}
	return price * (1 - l.cfg.SlippageRate)
}

// RequiredFunds is what a buy of qty at price (before slippage) needs available
func (l *Ledger) RequiredFunds(qty, price float64, maker bool) float64 {
	exec := price
	if !maker {
		exec = l.ApplySlippage(price, types.SideBuy)
	}
	value := qty * exec
	return value + l.CalculateFees(value, maker)
}

// CanPlaceOrder checks available cash covers a taker buy. Sells are margin-free.
func (l *Ledger) CanPlaceOrder(side types.Side, qty, price float64) error {
	if side != types.SideBuy {
		return nil
	}
	required := l.RequiredFunds(qty, price, false)
	if available := l.available(); decimal.NewFromFloat(required).GreaterThan(available) {
		f, _ := available.Float64()
		return riskerrors.InsufficientFunds(component, "CanPlaceOrder", required, f)
	}
	return nil
}

func (l *Ledger) available() decimal.Decimal {
	return l.cash.Sub(l.locked).Sub(l.reserved)
}

// lock reserves amount for an order. The caller checked availability.
func (l *Ledger) lock(orderID string, amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}
	l.locks[orderID] = l.locks[orderID].Add(amount)
	l.locked = l.locked.Add(amount)
}

// release frees fraction (0..1] of an order's remaining lock, or all of it
// when final is set. The lock entry is deleted on the final release so a
// second release is a no-op.
func (l *Ledger) release(orderID string, fraction float64, final bool) decimal.Decimal {
	remaining, ok := l.locks[orderID]
	if !ok {
		return decimal.Zero
	}

	amount := remaining
	if !final && fraction < 1 {
		amount = remaining.Mul(decimal.NewFromFloat(fraction))
		if amount.GreaterThan(remaining) {
			amount = remaining
		}
	}

	left := remaining.Sub(amount)
	if final || !left.IsPositive() {
		amount = remaining
		delete(l.locks, orderID)
	} else {
		l.locks[orderID] = left
	}
	l.locked = l.locked.Sub(amount)
	return amount
}

func (l *Ledger) lockRemaining(orderID string) float64 {
	f, _ := l.locks[orderID].Float64()
	return f
}

// openPosition records an opening fill as a new position
func (l *Ledger) openPosition(symbol string, side types.PositionSide, qty, price, fee float64, ts time.Time) *Position {
	pos := &Position{
		ID:                uuid.NewString(),
		Symbol:            symbol,
		Side:              side,
		Status:            PositionStatusOpen,
		EntryPrice:        price,
		CurrentPrice:      price,
		Size:              qty * price,
		Quantity:          qty,
		RemainingQuantity: qty,
		HighestPrice:      price,
		LowestPrice:       price,
		EntryFees:         fee,
		TotalFees:         fee,
		OpenedAt:          ts,
		UpdatedAt:         ts,
	}
	l.positions[pos.ID] = pos
	l.openOrder = append(l.openOrder, pos.ID)

	if side == types.Long {
		l.reserve(pos.ID, qty*price+fee)
	}
	l.refreshPosition(pos)
	l.touch(ts)
	return pos
}

// scaleIn adds a later partial fill of the same opening order to pos
func (l *Ledger) scaleIn(pos *Position, qty, price, fee float64, ts time.Time) {
	total := pos.Quantity + qty
	pos.EntryPrice = (pos.EntryPrice*pos.Quantity + price*qty) / total
	pos.Quantity = total
	pos.RemainingQuantity += qty
	pos.Size += qty * price
	pos.EntryFees += fee
	pos.TotalFees += fee
	pos.UpdatedAt = ts

	if pos.Side == types.Long {
		l.reserve(pos.ID, qty*price+fee)
	}
	l.refreshPosition(pos)
	l.touch(ts)
}

func (l *Ledger) reserve(positionID string, amount float64) {
	d := decimal.NewFromFloat(amount)
	l.reservations[positionID] = l.reservations[positionID].Add(d)
	l.reserved = l.reserved.Add(d)
}

// closeResult is the ledger side of one closing fill
type closeResult struct {
	Position  Position
	Quantity  float64
	PnL       float64
	Violation error
}

// closePosition closes qty of a position at exitPrice paying exitFee.
// P&L = (exit - entry) * qty * dir - entry fee portion - exit fee.
// Closing more than the remaining quantity is clamped and reported.
func (l *Ledger) closePosition(positionID string, qty, exitPrice, exitFee float64, reason string, ts time.Time) (closeResult, error) {
	const op = "ClosePosition"
	pos, ok := l.positions[positionID]
	if !ok || !pos.IsOpen() {
		return closeResult{}, riskerrors.PositionNotFound(component, op, positionID)
	}
	if qty <= 0 {
		return closeResult{}, riskerrors.InvalidParameter(component, op, "close quantity must be positive, got %.8f", qty)
	}

	var violation error
	if qty > pos.RemainingQuantity+quantityEpsilon {
		violation = riskerrors.InvariantViolation(component, op,
			"close of %.8f exceeds remaining %.8f on %s, clamped", qty, pos.RemainingQuantity, positionID)
		l.logger.Critical("%v", violation)
		qty = pos.RemainingQuantity
	}
	final := qty >= pos.RemainingQuantity-quantityEpsilon
	if final {
		qty = pos.RemainingQuantity
	}

	portion := qty / pos.RemainingQuantity
	entryFeePortion := pos.EntryFees * portion
	if final {
		entryFeePortion = pos.EntryFees
	}

	pnl := (exitPrice-pos.EntryPrice)*qty*pos.Side.Direction() - entryFeePortion - exitFee
	pnlDec := decimal.NewFromFloat(pnl)
	l.cash = l.cash.Add(pnlDec)
	l.realized = l.realized.Add(pnlDec)

	if resv, ok := l.reservations[positionID]; ok {
		freed := resv
		if !final {
			freed = resv.Mul(decimal.NewFromFloat(portion))
		}
		left := resv.Sub(freed)
		if final || !left.IsPositive() {
			freed = resv
			delete(l.reservations, positionID)
		} else {
			l.reservations[positionID] = left
		}
		l.reserved = l.reserved.Sub(freed)
	}

	pos.EntryFees -= entryFeePortion
	pos.TotalFees += exitFee
	pos.RealizedPnL += pnl
	pos.RemainingQuantity -= qty
	pos.CurrentPrice = exitPrice
	pos.ExitPrice = exitPrice
	pos.UpdatedAt = ts

	if final {
		pos.RemainingQuantity = 0
		pos.EntryFees = 0
		pos.Status = PositionStatusClosed
		pos.ExitReason = reason
		pos.ClosedAt = ts
		pos.UnrealizedPnL = 0
		pos.CostBasis = 0
		l.retire(pos)
	} else {
		pos.Status = PositionStatusPartiallyClosed
		if reason != "" {
			pos.ExitReason = reason
		}
		l.refreshPosition(pos)
	}

	l.touch(ts)
	l.updatePeak()
	return closeResult{Position: pos.clone(), Quantity: qty, PnL: pnl, Violation: violation}, nil
}

// retire moves a fully closed position out of the open set
func (l *Ledger) retire(pos *Position) {
	delete(l.positions, pos.ID)
	for i, id := range l.openOrder {
		if id == pos.ID {
			l.openOrder = append(l.openOrder[:i], l.openOrder[i+1:]...)
			break
		}
	}
	l.closed = append(l.closed, pos.clone())
}

// markSymbol marks every open position on symbol to price
func (l *Ledger) markSymbol(symbol string, price float64, ts time.Time) {
	if price <= 0 {
		return
	}
	for _, id := range l.openOrder {
		pos := l.positions[id]
		if pos.Symbol != symbol {
			continue
		}
		pos.CurrentPrice = price
		pos.HighestPrice = math.Max(pos.HighestPrice, price)
		if pos.LowestPrice <= 0 {
			pos.LowestPrice = price
		} else {
			pos.LowestPrice = math.Min(pos.LowestPrice, price)
		}
		pos.UpdatedAt = ts
		l.refreshPosition(pos)
	}
	l.touch(ts)
	l.updatePeak()
}

// refreshPosition recomputes unrealized P&L net of the remaining entry fees
func (l *Ledger) refreshPosition(pos *Position) {
	pos.UnrealizedPnL = (pos.CurrentPrice-pos.EntryPrice)*pos.RemainingQuantity*pos.Side.Direction() - pos.EntryFees
	if resv, ok := l.reservations[pos.ID]; ok {
		pos.CostBasis, _ = resv.Float64()
	}
}

func (l *Ledger) touch(ts time.Time) {
	if ts.After(l.updatedAt) {
		l.updatedAt = ts
	}
}

func (l *Ledger) unrealized() float64 {
	total := 0.0
	for _, id := range l.openOrder {
		total += l.positions[id].UnrealizedPnL
	}
	return total
}

func (l *Ledger) equity() float64 {
	cash, _ := l.cash.Float64()
	return cash + l.unrealized()
}

func (l *Ledger) updatePeak() {
	if eq := l.equity(); eq > l.peakEquity {
		l.peakEquity = eq
	}
}

// Balance returns the current balance
func (l *Ledger) Balance() Balance {
	cash, _ := l.cash.Float64()
	locked, _ := l.locked.Float64()
	reserved, _ := l.reserved.Float64()
	available, _ := l.available().Float64()
	realized, _ := l.realized.Float64()
	unrealized := l.unrealized()
	equity := cash + unrealized

	drawdown := 0.0
	if l.peakEquity > 0 && equity < l.peakEquity {
		drawdown = (l.peakEquity - equity) / l.peakEquity
	}

	return Balance{
		Cash:          cash,
		Locked:        locked,
		Reserved:      reserved,
		Available:     available,
		Equity:        equity,
		RealizedPnL:   realized,
		UnrealizedPnL: unrealized,
		PeakEquity:    l.peakEquity,
		Drawdown:      drawdown,
		OpenPositions: len(l.openOrder),
		UpdatedAt:     l.updatedAt,
	}
}

// position returns the live open position
func (l *Ledger) position(id string) (*Position, bool) {
	pos, ok := l.positions[id]
	return pos, ok
}

// findPosition returns a copy of an open or closed position
func (l *Ledger) findPosition(id string) (Position, bool) {
	if pos, ok := l.positions[id]; ok {
		return pos.clone(), true
	}
	for i := len(l.closed) - 1; i >= 0; i-- {
		if l.closed[i].ID == id {
			return l.closed[i].clone(), true
		}
	}
	return Position{}, false
}

// oldestOpen returns the oldest open position on symbol with side
func (l *Ledger) oldestOpen(symbol string, side types.PositionSide) (*Position, bool) {
	for _, id := range l.openOrder {
		pos := l.positions[id]
		if pos.Symbol == symbol && pos.Side == side {
			return pos, true
		}
	}
	return nil, false
}

// openPositions returns copies of open positions, oldest first
func (l *Ledger) openPositions() []Position {
	out := make([]Position, 0, len(l.openOrder))
	for _, id := range l.openOrder {
		out = append(out, l.positions[id].clone())
	}
	return out
}

// closedPositions returns copies of closed positions, in close order
func (l *Ledger) closedPositions() []Position {
	out := make([]Position, len(l.closed))
	for i, p := range l.closed {
		out[i] = p.clone()
	}
	return out
}

// restore rebuilds ledger state from a saved balance and positions
func (l *Ledger) restore(bal Balance, open, closed []Position, orders []VirtualOrder) {
	l.cash = decimal.NewFromFloat(bal.Cash)
	l.realized = decimal.NewFromFloat(bal.RealizedPnL)
	l.peakEquity = bal.PeakEquity
	l.updatedAt = bal.UpdatedAt

	l.positions = make(map[string]*Position, len(open))
	l.openOrder = l.openOrder[:0]
	l.reservations = make(map[string]decimal.Decimal)
	l.reserved = decimal.Zero

	sorted := make([]Position, len(open))
	copy(sorted, open)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].OpenedAt.Before(sorted[j].OpenedAt) })
	for i := range sorted {
		pos := sorted[i].clone()
		l.positions[pos.ID] = &pos
		l.openOrder = append(l.openOrder, pos.ID)
		if pos.Side == types.Long && pos.CostBasis > 0 {
			l.reserve(pos.ID, pos.CostBasis)
		}
	}

	l.closed = make([]Position, len(closed))
	copy(l.closed, closed)

	l.locks = make(map[string]decimal.Decimal)
	l.locked = decimal.Zero
	for _, o := range orders {
		if o.Status == OrderStatusPending && o.LockedRemaining > 0 {
			l.lock(o.ID, decimal.NewFromFloat(o.LockedRemaining))
		}
	}
}
