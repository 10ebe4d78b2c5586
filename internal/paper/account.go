package paper

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	riskerrors "github.com/ducminhle1904/crypto-paper-risk/internal/errors"
	"github.com/ducminhle1904/crypto-paper-risk/internal/logger"
	"github.com/ducminhle1904/crypto-paper-risk/internal/stoploss"
	"github.com/ducminhle1904/crypto-paper-risk/internal/takeprofit"
	"github.com/ducminhle1904/crypto-paper-risk/pkg/types"
)

// Config configures one paper account
type Config struct {
	ID     string       `json:"id"`
	Ledger LedgerConfig `json:"ledger"`
	// MaxVolumeParticipation bounds each fill to tick volume * participation.
	// Zero fills orders completely.
	MaxVolumeParticipation float64 `json:"max_volume_participation"`
}

// Snapshot is an immutable, consistent view published after every committed
// mutation. Readers never block the tick loop.
type Snapshot struct {
	AccountID     string     `json:"account_id"`
	Version       uint64     `json:"version"`
	Balance       Balance    `json:"balance"`
	Positions     []Position `json:"positions"`
	PendingOrders int        `json:"pending_orders"`
	TradeCount    int        `json:"trade_count"`
	TakenAt       time.Time  `json:"taken_at"`
}

// State is the full serializable content of an account
type State struct {
	ID              string                `json:"id"`
	Config          Config                `json:"config"`
	Balance         Balance               `json:"balance"`
	OpenPositions   []Position            `json:"open_positions"`
	ClosedPositions []Position            `json:"closed_positions"`
	Orders          []VirtualOrder        `json:"orders"`
	Trades          []PaperTrade          `json:"trades"`
	Quotes          map[string]types.Tick `json:"quotes"`
	SavedAt         time.Time             `json:"saved_at"`
}

// Account couples the ledger and the order manager under one lock.
type Account struct {
	mu     sync.Mutex
	cfg    Config
	ledger *Ledger
	logger *logger.Logger

	orders   map[string]*VirtualOrder
	orderIDs []string // placement order
	pending  []string // pending order ids, placement order
	trades   []PaperTrade
	quotes   map[string]types.Tick
	clock    time.Time

	version  uint64
	snapshot atomic.Pointer[Snapshot]
}

// NewAccount creates a funded paper account
func NewAccount(cfg Config, log *logger.Logger) (*Account, error) {
	if cfg.MaxVolumeParticipation < 0 || cfg.MaxVolumeParticipation > 1 {
		return nil, riskerrors.InvalidParameter(component, "NewAccount",
			"max volume participation must be within [0, 1], got %.4f", cfg.MaxVolumeParticipation)
	}
	if cfg.ID == "" {
		cfg.ID = "paper"
	}
	ledger, err := NewLedger(cfg.Ledger, log)
	if err != nil {
		return nil, err
	}

	a := &Account{
		cfg:    cfg,
		ledger: ledger,
		logger: log,
		orders: make(map[string]*VirtualOrder),
		quotes: make(map[string]types.Tick),
	}
	a.publishLocked()
	return a, nil
}

// ID returns the account id
func (a *Account) ID() string {
	return a.cfg.ID
}

// Config returns the account configuration
func (a *Account) Config() Config {
	return a.cfg
}

// now is simulation time: the newest tick seen, or the wall clock before any tick
func (a *Account) now() time.Time {
	if a.clock.IsZero() {
		return time.Now()
	}
	return a.clock
}

func (a *Account) advance(ts time.Time) {
	if ts.After(a.clock) {
		a.clock = ts
	}
}

func (a *Account) publishLocked() {
	a.version++
	s := &Snapshot{
		AccountID:     a.cfg.ID,
		Version:       a.version,
		Balance:       a.ledger.Balance(),
		Positions:     a.ledger.openPositions(),
		PendingOrders: len(a.pending),
		TradeCount:    len(a.trades),
		TakenAt:       a.now(),
	}
	a.snapshot.Store(s)
}

// Snapshot returns the latest published snapshot without taking the lock
func (a *Account) Snapshot() Snapshot {
	return *a.snapshot.Load()
}

// Balance returns the latest published balance without taking the lock
func (a *Account) Balance() Balance {
	return a.snapshot.Load().Balance
}

// CalculateFees returns value * fee rate
func (a *Account) CalculateFees(value float64, maker bool) float64 {
	return a.ledger.CalculateFees(value, maker)
}

// CalculateSlippage returns value * slippage rate
func (a *Account) CalculateSlippage(value float64) float64 {
	return a.ledger.CalculateSlippage(value)
}

// ApplySlippage moves price against the trader
func (a *Account) ApplySlippage(price float64, side types.Side) float64 {
	return a.ledger.ApplySlippage(price, side)
}

// CanPlaceOrder checks available cash for a taker buy of qty at price
func (a *Account) CanPlaceOrder(side types.Side, qty, price float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ledger.CanPlaceOrder(side, qty, price)
}

// PlaceOrder validates and records an order. Malformed requests return an
// error and record nothing; insufficient funds record a rejected order and
// return it with the error. Market orders fill at once when a quote exists.
func (a *Account) PlaceOrder(req OrderRequest) (VirtualOrder, ExecutionReport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	o, report, err := a.placeLocked(req, false)
	if o != nil {
		a.publishLocked()
		copyOrder := *o
		report.Order = &copyOrder
		return copyOrder, report, err
	}
	return VirtualOrder{}, report, err
}

// OpenMarket opens a new position with a market order at the latest quote.
// It never closes an opposite position and is not limited by tick volume.
func (a *Account) OpenMarket(symbol string, side types.PositionSide, qty float64, reason string) (VirtualOrder, ExecutionReport, error) {
	if !side.Valid() {
		return VirtualOrder{}, ExecutionReport{}, riskerrors.InvalidParameter(component, "OpenMarket", "unknown position side %q", side)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.quotes[symbol]; !ok {
		return VirtualOrder{}, ExecutionReport{}, riskerrors.InvalidParameter(component, "OpenMarket", "no market price for %s", symbol)
	}
	o, report, err := a.placeLocked(OrderRequest{
		Symbol:   symbol,
		Type:     OrderTypeMarket,
		Side:     side.EntrySide(),
		Quantity: qty,
		OpenOnly: true,
		Reason:   reason,
	}, true)
	if o == nil {
		return VirtualOrder{}, report, err
	}
	a.publishLocked()
	copyOrder := *o
	report.Order = &copyOrder
	return copyOrder, report, err
}

// CancelOrder cancels a pending order and releases its lock. Cancelling a
// terminal order returns InvalidOrderState and changes nothing.
func (a *Account) CancelOrder(orderID string) (VirtualOrder, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	o, ok := a.orders[orderID]
	if !ok {
		return VirtualOrder{}, riskerrors.OrderNotFound(component, "CancelOrder", orderID)
	}
	if o.Status.IsTerminal() {
		return *o, riskerrors.InvalidOrderState(component, "CancelOrder", "order %s is already %s", orderID, o.Status)
	}

	a.finalizeLocked(o, OrderStatusCancelled, "cancelled by user", a.now())
	a.publishLocked()
	return *o, nil
}

// CancelAll cancels every pending order on symbol, or on all symbols when empty
func (a *Account) CancelAll(symbol string) []VirtualOrder {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []VirtualOrder
	for _, id := range append([]string(nil), a.pending...) {
		o := a.orders[id]
		if symbol != "" && o.Symbol != symbol {
			continue
		}
		a.finalizeLocked(o, OrderStatusCancelled, "cancelled by user", a.now())
		out = append(out, *o)
	}
	if len(out) > 0 {
		a.publishLocked()
	}
	return out
}

func normalizeTick(t types.Tick) (types.Tick, error) {
	if t.Symbol == "" {
		return t, riskerrors.InvalidParameter(component, "ProcessTick", "tick symbol is required")
	}
	if t.Price <= 0 {
		switch {
		case t.Bid > 0 && t.Ask > 0:
			t.Price = (t.Bid + t.Ask) / 2
		case t.Bid > 0:
			t.Price = t.Bid
		case t.Ask > 0:
			t.Price = t.Ask
		}
	}
	if !(t.Price > 0) || math.IsInf(t.Price, 0) {
		return t, riskerrors.InvalidParameter(component, "ProcessTick", "tick for %s has no usable price", t.Symbol)
	}
	return t, nil
}

// ProcessTick records the quote, matches pending orders on the symbol in
// placement order and marks open positions to the tick price.
func (a *Account) ProcessTick(t types.Tick) (TickResult, error) {
	t, err := normalizeTick(t)
	if err != nil {
		return TickResult{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if t.Timestamp.IsZero() {
		t.Timestamp = a.now()
	}
	a.advance(t.Timestamp)
	a.quotes[t.Symbol] = t

	result := TickResult{Symbol: t.Symbol}
	a.ledger.markSymbol(t.Symbol, t.Price, t.Timestamp)

	liquidity := a.liquidity(t)
	for _, id := range append([]string(nil), a.pending...) {
		o := a.orders[id]
		if o.Symbol != t.Symbol || o.Status.IsTerminal() {
			continue
		}
		report := a.matchLocked(o, t, &liquidity)
		result.merge(report)
		switch o.Status {
		case OrderStatusFilled:
			result.Filled = append(result.Filled, *o)
		case OrderStatusCancelled, OrderStatusRejected:
			result.Cancelled = append(result.Cancelled, *o)
		}
	}

	a.ledger.markSymbol(t.Symbol, t.Price, t.Timestamp)
	a.publishLocked()
	return result, nil
}

// MarkPrice marks positions on symbol to price and records it as the quote.
func (a *Account) MarkPrice(symbol string, price float64, ts time.Time) error {
	if symbol == "" || !(price > 0) {
		return riskerrors.InvalidParameter(component, "MarkPrice", "symbol and a positive price are required")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if ts.IsZero() {
		ts = a.now()
	}
	a.advance(ts)
	q := a.quotes[symbol]
	q.Symbol, q.Price, q.Bid, q.Ask, q.Timestamp = symbol, price, price, price, ts
	a.quotes[symbol] = q
	a.ledger.markSymbol(symbol, price, ts)
	a.publishLocked()
	return nil
}

// ClosePosition closes all or part of a position with a market order at the
// latest quote. Forced closes are not limited by tick volume. Asking for more
// than the remaining quantity is clamped and reported as a violation.
func (a *Account) ClosePosition(req CloseRequest) (ExecutionReport, error) {
	const op = "ClosePosition"
	a.mu.Lock()
	defer a.mu.Unlock()

	pos, ok := a.ledger.position(req.PositionID)
	if !ok {
		return ExecutionReport{}, riskerrors.PositionNotFound(component, op, req.PositionID)
	}
	if _, ok := a.quotes[pos.Symbol]; !ok {
		return ExecutionReport{}, riskerrors.InvalidParameter(component, op, "no market price for %s", pos.Symbol)
	}
	if req.Quantity < 0 {
		return ExecutionReport{}, riskerrors.InvalidParameter(component, op, "close quantity must not be negative")
	}

	var violations []error
	qty := req.Quantity
	if qty == 0 {
		qty = pos.RemainingQuantity
	}
	if qty > pos.RemainingQuantity+quantityEpsilon {
		v := riskerrors.InvariantViolation(component, op,
			"requested close of %.8f exceeds remaining %.8f on %s, clamped", qty, pos.RemainingQuantity, pos.ID)
		a.logger.Critical("%v", v)
		violations = append(violations, v)
		qty = pos.RemainingQuantity
	}

	reason := req.Reason
	if reason == "" {
		reason = ExitReasonManual
	}
	o, report, err := a.placeLocked(OrderRequest{
		Symbol:     pos.Symbol,
		Type:       OrderTypeMarket,
		Side:       pos.Side.ExitSide(),
		Quantity:   qty,
		PositionID: pos.ID,
		Reason:     reason,
	}, true)
	report.Violations = append(violations, report.Violations...)
	if o != nil {
		copyOrder := *o
		report.Order = &copyOrder
		a.publishLocked()
	}
	return report, err
}

// SetRiskPlan attaches stop-loss and take-profit levels to an open position
func (a *Account) SetRiskPlan(positionID string, plan RiskPlan) (Position, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pos, ok := a.ledger.position(positionID)
	if !ok {
		return Position{}, riskerrors.PositionNotFound(component, "SetRiskPlan", positionID)
	}
	pos.StopLoss = plan.StopLoss
	pos.StopLossType = plan.StopLossType
	pos.StopMethod = plan.StopMethod
	pos.TakeProfits = append([]takeprofit.Level(nil), plan.TakeProfits...)
	pos.MaxHoldUntil = plan.MaxHoldUntil
	pos.Trailing = plan.Trailing
	pos.UpdatedAt = a.now()
	a.publishLocked()
	return pos.clone(), nil
}

// ApplyStopUpdate stores a trailing update. The stop only moves when u.Updated
// is set and the new stop is tighter than the current one.
func (a *Account) ApplyStopUpdate(positionID string, u stoploss.Update) (Position, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pos, ok := a.ledger.position(positionID)
	if !ok {
		return Position{}, false, riskerrors.PositionNotFound(component, "ApplyStopUpdate", positionID)
	}

	moved := false
	if u.Updated && tightens(pos.Side, pos.StopLoss, u.NewStopLoss) {
		pos.StopLoss = u.NewStopLoss
		moved = true
	}
	pos.TrailingActive = pos.TrailingActive || u.Activated
	pos.Trailing = u.Trailing
	pos.UpdatedAt = a.now()
	a.publishLocked()
	return pos.clone(), moved, nil
}

func tightens(side types.PositionSide, current, next float64) bool {
	if next <= 0 {
		return false
	}
	if current <= 0 {
		return true
	}
	if side == types.Long {
		return next > current
	}
	return next < current
}

// MarkTakeProfitTriggered flags level idx of a position as hit
func (a *Account) MarkTakeProfitTriggered(positionID string, idx int) (Position, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pos, ok := a.ledger.position(positionID)
	if !ok {
		return Position{}, riskerrors.PositionNotFound(component, "MarkTakeProfitTriggered", positionID)
	}
	if idx < 0 || idx >= len(pos.TakeProfits) {
		return Position{}, riskerrors.InvalidParameter(component, "MarkTakeProfitTriggered", "no take-profit level %d", idx)
	}
	pos.TakeProfits[idx].Triggered = true
	pos.TakeProfits[idx].TriggeredAt = a.now()
	a.publishLocked()
	return pos.clone(), nil
}

// Position returns an open or closed position by id
func (a *Account) Position(id string) (Position, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ledger.findPosition(id)
}

// OpenPositions returns the open positions, oldest first
func (a *Account) OpenPositions() []Position {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ledger.openPositions()
}

// OpenPositionsBySymbol returns the open positions on symbol, oldest first
func (a *Account) OpenPositionsBySymbol(symbol string) []Position {
	var out []Position
	for _, p := range a.OpenPositions() {
		if p.Symbol == symbol {
			out = append(out, p)
		}
	}
	return out
}

// ClosedPositions returns the closed positions in close order
func (a *Account) ClosedPositions() []Position {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ledger.closedPositions()
}

// Order returns an order by id
func (a *Account) Order(id string) (VirtualOrder, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	o, ok := a.orders[id]
	if !ok {
		return VirtualOrder{}, false
	}
	return *o, true
}

// Orders returns every order in placement order
func (a *Account) Orders() []VirtualOrder {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]VirtualOrder, len(a.orderIDs))
	for i, id := range a.orderIDs {
		out[i] = *a.orders[id]
	}
	return out
}

// PendingOrders returns the pending orders in placement order
func (a *Account) PendingOrders() []VirtualOrder {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]VirtualOrder, len(a.pending))
	for i, id := range a.pending {
		out[i] = *a.orders[id]
	}
	return out
}

// Trades returns every execution in order
func (a *Account) Trades() []PaperTrade {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]PaperTrade, len(a.trades))
	copy(out, a.trades)
	return out
}

// Quote returns the latest tick for symbol
func (a *Account) Quote(symbol string) (types.Tick, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	q, ok := a.quotes[symbol]
	return q, ok
}

// Now returns the account's simulation clock
func (a *Account) Now() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.now()
}

// State exports the complete account content
func (a *Account) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()

	orders := make([]VirtualOrder, len(a.orderIDs))
	for i, id := range a.orderIDs {
		orders[i] = *a.orders[id]
	}
	trades := make([]PaperTrade, len(a.trades))
	copy(trades, a.trades)
	quotes := make(map[string]types.Tick, len(a.quotes))
	for k, v := range a.quotes {
		quotes[k] = v
	}

	return State{
		ID:              a.cfg.ID,
		Config:          a.cfg,
		Balance:         a.ledger.Balance(),
		OpenPositions:   a.ledger.openPositions(),
		ClosedPositions: a.ledger.closedPositions(),
		Orders:          orders,
		Trades:          trades,
		Quotes:          quotes,
		SavedAt:         a.now(),
	}
}

// RestoreAccount rebuilds an account from exported state
func RestoreAccount(st State, log *logger.Logger) (*Account, error) {
	a, err := NewAccount(st.Config, log)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.ledger.restore(st.Balance, st.OpenPositions, st.ClosedPositions, st.Orders)
	for i := range st.Orders {
		o := st.Orders[i]
		a.orders[o.ID] = &o
		a.orderIDs = append(a.orderIDs, o.ID)
		if o.Status == OrderStatusPending {
			a.pending = append(a.pending, o.ID)
		}
	}
	a.trades = append(a.trades, st.Trades...)
	for k, v := range st.Quotes {
		a.quotes[k] = v
		a.advance(v.Timestamp)
	}
	a.advance(st.SavedAt)

	symbols := make([]string, 0, len(a.quotes))
	for s := range a.quotes {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	for _, s := range symbols {
		a.ledger.markSymbol(s, a.quotes[s].Price, a.quotes[s].Timestamp)
	}
	a.publishLocked()
	return a, nil
}
