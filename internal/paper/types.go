// Package paper simulates order execution against a virtual account: a ledger
// of cash, locked funds and positions, and a manager of virtual orders
// matched against market ticks.
package paper

import (
	"time"

	"github.com/ducminhle1904/crypto-paper-risk/internal/stoploss"
	"github.com/ducminhle1904/crypto-paper-risk/internal/takeprofit"
	"github.com/ducminhle1904/crypto-paper-risk/pkg/types"
)

const component = "paper"

// quantityEpsilon treats smaller remainders as zero
const quantityEpsilon = 1e-12

// OrderType represents different virtual order types
type OrderType string

const (
	OrderTypeMarket     OrderType = "market"
	OrderTypeLimit      OrderType = "limit"
	OrderTypeStopLoss   OrderType = "stop_loss"
	OrderTypeTakeProfit OrderType = "take_profit"
)

// OrderStatus is the lifecycle state of a virtual order. Only pending is non-terminal.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRejected  OrderStatus = "rejected"
)

// IsTerminal reports whether no further transition is possible
func (s OrderStatus) IsTerminal() bool {
	return s != OrderStatusPending
}

// PositionStatus is the lifecycle state of a position
type PositionStatus string

const (
	PositionStatusOpen            PositionStatus = "open"
	PositionStatusPartiallyClosed PositionStatus = "partially_closed"
	PositionStatusClosed          PositionStatus = "closed"
)

// Exit reasons recorded on closing orders and positions
const (
	ExitReasonManual     = "manual"
	ExitReasonStopLoss   = "stop-loss"
	ExitReasonTakeProfit = "take-profit"
	ExitReasonTimeExit   = "time-exit"
	ExitReasonSignal     = "signal"
	ExitReasonEmergency  = "emergency"
)

// VirtualOrder represents a simulated order
type VirtualOrder struct {
	ID                string      `json:"id"`
	Symbol            string      `json:"symbol"`
	Type              OrderType   `json:"type"`
	Side              types.Side  `json:"side"`
	Status            OrderStatus `json:"status"`
	Price             float64     `json:"price,omitempty"`      // limit price, or reference price for market orders
	StopPrice         float64     `json:"stop_price,omitempty"` // trigger for stop_loss and take_profit
	ExecutedPrice     float64     `json:"executed_price"`       // volume weighted average
	Quantity          float64     `json:"quantity"`
	FilledQuantity    float64     `json:"filled_quantity"`
	RemainingQuantity float64     `json:"remaining_quantity"`
	Fees              float64     `json:"fees"`
	Slippage          float64     `json:"slippage"`
	LockedAmount      float64     `json:"locked_amount"`    // locked at placement
	LockedRemaining   float64     `json:"locked_remaining"` // still locked
	Closing           bool        `json:"closing"`
	PositionID        string      `json:"position_id,omitempty"`
	Reason            string      `json:"reason,omitempty"`
	RejectReason      string      `json:"reject_reason,omitempty"` // why the order was rejected or cancelled
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
	FilledAt          time.Time   `json:"filled_at,omitempty"`
	CancelledAt       time.Time   `json:"cancelled_at,omitempty"`
}

// PaperTrade is the immutable record of one execution
type PaperTrade struct {
	ID          string     `json:"id"`
	OrderID     string     `json:"order_id"`
	Symbol      string     `json:"symbol"`
	Side        types.Side `json:"side"`
	Price       float64    `json:"price"`
	Quantity    float64    `json:"quantity"`
	Fees        float64    `json:"fees"`
	Slippage    float64    `json:"slippage"`
	TotalValue  float64    `json:"total_value"`
	IsClosing   bool       `json:"is_closing"`
	PositionID  string     `json:"position_id,omitempty"`
	RealizedPnL float64    `json:"realized_pnl,omitempty"`
	EntryPrice  float64    `json:"entry_price,omitempty"`
	OpenedAt    time.Time  `json:"opened_at,omitempty"`
	ExitReason  string     `json:"exit_reason,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// Position represents an open or closed simulated position
type Position struct {
	ID                string                 `json:"id"`
	Symbol            string                 `json:"symbol"`
	Side              types.PositionSide     `json:"side"`
	Status            PositionStatus         `json:"status"`
	EntryPrice        float64                `json:"entry_price"`
	CurrentPrice      float64                `json:"current_price"`
	Size              float64                `json:"size"` // notional at entry
	Quantity          float64                `json:"quantity"`
	RemainingQuantity float64                `json:"remaining_quantity"`
	StopLoss          float64                `json:"stop_loss,omitempty"`
	StopLossType      stoploss.Kind          `json:"stop_loss_type,omitempty"`
	StopMethod        stoploss.Descriptor    `json:"stop_method"`
	TakeProfits       []takeprofit.Level     `json:"take_profits,omitempty"`
	TrailingActive    bool                   `json:"trailing_active"`
	Trailing          stoploss.TrailingState `json:"trailing"`
	HighestPrice      float64                `json:"highest_price"`
	LowestPrice       float64                `json:"lowest_price"`
	UnrealizedPnL     float64                `json:"unrealized_pnl"`
	RealizedPnL       float64                `json:"realized_pnl"`
	EntryFees         float64                `json:"entry_fees"` // portion not yet charged to realized P&L
	TotalFees         float64                `json:"total_fees"`
	CostBasis         float64                `json:"cost_basis"` // cash reserved for a long
	ExitPrice         float64                `json:"exit_price,omitempty"`
	ExitReason        string                 `json:"exit_reason,omitempty"`
	MaxHoldUntil      time.Time              `json:"max_hold_until,omitempty"`
	OpenedAt          time.Time              `json:"opened_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
	ClosedAt          time.Time              `json:"closed_at,omitempty"`
}

// IsOpen reports whether the position still holds quantity
func (p Position) IsOpen() bool {
	return p.Status != PositionStatusClosed
}

// RemainingSize is the entry notional of the remaining quantity
func (p Position) RemainingSize() float64 {
	return p.RemainingQuantity * p.EntryPrice
}

// StopSnapshot returns the fields a trailing stop update reads
func (p Position) StopSnapshot() stoploss.Snapshot {
	return stoploss.Snapshot{
		Side:         p.Side,
		EntryPrice:   p.EntryPrice,
		StopLoss:     p.StopLoss,
		Active:       p.TrailingActive,
		HighestPrice: p.HighestPrice,
		LowestPrice:  p.LowestPrice,
		Trailing:     p.Trailing,
	}
}

func (p Position) clone() Position {
	if p.TakeProfits != nil {
		levels := make([]takeprofit.Level, len(p.TakeProfits))
		copy(levels, p.TakeProfits)
		p.TakeProfits = levels
	}
	if p.StopMethod.Steps != nil {
		p.StopMethod.Steps = append([]stoploss.Step(nil), p.StopMethod.Steps...)
	}
	return p
}

// Balance is a consistent view of the account's money
type Balance struct {
	Cash          float64   `json:"cash"`
	Locked        float64   `json:"locked"`
	Reserved      float64   `json:"reserved"`
	Available     float64   `json:"available"`
	Equity        float64   `json:"equity"`
	RealizedPnL   float64   `json:"realized_pnl"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	PeakEquity    float64   `json:"peak_equity"`
	Drawdown      float64   `json:"drawdown"` // fraction of peak equity
	OpenPositions int       `json:"open_positions"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// OrderRequest describes an order to place
type OrderRequest struct {
	Symbol     string
	Type       OrderType
	Side       types.Side
	Quantity   float64
	Price      float64 // limit price; reference price for market orders placed before any tick
	StopPrice  float64
	PositionID string // close this position
	OpenOnly   bool   // never close an existing position
	Reason     string
}

// CloseRequest describes a market close of an open position
type CloseRequest struct {
	PositionID string
	Quantity   float64 // zero closes everything remaining
	Reason     string
}

// RiskPlan carries the stop and targets the orchestrator attaches to a position
type RiskPlan struct {
	StopLoss     float64
	StopLossType stoploss.Kind
	StopMethod   stoploss.Descriptor
	TakeProfits  []takeprofit.Level
	MaxHoldUntil time.Time
	Trailing     stoploss.TrailingState
}

// ExecutionReport summarizes what one call changed
type ExecutionReport struct {
	Order      *VirtualOrder
	Trades     []PaperTrade
	Opened     []Position
	Closed     []Position // fully closed
	Reduced    []Position // partially closed
	Violations []error
}

func (r *ExecutionReport) merge(other ExecutionReport) {
	r.Trades = append(r.Trades, other.Trades...)
	r.Opened = append(r.Opened, other.Opened...)
	r.Closed = append(r.Closed, other.Closed...)
	r.Reduced = append(r.Reduced, other.Reduced...)
	r.Violations = append(r.Violations, other.Violations...)
}

// RealizedPnL sums the realized P&L of the closing trades in the report
func (r ExecutionReport) RealizedPnL() float64 {
	total := 0.0
	for _, t := range r.Trades {
		if t.IsClosing {
			total += t.RealizedPnL
		}
	}
	return total
}

// TickResult is what ProcessTick did
type TickResult struct {
	ExecutionReport
	Symbol    string
	Filled    []VirtualOrder
	Cancelled []VirtualOrder
}
