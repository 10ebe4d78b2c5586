package orchestrator

import (
	"time"

	"github.com/ducminhle1904/crypto-paper-risk/internal/config"
	"github.com/ducminhle1904/crypto-paper-risk/internal/paper"
	"github.com/ducminhle1904/crypto-paper-risk/internal/risk"
	"github.com/ducminhle1904/crypto-paper-risk/internal/sizing"
	"github.com/ducminhle1904/crypto-paper-risk/internal/stats"
	"github.com/ducminhle1904/crypto-paper-risk/internal/stoploss"
	"github.com/ducminhle1904/crypto-paper-risk/internal/takeprofit"
	"github.com/ducminhle1904/crypto-paper-risk/pkg/types"
)

// OpenRequest describes a position the orchestrator should open
type OpenRequest struct {
	Symbol string
	Side   types.PositionSide

	// EntryPrice is the reference price used for sizing and the initial
	// stop. Zero uses the latest quote. When the account has no quote for
	// Symbol yet, EntryPrice seeds one.
	EntryPrice float64

	// Quantity skips sizing when positive
	Quantity            float64
	Sizing              sizing.Method // nil sizes as Percentage
	RiskPerTradePercent float64       // zero uses MaxPositionSizePercent

	StopLoss   stoploss.Method   // nil uses Fixed at DefaultStopLossPercent
	Trailing   bool              // with StopLoss nil, trail at the configured activation and distance
	TakeProfit takeprofit.Method // nil uses one level at DefaultTakeProfitPercent

	Reason string
}

// OpenResult is the outcome of OpenPosition. Rejections set Error and Reason.
type OpenResult struct {
	Success  bool
	Position *paper.Position
	Order    *paper.VirtualOrder
	Sizing   sizing.Result
	Error    error
	Reason   string
}

// PriceUpdate is a new price for one position
type PriceUpdate struct {
	Price     float64
	Timestamp time.Time // zero uses the account clock
}

// ActionType tags what UpdatePosition did
type ActionType string

const (
	ActionStopLoss       ActionType = "stop_loss"
	ActionTimeExit       ActionType = "time_exit"
	ActionTrailingUpdate ActionType = "trailing_update"
	ActionTakeProfit     ActionType = "take_profit"
)

// Action is one thing done to a position while evaluating a price
type Action struct {
	Type     ActionType `json:"type"`
	Price    float64    `json:"price"`
	Quantity float64    `json:"quantity,omitempty"`
	PnL      float64    `json:"pnl,omitempty"`
	Level    int        `json:"level,omitempty"`
	StopLoss float64    `json:"stop_loss,omitempty"`
}

// UpdateResult is the outcome of UpdatePosition
type UpdateResult struct {
	Position *paper.Position
	Actions  []Action
	Error    error
}

// CloseResult is the outcome of a manual close
type CloseResult struct {
	Success  bool
	Position *paper.Position
	PnL      float64
	Error    error
	Reason   string
}

// TickOutcome is what ProcessTick did for one tick
type TickOutcome struct {
	Symbol   string
	Fills    paper.TickResult
	Actions  map[string][]Action // by position id
	Drawdown risk.DrawdownStatus
	Error    error
}

// Snapshot is a point-in-time view of the whole simulation
type Snapshot struct {
	Account    paper.Snapshot    `json:"account"`
	Risk       risk.Status       `json:"risk"`
	Stats      stats.Stats       `json:"stats"`
	Config     config.RiskConfig `json:"config"`
	EventCount int               `json:"event_count"`
	TakenAt    time.Time         `json:"taken_at"`
}
