// Package sizing turns risk parameters into a position size and quantity.
package sizing

import (
	"math"

	riskerrors "github.com/ducminhle1904/crypto-paper-risk/internal/errors"
)

const component = "sizing"

// MethodName tags a sizing method
type MethodName string

const (
	MethodFixed              MethodName = "fixed"
	MethodPercentage         MethodName = "percentage"
	MethodKelly              MethodName = "kelly"
	MethodVolatilityAdjusted MethodName = "volatility_adjusted"
)

// Method is one of Fixed, Percentage, Kelly or VolatilityAdjusted.
type Method interface {
	Name() MethodName
	rawSize(in Input) (float64, error)
}

// Fixed sizes every position at an absolute quote amount.
type Fixed struct {
	Amount float64
}

// Percentage risks RiskPerTradePercent of the balance.
type Percentage struct{}

// Kelly sizes by the Kelly fraction f = w - (1-w)/r.
type Kelly struct {
	WinRate    float64 // (0, 1]
	AvgWinLoss float64 // average win / average loss, > 0
}

// VolatilityAdjusted scales the percentage size by BaseVolatility/CurrentVolatility.
type VolatilityAdjusted struct {
	CurrentVolatility float64
	BaseVolatility    float64
}

func (Fixed) Name() MethodName              { return MethodFixed }
func (Percentage) Name() MethodName         { return MethodPercentage }
func (Kelly) Name() MethodName              { return MethodKelly }
func (VolatilityAdjusted) Name() MethodName { return MethodVolatilityAdjusted }

// Input carries everything a sizing decision needs
type Input struct {
	Method              Method
	Balance             float64
	RiskPerTradePercent float64
	StopLossPercent     float64
	EntryPrice          float64
	// MaxPositionSizePercent caps the size at balance * pct / 100. Zero disables the cap.
	MaxPositionSizePercent float64
}

// Result is the outcome of a sizing decision
type Result struct {
	Size       float64    `json:"size"`
	Quantity   float64    `json:"quantity"`
	RiskAmount float64    `json:"risk_amount"`
	Method     MethodName `json:"method"`
	Capped     bool       `json:"capped"`
}

// Calculate computes size, quantity and risk amount for in.
func Calculate(in Input) (Result, error) {
	if err := in.validate(); err != nil {
		return Result{}, err
	}

	size, err := in.Method.rawSize(in)
	if err != nil {
		return Result{}, err
	}

	result := Result{Method: in.Method.Name()}
	if in.MaxPositionSizePercent > 0 {
		maxSize := in.Balance * in.MaxPositionSizePercent / 100
		if size > maxSize {
			size = maxSize
			result.Capped = true
		}
	}

	result.Size = size
	result.Quantity = size / in.EntryPrice
	result.RiskAmount = size * in.StopLossPercent / 100
	return result, nil
}

func (in Input) validate() error {
	const op = "Calculate"
	if in.Method == nil {
		return riskerrors.InvalidParameter(component, op, "sizing method is required")
	}
	if !positive(in.Balance) {
		return riskerrors.InvalidParameter(component, op, "balance must be positive, got %.2f", in.Balance)
	}
	if !positive(in.EntryPrice) {
		return riskerrors.InvalidParameter(component, op, "entry price must be positive, got %.8f", in.EntryPrice)
	}
	if !positive(in.StopLossPercent) {
		return riskerrors.InvalidParameter(component, op, "stop loss percent must be positive, got %.4f", in.StopLossPercent)
	}
	if in.MaxPositionSizePercent < 0 || in.MaxPositionSizePercent > 100 {
		return riskerrors.InvalidParameter(component, op, "max position size percent must be within [0, 100], got %.4f", in.MaxPositionSizePercent)
	}
	return nil
}

func (m Fixed) rawSize(in Input) (float64, error) {
	if !positive(m.Amount) {
		return 0, riskerrors.InvalidParameter(component, "Calculate", "fixed amount must be positive, got %.2f", m.Amount)
	}
	return m.Amount, nil
}

func (Percentage) rawSize(in Input) (float64, error) {
	if !positive(in.RiskPerTradePercent) {
		return 0, riskerrors.InvalidParameter(component, "Calculate", "risk per trade percent must be positive, got %.4f", in.RiskPerTradePercent)
	}
	return in.Balance * in.RiskPerTradePercent / 100, nil
}

func (m Kelly) rawSize(in Input) (float64, error) {
	f, err := KellyFraction(m.WinRate, m.AvgWinLoss)
	if err != nil {
		return 0, err
	}
	if in.MaxPositionSizePercent > 0 {
		f = math.Min(f, in.MaxPositionSizePercent/100)
	}
	return in.Balance * f, nil
}

func (m VolatilityAdjusted) rawSize(in Input) (float64, error) {
	if !positive(in.RiskPerTradePercent) {
		return 0, riskerrors.InvalidParameter(component, "Calculate", "risk per trade percent must be positive, got %.4f", in.RiskPerTradePercent)
	}
	if !positive(m.CurrentVolatility) || !positive(m.BaseVolatility) {
		return 0, riskerrors.InvalidParameter(component, "Calculate",
			"volatilities must be positive, got current=%.6f base=%.6f", m.CurrentVolatility, m.BaseVolatility)
	}
	return in.Balance * in.RiskPerTradePercent / 100 * (m.BaseVolatility / m.CurrentVolatility), nil
}

// KellyFraction returns w - (1-w)/r clamped at zero. Callers apply their own upper cap.
func KellyFraction(winRate, avgWinLoss float64) (float64, error) {
	if math.IsNaN(winRate) || winRate <= 0 || winRate > 1 {
		return 0, riskerrors.InvalidParameter(component, "KellyFraction", "win rate must be within (0, 1], got %.4f", winRate)
	}
	if !positive(avgWinLoss) {
		return 0, riskerrors.InvalidParameter(component, "KellyFraction", "average win/loss ratio must be positive, got %.4f", avgWinLoss)
	}
	return math.Max(0, winRate-(1-winRate)/avgWinLoss), nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}
