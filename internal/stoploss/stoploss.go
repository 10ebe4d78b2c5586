// Package stoploss computes initial stop-loss levels and maintains trailing stops.
package stoploss

import (
	"math"
	"time"

	riskerrors "github.com/ducminhle1904/crypto-paper-risk/internal/errors"
	"github.com/ducminhle1904/crypto-paper-risk/internal/indicators"
	"github.com/ducminhle1904/crypto-paper-risk/pkg/types"
)

const component = "stoploss"

// Kind tags a stop-loss method
type Kind string

const (
	KindFixed           Kind = "fixed"
	KindATRBased        Kind = "atr_based"
	KindTrailing        Kind = "trailing"
	KindATRTrailing     Kind = "atr_trailing"
	KindSteppedTrailing Kind = "stepped_trailing"
	KindStructureBased  Kind = "structure_based"
	KindParabolicSAR    Kind = "parabolic_sar"
	KindTimeBased       Kind = "time_based"
)

// Method is one stop-loss variant. Each variant only carries the fields its
// computation needs.
type Method interface {
	Kind() Kind
	Validate() error
}

// Fixed places the stop Percent away from entry.
type Fixed struct {
	Percent float64
}

// ATRBased places the stop ATR*Multiplier away from entry. When AvgATR is
// set the multiplier is scaled by ATR/AvgATR. ATR and AvgATR are derived
// from Candles when ATR is zero.
type ATRBased struct {
	ATR        float64
	AvgATR     float64
	Multiplier float64
	Period     int
	Candles    []types.OHLCV
}

// Trailing follows the best price at DistancePercent once the position is
// ActivationPercent in profit. InitialPercent sets the stop before activation.
type Trailing struct {
	InitialPercent    float64
	ActivationPercent float64
	DistancePercent   float64
}

// ATRTrailing trails the best price at ATR*Multiplier.
type ATRTrailing struct {
	ATR               float64
	Multiplier        float64
	ActivationPercent float64
}

// Step locks LockPercent of profit (relative to entry) once the position
// has reached ProfitPercent.
type Step struct {
	ProfitPercent float64 `json:"profit_percent" yaml:"profit_percent"`
	LockPercent   float64 `json:"lock_percent" yaml:"lock_percent"`
}

// SteppedTrailing moves the stop through Steps as a ratchet: the highest
// step reached by the best price since open is never downgraded.
type SteppedTrailing struct {
	InitialPercent float64
	Steps          []Step
}

// StructureBased places the stop beyond the nearest swing low (long) or
// swing high (short) of the last Lookback candles, padded by BufferPercent.
type StructureBased struct {
	Candles       []types.OHLCV
	Lookback      int
	BufferPercent float64
}

// ParabolicSAR trails with the parabolic stop-and-reverse recurrence.
type ParabolicSAR struct {
	Step           float64 // acceleration increment, typically 0.02
	Maximum        float64 // acceleration cap, typically 0.2
	InitialPercent float64 // initial SAR distance when Candles is empty
	Candles        []types.OHLCV
}

// TimeBased closes the position after MaxHoldingTime. With MinProfitPercent
// set the time exit waits until the position is at least that much in
// profit. FallbackPercent adds an ordinary price stop.
type TimeBased struct {
	MaxHoldingTime   time.Duration
	MinProfitPercent float64
	FallbackPercent  float64
}

func (Fixed) Kind() Kind           { return KindFixed }
func (ATRBased) Kind() Kind        { return KindATRBased }
func (Trailing) Kind() Kind        { return KindTrailing }
func (ATRTrailing) Kind() Kind     { return KindATRTrailing }
func (SteppedTrailing) Kind() Kind { return KindSteppedTrailing }
func (StructureBased) Kind() Kind  { return KindStructureBased }
func (ParabolicSAR) Kind() Kind    { return KindParabolicSAR }
func (TimeBased) Kind() Kind       { return KindTimeBased }

func invalid(format string, args ...interface{}) error {
	return riskerrors.InvalidParameter(component, "Validate", format, args...)
}

func validPercent(v float64) bool {
	return v > 0 && v < 100
}

// Validate checks the fixed percent
func (m Fixed) Validate() error {
	if !validPercent(m.Percent) {
		return invalid("fixed stop percent must be within (0, 100), got %.4f", m.Percent)
	}
	return nil
}

// Validate checks ATR inputs
func (m ATRBased) Validate() error {
	if m.Multiplier <= 0 {
		return invalid("ATR multiplier must be positive, got %.4f", m.Multiplier)
	}
	if m.ATR < 0 || m.AvgATR < 0 {
		return invalid("ATR values must not be negative")
	}
	if m.ATR == 0 && len(m.Candles) == 0 {
		return invalid("ATR stop needs an ATR value or candles")
	}
	return nil
}

// Validate checks trailing percentages
func (m Trailing) Validate() error {
	if !validPercent(m.InitialPercent) {
		return invalid("initial stop percent must be within (0, 100), got %.4f", m.InitialPercent)
	}
	if m.ActivationPercent < 0 {
		return invalid("activation percent must not be negative, got %.4f", m.ActivationPercent)
	}
	if !validPercent(m.DistancePercent) {
		return invalid("trailing distance percent must be within (0, 100), got %.4f", m.DistancePercent)
	}
	return nil
}

// Validate checks ATR trailing inputs
func (m ATRTrailing) Validate() error {
	if m.ATR <= 0 || m.Multiplier <= 0 {
		return invalid("ATR trailing needs positive ATR and multiplier, got atr=%.6f mult=%.4f", m.ATR, m.Multiplier)
	}
	if m.ActivationPercent < 0 {
		return invalid("activation percent must not be negative, got %.4f", m.ActivationPercent)
	}
	return nil
}

// Validate requires strictly ascending steps in both profit and lock.
func (m SteppedTrailing) Validate() error {
	if !validPercent(m.InitialPercent) {
		return invalid("initial stop percent must be within (0, 100), got %.4f", m.InitialPercent)
	}
	if len(m.Steps) == 0 {
		return invalid("stepped trailing needs at least one step")
	}
	for i, s := range m.Steps {
		if s.ProfitPercent <= 0 {
			return invalid("step %d profit percent must be positive, got %.4f", i, s.ProfitPercent)
		}
		if s.LockPercent >= s.ProfitPercent {
			return invalid("step %d locks %.4f%% but only requires %.4f%% profit", i, s.LockPercent, s.ProfitPercent)
		}
		if i > 0 {
			prev := m.Steps[i-1]
			if s.ProfitPercent <= prev.ProfitPercent || s.LockPercent <= prev.LockPercent {
				return invalid("steps must be strictly ascending, step %d does not exceed step %d", i, i-1)
			}
		}
	}
	return nil
}

// Validate checks candles and buffer
func (m StructureBased) Validate() error {
	if len(m.Candles) == 0 {
		return invalid("structure stop needs candles")
	}
	if m.Lookback < 0 {
		return invalid("lookback must not be negative, got %d", m.Lookback)
	}
	if m.BufferPercent < 0 || m.BufferPercent >= 100 {
		return invalid("buffer percent must be within [0, 100), got %.4f", m.BufferPercent)
	}
	return nil
}

// Validate checks acceleration bounds
func (m ParabolicSAR) Validate() error {
	if m.Step <= 0 || m.Maximum <= 0 || m.Step > m.Maximum || m.Maximum >= 1 {
		return invalid("SAR needs 0 < step <= maximum < 1, got step=%.4f maximum=%.4f", m.Step, m.Maximum)
	}
	if len(m.Candles) == 0 && !validPercent(m.InitialPercent) {
		return invalid("SAR needs candles or an initial percent within (0, 100)")
	}
	return nil
}

// Validate checks holding time and guards
func (m TimeBased) Validate() error {
	if m.MaxHoldingTime <= 0 {
		return invalid("max holding time must be positive, got %s", m.MaxHoldingTime)
	}
	if m.MinProfitPercent < 0 {
		return invalid("min profit percent must not be negative, got %.4f", m.MinProfitPercent)
	}
	if m.FallbackPercent != 0 && !validPercent(m.FallbackPercent) {
		return invalid("fallback percent must be within (0, 100), got %.4f", m.FallbackPercent)
	}
	return nil
}

// TrailingState is the per-position state trailing methods carry between updates.
type TrailingState struct {
	SAR                float64 `json:"sar,omitempty"`
	ExtremePoint       float64 `json:"extreme_point,omitempty"`
	AccelerationFactor float64 `json:"acceleration_factor,omitempty"`
	LastPrice          float64 `json:"last_price,omitempty"`
	StepsReached       int     `json:"steps_reached,omitempty"`
}

// Plan is the initial stop of a position
type Plan struct {
	StopLoss     float64
	MaxHoldUntil time.Time
	Trailing     TrailingState
}

// Initial computes the initial stop for a position entered at entry.
func Initial(m Method, entry float64, side types.PositionSide, now time.Time) (Plan, error) {
	if m == nil {
		return Plan{}, riskerrors.InvalidParameter(component, "Initial", "stop-loss method is required")
	}
	if err := m.Validate(); err != nil {
		return Plan{}, err
	}
	if entry <= 0 {
		return Plan{}, riskerrors.InvalidParameter(component, "Initial", "entry price must be positive, got %.8f", entry)
	}
	if !side.Valid() {
		return Plan{}, riskerrors.InvalidParameter(component, "Initial", "unknown position side %q", side)
	}

	dir := side.Direction()
	var plan Plan

	switch v := m.(type) {
	case Fixed:
		plan.StopLoss = percentStop(entry, side, v.Percent)
	case ATRBased:
		atr, avg := v.ATR, v.AvgATR
		if atr == 0 {
			var err error
			atr, avg, err = indicators.ATRWithAverage(v.Candles, v.Period)
			if err != nil {
				return Plan{}, riskerrors.Wrap(err, riskerrors.CodeInvalidParameter, component, "Initial")
			}
		}
		mult := v.Multiplier
		if avg > 0 {
			mult *= atr / avg
		}
		plan.StopLoss = entry - dir*atr*mult
	case Trailing:
		plan.StopLoss = percentStop(entry, side, v.InitialPercent)
	case ATRTrailing:
		plan.StopLoss = entry - dir*v.ATR*v.Multiplier
	case SteppedTrailing:
		plan.StopLoss = percentStop(entry, side, v.InitialPercent)
	case StructureBased:
		if side == types.Long {
			low, _ := indicators.SwingLow(v.Candles, v.Lookback)
			plan.StopLoss = low * (1 - v.BufferPercent/100)
		} else {
			high, _ := indicators.SwingHigh(v.Candles, v.Lookback)
			plan.StopLoss = high * (1 + v.BufferPercent/100)
		}
	case ParabolicSAR:
		sar := percentStop(entry, side, v.InitialPercent)
		if len(v.Candles) > 0 {
			if side == types.Long {
				sar, _ = indicators.SwingLow(v.Candles, 0)
			} else {
				sar, _ = indicators.SwingHigh(v.Candles, 0)
			}
		}
		plan.StopLoss = sar
		plan.Trailing = TrailingState{SAR: sar, ExtremePoint: entry, AccelerationFactor: v.Step, LastPrice: entry}
	case TimeBased:
		plan.MaxHoldUntil = now.Add(v.MaxHoldingTime)
		if v.FallbackPercent > 0 {
			plan.StopLoss = percentStop(entry, side, v.FallbackPercent)
		}
		return plan, nil
	default:
		return Plan{}, riskerrors.InvalidParameter(component, "Initial", "unsupported stop-loss method %q", m.Kind())
	}

	if plan.StopLoss <= 0 || (side == types.Long && plan.StopLoss >= entry) || (side == types.Short && plan.StopLoss <= entry) {
		return Plan{}, riskerrors.InvalidParameter(component, "Initial",
			"%s stop %.8f is not on the losing side of entry %.8f", m.Kind(), plan.StopLoss, entry)
	}
	return plan, nil
}

func percentStop(entry float64, side types.PositionSide, pct float64) float64 {
	return entry * (1 - side.Direction()*pct/100)
}

// IsTriggered reports whether price has reached stop. A zero stop never triggers.
func IsTriggered(side types.PositionSide, stop, price float64) bool {
	if stop <= 0 || price <= 0 {
		return false
	}
	switch side {
	case types.Long:
		return price <= stop
	case types.Short:
		return price >= stop
	}
	return false
}

// IsTrailing reports whether m moves the stop after entry
func IsTrailing(m Method) bool {
	switch m.(type) {
	case Trailing, ATRTrailing, SteppedTrailing, ParabolicSAR:
		return true
	}
	return false
}

// TimeExitDue reports whether a TimeBased stop wants the position closed.
func TimeExitDue(m Method, side types.PositionSide, entry, price float64, maxHoldUntil, now time.Time) bool {
	tb, ok := m.(TimeBased)
	if !ok || maxHoldUntil.IsZero() || now.Before(maxHoldUntil) {
		return false
	}
	if tb.MinProfitPercent <= 0 {
		return true
	}
	return profitPercent(side, entry, price) >= tb.MinProfitPercent
}

func profitPercent(side types.PositionSide, entry, price float64) float64 {
	if entry <= 0 {
		return 0
	}
	return side.Direction() * (price - entry) / entry * 100
}

// tighter reports whether candidate moves the stop toward price for side
func tighter(side types.PositionSide, current, candidate float64) bool {
	if candidate <= 0 || math.IsNaN(candidate) {
		return false
	}
	if current <= 0 {
		return true
	}
	if side == types.Long {
		return candidate > current
	}
	return candidate < current
}
