// Package takeprofit derives profit-taking levels and decides how much each
// level closes.
package takeprofit

import (
	"math"
	"time"

	riskerrors "github.com/ducminhle1904/crypto-paper-risk/internal/errors"
	"github.com/ducminhle1904/crypto-paper-risk/internal/indicators"
	"github.com/ducminhle1904/crypto-paper-risk/pkg/types"
)

const (
	component = "takeprofit"
	epsilon   = 1e-9
)

// Kind tags a take-profit method
type Kind string

const (
	KindFixed      Kind = "fixed"
	KindRiskReward Kind = "risk_reward"
	KindFibonacci  Kind = "fibonacci"
)

// Method is one of Fixed, RiskReward or Fibonacci.
type Method interface {
	Kind() Kind
	Validate() error
}

// PercentLevel targets Percent profit from entry
type PercentLevel struct {
	Percent      float64 `json:"percent" yaml:"percent"`
	ClosePercent float64 `json:"close_percent" yaml:"close_percent"`
}

// RatioLevel targets Ratio times the initial risk
type RatioLevel struct {
	Ratio        float64 `json:"ratio" yaml:"ratio"`
	ClosePercent float64 `json:"close_percent" yaml:"close_percent"`
}

// ExtensionLevel targets a Fibonacci extension of the swing range
type ExtensionLevel struct {
	Extension    float64 `json:"extension" yaml:"extension"`
	ClosePercent float64 `json:"close_percent" yaml:"close_percent"`
}

// Fixed places each level Percent away from entry.
type Fixed struct {
	Levels []PercentLevel
}

// RiskReward places each level Ratio * |entry - stop| away from entry.
type RiskReward struct {
	Levels []RatioLevel
}

// Fibonacci projects extensions of the swing range beyond entry. Swing points
// are detected from the last Lookback Candles when not given.
type Fibonacci struct {
	Levels    []ExtensionLevel
	SwingHigh float64
	SwingLow  float64
	Candles   []types.OHLCV
	Lookback  int
}

func (Fixed) Kind() Kind      { return KindFixed }
func (RiskReward) Kind() Kind { return KindRiskReward }
func (Fibonacci) Kind() Kind  { return KindFibonacci }

// Level is one computed take-profit target
type Level struct {
	Price        float64   `json:"price"`
	ClosePercent float64   `json:"close_percent"`
	Triggered    bool      `json:"triggered"`
	TriggeredAt  time.Time `json:"triggered_at,omitempty"`
}

func invalid(format string, args ...interface{}) error {
	return riskerrors.InvalidParameter(component, "Validate", format, args...)
}

func validateClosePercents(pcts []float64) error {
	if len(pcts) == 0 {
		return invalid("at least one take-profit level is required")
	}
	total := 0.0
	for i, p := range pcts {
		if p <= 0 || p > 100 {
			return invalid("level %d close percent must be within (0, 100], got %.4f", i, p)
		}
		total += p
	}
	if total > 100+epsilon {
		return invalid("close percents add up to %.4f%%, more than 100%%", total)
	}
	return nil
}

// Validate checks every level
func (m Fixed) Validate() error {
	pcts := make([]float64, len(m.Levels))
	for i, l := range m.Levels {
		if l.Percent <= 0 {
			return invalid("level %d percent must be positive, got %.4f", i, l.Percent)
		}
		pcts[i] = l.ClosePercent
	}
	return validateClosePercents(pcts)
}

// Validate checks every level
func (m RiskReward) Validate() error {
	pcts := make([]float64, len(m.Levels))
	for i, l := range m.Levels {
		if l.Ratio <= 0 {
			return invalid("level %d ratio must be positive, got %.4f", i, l.Ratio)
		}
		pcts[i] = l.ClosePercent
	}
	return validateClosePercents(pcts)
}

// Validate checks every level and the swing source
func (m Fibonacci) Validate() error {
	pcts := make([]float64, len(m.Levels))
	for i, l := range m.Levels {
		if l.Extension <= 0 {
			return invalid("level %d extension must be positive, got %.4f", i, l.Extension)
		}
		pcts[i] = l.ClosePercent
	}
	if m.SwingHigh < 0 || m.SwingLow < 0 {
		return invalid("swing points must not be negative")
	}
	if m.SwingHigh == 0 && m.SwingLow == 0 && len(m.Candles) == 0 {
		return invalid("fibonacci levels need swing points or candles")
	}
	return validateClosePercents(pcts)
}

// Compute derives the level prices for a position entered at entry. stopLoss
// is only read by RiskReward.
func Compute(m Method, entry, stopLoss float64, side types.PositionSide) ([]Level, error) {
	const op = "Compute"
	if m == nil {
		return nil, riskerrors.InvalidParameter(component, op, "take-profit method is required")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if entry <= 0 {
		return nil, riskerrors.InvalidParameter(component, op, "entry price must be positive, got %.8f", entry)
	}
	if !side.Valid() {
		return nil, riskerrors.InvalidParameter(component, op, "unknown position side %q", side)
	}

	dir := side.Direction()
	var levels []Level

	switch v := m.(type) {
	case Fixed:
		for _, l := range v.Levels {
			levels = append(levels, Level{Price: entry * (1 + dir*l.Percent/100), ClosePercent: l.ClosePercent})
		}
	case RiskReward:
		if stopLoss <= 0 {
			return nil, riskerrors.InvalidParameter(component, op, "risk/reward targets need a stop-loss")
		}
		risk := math.Abs(entry - stopLoss)
		if risk == 0 {
			return nil, riskerrors.InvalidParameter(component, op, "stop-loss equals entry, risk is zero")
		}
		for _, l := range v.Levels {
			levels = append(levels, Level{Price: entry + dir*risk*l.Ratio, ClosePercent: l.ClosePercent})
		}
	case Fibonacci:
		var span float64
		if side == types.Long {
			low := v.SwingLow
			if low == 0 {
				low, _ = indicators.SwingLow(v.Candles, v.Lookback)
			}
			span = entry - low
		} else {
			high := v.SwingHigh
			if high == 0 {
				high, _ = indicators.SwingHigh(v.Candles, v.Lookback)
			}
			span = high - entry
		}
		if span <= 0 {
			return nil, riskerrors.InvalidParameter(component, op, "swing range must lie behind entry %.8f", entry)
		}
		for _, l := range v.Levels {
			levels = append(levels, Level{Price: entry + dir*span*l.Extension, ClosePercent: l.ClosePercent})
		}
	default:
		return nil, riskerrors.InvalidParameter(component, op, "unsupported take-profit method %q", m.Kind())
	}

	for i, l := range levels {
		if l.Price <= 0 {
			return nil, riskerrors.InvalidParameter(component, op, "level %d price %.8f is not positive", i, l.Price)
		}
	}
	return levels, nil
}

// IsReached reports whether price meets a level for side
func IsReached(side types.PositionSide, level, price float64) bool {
	if level <= 0 || price <= 0 {
		return false
	}
	if side == types.Short {
		return price <= level
	}
	return price >= level
}

// NextTriggered returns the index of the first untriggered level reached by
// price, or -1.
func NextTriggered(levels []Level, side types.PositionSide, price float64) int {
	for i, l := range levels {
		if l.Triggered {
			continue
		}
		if IsReached(side, l.Price, price) {
			return i
		}
	}
	return -1
}

// CloseQuantity returns how much of remaining level idx closes. When idx is the
// last untriggered level and the close percents add up to 100, everything
// remaining is closed.
func CloseQuantity(remaining float64, levels []Level, idx int) float64 {
	if remaining <= 0 || idx < 0 || idx >= len(levels) {
		return 0
	}

	total := 0.0
	untriggered := 0
	for i, l := range levels {
		total += l.ClosePercent
		if !l.Triggered && i != idx {
			untriggered++
		}
	}
	if untriggered == 0 && total >= 100-epsilon {
		return remaining
	}

	qty := remaining * levels[idx].ClosePercent / 100
	return math.Min(qty, remaining)
}

// DefaultLevels is a single level at pct that closes the whole position.
func DefaultLevels(pct float64) Fixed {
	return Fixed{Levels: []PercentLevel{{Percent: pct, ClosePercent: 100}}}
}
