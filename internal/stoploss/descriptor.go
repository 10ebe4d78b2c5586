package stoploss

import (
	"time"

	riskerrors "github.com/ducminhle1904/crypto-paper-risk/internal/errors"
)

// Descriptor is the serializable form of a Method. It keeps the parameters
// that drive a position after entry; candle inputs only shape the initial
// stop and are dropped.
type Descriptor struct {
	Kind              Kind          `json:"kind"`
	Percent           float64       `json:"percent,omitempty"`
	ActivationPercent float64       `json:"activation_percent,omitempty"`
	DistancePercent   float64       `json:"distance_percent,omitempty"`
	ATR               float64       `json:"atr,omitempty"`
	Multiplier        float64       `json:"multiplier,omitempty"`
	Steps             []Step        `json:"steps,omitempty"`
	SARStep           float64       `json:"sar_step,omitempty"`
	SARMaximum        float64       `json:"sar_maximum,omitempty"`
	MaxHoldingTime    time.Duration `json:"max_holding_time,omitempty"`
	MinProfitPercent  float64       `json:"min_profit_percent,omitempty"`
}

// Describe returns the descriptor of m. A nil method describes as empty.
func Describe(m Method) Descriptor {
	switch v := m.(type) {
	case Fixed:
		return Descriptor{Kind: KindFixed, Percent: v.Percent}
	case ATRBased:
		return Descriptor{Kind: KindATRBased, ATR: v.ATR, Multiplier: v.Multiplier}
	case Trailing:
		return Descriptor{Kind: KindTrailing, Percent: v.InitialPercent, ActivationPercent: v.ActivationPercent, DistancePercent: v.DistancePercent}
	case ATRTrailing:
		return Descriptor{Kind: KindATRTrailing, ATR: v.ATR, Multiplier: v.Multiplier, ActivationPercent: v.ActivationPercent}
	case SteppedTrailing:
		steps := make([]Step, len(v.Steps))
		copy(steps, v.Steps)
		return Descriptor{Kind: KindSteppedTrailing, Percent: v.InitialPercent, Steps: steps}
	case StructureBased:
		return Descriptor{Kind: KindStructureBased, Percent: v.BufferPercent}
	case ParabolicSAR:
		return Descriptor{Kind: KindParabolicSAR, Percent: v.InitialPercent, SARStep: v.Step, SARMaximum: v.Maximum}
	case TimeBased:
		return Descriptor{Kind: KindTimeBased, Percent: v.FallbackPercent, MaxHoldingTime: v.MaxHoldingTime, MinProfitPercent: v.MinProfitPercent}
	}
	return Descriptor{}
}

// IsZero reports whether d describes no method
func (d Descriptor) IsZero() bool {
	return d.Kind == ""
}

// Method rebuilds the method d describes. The result drives trailing
// updates and time exits; it is not meant for another Initial call on the
// candle-based kinds.
func (d Descriptor) Method() (Method, error) {
	switch d.Kind {
	case KindFixed:
		return Fixed{Percent: d.Percent}, nil
	case KindATRBased:
		return ATRBased{ATR: d.ATR, Multiplier: d.Multiplier}, nil
	case KindTrailing:
		return Trailing{InitialPercent: d.Percent, ActivationPercent: d.ActivationPercent, DistancePercent: d.DistancePercent}, nil
	case KindATRTrailing:
		return ATRTrailing{ATR: d.ATR, Multiplier: d.Multiplier, ActivationPercent: d.ActivationPercent}, nil
	case KindSteppedTrailing:
		steps := make([]Step, len(d.Steps))
		copy(steps, d.Steps)
		return SteppedTrailing{InitialPercent: d.Percent, Steps: steps}, nil
	case KindStructureBased:
		return StructureBased{BufferPercent: d.Percent}, nil
	case KindParabolicSAR:
		return ParabolicSAR{Step: d.SARStep, Maximum: d.SARMaximum, InitialPercent: d.Percent}, nil
	case KindTimeBased:
		return TimeBased{MaxHoldingTime: d.MaxHoldingTime, MinProfitPercent: d.MinProfitPercent, FallbackPercent: d.Percent}, nil
	}
	return nil, riskerrors.InvalidParameter(component, "Method", "unknown stop-loss kind %q", d.Kind)
}
