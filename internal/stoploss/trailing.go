package stoploss

import (
	"math"

	"github.com/ducminhle1904/crypto-paper-risk/pkg/types"
)

// Snapshot is the part of a position a trailing update reads.
type Snapshot struct {
	Side         types.PositionSide
	EntryPrice   float64
	StopLoss     float64
	Active       bool
	HighestPrice float64
	LowestPrice  float64
	Trailing     TrailingState
}

// Update is the outcome of UpdateTrailing. NewStopLoss is only meaningful
// when Updated is true; callers apply nothing otherwise.
type Update struct {
	Updated     bool
	NewStopLoss float64
	Activated   bool
	Trailing    TrailingState
}

// UpdateTrailing evaluates a trailing method against price. The returned
// stop never loosens relative to s.StopLoss.
func UpdateTrailing(m Method, s Snapshot, price float64) Update {
	out := Update{Activated: s.Active, Trailing: s.Trailing}
	if price <= 0 || s.EntryPrice <= 0 || !s.Side.Valid() {
		return out
	}

	dir := s.Side.Direction()
	best := bestPrice(s, price)
	favourable := dir * (best - s.EntryPrice) / s.EntryPrice * 100

	var candidate float64
	switch v := m.(type) {
	case Trailing:
		if !s.Active && favourable < v.ActivationPercent {
			return out
		}
		out.Activated = true
		candidate = best * (1 - dir*v.DistancePercent/100)
	case ATRTrailing:
		if !s.Active && favourable < v.ActivationPercent {
			return out
		}
		out.Activated = true
		candidate = best - dir*v.ATR*v.Multiplier
	case SteppedTrailing:
		reached := 0
		for _, step := range v.Steps {
			if favourable >= step.ProfitPercent {
				reached++
			}
		}
		if reached <= s.Trailing.StepsReached {
			return out
		}
		out.Activated = true
		out.Trailing.StepsReached = reached
		candidate = s.EntryPrice * (1 + dir*v.Steps[reached-1].LockPercent/100)
	case ParabolicSAR:
		out.Activated = true
		out.Trailing = advanceSAR(v, s, price)
		candidate = out.Trailing.SAR
	default:
		return out
	}

	if tighter(s.Side, s.StopLoss, candidate) {
		out.Updated = true
		out.NewStopLoss = candidate
	}
	return out
}

func bestPrice(s Snapshot, price float64) float64 {
	if s.Side == types.Long {
		return math.Max(s.HighestPrice, price)
	}
	if s.LowestPrice <= 0 {
		return price
	}
	return math.Min(s.LowestPrice, price)
}

// advanceSAR runs one step of SAR += AF * (EP - SAR). The AF grows by Step
// on every new extreme point up to Maximum. A long SAR never rises above the
// previous or current price, a short SAR never falls below them, and the
// SAR never moves against the position.
func advanceSAR(m ParabolicSAR, s Snapshot, price float64) TrailingState {
	st := s.Trailing
	if st.AccelerationFactor == 0 {
		st = TrailingState{SAR: s.StopLoss, ExtremePoint: s.EntryPrice, AccelerationFactor: m.Step, LastPrice: s.EntryPrice}
	}
	if st.LastPrice <= 0 {
		st.LastPrice = price
	}

	if s.Side == types.Long {
		if price > st.ExtremePoint {
			st.ExtremePoint = price
			st.AccelerationFactor = math.Min(st.AccelerationFactor+m.Step, m.Maximum)
		}
		sar := st.SAR + st.AccelerationFactor*(st.ExtremePoint-st.SAR)
		sar = math.Min(sar, math.Min(st.LastPrice, price))
		st.SAR = math.Max(sar, st.SAR)
	} else {
		if price < st.ExtremePoint {
			st.ExtremePoint = price
			st.AccelerationFactor = math.Min(st.AccelerationFactor+m.Step, m.Maximum)
		}
		sar := st.SAR + st.AccelerationFactor*(st.ExtremePoint-st.SAR)
		sar = math.Max(sar, math.Max(st.LastPrice, price))
		if st.SAR > 0 {
			sar = math.Min(sar, st.SAR)
		}
		st.SAR = sar
	}

	st.LastPrice = price
	return st
}
