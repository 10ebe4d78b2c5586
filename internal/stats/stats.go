package stats

import (
	"encoding/json"
	"math"
	"time"

	"github.com/ducminhle1904/crypto-paper-risk/internal/paper"
)

// Compute derives Stats from closing trades, the current balance and an
// equity curve. Every closing fill counts as one trade, so a position closed
// in three take-profit steps contributes three. Breakeven trades count
// toward TotalTrades but neither side of the win rate.
func Compute(initial float64, trades []paper.PaperTrade, bal paper.Balance, curve []EquityPoint) Stats {
	s := Stats{
		InitialBalance:  initial,
		Equity:          bal.Equity,
		PeakEquity:      bal.PeakEquity,
		CurrentDrawdown: bal.Drawdown,
		MaxDrawdown:     bal.Drawdown,
		OpenPositions:   bal.OpenPositions,
		UnrealizedPnL:   bal.UnrealizedPnL,
	}
	if initial > 0 {
		s.ReturnPercent = (bal.Equity - initial) / initial * 100
	}

	var returns []float64
	var holding time.Duration
	for _, tr := range trades {
		s.TotalFees += tr.Fees
		s.TotalSlippage += tr.Slippage
		if !tr.IsClosing {
			continue
		}

		s.TotalTrades++
		pnl := tr.RealizedPnL
		s.TotalPnL += pnl
		switch {
		case pnl > 0:
			s.WinningTrades++
			s.GrossProfit += pnl
			s.LargestWin = math.Max(s.LargestWin, pnl)
		case pnl == 0:
			s.BreakevenTrades++
		default:
			s.LosingTrades++
			s.GrossLoss += math.Abs(pnl)
			s.LargestLoss = math.Min(s.LargestLoss, pnl)
		}
		if denom := tr.EntryPrice * tr.Quantity; denom > 0 {
			returns = append(returns, pnl/denom)
		}
		if !tr.OpenedAt.IsZero() && tr.Timestamp.After(tr.OpenedAt) {
			holding += tr.Timestamp.Sub(tr.OpenedAt)
		}
	}

	if decided := s.WinningTrades + s.LosingTrades; decided > 0 {
		s.WinRate = float64(s.WinningTrades) / float64(decided) * 100
	}
	if s.TotalTrades > 0 {
		s.Expectancy = s.TotalPnL / float64(s.TotalTrades)
		s.AvgHoldingTime = holding / time.Duration(s.TotalTrades)
	}
	if s.WinningTrades > 0 {
		s.AvgWin = s.GrossProfit / float64(s.WinningTrades)
	}
	if s.LosingTrades > 0 {
		s.AvgLoss = s.GrossLoss / float64(s.LosingTrades)
	}
	s.ProfitFactor = ProfitFactor(s.GrossProfit, s.GrossLoss)
	s.SharpeRatio = SharpeRatio(returns)

	if len(curve) > 0 {
		peak := curve[0].Equity
		totalExp := 0.0
		for _, p := range curve {
			peak = math.Max(peak, p.Equity)
			if peak > 0 {
				s.MaxDrawdown = math.Max(s.MaxDrawdown, (peak-p.Equity)/peak)
			}
			s.MaxExposure = math.Max(s.MaxExposure, p.Exposure)
			totalExp += p.Exposure
		}
		s.PeakEquity = math.Max(s.PeakEquity, peak)
		s.AvgExposure = totalExp / float64(len(curve))
		s.SortinoRatio = SortinoRatio(curveReturns(curve))
	}
	return s
}

// ProfitFactor is gross profit over gross loss. It is +Inf when there are
// profits and no losses, and 0 with no profits.
func ProfitFactor(grossProfit, grossLoss float64) float64 {
	if grossLoss == 0 {
		if grossProfit > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return grossProfit / grossLoss
}

// SharpeRatio is the mean over the population standard deviation of
// per-trade returns, with a zero risk-free rate.
func SharpeRatio(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	std := math.Sqrt(variance / float64(len(returns)))
	if std < 1e-10 {
		return 0
	}
	return mean / std
}

// SortinoRatio divides the mean return by the downside deviation
func SortinoRatio(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	mean := 0.0
	downside := 0.0
	n := 0
	for _, r := range returns {
		mean += r
		if r < 0 {
			downside += r * r
			n++
		}
	}
	mean /= float64(len(returns))
	if n == 0 || downside == 0 {
		if mean > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return mean / math.Sqrt(downside/float64(n))
}

func curveReturns(curve []EquityPoint) []float64 {
	out := make([]float64, 0, len(curve))
	for i := 1; i < len(curve); i++ {
		if prev := curve[i-1].Equity; prev > 0 {
			out = append(out, (curve[i].Equity-prev)/prev)
		}
	}
	return out
}

// MarshalJSON writes infinite ratios as null
func (s Stats) MarshalJSON() ([]byte, error) {
	type plain Stats
	out := struct {
		plain
		ProfitFactor *float64 `json:"profit_factor"`
		SortinoRatio *float64 `json:"sortino_ratio"`
	}{plain: plain(s)}
	out.ProfitFactor = finite(s.ProfitFactor)
	out.SortinoRatio = finite(s.SortinoRatio)
	return json.Marshal(out)
}

func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}
