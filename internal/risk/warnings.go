package risk

import (
	"fmt"
	"sort"
)

// Warning types
const (
	WarningPositions     = "positions"
	WarningDailyLoss     = "daily_loss"
	WarningDrawdown      = "drawdown"
	WarningTotalExposure = "total_exposure"
	WarningAssetExposure = "asset_exposure"
)

// Warning is a limit approaching its threshold. It is informational, not a rejection.
type Warning struct {
	Type    string  `json:"type"`
	Symbol  string  `json:"symbol,omitempty"`
	Current float64 `json:"current"`
	Limit   float64 `json:"limit"`
	Ratio   float64 `json:"ratio"` // Current / Limit
	Message string  `json:"message"`
}

// CheckWarningThresholds returns a warning for every limit whose current
// value reached pct percent of the limit. balance scales the money limits.
func (e *Enforcer) CheckWarningThresholds(pct, balance float64) []Warning {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetDailyIfNeeded()

	if pct <= 0 {
		return nil
	}
	trigger := pct / 100

	var warnings []Warning
	add := func(w Warning) {
		if w.Limit <= 0 {
			return
		}
		w.Ratio = w.Current / w.Limit
		if w.Ratio >= trigger {
			warnings = append(warnings, w)
		}
	}

	maxPositions := float64(e.cfg.MaxPositions)
	add(Warning{
		Type:    WarningPositions,
		Current: float64(len(e.positions)),
		Limit:   maxPositions,
		Message: fmt.Sprintf("%d of %d positions open", len(e.positions), e.cfg.MaxPositions),
	})

	if balance > 0 {
		dailyLimit := balance * e.cfg.MaxDailyLossPercent / 100
		loss := 0.0
		if e.dailyPnL < 0 {
			loss = -e.dailyPnL
		}
		add(Warning{
			Type:    WarningDailyLoss,
			Current: loss,
			Limit:   dailyLimit,
			Message: fmt.Sprintf("daily loss $%.2f of $%.2f allowed", loss, dailyLimit),
		})

		totalLimit := balance * e.cfg.MaxPositionSizePercent / 100 * maxPositions
		add(Warning{
			Type:    WarningTotalExposure,
			Current: e.totalExposure,
			Limit:   totalLimit,
			Message: fmt.Sprintf("total exposure $%.2f of $%.2f allowed", e.totalExposure, totalLimit),
		})

		assetLimit := balance * e.cfg.MaxAssetExposurePercent / 100
		symbols := make([]string, 0, len(e.assetExposure))
		for s := range e.assetExposure {
			symbols = append(symbols, s)
		}
		sort.Strings(symbols)
		for _, s := range symbols {
			add(Warning{
				Type:    WarningAssetExposure,
				Symbol:  s,
				Current: e.assetExposure[s],
				Limit:   assetLimit,
				Message: fmt.Sprintf("%s exposure $%.2f of $%.2f allowed", s, e.assetExposure[s], assetLimit),
			})
		}
	}

	add(Warning{
		Type:    WarningDrawdown,
		Current: e.drawdown * 100,
		Limit:   e.cfg.MaxDrawdownPercent,
		Message: fmt.Sprintf("drawdown %.2f%% of %.2f%% allowed", e.drawdown*100, e.cfg.MaxDrawdownPercent),
	})

	return warnings
}
