package main

import (
	"fmt"
	"strings"

	"github.com/ducminhle1904/crypto-paper-risk/internal/backtest"
	"github.com/ducminhle1904/crypto-paper-risk/internal/config"
	"github.com/ducminhle1904/crypto-paper-risk/internal/paper"
	"github.com/ducminhle1904/crypto-paper-risk/pkg/types"
)

var strategyChoices = []string{"breakout", "every"}

type runOptions struct {
	DataFile   string
	DataRoot   string
	Exchange   string
	Symbol     string
	Companions []string
	Interval   string
	Period     string
	RiskConfig string

	Strategy      string
	Lookbacks     []int
	Short         bool
	Trailing      bool
	ATRMultiplier float64
	ATRPeriod     int
	KeepOpen      bool

	Workers     int
	OutputDir   string
	NoFiles     bool
	SaveState   bool
	Notify      bool
	MetricsAddr string
	Serve       bool
}

// buildStrategies returns one strategy per lookback
func buildStrategies(name string, lookbacks []int, short bool) ([]backtest.Strategy, error) {
	if len(lookbacks) == 0 {
		return nil, fmt.Errorf("at least one lookback is required")
	}
	out := make([]backtest.Strategy, 0, len(lookbacks))
	for _, n := range lookbacks {
		if n <= 0 {
			return nil, fmt.Errorf("lookback must be positive, got: %d", n)
		}
		switch strings.ToLower(name) {
		case "breakout":
			out = append(out, backtest.Breakout{Lookback: n, AllowShort: short})
		case "every":
			side := types.Long
			if short {
				side = types.Short
			}
			out = append(out, backtest.EveryN{N: n, Side: side})
		default:
			return nil, fmt.Errorf("unknown strategy %q", name)
		}
	}
	return out, nil
}

// buildJobs fans the candles out to one job per strategy. Jobs share the
// read-only series.
func buildJobs(app *config.AppConfig, risk config.RiskConfig, opts runOptions, candles []types.OHLCV, companions map[string][]types.OHLCV, strategies []backtest.Strategy) []backtest.Job {
	ledger := paper.LedgerConfig{
		InitialBalance: app.Account.InitialBalance,
		MakerFeeRate:   app.Execution.MakerFeeRate,
		TakerFeeRate:   app.Execution.TakerFeeRate,
		SlippageRate:   app.Execution.SlippageRate,
	}

	jobs := make([]backtest.Job, 0, len(strategies))
	for _, s := range strategies {
		jobs = append(jobs, backtest.Job{
			ID:                     fmt.Sprintf("%s-%s-%s", app.Account.ID, strings.ToLower(opts.Symbol), s.Name()),
			Symbol:                 strings.ToUpper(opts.Symbol),
			Candles:                candles,
			Companions:             companions,
			Ledger:                 ledger,
			MaxVolumeParticipation: app.Execution.MaxVolumeParticipation,
			Risk:                   risk,
			Strategy:               s,
			Trailing:               opts.Trailing,
			ATRMultiplier:          opts.ATRMultiplier,
			ATRPeriod:              opts.ATRPeriod,
			CloseAtEnd:             !opts.KeepOpen,
		})
	}
	return jobs
}
