package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/ducminhle1904/crypto-paper-risk/internal/config"
	riskerrors "github.com/ducminhle1904/crypto-paper-risk/internal/errors"
	"github.com/ducminhle1904/crypto-paper-risk/internal/events"
	"github.com/ducminhle1904/crypto-paper-risk/internal/logger"
	"github.com/ducminhle1904/crypto-paper-risk/internal/orchestrator"
	"github.com/ducminhle1904/crypto-paper-risk/internal/paper"
	"github.com/ducminhle1904/crypto-paper-risk/internal/stats"
	"github.com/ducminhle1904/crypto-paper-risk/internal/stoploss"
	"github.com/ducminhle1904/crypto-paper-risk/pkg/data"
	"github.com/ducminhle1904/crypto-paper-risk/pkg/types"
)

// Job is one independent simulation over a candle series
type Job struct {
	ID      string
	Symbol  string
	Candles []types.OHLCV
	// Companions are other symbols the strategy trades on the same account,
	// replayed in timestamp order with Symbol so exposure and correlation
	// limits apply across all of them.
	Companions map[string][]types.OHLCV

	Ledger                 paper.LedgerConfig
	MaxVolumeParticipation float64
	Risk                   config.RiskConfig
	Strategy               Strategy

	// Trailing attaches a trailing stop at the configured activation and distance.
	Trailing bool
	// ATRMultiplier > 0 places the initial stop ATR*multiplier away,
	// computed over the candles seen so far.
	ATRMultiplier float64
	ATRPeriod     int

	// CloseAtEnd closes whatever is still open on the last candle
	CloseAtEnd bool

	Notifier orchestrator.Notifier
	// OnCandle observes every processed candle of every symbol, from the
	// worker goroutine
	OnCandle func(symbol string, c types.OHLCV, out orchestrator.TickOutcome)
}

// Result is the outcome of one Job
type Result struct {
	ID       string `json:"id"`
	Symbol   string `json:"symbol"`
	Strategy string `json:"strategy"`

	Stats       stats.Stats           `json:"stats"`
	Snapshot    orchestrator.Snapshot `json:"snapshot"`
	Trades      []paper.PaperTrade    `json:"trades"`
	Positions   []paper.Position      `json:"positions"` // closed
	Events      []events.RiskEvent    `json:"events"`
	EquityCurve []stats.EquityPoint   `json:"equity_curve"`
	Candles     int                   `json:"candles"`
	Skipped     int                   `json:"skipped"`
	Signals     int                   `json:"signals"`
	Rejections  map[string]int        `json:"rejections,omitempty"` // by error code
	Halted      bool                  `json:"halted"`
	HaltReason  string                `json:"halt_reason,omitempty"`
	Duration    time.Duration         `json:"duration"`
	Error       error                 `json:"-"`

	// State is the final account content, for persistence
	State paper.State `json:"-"`
}

// haltingStopper runs the orchestrator's emergency stop and tells the
// runner to stop opening positions.
type haltingStopper struct {
	orch   *orchestrator.Orchestrator
	halted bool
	reason string
}

func (h *haltingStopper) EmergencyStop(ctx context.Context, reason string) error {
	h.halted = true
	h.reason = reason
	return h.orch.EmergencyStop(ctx, reason)
}

// Run executes job on its own account and orchestrator. The run stops early
// when ctx is cancelled or the drawdown limit is breached.
func Run(ctx context.Context, job Job, log *logger.Logger) (res Result) {
	start := time.Now()
	res = Result{ID: job.ID, Symbol: job.Symbol}
	if job.Strategy != nil {
		res.Strategy = job.Strategy.Name()
	}
	defer func() { res.Duration = time.Since(start) }()

	if job.Symbol == "" || job.Strategy == nil {
		res.Error = fmt.Errorf("job %s needs a symbol and a strategy", job.ID)
		return res
	}

	account, err := paper.NewAccount(paper.Config{
		ID:                     job.ID,
		Ledger:                 job.Ledger,
		MaxVolumeParticipation: job.MaxVolumeParticipation,
	}, log)
	if err != nil {
		res.Error = err
		return res
	}

	stopper := &haltingStopper{}
	opts := []orchestrator.Option{orchestrator.WithEmergencyStopper(stopper)}
	if job.Notifier != nil {
		opts = append(opts, orchestrator.WithNotifier(job.Notifier))
	}
	orch, err := orchestrator.New(account, job.Risk, log, opts...)
	if err != nil {
		res.Error = err
		return res
	}
	stopper.orch = orch

	series := make(map[string][]types.OHLCV, len(job.Companions)+1)
	for sym, candles := range job.Companions {
		series[sym] = candles
	}
	series[job.Symbol] = job.Candles
	seen := make(map[string]int, len(series))

	for _, sc := range data.Merge(series) {
		if err := ctx.Err(); err != nil {
			res.Error = err
			break
		}
		symbol, c := sc.Symbol, sc.Candle
		seen[symbol]++
		res.Candles++

		out := orch.ProcessCandle(ctx, symbol, c)
		if job.OnCandle != nil {
			job.OnCandle(symbol, c, out)
		}
		if out.Error != nil && out.Fills.Symbol == "" {
			res.Skipped++
			continue
		}
		if stopper.halted {
			break
		}
		if len(account.OpenPositionsBySymbol(symbol)) > 0 {
			continue
		}

		history := series[symbol][:seen[symbol]]
		side, ok := job.Strategy.Signal(history)
		if !ok {
			continue
		}
		res.Signals++

		req := orchestrator.OpenRequest{
			Symbol:   symbol,
			Side:     side,
			Trailing: job.Trailing,
			Reason:   paper.ExitReasonSignal,
		}
		if job.ATRMultiplier > 0 {
			req.StopLoss = stoploss.ATRBased{Multiplier: job.ATRMultiplier, Period: job.ATRPeriod, Candles: history}
		}
		if open := orch.OpenPosition(ctx, req); !open.Success {
			if res.Rejections == nil {
				res.Rejections = make(map[string]int)
			}
			res.Rejections[string(riskerrors.CodeOf(open.Error))]++
		}
	}

	if job.CloseAtEnd && res.Error == nil {
		for _, p := range account.OpenPositions() {
			if cr := orch.ClosePosition(ctx, p.ID, paper.ExitReasonManual); !cr.Success {
				log.LogError("Close at end "+p.ID, cr.Error)
			}
		}
	}

	res.Halted = stopper.halted
	res.HaltReason = stopper.reason
	res.Stats = orch.Stats()
	res.Snapshot = orch.Snapshot()
	res.Trades = account.Trades()
	res.Positions = account.ClosedPositions()
	res.Events = orch.Events().All()
	res.EquityCurve = orch.EquityCurve()
	res.State = account.State()
	return res
}
