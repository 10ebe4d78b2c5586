package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ducminhle1904/crypto-paper-risk/cmd/common"
	"github.com/ducminhle1904/crypto-paper-risk/internal/backtest"
	"github.com/ducminhle1904/crypto-paper-risk/internal/config"
	"github.com/ducminhle1904/crypto-paper-risk/internal/logger"
	"github.com/ducminhle1904/crypto-paper-risk/internal/monitoring"
	"github.com/ducminhle1904/crypto-paper-risk/internal/notifications"
	"github.com/ducminhle1904/crypto-paper-risk/internal/orchestrator"
	"github.com/ducminhle1904/crypto-paper-risk/pkg/data"
	"github.com/ducminhle1904/crypto-paper-risk/pkg/reporting"
	"github.com/ducminhle1904/crypto-paper-risk/pkg/types"
	"github.com/spf13/cobra"
)

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Replay candles through the risk-managed paper account",
	Long: `Replay a candle file through one paper account per strategy variant.
Variants run concurrently and are reported together.

Example usage:
  paper-sim run --data data/bybit/linear/BTCUSDT/5/candles.csv --symbol BTCUSDT
  paper-sim run --symbol ETHUSDT --interval 1h --lookbacks 10,20,50 --period 30d
  paper-sim run --symbol BTCUSDT --strategy every --lookbacks 12 --short --save-state
  paper-sim run --symbol BTCUSDT --with ETHUSDT,SOLUSDT --interval 1h --period 30d`,
	RunE: runSimulation,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runOpts.DataFile, "data", "", "Candle CSV file (overrides --data-root lookup)")
	f.StringVar(&runOpts.DataRoot, "data-root", "data", "Data root directory")
	f.StringVar(&runOpts.Exchange, "exchange", "bybit", "Exchange directory under the data root")
	f.StringVar(&runOpts.Symbol, "symbol", "BTCUSDT", "Trading symbol")
	f.StringSliceVar(&runOpts.Companions, "with", nil, "Other symbols traded on the same account, from the data root")
	f.StringVar(&runOpts.Interval, "interval", "5m", "Candle interval")
	f.StringVar(&runOpts.Period, "period", "", "Trailing period to replay, e.g. 7d, 30d, 72h")
	f.StringVar(&runOpts.RiskConfig, "risk-config", "", "Risk config file (.yaml or .json)")

	f.StringVar(&runOpts.Strategy, "strategy", "breakout", "Entry strategy: breakout or every")
	f.IntSliceVar(&runOpts.Lookbacks, "lookbacks", []int{20}, "Breakout lookbacks or entry intervals, one run each")
	f.BoolVar(&runOpts.Short, "short", false, "Allow short entries")
	f.BoolVar(&runOpts.Trailing, "trailing", false, "Use trailing stops")
	f.Float64Var(&runOpts.ATRMultiplier, "atr-mult", 0, "Place stops ATR*mult away (0 uses the fixed percentage)")
	f.IntVar(&runOpts.ATRPeriod, "atr-period", 14, "ATR period for --atr-mult")
	f.BoolVar(&runOpts.KeepOpen, "keep-open", false, "Leave positions open after the last candle")

	f.IntVar(&runOpts.Workers, "workers", 4, "Concurrent runs")
	f.StringVar(&runOpts.OutputDir, "output", "", "Report directory (default results/SYMBOL_strategy)")
	f.BoolVar(&runOpts.NoFiles, "console-only", false, "Skip CSV, Excel and JSON reports")
	f.BoolVar(&runOpts.SaveState, "save-state", false, "Persist each final account state")
	f.BoolVar(&runOpts.Notify, "notify", false, "Send risk notifications to the log and Telegram")
	f.StringVar(&runOpts.MetricsAddr, "metrics-addr", "", "Serve /metrics and /healthz on this address")
	f.BoolVar(&runOpts.Serve, "serve", false, "Keep serving metrics after the run until interrupted")
}

func validateRunOptions(opts runOptions) error {
	v := common.NewFlagValidator().
		ValidateChoice("strategy", opts.Strategy, strategyChoices).
		ValidateInt("workers", opts.Workers, 1, 64).
		ValidateFloat("atr-mult", opts.ATRMultiplier, 0, 20).
		ValidateFile("data", opts.DataFile, false)
	if opts.ATRMultiplier > 0 {
		v.ValidateInt("atr-period", opts.ATRPeriod, 1, 500)
	}
	if opts.Symbol == "" {
		v.AddError("symbol is required")
	}
	for _, c := range opts.Companions {
		if strings.EqualFold(c, opts.Symbol) {
			v.AddError(fmt.Sprintf("--with repeats the primary symbol %s", opts.Symbol))
		}
	}
	if opts.Serve && opts.MetricsAddr == "" {
		v.AddError("--serve needs --metrics-addr")
	}
	if opts.Period != "" {
		if _, ok := data.ParseTrailingPeriod(opts.Period); !ok {
			v.AddError(fmt.Sprintf("invalid period %q", opts.Period))
		}
	}
	return v.Err()
}

func runSimulation(cmd *cobra.Command, args []string) error {
	opts := runOpts
	if err := validateRunOptions(opts); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	console := common.NewConsole()
	console.Out = cmd.OutOrStdout()

	app, log, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer log.Close()

	risk, err := loadRiskConfig(app, opts.RiskConfig)
	if err != nil {
		return err
	}
	strategies, err := buildStrategies(opts.Strategy, opts.Lookbacks, opts.Short)
	if err != nil {
		return err
	}

	dm := data.NewDataManager(data.DefaultCSVFormat, log)
	source := opts.DataFile
	if source == "" {
		source = dm.FindDataFile(opts.DataRoot, opts.Exchange, opts.Symbol, opts.Interval)
		if source == "" {
			return fmt.Errorf("no %s %s data under %s/%s", opts.Symbol, opts.Interval, opts.DataRoot, opts.Exchange)
		}
	}
	period, _ := data.ParseTrailingPeriod(opts.Period)
	candles, err := dm.Load(source, period)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", source, err)
	}
	if len(candles) == 0 {
		return fmt.Errorf("%s has no candles in the selected period", source)
	}

	var companions map[string][]types.OHLCV
	if len(opts.Companions) > 0 {
		sources, err := dm.FindDataFiles(opts.DataRoot, opts.Exchange, opts.Companions, opts.Interval)
		if err != nil {
			return err
		}
		if companions, err = dm.LoadCompanions(candles, sources); err != nil {
			return err
		}
	}

	console.Header("Paper Risk Simulation")
	console.Info("Data: %s (%d candles, %s to %s)", source, len(candles),
		candles[0].Timestamp.Format(time.RFC3339), candles[len(candles)-1].Timestamp.Format(time.RFC3339))
	for sym, c := range companions {
		console.Info("With: %s (%d candles)", sym, len(c))
	}
	console.Info("Balance: %s, max drawdown %s, max positions %d",
		common.FormatCurrency(app.Account.InitialBalance), common.FormatPercent(risk.MaxDrawdownPercent, 1), risk.MaxPositions)

	jobs := buildJobs(app, risk, opts, candles, companions, strategies)

	var health *monitoring.HealthChecker
	if addr := firstNonEmpty(opts.MetricsAddr, app.Monitoring.MetricsAddr); addr != "" {
		health = monitoring.NewHealthChecker(time.Minute)
		srv := newMetricsServer(addr, health, log)
		srv.Start()
		defer srv.Shutdown(context.Background())
		console.Info("Serving metrics on %s", addr)
		observe := func(symbol string, c types.OHLCV, out orchestrator.TickOutcome) {
			if out.Error != nil {
				health.RecordError(out.Error.Error())
				return
			}
			health.RecordTick(symbol, c.Close)
			health.SetRiskState(false, out.Drawdown.Breached)
		}
		for i := range jobs {
			jobs[i].OnCandle = observe
		}
	}

	if opts.Notify {
		dispatcher := newDispatcher(app, log)
		dispatcher.Start(ctx)
		defer closeDispatcher(dispatcher, app.Notifications.SendTimeout, log)
		for i := range jobs {
			jobs[i].Notifier = dispatcher
		}
	}

	pool := backtest.NewWorkerPool(opts.Workers, log)
	results := pool.RunBatch(ctx, jobs)

	halted := false
	for _, r := range results {
		if r.Error != nil {
			console.Error("%s: %v", r.ID, r.Error)
		}
		halted = halted || r.Halted
	}
	if health != nil {
		health.SetRiskState(halted, halted)
	}

	reportCfg := reporting.ReportingConfig{EnableConsole: true}
	if !opts.NoFiles {
		reportCfg.OutputDirectory = opts.OutputDir
		if reportCfg.OutputDirectory == "" {
			reportCfg.OutputDirectory = reporting.DefaultOutputDir(opts.Symbol, opts.Strategy)
		}
		reportCfg.CSVEnabled = true
		reportCfg.ExcelEnabled = true
		reportCfg.JSONEnabled = true
	}
	written, err := reporting.NewReportingManager(reportCfg).ReportResults(cmd.OutOrStdout(), results)
	if err != nil {
		return fmt.Errorf("failed to write reports: %w", err)
	}
	for _, p := range written {
		console.Success("Wrote %s", p)
	}

	if opts.SaveState {
		if err := saveStates(ctx, app, log, results, console); err != nil {
			return err
		}
	}

	if opts.Serve {
		console.Info("Run complete, serving until interrupted")
		<-ctx.Done()
	}
	return ctx.Err()
}

func saveStates(ctx context.Context, app *config.AppConfig, log *logger.Logger, results []backtest.Result, console *common.Console) error {
	store, err := openStore(ctx, app, log)
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.State.ID == "" {
			continue
		}
		if err := store.Save(ctx, r.State); err != nil {
			return fmt.Errorf("failed to save state %s: %w", r.State.ID, err)
		}
		console.Success("Saved account state %s", r.State.ID)
	}
	return nil
}

func newDispatcher(app *config.AppConfig, log *logger.Logger) *notifications.Dispatcher {
	cfg := notifications.DefaultDispatcherConfig()
	cfg.QueueSize = app.Notifications.QueueSize
	cfg.SendTimeout = app.Notifications.SendTimeout

	d := notifications.NewDispatcher(cfg, log)
	d.AddSink("log", notifications.NewLogSink(log))
	if app.Notifications.TelegramToken != "" && app.Notifications.TelegramChatID != "" {
		d.AddSink("telegram", notifications.NewTelegramSink(app.Notifications.TelegramToken, app.Notifications.TelegramChatID))
	}
	d.OnDrop(func(notifications.Notification) { monitoring.RecordNotificationDropped() })
	return d
}

func closeDispatcher(d *notifications.Dispatcher, timeout time.Duration, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		log.LogWarning("Notifications", "queue not drained: %v", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
