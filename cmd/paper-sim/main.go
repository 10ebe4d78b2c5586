package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ducminhle1904/crypto-paper-risk/cmd/common"
	"github.com/ducminhle1904/crypto-paper-risk/internal/config"
	"github.com/ducminhle1904/crypto-paper-risk/internal/logger"
	"github.com/ducminhle1904/crypto-paper-risk/internal/persistence"
	"github.com/ducminhle1904/crypto-paper-risk/internal/recovery"
	"github.com/spf13/cobra"
)

const appName = "paper-sim"

var envFile string

// rootCmd is the base command of the paper trading simulator
var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Risk-managed paper trading simulator",
	Long: `paper-sim replays OHLCV candles through a simulated exchange account
with position sizing, stop-loss, take-profit, exposure limits and drawdown
protection, and reports the resulting trades and statistics.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		common.PrintVersion(appName)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "Environment file path")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(riskConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadEnvironment reads the process config and opens the session log
func loadEnvironment() (*config.AppConfig, *logger.Logger, error) {
	cfg, err := config.LoadAppConfig(envFile)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.NewLogger(appName, cfg.Storage.LogDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log: %w", err)
	}
	return cfg, log, nil
}

// loadRiskConfig prefers the flag, then PAPER_RISK_CONFIG_FILE, then defaults
func loadRiskConfig(cfg *config.AppConfig, path string) (config.RiskConfig, error) {
	if path == "" {
		path = cfg.RiskConfigFile
	}
	if path == "" {
		return config.DefaultRiskConfig(), nil
	}
	return config.LoadRiskConfigFile(path)
}

// openStore uses redis when PAPER_REDIS_ADDR is set, the snapshot dir otherwise
func openStore(ctx context.Context, cfg *config.AppConfig, log *logger.Logger) (persistence.SnapshotStore, error) {
	if cfg.Storage.RedisAddr != "" {
		store, err := persistence.NewRedisStore(ctx, cfg.Storage.RedisAddr, cfg.Storage.RedisDB, 0)
		if err != nil {
			return nil, err
		}
		return persistence.NewRetryingStore(store, recovery.NewRecoveryHandler(recovery.DefaultRetryConfig(), log)), nil
	}
	store, err := persistence.NewFileStore(cfg.Storage.SnapshotDir, log)
	if err != nil {
		return nil, err
	}
	return store, nil
}
