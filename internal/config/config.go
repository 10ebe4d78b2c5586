package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// AppConfig is the process-level configuration of the simulator binaries.
// The simulation core never reads it directly; cmd wires its fields into the
// ledger, orchestrator and adapters.
type AppConfig struct {
	Environment string `envconfig:"ENV" default:"development"`

	Account struct {
		ID             string  `envconfig:"ACCOUNT_ID" default:"paper"`
		InitialBalance float64 `envconfig:"INITIAL_BALANCE" default:"10000"`
	}

	Execution struct {
		MakerFeeRate           float64 `envconfig:"MAKER_FEE_RATE" default:"0.001"`
		TakerFeeRate           float64 `envconfig:"TAKER_FEE_RATE" default:"0.001"`
		SlippageRate           float64 `envconfig:"SLIPPAGE_RATE" default:"0.0005"`
		MaxVolumeParticipation float64 `envconfig:"MAX_VOLUME_PARTICIPATION" default:"0"`
	}

	Storage struct {
		LogDir      string `envconfig:"LOG_DIR" default:"logs"`
		SnapshotDir string `envconfig:"SNAPSHOT_DIR" default:"results"`
		RedisAddr   string `envconfig:"REDIS_ADDR"`
		RedisDB     int    `envconfig:"REDIS_DB" default:"0"`
	}

	Notifications struct {
		TelegramToken  string        `envconfig:"TELEGRAM_TOKEN"`
		TelegramChatID string        `envconfig:"TELEGRAM_CHAT_ID"`
		QueueSize      int           `envconfig:"NOTIFY_QUEUE_SIZE" default:"256"`
		SendTimeout    time.Duration `envconfig:"NOTIFY_SEND_TIMEOUT" default:"5s"`
	}

	Monitoring struct {
		MetricsAddr string `envconfig:"METRICS_ADDR"`
	}

	RiskConfigFile string `envconfig:"RISK_CONFIG_FILE"`
}

// EnvPrefix is the prefix of every environment variable read by LoadAppConfig.
const EnvPrefix = "PAPER"

// LoadAppConfig loads envFile (when present) into the environment, then
// parses PAPER_* variables.
func LoadAppConfig(envFile string) (*AppConfig, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
			}
		}
	}

	var cfg AppConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the process configuration
func (c *AppConfig) Validate() error {
	if c.Account.InitialBalance <= 0 {
		return fmt.Errorf("initial balance must be positive, got: %.2f", c.Account.InitialBalance)
	}
	if c.Execution.MakerFeeRate < 0 || c.Execution.MakerFeeRate >= 1 {
		return fmt.Errorf("maker fee rate must be within [0, 1), got: %.6f", c.Execution.MakerFeeRate)
	}
	if c.Execution.TakerFeeRate < 0 || c.Execution.TakerFeeRate >= 1 {
		return fmt.Errorf("taker fee rate must be within [0, 1), got: %.6f", c.Execution.TakerFeeRate)
	}
	if c.Execution.SlippageRate < 0 || c.Execution.SlippageRate >= 1 {
		return fmt.Errorf("slippage rate must be within [0, 1), got: %.6f", c.Execution.SlippageRate)
	}
	if c.Execution.MaxVolumeParticipation < 0 || c.Execution.MaxVolumeParticipation > 1 {
		return fmt.Errorf("max volume participation must be within [0, 1], got: %.4f", c.Execution.MaxVolumeParticipation)
	}
	if c.Notifications.QueueSize <= 0 {
		return fmt.Errorf("notification queue size must be positive, got: %d", c.Notifications.QueueSize)
	}
	return nil
}

// LoadRiskConfigFile reads a risk config from a .json, .yaml or .yml file.
// Fields missing from the file keep their defaults.
func LoadRiskConfigFile(path string) (RiskConfig, error) {
	cfg := DefaultRiskConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read risk config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse risk config yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse risk config json: %w", err)
		}
	default:
		return cfg, fmt.Errorf("unsupported risk config extension %q", filepath.Ext(path))
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("risk config validation failed: %w", err)
	}
	return cfg, nil
}

// SaveRiskConfigFile writes cfg as YAML or JSON depending on the extension.
func SaveRiskConfigFile(cfg RiskConfig, path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode risk config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}
