package config

import (
	"fmt"
)

// RiskConfig holds the risk tunables of one account. All *Percent fields are
// expressed in percent (2 = 2%). Treat values as immutable: use Merge to
// derive an updated config.
type RiskConfig struct {
	MaxPositionSizePercent    float64 `json:"max_position_size_percent" yaml:"max_position_size_percent"`
	MaxPositions              int     `json:"max_positions" yaml:"max_positions"`
	MaxDailyLossPercent       float64 `json:"max_daily_loss_percent" yaml:"max_daily_loss_percent"`
	MaxDrawdownPercent        float64 `json:"max_drawdown_percent" yaml:"max_drawdown_percent"`
	DefaultStopLossPercent    float64 `json:"default_stop_loss_percent" yaml:"default_stop_loss_percent"`
	DefaultTakeProfitPercent  float64 `json:"default_take_profit_percent" yaml:"default_take_profit_percent"`
	TrailingActivationPercent float64 `json:"trailing_activation_percent" yaml:"trailing_activation_percent"`
	TrailingDistancePercent   float64 `json:"trailing_distance_percent" yaml:"trailing_distance_percent"`
	MaxAssetExposurePercent   float64 `json:"max_asset_exposure_percent" yaml:"max_asset_exposure_percent"`
	MaxCorrelatedPositions    int     `json:"max_correlated_positions" yaml:"max_correlated_positions"`
	CorrelationThreshold      float64 `json:"correlation_threshold" yaml:"correlation_threshold"`
	CorrelationPeriod         int     `json:"correlation_period" yaml:"correlation_period"`
	EventHistoryLimit         int     `json:"event_history_limit" yaml:"event_history_limit"`
}

// RiskConfigPatch is a partial update; nil fields keep their current value.
type RiskConfigPatch struct {
	MaxPositionSizePercent    *float64 `json:"max_position_size_percent,omitempty" yaml:"max_position_size_percent,omitempty"`
	MaxPositions              *int     `json:"max_positions,omitempty" yaml:"max_positions,omitempty"`
	MaxDailyLossPercent       *float64 `json:"max_daily_loss_percent,omitempty" yaml:"max_daily_loss_percent,omitempty"`
	MaxDrawdownPercent        *float64 `json:"max_drawdown_percent,omitempty" yaml:"max_drawdown_percent,omitempty"`
	DefaultStopLossPercent    *float64 `json:"default_stop_loss_percent,omitempty" yaml:"default_stop_loss_percent,omitempty"`
	DefaultTakeProfitPercent  *float64 `json:"default_take_profit_percent,omitempty" yaml:"default_take_profit_percent,omitempty"`
	TrailingActivationPercent *float64 `json:"trailing_activation_percent,omitempty" yaml:"trailing_activation_percent,omitempty"`
	TrailingDistancePercent   *float64 `json:"trailing_distance_percent,omitempty" yaml:"trailing_distance_percent,omitempty"`
	MaxAssetExposurePercent   *float64 `json:"max_asset_exposure_percent,omitempty" yaml:"max_asset_exposure_percent,omitempty"`
	MaxCorrelatedPositions    *int     `json:"max_correlated_positions,omitempty" yaml:"max_correlated_positions,omitempty"`
	CorrelationThreshold      *float64 `json:"correlation_threshold,omitempty" yaml:"correlation_threshold,omitempty"`
	CorrelationPeriod         *int     `json:"correlation_period,omitempty" yaml:"correlation_period,omitempty"`
	EventHistoryLimit         *int     `json:"event_history_limit,omitempty" yaml:"event_history_limit,omitempty"`
}

// DefaultRiskConfig returns the default risk configuration
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		MaxPositionSizePercent:    10,
		MaxPositions:              5,
		MaxDailyLossPercent:       5,
		MaxDrawdownPercent:        20,
		DefaultStopLossPercent:    2,
		DefaultTakeProfitPercent:  4,
		TrailingActivationPercent: 1,
		TrailingDistancePercent:   0.5,
		MaxAssetExposurePercent:   30,
		MaxCorrelatedPositions:    2,
		CorrelationThreshold:      0.7,
		CorrelationPeriod:         30,
		EventHistoryLimit:         1000,
	}
}

// Validate checks every field is within its allowed range
func (c RiskConfig) Validate() error {
	checkPercent := func(name string, v float64, allowZero bool) error {
		if v < 0 || v > 100 || (!allowZero && v == 0) {
			return fmt.Errorf("%s must be within (0, 100], got: %.4f", name, v)
		}
		return nil
	}

	if err := checkPercent("max_position_size_percent", c.MaxPositionSizePercent, false); err != nil {
		return err
	}
	if c.MaxPositions <= 0 {
		return fmt.Errorf("max_positions must be positive, got: %d", c.MaxPositions)
	}
	if err := checkPercent("max_daily_loss_percent", c.MaxDailyLossPercent, false); err != nil {
		return err
	}
	if err := checkPercent("max_drawdown_percent", c.MaxDrawdownPercent, false); err != nil {
		return err
	}
	if err := checkPercent("default_stop_loss_percent", c.DefaultStopLossPercent, false); err != nil {
		return err
	}
	if c.DefaultTakeProfitPercent <= 0 {
		return fmt.Errorf("default_take_profit_percent must be positive, got: %.4f", c.DefaultTakeProfitPercent)
	}
	if err := checkPercent("trailing_activation_percent", c.TrailingActivationPercent, true); err != nil {
		return err
	}
	if err := checkPercent("trailing_distance_percent", c.TrailingDistancePercent, false); err != nil {
		return err
	}
	if err := checkPercent("max_asset_exposure_percent", c.MaxAssetExposurePercent, false); err != nil {
		return err
	}
	if c.MaxCorrelatedPositions <= 0 {
		return fmt.Errorf("max_correlated_positions must be positive, got: %d", c.MaxCorrelatedPositions)
	}
	if c.CorrelationThreshold <= 0 || c.CorrelationThreshold > 1 {
		return fmt.Errorf("correlation_threshold must be within (0, 1], got: %.4f", c.CorrelationThreshold)
	}
	if c.CorrelationPeriod < 3 {
		return fmt.Errorf("correlation_period must be at least 3, got: %d", c.CorrelationPeriod)
	}
	if c.EventHistoryLimit <= 0 {
		return fmt.Errorf("event_history_limit must be positive, got: %d", c.EventHistoryLimit)
	}
	return nil
}

// Merge applies patch on a copy of c and validates the result. c is never modified.
func (c RiskConfig) Merge(patch RiskConfigPatch) (RiskConfig, error) {
	next := c
	setF := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	setI := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}

	setF(&next.MaxPositionSizePercent, patch.MaxPositionSizePercent)
	setI(&next.MaxPositions, patch.MaxPositions)
	setF(&next.MaxDailyLossPercent, patch.MaxDailyLossPercent)
	setF(&next.MaxDrawdownPercent, patch.MaxDrawdownPercent)
	setF(&next.DefaultStopLossPercent, patch.DefaultStopLossPercent)
	setF(&next.DefaultTakeProfitPercent, patch.DefaultTakeProfitPercent)
	setF(&next.TrailingActivationPercent, patch.TrailingActivationPercent)
	setF(&next.TrailingDistancePercent, patch.TrailingDistancePercent)
	setF(&next.MaxAssetExposurePercent, patch.MaxAssetExposurePercent)
	setI(&next.MaxCorrelatedPositions, patch.MaxCorrelatedPositions)
	setF(&next.CorrelationThreshold, patch.CorrelationThreshold)
	setI(&next.CorrelationPeriod, patch.CorrelationPeriod)
	setI(&next.EventHistoryLimit, patch.EventHistoryLimit)

	if err := next.Validate(); err != nil {
		return c, fmt.Errorf("invalid risk config update: %w", err)
	}
	return next, nil
}

// Float64 and Int return pointers for building patches inline.
func Float64(v float64) *float64 { return &v }
func Int(v int) *int             { return &v }
