package indicators

import (
	"errors"
	"math"

	"github.com/ducminhle1904/crypto-paper-risk/pkg/types"
)

// ATR represents the Average True Range technical indicator
// ATR measures market volatility by decomposing the entire range of an asset price for that period
type ATR struct {
	period      int
	value       float64
	lastClose   float64
	count       int
	initialized bool
}

// NewATR creates a new ATR indicator
func NewATR(period int) *ATR {
	if period <= 0 {
		period = 14
	}
	return &ATR{period: period}
}

// Calculate feeds every candle in data and returns the latest ATR value.
// Wilder's smoothing is seeded with the simple average of the first period true ranges.
func (a *ATR) Calculate(data []types.OHLCV) (float64, error) {
	if len(data) < a.period {
		return 0, errors.New("insufficient data points for ATR calculation")
	}

	a.ResetState()
	for _, candle := range data {
		a.Update(candle)
	}
	return a.value, nil
}

// Update adds one candle and returns the current ATR value
func (a *ATR) Update(candle types.OHLCV) float64 {
	var trueRange float64
	if a.count > 0 {
		trueRange = TrueRange(candle, a.lastClose)
	} else {
		trueRange = candle.High - candle.Low // First candle
	}
	a.lastClose = candle.Close
	a.count++

	switch {
	case a.count < a.period:
		a.value += trueRange
	case a.count == a.period:
		a.value = (a.value + trueRange) / float64(a.period)
		a.initialized = true
	default:
		a.value = (a.value*float64(a.period-1) + trueRange) / float64(a.period)
	}

	if !a.initialized {
		return 0
	}
	return a.value
}

// GetLastValue returns the last calculated ATR value
func (a *ATR) GetLastValue() float64 {
	if !a.initialized {
		return 0
	}
	return a.value
}

// GetPeriod returns the period used for ATR calculation
func (a *ATR) GetPeriod() int {
	return a.period
}

// IsReady reports whether enough candles were seen to produce a value
func (a *ATR) IsReady() bool {
	return a.initialized
}

// ResetState resets the ATR internal state for new data periods
func (a *ATR) ResetState() {
	a.value = 0
	a.lastClose = 0
	a.count = 0
	a.initialized = false
}

// TrueRange = max(High-Low, abs(High-PrevClose), abs(Low-PrevClose))
func TrueRange(current types.OHLCV, prevClose float64) float64 {
	hl := current.High - current.Low
	hc := math.Abs(current.High - prevClose)
	lc := math.Abs(current.Low - prevClose)
	return math.Max(hl, math.Max(hc, lc))
}

// ATRWithAverage returns the latest ATR and the mean of the ATR series over
// the candles after warm-up. The pair drives adaptive ATR multipliers.
func ATRWithAverage(data []types.OHLCV, period int) (current, average float64, err error) {
	atr := NewATR(period)
	if len(data) < atr.period {
		return 0, 0, errors.New("insufficient data points for ATR calculation")
	}

	var sum float64
	var n int
	for _, candle := range data {
		v := atr.Update(candle)
		if atr.IsReady() {
			sum += v
			n++
		}
	}
	return atr.GetLastValue(), sum / float64(n), nil
}
