package indicators

import (
	"math"

	"github.com/ducminhle1904/crypto-paper-risk/pkg/types"
)

// SwingLow returns the lowest low of the last lookback candles.
// A lookback <= 0 or larger than the series scans the whole series.
func SwingLow(data []types.OHLCV, lookback int) (float64, bool) {
	window := tail(data, lookback)
	if len(window) == 0 {
		return 0, false
	}
	low := math.Inf(1)
	for _, c := range window {
		low = math.Min(low, c.Low)
	}
	return low, true
}

// SwingHigh returns the highest high of the last lookback candles.
func SwingHigh(data []types.OHLCV, lookback int) (float64, bool) {
	window := tail(data, lookback)
	if len(window) == 0 {
		return 0, false
	}
	high := math.Inf(-1)
	for _, c := range window {
		high = math.Max(high, c.High)
	}
	return high, true
}

// Returns converts closes into simple close-to-close returns.
// Pairs with a non-positive previous close are skipped.
func Returns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 {
			continue
		}
		out = append(out, (closes[i]-closes[i-1])/closes[i-1])
	}
	return out
}

func tail(data []types.OHLCV, n int) []types.OHLCV {
	if n <= 0 || n >= len(data) {
		return data
	}
	return data[len(data)-n:]
}
