package data

import (
	"sort"

	"github.com/ducminhle1904/crypto-paper-risk/pkg/types"
)

// SeriesBounds returns the first and last timestamp of a sorted series
func SeriesBounds(candles []types.OHLCV) (Bounds, bool) {
	if len(candles) == 0 {
		return Bounds{}, false
	}
	return Bounds{Start: candles[0].Timestamp, End: candles[len(candles)-1].Timestamp}, true
}

// Merge interleaves several sorted series into one replay ordered by
// timestamp. Bars sharing a timestamp come in symbol order, so every
// symbol's bar is recorded before any of them is acted on in the next step.
func Merge(series map[string][]types.OHLCV) []SymbolCandle {
	symbols := make([]string, 0, len(series))
	total := 0
	for s, c := range series {
		symbols = append(symbols, s)
		total += len(c)
	}
	sort.Strings(symbols)

	out := make([]SymbolCandle, 0, total)
	next := make([]int, len(symbols))
	for len(out) < total {
		best := -1
		for i, s := range symbols {
			if next[i] >= len(series[s]) {
				continue
			}
			if best < 0 || series[s][next[i]].Timestamp.Before(series[symbols[best]][next[best]].Timestamp) {
				best = i
			}
		}
		s := symbols[best]
		out = append(out, SymbolCandle{Symbol: s, Candle: series[s][next[best]]})
		next[best]++
	}
	return out
}
