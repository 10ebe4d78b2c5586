package data

import (
	"fmt"
	"sort"
	"time"

	"github.com/ducminhle1904/crypto-paper-risk/pkg/types"
)

// DefaultDataFilter trims and orders candle series before a replay
type DefaultDataFilter struct{}

// NewDefaultDataFilter creates a new default data filter
func NewDefaultDataFilter() *DefaultDataFilter {
	return &DefaultDataFilter{}
}

// FilterByPeriod keeps the candles within period of the last one
func (f *DefaultDataFilter) FilterByPeriod(data []types.OHLCV, period time.Duration) []types.OHLCV {
	if period <= 0 || len(data) == 0 {
		return data
	}

	cutoff := data[len(data)-1].Timestamp.Add(-period)
	idx := sort.Search(len(data), func(i int) bool {
		return !data[i].Timestamp.Before(cutoff)
	})
	return data[idx:]
}

// FilterByDateRange keeps candles in [start, end]. A zero bound is open.
func (f *DefaultDataFilter) FilterByDateRange(data []types.OHLCV, start, end time.Time) []types.OHLCV {
	var filtered []types.OHLCV
	for _, candle := range data {
		if !start.IsZero() && candle.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && candle.Timestamp.After(end) {
			continue
		}
		filtered = append(filtered, candle)
	}
	return filtered
}

// ValidateTimeSequence requires strictly increasing timestamps
func (f *DefaultDataFilter) ValidateTimeSequence(data []types.OHLCV) error {
	for i := 1; i < len(data); i++ {
		prev, cur := data[i-1].Timestamp, data[i].Timestamp
		if cur.Before(prev) {
			return fmt.Errorf("data not in chronological order at index %d: %s comes after %s",
				i, cur.Format(time.RFC3339), prev.Format(time.RFC3339))
		}
		if cur.Equal(prev) {
			return fmt.Errorf("duplicate timestamp at index %d: %s", i, cur.Format(time.RFC3339))
		}
	}
	return nil
}

// Normalize returns a sorted copy with duplicate timestamps removed,
// keeping the first occurrence.
func (f *DefaultDataFilter) Normalize(data []types.OHLCV) []types.OHLCV {
	sorted := make([]types.OHLCV, len(data))
	copy(sorted, data)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	out := sorted[:0]
	for i, c := range sorted {
		if i > 0 && c.Timestamp.Equal(out[len(out)-1].Timestamp) {
			continue
		}
		out = append(out, c)
	}
	return out
}
