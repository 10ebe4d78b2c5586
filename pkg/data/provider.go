package data

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ducminhle1904/crypto-paper-risk/internal/logger"
	"github.com/ducminhle1904/crypto-paper-risk/pkg/types"
)

// DataManager combines loading, filtering and locating candle files
type DataManager struct {
	provider DataProvider
	filter   *DefaultDataFilter
	locator  FileLocator
}

// NewDataManager creates a manager over a cached CSV provider
func NewDataManager(format CSVColumnMapping, log *logger.Logger) *DataManager {
	return NewDataManagerWithProvider(NewCachedProvider(NewCSVProviderWithFormat(format, log), log))
}

// NewDataManagerWithProvider creates a data manager with a custom provider
func NewDataManagerWithProvider(provider DataProvider) *DataManager {
	return &DataManager{
		provider: provider,
		filter:   NewDefaultDataFilter(),
		locator:  NewDefaultFileLocator(),
	}
}

// Load reads source, sorts and dedupes it, keeps the trailing period when
// positive, and validates the result.
func (dm *DataManager) Load(source string, period time.Duration) ([]types.OHLCV, error) {
	candles, err := dm.provider.LoadData(source)
	if err != nil {
		return nil, err
	}
	candles = dm.filter.FilterByPeriod(dm.filter.Normalize(candles), period)
	if err := dm.provider.ValidateData(candles); err != nil {
		return nil, err
	}
	return candles, nil
}

// FindDataFile locates a candle file in a data tree
func (dm *DataManager) FindDataFile(dataRoot, exchange, symbol, interval string) string {
	return dm.locator.FindDataFile(dataRoot, exchange, symbol, interval)
}

// FindDataFiles locates one candle file per symbol in a data tree
func (dm *DataManager) FindDataFiles(dataRoot, exchange string, symbols []string, interval string) (map[string]string, error) {
	return dm.locator.FindDataFiles(dataRoot, exchange, symbols, interval)
}

// LoadCompanions loads the series traded alongside primary and clips each
// to primary's time range so the replay starts and ends together.
// Companions with no bars in that range are left out.
func (dm *DataManager) LoadCompanions(primary []types.OHLCV, sources map[string]string) (map[string][]types.OHLCV, error) {
	bounds, ok := SeriesBounds(primary)
	if !ok {
		return nil, fmt.Errorf("primary series is empty")
	}

	out := make(map[string][]types.OHLCV, len(sources))
	for symbol, source := range sources {
		candles, err := dm.Load(source, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", symbol, err)
		}
		if clipped := dm.filter.FilterByDateRange(candles, bounds.Start, bounds.End); len(clipped) > 0 {
			out[symbol] = clipped
		}
	}
	return out, nil
}

// ParseTrailingPeriod parses "7d", "30days" or any time.ParseDuration string
func ParseTrailingPeriod(s string) (time.Duration, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if strings.HasSuffix(s, "days") {
		s = strings.TrimSuffix(s, "days") + "d"
	}
	if strings.HasSuffix(s, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil || n <= 0 {
			return 0, false
		}
		return time.Duration(n) * 24 * time.Hour, true
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d, true
	}
	return 0, false
}
