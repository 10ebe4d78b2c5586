package data

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultFileLocator resolves data/{exchange}/{category}/{symbol}/{minutes}/candles.csv
type DefaultFileLocator struct{}

// NewDefaultFileLocator creates a new default file locator
func NewDefaultFileLocator() *DefaultFileLocator {
	return &DefaultFileLocator{}
}

// ParseInterval converts "5m", "1h", "4h", "1d", "1w" or a bare minute
// count to a candle duration.
func ParseInterval(interval string) (time.Duration, error) {
	interval = strings.ToLower(strings.TrimSpace(interval))
	if n, err := strconv.Atoi(interval); err == nil && n > 0 {
		return time.Duration(n) * time.Minute, nil
	}
	if len(interval) >= 2 {
		if n, err := strconv.Atoi(interval[:len(interval)-1]); err == nil && n > 0 {
			switch interval[len(interval)-1] {
			case 'm':
				return time.Duration(n) * time.Minute, nil
			case 'h':
				return time.Duration(n) * time.Hour, nil
			case 'd':
				return time.Duration(n) * 24 * time.Hour, nil
			case 'w':
				return time.Duration(n) * 7 * 24 * time.Hour, nil
			}
		}
	}
	return 0, fmt.Errorf("invalid interval %q", interval)
}

func categoriesFor(exchange string) []string {
	switch strings.ToLower(exchange) {
	case "bybit":
		return []string{"spot", "linear", "inverse"}
	case "binance":
		return []string{"spot", "futures"}
	default:
		return []string{"spot", "futures", "linear", "inverse"}
	}
}

// FindDataFile returns the first existing candle file across the exchange's
// market categories, or "" when none exists or the interval is invalid.
func (f *DefaultFileLocator) FindDataFile(dataRoot, exchange, symbol, interval string) string {
	d, err := ParseInterval(interval)
	if err != nil {
		return ""
	}
	symbol = strings.ToUpper(symbol)
	minutes := strconv.Itoa(int(d / time.Minute))

	for _, category := range categoriesFor(exchange) {
		path := filepath.Join(dataRoot, exchange, category, symbol, minutes, "candles.csv")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// FindDataFiles locates one candle file per symbol at the same interval.
// Every symbol must resolve; the error names the ones that did not.
func (f *DefaultFileLocator) FindDataFiles(dataRoot, exchange string, symbols []string, interval string) (map[string]string, error) {
	if _, err := ParseInterval(interval); err != nil {
		return nil, err
	}

	found := make(map[string]string, len(symbols))
	var missing []string
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if path := f.FindDataFile(dataRoot, exchange, s, interval); path != "" {
			found[s] = path
			continue
		}
		missing = append(missing, s)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return found, fmt.Errorf("no %s data under %s for %s", interval, filepath.Join(dataRoot, exchange), strings.Join(missing, ", "))
	}
	return found, nil
}
