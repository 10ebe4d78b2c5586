package data

import (
	"time"

	"github.com/ducminhle1904/crypto-paper-risk/pkg/types"
)

// DataProvider loads candle series for the simulator
type DataProvider interface {
	// LoadData loads the candles stored at source
	LoadData(source string) ([]types.OHLCV, error)

	// ValidateData checks every candle and their ordering
	ValidateData(data []types.OHLCV) error

	GetName() string
}

// CSVColumnMapping defines the column positions of a CSV format.
// An empty DateFormat reads the timestamp as unix milliseconds.
type CSVColumnMapping struct {
	TimestampCol int
	OpenCol      int
	HighCol      int
	LowCol       int
	CloseCol     int
	VolumeCol    int
	MinColumns   int
	DateFormat   string
	HasHeader    bool
}

// Predefined CSV formats
var (
	DefaultCSVFormat = CSVColumnMapping{
		TimestampCol: 0,
		OpenCol:      1,
		HighCol:      2,
		LowCol:       3,
		CloseCol:     4,
		VolumeCol:    5,
		MinColumns:   6,
		DateFormat:   "2006-01-02 15:04:05",
		HasHeader:    true,
	}

	// UnixMillisCSVFormat matches exchange kline dumps keyed by open time in ms
	UnixMillisCSVFormat = CSVColumnMapping{
		TimestampCol: 0,
		OpenCol:      1,
		HighCol:      2,
		LowCol:       3,
		CloseCol:     4,
		VolumeCol:    5,
		MinColumns:   6,
		HasHeader:    true,
	}
)

// FileLocator finds candle files in a data tree
type FileLocator interface {
	FindDataFile(dataRoot, exchange, symbol, interval string) string
	FindDataFiles(dataRoot, exchange string, symbols []string, interval string) (map[string]string, error)
}

// SymbolCandle is one bar of a multi-symbol replay
type SymbolCandle struct {
	Symbol string
	Candle types.OHLCV
}

// Bounds is the first and last timestamp of a series
type Bounds struct {
	Start time.Time
	End   time.Time
}
