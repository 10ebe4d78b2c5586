package data

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ducminhle1904/crypto-paper-risk/internal/logger"
	"github.com/ducminhle1904/crypto-paper-risk/internal/safety"
	"github.com/ducminhle1904/crypto-paper-risk/pkg/types"
)

// CSVProvider implements DataProvider for CSV files
type CSVProvider struct {
	format CSVColumnMapping
	logger *logger.Logger
}

// NewCSVProvider creates a CSV provider with the default format
func NewCSVProvider(log *logger.Logger) *CSVProvider {
	return NewCSVProviderWithFormat(DefaultCSVFormat, log)
}

// NewCSVProviderWithFormat creates a CSV provider with a custom format
func NewCSVProviderWithFormat(format CSVColumnMapping, log *logger.Logger) *CSVProvider {
	return &CSVProvider{format: format, logger: log}
}

// GetName returns the name of the data provider
func (p *CSVProvider) GetName() string {
	return "CSV Provider"
}

// LoadData loads candles from a CSV file
func (p *CSVProvider) LoadData(source string) ([]types.OHLCV, error) {
	file, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}
	defer file.Close()
	return p.Read(file)
}

// Read parses candles from r. Rows that fail to parse or fail candle
// validation are skipped and logged; a malformed CSV stream is an error.
func (p *CSVProvider) Read(r io.Reader) ([]types.OHLCV, error) {
	format := p.format
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	lineNum := 0
	if format.HasHeader {
		if _, err := reader.Read(); err != nil {
			if err == io.EOF {
				return nil, nil
			}
			return nil, fmt.Errorf("error reading CSV header: %w", err)
		}
		lineNum++
	}

	var data []types.OHLCV
	var skipped int
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		lineNum++
		if err != nil {
			return nil, fmt.Errorf("error reading CSV at line %d: %w", lineNum, err)
		}

		if len(record) < format.MinColumns {
			p.logger.Warning("Insufficient columns at line %d (expected %d, got %d), skipping", lineNum, format.MinColumns, len(record))
			skipped++
			continue
		}

		candle, err := parseRecord(record, format)
		if err != nil {
			p.logger.Warning("Line %d skipped: %v", lineNum, err)
			skipped++
			continue
		}

		if v := safety.ValidateCandle("csv", candle); !v.Valid {
			p.logger.Warning("Line %d skipped: %s", lineNum, v.Message)
			skipped++
			continue
		}

		data = append(data, candle)
	}

	if skipped > 0 {
		p.logger.Info("Loaded %d candles, skipped %d rows", len(data), skipped)
	}
	return data, nil
}

func parseRecord(record []string, format CSVColumnMapping) (types.OHLCV, error) {
	ts, err := parseTimestamp(strings.TrimSpace(record[format.TimestampCol]), format.DateFormat)
	if err != nil {
		return types.OHLCV{}, fmt.Errorf("invalid timestamp %q: %w", record[format.TimestampCol], err)
	}

	fields := []struct {
		name string
		col  int
	}{
		{"open", format.OpenCol},
		{"high", format.HighCol},
		{"low", format.LowCol},
		{"close", format.CloseCol},
		{"volume", format.VolumeCol},
	}
	values := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(record[f.col]), 64)
		if err != nil {
			return types.OHLCV{}, fmt.Errorf("invalid %s %q: %w", f.name, record[f.col], err)
		}
		values[i] = v
	}

	return types.OHLCV{
		Timestamp: ts,
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}, nil
}

func parseTimestamp(s, layout string) (time.Time, error) {
	if layout == "" {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.ParseInLocation(layout, s, time.UTC)
}

// ValidateData validates every candle and requires strictly increasing timestamps
func (p *CSVProvider) ValidateData(data []types.OHLCV) error {
	if len(data) == 0 {
		return fmt.Errorf("no data provided")
	}
	for i, candle := range data {
		if v := safety.ValidateCandle("csv", candle); !v.Valid {
			return fmt.Errorf("invalid candle at index %d: %s", i, v.Message)
		}
	}
	return NewDefaultDataFilter().ValidateTimeSequence(data)
}
