package reporting

import (
	"io"

	"github.com/ducminhle1904/crypto-paper-risk/internal/backtest"
)

// ConsoleReporter renders results as text tables
type ConsoleReporter interface {
	RenderSummary(w io.Writer, results []backtest.Result)
	RenderResult(w io.Writer, result backtest.Result)
}

// FileReporter writes results to disk
type FileReporter interface {
	WriteTradesCSV(results []backtest.Result, path string) error
	WriteWorkbook(results []backtest.Result, path string) error
	WriteJSON(v interface{}, path string) error
}

// ExcelStyles holds workbook style ids
type ExcelStyles struct {
	HeaderStyle        int
	CurrencyStyle      int
	PercentStyle       int
	BaseStyle          int
	RedCurrencyStyle   int
	GreenCurrencyStyle int
	TitleStyle         int
}

// ReportingConfig selects the outputs ReportResults produces
type ReportingConfig struct {
	EnableConsole   bool
	OutputDirectory string // empty disables file outputs
	ExcelEnabled    bool
	CSVEnabled      bool
	JSONEnabled     bool
}
