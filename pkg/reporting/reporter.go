package reporting

import (
	"io"
	"path/filepath"

	"github.com/ducminhle1904/crypto-paper-risk/internal/backtest"
)

// DefaultReporter implements ConsoleReporter and FileReporter
type DefaultReporter struct {
	console *DefaultConsoleReporter
	csv     *DefaultCSVReporter
	excel   *DefaultExcelReporter
}

// NewDefaultReporter creates a reporter with every output
func NewDefaultReporter() *DefaultReporter {
	return &DefaultReporter{
		console: NewDefaultConsoleReporter(),
		csv:     NewDefaultCSVReporter(),
		excel:   NewDefaultExcelReporter(),
	}
}

func (r *DefaultReporter) RenderSummary(w io.Writer, results []backtest.Result) {
	r.console.RenderSummary(w, results)
}

func (r *DefaultReporter) RenderResult(w io.Writer, result backtest.Result) {
	r.console.RenderResult(w, result)
}

func (r *DefaultReporter) WriteTradesCSV(results []backtest.Result, path string) error {
	return r.csv.WriteTradesCSV(results, path)
}

func (r *DefaultReporter) WriteWorkbook(results []backtest.Result, path string) error {
	return r.excel.WriteWorkbook(results, path)
}

func (r *DefaultReporter) WriteJSON(v interface{}, path string) error {
	return WriteJSON(v, path)
}

// ReportingManager produces the outputs selected by its config
type ReportingManager struct {
	reporter *DefaultReporter
	config   ReportingConfig
}

// NewReportingManager creates a new reporting manager
func NewReportingManager(config ReportingConfig) *ReportingManager {
	return &ReportingManager{reporter: NewDefaultReporter(), config: config}
}

// ReportResults renders to w and writes the enabled files. It returns the
// paths written.
func (m *ReportingManager) ReportResults(w io.Writer, results []backtest.Result) ([]string, error) {
	if m.config.EnableConsole {
		m.reporter.RenderSummary(w, results)
		if len(results) == 1 {
			m.reporter.RenderResult(w, results[0])
		}
	}

	dir := m.config.OutputDirectory
	if dir == "" {
		return nil, nil
	}

	var written []string
	if m.config.CSVEnabled {
		p := filepath.Join(dir, "trades.csv")
		if err := m.reporter.WriteTradesCSV(results, p); err != nil {
			return written, err
		}
		written = append(written, p)
	}
	if m.config.ExcelEnabled {
		p := filepath.Join(dir, "report.xlsx")
		if err := m.reporter.WriteWorkbook(results, p); err != nil {
			return written, err
		}
		written = append(written, p)
	}
	if m.config.JSONEnabled {
		p := filepath.Join(dir, "results.json")
		if err := m.reporter.WriteJSON(results, p); err != nil {
			return written, err
		}
		written = append(written, p)
	}
	return written, nil
}
