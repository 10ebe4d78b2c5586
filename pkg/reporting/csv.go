package reporting

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ducminhle1904/crypto-paper-risk/internal/backtest"
)

// DefaultCSVReporter writes one row per execution
type DefaultCSVReporter struct{}

// NewDefaultCSVReporter creates a new CSV reporter
func NewDefaultCSVReporter() *DefaultCSVReporter {
	return &DefaultCSVReporter{}
}

// WriteTradesCSV writes every trade of every result. An .xlsx path is
// delegated to the workbook writer.
func (r *DefaultCSVReporter) WriteTradesCSV(results []backtest.Result, path string) error {
	if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		return NewDefaultExcelReporter().WriteWorkbook(results, path)
	}
	if err := NewDefaultPathManager().EnsureDirectoryExists(path); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{
		"Job", "Timestamp", "Symbol", "Side", "Closing", "Price", "Quantity",
		"Value", "Fees", "Slippage", "Realized_PnL", "Exit_Reason", "Position_ID", "Order_ID",
	}); err != nil {
		return err
	}

	var totalPnL, totalFees float64
	var count int
	for _, res := range results {
		for _, t := range res.Trades {
			row := []string{
				res.ID,
				t.Timestamp.Format("2006-01-02 15:04:05"),
				t.Symbol,
				string(t.Side),
				fmt.Sprintf("%t", t.IsClosing),
				fmt.Sprintf("%.8f", t.Price),
				fmt.Sprintf("%.8f", t.Quantity),
				fmt.Sprintf("%.4f", t.TotalValue),
				fmt.Sprintf("%.4f", t.Fees),
				fmt.Sprintf("%.4f", t.Slippage),
				fmt.Sprintf("%.4f", t.RealizedPnL),
				t.ExitReason,
				t.PositionID,
				t.OrderID,
			}
			if err := w.Write(row); err != nil {
				return err
			}
			totalPnL += t.RealizedPnL
			totalFees += t.Fees
			count++
		}
	}

	summary := make([]string, 14)
	summary[0] = "SUMMARY"
	summary[13] = fmt.Sprintf("trades=%d; realized_pnl=$%.2f; fees=$%.2f", count, totalPnL, totalFees)
	if err := w.Write(summary); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// WriteTradesCSV is a convenience wrapper over the default reporter
func WriteTradesCSV(results []backtest.Result, path string) error {
	return NewDefaultCSVReporter().WriteTradesCSV(results, path)
}

func ensureDir(path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}
