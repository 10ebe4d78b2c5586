package reporting

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/ducminhle1904/crypto-paper-risk/internal/backtest"
)

const (
	summarySheet   = "Summary"
	tradesSheet    = "Trades"
	positionsSheet = "Positions"
	eventsSheet    = "Risk Events"
)

// DefaultExcelReporter writes results to an xlsx workbook
type DefaultExcelReporter struct{}

// NewDefaultExcelReporter creates a new Excel reporter
func NewDefaultExcelReporter() *DefaultExcelReporter {
	return &DefaultExcelReporter{}
}

// WriteWorkbook writes summary, trades, positions and risk events sheets
func (r *DefaultExcelReporter) WriteWorkbook(results []backtest.Result, path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	fx.SetSheetName(fx.GetSheetName(0), summarySheet)
	for _, s := range []string{tradesSheet, positionsSheet, eventsSheet} {
		if _, err := fx.NewSheet(s); err != nil {
			return err
		}
	}

	styles, err := r.createExcelStyles(fx)
	if err != nil {
		return err
	}

	if err := r.writeSummarySheet(fx, results, styles); err != nil {
		return err
	}
	if err := r.writeTradesSheet(fx, results, styles); err != nil {
		return err
	}
	if err := r.writePositionsSheet(fx, results, styles); err != nil {
		return err
	}
	if err := r.writeEventsSheet(fx, results, styles); err != nil {
		return err
	}
	return fx.SaveAs(path)
}

func (r *DefaultExcelReporter) createExcelStyles(fx *excelize.File) (ExcelStyles, error) {
	var styles ExcelStyles
	var err error

	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}

	// Dark slate header with white text
	styles.HeaderStyle, err = fx.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF", Family: "Calibri"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"2F4F4F"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    border,
	})
	if err != nil {
		return styles, err
	}

	styles.CurrencyStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt:    7, // $#,##0.00
		Alignment: &excelize.Alignment{Horizontal: "right"},
		Border:    border,
	})
	if err != nil {
		return styles, err
	}

	styles.RedCurrencyStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt:    7,
		Font:      &excelize.Font{Color: "C00000"},
		Alignment: &excelize.Alignment{Horizontal: "right"},
		Border:    border,
	})
	if err != nil {
		return styles, err
	}

	styles.GreenCurrencyStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt:    7,
		Font:      &excelize.Font{Color: "008000"},
		Alignment: &excelize.Alignment{Horizontal: "right"},
		Border:    border,
	})
	if err != nil {
		return styles, err
	}

	styles.PercentStyle, err = fx.NewStyle(&excelize.Style{
		NumFmt:    10, // 0.00%
		Alignment: &excelize.Alignment{Horizontal: "right"},
		Border:    border,
	})
	if err != nil {
		return styles, err
	}

	styles.BaseStyle, err = fx.NewStyle(&excelize.Style{Border: border})
	if err != nil {
		return styles, err
	}

	styles.TitleStyle, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 13, Color: "2F4F4F"},
	})
	return styles, err
}

func writeHeader(fx *excelize.File, sheet string, row int, headers []string, style int) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		fx.SetCellValue(sheet, cell, h)
		fx.SetCellStyle(sheet, cell, cell, style)
	}
}

func setCell(fx *excelize.File, sheet string, col, row int, v interface{}, style int) {
	cell, _ := excelize.CoordinatesToCellName(col, row)
	fx.SetCellValue(sheet, cell, v)
	fx.SetCellStyle(sheet, cell, cell, style)
}

func pnlStyle(v float64, styles ExcelStyles) int {
	if v < 0 {
		return styles.RedCurrencyStyle
	}
	return styles.GreenCurrencyStyle
}

// finiteOr keeps non-finite ratios out of cells
func finiteOr(v float64, alt string) interface{} {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return alt
	}
	return v
}

func (r *DefaultExcelReporter) writeSummarySheet(fx *excelize.File, results []backtest.Result, styles ExcelStyles) error {
	const sheet = summarySheet
	fx.SetCellValue(sheet, "A1", "PAPER RISK BACKTEST")
	fx.SetCellStyle(sheet, "A1", "A1", styles.TitleStyle)

	headers := []string{"Job", "Symbol", "Strategy", "Trades", "Win Rate", "Total P&L", "Return",
		"Max Drawdown", "Profit Factor", "Sharpe", "Fees", "Equity", "Status"}
	writeHeader(fx, sheet, 3, headers, styles.HeaderStyle)
	fx.SetColWidth(sheet, "A", "A", 38)
	fx.SetColWidth(sheet, "B", "L", 14)
	fx.SetColWidth(sheet, "M", "M", 30)

	for i, res := range results {
		row := i + 4
		s := res.Stats
		setCell(fx, sheet, 1, row, res.ID, styles.BaseStyle)
		setCell(fx, sheet, 2, row, res.Symbol, styles.BaseStyle)
		setCell(fx, sheet, 3, row, res.Strategy, styles.BaseStyle)
		setCell(fx, sheet, 4, row, s.TotalTrades, styles.BaseStyle)
		setCell(fx, sheet, 5, row, s.WinRate/100, styles.PercentStyle)
		setCell(fx, sheet, 6, row, s.TotalPnL, pnlStyle(s.TotalPnL, styles))
		setCell(fx, sheet, 7, row, s.ReturnPercent/100, styles.PercentStyle)
		setCell(fx, sheet, 8, row, s.MaxDrawdown, styles.PercentStyle)
		setCell(fx, sheet, 9, row, finiteOr(s.ProfitFactor, "inf"), styles.BaseStyle)
		setCell(fx, sheet, 10, row, finiteOr(s.SharpeRatio, "inf"), styles.BaseStyle)
		setCell(fx, sheet, 11, row, s.TotalFees, styles.CurrencyStyle)
		setCell(fx, sheet, 12, row, s.Equity, styles.CurrencyStyle)
		setCell(fx, sheet, 13, row, status(res), styles.BaseStyle)
	}
	return nil
}

func (r *DefaultExcelReporter) writeTradesSheet(fx *excelize.File, results []backtest.Result, styles ExcelStyles) error {
	const sheet = tradesSheet
	headers := []string{"Job", "Timestamp", "Symbol", "Side", "Type", "Price", "Quantity",
		"Value", "Fees", "Slippage", "Realized P&L", "Exit Reason", "Position"}
	writeHeader(fx, sheet, 1, headers, styles.HeaderStyle)
	fx.SetColWidth(sheet, "A", "A", 14)
	fx.SetColWidth(sheet, "B", "B", 18)
	fx.SetColWidth(sheet, "C", "L", 12)
	fx.SetColWidth(sheet, "M", "M", 38)

	row := 2
	for _, res := range results {
		for _, t := range res.Trades {
			kind := "OPEN"
			if t.IsClosing {
				kind = "CLOSE"
			}
			setCell(fx, sheet, 1, row, shortID(res.ID), styles.BaseStyle)
			setCell(fx, sheet, 2, row, t.Timestamp.Format("2006-01-02 15:04:05"), styles.BaseStyle)
			setCell(fx, sheet, 3, row, t.Symbol, styles.BaseStyle)
			setCell(fx, sheet, 4, row, string(t.Side), styles.BaseStyle)
			setCell(fx, sheet, 5, row, kind, styles.BaseStyle)
			setCell(fx, sheet, 6, row, t.Price, styles.CurrencyStyle)
			setCell(fx, sheet, 7, row, t.Quantity, styles.BaseStyle)
			setCell(fx, sheet, 8, row, t.TotalValue, styles.CurrencyStyle)
			setCell(fx, sheet, 9, row, t.Fees, styles.CurrencyStyle)
			setCell(fx, sheet, 10, row, t.Slippage, styles.CurrencyStyle)
			if t.IsClosing {
				setCell(fx, sheet, 11, row, t.RealizedPnL, pnlStyle(t.RealizedPnL, styles))
			} else {
				setCell(fx, sheet, 11, row, "", styles.BaseStyle)
			}
			setCell(fx, sheet, 12, row, t.ExitReason, styles.BaseStyle)
			setCell(fx, sheet, 13, row, t.PositionID, styles.BaseStyle)
			row++
		}
	}
	return nil
}

func (r *DefaultExcelReporter) writePositionsSheet(fx *excelize.File, results []backtest.Result, styles ExcelStyles) error {
	const sheet = positionsSheet
	headers := []string{"Job", "Position", "Symbol", "Side", "Opened", "Closed", "Entry", "Exit",
		"Quantity", "Stop Loss", "Stop Type", "Realized P&L", "Fees", "Exit Reason"}
	writeHeader(fx, sheet, 1, headers, styles.HeaderStyle)
	fx.SetColWidth(sheet, "A", "A", 14)
	fx.SetColWidth(sheet, "B", "B", 38)
	fx.SetColWidth(sheet, "C", "N", 14)

	row := 2
	for _, res := range results {
		for _, p := range res.Positions {
			setCell(fx, sheet, 1, row, shortID(res.ID), styles.BaseStyle)
			setCell(fx, sheet, 2, row, p.ID, styles.BaseStyle)
			setCell(fx, sheet, 3, row, p.Symbol, styles.BaseStyle)
			setCell(fx, sheet, 4, row, string(p.Side), styles.BaseStyle)
			setCell(fx, sheet, 5, row, p.OpenedAt.Format("2006-01-02 15:04"), styles.BaseStyle)
			setCell(fx, sheet, 6, row, p.ClosedAt.Format("2006-01-02 15:04"), styles.BaseStyle)
			setCell(fx, sheet, 7, row, p.EntryPrice, styles.CurrencyStyle)
			setCell(fx, sheet, 8, row, p.ExitPrice, styles.CurrencyStyle)
			setCell(fx, sheet, 9, row, p.Quantity, styles.BaseStyle)
			setCell(fx, sheet, 10, row, p.StopLoss, styles.CurrencyStyle)
			setCell(fx, sheet, 11, row, string(p.StopLossType), styles.BaseStyle)
			setCell(fx, sheet, 12, row, p.RealizedPnL, pnlStyle(p.RealizedPnL, styles))
			setCell(fx, sheet, 13, row, p.TotalFees, styles.CurrencyStyle)
			setCell(fx, sheet, 14, row, p.ExitReason, styles.BaseStyle)
			row++
		}
	}
	return nil
}

func (r *DefaultExcelReporter) writeEventsSheet(fx *excelize.File, results []backtest.Result, styles ExcelStyles) error {
	const sheet = eventsSheet
	writeHeader(fx, sheet, 1, []string{"Job", "Timestamp", "Type", "Severity", "Symbol", "Message"}, styles.HeaderStyle)
	fx.SetColWidth(sheet, "A", "E", 16)
	fx.SetColWidth(sheet, "F", "F", 80)

	row := 2
	for _, res := range results {
		for _, ev := range res.Events {
			setCell(fx, sheet, 1, row, shortID(res.ID), styles.BaseStyle)
			setCell(fx, sheet, 2, row, ev.Timestamp.Format("2006-01-02 15:04:05"), styles.BaseStyle)
			setCell(fx, sheet, 3, row, string(ev.Type), styles.BaseStyle)
			setCell(fx, sheet, 4, row, string(ev.Severity), styles.BaseStyle)
			setCell(fx, sheet, 5, row, ev.Symbol, styles.BaseStyle)
			setCell(fx, sheet, 6, row, ev.Message, styles.BaseStyle)
			row++
		}
	}
	return nil
}
