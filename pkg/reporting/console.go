package reporting

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ducminhle1904/crypto-paper-risk/internal/backtest"
)

// DefaultConsoleReporter renders go-pretty tables
type DefaultConsoleReporter struct{}

// NewDefaultConsoleReporter creates a new console reporter
func NewDefaultConsoleReporter() *DefaultConsoleReporter {
	return &DefaultConsoleReporter{}
}

// RenderSummary writes one row per result
func (r *DefaultConsoleReporter) RenderSummary(w io.Writer, results []backtest.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("BACKTEST SUMMARY")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Job", "Strategy", "Trades", "Win %", "P&L", "Return %", "Max DD %", "Profit Factor", "Sharpe", "Status"})

	for _, res := range results {
		s := res.Stats
		t.AppendRow(table.Row{
			shortID(res.ID),
			res.Strategy,
			s.TotalTrades,
			fmt.Sprintf("%.1f", s.WinRate),
			money(s.TotalPnL),
			fmt.Sprintf("%.2f", s.ReturnPercent),
			fmt.Sprintf("%.2f", s.MaxDrawdown*100),
			ratio(s.ProfitFactor),
			ratio(s.SharpeRatio),
			status(res),
		})
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})
	t.Render()
}

// RenderResult writes the detail of one result and its closed positions
func (r *DefaultConsoleReporter) RenderResult(w io.Writer, res backtest.Result) {
	s := res.Stats
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("%s %s", res.Symbol, res.Strategy))
	t.SetStyle(table.StyleRounded)
	t.AppendRows([]table.Row{
		{"Initial Balance", money(s.InitialBalance)},
		{"Equity", money(s.Equity)},
		{"Total Return", fmt.Sprintf("%.2f%%", s.ReturnPercent)},
		{"Max Drawdown", fmt.Sprintf("%.2f%%", s.MaxDrawdown*100)},
		{"Trades", fmt.Sprintf("%d (%d won, %d lost, %d even)", s.TotalTrades, s.WinningTrades, s.LosingTrades, s.BreakevenTrades)},
		{"Win Rate", fmt.Sprintf("%.1f%%", s.WinRate)},
		{"Profit Factor", ratio(s.ProfitFactor)},
		{"Sharpe / Sortino", fmt.Sprintf("%s / %s", ratio(s.SharpeRatio), ratio(s.SortinoRatio))},
		{"Fees / Slippage", fmt.Sprintf("%s / %s", money(s.TotalFees), money(s.TotalSlippage))},
		{"Avg Holding", s.AvgHoldingTime.Round(time.Minute).String()},
		{"Signals", res.Signals},
		{"Skipped Candles", res.Skipped},
		{"Status", status(res)},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 25, Align: text.AlignLeft},
	})
	t.Render()

	if len(res.Positions) == 0 {
		return
	}
	pt := table.NewWriter()
	pt.SetOutputMirror(w)
	pt.SetStyle(table.StyleLight)
	pt.AppendHeader(table.Row{"Opened", "Side", "Entry", "Exit", "Qty", "P&L", "Reason"})
	for _, p := range res.Positions {
		pt.AppendRow(table.Row{
			p.OpenedAt.Format("2006-01-02 15:04"),
			p.Side,
			fmt.Sprintf("%.4f", p.EntryPrice),
			fmt.Sprintf("%.4f", p.ExitPrice),
			fmt.Sprintf("%.6f", p.Quantity),
			money(p.RealizedPnL),
			p.ExitReason,
		})
	}
	pt.Render()
}

func money(v float64) string {
	if v < 0 {
		return fmt.Sprintf("-$%.2f", -v)
	}
	return fmt.Sprintf("$%.2f", v)
}

func ratio(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "inf"
	case math.IsNaN(v):
		return "n/a"
	}
	return fmt.Sprintf("%.2f", v)
}

func status(res backtest.Result) string {
	switch {
	case res.Error != nil:
		return "error: " + res.Error.Error()
	case res.Halted:
		return "halted: " + res.HaltReason
	}
	return "ok"
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:8]
	}
	return id
}
