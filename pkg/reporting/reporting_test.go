package reporting

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ducminhle1904/crypto-paper-risk/internal/backtest"
	"github.com/ducminhle1904/crypto-paper-risk/internal/config"
	"github.com/ducminhle1904/crypto-paper-risk/internal/paper"
	"github.com/ducminhle1904/crypto-paper-risk/pkg/types"
)

func winningResult(t *testing.T) backtest.Result {
	t.Helper()
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]types.OHLCV, 30)
	for i := range candles {
		c := 100 + float64(i)
		candles[i] = types.OHLCV{Timestamp: start.Add(time.Duration(i) * time.Hour), Open: c - 1, High: c + 0.1, Low: c - 1.1, Close: c, Volume: 1000}
	}
	res := backtest.Run(context.Background(), backtest.Job{
		ID:         "job-1",
		Symbol:     "BTCUSDT",
		Candles:    candles,
		Ledger:     paper.LedgerConfig{InitialBalance: 10000},
		Risk:       config.DefaultRiskConfig(),
		Strategy:   backtest.EveryN{N: 3, Side: types.Long},
		CloseAtEnd: true,
	}, nil)
	require.NoError(t, res.Error)
	require.NotEmpty(t, res.Positions)
	return res
}

func TestConsoleReporter_Render(t *testing.T) {
	res := winningResult(t)
	var buf bytes.Buffer
	r := NewDefaultConsoleReporter()
	r.RenderSummary(&buf, []backtest.Result{res})
	r.RenderResult(&buf, res)

	out := buf.String()
	assert.Contains(t, out, "BACKTEST SUMMARY")
	assert.Contains(t, out, "every_3_long")
	assert.Contains(t, out, "inf", "no losing trades gives an infinite profit factor")
	assert.Contains(t, out, paper.ExitReasonTakeProfit)
}

func TestExcelReporter_WriteWorkbook(t *testing.T) {
	res := winningResult(t)
	path := filepath.Join(t.TempDir(), "out", "report.xlsx")
	require.NoError(t, NewDefaultExcelReporter().WriteWorkbook([]backtest.Result{res}, path))

	fx, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer fx.Close()

	assert.Equal(t, []string{summarySheet, tradesSheet, positionsSheet, eventsSheet}, fx.GetSheetList())

	id, err := fx.GetCellValue(summarySheet, "A4")
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)
	pf, err := fx.GetCellValue(summarySheet, "I4")
	require.NoError(t, err)
	assert.Equal(t, "inf", pf)

	rows, err := fx.GetRows(positionsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1+len(res.Positions))

	rows, err = fx.GetRows(tradesSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1+len(res.Trades))
}

func TestCSVReporter_WriteTradesCSV(t *testing.T) {
	res := winningResult(t)
	path := filepath.Join(t.TempDir(), "trades.csv")
	require.NoError(t, WriteTradesCSV([]backtest.Result{res}, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 1+len(res.Trades)+1)
	assert.Equal(t, "Job", records[0][0])
	assert.Equal(t, "SUMMARY", records[len(records)-1][0])
}

func TestReportingManager_WritesEnabledOutputs(t *testing.T) {
	res := winningResult(t)
	dir := t.TempDir()
	m := NewReportingManager(ReportingConfig{
		EnableConsole:   true,
		OutputDirectory: dir,
		ExcelEnabled:    true,
		CSVEnabled:      true,
		JSONEnabled:     true,
	})

	var buf bytes.Buffer
	written, err := m.ReportResults(&buf, []backtest.Result{res})
	require.NoError(t, err)
	assert.Len(t, written, 3)
	assert.NotEmpty(t, buf.String())

	data, err := os.ReadFile(filepath.Join(dir, "results.json"))
	require.NoError(t, err)
	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 1)
	stats := decoded[0]["stats"].(map[string]interface{})
	assert.Nil(t, stats["profit_factor"])
	assert.Equal(t, "job-1", decoded[0]["id"])
}

func TestDefaultOutputDir(t *testing.T) {
	assert.Equal(t, filepath.Join("results", "BTCUSDT_breakout_20"), DefaultOutputDir("btcusdt", "Breakout_20"))
	assert.Equal(t, filepath.Join("results", "UNKNOWN_unknown"), DefaultOutputDir("", ""))
}
