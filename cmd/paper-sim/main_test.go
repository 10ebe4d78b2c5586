package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ducminhle1904/crypto-paper-risk/internal/backtest"
	"github.com/ducminhle1904/crypto-paper-risk/internal/config"
	"github.com/ducminhle1904/crypto-paper-risk/internal/logger"
	"github.com/ducminhle1904/crypto-paper-risk/internal/monitoring"
	"github.com/ducminhle1904/crypto-paper-risk/internal/paper"
	"github.com/ducminhle1904/crypto-paper-risk/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildStrategies(t *testing.T) {
	got, err := buildStrategies("breakout", []int{10, 20}, true)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, backtest.Breakout{Lookback: 10, AllowShort: true}, got[0])
	assert.Equal(t, "breakout_20", got[1].Name())

	got, err = buildStrategies("every", []int{5}, true)
	require.NoError(t, err)
	assert.Equal(t, backtest.EveryN{N: 5, Side: types.Short}, got[0])

	_, err = buildStrategies("breakout", nil, false)
	assert.Error(t, err)
	_, err = buildStrategies("breakout", []int{0}, false)
	assert.Error(t, err)
	_, err = buildStrategies("grid", []int{5}, false)
	assert.Error(t, err)
}

func TestValidateRunOptions(t *testing.T) {
	opts := runOptions{Strategy: "breakout", Symbol: "BTCUSDT", Workers: 4, Lookbacks: []int{20}}
	assert.NoError(t, validateRunOptions(opts))

	bad := opts
	bad.Strategy = "grid"
	bad.Workers = 0
	bad.Period = "soon"
	err := validateRunOptions(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strategy must be one of")
	assert.Contains(t, err.Error(), "workers must be between")
	assert.Contains(t, err.Error(), `invalid period "soon"`)

	serve := opts
	serve.Serve = true
	assert.Error(t, validateRunOptions(serve))

	with := opts
	with.Companions = []string{"ETHUSDT", "btcusdt"}
	err = validateRunOptions(with)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--with repeats the primary symbol")
}

func TestBuildJobs(t *testing.T) {
	app := &config.AppConfig{}
	app.Account.ID = "paper"
	app.Account.InitialBalance = 5000
	app.Execution.TakerFeeRate = 0.002
	app.Execution.MaxVolumeParticipation = 0.5

	candles := []types.OHLCV{{Timestamp: time.Unix(0, 0), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1}}
	strategies := []backtest.Strategy{backtest.Breakout{Lookback: 20}, backtest.Breakout{Lookback: 50}}
	companions := map[string][]types.OHLCV{"ETHUSDT": candles}
	jobs := buildJobs(app, config.DefaultRiskConfig(), runOptions{Symbol: "btcusdt", KeepOpen: true}, candles, companions, strategies)

	require.Len(t, jobs, 2)
	assert.Equal(t, "paper-btcusdt-breakout_20", jobs[0].ID)
	assert.Equal(t, "BTCUSDT", jobs[0].Symbol)
	assert.Equal(t, paper.LedgerConfig{InitialBalance: 5000, TakerFeeRate: 0.002}, jobs[0].Ledger)
	assert.Equal(t, 0.5, jobs[1].MaxVolumeParticipation)
	assert.False(t, jobs[1].CloseAtEnd)
	assert.Equal(t, companions, jobs[1].Companions)
}

func TestMetricsServerRoutes(t *testing.T) {
	health := monitoring.NewHealthChecker(time.Minute)
	health.RecordTick("BTCUSDT", 50000)
	srv := newMetricsServer("127.0.0.1:0", health, logger.Nop())

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"last_symbol":"BTCUSDT"`)
	assert.Len(t, rec.Header().Get("X-Request-ID"), 8)

	rec = httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRiskConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "risk.yaml")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"risk-config", "init", path})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "wrote "+path)

	out.Reset()
	rootCmd.SetArgs([]string{"risk-config", "show", path})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "max_drawdown_percent:")
}

func TestRenderAccount(t *testing.T) {
	account, err := paper.NewAccount(paper.Config{ID: "ACCT", Ledger: paper.DefaultLedgerConfig()}, nil)
	require.NoError(t, err)

	var out bytes.Buffer
	renderAccount(&out, account.Snapshot())
	assert.Contains(t, out.String(), "ACCOUNT ACCT")
	assert.Contains(t, out.String(), "$10000.00")
	assert.NotContains(t, out.String(), "OPEN POSITIONS")
}
