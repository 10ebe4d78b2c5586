package monitoring

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandler_ExposesPaperMetrics(t *testing.T) {
	RecordTrade("BTCUSDT", "buy", false, 5002.5)
	RecordOrderRejected("INSUFFICIENT_FUNDS")
	UpdateAccount("test", 9992.5, 0.01, 1)
	UpdatePrice("BTCUSDT", 50000)
	RecordRiskRejection("max_positions")
	RecordRiskEvent("position_opened", "info")
	RecordNotificationDropped()
	RecordError("INVARIANT_VIOLATION")

	rec := httptest.NewRecorder()
	NewMetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	for _, name := range []string{
		`paper_trades_total{closing="false",side="buy",symbol="BTCUSDT"}`,
		`paper_orders_rejected_total{code="INSUFFICIENT_FUNDS"}`,
		`paper_equity{account="test"} 9992.5`,
		`paper_open_positions{account="test"} 1`,
		`risk_rejections_total{limit="max_positions"}`,
		`risk_events_total{severity="info",type="position_opened"}`,
		"notifications_dropped_total",
		`paper_errors_total{code="INVARIANT_VIOLATION"}`,
	} {
		assert.Contains(t, string(body), name)
	}
}

func TestHealthChecker_States(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	h := NewHealthChecker(time.Minute)
	h.now = func() time.Time { return now }

	assert.Equal(t, "degraded", h.Status().Status, "no tick yet")

	h.RecordTick("BTCUSDT", 50000)
	assert.Equal(t, "healthy", h.Status().Status)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, "degraded", h.Status().Status, "stale data")

	h.RecordTick("BTCUSDT", 50100)
	h.SetRiskState(true, false)
	assert.Equal(t, "degraded", h.Status().Status)

	h.SetRiskState(false, true)
	assert.Equal(t, "unhealthy", h.Status().Status)

	h.SetRiskState(false, false)
	h.RecordError("snapshot save failed")
	assert.Equal(t, "unhealthy", h.Status().Status)
	h.ClearErrors()
	assert.Equal(t, "healthy", h.Status().Status)
}

func TestHealthChecker_ServeHTTP(t *testing.T) {
	h := NewHealthChecker(time.Hour)
	h.RecordTick("ETHUSDT", 2500)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var status HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "ETHUSDT", status.LastSymbol)
	assert.Equal(t, 2500.0, status.LastPrice)

	h.RecordError("boom")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
