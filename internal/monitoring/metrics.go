package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Trading metrics
	tradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paper_trades_total",
			Help: "Total number of simulated fills",
		},
		[]string{"symbol", "side", "closing"},
	)

	tradeNotional = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "paper_trade_notional",
			Help:    "Distribution of fill notional values",
			Buckets: prometheus.ExponentialBuckets(10, 4, 8),
		},
		[]string{"symbol"},
	)

	ordersRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paper_orders_rejected_total",
			Help: "Orders rejected at placement or fill",
		},
		[]string{"code"},
	)

	// Account metrics
	equity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "paper_equity",
			Help: "Account equity (cash plus unrealized P&L)",
		},
		[]string{"account"},
	)

	drawdownRatio = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "paper_drawdown_ratio",
			Help: "Drawdown from peak equity as a fraction",
		},
		[]string{"account"},
	)

	openPositions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "paper_open_positions",
			Help: "Number of open positions",
		},
		[]string{"account"},
	)

	// Market data metrics
	currentPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "paper_current_price",
			Help: "Last tick price of a symbol",
		},
		[]string{"symbol"},
	)

	// Risk metrics
	riskRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_rejections_total",
			Help: "New positions rejected by risk limits",
		},
		[]string{"limit"},
	)

	riskEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_events_total",
			Help: "Risk events recorded",
		},
		[]string{"type", "severity"},
	)

	notificationsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_dropped_total",
			Help: "Notifications dropped because the queue was full or closed",
		},
	)

	// Error metrics
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paper_errors_total",
			Help: "Total number of errors",
		},
		[]string{"code"},
	)
)

func init() {
	prometheus.MustRegister(tradesTotal)
	prometheus.MustRegister(tradeNotional)
	prometheus.MustRegister(ordersRejected)
	prometheus.MustRegister(equity)
	prometheus.MustRegister(drawdownRatio)
	prometheus.MustRegister(openPositions)
	prometheus.MustRegister(currentPrice)
	prometheus.MustRegister(riskRejections)
	prometheus.MustRegister(riskEvents)
	prometheus.MustRegister(notificationsDropped)
	prometheus.MustRegister(errorsTotal)
}

// MetricsHandler handles Prometheus metrics endpoint
type MetricsHandler struct {
	handler http.Handler
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{handler: promhttp.Handler()}
}

// ServeHTTP serves the Prometheus metrics endpoint
func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.handler.ServeHTTP(w, r)
}

// RecordTrade records a fill
func RecordTrade(symbol, side string, closing bool, notional float64) {
	c := "false"
	if closing {
		c = "true"
	}
	tradesTotal.WithLabelValues(symbol, side, c).Inc()
	tradeNotional.WithLabelValues(symbol).Observe(notional)
}

// RecordOrderRejected counts a rejected order by error code
func RecordOrderRejected(code string) {
	ordersRejected.WithLabelValues(code).Inc()
}

// UpdateAccount publishes an account's equity, drawdown and open positions
func UpdateAccount(account string, eq, drawdown float64, open int) {
	equity.WithLabelValues(account).Set(eq)
	drawdownRatio.WithLabelValues(account).Set(drawdown)
	openPositions.WithLabelValues(account).Set(float64(open))
}

// UpdatePrice updates the current price metric
func UpdatePrice(symbol string, price float64) {
	currentPrice.WithLabelValues(symbol).Set(price)
}

// RecordRiskRejection counts a position rejected by the named limit
func RecordRiskRejection(limit string) {
	riskRejections.WithLabelValues(limit).Inc()
}

// RecordRiskEvent counts a risk event
func RecordRiskEvent(eventType, severity string) {
	riskEvents.WithLabelValues(eventType, severity).Inc()
}

// RecordNotificationDropped counts a dropped notification
func RecordNotificationDropped() {
	notificationsDropped.Inc()
}

// RecordError records an error metric
func RecordError(code string) {
	errorsTotal.WithLabelValues(code).Inc()
}
