package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

const maxHealthErrors = 20

// HealthChecker reports whether a paper session is receiving data and trading
type HealthChecker struct {
	mu               sync.RWMutex
	started          time.Time
	staleAfter       time.Duration
	lastTick         time.Time
	lastSymbol       string
	lastPrice        float64
	halted           bool
	drawdownBreached bool
	errors           []string
	now              func() time.Time
}

type HealthStatus struct {
	Status           string    `json:"status"`
	Timestamp        time.Time `json:"timestamp"`
	LastTick         time.Time `json:"last_tick"`
	LastSymbol       string    `json:"last_symbol,omitempty"`
	LastPrice        float64   `json:"last_price"`
	Halted           bool      `json:"halted"`
	DrawdownBreached bool      `json:"drawdown_breached"`
	Uptime           string    `json:"uptime"`
	Errors           []string  `json:"errors,omitempty"`
}

// NewHealthChecker reports degraded once no tick arrived for staleAfter
func NewHealthChecker(staleAfter time.Duration) *HealthChecker {
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	return &HealthChecker{
		started:    time.Now(),
		staleAfter: staleAfter,
		errors:     make([]string, 0),
		now:        time.Now,
	}
}

// RecordTick notes market data arrival
func (h *HealthChecker) RecordTick(symbol string, price float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastTick = h.now()
	h.lastSymbol = symbol
	h.lastPrice = price
}

// SetRiskState records whether trading is halted or drawdown breached
func (h *HealthChecker) SetRiskState(halted, drawdownBreached bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.halted = halted
	h.drawdownBreached = drawdownBreached
}

// RecordError keeps the most recent error messages
func (h *HealthChecker) RecordError(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, msg)
	if len(h.errors) > maxHealthErrors {
		h.errors = h.errors[len(h.errors)-maxHealthErrors:]
	}
}

// ClearErrors forgets recorded errors
func (h *HealthChecker) ClearErrors() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = h.errors[:0]
}

// Status computes the current health
func (h *HealthChecker) Status() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := h.now()
	status := "healthy"
	if h.lastTick.IsZero() || now.Sub(h.lastTick) > h.staleAfter || h.halted {
		status = "degraded"
	}
	if len(h.errors) > 0 || h.drawdownBreached {
		status = "unhealthy"
	}

	errs := make([]string, len(h.errors))
	copy(errs, h.errors)
	return HealthStatus{
		Status:           status,
		Timestamp:        now,
		LastTick:         h.lastTick,
		LastSymbol:       h.lastSymbol,
		LastPrice:        h.lastPrice,
		Halted:           h.halted,
		DrawdownBreached: h.drawdownBreached,
		Uptime:           now.Sub(h.started).String(),
		Errors:           errs,
	}
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	health := h.Status()

	w.Header().Set("Content-Type", "application/json")
	switch health.Status {
	case "degraded":
		w.WriteHeader(http.StatusServiceUnavailable)
	case "unhealthy":
		w.WriteHeader(http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(health)
}
