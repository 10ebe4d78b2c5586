// Package events keeps a bounded, append-only history of risk events.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type tags a risk event
type Type string

const (
	PositionOpened        Type = "position_opened"
	PositionClosed        Type = "position_closed"
	PositionPartialClosed Type = "position_partially_closed"
	StopLossTriggered     Type = "stop_loss_triggered"
	TakeProfitTriggered   Type = "take_profit_triggered"
	TrailingStopUpdated   Type = "trailing_stop_updated"
	TimeExit              Type = "time_exit"
	LimitRejected         Type = "limit_rejected"
	CorrelationRejected   Type = "correlation_rejected"
	DailyLossHalt         Type = "daily_loss_halt"
	DrawdownBreached      Type = "drawdown_breached"
	RiskWarning           Type = "risk_warning"
	OrderRejected         Type = "order_rejected"
	InvariantViolation    Type = "invariant_violation"
	ConfigUpdated         Type = "config_updated"
)

// Severity of a risk event
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// RiskEvent is one immutable entry of the log
type RiskEvent struct {
	ID         string                 `json:"id"`
	Type       Type                   `json:"type"`
	Severity   Severity               `json:"severity"`
	Timestamp  time.Time              `json:"timestamp"`
	PositionID string                 `json:"position_id,omitempty"`
	Symbol     string                 `json:"symbol,omitempty"`
	Message    string                 `json:"message"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// DefaultLimit is the capacity used when NewLog is given a non-positive limit
const DefaultLimit = 1000

// Log is a ring buffer of risk events; the oldest entry is evicted first.
// Safe for concurrent use.
type Log struct {
	mu      sync.RWMutex
	buf     []RiskEvent
	start   int
	size    int
	evicted int
	now     func() time.Time
}

// NewLog creates a log holding at most limit events
func NewLog(limit int) *Log {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Log{buf: make([]RiskEvent, limit), now: time.Now}
}

// Append stores ev, filling in ID, Timestamp and Severity when empty, and
// returns the stored copy.
func (l *Log) Append(ev RiskEvent) RiskEvent {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Severity == "" {
		ev.Severity = SeverityInfo
	}
	if len(ev.Data) > 0 {
		data := make(map[string]interface{}, len(ev.Data))
		for k, v := range ev.Data {
			data[k] = v
		}
		ev.Data = data
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if ev.Timestamp.IsZero() {
		ev.Timestamp = l.now()
	}

	capacity := len(l.buf)
	if l.size < capacity {
		l.buf[(l.start+l.size)%capacity] = ev
		l.size++
	} else {
		l.buf[l.start] = ev
		l.start = (l.start + 1) % capacity
		l.evicted++
	}
	return ev
}

// Len returns the number of stored events
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// Capacity returns the maximum number of stored events
func (l *Log) Capacity() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buf)
}

// Evicted returns how many events were dropped to make room
func (l *Log) Evicted() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.evicted
}

// SetLimit resizes the log, keeping the newest events
func (l *Log) SetLimit(limit int) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if limit == len(l.buf) {
		return
	}
	all := l.filterLocked(nil)
	if len(all) > limit {
		l.evicted += len(all) - limit
		all = all[len(all)-limit:]
	}
	buf := make([]RiskEvent, limit)
	copy(buf, all)
	l.buf, l.start, l.size = buf, 0, len(all)
}

// filterLocked returns matching events oldest first
func (l *Log) filterLocked(keep func(RiskEvent) bool) []RiskEvent {
	out := make([]RiskEvent, 0, l.size)
	for i := 0; i < l.size; i++ {
		ev := l.buf[(l.start+i)%len(l.buf)]
		if keep == nil || keep(ev) {
			out = append(out, ev)
		}
	}
	return out
}

func (l *Log) filter(keep func(RiskEvent) bool) []RiskEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.filterLocked(keep)
}

// All returns every stored event, oldest first
func (l *Log) All() []RiskEvent {
	return l.filter(nil)
}

// Recent returns the newest limit events, oldest first. limit <= 0 returns all.
func (l *Log) Recent(limit int) []RiskEvent {
	all := l.filter(nil)
	if limit > 0 && len(all) > limit {
		return all[len(all)-limit:]
	}
	return all
}

// ByType returns events of type t
func (l *Log) ByType(t Type) []RiskEvent {
	return l.filter(func(ev RiskEvent) bool { return ev.Type == t })
}

// BySymbol returns events for symbol
func (l *Log) BySymbol(symbol string) []RiskEvent {
	return l.filter(func(ev RiskEvent) bool { return ev.Symbol == symbol })
}

// ByPosition returns events for a position
func (l *Log) ByPosition(positionID string) []RiskEvent {
	return l.filter(func(ev RiskEvent) bool { return ev.PositionID == positionID })
}

// Between returns events with from <= timestamp < to
func (l *Log) Between(from, to time.Time) []RiskEvent {
	return l.filter(func(ev RiskEvent) bool {
		return !ev.Timestamp.Before(from) && ev.Timestamp.Before(to)
	})
}

// CountByType tallies stored events per type
func (l *Log) CountByType() map[Type]int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	counts := make(map[Type]int)
	for i := 0; i < l.size; i++ {
		counts[l.buf[(l.start+i)%len(l.buf)].Type]++
	}
	return counts
}

// Clear drops every stored event
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = make([]RiskEvent, len(l.buf))
	l.start, l.size = 0, 0
}

// MarshalJSON encodes the stored events as a JSON array, oldest first
func (l *Log) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.All())
}

// Restore replaces the log content with events, keeping the newest that fit
func (l *Log) Restore(events []RiskEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(events) > len(l.buf) {
		events = events[len(events)-len(l.buf):]
	}
	buf := make([]RiskEvent, len(l.buf))
	copy(buf, events)
	l.buf, l.start, l.size = buf, 0, len(events)
}
