// Package notifications delivers risk and trade notifications to external
// sinks off the simulation's critical path.
package notifications

import (
	"context"
	"sync"
	"time"
)

// Level is the urgency of a notification
type Level string

const (
	LevelInfo     Level = "info"
	LevelSuccess  Level = "success"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Notification is one message for a sink
type Notification struct {
	Type      string                 `json:"type"`
	Level     Level                  `json:"level"`
	Message   string                 `json:"message"`
	Symbol    string                 `json:"symbol,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Sink delivers notifications. Delivery is best-effort and never required
// for correctness of the simulation.
type Sink interface {
	SendNotification(ctx context.Context, n Notification) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, n Notification) error

// SendNotification calls f
func (f SinkFunc) SendNotification(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// MemorySink keeps every notification it receives
type MemorySink struct {
	mu       sync.Mutex
	received []Notification
}

// NewMemorySink creates an empty MemorySink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// SendNotification records n
func (m *MemorySink) SendNotification(_ context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, n)
	return nil
}

// Received returns a copy of the recorded notifications
func (m *MemorySink) Received() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, len(m.received))
	copy(out, m.received)
	return out
}

// ByType returns the recorded notifications of type t
func (m *MemorySink) ByType(t string) []Notification {
	var out []Notification
	for _, n := range m.Received() {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}
