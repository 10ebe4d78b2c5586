package notifications

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"github.com/ducminhle1904/crypto-paper-risk/internal/logger"
	"github.com/ducminhle1904/crypto-paper-risk/internal/safety"
)

// DispatcherConfig tunes the queue and the per-sink guards
type DispatcherConfig struct {
	QueueSize   int
	SendTimeout time.Duration
	Breaker     safety.CircuitBreakerConfig
	// RatePerSecond limits deliveries per sink. Zero disables the limit.
	RatePerSecond float64
	Burst         int
}

// DefaultDispatcherConfig returns a 256 message queue with 5s sends
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		QueueSize:   256,
		SendTimeout: 5 * time.Second,
		Breaker:     safety.DefaultCircuitBreakerConfig(),
	}
}

type namedSink struct {
	name    string
	sink    Sink
	breaker *safety.CircuitBreaker
	limiter *safety.RateLimiter
}

// Dispatcher queues notifications and delivers them from one worker
// goroutine. Notify never blocks: a full queue drops the notification.
type Dispatcher struct {
	cfg    DispatcherConfig
	logger *logger.Logger
	sinks  []*namedSink

	mu     sync.RWMutex
	queue  chan Notification
	closed bool
	wg     sync.WaitGroup
	start  sync.Once

	queued  atomic.Uint64
	sent    atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
	limited atomic.Uint64

	onDrop func(Notification)
}

// DispatcherStats counts what the dispatcher did
type DispatcherStats struct {
	Queued   uint64                       `json:"queued"`
	Sent     uint64                       `json:"sent"`
	Failed   uint64                       `json:"failed"`
	Dropped  uint64                       `json:"dropped"`
	Limited  uint64                       `json:"limited"`
	Pending  int                          `json:"pending"`
	Breakers []safety.CircuitBreakerStats `json:"breakers"`
}

// NewDispatcher creates a dispatcher. Call Start before notifying.
func NewDispatcher(cfg DispatcherConfig, log *logger.Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultDispatcherConfig().QueueSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultDispatcherConfig().SendTimeout
	}
	return &Dispatcher{
		cfg:    cfg,
		logger: log,
		queue:  make(chan Notification, cfg.QueueSize),
	}
}

// AddSink registers a named sink. Sinks must be added before Start.
func (d *Dispatcher) AddSink(name string, s Sink) {
	ns := &namedSink{
		name:    name,
		sink:    s,
		breaker: safety.NewCircuitBreaker("notify-"+name, d.cfg.Breaker),
	}
	ns.breaker.SetStateChangeCallback(func(name string, from, to gobreaker.State) {
		d.logger.LogWarning("Notification Sink", "%s circuit %s -> %s", name, from, to)
	})
	if d.cfg.RatePerSecond > 0 {
		burst := d.cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		ns.limiter = safety.NewRateLimiter("notify-"+name, burst, d.cfg.RatePerSecond)
	}
	d.sinks = append(d.sinks, ns)
}

// OnDrop registers a hook called for every dropped notification
func (d *Dispatcher) OnDrop(fn func(Notification)) {
	d.onDrop = fn
}

// Start launches the delivery worker. It stops when ctx is done or Close is called.
func (d *Dispatcher) Start(ctx context.Context) {
	d.start.Do(func() {
		d.wg.Add(1)
		go d.run(ctx)
	})
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-d.queue:
			if !ok {
				return
			}
			d.deliver(ctx, n)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n Notification) {
	for _, s := range d.sinks {
		if s.limiter != nil && !s.limiter.Allow() {
			d.limited.Add(1)
			continue
		}
		err := s.breaker.Call(func() error {
			sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
			defer cancel()
			return s.sink.SendNotification(sendCtx, n)
		})
		if err != nil {
			d.failed.Add(1)
			d.logger.LogError(fmt.Sprintf("Notification via %s", s.name), err)
			continue
		}
		d.sent.Add(1)
	}
}

// Notify queues n without blocking. It returns false when n was dropped.
func (d *Dispatcher) Notify(n Notification) bool {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	if n.Level == "" {
		n.Level = LevelInfo
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(n)
		return false
	}

	select {
	case d.queue <- n:
		d.queued.Add(1)
		return true
	default:
		d.drop(n)
		return false
	}
}

func (d *Dispatcher) drop(n Notification) {
	d.dropped.Add(1)
	if d.onDrop != nil {
		d.onDrop(n)
	}
}

// Close stops accepting notifications and waits until the queue is drained
// or ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns delivery counters
func (d *Dispatcher) Stats() DispatcherStats {
	stats := DispatcherStats{
		Queued:  d.queued.Load(),
		Sent:    d.sent.Load(),
		Failed:  d.failed.Load(),
		Dropped: d.dropped.Load(),
		Limited: d.limited.Load(),
		Pending: len(d.queue),
	}
	for _, s := range d.sinks {
		stats.Breakers = append(stats.Breakers, s.breaker.Stats())
	}
	return stats
}
