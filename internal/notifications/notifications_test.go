package notifications

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ducminhle1904/crypto-paper-risk/internal/logger"
	"github.com/ducminhle1904/crypto-paper-risk/internal/safety"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closeDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	sink := NewMemorySink()
	d := NewDispatcher(DefaultDispatcherConfig(), logger.Nop())
	d.AddSink("memory", sink)
	d.Start(context.Background())

	for _, typ := range []string{"position_opened", "take_profit_triggered", "position_closed"} {
		assert.True(t, d.Notify(Notification{Type: typ, Symbol: "BTCUSDT", Message: typ}))
	}
	closeDispatcher(t, d)

	received := sink.Received()
	require.Len(t, received, 3)
	assert.Equal(t, "position_opened", received[0].Type)
	assert.Equal(t, "position_closed", received[2].Type)
	assert.Equal(t, LevelInfo, received[0].Level)
	assert.False(t, received[0].Timestamp.IsZero())
	assert.Len(t, sink.ByType("take_profit_triggered"), 1)

	stats := d.Stats()
	assert.Equal(t, uint64(3), stats.Queued)
	assert.Equal(t, uint64(3), stats.Sent)
	assert.Zero(t, stats.Dropped)
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{QueueSize: 1}, logger.Nop())
	var dropped []string
	d.OnDrop(func(n Notification) { dropped = append(dropped, n.Type) })

	assert.True(t, d.Notify(Notification{Type: "first"}))
	assert.False(t, d.Notify(Notification{Type: "second"}))
	assert.Equal(t, []string{"second"}, dropped)
	assert.Equal(t, uint64(1), d.Stats().Dropped)
	assert.Equal(t, 1, d.Stats().Pending)
}

func TestDispatcher_NotifyAfterCloseIsDropped(t *testing.T) {
	d := NewDispatcher(DefaultDispatcherConfig(), logger.Nop())
	d.Start(context.Background())
	closeDispatcher(t, d)

	assert.False(t, d.Notify(Notification{Type: "late"}))
	assert.Equal(t, uint64(1), d.Stats().Dropped)
	closeDispatcher(t, d)
}

func TestDispatcher_FailingSinkOpensCircuit(t *testing.T) {
	cfg := DefaultDispatcherConfig()
	cfg.Breaker = safety.CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Hour}
	d := NewDispatcher(cfg, logger.Nop())

	calls := 0
	d.AddSink("broken", SinkFunc(func(context.Context, Notification) error {
		calls++
		return errors.New("unreachable")
	}))
	healthy := NewMemorySink()
	d.AddSink("memory", healthy)
	d.Start(context.Background())

	for i := 0; i < 3; i++ {
		d.Notify(Notification{Type: "risk_warning"})
	}
	closeDispatcher(t, d)

	assert.Equal(t, 1, calls)
	assert.Len(t, healthy.Received(), 3)
	stats := d.Stats()
	assert.Equal(t, uint64(3), stats.Failed)
	assert.Equal(t, uint64(3), stats.Sent)
	require.Len(t, stats.Breakers, 2)
	assert.Equal(t, gobreaker.StateOpen.String(), stats.Breakers[0].State)
	assert.Equal(t, uint64(2), stats.Breakers[0].Rejected)
}

func TestDispatcher_RateLimitSkipsSink(t *testing.T) {
	cfg := DefaultDispatcherConfig()
	cfg.RatePerSecond = 0.0001
	cfg.Burst = 1
	d := NewDispatcher(cfg, logger.Nop())
	sink := NewMemorySink()
	d.AddSink("memory", sink)
	d.Start(context.Background())

	d.Notify(Notification{Type: "a"})
	d.Notify(Notification{Type: "b"})
	closeDispatcher(t, d)

	assert.Len(t, sink.Received(), 1)
	assert.Equal(t, uint64(1), d.Stats().Limited)
}

func TestTelegramSink_PostsMessage(t *testing.T) {
	var gotPath, gotChat, gotText string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseForm())
		gotChat = r.PostForm.Get("chat_id")
		gotText = r.PostForm.Get("text")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewTelegramSink("TOKEN", "42").WithBaseURL(server.URL)
	err := sink.SendNotification(context.Background(), Notification{
		Type:    "stop_loss_triggered",
		Level:   LevelWarning,
		Symbol:  "BTCUSDT",
		Message: "stop-loss hit at 49000",
	})
	require.NoError(t, err)

	assert.Equal(t, "/botTOKEN/sendMessage", gotPath)
	assert.Equal(t, "42", gotChat)
	assert.Contains(t, gotText, "stop-loss hit at 49000")
	assert.Contains(t, gotText, "BTCUSDT")
	assert.Contains(t, gotText, "⚠️")
}

func TestTelegramSink_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	err := NewTelegramSink("T", "1").WithBaseURL(server.URL).SendNotification(context.Background(), Notification{Message: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestLogSink_WritesLevel(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(logger.NewWriterLogger(&buf, "notify"))

	require.NoError(t, sink.SendNotification(context.Background(), Notification{Type: "drawdown_breached", Level: LevelCritical, Message: "drawdown 12%"}))
	assert.Contains(t, buf.String(), "CRITICAL")
	assert.Contains(t, buf.String(), "drawdown 12%")
}
