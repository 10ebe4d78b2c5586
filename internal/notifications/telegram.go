package notifications

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const telegramAPI = "https://api.telegram.org"

// TelegramSink posts notifications to a Telegram chat through the Bot API
type TelegramSink struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
}

// NewTelegramSink creates a sink for the bot token and chat
func NewTelegramSink(token, chatID string) *TelegramSink {
	return &TelegramSink{
		token:   token,
		chatID:  chatID,
		baseURL: telegramAPI,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// WithBaseURL points the sink at another API host
func (t *TelegramSink) WithBaseURL(u string) *TelegramSink {
	t.baseURL = strings.TrimRight(u, "/")
	return t
}

// SendNotification posts n as a Markdown message
func (t *TelegramSink) SendNotification(ctx context.Context, n Notification) error {
	data := url.Values{}
	data.Set("chat_id", t.chatID)
	data.Set("text", FormatMessage(n))
	data.Set("parse_mode", "Markdown")

	apiURL := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	return nil
}

// FormatMessage renders a notification for chat delivery
func FormatMessage(n Notification) string {
	emoji := "ℹ️"
	switch n.Level {
	case LevelWarning:
		emoji = "⚠️"
	case LevelCritical:
		emoji = "🚨"
	case LevelSuccess:
		emoji = "✅"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *Paper Risk Alert*", emoji)
	if n.Symbol != "" {
		fmt.Fprintf(&b, " `%s`", n.Symbol)
	}
	fmt.Fprintf(&b, "\n\n%s", n.Message)
	if n.Type != "" {
		fmt.Fprintf(&b, "\n_%s_", n.Type)
	}
	return b.String()
}
