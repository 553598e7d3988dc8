// Package notify sends rate-limited Telegram notifications.
package notify

import (
	"log/slog"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const rateWindow = time.Hour

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier is a fire-and-forget message dispatcher with a rolling hourly
// send quota shared across all chats. At capacity, messages are dropped
// rather than queued; transport failures are reported, never retried.
type Notifier struct {
	api   telegramAPI
	log   *slog.Logger
	limit int
	now   func() time.Time

	mu          sync.Mutex
	sent        int
	windowStart time.Time
}

// New creates a Notifier capped at maxPerHour confirmed sends per hour.
func New(api telegramAPI, maxPerHour int, log *slog.Logger) *Notifier {
	return &Notifier{
		api:   api,
		log:   log,
		limit: maxPerHour,
		now:   time.Now,
	}
}

// Send delivers a Markdown message to the given chat. It returns false when
// the hourly quota is exhausted or the transport fails; only confirmed sends
// count against the quota.
func (n *Notifier) Send(chatID int64, text string) bool {
	if !n.allow() {
		n.log.Warn("notification rate limit reached, message dropped", "chat_id", chatID)
		return false
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true
	if _, err := n.api.Send(msg); err != nil {
		n.log.Error("send message", "chat_id", chatID, "error", err)
		return false
	}

	n.mu.Lock()
	n.sent++
	n.mu.Unlock()
	return true
}

// allow resets the window when it has elapsed and reports whether another
// send may be attempted.
func (n *Notifier) allow() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	if now.Sub(n.windowStart) > rateWindow {
		n.sent = 0
		n.windowStart = now
	}
	return n.sent < n.limit
}
