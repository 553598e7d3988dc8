// Package bot implements the Telegram command layer.
package bot

import (
	"context"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"wallbot/internal/config"
	"wallbot/internal/tracker"
)

type telegramAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Notifier is the interface for sending replies and notifications. Command
// replies go through the same gateway (and hourly quota) as tracking events.
type Notifier interface {
	Send(chatID int64, text string) bool
}

// Bot handles user commands and forwards them to the tracking engine.
type Bot struct {
	api      telegramAPI
	tracker  *tracker.Tracker
	notifier Notifier
	cfg      *config.Config
	log      *slog.Logger
}

// New creates a Bot on top of an existing Telegram API client.
func New(api telegramAPI, tr *tracker.Tracker, notifier Notifier, cfg *config.Config, log *slog.Logger) *Bot {
	return &Bot{
		api:      api,
		tracker:  tr,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
	}
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

func (b *Bot) reply(chatID int64, text string) {
	if !b.notifier.Send(chatID, text) {
		b.log.Warn("reply not delivered", "chat_id", chatID)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start", "help", "h":
		b.handleHelp(chatID)
	case "add", "a":
		b.handleAdd(ctx, chatID, args)
	case "del", "d":
		b.handleRemove(ctx, chatID, args)
	case "list", "lis", "l":
		b.handleList(ctx, chatID)
	case "stats":
		b.handleStats(ctx, chatID)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
