package bot

import (
	"context"
	"fmt"

	"wallbot/internal/model"
)

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, helpText)
}

func (b *Bot) handleAdd(ctx context.Context, chatID int64, args string) {
	parsed, err := ParseAddArgs(args)
	if err != nil {
		b.reply(chatID, FormatError(fmt.Sprintf("%v\nUsage: /add keywords,min-max\nExample: /add red shoes,10-50", err)))
		return
	}

	search := model.NewSearch(chatID, parsed.Keywords)
	search.MinPrice = parsed.MinPrice
	search.MaxPrice = parsed.MaxPrice

	if err := b.tracker.AddSearch(ctx, search); err != nil {
		b.reply(chatID, FormatError(err.Error()))
		return
	}
	b.reply(chatID, FormatSearchAdded(search))
}

func (b *Bot) handleRemove(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /del keywords")
		return
	}

	ok, err := b.tracker.RemoveSearch(ctx, chatID, args)
	if err != nil {
		b.reply(chatID, FormatError("could not remove the search, try again later"))
		return
	}
	if !ok {
		b.reply(chatID, FormatError(fmt.Sprintf("no active search %q", args)))
		return
	}
	b.reply(chatID, FormatSearchRemoved(args))
}

func (b *Bot) handleList(ctx context.Context, chatID int64) {
	searches, err := b.tracker.UserSearches(ctx, chatID)
	if err != nil {
		b.reply(chatID, FormatError("could not load your searches, try again later"))
		return
	}
	b.reply(chatID, FormatSearchList(searches))
}

func (b *Bot) handleStats(ctx context.Context, chatID int64) {
	stats, err := b.tracker.GetStats(ctx)
	if err != nil {
		b.reply(chatID, FormatError("could not load stats, try again later"))
		return
	}
	b.reply(chatID, FormatStats(stats))
}
