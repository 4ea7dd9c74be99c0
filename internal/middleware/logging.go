package middleware

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/gigs/internal/config"
)

// Logging returns middleware that logs which command or callback an update
// carried and how long its handler took.
func Logging() bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			start := time.Now()
			next(ctx, b, update)
			elapsed := time.Since(start)

			attrs := append(describeUpdate(update), "duration", elapsed)
			if elapsed > config.SlowUpdateThreshold {
				slog.Warn("slow update", attrs...)
				return
			}
			slog.Debug("update processed", attrs...)
		}
	}
}

func describeUpdate(update *models.Update) []any {
	switch {
	case update.Message != nil:
		var userID int64
		if update.Message.From != nil {
			userID = update.Message.From.ID
		}
		return []any{
			"type", "message",
			"action", commandName(update.Message.Text),
			"chat_id", update.Message.Chat.ID,
			"user_id", userID,
		}
	case update.CallbackQuery != nil:
		var chatID int64
		if update.CallbackQuery.Message.Message != nil {
			chatID = update.CallbackQuery.Message.Message.Chat.ID
		}
		return []any{
			"type", "callback_query",
			"action", callbackPrefix(update.CallbackQuery.Data),
			"chat_id", chatID,
			"user_id", update.CallbackQuery.From.ID,
		}
	}
	return []any{"type", "unknown"}
}

// commandName keeps only the command, never user-supplied arguments.
func commandName(text string) string {
	if !strings.HasPrefix(text, "/") {
		return "text"
	}
	name, _, _ := strings.Cut(text, " ")
	name, _, _ = strings.Cut(name, "@")
	if i := strings.IndexByte(name, '_'); i > 0 {
		name = name[:i]
	}
	return name
}

func callbackPrefix(data string) string {
	if i := strings.IndexByte(data, '_'); i > 0 {
		return data[:i]
	}
	return data
}
