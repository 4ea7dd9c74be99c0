package middleware

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/gigs/internal/config"
)

// RateCounter counts messages per chat in the current window.
type RateCounter interface {
	CheckAndIncrement(ctx context.Context, chatID int64) (int, error)
}

// RateLimit returns middleware that enforces per-minute rate limits.
func RateLimit(counter RateCounter) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			// Only rate limit messages (not callbacks or other updates)
			if update.Message == nil {
				next(ctx, b, update)
				return
			}

			chatID := update.Message.Chat.ID

			count, err := counter.CheckAndIncrement(ctx, chatID)
			if err != nil {
				slog.Error("rate limit check failed", "error", err, "chat_id", chatID)
				next(ctx, b, update)
				return
			}

			if count > config.RateLimitRegular {
				slog.Debug("rate limited", "chat_id", chatID, "count", count, "limit", config.RateLimitRegular)
				b.SendMessage(ctx, &bot.SendMessageParams{
					ChatID: chatID,
					Text:   "⏳ Too many requests. Please wait a minute.",
				})
				return
			}

			next(ctx, b, update)
		}
	}
}
