package handler

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/gigs/internal/domain"
	"github.com/set-night/gigs/internal/middleware"
	"github.com/set-night/gigs/internal/telegram"
)

// command returns the sender and chat of a private command message.
func command(ctx context.Context, update *models.Update) (*domain.User, int64, bool) {
	if update.Message == nil || update.Message.Chat.Type != models.ChatTypePrivate {
		return nil, 0, false
	}
	user := middleware.GetUser(ctx)
	if user == nil {
		return nil, 0, false
	}
	return user, update.Message.Chat.ID, true
}

// callback acknowledges the query and returns the sender and origin message.
func callback(ctx context.Context, b *bot.Bot, update *models.Update) (*domain.User, *models.Message, bool) {
	if update.CallbackQuery == nil {
		return nil, nil, false
	}
	b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: update.CallbackQuery.ID})

	user := middleware.GetUser(ctx)
	msg := update.CallbackQuery.Message.Message
	if user == nil || msg == nil {
		return nil, nil, false
	}
	return user, msg, true
}

func (h *Handler) reply(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	if err := telegram.SendLongMessage(ctx, b, chatID, text, nil); err != nil {
		slog.Error("failed to reply", "chat_id", chatID, "error", err)
	}
}

func (h *Handler) replyWithKeyboard(ctx context.Context, b *bot.Bot, chatID int64, text string, kb *models.InlineKeyboardMarkup) {
	var markup models.ReplyMarkup
	if kb != nil && len(kb.InlineKeyboard) > 0 {
		markup = kb
	}
	if err := telegram.SendLongMessage(ctx, b, chatID, text, markup); err != nil {
		slog.Error("failed to reply", "chat_id", chatID, "error", err)
	}
}

// replyError reports err to the user; untyped errors also go to the ops chat.
func (h *Handler) replyError(ctx context.Context, b *bot.Bot, chatID int64, err error, op string) {
	if domain.KindOf(err) == domain.KindInternal {
		slog.Error("command failed", "op", op, "chat_id", chatID, "error", err)
		h.opsLogger.LogError(err, op)
	} else {
		slog.Debug("command rejected", "op", op, "chat_id", chatID, "reason", domain.ReasonOf(err))
	}
	telegram.SendText(ctx, b, chatID, userMessage(err))
}
