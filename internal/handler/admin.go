package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/gigs/internal/telegram"
)

func (h *Handler) handleCredit(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, chatID, ok := command(ctx, update)
	if !ok || !user.IsAdmin {
		return
	}

	// /credit <telegram id> <amount>
	args := commandArgs(update.Message.Text)
	if len(args) < 2 {
		telegram.SendText(ctx, b, chatID, "Usage: /credit <telegram id> <amount>")
		return
	}
	telegramID, err := parseID(args[0])
	if err != nil {
		h.replyParseError(ctx, b, chatID, err)
		return
	}
	amount, err := parseAmount(args[1])
	if err != nil {
		h.replyParseError(ctx, b, chatID, err)
		return
	}

	target, err := h.userService.GetByTelegramID(ctx, telegramID)
	if err != nil {
		h.replyError(ctx, b, chatID, err, "admin.credit")
		return
	}
	balance, err := h.userService.Credit(ctx, target.ID, amount, fmt.Sprintf("Top-up by admin %d", user.TelegramID))
	if err != nil {
		h.replyError(ctx, b, chatID, err, "admin.credit")
		return
	}

	h.reply(ctx, b, chatID, fmt.Sprintf("✅ Credited $%s to `%d`. New balance: $%s",
		amount.StringFixed(2), telegramID, balance.StringFixed(2)))
	telegram.SendText(ctx, b, telegramID, fmt.Sprintf("💰 Your balance was topped up by $%s.", amount.StringFixed(2)))
}

func (h *Handler) handleSagas(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, chatID, ok := command(ctx, update)
	if !ok || !user.IsAdmin {
		return
	}

	if strings.Contains(update.Message.Text, "replay") {
		n, err := h.sagas.Replay(ctx)
		if err != nil {
			h.replyError(ctx, b, chatID, err, "saga.replay")
			return
		}
		h.reply(ctx, b, chatID, fmt.Sprintf("🔁 Replay resolved %d saga(s).", n))
	}

	open, err := h.sagas.Open(ctx)
	if err != nil {
		h.replyError(ctx, b, chatID, err, "saga.list")
		return
	}
	if len(open) == 0 {
		h.reply(ctx, b, chatID, "No open sagas.")
		return
	}

	var sb strings.Builder
	sb.WriteString("🧾 *Open sagas*\n")
	for _, s := range open {
		fmt.Fprintf(&sb, "\n`%s` %s task #%d runner %d · %s/%s · attempts %d · %s ago",
			s.ID.String()[:8], s.Kind, s.TaskID, s.RunnerID, s.Status, s.Step, s.Attempts,
			time.Since(s.UpdatedAt).Truncate(time.Second))
		if s.LastError != "" {
			fmt.Fprintf(&sb, "\n    `%s`", s.LastError)
		}
	}
	h.reply(ctx, b, chatID, sb.String())
}
