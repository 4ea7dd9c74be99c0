package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/gigs/internal/config"
	"github.com/set-night/gigs/internal/telegram"
)

const helpText = `📋 *Posting*
/newtask <budget> <title> | [description]
/newevent <pay> <people> <YYYY-MM-DD> <days> <location> | <title> | [description]
/mytasks · /task <id>
/accept <task id> <offer id> · /approve <application id>
/begin <id> · /complete <id> · /cancel <id> · /delete <id>
/remove <task id> <user id>

🏃 *Running*
/offer <task id> <amount> [comment] · /withdraw <task id> · /myoffers
/apply <task id> [comment] · /leave <application id> · /myapps
/done <task id>

💰 /balance`

func (h *Handler) handleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, chatID, ok := command(ctx, update)
	if !ok {
		return
	}

	// Deep link from a shared task: /start task-<id>
	if payload := commandRest(update.Message.Text); strings.HasPrefix(payload, "task-") {
		if _, err := parseID(strings.TrimPrefix(payload, "task-")); err == nil {
			update.Message.Text = "/task " + strings.TrimPrefix(payload, "task-")
			h.handleTask(ctx, b, update)
			return
		}
	}

	welcome := fmt.Sprintf("👋 Hi, *%s*! Your user id is `%d`.\n\n%s",
		telegram.EscapeMarkdown(user.FirstName), user.ID, helpText)
	h.reply(ctx, b, chatID, welcome)
}

func (h *Handler) handleBalance(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, chatID, ok := command(ctx, update)
	if !ok {
		return
	}

	// Middleware copy may be stale after escrow movements
	fresh, err := h.userService.GetByID(ctx, user.ID)
	if err != nil {
		h.replyError(ctx, b, chatID, err, "balance")
		return
	}
	text := fmt.Sprintf("💰 Balance: *$%s*", fresh.Balance.StringFixed(2))
	history, err := h.userService.History(ctx, user.ID, config.BalanceHistoryLen)
	if err != nil {
		slog.Warn("load balance history", "user_id", user.ID, "error", err)
	}
	if len(history) > 0 {
		lines := make([]string, len(history))
		for i := range history {
			lines[i] = formatTransaction(&history[i])
		}
		text += "\n\n" + strings.Join(lines, "\n")
	}
	h.reply(ctx, b, chatID, text)
}
