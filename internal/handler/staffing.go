package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/gigs/internal/service"
	"github.com/set-night/gigs/internal/telegram"
)

func (h *Handler) handleApply(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, chatID, ok := command(ctx, update)
	if !ok {
		return
	}
	args := commandArgs(update.Message.Text)
	taskID, ok := h.taskArg(ctx, b, chatID, args, "/apply <task id> [comment]")
	if !ok {
		return
	}

	a, err := h.staffingService.Apply(ctx, service.ApplyRequest{
		TaskID:      taskID,
		ApplicantID: user.ID,
		Comment:     strings.Join(args[1:], " "),
	})
	if err != nil {
		h.replyError(ctx, b, chatID, err, "application.apply")
		return
	}
	h.reply(ctx, b, chatID, fmt.Sprintf("🙋 Application #%d sent for task #%d. Cancel it with /leave %d while it is pending.",
		a.ID, a.TaskID, a.ID))
}

func (h *Handler) handleLeave(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, chatID, ok := command(ctx, update)
	if !ok {
		return
	}
	args := commandArgs(update.Message.Text)
	if len(args) < 1 {
		telegram.SendText(ctx, b, chatID, "Usage: /leave <application id>")
		return
	}
	appID, err := parseID(args[0])
	if err != nil {
		h.replyParseError(ctx, b, chatID, err)
		return
	}

	if err := h.staffingService.CancelApplication(ctx, user.ID, appID); err != nil {
		h.replyError(ctx, b, chatID, err, "application.cancel")
		return
	}
	h.reply(ctx, b, chatID, fmt.Sprintf("↩️ Application #%d cancelled.", appID))
}

func (h *Handler) handleMyApplications(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, chatID, ok := command(ctx, update)
	if !ok {
		return
	}

	apps, err := h.staffingService.ListByApplicant(ctx, user.ID)
	if err != nil {
		h.replyError(ctx, b, chatID, err, "application.list")
		return
	}
	if len(apps) == 0 {
		h.reply(ctx, b, chatID, "You have no applications.")
		return
	}

	lines := make([]string, len(apps))
	for i := range apps {
		lines[i] = formatApplication(&apps[i])
	}
	h.reply(ctx, b, chatID, "🙋 *Your applications*\n\n"+strings.Join(lines, "\n"))
}

func (h *Handler) handleApproveCallback(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, msg, ok := callback(ctx, b, update)
	if !ok {
		return
	}
	ids, err := parseCallbackIDs(update.CallbackQuery.Data, "approve_", 1)
	if err != nil {
		return
	}

	h.approve(ctx, b, msg.Chat.ID, user.ID, ids[0])
}

func (h *Handler) handleApprove(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, chatID, ok := command(ctx, update)
	if !ok {
		return
	}
	args := commandArgs(update.Message.Text)
	if len(args) < 1 {
		telegram.SendText(ctx, b, chatID, "Usage: /approve <application id>")
		return
	}
	appID, err := parseID(args[0])
	if err != nil {
		h.replyParseError(ctx, b, chatID, err)
		return
	}
	h.approve(ctx, b, chatID, user.ID, appID)
}

func (h *Handler) approve(ctx context.Context, b *bot.Bot, chatID, posterID, appID int64) {
	a, err := h.staffingService.Approve(ctx, posterID, appID)
	if err != nil {
		h.replyError(ctx, b, chatID, err, "application.approve")
		return
	}

	seats, err := h.staffingService.RemainingSeats(ctx, a.TaskID)
	text := fmt.Sprintf("👍 Application #%d approved. Pay for runner `%d` is held in escrow.", a.ID, a.ApplicantID)
	if err == nil {
		text += fmt.Sprintf("\nSeats left: %d", seats)
	}
	h.reply(ctx, b, chatID, text)
}

func (h *Handler) handleRemove(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, chatID, ok := command(ctx, update)
	if !ok {
		return
	}
	args := commandArgs(update.Message.Text)
	if len(args) < 2 {
		telegram.SendText(ctx, b, chatID, "Usage: /remove <task id> <user id>")
		return
	}
	taskID, err := parseID(args[0])
	if err != nil {
		h.replyParseError(ctx, b, chatID, err)
		return
	}
	runnerID, err := parseID(args[1])
	if err != nil {
		h.replyParseError(ctx, b, chatID, err)
		return
	}

	t, err := h.staffingService.RemoveRunner(ctx, taskID, runnerID, user.ID)
	if err != nil {
		h.replyError(ctx, b, chatID, err, "roster.remove")
		return
	}
	h.reply(ctx, b, chatID, fmt.Sprintf("👋 Runner `%d` removed from task #%d and refunded. Seats left: %d",
		runnerID, t.ID, t.RemainingSeats()))
}
