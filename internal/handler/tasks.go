package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/gigs/internal/config"
	"github.com/set-night/gigs/internal/domain"
	"github.com/set-night/gigs/internal/telegram"
)

// replyParseError shows syntax errors verbatim and rejections by reason.
func (h *Handler) replyParseError(ctx context.Context, b *bot.Bot, chatID int64, err error) {
	if domain.KindOf(err) == domain.KindInternal {
		telegram.SendText(ctx, b, chatID, "❌ "+err.Error())
		return
	}
	telegram.SendText(ctx, b, chatID, userMessage(err))
}

// taskArg parses the task id argument of a command.
func (h *Handler) taskArg(ctx context.Context, b *bot.Bot, chatID int64, args []string, usage string) (int64, bool) {
	if len(args) < 1 {
		telegram.SendText(ctx, b, chatID, "Usage: "+usage)
		return 0, false
	}
	id, err := parseID(args[0])
	if err != nil {
		h.replyParseError(ctx, b, chatID, err)
		return 0, false
	}
	return id, true
}

func (h *Handler) handleNewTask(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, chatID, ok := command(ctx, update)
	if !ok {
		return
	}

	req, err := parseNewTask(update.Message.Text, user.ID)
	if err != nil {
		h.replyParseError(ctx, b, chatID, err)
		return
	}
	h.createTask(ctx, b, chatID, req)
}

func (h *Handler) handleNewEvent(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, chatID, ok := command(ctx, update)
	if !ok {
		return
	}

	req, err := parseNewEvent(update.Message.Text, user.ID, h.cfg.Location())
	if err != nil {
		h.replyParseError(ctx, b, chatID, err)
		return
	}
	h.createTask(ctx, b, chatID, req)
}

func (h *Handler) createTask(ctx context.Context, b *bot.Bot, chatID int64, req domain.CreateTaskRequest) {
	t, err := h.taskService.CreateTask(ctx, req)
	if err != nil {
		h.replyError(ctx, b, chatID, err, "task.create")
		return
	}
	h.opsLogger.LogTask(t, "created")

	share := fmt.Sprintf("Runners can bid with /offer %d <amount>", t.ID)
	if t.Kind == domain.TaskKindMulti {
		share = fmt.Sprintf("Runners can join with /apply %d", t.ID)
	}
	if h.botUsername != "" {
		share += fmt.Sprintf("\nShare: https://t.me/%s?start=task-%d", telegram.EscapeMarkdown(h.botUsername), t.ID)
	}
	h.reply(ctx, b, chatID, "✅ Task posted.\n\n"+formatTask(t)+"\n"+share)
}

func (h *Handler) handleMyTasks(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, chatID, ok := command(ctx, update)
	if !ok {
		return
	}

	tasks, err := h.taskService.ListByPoster(ctx, user.ID)
	if err != nil {
		h.replyError(ctx, b, chatID, err, "task.list")
		return
	}
	if len(tasks) == 0 {
		h.reply(ctx, b, chatID, "You have not posted any tasks yet. Try /newtask or /newevent.")
		return
	}

	lines := make([]string, len(tasks))
	for i := range tasks {
		lines[i] = formatTaskLine(&tasks[i])
	}
	h.reply(ctx, b, chatID, "📋 *Your tasks*\n\n"+strings.Join(lines, "\n"))
}

func (h *Handler) handleTask(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, chatID, ok := command(ctx, update)
	if !ok {
		return
	}
	taskID, ok := h.taskArg(ctx, b, chatID, commandArgs(update.Message.Text), "/task <id>")
	if !ok {
		return
	}

	t, err := h.taskService.Get(ctx, taskID)
	if err != nil {
		h.replyError(ctx, b, chatID, err, "task.get")
		return
	}

	if t.PosterID != user.ID {
		hint := ""
		if t.Status == domain.TaskStatusOpen || (t.Kind == domain.TaskKindMulti && t.Status == domain.TaskStatusInProgress) {
			hint = fmt.Sprintf("\nMake an offer with /offer %d <amount>", t.ID)
			if t.Kind == domain.TaskKindMulti {
				hint = fmt.Sprintf("\nJoin with /apply %d (%d seat(s) left)", t.ID, t.RemainingSeats())
			}
		}
		h.reply(ctx, b, chatID, formatTask(t)+hint)
		return
	}

	switch t.Kind {
	case domain.TaskKindSingle:
		h.sendOffersPage(ctx, b, chatID, t, 0, 0)
	case domain.TaskKindMulti:
		h.sendApplications(ctx, b, chatID, t)
	}
	if summary := h.escrowSummary(ctx, t.ID); summary != "" {
		h.reply(ctx, b, chatID, summary)
	}
}

// escrowSummary lists the task's payments, or "" when there are none.
func (h *Handler) escrowSummary(ctx context.Context, taskID int64) string {
	payments, err := h.paymentService.ListByTask(ctx, taskID)
	if err != nil || len(payments) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("💰 *Escrow*\n")
	for _, p := range payments {
		fmt.Fprintf(&sb, "\n#%d to `%d`: $%s (%s)", p.ID, p.RecipientID, p.Amount.StringFixed(2), p.Status)
	}
	return sb.String()
}

// sendOffersPage lists a page of offers with accept buttons. A non-zero
// messageID edits that message in place.
func (h *Handler) sendOffersPage(ctx context.Context, b *bot.Bot, chatID int64, t *domain.Task, page, messageID int) {
	offers, err := h.offerService.ListByTask(ctx, t.ID)
	if err != nil {
		h.replyError(ctx, b, chatID, err, "offer.list")
		return
	}

	totalPages := max((len(offers)+config.OffersPerPage-1)/config.OffersPerPage, 1)
	page = min(max(page, 0), totalPages-1)
	start := page * config.OffersPerPage
	end := min(start+config.OffersPerPage, len(offers))

	var sb strings.Builder
	sb.WriteString(formatTask(t))
	if len(offers) == 0 {
		sb.WriteString("\nNo offers yet.")
	}

	var rows [][]models.InlineKeyboardButton
	for _, o := range offers[start:end] {
		sb.WriteString("\n" + formatOffer(&o))
		if t.Status == domain.TaskStatusOpen && o.Status == domain.OfferStatusPending {
			rows = append(rows, telegram.OfferRow(t.ID, o.ID, fmt.Sprintf("Accept #%d · $%s", o.ID, o.Amount.StringFixed(2))))
		}
	}
	if totalPages > 1 {
		rows = append(rows, telegram.PaginationRow(page, totalPages, fmt.Sprintf("offers_%d", t.ID)))
	}

	if messageID == 0 {
		h.replyWithKeyboard(ctx, b, chatID, sb.String(), telegram.InlineKeyboard(rows...))
		return
	}
	_, err = b.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        sb.String(),
		ParseMode:   models.ParseModeMarkdownV1,
		ReplyMarkup: telegram.InlineKeyboard(rows...),
	})
	if err != nil {
		h.replyWithKeyboard(ctx, b, chatID, sb.String(), telegram.InlineKeyboard(rows...))
	}
}

func (h *Handler) handleOffersPage(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, msg, ok := callback(ctx, b, update)
	if !ok {
		return
	}
	ids, err := parseCallbackIDs(update.CallbackQuery.Data, "offers_", 2)
	if err != nil {
		return
	}

	t, err := h.taskService.Get(ctx, ids[0])
	if err != nil || t.PosterID != user.ID {
		return
	}
	h.sendOffersPage(ctx, b, msg.Chat.ID, t, int(ids[1]), msg.ID)
}

func (h *Handler) sendApplications(ctx context.Context, b *bot.Bot, chatID int64, t *domain.Task) {
	apps, err := h.staffingService.ListApplications(ctx, t.ID)
	if err != nil {
		h.replyError(ctx, b, chatID, err, "application.list")
		return
	}

	var sb strings.Builder
	sb.WriteString(formatTask(t))
	if len(apps) == 0 {
		sb.WriteString("\nNo applications yet.")
	}

	var rows [][]models.InlineKeyboardButton
	for _, a := range apps {
		sb.WriteString("\n" + formatApplication(&a))
		if a.Status == domain.ApplicationStatusPending && !t.IsFull() {
			rows = append(rows, telegram.ApplicationRow(a.ID, fmt.Sprintf("Approve #%d", a.ID)))
		}
	}
	h.replyWithKeyboard(ctx, b, chatID, sb.String(), telegram.InlineKeyboard(rows...))
}

func (h *Handler) handleBegin(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.transition(ctx, b, update, domain.TaskStatusInProgress, "/begin <task id>", "🚀 Task #%d started.")
}

func (h *Handler) handleDone(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.transition(ctx, b, update, domain.TaskStatusDone, "/done <task id>", "🏁 Task #%d marked done. The poster will confirm and release payment.")
}

func (h *Handler) handleComplete(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.transition(ctx, b, update, domain.TaskStatusCompleted, "/complete <task id>", "✅ Task #%d completed. Payments are being released.")
}

func (h *Handler) handleCancel(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.transition(ctx, b, update, domain.TaskStatusCancelled, "/cancel <task id>", "⛔ Task #%d cancelled. Held funds are returned.")
}

func (h *Handler) transition(ctx context.Context, b *bot.Bot, update *models.Update, next domain.TaskStatus, usage, done string) {
	user, chatID, ok := command(ctx, update)
	if !ok {
		return
	}
	taskID, ok := h.taskArg(ctx, b, chatID, commandArgs(update.Message.Text), usage)
	if !ok {
		return
	}

	t, err := h.taskService.UpdateStatus(ctx, taskID, next, user.ID)
	if err != nil {
		h.replyError(ctx, b, chatID, err, "task.status")
		return
	}
	h.opsLogger.LogTask(t, string(next))
	h.reply(ctx, b, chatID, fmt.Sprintf(done, t.ID))
}

func (h *Handler) handleDelete(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, chatID, ok := command(ctx, update)
	if !ok {
		return
	}
	taskID, ok := h.taskArg(ctx, b, chatID, commandArgs(update.Message.Text), "/delete <task id>")
	if !ok {
		return
	}

	if err := h.taskService.DeleteTask(ctx, taskID, user.ID); err != nil {
		h.replyError(ctx, b, chatID, err, "task.delete")
		return
	}
	h.reply(ctx, b, chatID, fmt.Sprintf("🗑 Task #%d deleted.", taskID))
}
