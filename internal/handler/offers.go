package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/set-night/gigs/internal/domain"
	"github.com/set-night/gigs/internal/service"
	"github.com/set-night/gigs/internal/telegram"
)

func (h *Handler) handleOffer(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, chatID, ok := command(ctx, update)
	if !ok {
		return
	}

	args := commandArgs(update.Message.Text)
	if len(args) < 2 {
		telegram.SendText(ctx, b, chatID, "Usage: /offer <task id> <amount> [comment]")
		return
	}
	taskID, err := parseID(args[0])
	if err != nil {
		h.replyParseError(ctx, b, chatID, err)
		return
	}
	amount, err := parseAmount(args[1])
	if err != nil {
		h.replyParseError(ctx, b, chatID, err)
		return
	}

	o, err := h.offerService.Submit(ctx, service.SubmitOfferRequest{
		TaskID:   taskID,
		RunnerID: user.ID,
		Amount:   amount,
		Comment:  strings.Join(args[2:], " "),
	})
	if err != nil {
		h.replyError(ctx, b, chatID, err, "offer.submit")
		return
	}
	h.reply(ctx, b, chatID, fmt.Sprintf("📨 Offer #%d of $%s sent for task #%d.", o.ID, o.Amount.StringFixed(2), o.TaskID))
}

func (h *Handler) handleWithdraw(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, chatID, ok := command(ctx, update)
	if !ok {
		return
	}
	taskID, ok := h.taskArg(ctx, b, chatID, commandArgs(update.Message.Text), "/withdraw <task id>")
	if !ok {
		return
	}

	if err := h.offerService.Cancel(ctx, user.ID, taskID); err != nil {
		h.replyError(ctx, b, chatID, err, "offer.cancel")
		return
	}
	h.reply(ctx, b, chatID, fmt.Sprintf("↩️ Your offer on task #%d was withdrawn.", taskID))
}

func (h *Handler) handleMyOffers(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, chatID, ok := command(ctx, update)
	if !ok {
		return
	}

	offers, err := h.offerService.ListByRunner(ctx, user.ID)
	if err != nil {
		h.replyError(ctx, b, chatID, err, "offer.list")
		return
	}
	if len(offers) == 0 {
		h.reply(ctx, b, chatID, "You have no offers.")
		return
	}

	lines := make([]string, len(offers))
	for i := range offers {
		lines[i] = fmt.Sprintf("%s · /task\\_%d", formatOffer(&offers[i]), offers[i].TaskID)
	}
	h.reply(ctx, b, chatID, "📨 *Your offers*\n\n"+strings.Join(lines, "\n"))
}

func (h *Handler) handleAcceptCallback(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, msg, ok := callback(ctx, b, update)
	if !ok {
		return
	}
	ids, err := parseCallbackIDs(update.CallbackQuery.Data, "accept_", 2)
	if err != nil {
		return
	}

	o, err := h.offerService.Accept(ctx, ids[0], ids[1], user.ID)
	if err != nil {
		h.replyError(ctx, b, msg.Chat.ID, err, "offer.accept")
		return
	}

	text := acceptedText(o)
	if err := telegram.EditText(ctx, b, msg.Chat.ID, msg.ID, text); err != nil {
		h.reply(ctx, b, msg.Chat.ID, text)
	}
}

// handleAccept is the text form of the accept button: /accept <task id> <offer id>.
func (h *Handler) handleAccept(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, chatID, ok := command(ctx, update)
	if !ok {
		return
	}
	args := commandArgs(update.Message.Text)
	if len(args) < 2 {
		telegram.SendText(ctx, b, chatID, "Usage: /accept <task id> <offer id>")
		return
	}
	taskID, err := parseID(args[0])
	if err != nil {
		h.replyParseError(ctx, b, chatID, err)
		return
	}
	offerID, err := parseID(args[1])
	if err != nil {
		h.replyParseError(ctx, b, chatID, err)
		return
	}

	o, err := h.offerService.Accept(ctx, taskID, offerID, user.ID)
	if err != nil {
		h.replyError(ctx, b, chatID, err, "offer.accept")
		return
	}
	h.reply(ctx, b, chatID, acceptedText(o))
}

func acceptedText(o *domain.Offer) string {
	return fmt.Sprintf("🤝 Offer #%d accepted. $%s is held in escrow until you confirm with /complete %d.",
		o.ID, o.Amount.StringFixed(2), o.TaskID)
}
