package handler

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Register registers all command and callback handlers on the bot instance.
func (h *Handler) Register() {
	// Account
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, h.handleStart)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypeExact, h.handleStart)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/balance", bot.MatchTypePrefix, h.handleBalance)

	// Tasks
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/newtask", bot.MatchTypePrefix, h.handleNewTask)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/newevent", bot.MatchTypePrefix, h.handleNewEvent)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/mytasks", bot.MatchTypePrefix, h.handleMyTasks)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/task", bot.MatchTypePrefix, h.handleTask)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/begin", bot.MatchTypePrefix, h.handleBegin)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/done", bot.MatchTypePrefix, h.handleDone)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/complete", bot.MatchTypePrefix, h.handleComplete)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/cancel", bot.MatchTypePrefix, h.handleCancel)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/delete", bot.MatchTypePrefix, h.handleDelete)

	// Offers
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/offer", bot.MatchTypePrefix, h.handleOffer)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/accept", bot.MatchTypePrefix, h.handleAccept)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/withdraw", bot.MatchTypePrefix, h.handleWithdraw)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/myoffers", bot.MatchTypePrefix, h.handleMyOffers)

	// Staffing
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/apply", bot.MatchTypePrefix, h.handleApply)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/approve", bot.MatchTypePrefix, h.handleApprove)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/leave", bot.MatchTypePrefix, h.handleLeave)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/myapps", bot.MatchTypePrefix, h.handleMyApplications)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/remove", bot.MatchTypePrefix, h.handleRemove)

	// Admin
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/credit", bot.MatchTypePrefix, h.handleCredit)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/sagas", bot.MatchTypePrefix, h.handleSagas)

	// Callbacks
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, "accept_", bot.MatchTypePrefix, h.handleAcceptCallback)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, "approve_", bot.MatchTypePrefix, h.handleApproveCallback)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, "offers_", bot.MatchTypePrefix, h.handleOffersPage)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, "cur", bot.MatchTypeExact, h.handleNoop)
}

// handleNoop is a no-op callback handler used for pagination indicators and other
// non-interactive inline buttons. It simply acknowledges the callback query.
func (h *Handler) handleNoop(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.CallbackQuery != nil {
		b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
			CallbackQueryID: update.CallbackQuery.ID,
		})
	}
}
