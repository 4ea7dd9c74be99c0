package handler

import (
	"github.com/go-telegram/bot"
	"github.com/set-night/gigs/internal/config"
	"github.com/set-night/gigs/internal/service"
	"github.com/set-night/gigs/internal/telegram"
)

// Handler holds all dependencies needed by command and callback handlers.
type Handler struct {
	bot             *bot.Bot
	cfg             *config.Config
	userService     *service.UserService
	taskService     *service.TaskService
	offerService    *service.OfferService
	staffingService *service.StaffingService
	paymentService  *service.PaymentService
	sagas           *service.SagaLog
	opsLogger       *telegram.OpsLogger
	botUsername     string
}

// Deps contains all dependencies required to construct a Handler.
type Deps struct {
	Bot             *bot.Bot
	Cfg             *config.Config
	UserService     *service.UserService
	TaskService     *service.TaskService
	OfferService    *service.OfferService
	StaffingService *service.StaffingService
	PaymentService  *service.PaymentService
	Sagas           *service.SagaLog
	OpsLogger       *telegram.OpsLogger
	BotUsername     string
}

// New creates a new Handler from the provided dependencies.
func New(deps Deps) *Handler {
	return &Handler{
		bot:             deps.Bot,
		cfg:             deps.Cfg,
		userService:     deps.UserService,
		taskService:     deps.TaskService,
		offerService:    deps.OfferService,
		staffingService: deps.StaffingService,
		paymentService:  deps.PaymentService,
		sagas:           deps.Sagas,
		opsLogger:       deps.OpsLogger,
		botUsername:     deps.BotUsername,
	}
}
