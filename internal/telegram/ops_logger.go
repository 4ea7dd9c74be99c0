package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/set-night/gigs/internal/config"
	"github.com/set-night/gigs/internal/domain"
)

// OpsLogger mirrors escrow movements, abandoned sagas and task lifecycle
// events into topics of an operators' chat.
type OpsLogger struct {
	bot MessageSender
	cfg *config.Config
}

func NewOpsLogger(b MessageSender, cfg *config.Config) *OpsLogger {
	return &OpsLogger{bot: b, cfg: cfg}
}

type LogType string

const (
	LogTypeError  LogType = "error"
	LogTypeEscrow LogType = "escrow"
	LogTypeSaga   LogType = "saga"
	LogTypeTask   LogType = "task"
)

func (l *OpsLogger) Log(logType LogType, message string) {
	if l.cfg.LogTelegramChatID == 0 {
		return
	}

	topicID := l.getTopicID(logType)
	if topicID == 0 {
		return
	}

	// Truncate if too long
	if len([]rune(message)) > MaxMessageLen {
		message = string([]rune(message)[:MaxMessageLen-20]) + "\n\n... (truncated)"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := l.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:          l.cfg.LogTelegramChatID,
		Text:            message,
		ParseMode:       "Markdown",
		MessageThreadID: topicID,
	})
	if err != nil {
		slog.Error("failed to send telegram log", "type", logType, "error", err)
	}
}

func (l *OpsLogger) LogError(err error, context string) {
	msg := fmt.Sprintf("❌ *Error*\n\n*Context:* %s\n*Error:* `%s`\n*Time:* %s",
		context, err.Error(), time.Now().Format("2006-01-02 15:04:05"))
	l.Log(LogTypeError, msg)
}

// LogEscrow has the signature of the payment service observer.
func (l *OpsLogger) LogEscrow(_ context.Context, event string, p domain.Payment) {
	msg := fmt.Sprintf("💰 *Escrow %s*\n\n*Payment:* `%d`\n*Task:* `%d`\n*Payer:* `%d`\n*Recipient:* `%d`\n*Amount:* %s",
		event, p.ID, p.TaskID, p.PayerID, p.RecipientID, p.Amount.StringFixed(2))
	l.Log(LogTypeEscrow, msg)
}

// LogSagaAbandoned reports a saga that needs manual attention.
func (l *OpsLogger) LogSagaAbandoned(_ context.Context, s domain.Saga) {
	msg := fmt.Sprintf("🧯 *Saga abandoned*\n\n*ID:* `%s`\n*Kind:* %s\n*Task:* `%d`\n*Runner:* `%d`\n*Step:* %s\n*Attempts:* %d\n*Last error:* `%s`",
		s.ID, s.Kind, s.TaskID, s.RunnerID, s.Step, s.Attempts, s.LastError)
	l.Log(LogTypeSaga, msg)
}

func (l *OpsLogger) LogTask(t *domain.Task, event string) {
	msg := fmt.Sprintf("📋 *Task %s*\n\n*ID:* `%d`\n*Kind:* %s\n*Title:* %s\n*Poster:* `%d`\n*Amount:* %s",
		event, t.ID, t.Kind, EscapeMarkdown(t.Title), t.PosterID, t.Amount.StringFixed(2))
	l.Log(LogTypeTask, msg)
}

func (l *OpsLogger) getTopicID(logType LogType) int {
	switch logType {
	case LogTypeError:
		return l.cfg.LogTopicError
	case LogTypeEscrow:
		return l.cfg.LogTopicEscrow
	case LogTypeSaga:
		return l.cfg.LogTopicSaga
	case LogTypeTask:
		return l.cfg.LogTopicTasks
	default:
		return 0
	}
}
