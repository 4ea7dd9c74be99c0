package telegram

import (
	"context"
	"fmt"

	"github.com/set-night/gigs/internal/domain"
)

// UserLookup resolves internal user ids to Telegram chats.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

// Notifier delivers task notifications as private Telegram messages.
type Notifier struct {
	bot   MessageSender
	users UserLookup
}

func NewNotifier(b MessageSender, users UserLookup) *Notifier {
	return &Notifier{bot: b, users: users}
}

func (n *Notifier) Notify(ctx context.Context, userID, taskID int64, title string) error {
	user, err := n.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user %d: %w", userID, err)
	}

	text := fmt.Sprintf("🔔 %s\n\nTask #%d · /task\\_%d", EscapeMarkdown(title), taskID, taskID)
	if err := SendLongMessage(ctx, n.bot, user.TelegramID, text, nil); err != nil {
		return fmt.Errorf("notify user %d: %w", userID, err)
	}
	return nil
}
