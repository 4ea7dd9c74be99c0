package handler

import (
	"fmt"
	"strings"

	"github.com/set-night/gigs/internal/domain"
	"github.com/set-night/gigs/internal/telegram"
)

var statusLabels = map[domain.TaskStatus]string{
	domain.TaskStatusOpen:       "🟢 open",
	domain.TaskStatusInProgress: "🔵 in progress",
	domain.TaskStatusDone:       "🟡 done, awaiting confirmation",
	domain.TaskStatusCompleted:  "✅ completed",
	domain.TaskStatusCancelled:  "⛔ cancelled",
}

func formatTask(t *domain.Task) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 *#%d %s*\n", t.ID, telegram.EscapeMarkdown(t.Title))
	fmt.Fprintf(&sb, "Status: %s\n", statusLabels[t.Status])

	switch t.Kind {
	case domain.TaskKindSingle:
		fmt.Fprintf(&sb, "Budget: $%s\n", t.Amount.StringFixed(2))
		if runner := t.RunnerID(); runner != 0 {
			fmt.Fprintf(&sb, "Runner: `%d`\n", runner)
		}
	case domain.TaskKindMulti:
		fmt.Fprintf(&sb, "Pay per person: $%s\n", t.Amount.StringFixed(2))
		if ev := t.Event; ev != nil {
			fmt.Fprintf(&sb, "Where: %s\n", telegram.EscapeMarkdown(ev.Location))
			fmt.Fprintf(&sb, "When: %s, %d day(s)\n", ev.StartDate.Format(dateLayout), ev.NumberOfDays)
		}
		fmt.Fprintf(&sb, "Staff: %d/%d\n", len(t.Assignees), t.Capacity())
		if len(t.Assignees) > 0 {
			ids := make([]string, len(t.Assignees))
			for i, id := range t.Assignees {
				ids[i] = fmt.Sprintf("`%d`", id)
			}
			fmt.Fprintf(&sb, "Runners: %s\n", strings.Join(ids, ", "))
		}
	}

	if t.Description != "" {
		fmt.Fprintf(&sb, "\n%s\n", telegram.EscapeMarkdown(t.Description))
	}
	return sb.String()
}

func formatTaskLine(t *domain.Task) string {
	return fmt.Sprintf("#%d %s · %s · /task\\_%d", t.ID, telegram.EscapeMarkdown(t.Title), statusLabels[t.Status], t.ID)
}

func formatOffer(o *domain.Offer) string {
	line := fmt.Sprintf("💬 Offer #%d from `%d`: $%s (%s)", o.ID, o.RunnerID, o.Amount.StringFixed(2), o.Status)
	if o.Comment != "" {
		line += "\n    " + telegram.EscapeMarkdown(o.Comment)
	}
	return line
}

func formatApplication(a *domain.Application) string {
	line := fmt.Sprintf("🙋 Application #%d from `%d` on task #%d (%s)", a.ID, a.ApplicantID, a.TaskID, a.Status)
	if a.Comment != "" {
		line += "\n    " + telegram.EscapeMarkdown(a.Comment)
	}
	return line
}

func formatTransaction(t *domain.Transaction) string {
	sign := "➕"
	if t.TxType == domain.TxTypeDebit {
		sign = "➖"
	}
	return fmt.Sprintf("%s $%s · %s · %s", sign, t.Amount.Abs().StringFixed(2),
		telegram.EscapeMarkdown(t.Description), t.CreatedAt.Format("02 Jan 15:04"))
}

// userMessage turns a service error into the text shown to the user.
func userMessage(err error) string {
	switch domain.KindOf(err) {
	case domain.KindInternal:
		return "❌ Something went wrong. Please try again later."
	case domain.KindRemoteUnavailable:
		return "⏳ Service temporarily unavailable, please retry in a moment."
	case domain.KindInsufficientFunds:
		return "💸 " + capitalize(domain.ReasonOf(err)) + ". Top up with an admin first."
	default:
		return "❌ " + capitalize(domain.ReasonOf(err)) + "."
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
