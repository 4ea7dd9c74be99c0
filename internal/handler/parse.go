package handler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/set-night/gigs/internal/domain"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// commandArgs returns the arguments of a command message. "/task_12" and
// "/task@gigsbot 12" both yield ["12"].
func commandArgs(text string) []string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return nil
	}
	cmd := fields[0]
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	args := fields[1:]
	if i := strings.IndexByte(cmd, '_'); i > 0 && i < len(cmd)-1 {
		args = append([]string{cmd[i+1:]}, args...)
	}
	return args
}

// commandRest returns everything after the command word, trimmed.
func commandRest(text string) string {
	text = strings.TrimSpace(text)
	i := strings.IndexFunc(text, func(r rune) bool { return r == ' ' || r == '\n' })
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(text[i:])
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%q is not a valid id", s)
	}
	return id, nil
}

// parseAmount accepts positive amounts with at most two decimals.
func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimPrefix(s, "$"))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q is not a valid amount", s)
	}
	if !d.IsPositive() {
		return decimal.Zero, domain.ErrInvalidAmount
	}
	if d.Exponent() < -2 && !d.Equal(d.Round(2)) {
		return decimal.Zero, fmt.Errorf("%q has more than two decimals", s)
	}
	return d, nil
}

// splitParts splits "a | b | c" into trimmed parts.
func splitParts(s string) []string {
	parts := strings.Split(s, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

var (
	errNewTaskUsage  = errors.New("usage: /newtask <budget> <title> | [description]")
	errNewEventUsage = errors.New("usage: /newevent <pay per person> <people> <YYYY-MM-DD> <days> <location> | <title> | [description]")
)

// parseNewTask reads "/newtask 150 Deliver documents | Two signed copies".
func parseNewTask(text string, posterID int64) (domain.CreateTaskRequest, error) {
	rest := commandRest(text)
	amountStr, body, ok := strings.Cut(rest, " ")
	if !ok {
		return domain.CreateTaskRequest{}, errNewTaskUsage
	}
	amount, err := parseAmount(amountStr)
	if err != nil {
		return domain.CreateTaskRequest{}, err
	}

	parts := splitParts(body)
	req := domain.CreateTaskRequest{
		PosterID: posterID,
		Kind:     domain.TaskKindSingle,
		Title:    parts[0],
		Amount:   amount,
	}
	if len(parts) > 1 {
		req.Description = strings.Join(parts[1:], " | ")
	}
	return req, nil
}

// parseNewEvent reads
// "/newevent 200 5 2026-11-01 2 Cairo Expo | Ushers for tech fair | Dress code".
func parseNewEvent(text string, posterID int64, loc *time.Location) (domain.CreateTaskRequest, error) {
	fields := strings.SplitN(commandRest(text), " ", 5)
	if len(fields) < 5 {
		return domain.CreateTaskRequest{}, errNewEventUsage
	}

	pay, err := parseAmount(fields[0])
	if err != nil {
		return domain.CreateTaskRequest{}, err
	}
	people, err := strconv.Atoi(fields[1])
	if err != nil {
		return domain.CreateTaskRequest{}, fmt.Errorf("%q is not a number of people", fields[1])
	}
	start, err := time.ParseInLocation(dateLayout, fields[2], loc)
	if err != nil {
		return domain.CreateTaskRequest{}, fmt.Errorf("%q is not a date, use YYYY-MM-DD", fields[2])
	}
	days, err := strconv.Atoi(fields[3])
	if err != nil || days < 1 {
		return domain.CreateTaskRequest{}, fmt.Errorf("%q is not a number of days", fields[3])
	}

	parts := splitParts(fields[4])
	if len(parts) < 2 {
		return domain.CreateTaskRequest{}, errNewEventUsage
	}
	req := domain.CreateTaskRequest{
		PosterID:       posterID,
		Kind:           domain.TaskKindMulti,
		Title:          parts[1],
		Amount:         pay,
		RequiredPeople: people,
		Location:       parts[0],
		StartDate:      start,
		EndDate:        start.AddDate(0, 0, days-1),
		NumberOfDays:   days,
	}
	if len(parts) > 2 {
		req.Description = strings.Join(parts[2:], " | ")
	}
	return req, nil
}

// parseCallbackIDs reads the numeric ids after prefix in callback data such
// as "accept_12_40".
func parseCallbackIDs(data, prefix string, n int) ([]int64, error) {
	parts := strings.Split(strings.TrimPrefix(data, prefix), "_")
	if len(parts) != n {
		return nil, fmt.Errorf("callback %q: want %d ids", data, n)
	}
	ids := make([]int64, n)
	for i, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil || id < 0 {
			return nil, fmt.Errorf("callback %q: bad id %q", data, p)
		}
		ids[i] = id
	}
	return ids, nil
}
