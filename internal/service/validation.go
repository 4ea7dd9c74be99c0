package service

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/set-night/gigs/internal/config"
	"github.com/set-night/gigs/internal/domain"
)

// rule checks or normalizes one aspect of a task request.
type rule func(req *domain.CreateTaskRequest, now time.Time) error

var commonRules = []rule{
	requireTitle,
	sanitizeDescription,
	checkCoordinates,
	checkDeadline,
}

// taskRules is the validation pipeline per task kind, run in order.
var taskRules = map[domain.TaskKind][]rule{
	domain.TaskKindSingle: append(append([]rule{}, commonRules...),
		checkAmount,
	),
	domain.TaskKindMulti: append(append([]rule{}, commonRules...),
		checkAmount,
		checkRequiredPeople,
		checkLocation,
		checkEventDates,
	),
}

func validateTask(req *domain.CreateTaskRequest, now time.Time) error {
	rules, ok := taskRules[req.Kind]
	if !ok {
		return domain.Validationf("unknown task kind %q", req.Kind)
	}
	for _, r := range rules {
		if err := r(req, now); err != nil {
			return err
		}
	}
	return nil
}

func requireTitle(req *domain.CreateTaskRequest, _ time.Time) error {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return domain.Validation("title is required")
	}
	if utf8.RuneCountInString(req.Title) > config.MaxTitleLen {
		return domain.Validationf("title must be at most %d characters", config.MaxTitleLen)
	}
	return nil
}

// sanitizeDescription reduces markup to plain text.
func sanitizeDescription(req *domain.CreateTaskRequest, _ time.Time) error {
	if strings.TrimSpace(req.Description) == "" {
		req.Description = ""
		return nil
	}
	text, err := plainText(req.Description)
	if err != nil {
		return domain.Validation("description could not be parsed")
	}
	if utf8.RuneCountInString(text) > config.MaxDescriptionLen {
		return domain.Validationf("description must be at most %d characters", config.MaxDescriptionLen)
	}
	req.Description = text
	return nil
}

func plainText(s string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style").Remove()

	lines := strings.Split(doc.Text(), "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n"), nil
}

// checkCoordinates skips tasks without a location (both zero).
func checkCoordinates(req *domain.CreateTaskRequest, _ time.Time) error {
	if req.Latitude == 0 && req.Longitude == 0 {
		return nil
	}
	if req.Latitude < config.MinLatitude || req.Latitude > config.MaxLatitude ||
		req.Longitude < config.MinLongitude || req.Longitude > config.MaxLongitude {
		return domain.Validation("location is outside the service area")
	}
	return nil
}

func checkDeadline(req *domain.CreateTaskRequest, now time.Time) error {
	if req.Deadline != nil && !req.Deadline.After(now) {
		return domain.Validation("deadline must be in the future")
	}
	return nil
}

func checkAmount(req *domain.CreateTaskRequest, _ time.Time) error {
	if !req.Amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	return nil
}

func checkRequiredPeople(req *domain.CreateTaskRequest, _ time.Time) error {
	if req.RequiredPeople < 1 {
		return domain.Validation("at least one person is required")
	}
	return nil
}

func checkLocation(req *domain.CreateTaskRequest, _ time.Time) error {
	req.Location = strings.TrimSpace(req.Location)
	if req.Location == "" {
		return domain.Validation("event location is required")
	}
	return nil
}

func checkEventDates(req *domain.CreateTaskRequest, _ time.Time) error {
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		return domain.Validation("event start and end dates are required")
	}
	if req.StartDate.After(req.EndDate) {
		return domain.Validation("event start date must not be after its end date")
	}
	if req.NumberOfDays < 1 {
		return domain.Validation("number of days must be at least 1")
	}
	return nil
}
