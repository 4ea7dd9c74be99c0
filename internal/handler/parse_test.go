package handler

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/set-night/gigs/internal/domain"
)

func TestCommandArgs(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"/task 12", []string{"12"}},
		{"/task_12", []string{"12"}},
		{"/task@gigsbot 12", []string{"12"}},
		{"/offer 3 150 can start today", []string{"3", "150", "can", "start", "today"}},
		{"/mytasks", []string{}},
		{"hello", nil},
	}
	for _, tt := range tests {
		got := commandArgs(tt.text)
		if len(got) != len(tt.want) || !slices.Equal(got, tt.want) {
			t.Errorf("commandArgs(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestParseAmount(t *testing.T) {
	if d, err := parseAmount("150.50"); err != nil || d.String() != "150.5" {
		t.Errorf("parseAmount = %s, %v", d, err)
	}
	if d, err := parseAmount("$20"); err != nil || d.String() != "20" {
		t.Errorf("parseAmount($20) = %s, %v", d, err)
	}
	for _, bad := range []string{"0", "-5", "abc", "1.005"} {
		if _, err := parseAmount(bad); err == nil {
			t.Errorf("parseAmount(%q) accepted", bad)
		}
	}
	if _, err := parseAmount("-1"); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("negative amount err = %v", err)
	}
}

func TestParseNewTask(t *testing.T) {
	req, err := parseNewTask("/newtask 150 Deliver documents | Two signed copies | to Zamalek", 7)
	if err != nil {
		t.Fatalf("parseNewTask: %v", err)
	}
	if req.Kind != domain.TaskKindSingle || req.PosterID != 7 || req.Title != "Deliver documents" {
		t.Errorf("req = %+v", req)
	}
	if req.Description != "Two signed copies | to Zamalek" || req.Amount.String() != "150" {
		t.Errorf("description %q amount %s", req.Description, req.Amount)
	}

	if _, err := parseNewTask("/newtask 150", 7); !errors.Is(err, errNewTaskUsage) {
		t.Errorf("missing title err = %v", err)
	}
}

func TestParseNewEvent(t *testing.T) {
	cairo := time.FixedZone("EET", 2*3600)
	req, err := parseNewEvent("/newevent 200 5 2026-11-01 3 Cairo Expo | Ushers for tech fair | Dress code black", 9, cairo)
	if err != nil {
		t.Fatalf("parseNewEvent: %v", err)
	}
	if req.Kind != domain.TaskKindMulti || req.RequiredPeople != 5 || req.NumberOfDays != 3 {
		t.Errorf("req = %+v", req)
	}
	if req.Location != "Cairo Expo" || req.Title != "Ushers for tech fair" || req.Description != "Dress code black" {
		t.Errorf("text fields = %q %q %q", req.Location, req.Title, req.Description)
	}
	wantEnd := time.Date(2026, 11, 3, 0, 0, 0, 0, cairo)
	if !req.EndDate.Equal(wantEnd) {
		t.Errorf("end = %s, want %s", req.EndDate, wantEnd)
	}

	bad := []string{
		"/newevent 200 5 2026-11-01",
		"/newevent 200 five 2026-11-01 3 Cairo | Ushers",
		"/newevent 200 5 01.11.2026 3 Cairo | Ushers",
		"/newevent 200 5 2026-11-01 0 Cairo | Ushers",
		"/newevent 200 5 2026-11-01 3 Cairo without title",
	}
	for _, text := range bad {
		if _, err := parseNewEvent(text, 9, cairo); err == nil {
			t.Errorf("parseNewEvent(%q) accepted", text)
		}
	}
}

func TestParseCallbackIDs(t *testing.T) {
	ids, err := parseCallbackIDs("accept_12_40", "accept_", 2)
	if err != nil || ids[0] != 12 || ids[1] != 40 {
		t.Errorf("ids = %v, %v", ids, err)
	}
	if _, err := parseCallbackIDs("accept_12", "accept_", 2); err == nil {
		t.Error("short callback accepted")
	}
	if _, err := parseCallbackIDs("approve_x", "approve_", 1); err == nil {
		t.Error("non-numeric callback accepted")
	}
}
