package domain

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

type TaskKind string

const (
	// TaskKindSingle is assigned to exactly one runner through an accepted offer.
	TaskKindSingle TaskKind = "single"
	// TaskKindMulti is staffed by up to RequiredPeople runners at a fixed pay.
	TaskKindMulti TaskKind = "multi"
)

func (k TaskKind) Valid() bool {
	return k == TaskKindSingle || k == TaskKindMulti
}

type TaskStatus string

const (
	TaskStatusOpen       TaskStatus = "open"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusOpen:       {TaskStatusInProgress, TaskStatusCancelled},
	TaskStatusInProgress: {TaskStatusDone},
	TaskStatusDone:       {TaskStatusCompleted},
}

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusOpen, TaskStatusInProgress, TaskStatusDone, TaskStatusCompleted, TaskStatusCancelled:
		return true
	}
	return false
}

func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusCancelled
}

func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	return slices.Contains(taskTransitions[s], next)
}

// EventDetails holds the fields only multi-assignment tasks carry.
type EventDetails struct {
	RequiredPeople int
	Location       string
	StartDate      time.Time
	EndDate        time.Time
	NumberOfDays   int
}

type Task struct {
	ID          int64
	PosterID    int64
	Kind        TaskKind
	Status      TaskStatus
	Title       string
	Description string
	Category    string
	Latitude    float64
	Longitude   float64
	Deadline    *time.Time

	// Amount is the agreed offer amount for single tasks and the
	// per-runner fixed pay for multi tasks.
	Amount decimal.Decimal

	Event     *EventDetails
	Assignees []int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Capacity is the maximum number of assignees.
func (t *Task) Capacity() int {
	if t.Kind == TaskKindMulti && t.Event != nil {
		return t.Event.RequiredPeople
	}
	return 1
}

// RunnerID returns the sole assignee of a single task, or 0.
func (t *Task) RunnerID() int64 {
	if t.Kind != TaskKindSingle || len(t.Assignees) == 0 {
		return 0
	}
	return t.Assignees[0]
}

func (t *Task) HasAssignee(userID int64) bool {
	return slices.Contains(t.Assignees, userID)
}

func (t *Task) IsFull() bool {
	return len(t.Assignees) >= t.Capacity()
}

// RemainingSeats is never negative.
func (t *Task) RemainingSeats() int {
	return max(t.Capacity()-len(t.Assignees), 0)
}

func (t *Task) RemoveAssignee(userID int64) bool {
	i := slices.Index(t.Assignees, userID)
	if i < 0 {
		return false
	}
	t.Assignees = slices.Delete(t.Assignees, i, i+1)
	return true
}

// Clone returns a deep copy so stores can hand out tasks without aliasing.
func (t *Task) Clone() *Task {
	c := *t
	c.Assignees = slices.Clone(t.Assignees)
	if t.Event != nil {
		ev := *t.Event
		c.Event = &ev
	}
	if t.Deadline != nil {
		d := *t.Deadline
		c.Deadline = &d
	}
	return &c
}

// CreateTaskRequest is the input of task creation and edits. Event fields
// are read only for multi tasks.
type CreateTaskRequest struct {
	PosterID    int64
	Kind        TaskKind
	Title       string
	Description string
	Category    string
	Latitude    float64
	Longitude   float64
	Deadline    *time.Time
	Amount      decimal.Decimal

	RequiredPeople int
	Location       string
	StartDate      time.Time
	EndDate        time.Time
	NumberOfDays   int
}
