package domain

import "time"

type ApplicationStatus string

const (
	ApplicationStatusPending         ApplicationStatus = "pending"
	ApplicationStatusApproved        ApplicationStatus = "approved"
	ApplicationStatusWithdrawn       ApplicationStatus = "withdrawn"
	ApplicationStatusAwaitingPayment ApplicationStatus = "awaiting_payment"
	ApplicationStatusPaid            ApplicationStatus = "paid"
)

// Application is a runner's request to staff a multi-assignment task.
type Application struct {
	ID          int64
	TaskID      int64
	ApplicantID int64
	Comment     string
	Status      ApplicationStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
