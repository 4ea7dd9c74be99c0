package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID         int64
	TelegramID int64
	IsAdmin    bool
	FirstName  string
	Username   string
	Balance    decimal.Decimal
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
