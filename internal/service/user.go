package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/set-night/gigs/internal/domain"
	"github.com/shopspring/decimal"
)

type UserService struct {
	users           UserStore
	startingBalance decimal.Decimal
}

func NewUserService(users UserStore, startingBalance decimal.Decimal) *UserService {
	return &UserService{users: users, startingBalance: startingBalance}
}

func (s *UserService) FindOrCreate(ctx context.Context, telegramID int64, firstName, username string, isAdmin bool) (*domain.User, bool, error) {
	user, err := s.users.GetByTelegramID(ctx, telegramID)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, false, fmt.Errorf("get user: %w", err)
	}

	user, err = s.users.Create(ctx, &domain.User{
		TelegramID: telegramID,
		FirstName:  firstName,
		Username:   username,
		IsAdmin:    isAdmin,
	})
	if err != nil {
		return nil, false, fmt.Errorf("create user: %w", err)
	}

	// Starting balance
	if s.startingBalance.IsPositive() {
		balance, err := s.users.Credit(ctx, user.ID, s.startingBalance, "Starting balance")
		if err != nil {
			slog.Error("failed to grant starting balance", "error", err, "user_id", user.ID)
		} else {
			user.Balance = balance
		}
	}

	return user, true, nil
}

func (s *UserService) GetByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	return s.users.GetByTelegramID(ctx, telegramID)
}

func (s *UserService) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *UserService) UpdateInfo(ctx context.Context, userID int64, firstName, username string) error {
	return s.users.UpdateInfo(ctx, userID, firstName, username)
}

// Credit tops up a balance on an admin's request.
func (s *UserService) Credit(ctx context.Context, userID int64, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, domain.ErrInvalidAmount
	}
	return s.users.Credit(ctx, userID, amount, description)
}

// History returns the latest balance movements, newest first.
func (s *UserService) History(ctx context.Context, userID int64, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		return nil, nil
	}
	return s.users.ListTransactions(ctx, userID, limit)
}
