package services

import (
	"context"
	"errors"
	"log/slog"

	"cityfix-be/apperrors"
	"cityfix-be/models"
	"cityfix-be/repository"
)

func logger() *slog.Logger {
	return slog.Default().With("module", "services")
}

// activeAccount loads the caller's profile and rejects blocked accounts.
func activeAccount(ctx context.Context, users repository.UserRepository, email string) (*models.User, error) {
	if email == "" {
		return nil, apperrors.Unauthenticated("User not authenticated")
	}
	user, err := users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Forbidden("Account not found")
	}
	if err != nil {
		return nil, apperrors.External(err)
	}
	if user.IsBlocked {
		return nil, apperrors.Forbidden("Your account is blocked")
	}
	return user, nil
}
