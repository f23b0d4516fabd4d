// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/govlogin/idp-core/internal/lockout"
	"github.com/govlogin/idp-core/internal/model"
)

// UserRepository provides access to user accounts and their second-factor
// lockout state.
type UserRepository interface {
	// Create inserts a new user. Duplicate email maps to errs.ErrValidation.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByEmail loads a user by email.
	GetByEmail(ctx context.Context, email string) (*model.User, error)

	// RecordFailedSecondFactorAttempt increments the attempt counter against
	// the latest persisted value and sets the lockout timestamp when the
	// incremented count reaches maxAttempts. Returns the resulting state.
	RecordFailedSecondFactorAttempt(ctx context.Context, id uuid.UUID, maxAttempts int) (lockout.Status, error)
	// ResetSecondFactor sets the attempt counter to zero and clears the
	// lockout timestamp.
	ResetSecondFactor(ctx context.Context, id uuid.UUID) error

	// SetDirectOTP stores an outstanding one-time code.
	SetDirectOTP(ctx context.Context, id uuid.UUID, code string, sentAt time.Time) error
	// ClearDirectOTP removes the outstanding one-time code.
	ClearDirectOTP(ctx context.Context, id uuid.UUID) error

	// ConfirmPhone persists a confirmed phone number and enables the second
	// factor for the user.
	ConfirmPhone(ctx context.Context, id uuid.UUID, phone string, at time.Time) error
}
