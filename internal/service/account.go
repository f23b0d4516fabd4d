package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/govlogin/idp-core/internal/crypto"
	"github.com/govlogin/idp-core/internal/errs"
	"github.com/govlogin/idp-core/internal/model"
	"github.com/govlogin/idp-core/internal/repository"

	"github.com/gofrs/uuid/v5"
)

// AccountService creates user accounts.
type AccountService interface {
	// CreateUser registers a new account with a hashed password record.
	CreateUser(ctx context.Context, email, password string) (*model.User, error)
	// FindOrCreateByEmail returns the account for email, creating a
	// pre-confirmed one when absent (external-identity sign-in flow).
	FindOrCreateByEmail(ctx context.Context, email string) (*model.User, error)
}

type AccountServiceImpl struct {
	users repository.UserRepository
	log   *zap.Logger
	now   func() time.Time
}

// NewAccountService constructs AccountService.
func NewAccountService(users repository.UserRepository, log *zap.Logger) *AccountServiceImpl {
	return &AccountServiceImpl{users: users, log: log, now: time.Now}
}

// CreateUser registers a new account. The password is hashed with a per-user
// salt; the raw password is also what later derives the PII encryption key,
// so it is never stored in any form usable for decryption.
func (s *AccountServiceImpl) CreateUser(ctx context.Context, email, password string) (*model.User, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("email/password required: %w", errs.ErrValidation)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	salt, err := crypto.RandBytes(16)
	if err != nil {
		return nil, err
	}
	u := &model.User{
		ID:       id,
		Email:    email,
		PwdHash:  crypto.HashPassword([]byte(password), salt),
		SaltAuth: salt,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.log.Info("user created", zap.String("user_id", id.String()))
	return u, nil
}

// FindOrCreateByEmail looks the account up by email and creates a confirmed
// one when missing. A creation race resolves by re-reading the winner.
func (s *AccountServiceImpl) FindOrCreateByEmail(ctx context.Context, email string) (*model.User, error) {
	if email == "" {
		return nil, fmt.Errorf("email required: %w", errs.ErrValidation)
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	salt, err := crypto.RandBytes(16)
	if err != nil {
		return nil, err
	}
	confirmed := s.now()
	created := &model.User{
		ID:          id,
		Email:       email,
		PwdHash:     []byte{},
		SaltAuth:    salt,
		ConfirmedAt: &confirmed,
	}
	if err := s.users.Create(ctx, created); err != nil {
		if errors.Is(err, errs.ErrValidation) {
			return s.users.GetByEmail(ctx, email)
		}
		return nil, err
	}
	return created, nil
}
