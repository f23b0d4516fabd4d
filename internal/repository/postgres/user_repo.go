package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/govlogin/idp-core/internal/errs"
	"github.com/govlogin/idp-core/internal/lockout"
	"github.com/govlogin/idp-core/internal/model"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, email, pwd_hash, salt_auth, phone, phone_confirmed_at,
second_factor_enabled, second_factor_attempts_count, second_factor_locked_at,
direct_otp, direct_otp_sent_at, confirmed_at, created_at`

// Create inserts a new user row.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (id, email, pwd_hash, salt_auth, phone, confirmed_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.Pool.Exec(ctx, q, u.ID, u.Email, u.PwdHash, u.SaltAuth, nullStr(u.Phone), u.ConfirmedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("email taken: %w", errs.ErrValidation)
	}
	return err
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
}

// GetByEmail selects a user by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email)
}

func (r *UserRepo) get(ctx context.Context, q string, arg any) (*model.User, error) {
	row := r.db.Pool.QueryRow(ctx, q, arg)
	var u model.User
	var phone, directOTP *string
	err := row.Scan(&u.ID, &u.Email, &u.PwdHash, &u.SaltAuth, &phone, &u.PhoneConfirmedAt,
		&u.SecondFactorEnabled, &u.SecondFactorAttemptsCount, &u.SecondFactorLockedAt,
		&directOTP, &u.DirectOTPSentAt, &u.ConfirmedAt, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errs.ErrNotFound
	}
	if phone != nil {
		u.Phone = *phone
	}
	if directOTP != nil {
		u.DirectOTP = *directOTP
	}
	return &u, nil
}

// RecordFailedSecondFactorAttempt increments the counter and sets the lockout
// timestamp in a single statement, so concurrent failures never under- or
// over-count from a stale read.
func (r *UserRepo) RecordFailedSecondFactorAttempt(ctx context.Context, id uuid.UUID, maxAttempts int) (lockout.Status, error) {
	const q = `
UPDATE users
SET second_factor_attempts_count = second_factor_attempts_count + 1,
    second_factor_locked_at = CASE
      WHEN second_factor_attempts_count + 1 >= $2 AND second_factor_locked_at IS NULL THEN now()
      ELSE second_factor_locked_at
    END
WHERE id = $1
RETURNING second_factor_attempts_count, second_factor_locked_at`
	var st lockout.Status
	err := r.db.Pool.QueryRow(ctx, q, id, maxAttempts).Scan(&st.Attempts, &st.LockedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return lockout.Status{}, errs.ErrNotFound
		}
		return lockout.Status{}, err
	}
	return st, nil
}

// ResetSecondFactor zeroes the attempt counter and clears the lockout mark.
func (r *UserRepo) ResetSecondFactor(ctx context.Context, id uuid.UUID) error {
	const q = `
UPDATE users
SET second_factor_attempts_count = 0, second_factor_locked_at = NULL
WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// SetDirectOTP stores an outstanding one-time code.
func (r *UserRepo) SetDirectOTP(ctx context.Context, id uuid.UUID, code string, sentAt time.Time) error {
	const q = `UPDATE users SET direct_otp=$2, direct_otp_sent_at=$3 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, code, sentAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// ClearDirectOTP removes the outstanding one-time code.
func (r *UserRepo) ClearDirectOTP(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE users SET direct_otp=NULL, direct_otp_sent_at=NULL WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// ConfirmPhone persists a confirmed phone number and enables the second factor.
func (r *UserRepo) ConfirmPhone(ctx context.Context, id uuid.UUID, phone string, at time.Time) error {
	const q = `
UPDATE users
SET phone=$2, phone_confirmed_at=$3, second_factor_enabled=true
WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, phone, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
