package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/govlogin/idp-core/internal/errs"
	"github.com/govlogin/idp-core/internal/model"
)

// ProfileRepo implements ProfileRepository using PostgreSQL. The partial
// unique indexes idx_profiles_user_active and idx_profiles_ssn_active are
// the final arbiter for the activation invariants.
type ProfileRepo struct{ db *DB }

// NewProfileRepo constructs a profile repository.
func NewProfileRepo(db *DB) *ProfileRepo { return &ProfileRepo{db: db} }

const profileColumns = `id, user_id, active, verified_at, activated_at, encrypted_pii, ssn_signature, created_at`

// Create inserts a new (inactive) profile row.
func (r *ProfileRepo) Create(ctx context.Context, p *model.Profile) error {
	const q = `
INSERT INTO profiles (id, user_id, active, verified_at, activated_at, encrypted_pii, ssn_signature)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.Pool.Exec(ctx, q,
		p.ID, p.UserID, p.Active, p.VerifiedAt, p.ActivatedAt, p.EncryptedPII, nullStr(p.SSNSignature))
	if isUniqueViolation(err) {
		return fmt.Errorf("profile: %w", errs.ErrConflict)
	}
	return err
}

// GetByID selects a profile by ID.
func (r *ProfileRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id=$1`, id)
	return scanProfile(row)
}

// UpdatePII replaces ciphertext and fingerprint in one write.
func (r *ProfileRepo) UpdatePII(ctx context.Context, id uuid.UUID, encryptedPII []byte, ssnSignature string) error {
	const q = `UPDATE profiles SET encrypted_pii=$2, ssn_signature=$3 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, encryptedPII, nullStr(ssnSignature))
	if isUniqueViolation(err) {
		return fmt.Errorf("profile pii: %w", errs.ErrConflict)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Activate deactivates all sibling profiles and activates the target inside
// one transaction. A losing race surfaces as errs.ErrConflict via the
// partial unique indexes, never as silent corruption.
func (r *ProfileRepo) Activate(ctx context.Context, userID, profileID uuid.UUID) (at time.Time, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return time.Time{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			if isUniqueViolation(e) {
				e = fmt.Errorf("activate: %w", errs.ErrConflict)
			}
			err = e
		}
	}()

	const deactivate = `
UPDATE profiles SET active=false, activated_at=NULL
WHERE user_id=$1 AND id<>$2 AND active`
	if _, err = tx.Exec(ctx, deactivate, userID, profileID); err != nil {
		return time.Time{}, err
	}

	const activate = `
UPDATE profiles SET active=true, activated_at=now()
WHERE id=$1 AND user_id=$2
RETURNING activated_at`
	row := tx.QueryRow(ctx, activate, profileID, userID)
	if scanErr := row.Scan(&at); scanErr != nil {
		switch {
		case errors.Is(scanErr, pgx.ErrNoRows):
			err = errs.ErrNotFound
		case isUniqueViolation(scanErr):
			err = fmt.Errorf("activate: %w", errs.ErrConflict)
		default:
			err = scanErr
		}
		return time.Time{}, err
	}
	return at, nil
}

// MarkVerified records completed identity proofing.
func (r *ProfileRepo) MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	const q = `UPDATE profiles SET verified_at=$2 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// ActiveProfiles returns the user's active profiles (at most one by invariant).
func (r *ProfileRepo) ActiveProfiles(ctx context.Context, userID uuid.UUID) ([]model.Profile, error) {
	return r.list(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id=$1 AND active`, userID)
}

// VerifiedProfiles returns the user's verified profiles.
func (r *ProfileRepo) VerifiedProfiles(ctx context.Context, userID uuid.UUID) ([]model.Profile, error) {
	return r.list(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id=$1 AND verified_at IS NOT NULL`, userID)
}

// FindActiveBySignature returns the single active profile carrying the
// fingerprint, across all users.
func (r *ProfileRepo) FindActiveBySignature(ctx context.Context, ssnSignature string) (*model.Profile, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE ssn_signature=$1 AND active`, ssnSignature)
	return scanProfile(row)
}

func (r *ProfileRepo) list(ctx context.Context, q string, userID uuid.UUID) ([]model.Profile, error) {
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Profile
	for rows.Next() {
		var p model.Profile
		var sig *string
		if err := rows.Scan(&p.ID, &p.UserID, &p.Active, &p.VerifiedAt, &p.ActivatedAt,
			&p.EncryptedPII, &sig, &p.CreatedAt); err != nil {
			return nil, err
		}
		if sig != nil {
			p.SSNSignature = *sig
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProfile(row pgx.Row) (*model.Profile, error) {
	var p model.Profile
	var sig *string
	err := row.Scan(&p.ID, &p.UserID, &p.Active, &p.VerifiedAt, &p.ActivatedAt,
		&p.EncryptedPII, &sig, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, errs.ErrNotFound
	}
	if sig != nil {
		p.SSNSignature = *sig
	}
	return &p, nil
}
