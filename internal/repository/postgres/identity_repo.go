package postgres

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/govlogin/idp-core/internal/model"
)

// IdentityRepo implements IdentityRepository using PostgreSQL.
type IdentityRepo struct{ db *DB }

// NewIdentityRepo constructs an identity repository.
func NewIdentityRepo(db *DB) *IdentityRepo { return &IdentityRepo{db: db} }

// FindOrCreate upserts the (user, service provider) link and touches
// last_authenticated_at. The generated UUID is kept forever once written.
func (r *IdentityRepo) FindOrCreate(ctx context.Context, userID uuid.UUID, serviceProvider string) (*model.Identity, error) {
	fresh, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	const q = `
INSERT INTO identities (user_id, service_provider, uuid, last_authenticated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (user_id, service_provider)
DO UPDATE SET last_authenticated_at = now()
RETURNING user_id, service_provider, uuid, last_authenticated_at, created_at`
	row := r.db.Pool.QueryRow(ctx, q, userID, serviceProvider, fresh)
	var id model.Identity
	if err := row.Scan(&id.UserID, &id.ServiceProvider, &id.UUID, &id.LastAuthenticatedAt, &id.CreatedAt); err != nil {
		return nil, err
	}
	return &id, nil
}
