package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/govlogin/idp-core/internal/model"
)

// IdentityRepository links users to relying services through stable
// pseudonymous identifiers.
type IdentityRepository interface {
	// FindOrCreate returns the identity for (user, service provider),
	// creating it with a fresh UUID on first contact and touching
	// last_authenticated_at on every call.
	FindOrCreate(ctx context.Context, userID uuid.UUID, serviceProvider string) (*model.Identity, error)
}
