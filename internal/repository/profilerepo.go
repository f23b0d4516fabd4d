package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/govlogin/idp-core/internal/model"
)

// ProfileRepository provides access to encrypted-PII profiles. The partial
// unique indexes on (user_id) WHERE active and (ssn_signature) WHERE active
// are the final arbiter for the activation invariants; violations map to
// errs.ErrConflict.
type ProfileRepository interface {
	// Create inserts a new (inactive) profile.
	Create(ctx context.Context, p *model.Profile) error
	// GetByID loads a profile by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Profile, error)

	// UpdatePII replaces the ciphertext and fingerprint in one write.
	UpdatePII(ctx context.Context, id uuid.UUID, encryptedPII []byte, ssnSignature string) error

	// Activate atomically deactivates every other profile of the owner and
	// activates the given one, returning the activation time.
	Activate(ctx context.Context, userID, profileID uuid.UUID) (time.Time, error)

	// MarkVerified records completed identity proofing.
	MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) error

	// ActiveProfiles returns the owner's active profiles (at most one).
	ActiveProfiles(ctx context.Context, userID uuid.UUID) ([]model.Profile, error)
	// VerifiedProfiles returns the owner's verified profiles.
	VerifiedProfiles(ctx context.Context, userID uuid.UUID) ([]model.Profile, error)
	// FindActiveBySignature returns the active profile carrying the given
	// fingerprint, across all users.
	FindActiveBySignature(ctx context.Context, ssnSignature string) (*model.Profile, error)
}
