// Package service contains application services for the encrypted PII
// lifecycle, the second-factor flow and session PII caching.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/govlogin/idp-core/internal/crypto"
	"github.com/govlogin/idp-core/internal/errs"
	"github.com/govlogin/idp-core/internal/events"
	"github.com/govlogin/idp-core/internal/model"
	"github.com/govlogin/idp-core/internal/repository"
)

// ProfileService owns the encrypted PII lifecycle of user profiles.
type ProfileService interface {
	// CreateWithEncryptedPII encrypts pii under the user's password and
	// persists a new inactive profile with its identity fingerprint.
	CreateWithEncryptedPII(ctx context.Context, user *model.User, pii model.PiiAttributes, password string) (*model.Profile, error)
	// EncryptPII re-encrypts pii into the profile (replacement semantics).
	EncryptPII(ctx context.Context, profile *model.Profile, password string, pii model.PiiAttributes) error
	// DecryptPII decrypts the profile's PII with the user's password.
	DecryptPII(ctx context.Context, profile *model.Profile, password string) (model.PiiAttributes, error)
	// Activate makes the profile the user's single active one.
	Activate(ctx context.Context, profile *model.Profile) error
	// MarkVerified records completed identity proofing.
	MarkVerified(ctx context.Context, profile *model.Profile) error
	// ActiveProfile returns the user's active profile, errs.ErrNotFound if none.
	ActiveProfile(ctx context.Context, userID uuid.UUID) (*model.Profile, error)
	// ActiveProfiles returns the user's active profiles (at most one).
	ActiveProfiles(ctx context.Context, userID uuid.UUID) ([]model.Profile, error)
	// VerifiedProfiles returns the user's verified profiles.
	VerifiedProfiles(ctx context.Context, userID uuid.UUID) ([]model.Profile, error)
}

type ProfileServiceImpl struct {
	profiles repository.ProfileRepository
	enc      *crypto.Encryptor
	fp       *crypto.Fingerprinter
	events   events.Emitter
	log      *zap.Logger
	now      func() time.Time
}

// NewProfileService constructs ProfileService with required dependencies.
func NewProfileService(profiles repository.ProfileRepository, enc *crypto.Encryptor, fp *crypto.Fingerprinter, em events.Emitter, log *zap.Logger) *ProfileServiceImpl {
	return &ProfileServiceImpl{
		profiles: profiles,
		enc:      enc,
		fp:       fp,
		events:   em,
		log:      log,
		now:      time.Now,
	}
}

// CreateWithEncryptedPII encrypts pii and persists a new inactive profile.
// A fingerprint already held by another user's active profile fails with
// errs.ErrValidation; the partial unique index remains the arbiter for
// races at activation time.
func (s *ProfileServiceImpl) CreateWithEncryptedPII(ctx context.Context, user *model.User, pii model.PiiAttributes, password string) (*model.Profile, error) {
	if user == nil || password == "" {
		return nil, fmt.Errorf("user/password required: %w", errs.ErrValidation)
	}

	sig := s.fp.Fingerprint(pii.SSN)
	if sig != "" {
		existing, err := s.profiles.FindActiveBySignature(ctx, sig)
		if err != nil && !errors.Is(err, errs.ErrNotFound) {
			return nil, err
		}
		if existing != nil && existing.UserID != user.ID {
			return nil, fmt.Errorf("ssn already claimed by an active profile: %w", errs.ErrValidation)
		}
	}

	ciphertext, err := s.encrypt(pii, password)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	p := &model.Profile{
		ID:           id,
		UserID:       user.ID,
		EncryptedPII: ciphertext,
		SSNSignature: sig,
	}
	if err := s.profiles.Create(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info("profile created", zap.String("user_id", user.ID.String()), zap.String("profile_id", id.String()))
	return p, nil
}

// EncryptPII re-derives the key and overwrites the profile ciphertext and
// fingerprint in one write. Re-encryption under a new password produces a
// full replacement, never a partial mutation.
func (s *ProfileServiceImpl) EncryptPII(ctx context.Context, profile *model.Profile, password string, pii model.PiiAttributes) error {
	if profile == nil || password == "" {
		return fmt.Errorf("profile/password required: %w", errs.ErrValidation)
	}
	ciphertext, err := s.encrypt(pii, password)
	if err != nil {
		return err
	}
	sig := s.fp.Fingerprint(pii.SSN)
	if err := s.profiles.UpdatePII(ctx, profile.ID, ciphertext, sig); err != nil {
		return err
	}
	profile.EncryptedPII = ciphertext
	profile.SSNSignature = sig
	return nil
}

// DecryptPII returns the profile's plaintext PII. Absent ciphertext and a
// wrong password both surface as errs.ErrDecryption.
func (s *ProfileServiceImpl) DecryptPII(_ context.Context, profile *model.Profile, password string) (model.PiiAttributes, error) {
	if profile == nil || len(profile.EncryptedPII) == 0 {
		return model.PiiAttributes{}, errs.ErrDecryption
	}
	plaintext, err := s.enc.Decrypt(profile.EncryptedPII, []byte(password))
	if err != nil {
		return model.PiiAttributes{}, err
	}
	var pii model.PiiAttributes
	if err := json.Unmarshal(plaintext, &pii); err != nil {
		return model.PiiAttributes{}, errs.ErrDecryption
	}
	return pii, nil
}

// Activate flips the profile to active and deactivates all siblings
// atomically. A losing race returns errs.ErrConflict.
func (s *ProfileServiceImpl) Activate(ctx context.Context, profile *model.Profile) error {
	if profile == nil {
		return fmt.Errorf("profile required: %w", errs.ErrValidation)
	}
	at, err := s.profiles.Activate(ctx, profile.UserID, profile.ID)
	if err != nil {
		return err
	}
	profile.Active = true
	profile.ActivatedAt = &at
	s.events.Emit(ctx, events.Event{
		Type:   events.TypeProfileActivated,
		UserID: profile.UserID,
		At:     s.now(),
	})
	return nil
}

// MarkVerified records completed identity proofing on the profile.
func (s *ProfileServiceImpl) MarkVerified(ctx context.Context, profile *model.Profile) error {
	if profile == nil {
		return fmt.Errorf("profile required: %w", errs.ErrValidation)
	}
	at := s.now()
	if err := s.profiles.MarkVerified(ctx, profile.ID, at); err != nil {
		return err
	}
	profile.VerifiedAt = &at
	return nil
}

// ActiveProfile returns the user's single active profile.
func (s *ProfileServiceImpl) ActiveProfile(ctx context.Context, userID uuid.UUID) (*model.Profile, error) {
	ps, err := s.profiles.ActiveProfiles(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(ps) == 0 {
		return nil, errs.ErrNotFound
	}
	return &ps[0], nil
}

// ActiveProfiles returns the user's active profiles.
func (s *ProfileServiceImpl) ActiveProfiles(ctx context.Context, userID uuid.UUID) ([]model.Profile, error) {
	return s.profiles.ActiveProfiles(ctx, userID)
}

// VerifiedProfiles returns the user's verified profiles.
func (s *ProfileServiceImpl) VerifiedProfiles(ctx context.Context, userID uuid.UUID) ([]model.Profile, error) {
	return s.profiles.VerifiedProfiles(ctx, userID)
}

func (s *ProfileServiceImpl) encrypt(pii model.PiiAttributes, password string) ([]byte, error) {
	plaintext, err := json.Marshal(pii)
	if err != nil {
		return nil, err
	}
	return s.enc.Encrypt(plaintext, []byte(password))
}
