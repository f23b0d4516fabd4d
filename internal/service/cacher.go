package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/govlogin/idp-core/internal/crypto"
	"github.com/govlogin/idp-core/internal/errs"
	"github.com/govlogin/idp-core/internal/model"
	"github.com/govlogin/idp-core/internal/session"
)

// PiiCacher re-encrypts the active profile's PII into the session so later
// requests in the same session skip the slow password key derivation. The
// cache is never a source of truth; it can always be rebuilt from the
// profile given the password.
type PiiCacher struct {
	enc      *crypto.Encryptor
	profiles ProfileService
}

// NewPiiCacher constructs a PiiCacher.
func NewPiiCacher(enc *crypto.Encryptor, profiles ProfileService) *PiiCacher {
	return &PiiCacher{enc: enc, profiles: profiles}
}

// Save decrypts the user's active profile with the password and stores the
// PII re-encrypted under the session secret. No-op when the user has no
// active profile.
func (c *PiiCacher) Save(ctx context.Context, user *model.User, sess *session.Session, password string) error {
	profile, err := c.profiles.ActiveProfile(ctx, user.ID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil
		}
		return err
	}
	return c.SaveProfile(ctx, profile, sess, password)
}

// SaveProfile caches a specific profile's PII (e.g., one just created during
// identity verification, before activation).
func (c *PiiCacher) SaveProfile(ctx context.Context, profile *model.Profile, sess *session.Session, password string) error {
	if profile == nil {
		return nil
	}
	pii, err := c.profiles.DecryptPII(ctx, profile, password)
	if err != nil {
		return err
	}
	plaintext, err := json.Marshal(pii)
	if err != nil {
		return err
	}
	secret, err := sess.CacheSecret()
	if err != nil {
		return err
	}
	envelope, err := c.enc.EncryptKeyed(plaintext, secret)
	if err != nil {
		return err
	}
	sess.SetEncryptedPII(envelope)
	return nil
}

// PIIProvider returns a deferred resolver over the session cache, for
// attribute release at assertion-build time. A missing cache entry resolves
// to errs.ErrNotFound; the caller re-populates via Save and retries.
func (c *PiiCacher) PIIProvider(sess *session.Session) func(ctx context.Context) (model.PiiAttributes, error) {
	return func(context.Context) (model.PiiAttributes, error) {
		pii, ok, err := c.Fetch(sess)
		if err != nil {
			return model.PiiAttributes{}, err
		}
		if !ok {
			return model.PiiAttributes{}, errs.ErrNotFound
		}
		return pii, nil
	}
}

// Fetch returns the cached PII. ok is false when no entry exists. An
// errs.ErrDecryption means the cache is stale; callers fall back to
// re-deriving from the profile with the password, never treat it as
// missing PII.
func (c *PiiCacher) Fetch(sess *session.Session) (pii model.PiiAttributes, ok bool, err error) {
	envelope, ok := sess.EncryptedPII()
	if !ok {
		return model.PiiAttributes{}, false, nil
	}
	secret, err := sess.CacheSecret()
	if err != nil {
		return model.PiiAttributes{}, true, err
	}
	plaintext, err := c.enc.DecryptKeyed(envelope, secret)
	if err != nil {
		return model.PiiAttributes{}, true, err
	}
	if err := json.Unmarshal(plaintext, &pii); err != nil {
		return model.PiiAttributes{}, true, errs.ErrDecryption
	}
	return pii, true, nil
}
