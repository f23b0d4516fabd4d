// Package session holds the per-session state the core reads and writes.
// Transport (cookies, CSRF) stays outside; callers hand the core a *Session
// resolved from their own session store.
package session

import (
	"sync"
	"time"

	"github.com/govlogin/idp-core/internal/crypto"
)

const cacheSecretLen = 32

// Session is the authenticated-session state bag. Safe for concurrent use
// within the handlers of a single session.
type Session struct {
	mu sync.Mutex

	cacheSecret  []byte
	encryptedPII []byte

	unconfirmedPhone string

	secondFactorSatisfied bool
	authenticatedAt       time.Time
	token                 string

	idvPhoneConfirmedAt *time.Time
}

// New returns an empty session.
func New() *Session { return &Session{} }

// CacheSecret returns the session's cache secret, generating it on first use.
func (s *Session) CacheSecret() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cacheSecret == nil {
		secret, err := crypto.RandBytes(cacheSecretLen)
		if err != nil {
			return nil, err
		}
		s.cacheSecret = secret
	}
	return s.cacheSecret, nil
}

// SetEncryptedPII stores the session-scoped PII envelope.
func (s *Session) SetEncryptedPII(envelope []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encryptedPII = envelope
}

// EncryptedPII returns the cached envelope and whether one exists.
func (s *Session) EncryptedPII() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.encryptedPII, s.encryptedPII != nil
}

// SetUnconfirmedPhone marks a phone number awaiting one-time-code confirmation.
func (s *Session) SetUnconfirmedPhone(phone string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unconfirmedPhone = phone
}

// UnconfirmedPhone returns the pending phone number, if any.
func (s *Session) UnconfirmedPhone() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unconfirmedPhone
}

// ClearUnconfirmedPhone removes the pending-phone marker.
func (s *Session) ClearUnconfirmedPhone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unconfirmedPhone = ""
}

// MarkSecondFactorSatisfied records a successful authentication-context
// second factor together with the issued session token.
func (s *Session) MarkSecondFactorSatisfied(at time.Time, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secondFactorSatisfied = true
	s.authenticatedAt = at
	s.token = token
}

// SecondFactorSatisfied reports whether this session passed the second factor.
func (s *Session) SecondFactorSatisfied() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.secondFactorSatisfied
}

// Token returns the session token issued on second-factor success.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// SetIDVPhoneConfirmedAt records phone confirmation inside an in-progress
// identity-verification flow; the user row is untouched until the flow
// completes.
func (s *Session) SetIDVPhoneConfirmedAt(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := at
	s.idvPhoneConfirmedAt = &t
}

// IDVPhoneConfirmedAt returns the in-flow phone confirmation time, if set.
func (s *Session) IDVPhoneConfirmedAt() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idvPhoneConfirmedAt
}

// SignOut clears all session state, including the PII cache and its secret.
func (s *Session) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheSecret = nil
	s.encryptedPII = nil
	s.unconfirmedPhone = ""
	s.secondFactorSatisfied = false
	s.authenticatedAt = time.Time{}
	s.token = ""
	s.idvPhoneConfirmedAt = nil
}
