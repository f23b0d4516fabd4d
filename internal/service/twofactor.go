package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/govlogin/idp-core/internal/errs"
	"github.com/govlogin/idp-core/internal/events"
	"github.com/govlogin/idp-core/internal/lockout"
	"github.com/govlogin/idp-core/internal/model"
	"github.com/govlogin/idp-core/internal/repository"
	"github.com/govlogin/idp-core/internal/session"
)

// VerificationContext selects the success side effects of a one-time-code
// verification. Lockout accounting is shared across contexts for a given user.
type VerificationContext string

const (
	// ContextAuthentication is the normal login second factor.
	ContextAuthentication VerificationContext = "authentication"
	// ContextConfirmation is first-time phone/second-factor setup.
	ContextConfirmation VerificationContext = "confirmation"
	// ContextIDV is phone confirmation inside identity verification.
	ContextIDV VerificationContext = "idv"
)

// ParseVerificationContext maps a raw context string, defaulting to
// authentication the way the entry point always has.
func ParseVerificationContext(s string) VerificationContext {
	switch VerificationContext(s) {
	case ContextConfirmation, ContextIDV:
		return VerificationContext(s)
	default:
		return ContextAuthentication
	}
}

const otpDigits = 6

// TwoFactorConfig carries the lockout and code policy. Passed explicitly at
// construction; never ambient.
type TwoFactorConfig struct {
	MaxAttempts int
	Window      time.Duration // lockout duration; expiry is checked lazily
	OTPTTL      time.Duration // one-time-code validity
	// BypassSignupLockout skips failure accounting while the user has no
	// confirmed second factor yet, so a new user is never locked out before
	// setup completes. Deliberate policy, not a bug.
	BypassSignupLockout bool

	SessionSignKey []byte // HS256 key for the session token
	SessionTTL     time.Duration
}

// TwoFactorService runs the one-time-code attempt/lockout state machine.
type TwoFactorService interface {
	// CreateDirectOTP generates, persists and announces a fresh code.
	CreateDirectOTP(ctx context.Context, userID uuid.UUID) (string, error)
	// VerifyCode gates on lockout state, checks the submitted code and
	// applies the context's success side effects.
	VerifyCode(ctx context.Context, userID uuid.UUID, sess *session.Session, code string, vctx VerificationContext) error
	// AdminUnlock clears the lockout administratively.
	AdminUnlock(ctx context.Context, userID uuid.UUID) error
}

type TwoFactorServiceImpl struct {
	users  repository.UserRepository
	cfg    TwoFactorConfig
	events events.Emitter
	log    *zap.Logger
	now    func() time.Time
}

// NewTwoFactorService constructs TwoFactorService with required dependencies.
func NewTwoFactorService(users repository.UserRepository, cfg TwoFactorConfig, em events.Emitter, log *zap.Logger) *TwoFactorServiceImpl {
	return &TwoFactorServiceImpl{users: users, cfg: cfg, events: em, log: log, now: time.Now}
}

// CreateDirectOTP generates a fresh numeric code, stores it as the user's
// outstanding code and emits otp_sent for the delivery collaborator.
func (s *TwoFactorServiceImpl) CreateDirectOTP(ctx context.Context, userID uuid.UUID) (string, error) {
	code, err := generateOTP()
	if err != nil {
		return "", err
	}
	sentAt := s.now()
	if err := s.users.SetDirectOTP(ctx, userID, code, sentAt); err != nil {
		return "", err
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	s.events.Emit(ctx, events.Event{Type: events.TypeOTPSent, UserID: userID, Phone: u.Phone, At: sentAt})
	return code, nil
}

// VerifyCode is the single entry point for all three verification contexts.
// The lockout gate runs before the code is evaluated and always against
// freshly loaded state, even if a caller checked earlier in the request.
func (s *TwoFactorServiceImpl) VerifyCode(ctx context.Context, userID uuid.UUID, sess *session.Session, code string, vctx VerificationContext) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	now := s.now()

	st := lockout.Status{Attempts: user.SecondFactorAttemptsCount, LockedAt: user.SecondFactorLockedAt}
	if st.Locked(now, s.cfg.Window) {
		return s.lockedOut(ctx, user, sess, now)
	}
	if st.Expired(now, s.cfg.Window) {
		if err := s.users.ResetSecondFactor(ctx, userID); err != nil {
			return err
		}
	}

	if !s.codeValid(user, code, now) {
		return s.handleInvalidCode(ctx, user, sess, vctx, now)
	}

	if err := s.users.ClearDirectOTP(ctx, userID); err != nil {
		return err
	}
	switch vctx {
	case ContextConfirmation, ContextIDV:
		return s.handleValidForConfirmation(ctx, user, sess, vctx, now)
	default:
		return s.handleValidForAuthentication(ctx, user, sess, now)
	}
}

// AdminUnlock resets the counter and lockout mark outside any session.
func (s *TwoFactorServiceImpl) AdminUnlock(ctx context.Context, userID uuid.UUID) error {
	if err := s.users.ResetSecondFactor(ctx, userID); err != nil {
		return err
	}
	s.events.Emit(ctx, events.Event{Type: events.TypeAccountUnlocked, UserID: userID, At: s.now()})
	return nil
}

func (s *TwoFactorServiceImpl) codeValid(user *model.User, code string, now time.Time) bool {
	if user.DirectOTP == "" || code == "" {
		return false
	}
	if user.DirectOTPSentAt == nil || now.Sub(*user.DirectOTPSentAt) > s.cfg.OTPTTL {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(user.DirectOTP), []byte(code)) == 1
}

func (s *TwoFactorServiceImpl) handleInvalidCode(ctx context.Context, user *model.User, sess *session.Session, vctx VerificationContext, now time.Time) error {
	if s.cfg.BypassSignupLockout && !user.SecondFactorEnabled {
		return fmt.Errorf("one-time code: %w", errs.ErrUnauthorized)
	}
	st, err := s.users.RecordFailedSecondFactorAttempt(ctx, user.ID, s.cfg.MaxAttempts)
	if err != nil {
		return err
	}
	if st.Locked(now, s.cfg.Window) {
		return s.lockedOut(ctx, user, sess, now)
	}
	return fmt.Errorf("one-time code: %w", errs.ErrUnauthorized)
}

// lockedOut terminates the current session; the caller renders the
// max-attempts notice. The counter is not incremented further.
func (s *TwoFactorServiceImpl) lockedOut(ctx context.Context, user *model.User, sess *session.Session, now time.Time) error {
	if sess != nil {
		sess.SignOut()
	}
	s.events.Emit(ctx, events.Event{Type: events.TypeLockoutReached, UserID: user.ID, Phone: user.Phone, At: now})
	s.log.Info("user reached max 2FA attempts", zap.String("user_id", user.ID.String()))
	return errs.ErrLockedOut
}

func (s *TwoFactorServiceImpl) handleValidForAuthentication(ctx context.Context, user *model.User, sess *session.Session, now time.Time) error {
	if err := s.users.ResetSecondFactor(ctx, user.ID); err != nil {
		return err
	}
	token, err := s.issueSessionToken(user.ID, now)
	if err != nil {
		return err
	}
	if sess != nil {
		sess.MarkSecondFactorSatisfied(now, token)
	}
	return nil
}

// handleValidForConfirmation persists the verified phone number and clears
// the pending-phone marker. IDV records into the in-progress verification
// session instead of the user row. The shared counter is not reset here.
func (s *TwoFactorServiceImpl) handleValidForConfirmation(ctx context.Context, user *model.User, sess *session.Session, vctx VerificationContext, now time.Time) error {
	phone := user.Phone
	if sess != nil {
		if pending := sess.UnconfirmedPhone(); pending != "" {
			phone = pending
		}
	}
	if phone == "" {
		return fmt.Errorf("no phone to confirm: %w", errs.ErrPrecondition)
	}

	if user.Phone != "" && user.Phone != phone {
		// Notify the old number about the change.
		s.events.Emit(ctx, events.Event{Type: events.TypePhoneChanged, UserID: user.ID, Phone: user.Phone, At: now})
	} else {
		s.events.Emit(ctx, events.Event{Type: events.TypePhoneConfirmed, UserID: user.ID, Phone: phone, At: now})
	}

	if vctx == ContextIDV {
		if sess != nil {
			sess.SetIDVPhoneConfirmedAt(now)
		}
	} else {
		if err := s.users.ConfirmPhone(ctx, user.ID, phone, now); err != nil {
			return err
		}
	}
	if sess != nil {
		sess.ClearUnconfirmedPhone()
	}
	return nil
}

// issueSessionToken creates a signed HS256 JWT marking the session as
// second-factor-satisfied.
func (s *TwoFactorServiceImpl) issueSessionToken(userID uuid.UUID, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.SessionTTL)),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(s.cfg.SessionSignKey)
}

// generateOTP returns a fixed-length numeric code from crypto/rand.
func generateOTP() (string, error) {
	bound := big.NewInt(1)
	for i := 0; i < otpDigits; i++ {
		bound.Mul(bound, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n), nil
}
