// Package events defines the fire-and-forget event stream consumed by the
// external delivery collaborator (notifications, SMS). The core never waits
// on delivery.
package events

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// Type enumerates emitted event kinds.
type Type string

const (
	TypeOTPSent          Type = "otp_sent"
	TypePhoneConfirmed   Type = "phone_confirmed"
	TypePhoneChanged     Type = "phone_changed"
	TypeLockoutReached   Type = "lockout_reached"
	TypeAccountUnlocked  Type = "account_unlocked"
	TypeProfileActivated Type = "profile_activated"
)

// Event is one user-scoped occurrence. Phone carries the number a delivery
// collaborator should notify (the old number for phone_changed).
type Event struct {
	Type   Type
	UserID uuid.UUID
	Phone  string
	At     time.Time
}

// Emitter accepts events without delivery guarantees.
type Emitter interface {
	Emit(ctx context.Context, e Event)
}

// LogEmitter logs events; the default sink when no collaborator is wired.
type LogEmitter struct {
	log *zap.Logger
}

// NewLogEmitter constructs a LogEmitter.
func NewLogEmitter(log *zap.Logger) *LogEmitter { return &LogEmitter{log: log} }

// Emit writes the event to the structured log.
func (l *LogEmitter) Emit(_ context.Context, e Event) {
	l.log.Info("event",
		zap.String("type", string(e.Type)),
		zap.String("user_id", e.UserID.String()),
		zap.Time("at", e.At),
	)
}
