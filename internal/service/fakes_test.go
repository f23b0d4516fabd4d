package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/govlogin/idp-core/internal/errs"
	"github.com/govlogin/idp-core/internal/events"
	"github.com/govlogin/idp-core/internal/lockout"
	"github.com/govlogin/idp-core/internal/model"
	"github.com/govlogin/idp-core/internal/repository"
)

/************ fake profile repository ************/

type fakeProfiles struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*model.Profile

	createErr error
	now       func() time.Time
}

var _ repository.ProfileRepository = (*fakeProfiles)(nil)

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{byID: map[uuid.UUID]*model.Profile{}, now: time.Now}
}

func (f *fakeProfiles) Create(_ context.Context, p *model.Profile) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cpy := *p
	f.byID[p.ID] = &cpy
	return nil
}

func (f *fakeProfiles) GetByID(_ context.Context, id uuid.UUID) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cpy := *p
	return &cpy, nil
}

func (f *fakeProfiles) UpdatePII(_ context.Context, id uuid.UUID, encryptedPII []byte, ssnSignature string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	p.EncryptedPII = append([]byte(nil), encryptedPII...)
	p.SSNSignature = ssnSignature
	return nil
}

// Activate mirrors the storage-layer behavior: deactivate siblings, activate
// the target, and fail with ErrConflict when another user's active profile
// already carries the fingerprint.
func (f *fakeProfiles) Activate(_ context.Context, userID, profileID uuid.UUID) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	target, ok := f.byID[profileID]
	if !ok || target.UserID != userID {
		return time.Time{}, errs.ErrNotFound
	}
	if target.SSNSignature != "" {
		for _, p := range f.byID {
			if p.Active && p.UserID != userID && p.SSNSignature == target.SSNSignature {
				return time.Time{}, fmt.Errorf("unique index: %w", errs.ErrConflict)
			}
		}
	}
	for _, p := range f.byID {
		if p.UserID == userID && p.ID != profileID {
			p.Active = false
			p.ActivatedAt = nil
		}
	}
	at := f.now()
	target.Active = true
	target.ActivatedAt = &at
	return at, nil
}

func (f *fakeProfiles) MarkVerified(_ context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	p.VerifiedAt = &at
	return nil
}

func (f *fakeProfiles) ActiveProfiles(_ context.Context, userID uuid.UUID) ([]model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Profile
	for _, p := range f.byID {
		if p.UserID == userID && p.Active {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeProfiles) VerifiedProfiles(_ context.Context, userID uuid.UUID) ([]model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Profile
	for _, p := range f.byID {
		if p.UserID == userID && p.VerifiedAt != nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeProfiles) FindActiveBySignature(_ context.Context, sig string) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.byID {
		if p.Active && p.SSNSignature == sig {
			cpy := *p
			return &cpy, nil
		}
	}
	return nil, errs.ErrNotFound
}

/************ fake user repository ************/

type fakeUsers struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*model.User

	now func() time.Time
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[uuid.UUID]*model.User{}, now: time.Now}
}

func (f *fakeUsers) add(u *model.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cpy := *u
	f.byID[u.ID] = &cpy
}

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if existing.Email == u.Email {
			return fmt.Errorf("email taken: %w", errs.ErrValidation)
		}
	}
	cpy := *u
	f.byID[u.ID] = &cpy
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cpy := *u
	return &cpy, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == email {
			cpy := *u
			return &cpy, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeUsers) RecordFailedSecondFactorAttempt(_ context.Context, id uuid.UUID, maxAttempts int) (lockout.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return lockout.Status{}, errs.ErrNotFound
	}
	u.SecondFactorAttemptsCount++
	if u.SecondFactorAttemptsCount >= maxAttempts && u.SecondFactorLockedAt == nil {
		at := f.now()
		u.SecondFactorLockedAt = &at
	}
	return lockout.Status{Attempts: u.SecondFactorAttemptsCount, LockedAt: u.SecondFactorLockedAt}, nil
}

func (f *fakeUsers) ResetSecondFactor(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	u.SecondFactorAttemptsCount = 0
	u.SecondFactorLockedAt = nil
	return nil
}

func (f *fakeUsers) SetDirectOTP(_ context.Context, id uuid.UUID, code string, sentAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	u.DirectOTP = code
	u.DirectOTPSentAt = &sentAt
	return nil
}

func (f *fakeUsers) ClearDirectOTP(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	u.DirectOTP = ""
	u.DirectOTPSentAt = nil
	return nil
}

func (f *fakeUsers) ConfirmPhone(_ context.Context, id uuid.UUID, phone string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return errs.ErrNotFound
	}
	u.Phone = phone
	u.PhoneConfirmedAt = &at
	u.SecondFactorEnabled = true
	return nil
}

/************ fake event emitter ************/

type fakeEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

var _ events.Emitter = (*fakeEmitter)(nil)

func (f *fakeEmitter) Emit(_ context.Context, e events.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fakeEmitter) typesSeen() []events.Type {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []events.Type
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

func (f *fakeEmitter) last() (events.Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return events.Event{}, false
	}
	return f.events[len(f.events)-1], true
}
