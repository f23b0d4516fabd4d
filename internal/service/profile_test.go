package service

import (
	"context"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/govlogin/idp-core/internal/crypto"
	"github.com/govlogin/idp-core/internal/errs"
	"github.com/govlogin/idp-core/internal/events"
	"github.com/govlogin/idp-core/internal/model"
)

var testPII = model.PiiAttributes{
	FirstName: "Jane",
	LastName:  "Doe",
	DOB:       "1920-01-01",
	SSN:       "666-66-1234",
}

const testPassword = "a really long sekrit"

func newProfileService(t *testing.T) (*ProfileServiceImpl, *fakeProfiles, *fakeEmitter) {
	t.Helper()
	enc, err := crypto.NewEncryptor([]byte("server-key-component-0123456789"))
	require.NoError(t, err)
	profiles := newFakeProfiles()
	em := &fakeEmitter{}
	svc := NewProfileService(profiles, enc, crypto.NewFingerprinter([]byte("fp-key")), em, zap.NewNop())
	return svc, profiles, em
}

func testUser() *model.User {
	return &model.User{ID: uuid.Must(uuid.NewV4()), Email: "jane@example.com"}
}

func TestProfileService_CreateWithEncryptedPII(t *testing.T) {
	svc, _, _ := newProfileService(t)
	ctx := context.Background()

	p, err := svc.CreateWithEncryptedPII(ctx, testUser(), testPII, testPassword)
	require.NoError(t, err)
	require.NotEmpty(t, p.EncryptedPII)
	require.NotContains(t, string(p.EncryptedPII), "Jane")
	require.NotContains(t, string(p.EncryptedPII), "666")
	require.NotEmpty(t, p.SSNSignature)
	require.False(t, p.Active)
}

func TestProfileService_CreateWithEncryptedPII_DuplicateActiveSSN(t *testing.T) {
	svc, _, _ := newProfileService(t)
	ctx := context.Background()

	first, err := svc.CreateWithEncryptedPII(ctx, testUser(), testPII, testPassword)
	require.NoError(t, err)
	require.NoError(t, svc.Activate(ctx, first))

	// Another user claiming the same SSN while the first profile is active.
	_, err = svc.CreateWithEncryptedPII(ctx, testUser(), testPII, "another password")
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestProfileService_CreateWithEncryptedPII_SameUserMayRetry(t *testing.T) {
	svc, _, _ := newProfileService(t)
	ctx := context.Background()
	user := testUser()

	first, err := svc.CreateWithEncryptedPII(ctx, user, testPII, testPassword)
	require.NoError(t, err)
	require.NoError(t, svc.Activate(ctx, first))

	// The same user re-verifying with the same SSN is allowed.
	_, err = svc.CreateWithEncryptedPII(ctx, user, testPII, testPassword)
	require.NoError(t, err)
}

func TestProfileService_DecryptPII_RoundTrip(t *testing.T) {
	svc, _, _ := newProfileService(t)
	ctx := context.Background()

	p, err := svc.CreateWithEncryptedPII(ctx, testUser(), testPII, testPassword)
	require.NoError(t, err)

	got, err := svc.DecryptPII(ctx, p, testPassword)
	require.NoError(t, err)
	require.Equal(t, testPII, got)
}

func TestProfileService_DecryptPII_Failures(t *testing.T) {
	svc, _, _ := newProfileService(t)
	ctx := context.Background()

	p, err := svc.CreateWithEncryptedPII(ctx, testUser(), testPII, testPassword)
	require.NoError(t, err)

	_, err = svc.DecryptPII(ctx, p, "wrong password")
	require.ErrorIs(t, err, errs.ErrDecryption)

	empty := &model.Profile{ID: uuid.Must(uuid.NewV4())}
	_, err = svc.DecryptPII(ctx, empty, testPassword)
	require.ErrorIs(t, err, errs.ErrDecryption)
}

func TestProfileService_EncryptPII_Replaces(t *testing.T) {
	svc, _, _ := newProfileService(t)
	ctx := context.Background()

	p, err := svc.CreateWithEncryptedPII(ctx, testUser(), testPII, testPassword)
	require.NoError(t, err)
	old := append([]byte(nil), p.EncryptedPII...)

	updated := testPII
	updated.FirstName = "Janet"
	require.NoError(t, svc.EncryptPII(ctx, p, "new password", updated))
	require.NotEqual(t, old, p.EncryptedPII)

	_, err = svc.DecryptPII(ctx, p, testPassword)
	require.ErrorIs(t, err, errs.ErrDecryption, "old password no longer decrypts")

	got, err := svc.DecryptPII(ctx, p, "new password")
	require.NoError(t, err)
	require.Equal(t, "Janet", got.FirstName)
}

func TestProfileService_Activate_DeactivatesSiblings(t *testing.T) {
	svc, profiles, em := newProfileService(t)
	ctx := context.Background()
	user := testUser()

	a, err := svc.CreateWithEncryptedPII(ctx, user, testPII, testPassword)
	require.NoError(t, err)
	require.NoError(t, svc.Activate(ctx, a))

	other := testPII
	other.SSN = "900-12-3456"
	b, err := svc.CreateWithEncryptedPII(ctx, user, other, testPassword)
	require.NoError(t, err)
	require.NoError(t, svc.Activate(ctx, b))

	reloadedA, err := profiles.GetByID(ctx, a.ID)
	require.NoError(t, err)
	require.False(t, reloadedA.Active)
	require.Nil(t, reloadedA.ActivatedAt)

	active, err := svc.ActiveProfiles(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, b.ID, active[0].ID)

	require.Contains(t, em.typesSeen(), events.TypeProfileActivated)
}

func TestProfileService_Activate_FingerprintRaceLosesCleanly(t *testing.T) {
	svc, _, _ := newProfileService(t)
	ctx := context.Background()

	winner, err := svc.CreateWithEncryptedPII(ctx, testUser(), testPII, testPassword)
	require.NoError(t, err)

	loser, err := svc.CreateWithEncryptedPII(ctx, testUser(), testPII, "other password")
	require.NoError(t, err, "creation passes while nothing is active yet")

	require.NoError(t, svc.Activate(ctx, winner))
	require.ErrorIs(t, svc.Activate(ctx, loser), errs.ErrConflict)
}

func TestProfileService_ActiveProfile_NotFound(t *testing.T) {
	svc, _, _ := newProfileService(t)
	_, err := svc.ActiveProfile(context.Background(), uuid.Must(uuid.NewV4()))
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestProfileService_MarkVerified(t *testing.T) {
	svc, _, _ := newProfileService(t)
	ctx := context.Background()

	p, err := svc.CreateWithEncryptedPII(ctx, testUser(), testPII, testPassword)
	require.NoError(t, err)
	require.False(t, p.Verified())

	require.NoError(t, svc.MarkVerified(ctx, p))
	require.True(t, p.Verified())

	verified, err := svc.VerifiedProfiles(ctx, p.UserID)
	require.NoError(t, err)
	require.Len(t, verified, 1)
}
