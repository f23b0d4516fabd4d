package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/govlogin/idp-core/internal/crypto"
	"github.com/govlogin/idp-core/internal/errs"
)

func TestAccountService_CreateUser(t *testing.T) {
	users := newFakeUsers()
	svc := NewAccountService(users, zap.NewNop())
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "", "")
	require.ErrorIs(t, err, errs.ErrValidation)

	u, err := svc.CreateUser(ctx, "jane@example.com", "pw")
	require.NoError(t, err)
	require.True(t, crypto.VerifyPassword([]byte("pw"), u.SaltAuth, u.PwdHash))

	_, err = svc.CreateUser(ctx, "jane@example.com", "pw2")
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestAccountService_FindOrCreateByEmail(t *testing.T) {
	users := newFakeUsers()
	svc := NewAccountService(users, zap.NewNop())
	ctx := context.Background()

	created, err := svc.FindOrCreateByEmail(ctx, "omniauth@example.com")
	require.NoError(t, err)
	require.NotNil(t, created.ConfirmedAt, "externally signed-in users arrive pre-confirmed")

	again, err := svc.FindOrCreateByEmail(ctx, "omniauth@example.com")
	require.NoError(t, err)
	require.Equal(t, created.ID, again.ID)
}
