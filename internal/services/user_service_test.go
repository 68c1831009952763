package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autolenis01/VercelAutoLenis-sub004/internal/faults"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/models"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/utils"
)

func newUserTestServices(t *testing.T) (IUserService, IAffiliateService) {
	_, database := setupTestDB(t, "autolenis_test_user")
	affiliates := NewAffiliateService(database, testConfig())
	return NewUserService(database, testConfig(), affiliates), affiliates
}

func TestCreateUser(t *testing.T) {
	svc, _ := newUserTestServices(t)
	ctx := context.Background()

	user, err := svc.Create(ctx, "Ada", "Ada@Example.COM", models.RoleBuyer, "")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email, "email is normalized")

	found, err := svc.FindByEmail(ctx, "ADA@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	_, err = svc.Create(ctx, "Ada Again", "ada@example.com", models.RoleBuyer, "")
	assert.Error(t, err)

	_, err = svc.Create(ctx, "Ghost", "ghost@example.com", models.Role("wizard"), "")
	assert.Error(t, err)
}

func TestCreateUser_WithReferral(t *testing.T) {
	svc, affiliates := newUserTestServices(t)
	ctx := context.Background()

	referrer, err := svc.Create(ctx, "Ref", "ref@example.com", models.RoleBuyer, "")
	require.NoError(t, err)
	refAccount, err := affiliates.EnsureAffiliate(ctx, referrer.ID)
	require.NoError(t, err)

	user, err := svc.Create(ctx, "New", "new@example.com", models.RoleBuyer, refAccount.ReferralCode)
	require.NoError(t, err)

	ancestors, err := affiliates.AncestorsOf(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, ancestors, 1)
	assert.Equal(t, refAccount.ID, ancestors[0].AffiliateID)

	// A bad code still creates the account; only the referral is dropped.
	orphan, err := svc.Create(ctx, "Orphan", "orphan@example.com", models.RoleBuyer, "NOSUCHCD")
	assert.ErrorIs(t, err, faults.ErrNotFound)
	require.NotNil(t, orphan)
	_, ferr := svc.FindByEmail(ctx, "orphan@example.com")
	assert.NoError(t, ferr)
}

func TestSuspendUser(t *testing.T) {
	svc, _ := newUserTestServices(t)
	ctx := context.Background()

	user, err := svc.Create(ctx, "Sus", "sus@example.com", models.RoleDealer, "")
	require.NoError(t, err)

	require.NoError(t, svc.Suspend(ctx, user.ID))
	reloaded, err := svc.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Suspended)

	assert.ErrorIs(t, svc.Suspend(ctx, utils.NewSixID()), faults.ErrNotFound)
}
