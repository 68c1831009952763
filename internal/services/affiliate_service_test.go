package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/autolenis01/VercelAutoLenis-sub004/internal/faults"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/models"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/utils"
)

func TestEnsureAffiliate_Idempotent(t *testing.T) {
	_, database := setupTestDB(t, "autolenis_test_affiliate")
	svc := NewAffiliateService(database, testConfig())
	ctx := context.Background()

	userID := utils.NewSixID()
	first, err := svc.EnsureAffiliate(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, models.AffiliateActive, first.Status)
	assert.Len(t, first.ReferralCode, 8)

	second, err := svc.EnsureAffiliate(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.ReferralCode, second.ReferralCode)
}

func TestRegisterReferral_BuildsChain(t *testing.T) {
	_, database := setupTestDB(t, "autolenis_test_affiliate")
	svc := NewAffiliateService(database, testConfig())
	ctx := context.Background()

	// Seven users in a referral line; the chain recorded for the last one
	// must stop at five levels.
	users := make([]utils.SixID, 7)
	affiliates := make([]*models.Affiliate, 7)
	for i := range users {
		users[i] = utils.NewSixID()
		aff, err := svc.EnsureAffiliate(ctx, users[i])
		require.NoError(t, err)
		affiliates[i] = aff
		if i > 0 {
			require.NoError(t, svc.RegisterReferral(ctx, users[i], affiliates[i-1].ReferralCode))
		}
	}

	ancestors, err := svc.AncestorsOf(ctx, users[6])
	require.NoError(t, err)
	require.Len(t, ancestors, MaxReferralLevels)
	for i, anc := range ancestors {
		assert.Equal(t, i+1, anc.Level)
		assert.Equal(t, affiliates[5-i].ID, anc.AffiliateID, "level %d should be the ancestor %d hops up", i+1, i+1)
	}
}

func TestRegisterReferral_Rejections(t *testing.T) {
	_, database := setupTestDB(t, "autolenis_test_affiliate")
	svc := NewAffiliateService(database, testConfig())
	ctx := context.Background()

	referrerUser := utils.NewSixID()
	referrer, err := svc.EnsureAffiliate(ctx, referrerUser)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.RegisterReferral(ctx, utils.NewSixID(), "NOSUCHCD"), faults.ErrNotFound)
	assert.ErrorIs(t, svc.RegisterReferral(ctx, referrerUser, referrer.ReferralCode), faults.ErrSelfReferral)

	newUser := utils.NewSixID()
	require.NoError(t, svc.RegisterReferral(ctx, newUser, referrer.ReferralCode))

	// A user gets exactly one direct referrer, ever.
	other, err := svc.EnsureAffiliate(ctx, utils.NewSixID())
	require.NoError(t, err)
	assert.ErrorIs(t, svc.RegisterReferral(ctx, newUser, other.ReferralCode), faults.ErrReferralExists)
	assert.ErrorIs(t, svc.RegisterReferral(ctx, newUser, referrer.ReferralCode), faults.ErrReferralExists)
}

func TestRegisterReferral_CycleRejected(t *testing.T) {
	_, database := setupTestDB(t, "autolenis_test_affiliate")
	svc := NewAffiliateService(database, testConfig())
	ctx := context.Background()

	userA := utils.NewSixID()
	userB := utils.NewSixID()
	affA, err := svc.EnsureAffiliate(ctx, userA)
	require.NoError(t, err)
	require.NoError(t, svc.RegisterReferral(ctx, userB, affA.ReferralCode))

	affB, err := svc.EnsureAffiliate(ctx, userB)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.RegisterReferral(ctx, userA, affB.ReferralCode), faults.ErrReferralCycle)
}

func TestRegisterReferral_SuspendedReferrer(t *testing.T) {
	_, database := setupTestDB(t, "autolenis_test_affiliate")
	svc := NewAffiliateService(database, testConfig())
	ctx := context.Background()

	referrer, err := svc.EnsureAffiliate(ctx, utils.NewSixID())
	require.NoError(t, err)

	_, err = database.Collection(affiliatesCollection).UpdateOne(ctx,
		bson.M{"_id": referrer.ID},
		bson.M{"$set": bson.M{"status": models.AffiliateSuspended}})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.RegisterReferral(ctx, utils.NewSixID(), referrer.ReferralCode), faults.ErrUnauthorized)
}

func TestDashboard(t *testing.T) {
	_, database := setupTestDB(t, "autolenis_test_affiliate")
	svc := NewAffiliateService(database, testConfig())
	ctx := context.Background()

	topUser := utils.NewSixID()
	top, err := svc.EnsureAffiliate(ctx, topUser)
	require.NoError(t, err)

	midUser := utils.NewSixID()
	require.NoError(t, svc.RegisterReferral(ctx, midUser, top.ReferralCode))
	mid, err := svc.EnsureAffiliate(ctx, midUser)
	require.NoError(t, err)
	require.NoError(t, svc.RegisterReferral(ctx, utils.NewSixID(), mid.ReferralCode))

	dash, err := svc.Dashboard(ctx, topUser)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dash.DirectReferrals)
	assert.Equal(t, int64(2), dash.TotalReferrals, "level-2 descendant counts toward the total")
	assert.Equal(t, int64(0), dash.AvailablePayout)
}

func TestDashboard_AvailablePayoutCoversWholeLedger(t *testing.T) {
	_, database := setupTestDB(t, "autolenis_test_affiliate")
	svc := NewAffiliateService(database, testConfig())
	ctx := context.Background()

	userID := utils.NewSixID()
	aff, err := svc.EnsureAffiliate(ctx, userID)
	require.NoError(t, err)

	// More approved commissions than the dashboard's recent-activity
	// window shows. The payable total must still count every one.
	now := time.Now().UTC()
	docs := make([]interface{}, 0, 120)
	for i := 0; i < 120; i++ {
		c := &models.Commission{
			AffiliateID: aff.ID,
			DealID:      utils.NewSixID(),
			Level:       1,
			AmountCents: 100,
			Status:      models.CommissionApproved,
			CreatedAt:   now.Add(-time.Duration(i) * time.Minute),
			MaturesAt:   now,
			UpdatedAt:   now,
		}
		c.GenID()
		docs = append(docs, c)
	}
	_, err = database.Collection(commissionsCollection).InsertMany(ctx, docs)
	require.NoError(t, err)

	dash, err := svc.Dashboard(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, dash.Commissions, 100)
	assert.Equal(t, int64(12000), dash.AvailablePayout)
}
