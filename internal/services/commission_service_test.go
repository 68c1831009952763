package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/autolenis01/VercelAutoLenis-sub004/internal/db"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/faults"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/models"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/utils"
)

type commissionFixture struct {
	svc        ICommissionService
	affiliates IAffiliateService
	database   *mongo.Database
	buyerID    utils.SixID
	// chain[0] is the level-1 referrer of buyerID, chain[4] level 5.
	chain []*models.Affiliate
	deal  *models.Deal
}

// setupCommissionFixture builds a five-deep referral chain above a buyer
// with a completed deal and a succeeded $499.00 service fee.
func setupCommissionFixture(t *testing.T) *commissionFixture {
	t.Helper()
	client, database := setupTestDB(t, "autolenis_test_commission")
	cfg := testConfig()
	affiliates := NewAffiliateService(database, cfg)
	svc := NewCommissionService(database, client, cfg, &stubConfig{}, affiliates, nil)
	ctx := context.Background()

	users := make([]utils.SixID, 6)
	accounts := make([]*models.Affiliate, 6)
	for i := range users {
		users[i] = utils.NewSixID()
		aff, err := affiliates.EnsureAffiliate(ctx, users[i])
		require.NoError(t, err)
		accounts[i] = aff
		if i > 0 {
			require.NoError(t, affiliates.RegisterReferral(ctx, users[i], accounts[i-1].ReferralCode))
		}
	}
	buyerID := users[5]

	now := time.Now().UTC()
	deal := &models.Deal{
		AuctionID:    utils.NewSixID(),
		OfferID:      utils.NewSixID(),
		BuyerID:      buyerID,
		DealerID:     utils.NewSixID(),
		VehicleID:    utils.NewSixID(),
		CashOTDCents: 3200000,
		Status:       models.DealComplete,
		StageTimes:   map[string]time.Time{string(models.DealComplete): now},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	deal, err := db.InsertOne(ctx, database.Collection(dealsCollection), deal)
	require.NoError(t, err)

	fee := &models.ServiceFeePayment{
		DealID:       deal.ID,
		BuyerID:      buyerID,
		BaseFeeCents: 49900,
		AmountCents:  49900,
		Status:       models.PaymentSucceeded,
		CreatedAt:    now,
		ConfirmedAt:  &now,
	}
	_, err = db.InsertOne(ctx, database.Collection(serviceFeesCollection), fee)
	require.NoError(t, err)

	// chain[0] is the affiliate of users[4], the buyer's direct referrer.
	chain := make([]*models.Affiliate, 5)
	for i := 0; i < 5; i++ {
		chain[i] = accounts[4-i]
	}
	return &commissionFixture{
		svc:        svc,
		affiliates: affiliates,
		database:   database,
		buyerID:    buyerID,
		chain:      chain,
		deal:       deal,
	}
}

func (f *commissionFixture) reloadAffiliate(t *testing.T, id utils.SixID) *models.Affiliate {
	t.Helper()
	var aff models.Affiliate
	require.NoError(t, f.database.Collection(affiliatesCollection).FindOne(context.Background(), bson.M{"_id": id}).Decode(&aff))
	return &aff
}

func TestCommissionAmount_RoundsHalfUp(t *testing.T) {
	assert.Equal(t, int64(9980), commissionAmount(49900, 2000))
	assert.Equal(t, int64(1497), commissionAmount(49900, 300)) // 1497.0
	assert.Equal(t, int64(3), commissionAmount(25, 1000))      // 2.5 rounds up
	assert.Equal(t, int64(0), commissionAmount(1, 300))        // 0.03 rounds down
}

func TestProcessCompletion_FiveLevelSplit(t *testing.T) {
	f := setupCommissionFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.ProcessCompletion(ctx, f.deal))

	// $499.00 at 20%/15%/10%/5%/3%.
	expected := []int64{9980, 7485, 4990, 2495, 1497}
	for i, aff := range f.chain {
		var c models.Commission
		err := f.database.Collection(commissionsCollection).FindOne(ctx, bson.M{
			"affiliate_id": aff.ID,
			"deal_id":      f.deal.ID,
		}).Decode(&c)
		require.NoError(t, err, "level %d commission missing", i+1)
		assert.Equal(t, i+1, c.Level)
		assert.Equal(t, expected[i], c.AmountCents)
		assert.Equal(t, models.CommissionPending, c.Status)
		assert.WithinDuration(t, time.Now().UTC().Add(14*24*time.Hour), c.MaturesAt, time.Minute)

		assert.Equal(t, expected[i], f.reloadAffiliate(t, aff.ID).PendingCents)
	}
}

func TestProcessCompletion_Idempotent(t *testing.T) {
	f := setupCommissionFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.ProcessCompletion(ctx, f.deal))
	require.NoError(t, f.svc.ProcessCompletion(ctx, f.deal))

	count, err := f.database.Collection(commissionsCollection).CountDocuments(ctx, bson.M{"deal_id": f.deal.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)

	// Balances were credited exactly once.
	assert.Equal(t, int64(9980), f.reloadAffiliate(t, f.chain[0].ID).PendingCents)
}

func TestProcessCompletion_RepairsLostCredit(t *testing.T) {
	f := setupCommissionFixture(t)
	ctx := context.Background()

	// A run that stopped after posting the level-1 row but before
	// crediting the balance leaves the ledger ahead of the counter.
	now := time.Now().UTC()
	_, err := db.InsertOne(ctx, f.database.Collection(commissionsCollection), &models.Commission{
		AffiliateID: f.chain[0].ID,
		DealID:      f.deal.ID,
		Level:       1,
		AmountCents: 9980,
		Status:      models.CommissionPending,
		CreatedAt:   now,
		MaturesAt:   now.Add(14 * 24 * time.Hour),
		UpdatedAt:   now,
	})
	require.NoError(t, err)
	require.Equal(t, int64(0), f.reloadAffiliate(t, f.chain[0].ID).PendingCents)

	// The rerun posts the remaining levels and rebuilds the level-1
	// counter from the ledger instead of leaving it short forever.
	require.NoError(t, f.svc.ProcessCompletion(ctx, f.deal))

	expected := []int64{9980, 7485, 4990, 2495, 1497}
	for i, aff := range f.chain {
		assert.Equal(t, expected[i], f.reloadAffiliate(t, aff.ID).PendingCents, "level %d", i+1)
	}
	count, err := f.database.Collection(commissionsCollection).CountDocuments(ctx, bson.M{"deal_id": f.deal.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}

func TestProcessCompletion_NoFeeNoCommissions(t *testing.T) {
	f := setupCommissionFixture(t)
	ctx := context.Background()

	// A deal whose fee never succeeded posts nothing.
	now := time.Now().UTC()
	other := &models.Deal{
		AuctionID:  utils.NewSixID(),
		OfferID:    utils.NewSixID(),
		BuyerID:    f.buyerID,
		DealerID:   utils.NewSixID(),
		VehicleID:  utils.NewSixID(),
		Status:     models.DealComplete,
		StageTimes: map[string]time.Time{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	other, err := db.InsertOne(ctx, f.database.Collection(dealsCollection), other)
	require.NoError(t, err)

	require.NoError(t, f.svc.ProcessCompletion(ctx, other))
	count, err := f.database.Collection(commissionsCollection).CountDocuments(ctx, bson.M{"deal_id": other.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestProcessCompletion_EnrollsUnreferredBuyer(t *testing.T) {
	f := setupCommissionFixture(t)
	ctx := context.Background()

	// A buyer with no referral chain still gets a referral account, but
	// earns nothing from their own deal.
	loneBuyer := utils.NewSixID()
	_, err := f.affiliates.FindByUserID(ctx, loneBuyer)
	require.ErrorIs(t, err, faults.ErrNotFound)

	now := time.Now().UTC()
	deal := &models.Deal{
		AuctionID:  utils.NewSixID(),
		OfferID:    utils.NewSixID(),
		BuyerID:    loneBuyer,
		DealerID:   utils.NewSixID(),
		VehicleID:  utils.NewSixID(),
		Status:     models.DealComplete,
		StageTimes: map[string]time.Time{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	deal, err = db.InsertOne(ctx, f.database.Collection(dealsCollection), deal)
	require.NoError(t, err)
	fee := &models.ServiceFeePayment{
		DealID:       deal.ID,
		BuyerID:      loneBuyer,
		BaseFeeCents: 49900,
		AmountCents:  49900,
		Status:       models.PaymentSucceeded,
		CreatedAt:    now,
		ConfirmedAt:  &now,
	}
	_, err = db.InsertOne(ctx, f.database.Collection(serviceFeesCollection), fee)
	require.NoError(t, err)

	require.NoError(t, f.svc.ProcessCompletion(ctx, deal))

	enrolled, err := f.affiliates.FindByUserID(ctx, loneBuyer)
	require.NoError(t, err)
	assert.Len(t, enrolled.ReferralCode, 8)
	count, err := f.database.Collection(commissionsCollection).CountDocuments(ctx, bson.M{"deal_id": deal.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestMaturePending(t *testing.T) {
	f := setupCommissionFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.ProcessCompletion(ctx, f.deal))

	// Nothing is past the hold window yet.
	matured, err := f.svc.MaturePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), matured)

	_, err = f.database.Collection(commissionsCollection).UpdateMany(ctx, bson.M{"deal_id": f.deal.ID}, bson.M{
		"$set": bson.M{"matures_at": time.Now().UTC().Add(-time.Hour)},
	})
	require.NoError(t, err)

	matured, err = f.svc.MaturePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), matured)

	aff := f.reloadAffiliate(t, f.chain[0].ID)
	assert.Equal(t, int64(0), aff.PendingCents)
	assert.Equal(t, int64(9980), aff.EarnedCents)

	// Re-running moves nothing twice.
	matured, err = f.svc.MaturePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), matured)
}

func TestApprove(t *testing.T) {
	f := setupCommissionFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.ProcessCompletion(ctx, f.deal))

	var c models.Commission
	require.NoError(t, f.database.Collection(commissionsCollection).FindOne(ctx, bson.M{
		"affiliate_id": f.chain[0].ID, "deal_id": f.deal.ID,
	}).Decode(&c))

	// Still inside the hold window.
	_, err := f.svc.Approve(ctx, c.ID)
	ist, ok := faults.IsInvalidStateTransition(err)
	require.True(t, ok)
	assert.Equal(t, string(models.CommissionPending), ist.Current)

	_, err = f.database.Collection(commissionsCollection).UpdateMany(ctx, bson.M{"deal_id": f.deal.ID}, bson.M{
		"$set": bson.M{"matures_at": time.Now().UTC().Add(-time.Hour)},
	})
	require.NoError(t, err)
	_, err = f.svc.MaturePending(ctx)
	require.NoError(t, err)

	approved, err := f.svc.Approve(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CommissionApproved, approved.Status)

	_, err = f.svc.Approve(ctx, c.ID)
	_, ok = faults.IsInvalidStateTransition(err)
	assert.True(t, ok)

	_, err = f.svc.Approve(ctx, utils.NewSixID())
	assert.ErrorIs(t, err, faults.ErrNotFound)
}

func TestVoidPendingForDeal(t *testing.T) {
	f := setupCommissionFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.ProcessCompletion(ctx, f.deal))

	require.NoError(t, f.svc.VoidPendingForDeal(ctx, f.deal.ID))

	count, err := f.database.Collection(commissionsCollection).CountDocuments(ctx, bson.M{
		"deal_id": f.deal.ID,
		"status":  models.CommissionVoided,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
	assert.Equal(t, int64(0), f.reloadAffiliate(t, f.chain[0].ID).PendingCents)
}

func TestRequestPayout(t *testing.T) {
	f := setupCommissionFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.ProcessCompletion(ctx, f.deal))

	level1User := f.chain[0].UserID

	// Nothing approved yet.
	_, err := f.svc.RequestPayout(ctx, level1User)
	assert.ErrorIs(t, err, faults.ErrPayoutBelowMinimum)

	_, err = f.database.Collection(commissionsCollection).UpdateMany(ctx, bson.M{"deal_id": f.deal.ID}, bson.M{
		"$set": bson.M{"matures_at": time.Now().UTC().Add(-time.Hour)},
	})
	require.NoError(t, err)
	_, err = f.svc.MaturePending(ctx)
	require.NoError(t, err)

	var c models.Commission
	require.NoError(t, f.database.Collection(commissionsCollection).FindOne(ctx, bson.M{
		"affiliate_id": f.chain[0].ID, "deal_id": f.deal.ID,
	}).Decode(&c))
	_, err = f.svc.Approve(ctx, c.ID)
	require.NoError(t, err)

	payout, err := f.svc.RequestPayout(ctx, level1User)
	require.NoError(t, err)
	assert.Equal(t, int64(9980), payout.AmountCents)
	assert.Equal(t, []utils.SixID{c.ID}, payout.CommissionIDs)
	assert.Equal(t, models.PayoutRequested, payout.Status)

	var paid models.Commission
	require.NoError(t, f.database.Collection(commissionsCollection).FindOne(ctx, bson.M{"_id": c.ID}).Decode(&paid))
	assert.Equal(t, models.CommissionPaid, paid.Status)
	require.NotNil(t, paid.PayoutID)
	assert.Equal(t, payout.ID, *paid.PayoutID)

	aff := f.reloadAffiliate(t, f.chain[0].ID)
	assert.Equal(t, int64(0), aff.EarnedCents)
	assert.Equal(t, int64(9980), aff.PaidCents)

	// The pool is spent; a second request has nothing above the minimum.
	_, err = f.svc.RequestPayout(ctx, level1User)
	assert.ErrorIs(t, err, faults.ErrPayoutBelowMinimum)
}

func TestRequestPayout_BelowMinimum(t *testing.T) {
	f := setupCommissionFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.ProcessCompletion(ctx, f.deal))

	// Level 5 earned $14.97, under the $50.00 floor.
	level5User := f.chain[4].UserID
	_, err := f.database.Collection(commissionsCollection).UpdateMany(ctx, bson.M{"deal_id": f.deal.ID}, bson.M{
		"$set": bson.M{"matures_at": time.Now().UTC().Add(-time.Hour)},
	})
	require.NoError(t, err)
	_, err = f.svc.MaturePending(ctx)
	require.NoError(t, err)

	var c models.Commission
	require.NoError(t, f.database.Collection(commissionsCollection).FindOne(ctx, bson.M{
		"affiliate_id": f.chain[4].ID, "deal_id": f.deal.ID,
	}).Decode(&c))
	_, err = f.svc.Approve(ctx, c.ID)
	require.NoError(t, err)

	_, err = f.svc.RequestPayout(ctx, level5User)
	assert.ErrorIs(t, err, faults.ErrPayoutBelowMinimum)
}
