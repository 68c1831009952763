package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/autolenis01/VercelAutoLenis-sub004/internal/config"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/db"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/faults"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/models"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/utils"
)

// The referral chain depth. Commissions are paid this many levels up.
const MaxReferralLevels = 5

// IAffiliateService manages referral accounts and the ancestry chain.
type IAffiliateService interface {
	EnsureAffiliate(ctx context.Context, userID utils.SixID) (*models.Affiliate, error)
	FindByUserID(ctx context.Context, userID utils.SixID) (*models.Affiliate, error)
	FindByReferralCode(ctx context.Context, code string) (*models.Affiliate, error)
	RegisterReferral(ctx context.Context, referredUserID utils.SixID, referralCode string) error
	AncestorsOf(ctx context.Context, userID utils.SixID) ([]models.Referral, error)
	Dashboard(ctx context.Context, userID utils.SixID) (*AffiliateDashboard, error)
}

const (
	affiliatesCollection  = "affiliates"
	referralsCollection   = "referrals"
	commissionsCollection = "commissions"
	payoutsCollection     = "payouts"
)

// AffiliateDashboard is the affiliate's summary view: balances plus
// commission and referral counts.
type AffiliateDashboard struct {
	Affiliate       *models.Affiliate   `json:"affiliate"`
	DirectReferrals int64               `json:"direct_referrals"`
	TotalReferrals  int64               `json:"total_referrals"`
	Commissions     []models.Commission `json:"commissions"`
	PendingCents    int64               `json:"pending_cents"`
	EarnedCents     int64               `json:"earned_cents"`
	PaidCents       int64               `json:"paid_cents"`
	AvailablePayout int64               `json:"available_payout_cents"`
}

// affiliateService implements IAffiliateService.
type affiliateService struct {
	db  *mongo.Database
	cfg *config.Config
}

// NewAffiliateService creates a new AffiliateService.
func NewAffiliateService(database *mongo.Database, cfg *config.Config) IAffiliateService {
	return &affiliateService{db: database, cfg: cfg}
}

// EnsureAffiliate returns the user's referral account, creating it with a
// fresh code on first use. Code collisions regenerate and retry.
func (s *affiliateService) EnsureAffiliate(ctx context.Context, userID utils.SixID) (*models.Affiliate, error) {
	existing, err := s.FindByUserID(ctx, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, faults.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	affiliate := &models.Affiliate{
		UserID:    userID,
		Status:    models.AffiliateActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = db.Try(func() error {
		affiliate.GenID()
		affiliate.ReferralCode = utils.NewReferralCode()
		_, err := s.db.Collection(affiliatesCollection).InsertOne(ctx, affiliate)
		return err
	})
	if err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			// Concurrent creation for the same user; return the winner.
			return s.FindByUserID(ctx, userID)
		}
		return nil, fmt.Errorf("failed to create affiliate for user %s: %w", userID.String(), err)
	}
	return affiliate, nil
}

// FindByUserID fetches a user's affiliate account.
func (s *affiliateService) FindByUserID(ctx context.Context, userID utils.SixID) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	err := s.db.Collection(affiliatesCollection).FindOne(ctx, bson.M{"user_id": userID}).Decode(&affiliate)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, faults.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load affiliate for user %s: %w", userID.String(), err)
	}
	return &affiliate, nil
}

// FindByReferralCode fetches the affiliate owning a referral code.
func (s *affiliateService) FindByReferralCode(ctx context.Context, code string) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	err := s.db.Collection(affiliatesCollection).FindOne(ctx, bson.M{"referral_code": code}).Decode(&affiliate)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, faults.ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up referral code: %w", err)
	}
	return &affiliate, nil
}

// RegisterReferral binds a newly registered user to the referring
// affiliate and extends the chain: the referrer becomes the level-1
// ancestor, the referrer's own ancestors shift to levels 2..5. The chain
// is written once here and never recomputed, so later changes to the
// referrer's chain cannot rewrite history. Self-referrals, cycles and a
// second level-1 edge are rejected.
func (s *affiliateService) RegisterReferral(ctx context.Context, referredUserID utils.SixID, referralCode string) error {
	referrer, err := s.FindByReferralCode(ctx, referralCode)
	if err != nil {
		return err
	}
	if referrer.UserID == referredUserID {
		return faults.ErrSelfReferral
	}
	if referrer.Status != models.AffiliateActive {
		return faults.ErrUnauthorized
	}

	count, err := s.db.Collection(referralsCollection).CountDocuments(ctx, bson.M{
		"referred_user_id": referredUserID,
		"level":            1,
	})
	if err != nil {
		return fmt.Errorf("failed to check existing referral: %w", err)
	}
	if count > 0 {
		return faults.ErrReferralExists
	}

	// Walk the referrer's own ancestry to build levels 2..N.
	ancestors, err := s.AncestorsOf(ctx, referrer.UserID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	edges := []models.Referral{{
		AffiliateID:    referrer.ID,
		ReferredUserID: referredUserID,
		Level:          1,
		CreatedAt:      now,
	}}
	for _, anc := range ancestors {
		level := anc.Level + 1
		if level > MaxReferralLevels {
			break
		}
		var ancAffiliate models.Affiliate
		if err := s.db.Collection(affiliatesCollection).FindOne(ctx, bson.M{"_id": anc.AffiliateID}).Decode(&ancAffiliate); err != nil {
			return fmt.Errorf("failed to load ancestor affiliate: %w", err)
		}
		if ancAffiliate.UserID == referredUserID {
			return faults.ErrReferralCycle
		}
		edges = append(edges, models.Referral{
			AffiliateID:    anc.AffiliateID,
			ReferredUserID: referredUserID,
			Level:          level,
			CreatedAt:      now,
		})
	}

	docs := make([]interface{}, len(edges))
	for i := range edges {
		edges[i].GenID()
		docs[i] = edges[i]
	}
	_, err = s.db.Collection(referralsCollection).InsertMany(ctx, docs)
	if err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return faults.ErrReferralExists
		}
		return fmt.Errorf("failed to write referral chain: %w", err)
	}
	return nil
}

// AncestorsOf returns a user's referral ancestors ordered by level
// ascending (closest first).
func (s *affiliateService) AncestorsOf(ctx context.Context, userID utils.SixID) ([]models.Referral, error) {
	cursor, err := s.db.Collection(referralsCollection).Find(ctx, bson.M{
		"referred_user_id": userID,
	}, options.Find().SetSort(bson.D{{Key: "level", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query referral ancestors: %w", err)
	}
	var ancestors []models.Referral
	if err := cursor.All(ctx, &ancestors); err != nil {
		return nil, fmt.Errorf("failed to decode referral ancestors: %w", err)
	}
	return ancestors, nil
}

// Dashboard assembles the affiliate's summary view.
func (s *affiliateService) Dashboard(ctx context.Context, userID utils.SixID) (*AffiliateDashboard, error) {
	affiliate, err := s.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	direct, err := s.db.Collection(referralsCollection).CountDocuments(ctx, bson.M{
		"affiliate_id": affiliate.ID,
		"level":        1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count direct referrals: %w", err)
	}
	total, err := s.db.Collection(referralsCollection).CountDocuments(ctx, bson.M{
		"affiliate_id": affiliate.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count referrals: %w", err)
	}

	// The commission list is a recent-activity view; the payable total
	// must cover the whole ledger, so it gets its own aggregation.
	cursor, err := s.db.Collection(commissionsCollection).Find(ctx, bson.M{
		"affiliate_id": affiliate.ID,
	}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(100))
	if err != nil {
		return nil, fmt.Errorf("failed to query commissions: %w", err)
	}
	var commissions []models.Commission
	if err := cursor.All(ctx, &commissions); err != nil {
		return nil, fmt.Errorf("failed to decode commissions: %w", err)
	}

	available, err := s.availablePayout(ctx, affiliate.ID)
	if err != nil {
		return nil, err
	}

	return &AffiliateDashboard{
		Affiliate:       affiliate,
		DirectReferrals: direct,
		TotalReferrals:  total,
		Commissions:     commissions,
		PendingCents:    affiliate.PendingCents,
		EarnedCents:     affiliate.EarnedCents,
		PaidCents:       affiliate.PaidCents,
		AvailablePayout: available,
	}, nil
}

// availablePayout totals every APPROVED commission not yet claimed by a
// payout.
func (s *affiliateService) availablePayout(ctx context.Context, affiliateID utils.SixID) (int64, error) {
	cursor, err := s.db.Collection(commissionsCollection).Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"affiliate_id": affiliateID,
			"status":       models.CommissionApproved,
			"payout_id":    bson.M{"$exists": false},
		}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$amount_cents"}}}},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to total payable commissions: %w", err)
	}
	var rows []struct {
		Total int64 `bson:"total"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, fmt.Errorf("failed to decode payable total: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Total, nil
}
