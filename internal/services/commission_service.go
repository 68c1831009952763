package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/autolenis01/VercelAutoLenis-sub004/internal/config"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/db"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/faults"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/models"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/utils"
)

// ICommissionService posts, matures and pays out referral commissions.
// Amounts derive from the deal's collected service fee, split up the
// buyer's referral chain at per-level basis-point rates.
type ICommissionService interface {
	ProcessCompletion(ctx context.Context, deal *models.Deal) error
	MaturePending(ctx context.Context) (int64, error)
	Approve(ctx context.Context, commissionID utils.SixID) (*models.Commission, error)
	VoidPendingForDeal(ctx context.Context, dealID utils.SixID) error
	RequestPayout(ctx context.Context, userID utils.SixID) (*models.Payout, error)
}

// commissionService implements ICommissionService.
type commissionService struct {
	db               *mongo.Database
	client           *mongo.Client
	cfg              *config.Config
	configService    IConfigService
	affiliateService IAffiliateService
	taskClient       *asynq.Client
}

// NewCommissionService creates a new CommissionService.
func NewCommissionService(database *mongo.Database, client *mongo.Client, cfg *config.Config, configService IConfigService, affiliateService IAffiliateService, taskClient *asynq.Client) ICommissionService {
	return &commissionService{
		db:               database,
		client:           client,
		cfg:              cfg,
		configService:    configService,
		affiliateService: affiliateService,
		taskClient:       taskClient,
	}
}

// commissionAmount applies a basis-point rate to the fee with
// round-half-up, keeping the split deterministic in integer cents.
func commissionAmount(feeCents, rateBps int64) int64 {
	return (feeCents*rateBps + 5000) / 10000
}

// ProcessCompletion posts one PENDING commission per ancestor of the
// deal's buyer, up to the configured chain depth. Each ledger insert and
// its balance credit run in one transaction. The unique
// (affiliate_id, deal_id, level) index makes a rerun a no-op per level,
// so a partial failure is safely retried; a rerun that finds the row
// already posted rebuilds the affiliate's balances from the ledger in
// case the credit was lost on a deployment without transactions.
func (s *commissionService) ProcessCompletion(ctx context.Context, deal *models.Deal) error {
	// Enroll the buyer so their own referral code exists from the first
	// completed purchase. They earn nothing from their own deal.
	if _, err := s.affiliateService.EnsureAffiliate(ctx, deal.BuyerID); err != nil {
		return fmt.Errorf("failed to enroll buyer %s: %w", deal.BuyerID.String(), err)
	}

	var fee models.ServiceFeePayment
	err := s.db.Collection(serviceFeesCollection).FindOne(ctx, bson.M{
		"deal_id": deal.ID,
		"status":  models.PaymentSucceeded,
	}).Decode(&fee)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// No collected fee means nothing to split; not an error.
			log.Printf("No succeeded service fee for deal %s, skipping commissions", deal.ID.String())
			return nil
		}
		return fmt.Errorf("failed to load service fee for deal %s: %w", deal.ID.String(), err)
	}
	if fee.AmountCents == 0 {
		return nil
	}

	ancestors, err := s.affiliateService.AncestorsOf(ctx, deal.BuyerID)
	if err != nil {
		return err
	}
	if len(ancestors) == 0 {
		return nil
	}

	rates := s.cfg.CommissionRatesBps
	holdDays := s.configService.GetInt(ctx, "COMMISSION_HOLD_DAYS", s.cfg.CommissionHoldDays)
	now := time.Now().UTC()
	maturesAt := now.Add(time.Duration(holdDays) * 24 * time.Hour)

	for _, anc := range ancestors {
		if anc.Level < 1 || anc.Level > len(rates) {
			continue
		}
		amount := commissionAmount(fee.AmountCents, rates[anc.Level-1])
		if amount == 0 {
			continue
		}

		commission := &models.Commission{
			AffiliateID: anc.AffiliateID,
			DealID:      deal.ID,
			Level:       anc.Level,
			AmountCents: amount,
			Status:      models.CommissionPending,
			CreatedAt:   now,
			MaturesAt:   maturesAt,
			UpdatedAt:   now,
		}
		// Plain insert rather than the retrying helper: a duplicate key
		// inside a transaction aborts it, and the retry would spin.
		commission.GenID()
		err := db.InTransaction(ctx, s.client, func(ctx context.Context) error {
			if _, err := s.db.Collection(commissionsCollection).InsertOne(ctx, commission); err != nil {
				return err
			}
			if _, err := s.db.Collection(affiliatesCollection).UpdateOne(ctx, bson.M{"_id": anc.AffiliateID}, bson.M{
				"$inc": bson.M{"pending_cents": amount},
				"$set": bson.M{"updated_at": now},
			}); err != nil {
				return fmt.Errorf("failed to credit affiliate %s: %w", anc.AffiliateID.String(), err)
			}
			return nil
		})
		if err != nil {
			if db.IsMongoDuplicateKeyError(err) {
				// Already posted by an earlier run. That run may have
				// stopped before crediting the balance, so rebuild it
				// from the ledger rather than trusting the counter.
				if err := s.reconcileBalances(ctx, anc.AffiliateID); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("failed to post level-%d commission for deal %s: %w", anc.Level, deal.ID.String(), err)
		}
	}
	return nil
}

// reconcileBalances rewrites an affiliate's cached balance counters from
// the commission ledger, which is the source of truth.
func (s *commissionService) reconcileBalances(ctx context.Context, affiliateID utils.SixID) error {
	cursor, err := s.db.Collection(commissionsCollection).Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"affiliate_id": affiliateID}}},
		{{Key: "$group", Value: bson.M{"_id": "$status", "total": bson.M{"$sum": "$amount_cents"}}}},
	})
	if err != nil {
		return fmt.Errorf("failed to total ledger for affiliate %s: %w", affiliateID.String(), err)
	}
	var rows []struct {
		Status models.CommissionStatus `bson:"_id"`
		Total  int64                   `bson:"total"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return fmt.Errorf("failed to decode ledger totals for affiliate %s: %w", affiliateID.String(), err)
	}

	var pending, earned, paid int64
	for _, r := range rows {
		switch r.Status {
		case models.CommissionPending:
			pending = r.Total
		case models.CommissionEarned, models.CommissionApproved:
			earned += r.Total
		case models.CommissionPaid:
			paid = r.Total
		}
	}
	if _, err := s.db.Collection(affiliatesCollection).UpdateOne(ctx, bson.M{"_id": affiliateID}, bson.M{
		"$set": bson.M{
			"pending_cents": pending,
			"earned_cents":  earned,
			"paid_cents":    paid,
			"updated_at":    time.Now().UTC(),
		},
	}); err != nil {
		return fmt.Errorf("failed to reconcile balances for affiliate %s: %w", affiliateID.String(), err)
	}
	return nil
}

// MaturePending promotes PENDING commissions past their hold window to
// EARNED. Each document moves through its own conditional update and
// carries its balance move in the same transaction, so a concurrent
// sweep cannot double-move balances.
func (s *commissionService) MaturePending(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	cursor, err := s.db.Collection(commissionsCollection).Find(ctx, bson.M{
		"status":     models.CommissionPending,
		"matures_at": bson.M{"$lte": now},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to query maturing commissions: %w", err)
	}
	var pending []models.Commission
	if err := cursor.All(ctx, &pending); err != nil {
		return 0, fmt.Errorf("failed to decode maturing commissions: %w", err)
	}

	var matured int64
	for _, c := range pending {
		var moved bool
		err := db.InTransaction(ctx, s.client, func(ctx context.Context) error {
			result, err := s.db.Collection(commissionsCollection).UpdateOne(ctx, bson.M{
				"_id":    c.ID,
				"status": models.CommissionPending,
			}, bson.M{
				"$set": bson.M{"status": models.CommissionEarned, "updated_at": now},
			})
			if err != nil {
				return err
			}
			if result.MatchedCount == 0 {
				return nil
			}
			if _, err := s.db.Collection(affiliatesCollection).UpdateOne(ctx, bson.M{"_id": c.AffiliateID}, bson.M{
				"$inc": bson.M{"pending_cents": -c.AmountCents, "earned_cents": c.AmountCents},
				"$set": bson.M{"updated_at": now},
			}); err != nil {
				return err
			}
			moved = true
			return nil
		})
		if err != nil {
			log.Printf("ERROR maturing commission %s: %v", c.ID.String(), err)
			continue
		}
		if !moved {
			continue
		}
		matured++
		s.enqueueEarnedEmail(ctx, c)
	}
	return matured, nil
}

// enqueueEarnedEmail tells the affiliate their commission cleared the
// hold window. Best-effort; a queue failure never stalls the sweep.
func (s *commissionService) enqueueEarnedEmail(ctx context.Context, c models.Commission) {
	if s.taskClient == nil {
		return
	}
	var affiliate models.Affiliate
	if err := s.db.Collection(affiliatesCollection).FindOne(ctx, bson.M{"_id": c.AffiliateID}).Decode(&affiliate); err != nil {
		log.Printf("Warning: failed to load affiliate %s for earned email: %v", c.AffiliateID.String(), err)
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"kind":         "commission_earned",
		"deal_id":      c.DealID.String(),
		"buyer_id":     affiliate.UserID.String(),
		"amount_cents": c.AmountCents,
	})
	if _, err := s.taskClient.EnqueueContext(ctx, asynq.NewTask("email:deliver", payload)); err != nil {
		log.Printf("Warning: failed to enqueue earned email for commission %s: %v", c.ID.String(), err)
	}
}

// Approve moves an EARNED commission to APPROVED, unlocking it for
// payout.
func (s *commissionService) Approve(ctx context.Context, commissionID utils.SixID) (*models.Commission, error) {
	now := time.Now().UTC()
	result, err := s.db.Collection(commissionsCollection).UpdateOne(ctx, bson.M{
		"_id":    commissionID,
		"status": models.CommissionEarned,
	}, bson.M{
		"$set": bson.M{"status": models.CommissionApproved, "updated_at": now},
	})
	if err != nil {
		return nil, fmt.Errorf("db error approving commission %s: %w", commissionID.String(), err)
	}
	if result.MatchedCount == 0 {
		var c models.Commission
		ferr := s.db.Collection(commissionsCollection).FindOne(ctx, bson.M{"_id": commissionID}).Decode(&c)
		if errors.Is(ferr, mongo.ErrNoDocuments) {
			return nil, faults.ErrNotFound
		}
		if ferr != nil {
			return nil, ferr
		}
		return nil, &faults.InvalidStateTransition{
			Current:   string(c.Status),
			Attempted: string(models.CommissionApproved),
		}
	}

	var c models.Commission
	if err := s.db.Collection(commissionsCollection).FindOne(ctx, bson.M{"_id": commissionID}).Decode(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// VoidPendingForDeal cancels a deal's unmatured commissions, reversing the
// pending balances. Matured commissions are past the hold window and stay.
func (s *commissionService) VoidPendingForDeal(ctx context.Context, dealID utils.SixID) error {
	now := time.Now().UTC()
	cursor, err := s.db.Collection(commissionsCollection).Find(ctx, bson.M{
		"deal_id": dealID,
		"status":  models.CommissionPending,
	})
	if err != nil {
		return fmt.Errorf("failed to query commissions for deal %s: %w", dealID.String(), err)
	}
	var pending []models.Commission
	if err := cursor.All(ctx, &pending); err != nil {
		return fmt.Errorf("failed to decode commissions for deal %s: %w", dealID.String(), err)
	}

	for _, c := range pending {
		err := db.InTransaction(ctx, s.client, func(ctx context.Context) error {
			result, err := s.db.Collection(commissionsCollection).UpdateOne(ctx, bson.M{
				"_id":    c.ID,
				"status": models.CommissionPending,
			}, bson.M{
				"$set": bson.M{"status": models.CommissionVoided, "updated_at": now},
			})
			if err != nil {
				return err
			}
			if result.MatchedCount == 0 {
				return nil
			}
			if _, err := s.db.Collection(affiliatesCollection).UpdateOne(ctx, bson.M{"_id": c.AffiliateID}, bson.M{
				"$inc": bson.M{"pending_cents": -c.AmountCents},
				"$set": bson.M{"updated_at": now},
			}); err != nil {
				return fmt.Errorf("failed to reverse pending balance for affiliate %s: %w", c.AffiliateID.String(), err)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("db error voiding commission %s: %w", c.ID.String(), err)
		}
	}
	return nil
}

// RequestPayout batches the affiliate's APPROVED, unassigned commissions
// into one payout. The batch total must clear the configured minimum.
// Claiming runs as a per-commission conditional update stamping the new
// payout ID, so two concurrent requests split the pool rather than
// double-pay any commission. Claims, the payout record and the balance
// move commit together.
func (s *commissionService) RequestPayout(ctx context.Context, userID utils.SixID) (*models.Payout, error) {
	affiliate, err := s.affiliateService.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	cursor, err := s.db.Collection(commissionsCollection).Find(ctx, bson.M{
		"affiliate_id": affiliate.ID,
		"status":       models.CommissionApproved,
		"payout_id":    bson.M{"$exists": false},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query approved commissions: %w", err)
	}
	var approved []models.Commission
	if err := cursor.All(ctx, &approved); err != nil {
		return nil, fmt.Errorf("failed to decode approved commissions: %w", err)
	}

	minimum := s.configService.GetInt64(ctx, "PAYOUT_MINIMUM_CENTS", s.cfg.PayoutMinimumCents)
	var total int64
	for _, c := range approved {
		total += c.AmountCents
	}
	if total < minimum {
		return nil, faults.ErrPayoutBelowMinimum
	}

	now := time.Now().UTC()
	payout := &models.Payout{
		AffiliateID: affiliate.ID,
		Status:      models.PayoutRequested,
		CreatedAt:   now,
	}
	payout.GenID()

	err = db.InTransaction(ctx, s.client, func(ctx context.Context) error {
		var claimedIDs []utils.SixID
		var claimedTotal int64
		for _, c := range approved {
			result, err := s.db.Collection(commissionsCollection).UpdateOne(ctx, bson.M{
				"_id":       c.ID,
				"status":    models.CommissionApproved,
				"payout_id": bson.M{"$exists": false},
			}, bson.M{
				"$set": bson.M{"status": models.CommissionPaid, "payout_id": payout.ID, "updated_at": now},
			})
			if err != nil {
				return fmt.Errorf("db error claiming commission %s: %w", c.ID.String(), err)
			}
			if result.MatchedCount == 0 {
				continue // claimed by a concurrent payout
			}
			claimedIDs = append(claimedIDs, c.ID)
			claimedTotal += c.AmountCents
		}
		if claimedTotal < minimum {
			// Lost too much of the pool to a concurrent request; release.
			// Under a real transaction the abort discards the claims
			// anyway, but the plain-run fallback needs the explicit undo.
			if len(claimedIDs) > 0 {
				if _, err := s.db.Collection(commissionsCollection).UpdateMany(ctx, bson.M{
					"payout_id": payout.ID,
				}, bson.M{
					"$set":   bson.M{"status": models.CommissionApproved, "updated_at": now},
					"$unset": bson.M{"payout_id": ""},
				}); err != nil {
					return fmt.Errorf("failed to release claimed commissions: %w", err)
				}
			}
			return faults.ErrPayoutBelowMinimum
		}

		payout.AmountCents = claimedTotal
		payout.CommissionIDs = claimedIDs
		if err := db.InsertOnePreserveID(ctx, s.db.Collection(payoutsCollection), payout); err != nil {
			return fmt.Errorf("failed to create payout record: %w", err)
		}

		if _, err := s.db.Collection(affiliatesCollection).UpdateOne(ctx, bson.M{"_id": affiliate.ID}, bson.M{
			"$inc": bson.M{"earned_cents": -claimedTotal, "paid_cents": claimedTotal},
			"$set": bson.M{"updated_at": now},
		}); err != nil {
			return fmt.Errorf("failed to move payout balance for affiliate %s: %w", affiliate.ID.String(), err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payout, nil
}
