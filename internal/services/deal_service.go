package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/autolenis01/VercelAutoLenis-sub004/internal/config"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/db"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/faults"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/models"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/providers"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/utils"
)

// IDealService walks a deal through its post-award stages. Every
// transition is a single conditional update filtered on the expected
// current status, so concurrent callers cannot skip or repeat a stage.
type IDealService interface {
	FindByID(ctx context.Context, dealID utils.SixID) (*models.Deal, error)
	SelectFinancing(ctx context.Context, dealID, buyerID utils.SixID, financingType models.FinancingType, optionIndex int) (*models.Deal, error)
	MarkFeePaid(ctx context.Context, dealID utils.SixID) (*models.Deal, error)
	RecordInsurance(ctx context.Context, dealID, buyerID utils.SixID, provider, policyNumber string, effectiveAt time.Time) (*models.Deal, error)
	PassContractReview(ctx context.Context, dealID, buyerID utils.SixID) (*models.Deal, error)
	OverrideContractReview(ctx context.Context, dealID, adminID utils.SixID, verdict models.ReviewVerdict, reason string) (*models.Deal, error)
	AcknowledgeOverride(ctx context.Context, dealID, buyerID utils.SixID) (*models.Deal, error)
	MarkSigned(ctx context.Context, dealID, buyerID utils.SixID) (*models.Deal, error)
	SchedulePickup(ctx context.Context, dealID, dealerID utils.SixID, pickupAt time.Time) (*models.Deal, error)
	Complete(ctx context.Context, dealID, dealerID utils.SixID, pickupCode string) (*models.Deal, error)
	Cancel(ctx context.Context, dealID utils.SixID, reason string) (*models.Deal, error)
}

const insuranceCollection = "insurance_policies"

// dealService implements IDealService.
type dealService struct {
	db                *mongo.Database
	client            *mongo.Client
	cfg               *config.Config
	contractScanner   providers.IContractScanner
	esignProvider     providers.IEsignProvider
	commissionService ICommissionService
}

// NewDealService creates a new DealService.
func NewDealService(database *mongo.Database, client *mongo.Client, cfg *config.Config, scanner providers.IContractScanner, esign providers.IEsignProvider, commissionService ICommissionService) IDealService {
	return &dealService{
		db:                database,
		client:            client,
		cfg:               cfg,
		contractScanner:   scanner,
		esignProvider:     esign,
		commissionService: commissionService,
	}
}

// FindByID fetches one deal.
func (s *dealService) FindByID(ctx context.Context, dealID utils.SixID) (*models.Deal, error) {
	var deal models.Deal
	err := s.db.Collection(dealsCollection).FindOne(ctx, bson.M{"_id": dealID}).Decode(&deal)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, faults.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load deal %s: %w", dealID.String(), err)
	}
	return &deal, nil
}

// advance is the one mutation path for stage transitions. It updates the
// deal only if its status still equals from; a miss is re-read and
// reported as InvalidStateTransition carrying the actual current status.
func (s *dealService) advance(ctx context.Context, dealID utils.SixID, from, to models.DealStatus, extraSet bson.M) (*models.Deal, error) {
	now := time.Now().UTC()
	set := bson.M{
		"status":                    to,
		"updated_at":                now,
		"stage_times." + string(to): now,
	}
	for k, v := range extraSet {
		set[k] = v
	}

	result, err := s.db.Collection(dealsCollection).UpdateOne(ctx, bson.M{
		"_id":    dealID,
		"status": from,
	}, bson.M{"$set": set})
	if err != nil {
		return nil, fmt.Errorf("db error advancing deal %s to %s: %w", dealID.String(), to, err)
	}
	if result.MatchedCount == 0 {
		deal, ferr := s.FindByID(ctx, dealID)
		if ferr != nil {
			return nil, ferr
		}
		return nil, &faults.InvalidStateTransition{
			Current:   string(deal.Status),
			Attempted: string(to),
		}
	}
	return s.FindByID(ctx, dealID)
}

// SelectFinancing records the buyer's cash-or-financed election. A
// financed election must point at one of the accepted offer's options,
// which is copied onto the deal so later offer edits cannot change terms.
func (s *dealService) SelectFinancing(ctx context.Context, dealID, buyerID utils.SixID, financingType models.FinancingType, optionIndex int) (*models.Deal, error) {
	deal, err := s.FindByID(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if deal.BuyerID != buyerID {
		return nil, faults.ErrUnauthorized
	}

	set := bson.M{"financing_type": financingType}
	switch financingType {
	case models.FinancingCash:
		// no option to record
	case models.FinancingFinanced:
		var offer models.Offer
		err := s.db.Collection(offersCollection).FindOne(ctx, bson.M{"_id": deal.OfferID}).Decode(&offer)
		if err != nil {
			return nil, fmt.Errorf("failed to load offer for deal %s: %w", dealID.String(), err)
		}
		if optionIndex < 0 || optionIndex >= len(offer.FinancingOptions) {
			return nil, faults.ErrInvalidFinancingChoice
		}
		set["financing_option"] = offer.FinancingOptions[optionIndex]
	default:
		return nil, faults.ErrInvalidFinancingChoice
	}

	return s.advance(ctx, dealID, models.DealOfferAccepted, models.DealFinancingSelected, set)
}

// MarkFeePaid advances FINANCING_SELECTED -> FEE_PAID. Called only from
// the payment confirmation path once the service fee has SUCCEEDED.
func (s *dealService) MarkFeePaid(ctx context.Context, dealID utils.SixID) (*models.Deal, error) {
	return s.advance(ctx, dealID, models.DealFinancingSelected, models.DealFeePaid, nil)
}

// RecordInsurance stores proof of coverage and advances FEE_PAID ->
// INSURANCE_COMPLETE.
func (s *dealService) RecordInsurance(ctx context.Context, dealID, buyerID utils.SixID, provider, policyNumber string, effectiveAt time.Time) (*models.Deal, error) {
	deal, err := s.FindByID(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if deal.BuyerID != buyerID {
		return nil, faults.ErrUnauthorized
	}
	if provider == "" || policyNumber == "" {
		return nil, faults.ErrInsuranceMissing
	}

	policy := &models.InsurancePolicy{
		DealID:       dealID,
		Provider:     provider,
		PolicyNumber: policyNumber,
		EffectiveAt:  effectiveAt,
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := db.InsertOne(ctx, s.db.Collection(insuranceCollection), policy); err != nil {
		return nil, fmt.Errorf("failed to record insurance policy: %w", err)
	}

	return s.advance(ctx, dealID, models.DealFeePaid, models.DealInsuranceComplete, nil)
}

// PassContractReview advances INSURANCE_COMPLETE ->
// CONTRACT_REVIEW_PASSED. The gate opens on a completed scan with zero
// critical findings, or on an admin PASS override the buyer has
// acknowledged. An unacknowledged override never passes the gate.
func (s *dealService) PassContractReview(ctx context.Context, dealID, buyerID utils.SixID) (*models.Deal, error) {
	deal, err := s.FindByID(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if deal.BuyerID != buyerID {
		return nil, faults.ErrUnauthorized
	}

	passed := false
	if o := deal.ReviewOverride; o != nil && o.Verdict == models.ReviewVerdictPass && o.AcknowledgedAt != nil {
		passed = true
	}
	if !passed {
		if o := deal.ReviewOverride; o != nil && o.Verdict == models.ReviewVerdictFail {
			return nil, faults.ErrContractReviewIncomplete
		}
		scan, err := s.contractScanner.LatestScan(ctx, dealID)
		if err != nil {
			return nil, err
		}
		passed = scan.Status == providers.ScanCompleted && scan.CriticalFindingsCount == 0
	}
	if !passed {
		return nil, faults.ErrContractReviewIncomplete
	}

	return s.advance(ctx, dealID, models.DealInsuranceComplete, models.DealContractReviewPassed, nil)
}

// OverrideContractReview records an admin verdict on the review gate. The
// override is an explicit audit record; a PASS takes effect only after
// the buyer acknowledges it.
func (s *dealService) OverrideContractReview(ctx context.Context, dealID, adminID utils.SixID, verdict models.ReviewVerdict, reason string) (*models.Deal, error) {
	if reason == "" {
		return nil, fmt.Errorf("override reason is required")
	}
	if verdict != models.ReviewVerdictPass && verdict != models.ReviewVerdictFail {
		return nil, fmt.Errorf("invalid override verdict %q", verdict)
	}

	now := time.Now().UTC()
	override := models.ContractReviewOverride{
		AdminID:   adminID,
		Verdict:   verdict,
		Reason:    reason,
		CreatedAt: now,
	}
	result, err := s.db.Collection(dealsCollection).UpdateOne(ctx, bson.M{
		"_id":    dealID,
		"status": models.DealInsuranceComplete,
	}, bson.M{
		"$set": bson.M{"review_override": override, "updated_at": now},
	})
	if err != nil {
		return nil, fmt.Errorf("db error recording review override: %w", err)
	}
	if result.MatchedCount == 0 {
		deal, ferr := s.FindByID(ctx, dealID)
		if ferr != nil {
			return nil, ferr
		}
		return nil, &faults.InvalidStateTransition{
			Current:   string(deal.Status),
			Attempted: string(models.DealContractReviewPassed),
		}
	}
	return s.FindByID(ctx, dealID)
}

// AcknowledgeOverride records the buyer's acknowledgment of a pending
// review override.
func (s *dealService) AcknowledgeOverride(ctx context.Context, dealID, buyerID utils.SixID) (*models.Deal, error) {
	now := time.Now().UTC()
	result, err := s.db.Collection(dealsCollection).UpdateOne(ctx, bson.M{
		"_id":                             dealID,
		"buyer_id":                        buyerID,
		"review_override":                 bson.M{"$exists": true},
		"review_override.acknowledged_at": bson.M{"$exists": false},
	}, bson.M{
		"$set": bson.M{"review_override.acknowledged_at": now, "updated_at": now},
	})
	if err != nil {
		return nil, fmt.Errorf("db error acknowledging review override: %w", err)
	}
	if result.MatchedCount == 0 {
		return nil, faults.ErrNotFound
	}
	return s.FindByID(ctx, dealID)
}

// MarkSigned advances CONTRACT_REVIEW_PASSED -> SIGNED once the e-sign
// envelope reports completion.
func (s *dealService) MarkSigned(ctx context.Context, dealID, buyerID utils.SixID) (*models.Deal, error) {
	deal, err := s.FindByID(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if deal.BuyerID != buyerID {
		return nil, faults.ErrUnauthorized
	}

	status, err := s.esignProvider.EnvelopeStatus(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if status != providers.EnvelopeCompleted {
		return nil, faults.ErrSigningIncomplete
	}

	return s.advance(ctx, dealID, models.DealContractReviewPassed, models.DealSigned, nil)
}

// SchedulePickup advances SIGNED -> PICKUP_SCHEDULED, minting the pickup
// code the dealer will verify at handover.
func (s *dealService) SchedulePickup(ctx context.Context, dealID, dealerID utils.SixID, pickupAt time.Time) (*models.Deal, error) {
	deal, err := s.FindByID(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if deal.DealerID != dealerID {
		return nil, faults.ErrUnauthorized
	}
	if pickupAt.Before(time.Now().UTC()) {
		return nil, fmt.Errorf("pickup time must be in the future")
	}

	return s.advance(ctx, dealID, models.DealSigned, models.DealPickupScheduled, bson.M{
		"pickup_code": utils.NewPickupCode(),
		"pickup_at":   pickupAt.UTC(),
	})
}

// Complete advances PICKUP_SCHEDULED -> COMPLETE after the dealer
// presents the buyer's pickup code, then posts referral commissions.
// Commission posting is idempotent, so a retry after a partial failure
// cannot double-pay.
func (s *dealService) Complete(ctx context.Context, dealID, dealerID utils.SixID, pickupCode string) (*models.Deal, error) {
	deal, err := s.FindByID(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if deal.DealerID != dealerID {
		return nil, faults.ErrUnauthorized
	}
	if deal.PickupCode == "" || deal.PickupCode != pickupCode {
		return nil, faults.ErrUnauthorized
	}
	if deal.Status != models.DealComplete {
		deal, err = s.advance(ctx, dealID, models.DealPickupScheduled, models.DealComplete, nil)
		if err != nil {
			return nil, err
		}
	}

	// Also runs on a redelivered completion: if the first call failed
	// partway through posting, the retry finishes the job. Already-posted
	// levels are no-ops.
	if s.commissionService != nil {
		if err := s.commissionService.ProcessCompletion(ctx, deal); err != nil {
			return deal, fmt.Errorf("deal completed but commission posting failed: %w", err)
		}
	}
	return deal, nil
}

// Cancel moves any non-terminal deal to CANCELLED with a reason.
func (s *dealService) Cancel(ctx context.Context, dealID utils.SixID, reason string) (*models.Deal, error) {
	now := time.Now().UTC()
	result, err := s.db.Collection(dealsCollection).UpdateOne(ctx, bson.M{
		"_id":    dealID,
		"status": bson.M{"$nin": bson.A{models.DealComplete, models.DealCancelled}},
	}, bson.M{
		"$set": bson.M{
			"status":        models.DealCancelled,
			"cancel_reason": reason,
			"updated_at":    now,
			"stage_times." + string(models.DealCancelled): now,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("db error cancelling deal %s: %w", dealID.String(), err)
	}
	if result.MatchedCount == 0 {
		deal, ferr := s.FindByID(ctx, dealID)
		if ferr != nil {
			return nil, ferr
		}
		return nil, &faults.InvalidStateTransition{
			Current:   string(deal.Status),
			Attempted: string(models.DealCancelled),
		}
	}
	if s.commissionService != nil {
		if err := s.commissionService.VoidPendingForDeal(ctx, dealID); err != nil {
			log.Printf("Failed to void pending commissions for cancelled deal %s: %v", dealID.String(), err)
		}
	}
	return s.FindByID(ctx, dealID)
}
