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
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/providers"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/utils"
)

// IPaymentService handles deposits, service fees and provider
// confirmations. Payment records move PENDING -> SUCCEEDED/FAILED only on
// a provider confirmation; session creation alone proves nothing.
type IPaymentService interface {
	PlaceDeposit(ctx context.Context, buyerID, auctionID utils.SixID) (*models.DepositPayment, *providers.CheckoutSession, error)
	CreateFeeCheckout(ctx context.Context, dealID, buyerID utils.SixID) (*models.ServiceFeePayment, *providers.CheckoutSession, error)
	HandleConfirmation(ctx context.Context, conf models.PaymentConfirmation) error
	RefundDeposit(ctx context.Context, buyerID, auctionID utils.SixID) error
	FindDeposit(ctx context.Context, buyerID, auctionID utils.SixID) (*models.DepositPayment, error)
}

const serviceFeesCollection = "service_fee_payments"

// paymentService implements IPaymentService.
type paymentService struct {
	db            *mongo.Database
	cfg           *config.Config
	configService IConfigService
	feeService    IFeeService
	provider      providers.IPaymentProvider
	dealService   IDealService
	taskClient    *asynq.Client
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(database *mongo.Database, cfg *config.Config, configService IConfigService, feeService IFeeService, provider providers.IPaymentProvider, dealService IDealService, taskClient *asynq.Client) IPaymentService {
	return &paymentService{
		db:            database,
		cfg:           cfg,
		configService: configService,
		feeService:    feeService,
		provider:      provider,
		dealService:   dealService,
		taskClient:    taskClient,
	}
}

// PlaceDeposit opens a PENDING deposit record for the buyer on an ACTIVE
// auction and returns the provider checkout session. A buyer who already
// holds a live deposit on the auction gets it back with no new session.
func (s *paymentService) PlaceDeposit(ctx context.Context, buyerID, auctionID utils.SixID) (*models.DepositPayment, *providers.CheckoutSession, error) {
	var auction models.Auction
	err := s.db.Collection(auctionsCollection).FindOne(ctx, bson.M{"_id": auctionID}).Decode(&auction)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil, faults.ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to load auction: %w", err)
	}
	if auction.BuyerID != buyerID {
		return nil, nil, faults.ErrUnauthorized
	}
	if auction.Status != models.AuctionActive {
		return nil, nil, faults.ErrAuctionClosed
	}

	existing, err := s.FindDeposit(ctx, buyerID, auctionID)
	if err == nil && existing.Status == models.PaymentSucceeded && !existing.Refunded {
		return existing, nil, nil
	}
	if err != nil && !errors.Is(err, faults.ErrNotFound) {
		return nil, nil, err
	}

	amount := s.configService.GetInt64(ctx, "DEPOSIT_AMOUNT_CENTS", s.cfg.DepositAmountCents)
	deposit := &models.DepositPayment{
		BuyerID:     buyerID,
		AuctionID:   auctionID,
		AmountCents: amount,
		Status:      models.PaymentPending,
		CreatedAt:   time.Now().UTC(),
	}
	deposit, err = db.InsertOne(ctx, s.db.Collection(depositsCollection), deposit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create deposit record: %w", err)
	}

	session, err := s.provider.CreateCheckoutSession(ctx, models.PaymentKindDeposit, deposit.ID.String(), amount)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.db.Collection(depositsCollection).UpdateOne(ctx, bson.M{"_id": deposit.ID}, bson.M{
		"$set": bson.M{"provider_ref": session.SessionID},
	}); err != nil {
		return nil, nil, fmt.Errorf("failed to store provider session ref: %w", err)
	}
	deposit.ProviderRef = session.SessionID
	return deposit, session, nil
}

// CreateFeeCheckout computes the service fee for a FINANCING_SELECTED
// deal, records the breakdown and returns the checkout session. The
// deposit credit is the buyer's succeeded deposit on the deal's auction.
func (s *paymentService) CreateFeeCheckout(ctx context.Context, dealID, buyerID utils.SixID) (*models.ServiceFeePayment, *providers.CheckoutSession, error) {
	deal, err := s.dealService.FindByID(ctx, dealID)
	if err != nil {
		return nil, nil, err
	}
	if deal.BuyerID != buyerID {
		return nil, nil, faults.ErrUnauthorized
	}
	if deal.Status != models.DealFinancingSelected {
		return nil, nil, &faults.InvalidStateTransition{
			Current:   string(deal.Status),
			Attempted: string(models.DealFeePaid),
		}
	}

	var credit int64
	if deposit, err := s.FindDeposit(ctx, buyerID, deal.AuctionID); err == nil {
		if deposit.Status == models.PaymentSucceeded && !deposit.Refunded {
			credit = deposit.AmountCents
		}
	} else if !errors.Is(err, faults.ErrNotFound) {
		return nil, nil, err
	}

	breakdown := s.feeService.Compute(ctx, deal.CashOTDCents, credit)
	fee := &models.ServiceFeePayment{
		DealID:             dealID,
		BuyerID:            buyerID,
		BaseFeeCents:       breakdown.BaseFeeCents,
		DepositCreditCents: breakdown.DepositCreditCents,
		AmountCents:        breakdown.FinalFeeCents,
		Status:             models.PaymentPending,
		CreatedAt:          time.Now().UTC(),
	}
	fee, err = db.InsertOne(ctx, s.db.Collection(serviceFeesCollection), fee)
	if err != nil {
		if !db.IsMongoDuplicateKeyError(err) {
			return nil, nil, fmt.Errorf("failed to create service fee record: %w", err)
		}
		var existing models.ServiceFeePayment
		if ferr := s.db.Collection(serviceFeesCollection).FindOne(ctx, bson.M{"deal_id": dealID}).Decode(&existing); ferr != nil {
			return nil, nil, fmt.Errorf("failed to load existing service fee record: %w", ferr)
		}
		if existing.Status != models.PaymentFailed {
			// Pending or settled already; nothing new to start.
			return &existing, nil, nil
		}
		// A failed attempt is retryable: rearm the record with fresh
		// amounts and go get a new checkout session.
		result, uerr := s.db.Collection(serviceFeesCollection).UpdateOne(ctx, bson.M{
			"_id":    existing.ID,
			"status": models.PaymentFailed,
		}, bson.M{"$set": bson.M{
			"base_fee_cents":       breakdown.BaseFeeCents,
			"deposit_credit_cents": breakdown.DepositCreditCents,
			"amount_cents":         breakdown.FinalFeeCents,
			"status":               models.PaymentPending,
		}})
		if uerr != nil {
			return nil, nil, fmt.Errorf("failed to rearm service fee record: %w", uerr)
		}
		if result.MatchedCount == 0 {
			// A confirmation raced us; surface whatever it settled on.
			if ferr := s.db.Collection(serviceFeesCollection).FindOne(ctx, bson.M{"deal_id": dealID}).Decode(&existing); ferr != nil {
				return nil, nil, fmt.Errorf("failed to load existing service fee record: %w", ferr)
			}
			return &existing, nil, nil
		}
		existing.BaseFeeCents = breakdown.BaseFeeCents
		existing.DepositCreditCents = breakdown.DepositCreditCents
		existing.AmountCents = breakdown.FinalFeeCents
		existing.Status = models.PaymentPending
		fee = &existing
	}

	// A zero fee (deposit covered it all) skips the provider entirely.
	if fee.AmountCents == 0 {
		if err := s.HandleConfirmation(ctx, models.PaymentConfirmation{
			Kind:        models.PaymentKindServiceFee,
			ReferenceID: fee.ID.String(),
			Succeeded:   true,
		}); err != nil {
			return nil, nil, err
		}
		fee.Status = models.PaymentSucceeded
		return fee, nil, nil
	}

	session, err := s.provider.CreateCheckoutSession(ctx, models.PaymentKindServiceFee, fee.ID.String(), fee.AmountCents)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.db.Collection(serviceFeesCollection).UpdateOne(ctx, bson.M{"_id": fee.ID}, bson.M{
		"$set": bson.M{"provider_ref": session.SessionID},
	}); err != nil {
		return nil, nil, fmt.Errorf("failed to store provider session ref: %w", err)
	}
	fee.ProviderRef = session.SessionID
	return fee, session, nil
}

// HandleConfirmation applies a provider verdict to the referenced payment
// record. Confirmations are idempotent: only a PENDING record transitions,
// and a repeated delivery is a no-op. A succeeded service fee advances its
// deal to FEE_PAID.
func (s *paymentService) HandleConfirmation(ctx context.Context, conf models.PaymentConfirmation) error {
	refID, err := utils.ParseSixID(conf.ReferenceID)
	if err != nil {
		return fmt.Errorf("invalid payment reference %q: %w", conf.ReferenceID, err)
	}

	status := models.PaymentFailed
	if conf.Succeeded {
		status = models.PaymentSucceeded
	}
	now := time.Now().UTC()
	update := bson.M{"$set": bson.M{"status": status, "confirmed_at": now}}

	switch conf.Kind {
	case models.PaymentKindDeposit:
		result, err := s.db.Collection(depositsCollection).UpdateOne(ctx, bson.M{
			"_id":    refID,
			"status": models.PaymentPending,
		}, update)
		if err != nil {
			return fmt.Errorf("db error confirming deposit %s: %w", conf.ReferenceID, err)
		}
		if result.MatchedCount == 0 {
			log.Printf("Deposit confirmation for %s matched no PENDING record (duplicate delivery?)", conf.ReferenceID)
		}
		return nil

	case models.PaymentKindServiceFee:
		result, err := s.db.Collection(serviceFeesCollection).UpdateOne(ctx, bson.M{
			"_id":    refID,
			"status": models.PaymentPending,
		}, update)
		if err != nil {
			return fmt.Errorf("db error confirming service fee %s: %w", conf.ReferenceID, err)
		}
		if result.MatchedCount == 0 {
			log.Printf("Service fee confirmation for %s matched no PENDING record (duplicate delivery?)", conf.ReferenceID)
			return nil
		}
		if !conf.Succeeded {
			return nil
		}

		var fee models.ServiceFeePayment
		if err := s.db.Collection(serviceFeesCollection).FindOne(ctx, bson.M{"_id": refID}).Decode(&fee); err != nil {
			return fmt.Errorf("failed to reload service fee %s: %w", conf.ReferenceID, err)
		}
		if _, err := s.dealService.MarkFeePaid(ctx, fee.DealID); err != nil {
			var ist *faults.InvalidStateTransition
			if errors.As(err, &ist) {
				// Deal already moved on; the payment record is settled.
				log.Printf("Service fee %s confirmed but deal %s is %s", conf.ReferenceID, fee.DealID.String(), ist.Current)
				return nil
			}
			return err
		}
		s.enqueueReceiptEmail(ctx, fee)
		return nil

	default:
		return fmt.Errorf("unknown payment confirmation kind %q", conf.Kind)
	}
}

// RefundDeposit flags the buyer's succeeded deposit on an auction as
// refunded. Used when an auction closes with no accepted offer or a deal
// is cancelled before the fee checkout consumed the credit.
func (s *paymentService) RefundDeposit(ctx context.Context, buyerID, auctionID utils.SixID) error {
	result, err := s.db.Collection(depositsCollection).UpdateOne(ctx, bson.M{
		"buyer_id":   buyerID,
		"auction_id": auctionID,
		"status":     models.PaymentSucceeded,
		"refunded":   false,
	}, bson.M{
		"$set": bson.M{"refunded": true},
	})
	if err != nil {
		return fmt.Errorf("db error refunding deposit: %w", err)
	}
	if result.MatchedCount == 0 {
		return faults.ErrNotFound
	}
	return nil
}

// FindDeposit fetches the buyer's most recent deposit on an auction.
func (s *paymentService) FindDeposit(ctx context.Context, buyerID, auctionID utils.SixID) (*models.DepositPayment, error) {
	var deposit models.DepositPayment
	err := s.db.Collection(depositsCollection).FindOne(ctx, bson.M{
		"buyer_id":   buyerID,
		"auction_id": auctionID,
		"status":     bson.M{"$in": bson.A{models.PaymentPending, models.PaymentSucceeded}},
		"refunded":   false,
	}).Decode(&deposit)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, faults.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load deposit: %w", err)
	}
	return &deposit, nil
}

func (s *paymentService) enqueueReceiptEmail(ctx context.Context, fee models.ServiceFeePayment) {
	if s.taskClient == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"kind":         "service_fee_receipt",
		"deal_id":      fee.DealID.String(),
		"buyer_id":     fee.BuyerID.String(),
		"amount_cents": fee.AmountCents,
	})
	task := asynq.NewTask("email:deliver", payload)
	if _, err := s.taskClient.EnqueueContext(ctx, task); err != nil {
		log.Printf("Warning: failed to enqueue receipt email for deal %s: %v", fee.DealID.String(), err)
	}
}
