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
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/utils"
)

// IAuctionService defines the interface for sealed-bid auction operations.
type IAuctionService interface {
	OpenAuction(ctx context.Context, buyerID utils.SixID, vehicleIDs []utils.SixID) (*models.Auction, error)
	InviteDealer(ctx context.Context, auctionID, buyerID, dealerID utils.SixID) (*models.AuctionParticipant, error)
	SubmitOffer(ctx context.Context, auctionID, dealerID, vehicleID utils.SixID, cashOTDCents int64, financing []models.FinancingOption) (*models.Offer, error)
	WithdrawOffer(ctx context.Context, offerID, dealerID utils.SixID) error
	AcceptOffer(ctx context.Context, auctionID, offerID, buyerID utils.SixID) (*models.Deal, error)
	CloseExpired(ctx context.Context) (int64, error)
	FindByID(ctx context.Context, auctionID utils.SixID) (*models.Auction, error)
	ListOffers(ctx context.Context, auctionID, buyerID utils.SixID) ([]models.Offer, error)
}

const (
	auctionsCollection     = "auctions"
	participantsCollection = "auction_participants"
	offersCollection       = "offers"
	dealsCollection        = "deals"
	depositsCollection     = "deposit_payments"
)

// auctionService implements IAuctionService.
type auctionService struct {
	db            *mongo.Database
	client        *mongo.Client
	cfg           *config.Config
	configService IConfigService
}

// NewAuctionService creates a new AuctionService.
func NewAuctionService(database *mongo.Database, client *mongo.Client, cfg *config.Config, configService IConfigService) IAuctionService {
	return &auctionService{
		db:            database,
		client:        client,
		cfg:           cfg,
		configService: configService,
	}
}

// OpenAuction creates an ACTIVE auction over the buyer's shortlist. The
// shortlist must be non-empty and within the configured maximum.
func (s *auctionService) OpenAuction(ctx context.Context, buyerID utils.SixID, vehicleIDs []utils.SixID) (*models.Auction, error) {
	maxSize := s.configService.GetInt(ctx, "MAX_SHORTLIST_SIZE", s.cfg.MaxShortlistSize)
	if len(vehicleIDs) == 0 || len(vehicleIDs) > maxSize {
		return nil, faults.ErrInvalidShortlist
	}
	seen := make(map[utils.SixID]bool, len(vehicleIDs))
	for _, vid := range vehicleIDs {
		if seen[vid] {
			return nil, faults.ErrInvalidShortlist
		}
		seen[vid] = true
	}

	now := time.Now().UTC()
	duration := s.configService.GetDuration(ctx, "AUCTION_DURATION_SECONDS", s.cfg.AuctionDuration)
	auction := &models.Auction{
		BuyerID:    buyerID,
		VehicleIDs: vehicleIDs,
		Status:     models.AuctionActive,
		EndsAt:     now.Add(duration),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return db.InsertOne(ctx, s.db.Collection(auctionsCollection), auction)
}

// InviteDealer adds a dealer to an auction's participant set. Only the
// buyer who opened the auction may invite. The unique
// (auction_id, dealer_id) index rejects a second invite.
func (s *auctionService) InviteDealer(ctx context.Context, auctionID, buyerID, dealerID utils.SixID) (*models.AuctionParticipant, error) {
	auction, err := s.FindByID(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if auction.BuyerID != buyerID {
		return nil, faults.ErrUnauthorized
	}
	if auction.Status != models.AuctionActive {
		return nil, faults.ErrAuctionClosed
	}

	participant := &models.AuctionParticipant{
		AuctionID: auctionID,
		DealerID:  dealerID,
		InvitedAt: time.Now().UTC(),
	}
	p, err := db.InsertOne(ctx, s.db.Collection(participantsCollection), participant)
	if err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return nil, faults.ErrDuplicateInvite
		}
		return nil, fmt.Errorf("failed to invite dealer %s: %w", dealerID.String(), err)
	}
	return p, nil
}

// SubmitOffer records a dealer's sealed offer. The dealer must be an
// invited participant, the auction must still be ACTIVE and within its
// window, and the partial unique index rejects a second live offer from
// the same participant.
func (s *auctionService) SubmitOffer(ctx context.Context, auctionID, dealerID, vehicleID utils.SixID, cashOTDCents int64, financing []models.FinancingOption) (*models.Offer, error) {
	if cashOTDCents <= 0 {
		return nil, fmt.Errorf("cash out-the-door amount must be positive")
	}

	auction, err := s.FindByID(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if auction.Status != models.AuctionActive || now.After(auction.EndsAt) {
		return nil, faults.ErrAuctionClosed
	}

	onShortlist := false
	for _, vid := range auction.VehicleIDs {
		if vid == vehicleID {
			onShortlist = true
			break
		}
	}
	if !onShortlist {
		return nil, faults.ErrInvalidShortlist
	}

	var participant models.AuctionParticipant
	err = s.db.Collection(participantsCollection).FindOne(ctx, bson.M{
		"auction_id": auctionID,
		"dealer_id":  dealerID,
	}).Decode(&participant)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, faults.ErrUnauthorized
		}
		return nil, fmt.Errorf("failed to look up participant: %w", err)
	}

	for i := range financing {
		f := &financing[i]
		if f.APR < 0 || f.TermMonths <= 0 || f.MonthlyPaymentCents <= 0 || f.DownPaymentCents < 0 {
			return nil, fmt.Errorf("invalid financing option at index %d", i)
		}
	}

	offer := &models.Offer{
		AuctionID:        auctionID,
		ParticipantID:    participant.ID,
		DealerID:         dealerID,
		VehicleID:        vehicleID,
		CashOTDCents:     cashOTDCents,
		FinancingOptions: financing,
		Status:           models.OfferPending,
		SubmittedAt:      now,
		UpdatedAt:        now,
	}
	o, err := db.InsertOne(ctx, s.db.Collection(offersCollection), offer)
	if err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return nil, faults.ErrDuplicateOffer
		}
		return nil, fmt.Errorf("failed to submit offer: %w", err)
	}
	return o, nil
}

// WithdrawOffer marks a dealer's own PENDING offer WITHDRAWN, freeing the
// participant slot for a fresh offer while the auction remains open.
func (s *auctionService) WithdrawOffer(ctx context.Context, offerID, dealerID utils.SixID) error {
	now := time.Now().UTC()
	result, err := s.db.Collection(offersCollection).UpdateOne(ctx, bson.M{
		"_id":       offerID,
		"dealer_id": dealerID,
		"status":    models.OfferPending,
	}, bson.M{
		"$set": bson.M{"status": models.OfferWithdrawn, "decided_at": now, "updated_at": now},
	})
	if err != nil {
		return fmt.Errorf("db error withdrawing offer %s: %w", offerID.String(), err)
	}
	if result.MatchedCount == 0 {
		// Distinguish not-found / not-owner from already decided.
		var offer models.Offer
		ferr := s.db.Collection(offersCollection).FindOne(ctx, bson.M{"_id": offerID}).Decode(&offer)
		if errors.Is(ferr, mongo.ErrNoDocuments) {
			return faults.ErrNotFound
		}
		if ferr != nil {
			return ferr
		}
		if offer.DealerID != dealerID {
			return faults.ErrUnauthorized
		}
		return faults.ErrAuctionClosed
	}
	return nil
}

// AcceptOffer closes the auction on the chosen offer and opens the deal.
// The conditional ACTIVE->CLOSED update on the auction is the commit
// point: concurrent accepts race on it and exactly one wins. The buyer
// must hold a succeeded, unrefunded deposit on the auction.
func (s *auctionService) AcceptOffer(ctx context.Context, auctionID, offerID, buyerID utils.SixID) (*models.Deal, error) {
	auction, err := s.FindByID(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if auction.BuyerID != buyerID {
		return nil, faults.ErrUnauthorized
	}

	var offer models.Offer
	err = s.db.Collection(offersCollection).FindOne(ctx, bson.M{"_id": offerID, "auction_id": auctionID}).Decode(&offer)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, faults.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load offer: %w", err)
	}
	if offer.Status != models.OfferPending {
		return nil, faults.ErrAuctionAlreadyClosed
	}

	depositCount, err := s.db.Collection(depositsCollection).CountDocuments(ctx, bson.M{
		"buyer_id":   buyerID,
		"auction_id": auctionID,
		"status":     models.PaymentSucceeded,
		"refunded":   false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check deposit: %w", err)
	}
	if depositCount == 0 {
		return nil, faults.ErrPaymentNotConfirmed
	}

	now := time.Now().UTC()
	var deal *models.Deal
	err = db.InTransaction(ctx, s.client, func(ctx context.Context) error {
		result, err := s.db.Collection(auctionsCollection).UpdateOne(ctx, bson.M{
			"_id":    auctionID,
			"status": models.AuctionActive,
		}, bson.M{
			"$set": bson.M{
				"status":            models.AuctionClosed,
				"accepted_offer_id": offerID,
				"closed_at":         now,
				"updated_at":        now,
			},
		})
		if err != nil {
			return fmt.Errorf("db error closing auction %s: %w", auctionID.String(), err)
		}
		if result.MatchedCount == 0 {
			return faults.ErrAuctionAlreadyClosed
		}

		if _, err := s.db.Collection(offersCollection).UpdateOne(ctx, bson.M{"_id": offerID}, bson.M{
			"$set": bson.M{"status": models.OfferAccepted, "decided_at": now, "updated_at": now},
		}); err != nil {
			return fmt.Errorf("db error accepting offer %s: %w", offerID.String(), err)
		}

		if _, err := s.db.Collection(offersCollection).UpdateMany(ctx, bson.M{
			"auction_id": auctionID,
			"status":     models.OfferPending,
		}, bson.M{
			"$set": bson.M{"status": models.OfferRejected, "decided_at": now, "updated_at": now},
		}); err != nil {
			return fmt.Errorf("db error rejecting losing offers: %w", err)
		}

		deal = &models.Deal{
			AuctionID:    auctionID,
			OfferID:      offerID,
			BuyerID:      buyerID,
			DealerID:     offer.DealerID,
			VehicleID:    offer.VehicleID,
			CashOTDCents: offer.CashOTDCents,
			Status:       models.DealOfferAccepted,
			StageTimes:   map[string]time.Time{string(models.DealOfferAccepted): now},
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		deal, err = db.InsertOne(ctx, s.db.Collection(dealsCollection), deal)
		if err != nil {
			if db.IsMongoDuplicateKeyError(err) {
				return faults.ErrAuctionAlreadyClosed
			}
			return fmt.Errorf("failed to create deal: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deal, nil
}

// CloseExpired moves every ACTIVE auction past its window to CLOSED with
// no accepted offer, rejecting its pending offers. Safe to run repeatedly;
// already-closed auctions no longer match the filter.
func (s *auctionService) CloseExpired(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	filter := bson.M{
		"status":  models.AuctionActive,
		"ends_at": bson.M{"$lt": now},
	}

	cursor, err := s.db.Collection(auctionsCollection).Find(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to query expired auctions: %w", err)
	}
	var expired []models.Auction
	if err := cursor.All(ctx, &expired); err != nil {
		return 0, fmt.Errorf("failed to decode expired auctions: %w", err)
	}

	var closed int64
	for _, auction := range expired {
		result, err := s.db.Collection(auctionsCollection).UpdateOne(ctx, bson.M{
			"_id":    auction.ID,
			"status": models.AuctionActive,
		}, bson.M{
			"$set": bson.M{"status": models.AuctionClosed, "closed_at": now, "updated_at": now},
		})
		if err != nil {
			log.Printf("ERROR closing expired auction %s: %v", auction.ID.String(), err)
			continue
		}
		if result.MatchedCount == 0 {
			continue // lost the race to an accept
		}
		if _, err := s.db.Collection(offersCollection).UpdateMany(ctx, bson.M{
			"auction_id": auction.ID,
			"status":     models.OfferPending,
		}, bson.M{
			"$set": bson.M{"status": models.OfferRejected, "decided_at": now, "updated_at": now},
		}); err != nil {
			log.Printf("ERROR rejecting offers for expired auction %s: %v", auction.ID.String(), err)
		}
		closed++
	}
	return closed, nil
}

// FindByID fetches one auction.
func (s *auctionService) FindByID(ctx context.Context, auctionID utils.SixID) (*models.Auction, error) {
	var auction models.Auction
	err := s.db.Collection(auctionsCollection).FindOne(ctx, bson.M{"_id": auctionID}).Decode(&auction)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, faults.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load auction %s: %w", auctionID.String(), err)
	}
	return &auction, nil
}

// ListOffers returns an auction's offers to its buyer. Offers stay sealed
// from other dealers; only the owning buyer may list them.
func (s *auctionService) ListOffers(ctx context.Context, auctionID, buyerID utils.SixID) ([]models.Offer, error) {
	auction, err := s.FindByID(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if auction.BuyerID != buyerID {
		return nil, faults.ErrUnauthorized
	}

	cursor, err := s.db.Collection(offersCollection).Find(ctx, bson.M{
		"auction_id": auctionID,
		"status":     bson.M{"$ne": models.OfferWithdrawn},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query offers: %w", err)
	}
	var offers []models.Offer
	if err := cursor.All(ctx, &offers); err != nil {
		return nil, fmt.Errorf("failed to decode offers: %w", err)
	}
	return offers, nil
}
