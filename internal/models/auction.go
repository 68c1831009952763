package models

import (
	"time"

	"github.com/autolenis01/VercelAutoLenis-sub004/internal/utils"
)

// AuctionStatus is the lifecycle state of an auction.
type AuctionStatus string

const (
	AuctionActive    AuctionStatus = "ACTIVE"
	AuctionClosed    AuctionStatus = "CLOSED"
	AuctionCancelled AuctionStatus = "CANCELLED"
)

// Auction is one buyer shortlist put out for sealed bids. AcceptedOfferID
// is set in the same write that closes the auction, so a CLOSED auction
// with a nil AcceptedOfferID expired or was cancelled with no winner.
type Auction struct {
	Base            `bson:",inline"`
	BuyerID         utils.SixID   `bson:"buyer_id" json:"buyer_id"`
	VehicleIDs      []utils.SixID `bson:"vehicle_ids" json:"vehicle_ids"`
	Status          AuctionStatus `bson:"status" json:"status"`
	EndsAt          time.Time     `bson:"ends_at" json:"ends_at"`
	AcceptedOfferID *utils.SixID  `bson:"accepted_offer_id,omitempty" json:"accepted_offer_id,omitempty"`
	ClosedAt        *time.Time    `bson:"closed_at,omitempty" json:"closed_at,omitempty"`
	CreatedAt       time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `bson:"updated_at" json:"updated_at"`
}

// AuctionParticipant grants one dealer visibility into one auction.
// A unique index on (auction_id, dealer_id) keeps the pair unique.
type AuctionParticipant struct {
	Base      `bson:",inline"`
	AuctionID utils.SixID `bson:"auction_id" json:"auction_id"`
	DealerID  utils.SixID `bson:"dealer_id" json:"dealer_id"`
	InvitedAt time.Time   `bson:"invited_at" json:"invited_at"`
}

// OfferStatus is the state of a dealer's bid.
type OfferStatus string

const (
	OfferPending   OfferStatus = "PENDING"
	OfferAccepted  OfferStatus = "ACCEPTED"
	OfferRejected  OfferStatus = "REJECTED"
	OfferCountered OfferStatus = "COUNTERED"
	OfferWithdrawn OfferStatus = "WITHDRAWN"
)

// FinancingOption is one financed-purchase alternative attached to an
// offer. The list is ordered; selectFinancing picks by index.
type FinancingOption struct {
	APR                 float64 `bson:"apr" json:"apr"`
	TermMonths          int     `bson:"term_months" json:"term_months"`
	MonthlyPaymentCents int64   `bson:"monthly_payment_cents" json:"monthly_payment_cents"`
	DownPaymentCents    int64   `bson:"down_payment_cents" json:"down_payment_cents"`
}

// Offer is a dealer's bid within an auction. A partial unique index on
// (auction_id, participant_id) over PENDING rows enforces one offer in
// flight per participant.
type Offer struct {
	Base             `bson:",inline"`
	AuctionID        utils.SixID       `bson:"auction_id" json:"auction_id"`
	ParticipantID    utils.SixID       `bson:"participant_id" json:"participant_id"`
	DealerID         utils.SixID       `bson:"dealer_id" json:"dealer_id"`
	VehicleID        utils.SixID       `bson:"vehicle_id" json:"vehicle_id"`
	CashOTDCents     int64             `bson:"cash_otd_cents" json:"cash_otd_cents"`
	FinancingOptions []FinancingOption `bson:"financing_options,omitempty" json:"financing_options,omitempty"`
	Status           OfferStatus       `bson:"status" json:"status"`
	SubmittedAt      time.Time         `bson:"submitted_at" json:"submitted_at"`
	DecidedAt        *time.Time        `bson:"decided_at,omitempty" json:"decided_at,omitempty"`
	UpdatedAt        time.Time         `bson:"updated_at" json:"updated_at"`
}
