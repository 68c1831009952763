package models

import (
	"time"

	"github.com/autolenis01/VercelAutoLenis-sub004/internal/utils"
)

// PaymentKind tags the two payment flows the platform collects.
type PaymentKind string

const (
	PaymentKindDeposit    PaymentKind = "deposit"
	PaymentKindServiceFee PaymentKind = "service_fee"
)

// PaymentStatus is the state of a payment record. SUCCEEDED is reached
// only from a provider confirmation, never from session creation.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentSucceeded PaymentStatus = "SUCCEEDED"
	PaymentFailed    PaymentStatus = "FAILED"
)

// DepositPayment is a buyer's refundable deposit on one auction. A partial
// unique index on (buyer_id, auction_id) over SUCCEEDED, non-refunded rows
// enforces at most one live deposit per buyer per auction.
type DepositPayment struct {
	Base        `bson:",inline"`
	BuyerID     utils.SixID   `bson:"buyer_id" json:"buyer_id"`
	AuctionID   utils.SixID   `bson:"auction_id" json:"auction_id"`
	AmountCents int64         `bson:"amount_cents" json:"amount_cents"`
	Status      PaymentStatus `bson:"status" json:"status"`
	Refunded    bool          `bson:"refunded" json:"refunded"`
	ProviderRef string        `bson:"provider_ref" json:"provider_ref"`
	CreatedAt   time.Time     `bson:"created_at" json:"created_at"`
	ConfirmedAt *time.Time    `bson:"confirmed_at,omitempty" json:"confirmed_at,omitempty"`
}

// ServiceFeePayment is the concierge fee charged once per deal. The stored
// breakdown (base, credit, final) is the audit record of the fee
// computation at charge time. A unique index on deal_id keeps it 1:1.
type ServiceFeePayment struct {
	Base               `bson:",inline"`
	DealID             utils.SixID   `bson:"deal_id" json:"deal_id"`
	BuyerID            utils.SixID   `bson:"buyer_id" json:"buyer_id"`
	BaseFeeCents       int64         `bson:"base_fee_cents" json:"base_fee_cents"`
	DepositCreditCents int64         `bson:"deposit_credit_cents" json:"deposit_credit_cents"`
	AmountCents        int64         `bson:"amount_cents" json:"amount_cents"`
	Status             PaymentStatus `bson:"status" json:"status"`
	Refunded           bool          `bson:"refunded" json:"refunded"`
	ProviderRef        string        `bson:"provider_ref" json:"provider_ref"`
	CreatedAt          time.Time     `bson:"created_at" json:"created_at"`
	ConfirmedAt        *time.Time    `bson:"confirmed_at,omitempty" json:"confirmed_at,omitempty"`
}

// PaymentConfirmation is the provider's asynchronous verdict on a checkout
// session, as a tagged union keyed by Kind so the confirmation handler can
// match exhaustively.
type PaymentConfirmation struct {
	Kind        PaymentKind `json:"kind"`
	ReferenceID string      `json:"reference_id"`
	Succeeded   bool        `json:"succeeded"`
}
