package models

import (
	"time"

	"github.com/autolenis01/VercelAutoLenis-sub004/internal/utils"
)

type AffiliateStatus string

const (
	AffiliateActive    AffiliateStatus = "ACTIVE"
	AffiliateSuspended AffiliateStatus = "SUSPENDED"
)

// Affiliate is a user's referral account. The cents totals move only via
// $inc so concurrent commission postings never lose an update; a read
// reconstructing them from the commissions collection must agree.
type Affiliate struct {
	Base         `bson:",inline"`
	UserID       utils.SixID     `bson:"user_id" json:"user_id"`
	ReferralCode string          `bson:"referral_code" json:"referral_code"`
	Status       AffiliateStatus `bson:"status" json:"status"`
	PendingCents int64           `bson:"pending_cents" json:"pending_cents"`
	EarnedCents  int64           `bson:"earned_cents" json:"earned_cents"`
	PaidCents    int64           `bson:"paid_cents" json:"paid_cents"`
	CreatedAt    time.Time       `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `bson:"updated_at" json:"updated_at"`
}

// Referral is one edge of the ancestry chain: the referred user sits Level
// hops below the affiliate (1 = direct). Edges are written once at
// registration; a unique index on (referred_user_id, level) guarantees a
// user has at most one ancestor per level.
type Referral struct {
	Base           `bson:",inline"`
	AffiliateID    utils.SixID `bson:"affiliate_id" json:"affiliate_id"`
	ReferredUserID utils.SixID `bson:"referred_user_id" json:"referred_user_id"`
	Level          int         `bson:"level" json:"level"`
	CreatedAt      time.Time   `bson:"created_at" json:"created_at"`
}

// CommissionStatus progresses PENDING -> EARNED -> APPROVED -> PAID.
// PENDING exists during the refund-hold window after deal completion.
type CommissionStatus string

const (
	CommissionPending  CommissionStatus = "PENDING"
	CommissionEarned   CommissionStatus = "EARNED"
	CommissionApproved CommissionStatus = "APPROVED"
	CommissionPaid     CommissionStatus = "PAID"
	CommissionVoided   CommissionStatus = "VOIDED"
)

// Commission is one affiliate's cut of one completed deal at one level.
// The unique index on (affiliate_id, deal_id, level) makes completion
// processing idempotent: a second run inserts nothing.
type Commission struct {
	Base        `bson:",inline"`
	AffiliateID utils.SixID      `bson:"affiliate_id" json:"affiliate_id"`
	DealID      utils.SixID      `bson:"deal_id" json:"deal_id"`
	Level       int              `bson:"level" json:"level"`
	AmountCents int64            `bson:"amount_cents" json:"amount_cents"`
	Status      CommissionStatus `bson:"status" json:"status"`
	PayoutID    *utils.SixID     `bson:"payout_id,omitempty" json:"payout_id,omitempty"`
	CreatedAt   time.Time        `bson:"created_at" json:"created_at"`
	MaturesAt   time.Time        `bson:"matures_at" json:"matures_at"`
	UpdatedAt   time.Time        `bson:"updated_at" json:"updated_at"`
}

type PayoutStatus string

const (
	PayoutRequested PayoutStatus = "REQUESTED"
	PayoutSettled   PayoutStatus = "SETTLED"
)

// Payout is a batch of APPROVED commissions cashed out together.
type Payout struct {
	Base          `bson:",inline"`
	AffiliateID   utils.SixID   `bson:"affiliate_id" json:"affiliate_id"`
	AmountCents   int64         `bson:"amount_cents" json:"amount_cents"`
	CommissionIDs []utils.SixID `bson:"commission_ids" json:"commission_ids"`
	Status        PayoutStatus  `bson:"status" json:"status"`
	CreatedAt     time.Time     `bson:"created_at" json:"created_at"`
	SettledAt     *time.Time    `bson:"settled_at,omitempty" json:"settled_at,omitempty"`
}
