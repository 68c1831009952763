package models

import (
	"time"

	"github.com/autolenis01/VercelAutoLenis-sub004/internal/utils"
)

// DealStatus is one stage in a deal's fixed post-award progression.
type DealStatus string

const (
	DealOfferAccepted        DealStatus = "OFFER_ACCEPTED"
	DealFinancingSelected    DealStatus = "FINANCING_SELECTED"
	DealFeePaid              DealStatus = "FEE_PAID"
	DealInsuranceComplete    DealStatus = "INSURANCE_COMPLETE"
	DealContractReviewPassed DealStatus = "CONTRACT_REVIEW_PASSED"
	DealSigned               DealStatus = "SIGNED"
	DealPickupScheduled      DealStatus = "PICKUP_SCHEDULED"
	DealComplete             DealStatus = "COMPLETE"
	DealCancelled            DealStatus = "CANCELLED"
)

// dealStageOrder fixes the forward sequence. CANCELLED sits outside it as
// a terminal branch reachable from any non-COMPLETE stage.
var dealStageOrder = map[DealStatus]int{
	DealOfferAccepted:        0,
	DealFinancingSelected:    1,
	DealFeePaid:              2,
	DealInsuranceComplete:    3,
	DealContractReviewPassed: 4,
	DealSigned:               5,
	DealPickupScheduled:      6,
	DealComplete:             7,
}

// Ordinal returns the stage's position in the forward sequence, or -1 for
// CANCELLED and unknown values.
func (s DealStatus) Ordinal() int {
	if ord, ok := dealStageOrder[s]; ok {
		return ord
	}
	return -1
}

// Terminal reports whether no further transition may leave this status.
func (s DealStatus) Terminal() bool {
	return s == DealComplete || s == DealCancelled
}

// FinancingType records the buyer's financing election.
type FinancingType string

const (
	FinancingCash     FinancingType = "cash"
	FinancingFinanced FinancingType = "financed"
)

// ReviewVerdict is an admin's override decision on a contract review.
type ReviewVerdict string

const (
	ReviewVerdictPass ReviewVerdict = "PASS"
	ReviewVerdictFail ReviewVerdict = "FAIL"
)

// ContractReviewOverride is an explicit admin override of the contract
// review gate. It never silently bypasses the gate: passContractReview
// honors a PASS override only after the buyer has acknowledged it.
type ContractReviewOverride struct {
	AdminID        utils.SixID   `bson:"admin_id" json:"admin_id"`
	Verdict        ReviewVerdict `bson:"verdict" json:"verdict"`
	Reason         string        `bson:"reason" json:"reason"`
	CreatedAt      time.Time     `bson:"created_at" json:"created_at"`
	AcknowledgedAt *time.Time    `bson:"acknowledged_at,omitempty" json:"acknowledged_at,omitempty"`
}

// Deal is an accepted offer promoted to a durable record and walked
// through the post-award stages. Mutated only by the deal service's
// transition methods; a unique index on auction_id guarantees at most one
// deal per auction.
type Deal struct {
	Base            `bson:",inline"`
	AuctionID       utils.SixID             `bson:"auction_id" json:"auction_id"`
	OfferID         utils.SixID             `bson:"offer_id" json:"offer_id"`
	BuyerID         utils.SixID             `bson:"buyer_id" json:"buyer_id"`
	DealerID        utils.SixID             `bson:"dealer_id" json:"dealer_id"`
	VehicleID       utils.SixID             `bson:"vehicle_id" json:"vehicle_id"`
	CashOTDCents    int64                   `bson:"cash_otd_cents" json:"cash_otd_cents"`
	Status          DealStatus              `bson:"status" json:"status"`
	FinancingType   FinancingType           `bson:"financing_type,omitempty" json:"financing_type,omitempty"`
	FinancingOption *FinancingOption        `bson:"financing_option,omitempty" json:"financing_option,omitempty"`
	PickupCode      string                  `bson:"pickup_code,omitempty" json:"-"`
	PickupAt        *time.Time              `bson:"pickup_at,omitempty" json:"pickup_at,omitempty"`
	ReviewOverride  *ContractReviewOverride `bson:"review_override,omitempty" json:"review_override,omitempty"`
	CancelReason    string                  `bson:"cancel_reason,omitempty" json:"cancel_reason,omitempty"`
	StageTimes      map[string]time.Time    `bson:"stage_times" json:"stage_times"`
	CreatedAt       time.Time               `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time               `bson:"updated_at" json:"updated_at"`
}

// InsurancePolicy is proof of coverage recorded against a deal before the
// INSURANCE_COMPLETE stage can be entered.
type InsurancePolicy struct {
	Base         `bson:",inline"`
	DealID       utils.SixID `bson:"deal_id" json:"deal_id"`
	Provider     string      `bson:"provider" json:"provider"`
	PolicyNumber string      `bson:"policy_number" json:"policy_number"`
	EffectiveAt  time.Time   `bson:"effective_at" json:"effective_at"`
	CreatedAt    time.Time   `bson:"created_at" json:"created_at"`
}
