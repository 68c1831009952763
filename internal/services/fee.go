package services

import (
	"context"

	"github.com/autolenis01/VercelAutoLenis-sub004/internal/config"
)

// FeeBreakdown is the full audit trail of one concierge fee computation.
// All amounts are integer cents.
type FeeBreakdown struct {
	VehiclePriceCents  int64 `json:"vehicle_price_cents"`
	BaseFeeCents       int64 `json:"base_fee_cents"`
	DepositCreditCents int64 `json:"deposit_credit_cents"`
	FinalFeeCents      int64 `json:"final_fee_cents"`
}

// IFeeService computes the buyer's concierge fee for a deal.
type IFeeService interface {
	Compute(ctx context.Context, vehiclePriceCents, depositCreditCents int64) FeeBreakdown
}

type feeService struct {
	cfg           *config.Config
	configService IConfigService
}

// NewFeeService creates a new FeeService. Tier amounts and the threshold
// come from the dynamic config with .env values as defaults.
func NewFeeService(cfg *config.Config, configService IConfigService) IFeeService {
	return &feeService{cfg: cfg, configService: configService}
}

// Compute picks the fee tier by vehicle price (prices at or below the
// threshold take the low tier) and credits the buyer's succeeded deposit
// against it. The final fee never goes below zero; an excess credit is not
// refunded through this path.
func (s *feeService) Compute(ctx context.Context, vehiclePriceCents, depositCreditCents int64) FeeBreakdown {
	threshold := s.configService.GetInt64(ctx, "FEE_TIER_THRESHOLD_CENTS", s.cfg.FeeTierThresholdCents)
	lowTier := s.configService.GetInt64(ctx, "FEE_LOW_TIER_CENTS", s.cfg.FeeLowTierCents)
	highTier := s.configService.GetInt64(ctx, "FEE_HIGH_TIER_CENTS", s.cfg.FeeHighTierCents)

	base := lowTier
	if vehiclePriceCents > threshold {
		base = highTier
	}

	final := base - depositCreditCents
	if final < 0 {
		final = 0
	}

	return FeeBreakdown{
		VehiclePriceCents:  vehiclePriceCents,
		BaseFeeCents:       base,
		DepositCreditCents: depositCreditCents,
		FinalFeeCents:      final,
	}
}
