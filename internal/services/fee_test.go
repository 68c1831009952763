package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeeCompute_TierSelection(t *testing.T) {
	svc := NewFeeService(testConfig(), &stubConfig{})
	ctx := context.Background()

	// At the threshold the low tier still applies.
	b := svc.Compute(ctx, 5000000, 0)
	assert.Equal(t, int64(49900), b.BaseFeeCents)
	assert.Equal(t, int64(49900), b.FinalFeeCents)

	// One cent above tips into the high tier.
	b = svc.Compute(ctx, 5000001, 0)
	assert.Equal(t, int64(99900), b.BaseFeeCents)
	assert.Equal(t, int64(99900), b.FinalFeeCents)
}

func TestFeeCompute_DepositCredit(t *testing.T) {
	svc := NewFeeService(testConfig(), &stubConfig{})

	b := svc.Compute(context.Background(), 3500000, 9900)
	assert.Equal(t, int64(49900), b.BaseFeeCents)
	assert.Equal(t, int64(9900), b.DepositCreditCents)
	assert.Equal(t, int64(40000), b.FinalFeeCents)
}

func TestFeeCompute_NeverNegative(t *testing.T) {
	cfg := testConfig()
	cfg.FeeLowTierCents = 5000
	svc := NewFeeService(cfg, &stubConfig{})

	b := svc.Compute(context.Background(), 1000000, 9900)
	assert.Equal(t, int64(5000), b.BaseFeeCents)
	assert.Equal(t, int64(0), b.FinalFeeCents, "excess credit clamps at zero, it is not refunded here")
}
