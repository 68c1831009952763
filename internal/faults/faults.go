package faults

import (
	"errors"
	"fmt"
)

// Sentinel errors for the auction, deal and commission flows. Handlers map
// these to HTTP statuses; services return them wrapped with context via
// fmt.Errorf("...: %w", ...) so errors.Is still matches.
var (
	ErrNotFound                 = errors.New("not found")
	ErrUnauthorized             = errors.New("unauthorized")
	ErrInvalidShortlist         = errors.New("shortlist has no items")
	ErrDuplicateInvite          = errors.New("dealer invited more than once")
	ErrDuplicateOffer           = errors.New("participant already has an offer in flight")
	ErrAuctionClosed            = errors.New("auction is not accepting offers")
	ErrAuctionAlreadyClosed     = errors.New("auction already closed")
	ErrInvalidFinancingChoice   = errors.New("invalid financing choice")
	ErrInsuranceMissing         = errors.New("no insurance policy on file")
	ErrContractReviewIncomplete = errors.New("contract review not passed")
	ErrSigningIncomplete        = errors.New("e-sign envelope not completed")
	ErrPaymentNotConfirmed      = errors.New("payment not confirmed")
	ErrPayoutBelowMinimum       = errors.New("available balance below payout minimum")
	ErrReferralExists           = errors.New("user already has a direct referrer")
	ErrReferralCycle            = errors.New("referral would create a cycle")
	ErrSelfReferral             = errors.New("users cannot refer themselves")
)

// InvalidStateTransition reports a deal transition attempted from a state
// where it is not valid. Current is the state actually on record so the
// caller can decide whether a retry makes sense.
type InvalidStateTransition struct {
	Current   string
	Attempted string
}

func (e *InvalidStateTransition) Error() string {
	return fmt.Sprintf("invalid state transition: deal is %s, attempted %s", e.Current, e.Attempted)
}

// IsInvalidStateTransition extracts an InvalidStateTransition from an error
// chain, if present.
func IsInvalidStateTransition(err error) (*InvalidStateTransition, bool) {
	var ist *InvalidStateTransition
	if errors.As(err, &ist) {
		return ist, true
	}
	return nil, false
}
