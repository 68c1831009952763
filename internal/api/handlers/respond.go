package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/autolenis01/VercelAutoLenis-sub004/internal/api/middleware"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/faults"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/utils"
)

// respondError maps service-layer faults onto HTTP statuses. Unknown
// errors become 500 with a generic message so internals never leak.
func respondError(c *gin.Context, err error) {
	if ist, ok := faults.IsInvalidStateTransition(err); ok {
		c.JSON(http.StatusConflict, gin.H{
			"error":            "invalid state transition",
			"current_status":   ist.Current,
			"attempted_status": ist.Attempted,
		})
		return
	}

	switch {
	case errors.Is(err, faults.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, faults.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed"})
	case errors.Is(err, faults.ErrInvalidShortlist),
		errors.Is(err, faults.ErrInvalidFinancingChoice),
		errors.Is(err, faults.ErrInsuranceMissing),
		errors.Is(err, faults.ErrSelfReferral):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, faults.ErrDuplicateInvite),
		errors.Is(err, faults.ErrDuplicateOffer),
		errors.Is(err, faults.ErrAuctionClosed),
		errors.Is(err, faults.ErrAuctionAlreadyClosed),
		errors.Is(err, faults.ErrReferralExists),
		errors.Is(err, faults.ErrReferralCycle):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, faults.ErrContractReviewIncomplete),
		errors.Is(err, faults.ErrSigningIncomplete),
		errors.Is(err, faults.ErrPaymentNotConfirmed),
		errors.Is(err, faults.ErrPayoutBelowMinimum):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// currentUserID extracts the authenticated user's ID from the Gin context.
func currentUserID(c *gin.Context) (utils.SixID, bool) {
	raw, exists := c.Get(middleware.ContextKeyUserID)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return utils.SixID{}, false
	}
	id, err := utils.ParseSixID(raw.(string))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user identity"})
		return utils.SixID{}, false
	}
	return id, true
}

// pathID parses a SixID path parameter, responding 400 on failure.
func pathID(c *gin.Context, name string) (utils.SixID, bool) {
	id, err := utils.ParseSixID(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name + " format"})
		return utils.SixID{}, false
	}
	return id, true
}
