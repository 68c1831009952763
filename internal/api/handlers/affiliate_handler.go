package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/autolenis01/VercelAutoLenis-sub004/internal/services"
)

// AffiliateHandler handles REST requests for referral accounts,
// commissions and payouts.
type AffiliateHandler struct {
	affiliateService  services.IAffiliateService
	commissionService services.ICommissionService
}

// NewAffiliateHandler creates a new AffiliateHandler.
func NewAffiliateHandler(affiliateService services.IAffiliateService, commissionService services.ICommissionService) *AffiliateHandler {
	return &AffiliateHandler{affiliateService: affiliateService, commissionService: commissionService}
}

// EnsureAffiliate handles POST /v1/affiliate. Idempotent: returns the
// existing account when one exists.
func (h *AffiliateHandler) EnsureAffiliate(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	affiliate, err := h.affiliateService.EnsureAffiliate(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, affiliate)
}

// Dashboard handles GET /v1/affiliate/dashboard
func (h *AffiliateHandler) Dashboard(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	dashboard, err := h.affiliateService.Dashboard(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

// RequestPayout handles POST /v1/affiliate/payouts
func (h *AffiliateHandler) RequestPayout(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	payout, err := h.commissionService.RequestPayout(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, payout)
}

// ApproveCommission handles POST /v1/admin/commissions/:id/approve
func (h *AffiliateHandler) ApproveCommission(c *gin.Context) {
	commissionID, ok := pathID(c, "id")
	if !ok {
		return
	}
	commission, err := h.commissionService.Approve(c.Request.Context(), commissionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, commission)
}
