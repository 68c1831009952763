package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"github.com/autolenis01/VercelAutoLenis-sub004/internal/models"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/services"
)

// DealHandler handles REST requests for the deal lifecycle.
type DealHandler struct {
	dealService    services.IDealService
	paymentService services.IPaymentService
	taskClient     *asynq.Client
}

// NewDealHandler creates a new DealHandler.
func NewDealHandler(dealService services.IDealService, paymentService services.IPaymentService, taskClient *asynq.Client) *DealHandler {
	return &DealHandler{dealService: dealService, paymentService: paymentService, taskClient: taskClient}
}

// GetDeal handles GET /v1/deals/:id
func (h *DealHandler) GetDeal(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	dealID, ok := pathID(c, "id")
	if !ok {
		return
	}
	deal, err := h.dealService.FindByID(c.Request.Context(), dealID)
	if err != nil {
		respondError(c, err)
		return
	}
	resp := dealResponse{Deal: deal}
	if deal.BuyerID == userID {
		resp.PickupCode = deal.PickupCode
	}
	c.JSON(http.StatusOK, resp)
}

// dealResponse adds the pickup code back for the buyer. The code is the
// buyer's proof at handover, so nobody else gets it in a response.
type dealResponse struct {
	*models.Deal
	PickupCode string `json:"pickup_code,omitempty"`
}

type selectFinancingRequest struct {
	FinancingType string `json:"financing_type" binding:"required"`
	OptionIndex   int    `json:"option_index"`
}

// SelectFinancing handles POST /v1/deals/:id/financing
func (h *DealHandler) SelectFinancing(c *gin.Context) {
	buyerID, ok := currentUserID(c)
	if !ok {
		return
	}
	dealID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req selectFinancingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	deal, err := h.dealService.SelectFinancing(c.Request.Context(), dealID, buyerID, models.FinancingType(req.FinancingType), req.OptionIndex)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

// CreateFeeCheckout handles POST /v1/deals/:id/fee-checkout
func (h *DealHandler) CreateFeeCheckout(c *gin.Context) {
	buyerID, ok := currentUserID(c)
	if !ok {
		return
	}
	dealID, ok := pathID(c, "id")
	if !ok {
		return
	}
	fee, session, err := h.paymentService.CreateFeeCheckout(c.Request.Context(), dealID, buyerID)
	if err != nil {
		respondError(c, err)
		return
	}
	resp := gin.H{"fee": fee}
	if session != nil {
		resp["checkout"] = session
	}
	c.JSON(http.StatusCreated, resp)
}

type recordInsuranceRequest struct {
	Provider     string    `json:"provider" binding:"required"`
	PolicyNumber string    `json:"policy_number" binding:"required"`
	EffectiveAt  time.Time `json:"effective_at" binding:"required"`
}

// RecordInsurance handles POST /v1/deals/:id/insurance
func (h *DealHandler) RecordInsurance(c *gin.Context) {
	buyerID, ok := currentUserID(c)
	if !ok {
		return
	}
	dealID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req recordInsuranceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	deal, err := h.dealService.RecordInsurance(c.Request.Context(), dealID, buyerID, req.Provider, req.PolicyNumber, req.EffectiveAt)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

// PassContractReview handles POST /v1/deals/:id/contract-review
func (h *DealHandler) PassContractReview(c *gin.Context) {
	buyerID, ok := currentUserID(c)
	if !ok {
		return
	}
	dealID, ok := pathID(c, "id")
	if !ok {
		return
	}
	deal, err := h.dealService.PassContractReview(c.Request.Context(), dealID, buyerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

type overrideReviewRequest struct {
	Verdict string `json:"verdict" binding:"required"`
	Reason  string `json:"reason" binding:"required"`
}

// OverrideContractReview handles POST /v1/admin/deals/:id/review-override
func (h *DealHandler) OverrideContractReview(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	dealID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req overrideReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	deal, err := h.dealService.OverrideContractReview(c.Request.Context(), dealID, adminID, models.ReviewVerdict(req.Verdict), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

// AcknowledgeOverride handles POST /v1/deals/:id/review-override/ack
func (h *DealHandler) AcknowledgeOverride(c *gin.Context) {
	buyerID, ok := currentUserID(c)
	if !ok {
		return
	}
	dealID, ok := pathID(c, "id")
	if !ok {
		return
	}
	deal, err := h.dealService.AcknowledgeOverride(c.Request.Context(), dealID, buyerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

// MarkSigned handles POST /v1/deals/:id/sign
func (h *DealHandler) MarkSigned(c *gin.Context) {
	buyerID, ok := currentUserID(c)
	if !ok {
		return
	}
	dealID, ok := pathID(c, "id")
	if !ok {
		return
	}
	deal, err := h.dealService.MarkSigned(c.Request.Context(), dealID, buyerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

type schedulePickupRequest struct {
	PickupAt time.Time `json:"pickup_at" binding:"required"`
}

// SchedulePickup handles POST /v1/deals/:id/pickup
func (h *DealHandler) SchedulePickup(c *gin.Context) {
	dealerID, ok := currentUserID(c)
	if !ok {
		return
	}
	dealID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req schedulePickupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	deal, err := h.dealService.SchedulePickup(c.Request.Context(), dealID, dealerID, req.PickupAt)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

type completeDealRequest struct {
	PickupCode string `json:"pickup_code" binding:"required"`
}

// Complete handles POST /v1/deals/:id/complete
func (h *DealHandler) Complete(c *gin.Context) {
	dealerID, ok := currentUserID(c)
	if !ok {
		return
	}
	dealID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req completeDealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	deal, err := h.dealService.Complete(c.Request.Context(), dealID, dealerID, req.PickupCode)
	if err != nil {
		respondError(c, err)
		return
	}
	notifyByEmail(c.Request.Context(), h.taskClient, "deal_complete", deal.ID, deal.BuyerID, 0)
	c.JSON(http.StatusOK, deal)
}

type cancelDealRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Cancel handles POST /v1/admin/deals/:id/cancel
func (h *DealHandler) Cancel(c *gin.Context) {
	dealID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req cancelDealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	deal, err := h.dealService.Cancel(c.Request.Context(), dealID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}
