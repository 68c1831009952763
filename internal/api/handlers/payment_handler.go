package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/autolenis01/VercelAutoLenis-sub004/internal/models"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/services"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/utils"
)

// PaymentHandler receives asynchronous confirmations from the payments
// provider.
type PaymentHandler struct {
	paymentService services.IPaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentService services.IPaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

// HandleWebhook handles POST /v1/webhooks/payments. The provider retries
// deliveries, so the handler must accept duplicates quietly.
func (h *PaymentHandler) HandleWebhook(c *gin.Context) {
	var conf models.PaymentConfirmation
	if err := c.ShouldBindJSON(&conf); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid confirmation payload"})
		return
	}
	if conf.Kind != models.PaymentKindDeposit && conf.Kind != models.PaymentKindServiceFee {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown payment kind"})
		return
	}

	if err := h.paymentService.HandleConfirmation(c.Request.Context(), conf); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

type refundDepositRequest struct {
	BuyerID   string `json:"buyer_id" binding:"required"`
	AuctionID string `json:"auction_id" binding:"required"`
}

// RefundDeposit handles POST /v1/admin/deposits/refund. Used when a deal
// falls through after the buyer's deposit already settled.
func (h *PaymentHandler) RefundDeposit(c *gin.Context) {
	var req refundDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	buyerID, err := utils.ParseSixID(req.BuyerID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid buyer_id format"})
		return
	}
	auctionID, err := utils.ParseSixID(req.AuctionID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid auction_id format"})
		return
	}

	if err := h.paymentService.RefundDeposit(c.Request.Context(), buyerID, auctionID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refunded": true})
}
