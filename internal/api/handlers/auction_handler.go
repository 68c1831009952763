package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"github.com/autolenis01/VercelAutoLenis-sub004/internal/models"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/services"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/utils"
)

// AuctionHandler handles REST requests for auctions and offers.
type AuctionHandler struct {
	auctionService services.IAuctionService
	paymentService services.IPaymentService
	taskClient     *asynq.Client
}

// NewAuctionHandler creates a new AuctionHandler.
func NewAuctionHandler(auctionService services.IAuctionService, paymentService services.IPaymentService, taskClient *asynq.Client) *AuctionHandler {
	return &AuctionHandler{auctionService: auctionService, paymentService: paymentService, taskClient: taskClient}
}

type openAuctionRequest struct {
	VehicleIDs []string `json:"vehicle_ids" binding:"required"`
}

// OpenAuction handles POST /v1/auctions
func (h *AuctionHandler) OpenAuction(c *gin.Context) {
	buyerID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req openAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	vehicleIDs := make([]utils.SixID, 0, len(req.VehicleIDs))
	for _, raw := range req.VehicleIDs {
		id, err := utils.ParseSixID(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid vehicle ID: " + raw})
			return
		}
		vehicleIDs = append(vehicleIDs, id)
	}

	auction, err := h.auctionService.OpenAuction(c.Request.Context(), buyerID, vehicleIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, auction)
}

// GetAuction handles GET /v1/auctions/:id
func (h *AuctionHandler) GetAuction(c *gin.Context) {
	auctionID, ok := pathID(c, "id")
	if !ok {
		return
	}
	auction, err := h.auctionService.FindByID(c.Request.Context(), auctionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, auction)
}

type inviteDealerRequest struct {
	DealerID string `json:"dealer_id" binding:"required"`
}

// InviteDealer handles POST /v1/auctions/:id/invites
func (h *AuctionHandler) InviteDealer(c *gin.Context) {
	buyerID, ok := currentUserID(c)
	if !ok {
		return
	}
	auctionID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req inviteDealerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	dealerID, err := utils.ParseSixID(req.DealerID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dealer ID format"})
		return
	}

	participant, err := h.auctionService.InviteDealer(c.Request.Context(), auctionID, buyerID, dealerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, participant)
}

type submitOfferRequest struct {
	VehicleID        string                   `json:"vehicle_id" binding:"required"`
	CashOTDCents     int64                    `json:"cash_otd_cents" binding:"required"`
	FinancingOptions []models.FinancingOption `json:"financing_options"`
}

// SubmitOffer handles POST /v1/auctions/:id/offers
func (h *AuctionHandler) SubmitOffer(c *gin.Context) {
	dealerID, ok := currentUserID(c)
	if !ok {
		return
	}
	auctionID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req submitOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	vehicleID, err := utils.ParseSixID(req.VehicleID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid vehicle ID format"})
		return
	}

	offer, err := h.auctionService.SubmitOffer(c.Request.Context(), auctionID, dealerID, vehicleID, req.CashOTDCents, req.FinancingOptions)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, offer)
}

// WithdrawOffer handles POST /v1/offers/:id/withdraw
func (h *AuctionHandler) WithdrawOffer(c *gin.Context) {
	dealerID, ok := currentUserID(c)
	if !ok {
		return
	}
	offerID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.auctionService.WithdrawOffer(c.Request.Context(), offerID, dealerID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawn": true})
}

// ListOffers handles GET /v1/auctions/:id/offers
func (h *AuctionHandler) ListOffers(c *gin.Context) {
	buyerID, ok := currentUserID(c)
	if !ok {
		return
	}
	auctionID, ok := pathID(c, "id")
	if !ok {
		return
	}
	offers, err := h.auctionService.ListOffers(c.Request.Context(), auctionID, buyerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"offers": offers})
}

type acceptOfferRequest struct {
	OfferID string `json:"offer_id" binding:"required"`
}

// AcceptOffer handles POST /v1/auctions/:id/accept
func (h *AuctionHandler) AcceptOffer(c *gin.Context) {
	buyerID, ok := currentUserID(c)
	if !ok {
		return
	}
	auctionID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req acceptOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	offerID, err := utils.ParseSixID(req.OfferID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offer ID format"})
		return
	}

	deal, err := h.auctionService.AcceptOffer(c.Request.Context(), auctionID, offerID, buyerID)
	if err != nil {
		respondError(c, err)
		return
	}
	notifyByEmail(c.Request.Context(), h.taskClient, "offer_accepted", deal.ID, deal.BuyerID, 0)
	c.JSON(http.StatusCreated, deal)
}

// PlaceDeposit handles POST /v1/auctions/:id/deposit
func (h *AuctionHandler) PlaceDeposit(c *gin.Context) {
	buyerID, ok := currentUserID(c)
	if !ok {
		return
	}
	auctionID, ok := pathID(c, "id")
	if !ok {
		return
	}
	deposit, session, err := h.paymentService.PlaceDeposit(c.Request.Context(), buyerID, auctionID)
	if err != nil {
		respondError(c, err)
		return
	}
	resp := gin.H{"deposit": deposit}
	if session != nil {
		resp["checkout"] = session
	}
	c.JSON(http.StatusCreated, resp)
}
