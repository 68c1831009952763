package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/autolenis01/VercelAutoLenis-sub004/internal/api/handlers"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/faults"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/models"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/utils"
)

func newDealRouter(svc *MockDealService, userID utils.SixID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := handlers.NewDealHandler(svc, nil, nil)
	r := gin.New()
	r.Use(authAs(userID))
	r.GET("/v1/deals/:id", handler.GetDeal)
	r.POST("/v1/deals/:id/financing", handler.SelectFinancing)
	r.POST("/v1/deals/:id/insurance", handler.RecordInsurance)
	r.POST("/v1/deals/:id/contract-review", handler.PassContractReview)
	r.POST("/v1/deals/:id/complete", handler.Complete)
	return r
}

func TestDealHandler_SelectFinancing_Success(t *testing.T) {
	mockDealSvc := new(MockDealService)
	buyerID := utils.NewSixID()
	r := newDealRouter(mockDealSvc, buyerID)

	dealID := utils.NewSixID()
	updated := &models.Deal{
		BuyerID:       buyerID,
		Status:        models.DealFinancingSelected,
		FinancingType: models.FinancingCash,
	}
	updated.SetID(dealID)
	mockDealSvc.On("SelectFinancing", mock.Anything, dealID, buyerID, models.FinancingCash, 0).Return(updated, nil)

	body := `{"financing_type":"cash"}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/deals/"+dealID.String()+"/financing", strings.NewReader(body))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp models.Deal
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.DealFinancingSelected, resp.Status)
	assert.Equal(t, models.FinancingCash, resp.FinancingType)
	mockDealSvc.AssertExpectations(t)
}

func TestDealHandler_RecordInsurance_StageSkipConflict(t *testing.T) {
	mockDealSvc := new(MockDealService)
	buyerID := utils.NewSixID()
	r := newDealRouter(mockDealSvc, buyerID)

	dealID := utils.NewSixID()
	ist := &faults.InvalidStateTransition{
		Current:   string(models.DealOfferAccepted),
		Attempted: string(models.DealInsuranceComplete),
	}
	mockDealSvc.On("RecordInsurance", mock.Anything, dealID, buyerID, "Acme Mutual", "POL-123", mock.Anything).Return(nil, ist)

	body := `{"provider":"Acme Mutual","policy_number":"POL-123","effective_at":"2026-09-01T00:00:00Z"}`
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/deals/"+dealID.String()+"/insurance", strings.NewReader(body))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "invalid state transition", resp["error"])
	assert.Equal(t, "OFFER_ACCEPTED", resp["current_status"])
	assert.Equal(t, "INSURANCE_COMPLETE", resp["attempted_status"])
	mockDealSvc.AssertExpectations(t)
}

func TestDealHandler_PassContractReview_Incomplete(t *testing.T) {
	mockDealSvc := new(MockDealService)
	buyerID := utils.NewSixID()
	r := newDealRouter(mockDealSvc, buyerID)

	dealID := utils.NewSixID()
	mockDealSvc.On("PassContractReview", mock.Anything, dealID, buyerID).Return(nil, faults.ErrContractReviewIncomplete)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/deals/"+dealID.String()+"/contract-review", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp["error"], "contract review not passed")
	mockDealSvc.AssertExpectations(t)
}

func TestDealHandler_Complete_WrongDealerForbidden(t *testing.T) {
	mockDealSvc := new(MockDealService)
	dealerID := utils.NewSixID()
	r := newDealRouter(mockDealSvc, dealerID)

	dealID := utils.NewSixID()
	mockDealSvc.On("Complete", mock.Anything, dealID, dealerID, "X7K2M9").Return(nil, faults.ErrUnauthorized)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/deals/"+dealID.String()+"/complete", strings.NewReader(`{"pickup_code":"X7K2M9"}`))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "not allowed", resp["error"])
	mockDealSvc.AssertExpectations(t)
}

func TestDealHandler_GetDeal_PickupCodeBuyerOnly(t *testing.T) {
	buyerID := utils.NewSixID()
	dealerID := utils.NewSixID()
	dealID := utils.NewSixID()

	deal := &models.Deal{
		BuyerID:    buyerID,
		DealerID:   dealerID,
		Status:     models.DealPickupScheduled,
		PickupCode: "X7K2M9",
	}
	deal.SetID(dealID)

	// The buyer sees the code they will present at handover.
	buyerSvc := new(MockDealService)
	buyerSvc.On("FindByID", mock.Anything, dealID).Return(deal, nil)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/deals/"+dealID.String(), nil)
	newDealRouter(buyerSvc, buyerID).ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	var got map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "X7K2M9", got["pickup_code"])

	// Anyone else, the dealer included, does not.
	dealerSvc := new(MockDealService)
	dealerSvc.On("FindByID", mock.Anything, dealID).Return(deal, nil)
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/v1/deals/"+dealID.String(), nil)
	newDealRouter(dealerSvc, dealerID).ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	got = map[string]interface{}{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.NotContains(t, got, "pickup_code")
}

func TestDealHandler_Unauthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockDealSvc := new(MockDealService)
	handler := handlers.NewDealHandler(mockDealSvc, nil, nil)
	r := gin.New()
	r.POST("/v1/deals/:id/contract-review", handler.PassContractReview)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/deals/"+utils.NewSixID().String()+"/contract-review", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	mockDealSvc.AssertNotCalled(t, "PassContractReview")
}
