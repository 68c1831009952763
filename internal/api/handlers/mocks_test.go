package handlers_test

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"

	"github.com/autolenis01/VercelAutoLenis-sub004/internal/api/middleware"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/models"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/utils"
)

// --- Mocks ---

// MockUserService
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) Create(ctx context.Context, name, email string, role models.Role, referralCode string) (*models.User, error) {
	args := m.Called(ctx, name, email, role, referralCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) FindByID(ctx context.Context, userID utils.SixID) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) Suspend(ctx context.Context, userID utils.SixID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// MockDealService
type MockDealService struct {
	mock.Mock
}

func (m *MockDealService) FindByID(ctx context.Context, dealID utils.SixID) (*models.Deal, error) {
	args := m.Called(ctx, dealID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Deal), args.Error(1)
}

func (m *MockDealService) SelectFinancing(ctx context.Context, dealID, buyerID utils.SixID, financingType models.FinancingType, optionIndex int) (*models.Deal, error) {
	args := m.Called(ctx, dealID, buyerID, financingType, optionIndex)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Deal), args.Error(1)
}

func (m *MockDealService) MarkFeePaid(ctx context.Context, dealID utils.SixID) (*models.Deal, error) {
	args := m.Called(ctx, dealID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Deal), args.Error(1)
}

func (m *MockDealService) RecordInsurance(ctx context.Context, dealID, buyerID utils.SixID, provider, policyNumber string, effectiveAt time.Time) (*models.Deal, error) {
	args := m.Called(ctx, dealID, buyerID, provider, policyNumber, effectiveAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Deal), args.Error(1)
}

func (m *MockDealService) PassContractReview(ctx context.Context, dealID, buyerID utils.SixID) (*models.Deal, error) {
	args := m.Called(ctx, dealID, buyerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Deal), args.Error(1)
}

func (m *MockDealService) OverrideContractReview(ctx context.Context, dealID, adminID utils.SixID, verdict models.ReviewVerdict, reason string) (*models.Deal, error) {
	args := m.Called(ctx, dealID, adminID, verdict, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Deal), args.Error(1)
}

func (m *MockDealService) AcknowledgeOverride(ctx context.Context, dealID, buyerID utils.SixID) (*models.Deal, error) {
	args := m.Called(ctx, dealID, buyerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Deal), args.Error(1)
}

func (m *MockDealService) MarkSigned(ctx context.Context, dealID, buyerID utils.SixID) (*models.Deal, error) {
	args := m.Called(ctx, dealID, buyerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Deal), args.Error(1)
}

func (m *MockDealService) SchedulePickup(ctx context.Context, dealID, dealerID utils.SixID, pickupAt time.Time) (*models.Deal, error) {
	args := m.Called(ctx, dealID, dealerID, pickupAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Deal), args.Error(1)
}

func (m *MockDealService) Complete(ctx context.Context, dealID, dealerID utils.SixID, pickupCode string) (*models.Deal, error) {
	args := m.Called(ctx, dealID, dealerID, pickupCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Deal), args.Error(1)
}

func (m *MockDealService) Cancel(ctx context.Context, dealID utils.SixID, reason string) (*models.Deal, error) {
	args := m.Called(ctx, dealID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Deal), args.Error(1)
}

// authAs simulates the JWT middleware by planting a user ID in the context.
func authAs(userID utils.SixID) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyUserID, userID.String())
		c.Next()
	}
}
