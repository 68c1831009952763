package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/autolenis01/VercelAutoLenis-sub004/internal/config"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/db"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/faults"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/models"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/utils"
)

// IUserService defines the interface for account operations. Credential
// management lives with the identity collaborator; accounts here exist to
// authorize marketplace actions and anchor referral chains.
type IUserService interface {
	Create(ctx context.Context, name, email string, role models.Role, referralCode string) (*models.User, error)
	FindByID(ctx context.Context, userID utils.SixID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Suspend(ctx context.Context, userID utils.SixID) error
}

const usersCollection = "users"

// userService implements IUserService.
type userService struct {
	db               *mongo.Database
	cfg              *config.Config
	affiliateService IAffiliateService
}

// NewUserService creates a new UserService.
func NewUserService(database *mongo.Database, cfg *config.Config, affiliateService IAffiliateService) IUserService {
	return &userService{db: database, cfg: cfg, affiliateService: affiliateService}
}

// Create registers an account. A referral code, when given, must resolve
// to an active affiliate; the chain is bound at registration and the code
// cannot be attached later.
func (s *userService) Create(ctx context.Context, name, email string, role models.Role, referralCode string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	switch role {
	case models.RoleBuyer, models.RoleDealer, models.RoleAdmin:
	default:
		return nil, fmt.Errorf("invalid role %q", role)
	}

	now := time.Now().UTC()
	user := &models.User{
		Name:      name,
		Email:     email,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	user, err := db.InsertOne(ctx, s.db.Collection(usersCollection), user)
	if err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return nil, fmt.Errorf("email %s is already registered", email)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if referralCode != "" {
		if err := s.affiliateService.RegisterReferral(ctx, user.ID, referralCode); err != nil {
			// The account stands; a bad code only drops the referral.
			return user, err
		}
	}
	return user, nil
}

// FindByID fetches one user.
func (s *userService) FindByID(ctx context.Context, userID utils.SixID) (*models.User, error) {
	var user models.User
	err := s.db.Collection(usersCollection).FindOne(ctx, bson.M{"_id": userID, "deleted": false}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, faults.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load user %s: %w", userID.String(), err)
	}
	return &user, nil
}

// FindByEmail fetches one user by normalized email.
func (s *userService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.Collection(usersCollection).FindOne(ctx, bson.M{
		"email":   strings.ToLower(strings.TrimSpace(email)),
		"deleted": false,
	}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, faults.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load user by email: %w", err)
	}
	return &user, nil
}

// Suspend blocks an account from further marketplace actions.
func (s *userService) Suspend(ctx context.Context, userID utils.SixID) error {
	result, err := s.db.Collection(usersCollection).UpdateOne(ctx, bson.M{"_id": userID}, bson.M{
		"$set": bson.M{"suspended": true, "updated_at": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("db error suspending user %s: %w", userID.String(), err)
	}
	if result.MatchedCount == 0 {
		return faults.ErrNotFound
	}
	return nil
}
