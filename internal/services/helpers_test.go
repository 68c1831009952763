package services

import (
	"context"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/autolenis01/VercelAutoLenis-sub004/internal/config"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/db"
)

var testMongoURI = ""

func init() {
	testMongoURI = os.Getenv("MONGO_URI_TEST")
	if testMongoURI == "" {
		testMongoURI = "mongodb://localhost:27017"
	}
}

// setupTestDB drops and recreates a dedicated database with the production
// index set, so unique-index behavior is exercised for real.
func setupTestDB(t *testing.T, dbName string) (*mongo.Client, *mongo.Database) {
	t.Helper()
	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(testMongoURI))
	if err != nil {
		t.Fatalf("Failed to connect to MongoDB: %v", err)
	}

	if err := client.Database(dbName).Drop(context.Background()); err != nil {
		t.Logf("Database drop error (may be normal): %v", err)
	}

	database := client.Database(dbName)
	if err := db.EnsureIndexes(context.Background(), database); err != nil {
		t.Fatalf("Failed to ensure indexes: %v", err)
	}
	return client, database
}

// testConfig mirrors the .env defaults.
func testConfig() *config.Config {
	return &config.Config{
		AuctionDuration:       72 * time.Hour,
		MaxShortlistSize:      5,
		ExpirySweepEvery:      time.Minute,
		FeeLowTierCents:       49900,
		FeeHighTierCents:      99900,
		FeeTierThresholdCents: 5000000,
		DepositAmountCents:    9900,
		CommissionRatesBps:    []int64{2000, 1500, 1000, 500, 300},
		CommissionHoldDays:    14,
		PayoutMinimumCents:    5000,
	}
}

// stubConfig answers every typed getter with the caller's default, which
// testConfig already set to the values under test.
type stubConfig struct{}

func (s *stubConfig) GetAllPublic(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{}, nil
}
func (s *stubConfig) Get(ctx context.Context, key string) (interface{}, error) {
	return nil, context.Canceled
}
func (s *stubConfig) GetInt(ctx context.Context, key string, defaultValue int) int {
	return defaultValue
}
func (s *stubConfig) GetInt64(ctx context.Context, key string, defaultValue int64) int64 {
	return defaultValue
}
func (s *stubConfig) GetString(ctx context.Context, key string, defaultValue string) string {
	return defaultValue
}
func (s *stubConfig) GetBool(ctx context.Context, key string, defaultValue bool) bool {
	return defaultValue
}
func (s *stubConfig) GetDuration(ctx context.Context, key string, defaultValue time.Duration) time.Duration {
	return defaultValue
}
func (s *stubConfig) Load(ctx context.Context) error               { return nil }
func (s *stubConfig) SubscribeToChanges(ctx context.Context) error { return nil }
func (s *stubConfig) SetConfigValue(ctx context.Context, key string, value interface{}, isPublic bool) error {
	return nil
}
