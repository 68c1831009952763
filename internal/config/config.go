package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode string // Set via flag, not env

	// MongoDB
	MongoURI    string
	MongoDbName string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT
	JwtSecret string
	JwtTTL    time.Duration

	// Server
	ApiPort     string
	MetricsPort string

	// Auctions
	AuctionDuration  time.Duration
	MaxShortlistSize int
	ExpirySweepEvery time.Duration

	// Fees (cents)
	FeeLowTierCents       int64
	FeeHighTierCents      int64
	FeeTierThresholdCents int64
	DepositAmountCents    int64

	// Commissions
	CommissionRatesBps []int64 // per level, index 0 = level 1
	CommissionHoldDays int
	PayoutMinimumCents int64

	// Payments provider
	PaymentsAPIURL string
	PaymentsAPIKey string

	// Contract review provider
	ContractsAPIURL string
	ContractsAPIKey string

	// E-sign provider
	EsignAPIURL string
	EsignAPIKey string

	// Email
	SmtpHost        string
	SmtpPort        int
	SmtpUsername    string
	SmtpPassword    string
	SmtpFromAddress string

	// App
	AppName string

	// Rate Limiting Defaults
	RateLimitSoftBucketSize int
	RateLimitSoftRefillRate int // tokens per second
	RateLimitHardBucketSize int
	RateLimitHardRefillRate int // tokens per second
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	godotenv.Load()

	cfg := &Config{
		RunMode: runMode,
	}

	var err error

	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	getEnvInt := func(key, defaultValue string) (int, error) {
		v, err := strconv.Atoi(getEnv(key, defaultValue))
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return v, nil
	}

	getEnvCents := func(key, defaultValue string) (int64, error) {
		v, err := strconv.ParseInt(getEnv(key, defaultValue), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return v, nil
	}

	cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
	if err != nil {
		return nil, err
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "autolenis")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.JwtSecret, err = getRequiredEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	cfg.ApiPort = getEnv("API_PORT", "8080")
	cfg.MetricsPort = getEnv("METRICS_PORT", "9090")
	cfg.AppName = getEnv("APP_NAME", "AutoLenis")

	cfg.PaymentsAPIURL = getEnv("PAYMENTS_API_URL", "")
	cfg.PaymentsAPIKey = getEnv("PAYMENTS_API_KEY", "")
	cfg.ContractsAPIURL = getEnv("CONTRACTS_API_URL", "")
	cfg.ContractsAPIKey = getEnv("CONTRACTS_API_KEY", "")
	cfg.EsignAPIURL = getEnv("ESIGN_API_URL", "")
	cfg.EsignAPIKey = getEnv("ESIGN_API_KEY", "")

	cfg.SmtpHost = getEnv("SMTP_HOST", "")
	cfg.SmtpUsername = getEnv("SMTP_USERNAME", "")
	cfg.SmtpPassword = getEnv("SMTP_PASSWORD", "")
	cfg.SmtpFromAddress = getEnv("SMTP_FROM_ADDRESS", "noreply@autolenis.example.com")

	cfg.RedisDB, err = getEnvInt("REDIS_DB", "0")
	if err != nil {
		return nil, err
	}

	jwtTTLSeconds, err := getEnvCents("JWT_TTL_SECONDS", "3600")
	if err != nil {
		return nil, err
	}
	cfg.JwtTTL = time.Duration(jwtTTLSeconds) * time.Second

	cfg.SmtpPort, err = getEnvInt("SMTP_PORT", "587")
	if err != nil {
		return nil, err
	}

	auctionHours, err := getEnvInt("AUCTION_DURATION_HOURS", "72")
	if err != nil {
		return nil, err
	}
	cfg.AuctionDuration = time.Duration(auctionHours) * time.Hour

	cfg.MaxShortlistSize, err = getEnvInt("MAX_SHORTLIST_SIZE", "5")
	if err != nil {
		return nil, err
	}

	sweepSeconds, err := getEnvInt("EXPIRY_SWEEP_SECONDS", "60")
	if err != nil {
		return nil, err
	}
	cfg.ExpirySweepEvery = time.Duration(sweepSeconds) * time.Second

	cfg.FeeLowTierCents, err = getEnvCents("FEE_LOW_TIER_CENTS", "49900")
	if err != nil {
		return nil, err
	}
	cfg.FeeHighTierCents, err = getEnvCents("FEE_HIGH_TIER_CENTS", "99900")
	if err != nil {
		return nil, err
	}
	cfg.FeeTierThresholdCents, err = getEnvCents("FEE_TIER_THRESHOLD_CENTS", "5000000")
	if err != nil {
		return nil, err
	}
	cfg.DepositAmountCents, err = getEnvCents("DEPOSIT_AMOUNT_CENTS", "9900")
	if err != nil {
		return nil, err
	}

	ratesRaw := getEnv("COMMISSION_RATES_BPS", "2000,1500,1000,500,300")
	for _, part := range strings.Split(ratesRaw, ",") {
		bps, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid COMMISSION_RATES_BPS: %w", err)
		}
		cfg.CommissionRatesBps = append(cfg.CommissionRatesBps, bps)
	}

	cfg.CommissionHoldDays, err = getEnvInt("COMMISSION_HOLD_DAYS", "14")
	if err != nil {
		return nil, err
	}
	cfg.PayoutMinimumCents, err = getEnvCents("PAYOUT_MINIMUM_CENTS", "5000")
	if err != nil {
		return nil, err
	}

	cfg.RateLimitSoftBucketSize, err = getEnvInt("RATE_LIMIT_SOFT_BUCKET_SIZE", "2")
	if err != nil {
		return nil, err
	}
	cfg.RateLimitSoftRefillRate, err = getEnvInt("RATE_LIMIT_SOFT_REFILL_RATE", "1")
	if err != nil {
		return nil, err
	}
	cfg.RateLimitHardBucketSize, err = getEnvInt("RATE_LIMIT_HARD_BUCKET_SIZE", "8")
	if err != nil {
		return nil, err
	}
	cfg.RateLimitHardRefillRate, err = getEnvInt("RATE_LIMIT_HARD_REFILL_RATE", "4")
	if err != nil {
		return nil, err
	}

	return cfg, nil
}
