package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/autolenis01/VercelAutoLenis-sub004/internal/config"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/models"
)

// CheckoutSession is the provider handle returned to the frontend. The
// platform never sees card data; confirmation arrives asynchronously via
// webhook.
type CheckoutSession struct {
	SessionID    string `json:"session_id"`
	ClientSecret string `json:"client_secret"`
}

// IPaymentProvider defines the interface to the hosted payments service.
type IPaymentProvider interface {
	CreateCheckoutSession(ctx context.Context, kind models.PaymentKind, referenceID string, amountCents int64) (*CheckoutSession, error)
}

type paymentProvider struct {
	cfg        *config.Config
	httpClient *http.Client
}

// NewPaymentProvider creates a client for the payments service.
func NewPaymentProvider(cfg *config.Config) IPaymentProvider {
	return &paymentProvider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type checkoutRequest struct {
	Kind        string `json:"kind"`
	ReferenceID string `json:"reference_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

// CreateCheckoutSession asks the provider for a new checkout session. When
// no API URL is configured (dev, tests) a deterministic stub session is
// returned so flows can be exercised without the provider.
func (p *paymentProvider) CreateCheckoutSession(ctx context.Context, kind models.PaymentKind, referenceID string, amountCents int64) (*CheckoutSession, error) {
	if p.cfg.PaymentsAPIURL == "" {
		log.Println("WARN: payments API not configured, returning stub session")
		return &CheckoutSession{
			SessionID:    "stub_" + referenceID,
			ClientSecret: "stub_secret_" + referenceID,
		}, nil
	}

	body, _ := json.Marshal(checkoutRequest{
		Kind:        string(kind),
		ReferenceID: referenceID,
		AmountCents: amountCents,
		Currency:    "usd",
	})
	req, err := http.NewRequestWithContext(ctx, "POST", p.cfg.PaymentsAPIURL+"/v1/checkout/sessions", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.PaymentsAPIKey)
	// Providers dedupe retried session requests on this key.
	req.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		log.Printf("Error calling payments service: %v", err)
		return nil, fmt.Errorf("failed to contact payments service")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read payments response")
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("Payments service returned %d: %s", resp.StatusCode, string(respBody))
		return nil, fmt.Errorf("checkout session creation failed with status %d", resp.StatusCode)
	}

	var session CheckoutSession
	if err := json.Unmarshal(respBody, &session); err != nil {
		return nil, fmt.Errorf("failed to parse payments response: %w", err)
	}
	return &session, nil
}
