package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/autolenis01/VercelAutoLenis-sub004/internal/config"
	"github.com/autolenis01/VercelAutoLenis-sub004/internal/utils"
)

// EnvelopeStatus is the signing state of a deal's document envelope.
type EnvelopeStatus string

const (
	EnvelopeNone      EnvelopeStatus = "NONE"
	EnvelopeSent      EnvelopeStatus = "SENT"
	EnvelopeCompleted EnvelopeStatus = "COMPLETED"
	EnvelopeDeclined  EnvelopeStatus = "DECLINED"
)

// IEsignProvider defines the interface to the e-signature service.
type IEsignProvider interface {
	EnvelopeStatus(ctx context.Context, dealID utils.SixID) (EnvelopeStatus, error)
}

type esignProvider struct {
	cfg        *config.Config
	httpClient *http.Client
}

// NewEsignProvider creates a client for the e-signature service.
func NewEsignProvider(cfg *config.Config) IEsignProvider {
	return &esignProvider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type envelopeResponse struct {
	Status EnvelopeStatus `json:"status"`
}

// EnvelopeStatus fetches the signing state for a deal's envelope. An
// unconfigured API URL yields NONE, which the signing gate treats as
// incomplete.
func (p *esignProvider) EnvelopeStatus(ctx context.Context, dealID utils.SixID) (EnvelopeStatus, error) {
	if p.cfg.EsignAPIURL == "" {
		log.Println("WARN: e-sign API not configured, reporting no envelope")
		return EnvelopeNone, nil
	}

	url := fmt.Sprintf("%s/v1/envelopes/%s", p.cfg.EsignAPIURL, dealID.String())
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return EnvelopeNone, fmt.Errorf("failed to create envelope request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.EsignAPIKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		log.Printf("Error calling e-sign service: %v", err)
		return EnvelopeNone, fmt.Errorf("failed to contact e-sign service")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return EnvelopeNone, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return EnvelopeNone, fmt.Errorf("failed to read e-sign response")
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("E-sign service returned %d: %s", resp.StatusCode, string(body))
		return EnvelopeNone, fmt.Errorf("envelope lookup failed with status %d", resp.StatusCode)
	}

	var er envelopeResponse
	if err := json.Unmarshal(body, &er); err != nil {
		return EnvelopeNone, fmt.Errorf("failed to parse e-sign response: %w", err)
	}
	return er.Status, nil
}
