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

// ScanStatus is the contract-analysis verdict for a deal's paperwork.
type ScanStatus string

const (
	ScanNotRun    ScanStatus = "NOT_RUN"
	ScanRunning   ScanStatus = "RUNNING"
	ScanCompleted ScanStatus = "COMPLETED"
)

// ScanResult summarizes the latest automated review of a deal's contract.
type ScanResult struct {
	Status                ScanStatus `json:"status"`
	CriticalFindingsCount int        `json:"critical_findings_count"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
}

// IContractScanner defines the interface to the contract-analysis service.
type IContractScanner interface {
	LatestScan(ctx context.Context, dealID utils.SixID) (*ScanResult, error)
}

type contractScanner struct {
	cfg        *config.Config
	httpClient *http.Client
}

// NewContractScanner creates a client for the contract-analysis service.
func NewContractScanner(cfg *config.Config) IContractScanner {
	return &contractScanner{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// LatestScan fetches the most recent scan for a deal. An unconfigured API
// URL yields NOT_RUN, which the review gate treats as incomplete.
func (s *contractScanner) LatestScan(ctx context.Context, dealID utils.SixID) (*ScanResult, error) {
	if s.cfg.ContractsAPIURL == "" {
		log.Println("WARN: contracts API not configured, reporting scan as not run")
		return &ScanResult{Status: ScanNotRun}, nil
	}

	url := fmt.Sprintf("%s/v1/deals/%s/scans/latest", s.cfg.ContractsAPIURL, dealID.String())
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create scan request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.ContractsAPIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		log.Printf("Error calling contracts service: %v", err)
		return nil, fmt.Errorf("failed to contact contracts service")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &ScanResult{Status: ScanNotRun}, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read contracts response")
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("Contracts service returned %d: %s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("contract scan lookup failed with status %d", resp.StatusCode)
	}

	var result ScanResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse contracts response: %w", err)
	}
	return &result, nil
}
