package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"carbon-scribe/credit-ledger/internal/domain"
)

// Remote calls an external scoring service over HTTP
type Remote struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewRemote(baseURL, apiKey string, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Remote{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type scoreRequest struct {
	ReportID       uuid.UUID             `json:"report_id"`
	ProjectID      uuid.UUID             `json:"project_id"`
	MonitoringData domain.MonitoringData `json:"monitoring_data"`
	Attachments    []string              `json:"attachments,omitempty"`
}

type scoreResponse struct {
	TonnageEstimate   *float64 `json:"tonnage_estimate"`
	QualityScore      *float64 `json:"quality_score"`
	EvidenceReference string   `json:"evidence_reference"`
}

// Score posts the monitoring payload to {BaseURL}/score
func (r *Remote) Score(ctx context.Context, report *domain.Report) (domain.ScoringResult, error) {
	body, err := json.Marshal(scoreRequest{
		ReportID:       report.ID,
		ProjectID:      report.ProjectID,
		MonitoringData: report.Monitoring(),
		Attachments:    report.Attachments,
	})
	if err != nil {
		return domain.ScoringResult{}, fmt.Errorf("failed to marshal scoring request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/score", bytes.NewReader(body))
	if err != nil {
		return domain.ScoringResult{}, fmt.Errorf("failed to create scoring request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.APIKey)
	}

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return domain.ScoringResult{}, fmt.Errorf("scoring request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.ScoringResult{}, fmt.Errorf("failed to read scoring response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.ScoringResult{}, fmt.Errorf("scoring service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var out scoreResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return domain.ScoringResult{}, fmt.Errorf("failed to decode scoring response: %w", err)
	}
	if out.TonnageEstimate == nil || out.QualityScore == nil {
		return domain.ScoringResult{}, fmt.Errorf("scoring response is missing tonnage_estimate or quality_score")
	}

	return domain.ScoringResult{
		TonnageEstimate:   *out.TonnageEstimate,
		QualityScore:      *out.QualityScore,
		EvidenceReference: out.EvidenceReference,
		ScoredAt:          time.Now().UTC(),
	}, nil
}
