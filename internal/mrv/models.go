package mrv

import (
	"context"

	"github.com/google/uuid"

	"carbon-scribe/credit-ledger/internal/domain"
)

// Scorer estimates sequestered tonnage and data quality for a report
type Scorer interface {
	Score(ctx context.Context, report *domain.Report) (domain.ScoringResult, error)
}

// SubmitRequest is the body of POST /mrv
type SubmitRequest struct {
	ProjectID      uuid.UUID             `json:"project_id"`
	MonitoringData domain.MonitoringData `json:"monitoring_data"`
	Attachments    []string              `json:"attachments,omitempty"`
}

// DecisionRequest is the body of POST /mrv/:id/approve
type DecisionRequest struct {
	Approved *bool  `json:"approved"`
	Notes    string `json:"notes"`
}

// Decision is the outcome of a verification
type Decision struct {
	Report *domain.Report      `json:"report"`
	Batch  *domain.CreditBatch `json:"credit_batch,omitempty"`
}

// Attachment is a stored evidence file
type Attachment struct {
	ProjectID uuid.UUID `json:"project_id"`
	Reference string    `json:"reference"`
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
}

// PendingResponse is the body of GET /mrv/pending
type PendingResponse struct {
	Reports []domain.Report `json:"reports"`
	Count   int             `json:"count"`
}
