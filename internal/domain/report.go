package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"carbon-scribe/credit-ledger/pkg/workflows"
)

// ReportStatus is the lifecycle status of an MRV report
type ReportStatus string

const (
	ReportStatusPendingScoring      ReportStatus = "pending_scoring"
	ReportStatusPendingVerification ReportStatus = "pending_verification"
	ReportStatusApproved            ReportStatus = "approved"
	ReportStatusRejected            ReportStatus = "rejected"
)

// ReportTransitions is the MRV report state machine; approved and rejected are terminal
var ReportTransitions = workflows.NewStateMachine(map[ReportStatus][]ReportStatus{
	ReportStatusPendingScoring:      {ReportStatusPendingVerification},
	ReportStatusPendingVerification: {ReportStatusApproved, ReportStatusRejected},
	ReportStatusApproved:            {},
	ReportStatusRejected:            {},
})

// PendingReportStatuses are the states listed for verifiers
var PendingReportStatuses = []ReportStatus{ReportStatusPendingScoring, ReportStatusPendingVerification}

// MonitoringData is the raw observation payload of a report
type MonitoringData struct {
	PeriodStart      *time.Time         `json:"period_start,omitempty"`
	PeriodEnd        *time.Time         `json:"period_end,omitempty"`
	BiomassTonnes    *float64           `json:"biomass_tonnes,omitempty"`
	SoilCarbonTonnes *float64           `json:"soil_carbon_tonnes,omitempty"`
	CanopyCoverPct   *float64           `json:"canopy_cover_pct,omitempty"`
	SurvivalRatePct  *float64           `json:"survival_rate_pct,omitempty"`
	Measurements     map[string]float64 `json:"measurements,omitempty"`
	FieldNotes       string             `json:"field_notes,omitempty"`
}

// HasObservations reports whether at least one monitoring field carries data
func (m MonitoringData) HasObservations() bool {
	return m.BiomassTonnes != nil ||
		m.SoilCarbonTonnes != nil ||
		m.CanopyCoverPct != nil ||
		m.SurvivalRatePct != nil ||
		len(m.Measurements) > 0 ||
		strings.TrimSpace(m.FieldNotes) != ""
}

// Validate checks value ranges of the supplied observations
func (m MonitoringData) Validate() error {
	var errs []error
	nonNegative := func(name string, v *float64) {
		if v != nil && *v < 0 {
			errs = append(errs, fmt.Errorf("%s must be >= 0", name))
		}
	}
	percent := func(name string, v *float64) {
		if v != nil && (*v < 0 || *v > 100) {
			errs = append(errs, fmt.Errorf("%s must be between 0 and 100", name))
		}
	}

	nonNegative("biomass_tonnes", m.BiomassTonnes)
	nonNegative("soil_carbon_tonnes", m.SoilCarbonTonnes)
	percent("canopy_cover_pct", m.CanopyCoverPct)
	percent("survival_rate_pct", m.SurvivalRatePct)
	for name := range m.Measurements {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, errors.New("measurement names must not be blank"))
			break
		}
	}
	if m.PeriodStart != nil && m.PeriodEnd != nil && m.PeriodEnd.Before(*m.PeriodStart) {
		errs = append(errs, errors.New("period_end must not precede period_start"))
	}
	return errors.Join(errs...)
}

// ScoringResult is what the scoring collaborator produced for a report
type ScoringResult struct {
	TonnageEstimate   float64   `json:"tonnage_estimate"`
	QualityScore      float64   `json:"quality_score"`
	EvidenceReference string    `json:"evidence_reference,omitempty"`
	ScoredAt          time.Time `json:"scored_at"`
}

// Validate enforces finite values, tonnage >= 0 and quality in [0,1]
func (s ScoringResult) Validate() error {
	if math.IsNaN(s.TonnageEstimate) || math.IsInf(s.TonnageEstimate, 0) {
		return fmt.Errorf("tonnage estimate %v is not a finite number", s.TonnageEstimate)
	}
	if math.IsNaN(s.QualityScore) || math.IsInf(s.QualityScore, 0) {
		return fmt.Errorf("quality score %v is not a finite number", s.QualityScore)
	}
	if s.TonnageEstimate < 0 {
		return fmt.Errorf("tonnage estimate %v is negative", s.TonnageEstimate)
	}
	if s.QualityScore < 0 || s.QualityScore > 1 {
		return fmt.Errorf("quality score %v outside [0,1]", s.QualityScore)
	}
	return nil
}

// Report is an MRV submission for a project
type Report struct {
	ID              uuid.UUID                          `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID       uuid.UUID                          `gorm:"type:uuid;not null;index" json:"project_id"`
	SubmitterID     uuid.UUID                          `gorm:"type:uuid;not null" json:"submitter_id"`
	MonitoringData  datatypes.JSONType[MonitoringData] `json:"monitoring_data"`
	Attachments     datatypes.JSONSlice[string]        `json:"attachments"`
	Status          ReportStatus                       `gorm:"not null;index" json:"status"`
	Scoring         *ScoringResult                     `gorm:"serializer:json" json:"scoring,omitempty"`
	ScoringAttempts int                                `gorm:"not null;default:0" json:"scoring_attempts"`
	LastScoringErr  string                             `json:"last_scoring_error,omitempty"`
	VerifierID      *uuid.UUID                         `gorm:"type:uuid" json:"verifier_id,omitempty"`
	VerifierNotes   string                             `json:"verifier_notes,omitempty"`
	VerifiedAt      *time.Time                         `json:"verified_at,omitempty"`
	SubmittedAt     time.Time                          `gorm:"not null;index" json:"submitted_at"`
	UpdatedAt       time.Time                          `json:"updated_at"`
}

// Monitoring returns the decoded monitoring payload
func (r *Report) Monitoring() MonitoringData {
	return r.MonitoringData.Data()
}
