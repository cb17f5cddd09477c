package mrv

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"carbon-scribe/credit-ledger/internal/anchor"
	"carbon-scribe/credit-ledger/internal/apperr"
	"carbon-scribe/credit-ledger/internal/auth"
	"carbon-scribe/credit-ledger/internal/domain"
	"carbon-scribe/credit-ledger/internal/evidence"
	"carbon-scribe/credit-ledger/internal/projects"
	"carbon-scribe/credit-ledger/internal/store"
)

// TrackerOptions tune submission handling
type TrackerOptions struct {
	EvidencePrefix     string
	MaxUploadBytes     int64
	MaxScoringAttempts int
}

// Tracker owns MRV reports from submission until they await verification
type Tracker struct {
	store  store.Store
	scorer Scorer
	anchor anchor.Anchor
	files  evidence.Store
	opts   TrackerOptions
	logger *zap.Logger
	now    func() time.Time
}

func NewTracker(st store.Store, scorer Scorer, anc anchor.Anchor, files evidence.Store, opts TrackerOptions, logger *zap.Logger) *Tracker {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 25 << 20
	}
	return &Tracker{
		store:  st,
		scorer: scorer,
		anchor: anc,
		files:  files,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// loadOwnedProject returns the project if the principal's organization owns it
func loadOwnedProject(ctx context.Context, repo store.ProjectRepository, p auth.Principal, projectID uuid.UUID) (*domain.Project, error) {
	project, err := repo.GetProject(ctx, projectID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("project %s not found", projectID)
	}
	if err != nil {
		return nil, err
	}
	if !project.BelongsTo(p.UserID, p.OrgID) {
		return nil, apperr.Authorization("project %s belongs to another organization", projectID)
	}
	return project, nil
}

// Submit files a report for a project and scores it. A scoring failure does
// not fail the submission: the report stays pending_scoring for a retry.
func (t *Tracker) Submit(ctx context.Context, p auth.Principal, req SubmitRequest) (*domain.Report, error) {
	if !p.HasRole(auth.RoleManager) {
		return nil, apperr.Authorization("only project managers can submit reports")
	}
	if req.ProjectID == uuid.Nil {
		return nil, apperr.ValidationFields("invalid report", map[string]string{"project_id": "is required"})
	}
	if !req.MonitoringData.HasObservations() {
		return nil, apperr.ValidationFields("invalid report", map[string]string{"monitoring_data": "at least one observation is required"})
	}
	if err := req.MonitoringData.Validate(); err != nil {
		return nil, apperr.ValidationFields("invalid report", map[string]string{"monitoring_data": err.Error()})
	}

	now := t.now().UTC()
	report := &domain.Report{
		ID:             uuid.New(),
		ProjectID:      req.ProjectID,
		SubmitterID:    p.UserID,
		MonitoringData: datatypes.NewJSONType(req.MonitoringData),
		Attachments:    datatypes.JSONSlice[string](cleanAttachments(req.Attachments)),
		Status:         domain.ReportStatusPendingScoring,
		SubmittedAt:    now,
		UpdatedAt:      now,
	}

	err := t.store.Atomically(ctx, func(tx store.Tx) error {
		if _, err := loadOwnedProject(ctx, tx, p, req.ProjectID); err != nil {
			return err
		}
		from, ok, err := projects.TransitionTx(ctx, tx, req.ProjectID, domain.ProjectStatusMRVSubmitted, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InvalidState("project in status %s cannot accept reports", from)
		}
		return tx.CreateReport(ctx, report)
	})
	if err != nil {
		return nil, apperr.Wrap(err, "failed to submit report")
	}

	t.logger.Info("mrv report submitted",
		zap.String("report_id", report.ID.String()),
		zap.String("project_id", report.ProjectID.String()),
		zap.String("submitter_id", p.UserID.String()),
	)
	return t.score(ctx, report), nil
}

func cleanAttachments(refs []string) []string {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref = strings.TrimSpace(ref); ref != "" {
			out = append(out, ref)
		}
	}
	return out
}

// score runs the scorer for a pending_scoring report and records the result
// or the failure. It returns the latest stored version of the report.
func (t *Tracker) score(ctx context.Context, report *domain.Report) *domain.Report {
	log := t.logger.With(zap.String("report_id", report.ID.String()))

	result, err := t.scorer.Score(ctx, report)
	if err == nil {
		err = result.Validate()
	}
	updated := *report
	updated.ScoringAttempts++
	updated.UpdatedAt = t.now().UTC()

	if err != nil {
		log.Warn("mrv scoring failed", zap.Int("attempt", updated.ScoringAttempts), zap.Error(err))
		updated.LastScoringErr = err.Error()
	} else {
		if result.ScoredAt.IsZero() {
			result.ScoredAt = updated.UpdatedAt
		}
		if result.EvidenceReference == "" {
			result.EvidenceReference = t.anchorScoring(ctx, report.ID, result)
		}
		updated.Scoring = &result
		updated.LastScoringErr = ""
		updated.Status = domain.ReportStatusPendingVerification
	}

	ok, uerr := t.store.UpdateReport(ctx, &updated, domain.ReportStatusPendingScoring)
	if uerr != nil {
		log.Error("failed to store scoring outcome", zap.Error(uerr))
		return report
	}
	if !ok {
		// scored concurrently by a retry; return what is stored
		current, gerr := t.store.GetReport(ctx, report.ID)
		if gerr != nil {
			return report
		}
		return current
	}
	if err == nil {
		log.Info("mrv report scored",
			zap.Float64("tonnage_estimate", result.TonnageEstimate),
			zap.Float64("quality_score", result.QualityScore),
		)
	}
	return &updated
}

func (t *Tracker) anchorScoring(ctx context.Context, reportID uuid.UUID, result domain.ScoringResult) string {
	if t.anchor == nil {
		return ""
	}
	receipt, err := t.anchor.Anchor(ctx, anchor.Record{
		Kind:    anchor.KindScoringResult,
		ID:      reportID.String(),
		At:      result.ScoredAt,
		Payload: result,
	})
	if err != nil {
		t.logger.Warn("failed to anchor scoring result", zap.String("report_id", reportID.String()), zap.Error(err))
		return ""
	}
	return receipt
}

// RetryScoring rescores up to limit reports stuck in pending_scoring, oldest
// first, skipping those that exhausted their attempts. It returns how many
// reached pending_verification.
func (t *Tracker) RetryScoring(ctx context.Context, limit int) (int, error) {
	pending, err := t.store.ListReports(ctx, store.ReportFilter{
		Statuses:    []domain.ReportStatus{domain.ReportStatusPendingScoring},
		MaxAttempts: t.opts.MaxScoringAttempts,
		OldestFirst: true,
		Limit:       limit,
	})
	if err != nil {
		return 0, apperr.Wrap(err, "failed to list reports awaiting scoring")
	}

	scored := 0
	for i := range pending {
		if err := ctx.Err(); err != nil {
			return scored, err
		}
		if t.score(ctx, &pending[i]).Status == domain.ReportStatusPendingVerification {
			scored++
		}
	}
	if len(pending) > 0 {
		t.logger.Info("scoring retry finished", zap.Int("attempted", len(pending)), zap.Int("scored", scored))
	}
	return scored, nil
}

// ListPending returns reports awaiting scoring or verification, newest first
func (t *Tracker) ListPending(ctx context.Context) ([]domain.Report, error) {
	reports, err := t.store.ListReports(ctx, store.ReportFilter{Statuses: domain.PendingReportStatuses})
	if err != nil {
		return nil, apperr.Wrap(err, "failed to list pending reports")
	}
	return reports, nil
}

func (t *Tracker) Get(ctx context.Context, id uuid.UUID) (*domain.Report, error) {
	report, err := t.store.GetReport(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("report %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(err, "failed to load report")
	}
	return report, nil
}

// UploadAttachment stores an evidence file for a project the caller manages
func (t *Tracker) UploadAttachment(ctx context.Context, p auth.Principal, projectID uuid.UUID, filename, contentType string, size int64, body io.Reader) (*Attachment, error) {
	if !p.HasRole(auth.RoleManager) {
		return nil, apperr.Authorization("only project managers can upload evidence")
	}
	if strings.TrimSpace(filename) == "" {
		return nil, apperr.Validation("file name is required")
	}
	if size <= 0 {
		return nil, apperr.Validation("file is empty")
	}
	if size > t.opts.MaxUploadBytes {
		return nil, apperr.Validation("file exceeds %d bytes", t.opts.MaxUploadBytes)
	}
	if _, err := loadOwnedProject(ctx, t.store, p, projectID); err != nil {
		return nil, apperr.Wrap(err, "failed to load project")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := evidence.Key(t.opts.EvidencePrefix, projectID, filename)
	ref, err := t.files.Put(ctx, key, io.LimitReader(body, t.opts.MaxUploadBytes), contentType)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to store evidence file")
	}

	t.logger.Info("evidence uploaded", zap.String("project_id", projectID.String()), zap.String("reference", ref))
	return &Attachment{ProjectID: projectID, Reference: ref, Filename: filename, Size: size}, nil
}
