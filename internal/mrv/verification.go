package mrv

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"carbon-scribe/credit-ledger/internal/apperr"
	"carbon-scribe/credit-ledger/internal/auth"
	"carbon-scribe/credit-ledger/internal/domain"
	"carbon-scribe/credit-ledger/internal/ledger"
	"carbon-scribe/credit-ledger/internal/projects"
	"carbon-scribe/credit-ledger/internal/store"
)

// Gate records verifier decisions on scored reports. An approval mints the
// report's credit batch in the same transaction as the decision.
type Gate struct {
	store  store.Store
	ledger *ledger.Service
	logger *zap.Logger
	now    func() time.Time
}

func NewGate(st store.Store, credits *ledger.Service, logger *zap.Logger) *Gate {
	return &Gate{store: st, ledger: credits, logger: logger, now: time.Now}
}

// Decide approves or rejects a report awaiting verification. Deciding a
// report twice, or one that has not been scored, is an InvalidState error.
func (g *Gate) Decide(ctx context.Context, p auth.Principal, reportID uuid.UUID, approve bool, notes string) (*Decision, error) {
	if !p.HasRole(auth.RoleVerifier) {
		return nil, apperr.Authorization("only verifiers can decide reports")
	}

	target := domain.ReportStatusRejected
	projectTarget := domain.ProjectStatusRejected
	if approve {
		target = domain.ReportStatusApproved
		projectTarget = domain.ProjectStatusApproved
	}

	now := g.now().UTC()
	var (
		decision Decision
		minted   bool
	)
	err := g.store.Atomically(ctx, func(tx store.Tx) error {
		decision, minted = Decision{}, false

		report, err := tx.GetReport(ctx, reportID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("report %s not found", reportID)
		}
		if err != nil {
			return err
		}
		if err := domain.ReportTransitions.Transition(report.Status, target); err != nil {
			return apperr.InvalidState("report is %s and cannot be %s", report.Status, target)
		}
		if report.Status != domain.ReportStatusPendingVerification || report.Scoring == nil {
			return apperr.InvalidState("report %s has not been scored", reportID)
		}

		verifier := p.UserID
		report.Status = target
		report.VerifierID = &verifier
		report.VerifierNotes = strings.TrimSpace(notes)
		report.VerifiedAt = &now
		report.UpdatedAt = now

		ok, err := tx.UpdateReport(ctx, report, domain.ReportStatusPendingVerification)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InvalidState("report %s was already decided", reportID)
		}

		from, moved, err := projects.TransitionTx(ctx, tx, report.ProjectID, projectTarget, now)
		if err != nil {
			return err
		}
		if !moved {
			g.logger.Warn("project status left unchanged by decision",
				zap.String("project_id", report.ProjectID.String()),
				zap.String("status", string(from)),
				zap.String("decision", string(target)),
			)
		}
		decision.Report = report

		if !approve {
			return nil
		}
		amount := domain.QuantityFromFloat(report.Scoring.TonnageEstimate)
		batch, created, err := g.ledger.MintTx(ctx, tx, report.ID, report.ProjectID, amount, report.Scoring.QualityScore)
		if err != nil {
			return err
		}
		decision.Batch = batch
		minted = created
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(err, "failed to record decision")
	}

	if minted {
		g.ledger.AnchorBatch(ctx, decision.Batch)
	}

	fields := []zap.Field{
		zap.String("report_id", reportID.String()),
		zap.String("verifier_id", p.UserID.String()),
		zap.String("decision", string(target)),
	}
	if decision.Batch != nil {
		fields = append(fields,
			zap.String("batch_id", decision.Batch.ID.String()),
			zap.String("total_amount", decision.Batch.TotalAmount.String()),
		)
	}
	g.logger.Info("mrv report decided", fields...)
	return &decision, nil
}
