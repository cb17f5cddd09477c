// Package ledger owns credit batches and buyer balances.
//
// The *Tx methods run inside a caller's store transaction so that minting,
// sales and retirements commit together with the state change that causes
// them. Each balance or supply mutation is a single conditional statement.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"carbon-scribe/credit-ledger/internal/anchor"
	"carbon-scribe/credit-ledger/internal/apperr"
	"carbon-scribe/credit-ledger/internal/domain"
	"carbon-scribe/credit-ledger/internal/store"
)

// Stats are the ledger-wide running totals
type Stats struct {
	TotalIssued  decimal.Decimal `json:"total_issued"`
	TotalSold    decimal.Decimal `json:"total_sold"`
	TotalRetired decimal.Decimal `json:"total_retired"`
}

// Service is the credit ledger
type Service struct {
	store  store.Store
	anchor anchor.Anchor
	logger *zap.Logger
	now    func() time.Time
}

func NewService(st store.Store, anc anchor.Anchor, logger *zap.Logger) *Service {
	return &Service{store: st, anchor: anc, logger: logger, now: time.Now}
}

// MintTx issues a batch for an approved report. A report mints at most once:
// a repeated call returns the existing batch with created=false.
func (s *Service) MintTx(ctx context.Context, tx store.Tx, reportID, projectID uuid.UUID, amount decimal.Decimal, qualityScore float64) (batch *domain.CreditBatch, created bool, err error) {
	amount = domain.NormalizeQuantity(amount)
	if amount.IsNegative() {
		return nil, false, apperr.Validation("mint amount %s is negative", amount)
	}
	if qualityScore < 0 || qualityScore > 1 {
		return nil, false, apperr.Validation("quality score %v outside [0,1]", qualityScore)
	}

	batch = &domain.CreditBatch{
		ID:              uuid.New(),
		ReportID:        reportID,
		ProjectID:       projectID,
		TotalAmount:     amount,
		AvailableAmount: amount,
		QualityScore:    qualityScore,
		MintedAt:        s.now().UTC(),
	}
	created, err = tx.CreateBatch(ctx, batch)
	if err != nil {
		return nil, false, err
	}
	if !created {
		existing, err := tx.GetBatchByReport(ctx, reportID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	if err := tx.IncrementCounter(ctx, domain.CounterTotalIssued, amount); err != nil {
		return nil, false, err
	}
	return batch, true, nil
}

// Mint runs MintTx in its own transaction and anchors a newly created batch
func (s *Service) Mint(ctx context.Context, reportID, projectID uuid.UUID, amount decimal.Decimal, qualityScore float64) (*domain.CreditBatch, error) {
	var (
		batch   *domain.CreditBatch
		created bool
	)
	err := s.store.Atomically(ctx, func(tx store.Tx) error {
		var err error
		batch, created, err = s.MintTx(ctx, tx, reportID, projectID, amount, qualityScore)
		return err
	})
	if err != nil {
		return nil, apperr.Wrap(err, "failed to mint credits")
	}
	if created {
		s.logger.Info("credits minted",
			zap.String("batch_id", batch.ID.String()),
			zap.String("report_id", reportID.String()),
			zap.String("amount", batch.TotalAmount.String()),
		)
		s.AnchorBatch(ctx, batch)
	}
	return batch, nil
}

// AnchorBatch records the batch in the anchor log after commit. Failures are
// logged and leave the batch without a receipt.
func (s *Service) AnchorBatch(ctx context.Context, batch *domain.CreditBatch) {
	if s.anchor == nil {
		return
	}
	receipt, err := s.anchor.Anchor(ctx, anchor.Record{
		Kind: anchor.KindCreditBatch,
		ID:   batch.ID.String(),
		At:   batch.MintedAt,
		Payload: map[string]any{
			"report_id":     batch.ReportID,
			"project_id":    batch.ProjectID,
			"total_amount":  batch.TotalAmount.String(),
			"quality_score": batch.QualityScore,
		},
	})
	if err != nil {
		s.logger.Warn("failed to anchor credit batch", zap.String("batch_id", batch.ID.String()), zap.Error(err))
		return
	}
	if err := s.store.SetBatchAnchorReceipt(ctx, batch.ID, receipt); err != nil {
		s.logger.Warn("failed to store batch anchor receipt", zap.String("batch_id", batch.ID.String()), zap.Error(err))
		return
	}
	batch.AnchorReceipt = receipt
}

// ReserveForSaleTx removes quantity from the batch's available supply
func (s *Service) ReserveForSaleTx(ctx context.Context, tx store.Tx, batchID uuid.UUID, quantity decimal.Decimal) error {
	quantity = domain.NormalizeQuantity(quantity)
	if !quantity.IsPositive() {
		return apperr.Validation("quantity must be positive")
	}

	ok, err := tx.DecrementBatchSupply(ctx, batchID, quantity)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("credit batch %s not found", batchID)
	}
	if err != nil {
		return err
	}
	if !ok {
		return apperr.InsufficientSupply("credit batch %s has less than %s available", batchID, quantity)
	}
	return tx.IncrementCounter(ctx, domain.CounterTotalSold, quantity)
}

// CreditBalanceTx adds quantity to the buyer's balance
func (s *Service) CreditBalanceTx(ctx context.Context, tx store.Tx, buyerID uuid.UUID, quantity decimal.Decimal) error {
	quantity = domain.NormalizeQuantity(quantity)
	if !quantity.IsPositive() {
		return apperr.Validation("quantity must be positive")
	}
	return tx.IncrementBalance(ctx, buyerID, quantity)
}

// CreditBalance is CreditBalanceTx as a single atomic upsert outside a transaction
func (s *Service) CreditBalance(ctx context.Context, buyerID uuid.UUID, quantity decimal.Decimal) error {
	if err := s.CreditBalanceTx(ctx, s.store, buyerID, quantity); err != nil {
		return apperr.Wrap(err, "failed to credit balance")
	}
	return nil
}

// DebitBalanceTx subtracts quantity from the buyer's balance, never below zero
func (s *Service) DebitBalanceTx(ctx context.Context, tx store.Tx, buyerID uuid.UUID, quantity decimal.Decimal) error {
	quantity = domain.NormalizeQuantity(quantity)
	if !quantity.IsPositive() {
		return apperr.Validation("quantity must be positive")
	}

	ok, err := tx.DecrementBalance(ctx, buyerID, quantity)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.InsufficientBalance("balance is below %s tCO2e", quantity)
	}
	return nil
}

// DebitBalance is DebitBalanceTx as a single conditional statement
func (s *Service) DebitBalance(ctx context.Context, buyerID uuid.UUID, quantity decimal.Decimal) error {
	if err := s.DebitBalanceTx(ctx, s.store, buyerID, quantity); err != nil {
		return apperr.Wrap(err, "failed to debit balance")
	}
	return nil
}

// ListAvailable returns batches that still have supply
func (s *Service) ListAvailable(ctx context.Context) ([]domain.CreditBatch, error) {
	batches, err := s.store.ListAvailableBatches(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to list available credits")
	}
	return batches, nil
}

func (s *Service) Batch(ctx context.Context, id uuid.UUID) (*domain.CreditBatch, error) {
	batch, err := s.store.GetBatch(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("credit batch %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(err, "failed to load credit batch")
	}
	return batch, nil
}

func (s *Service) Balance(ctx context.Context, buyerID uuid.UUID) (decimal.Decimal, error) {
	balance, err := s.store.GetBalance(ctx, buyerID)
	if err != nil {
		return decimal.Zero, apperr.Wrap(err, "failed to load balance")
	}
	return balance, nil
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	counters, err := s.store.GetCounters(ctx)
	if err != nil {
		return Stats{}, apperr.Wrap(err, "failed to load ledger stats")
	}
	return Stats{
		TotalIssued:  counters[domain.CounterTotalIssued],
		TotalSold:    counters[domain.CounterTotalSold],
		TotalRetired: counters[domain.CounterTotalRetired],
	}, nil
}
