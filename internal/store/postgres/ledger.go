package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"carbon-scribe/credit-ledger/internal/domain"
	"carbon-scribe/credit-ledger/internal/store"
)

func (r *repo) CreateBatch(ctx context.Context, b *domain.CreditBatch) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "report_id"}}, DoNothing: true}).
		Create(b)
	if res.Error != nil {
		return false, fmt.Errorf("create batch: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) GetBatch(ctx context.Context, id uuid.UUID) (*domain.CreditBatch, error) {
	var b domain.CreditBatch
	if err := r.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func (r *repo) GetBatchByReport(ctx context.Context, reportID uuid.UUID) (*domain.CreditBatch, error) {
	var b domain.CreditBatch
	if err := r.db.WithContext(ctx).First(&b, "report_id = ?", reportID).Error; err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func (r *repo) ListAvailableBatches(ctx context.Context) ([]domain.CreditBatch, error) {
	batches := make([]domain.CreditBatch, 0)
	err := r.db.WithContext(ctx).
		Where("available_amount > 0").
		Order("minted_at DESC").
		Find(&batches).Error
	if err != nil {
		return nil, fmt.Errorf("list available batches: %w", err)
	}
	return batches, nil
}

// DecrementBatchSupply is one conditional UPDATE; concurrent sales of the
// last units cannot both match the guard
func (r *repo) DecrementBatchSupply(ctx context.Context, id uuid.UUID, qty decimal.Decimal) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.CreditBatch{}).
		Where("id = ? AND available_amount >= ?", id, qty).
		UpdateColumn("available_amount", gorm.Expr("available_amount - ?", qty))
	if res.Error != nil {
		return false, fmt.Errorf("decrement batch supply: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	ok, err := r.exists(ctx, &domain.CreditBatch{}, "id = ?", id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, store.ErrNotFound
	}
	return false, nil
}

func (r *repo) SetBatchAnchorReceipt(ctx context.Context, id uuid.UUID, receipt string) error {
	res := r.db.WithContext(ctx).
		Model(&domain.CreditBatch{}).
		Where("id = ?", id).
		UpdateColumn("anchor_receipt", receipt)
	if res.Error != nil {
		return fmt.Errorf("set batch anchor receipt: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *repo) GetBalance(ctx context.Context, buyerID uuid.UUID) (decimal.Decimal, error) {
	var b domain.Balance
	err := r.db.WithContext(ctx).First(&b, "buyer_id = ?", buyerID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("get balance: %w", err)
	}
	return b.Amount, nil
}

// IncrementBalance is a single upsert: INSERT ... ON CONFLICT DO UPDATE SET amount = amount + excluded.amount
func (r *repo) IncrementBalance(ctx context.Context, buyerID uuid.UUID, qty decimal.Decimal) error {
	row := &domain.Balance{BuyerID: buyerID, Amount: qty, UpdatedAt: time.Now().UTC()}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "buyer_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"amount":     gorm.Expr("balances.amount + excluded.amount"),
				"updated_at": gorm.Expr("excluded.updated_at"),
			}),
		}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("increment balance: %w", err)
	}
	return nil
}

func (r *repo) DecrementBalance(ctx context.Context, buyerID uuid.UUID, qty decimal.Decimal) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Balance{}).
		Where("buyer_id = ? AND amount >= ?", buyerID, qty).
		UpdateColumns(map[string]any{
			"amount":     gorm.Expr("amount - ?", qty),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("decrement balance: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) IncrementCounter(ctx context.Context, name string, delta decimal.Decimal) error {
	row := &domain.LedgerCounter{Name: name, Value: delta, UpdatedAt: time.Now().UTC()}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "name"}},
			DoUpdates: clause.Assignments(map[string]any{
				"value":      gorm.Expr("ledger_counters.value + excluded.value"),
				"updated_at": gorm.Expr("excluded.updated_at"),
			}),
		}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("increment counter %s: %w", name, err)
	}
	return nil
}

func (r *repo) GetCounters(ctx context.Context) (map[string]decimal.Decimal, error) {
	var rows []domain.LedgerCounter
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get counters: %w", err)
	}
	out := make(map[string]decimal.Decimal, len(rows))
	for _, c := range rows {
		out[c.Name] = c.Value
	}
	return out, nil
}

func (r *repo) CreateOrder(ctx context.Context, o *domain.PaymentOrder) error {
	if err := r.db.WithContext(ctx).Create(o).Error; err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (r *repo) GetOrder(ctx context.Context, id string) (*domain.PaymentOrder, error) {
	var o domain.PaymentOrder
	if err := r.db.WithContext(ctx).First(&o, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &o, nil
}

func (r *repo) TransitionOrder(ctx context.Context, id string, from, to domain.OrderStatus, reason string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.PaymentOrder{}).
		Where("id = ? AND status = ?", id, from).
		UpdateColumns(map[string]any{
			"status":         to,
			"failure_reason": reason,
			"settled_at":     at,
		})
	if res.Error != nil {
		return false, fmt.Errorf("transition order: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	ok, err := r.exists(ctx, &domain.PaymentOrder{}, "id = ?", id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, store.ErrNotFound
	}
	return false, nil
}

// RecordPaymentEvent is the webhook idempotency insert; the primary key on
// order_id makes the first writer win
func (r *repo) RecordPaymentEvent(ctx context.Context, e *domain.PaymentEvent) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_id"}}, DoNothing: true}).
		Create(e)
	if res.Error != nil {
		return false, fmt.Errorf("record payment event: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) GetPaymentEvent(ctx context.Context, orderID string) (*domain.PaymentEvent, error) {
	var e domain.PaymentEvent
	if err := r.db.WithContext(ctx).First(&e, "order_id = ?", orderID).Error; err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

func (r *repo) SetPaymentEventOutcome(ctx context.Context, orderID string, outcome domain.PaymentOutcome) error {
	res := r.db.WithContext(ctx).
		Model(&domain.PaymentEvent{}).
		Where("order_id = ?", orderID).
		UpdateColumn("outcome", outcome)
	if res.Error != nil {
		return fmt.Errorf("set payment event outcome: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *repo) CreateRetirement(ctx context.Context, ret *domain.Retirement) error {
	if err := r.db.WithContext(ctx).Create(ret).Error; err != nil {
		return fmt.Errorf("create retirement: %w", err)
	}
	return nil
}

func (r *repo) GetRetirement(ctx context.Context, id uuid.UUID) (*domain.Retirement, error) {
	var ret domain.Retirement
	if err := r.db.WithContext(ctx).First(&ret, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &ret, nil
}

func (r *repo) ListRetirements(ctx context.Context, buyerID uuid.UUID) ([]domain.Retirement, error) {
	out := make([]domain.Retirement, 0)
	err := r.db.WithContext(ctx).
		Where("buyer_id = ?", buyerID).
		Order("retired_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list retirements: %w", err)
	}
	return out, nil
}

func (r *repo) SetRetirementAnchorReceipt(ctx context.Context, id uuid.UUID, receipt string) error {
	res := r.db.WithContext(ctx).
		Model(&domain.Retirement{}).
		Where("id = ?", id).
		UpdateColumn("anchor_receipt", receipt)
	if res.Error != nil {
		return fmt.Errorf("set retirement anchor receipt: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}
