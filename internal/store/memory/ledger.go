package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"carbon-scribe/credit-ledger/internal/domain"
	"carbon-scribe/credit-ledger/internal/store"
)

func (v *view) CreateBatch(ctx context.Context, b *domain.CreditBatch) (bool, error) {
	st, release := v.acquire()
	defer release()

	if _, exists := st.batchByReport[b.ReportID]; exists {
		return false, nil
	}
	if _, exists := st.batches[b.ID]; exists {
		return false, fmt.Errorf("batch %s already exists", b.ID)
	}
	st.batches[b.ID] = *b
	st.batchByReport[b.ReportID] = b.ID
	return true, nil
}

func (v *view) GetBatch(ctx context.Context, id uuid.UUID) (*domain.CreditBatch, error) {
	st, release := v.acquire()
	defer release()

	b, ok := st.batches[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &b, nil
}

func (v *view) GetBatchByReport(ctx context.Context, reportID uuid.UUID) (*domain.CreditBatch, error) {
	st, release := v.acquire()
	defer release()

	id, ok := st.batchByReport[reportID]
	if !ok {
		return nil, store.ErrNotFound
	}
	b := st.batches[id]
	return &b, nil
}

func (v *view) ListAvailableBatches(ctx context.Context) ([]domain.CreditBatch, error) {
	st, release := v.acquire()
	defer release()

	out := make([]domain.CreditBatch, 0)
	for _, b := range st.batches {
		if b.AvailableAmount.IsPositive() {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MintedAt.After(out[j].MintedAt) })
	return out, nil
}

func (v *view) DecrementBatchSupply(ctx context.Context, id uuid.UUID, qty decimal.Decimal) (bool, error) {
	st, release := v.acquire()
	defer release()

	b, ok := st.batches[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if b.AvailableAmount.LessThan(qty) {
		return false, nil
	}
	b.AvailableAmount = b.AvailableAmount.Sub(qty)
	st.batches[id] = b
	return true, nil
}

func (v *view) SetBatchAnchorReceipt(ctx context.Context, id uuid.UUID, receipt string) error {
	st, release := v.acquire()
	defer release()

	b, ok := st.batches[id]
	if !ok {
		return store.ErrNotFound
	}
	b.AnchorReceipt = receipt
	st.batches[id] = b
	return nil
}

func (v *view) GetBalance(ctx context.Context, buyerID uuid.UUID) (decimal.Decimal, error) {
	st, release := v.acquire()
	defer release()

	return st.balances[buyerID], nil
}

func (v *view) IncrementBalance(ctx context.Context, buyerID uuid.UUID, qty decimal.Decimal) error {
	st, release := v.acquire()
	defer release()

	st.balances[buyerID] = st.balances[buyerID].Add(qty)
	return nil
}

func (v *view) DecrementBalance(ctx context.Context, buyerID uuid.UUID, qty decimal.Decimal) (bool, error) {
	st, release := v.acquire()
	defer release()

	current := st.balances[buyerID]
	if current.LessThan(qty) {
		return false, nil
	}
	st.balances[buyerID] = current.Sub(qty)
	return true, nil
}

func (v *view) IncrementCounter(ctx context.Context, name string, delta decimal.Decimal) error {
	st, release := v.acquire()
	defer release()

	st.counters[name] = st.counters[name].Add(delta)
	return nil
}

func (v *view) GetCounters(ctx context.Context) (map[string]decimal.Decimal, error) {
	st, release := v.acquire()
	defer release()

	out := make(map[string]decimal.Decimal, len(st.counters))
	for k, val := range st.counters {
		out[k] = val
	}
	return out, nil
}

func (v *view) CreateOrder(ctx context.Context, o *domain.PaymentOrder) error {
	st, release := v.acquire()
	defer release()

	if _, exists := st.orders[o.ID]; exists {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	if o.Receipt != "" {
		if _, exists := st.receipts[o.Receipt]; exists {
			return fmt.Errorf("order receipt %s already used", o.Receipt)
		}
		st.receipts[o.Receipt] = o.ID
	}
	st.orders[o.ID] = *o
	return nil
}

func (v *view) GetOrder(ctx context.Context, id string) (*domain.PaymentOrder, error) {
	st, release := v.acquire()
	defer release()

	o, ok := st.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &o, nil
}

func (v *view) TransitionOrder(ctx context.Context, id string, from, to domain.OrderStatus, reason string, at time.Time) (bool, error) {
	st, release := v.acquire()
	defer release()

	o, ok := st.orders[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if o.Status != from {
		return false, nil
	}
	o.Status = to
	o.FailureReason = reason
	settled := at
	o.SettledAt = &settled
	st.orders[id] = o
	return true, nil
}

func (v *view) RecordPaymentEvent(ctx context.Context, e *domain.PaymentEvent) (bool, error) {
	st, release := v.acquire()
	defer release()

	if _, exists := st.events[e.OrderID]; exists {
		return false, nil
	}
	st.events[e.OrderID] = *e
	return true, nil
}

func (v *view) GetPaymentEvent(ctx context.Context, orderID string) (*domain.PaymentEvent, error) {
	st, release := v.acquire()
	defer release()

	e, ok := st.events[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &e, nil
}

func (v *view) SetPaymentEventOutcome(ctx context.Context, orderID string, outcome domain.PaymentOutcome) error {
	st, release := v.acquire()
	defer release()

	e, ok := st.events[orderID]
	if !ok {
		return store.ErrNotFound
	}
	e.Outcome = outcome
	st.events[orderID] = e
	return nil
}

func (v *view) CreateRetirement(ctx context.Context, r *domain.Retirement) error {
	st, release := v.acquire()
	defer release()

	if _, exists := st.retirements[r.ID]; exists {
		return fmt.Errorf("retirement %s already exists", r.ID)
	}
	if _, exists := st.certificates[r.CertificateNumber]; exists {
		return fmt.Errorf("certificate number %s already issued", r.CertificateNumber)
	}
	st.retirements[r.ID] = *r
	st.certificates[r.CertificateNumber] = r.ID
	return nil
}

func (v *view) GetRetirement(ctx context.Context, id uuid.UUID) (*domain.Retirement, error) {
	st, release := v.acquire()
	defer release()

	r, ok := st.retirements[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (v *view) ListRetirements(ctx context.Context, buyerID uuid.UUID) ([]domain.Retirement, error) {
	st, release := v.acquire()
	defer release()

	out := make([]domain.Retirement, 0)
	for _, r := range st.retirements {
		if r.BuyerID == buyerID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RetiredAt.After(out[j].RetiredAt) })
	return out, nil
}

func (v *view) SetRetirementAnchorReceipt(ctx context.Context, id uuid.UUID, receipt string) error {
	st, release := v.acquire()
	defer release()

	r, ok := st.retirements[id]
	if !ok {
		return store.ErrNotFound
	}
	r.AnchorReceipt = receipt
	st.retirements[id] = r
	return nil
}
