package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbon-scribe/credit-ledger/internal/domain"
	"carbon-scribe/credit-ledger/internal/store"
)

func newBatch(total string) *domain.CreditBatch {
	amount := decimal.RequireFromString(total)
	return &domain.CreditBatch{
		ID:              uuid.New(),
		ReportID:        uuid.New(),
		ProjectID:       uuid.New(),
		TotalAmount:     amount,
		AvailableAmount: amount,
		MintedAt:        time.Now().UTC(),
	}
}

func TestAtomicallyRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	buyer := uuid.New()

	boom := errors.New("boom")
	err := s.Atomically(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.IncrementBalance(ctx, buyer, decimal.NewFromInt(10)))
		require.NoError(t, tx.IncrementCounter(ctx, domain.CounterTotalSold, decimal.NewFromInt(10)))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	balance, err := s.GetBalance(ctx, buyer)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	counters, err := s.GetCounters(ctx)
	require.NoError(t, err)
	assert.Empty(t, counters)
}

func TestAtomicallyCommits(t *testing.T) {
	ctx := context.Background()
	s := New()
	buyer := uuid.New()

	err := s.Atomically(ctx, func(tx store.Tx) error {
		return tx.IncrementBalance(ctx, buyer, decimal.NewFromInt(7))
	})
	require.NoError(t, err)

	balance, err := s.GetBalance(ctx, buyer)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(7)))
}

func TestAtomicallyHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := New().Atomically(ctx, func(tx store.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestDecrementBatchSupplyIsConditional(t *testing.T) {
	ctx := context.Background()
	s := New()
	b := newBatch("100")
	created, err := s.CreateBatch(ctx, b)
	require.NoError(t, err)
	require.True(t, created)

	ok, err := s.DecrementBatchSupply(ctx, b.ID, decimal.NewFromInt(70))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.DecrementBatchSupply(ctx, b.ID, decimal.NewFromInt(31))
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, got.AvailableAmount.Equal(decimal.NewFromInt(30)))

	_, err = s.DecrementBatchSupply(ctx, uuid.New(), decimal.NewFromInt(1))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateBatchIsUniquePerReport(t *testing.T) {
	ctx := context.Background()
	s := New()
	first := newBatch("50")
	second := newBatch("50")
	second.ReportID = first.ReportID

	created, err := s.CreateBatch(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.CreateBatch(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)

	got, err := s.GetBatchByReport(ctx, first.ReportID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestListAvailableBatchesSkipsExhausted(t *testing.T) {
	ctx := context.Background()
	s := New()
	full := newBatch("10")
	empty := newBatch("0")
	for _, b := range []*domain.CreditBatch{full, empty} {
		_, err := s.CreateBatch(ctx, b)
		require.NoError(t, err)
	}

	batches, err := s.ListAvailableBatches(ctx)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, full.ID, batches[0].ID)
}

func TestDecrementBalanceNeverGoesNegative(t *testing.T) {
	ctx := context.Background()
	s := New()
	buyer := uuid.New()
	require.NoError(t, s.IncrementBalance(ctx, buyer, decimal.NewFromInt(10)))

	ok, err := s.DecrementBalance(ctx, buyer, decimal.NewFromInt(15))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.DecrementBalance(ctx, buyer, decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.True(t, ok)

	balance, err := s.GetBalance(ctx, buyer)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestConcurrentIncrementsAreNotLost(t *testing.T) {
	ctx := context.Background()
	s := New()
	buyer := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Atomically(ctx, func(tx store.Tx) error {
				return tx.IncrementBalance(ctx, buyer, decimal.NewFromInt(2))
			})
		}()
	}
	wg.Wait()

	balance, err := s.GetBalance(ctx, buyer)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(100)), balance.String())
}

func TestTransitionOrderIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := New()
	order := &domain.PaymentOrder{
		ID:       "order_1",
		BatchID:  uuid.New(),
		BuyerID:  uuid.New(),
		Quantity: decimal.NewFromInt(5),
		Receipt:  "rcpt_1",
		Status:   domain.OrderStatusCreated,
	}
	require.NoError(t, s.CreateOrder(ctx, order))
	assert.Error(t, s.CreateOrder(ctx, order))

	now := time.Now().UTC()
	ok, err := s.TransitionOrder(ctx, order.ID, domain.OrderStatusCreated, domain.OrderStatusCompleted, "", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TransitionOrder(ctx, order.ID, domain.OrderStatusCreated, domain.OrderStatusFailed, "late", now)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, got.Status)
	require.NotNil(t, got.SettledAt)
}

func TestUpdateProjectStatusIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := New()
	project := &domain.Project{ID: uuid.New(), Name: "site", Status: domain.ProjectStatusMRVSubmitted}
	require.NoError(t, s.CreateProject(ctx, project))

	now := time.Now().UTC()
	ok, err := s.UpdateProjectStatus(ctx, project.ID, domain.ProjectStatusMRVSubmitted, domain.ProjectStatusApproved, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.UpdateProjectStatus(ctx, project.ID, domain.ProjectStatusMRVSubmitted, domain.ProjectStatusRejected, now)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectStatusApproved, got.Status)

	_, err = s.UpdateProjectStatus(ctx, uuid.New(), domain.ProjectStatusRegistered, domain.ProjectStatusMRVSubmitted, now)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRecordPaymentEventOnce(t *testing.T) {
	ctx := context.Background()
	s := New()
	event := &domain.PaymentEvent{OrderID: "order_1", EventType: "order.paid", ReceivedAt: time.Now().UTC()}

	inserted, err := s.RecordPaymentEvent(ctx, event)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.RecordPaymentEvent(ctx, event)
	require.NoError(t, err)
	assert.False(t, inserted)

	require.NoError(t, s.SetPaymentEventOutcome(ctx, "order_1", domain.PaymentOutcomeCompleted))
	got, err := s.GetPaymentEvent(ctx, "order_1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentOutcomeCompleted, got.Outcome)
}

func TestRetirementsListedPerBuyer(t *testing.T) {
	ctx := context.Background()
	s := New()
	buyer := uuid.New()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, amount := range []int64{5, 3} {
		id := uuid.New()
		at := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.CreateRetirement(ctx, &domain.Retirement{
			ID:                id,
			BuyerID:           buyer,
			Amount:            decimal.NewFromInt(amount),
			CertificateNumber: domain.CertificateNumberFor(id, at),
			RetiredAt:         at,
		}))
	}
	require.NoError(t, s.CreateRetirement(ctx, &domain.Retirement{
		ID:                uuid.New(),
		BuyerID:           uuid.New(),
		Amount:            decimal.NewFromInt(1),
		CertificateNumber: "RET-2025-OTHER",
		RetiredAt:         base,
	}))

	list, err := s.ListRetirements(ctx, buyer)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].Amount.Equal(decimal.NewFromInt(3)))
}
