package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbon-scribe/credit-ledger/internal/anchor"
	"carbon-scribe/credit-ledger/internal/apperr"
	"carbon-scribe/credit-ledger/internal/store"
	"carbon-scribe/credit-ledger/internal/store/memory"
)

type mockAnchor struct {
	mock.Mock
}

func (m *mockAnchor) Anchor(ctx context.Context, rec anchor.Record) (string, error) {
	args := m.Called(ctx, rec)
	return args.String(0), args.Error(1)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	st := memory.New()
	return NewService(st, anchor.HashAnchor{}, zap.NewNop()), st
}

func TestMintIsIdempotentPerReport(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	reportID, projectID := uuid.New(), uuid.New()

	first, err := svc.Mint(ctx, reportID, projectID, dec("80"), 0.9)
	require.NoError(t, err)
	assert.True(t, first.TotalAmount.Equal(dec("80")))
	assert.True(t, first.AvailableAmount.Equal(dec("80")))
	assert.NotEmpty(t, first.AnchorReceipt)

	second, err := svc.Mint(ctx, reportID, projectID, dec("80"), 0.9)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	batches, err := st.ListAvailableBatches(ctx)
	require.NoError(t, err)
	assert.Len(t, batches, 1)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.TotalIssued.Equal(dec("80")), stats.TotalIssued.String())
}

func TestMintValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Mint(ctx, uuid.New(), uuid.New(), dec("-1"), 0.5)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Mint(ctx, uuid.New(), uuid.New(), dec("10"), 1.5)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestMintZeroTonnageIsNeverAvailable(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	batch, err := svc.Mint(ctx, uuid.New(), uuid.New(), decimal.Zero, 0.4)
	require.NoError(t, err)
	assert.True(t, batch.TotalAmount.IsZero())

	available, err := svc.ListAvailable(ctx)
	require.NoError(t, err)
	assert.Empty(t, available)
}

func TestAnchorFailureDoesNotFailMint(t *testing.T) {
	st := memory.New()
	anc := new(mockAnchor)
	anc.On("Anchor", mock.Anything, mock.Anything).Return("", errors.New("anchor down")).Once()
	svc := NewService(st, anc, zap.NewNop())

	batch, err := svc.Mint(context.Background(), uuid.New(), uuid.New(), dec("5"), 0.5)
	require.NoError(t, err)
	assert.Empty(t, batch.AnchorReceipt)
	anc.AssertExpectations(t)
}

func TestReserveForSale(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	batch, err := svc.Mint(ctx, uuid.New(), uuid.New(), dec("80"), 0.9)
	require.NoError(t, err)

	err = st.Atomically(ctx, func(tx store.Tx) error {
		return svc.ReserveForSaleTx(ctx, tx, batch.ID, dec("10"))
	})
	require.NoError(t, err)

	err = st.Atomically(ctx, func(tx store.Tx) error {
		return svc.ReserveForSaleTx(ctx, tx, batch.ID, dec("70.001"))
	})
	assert.ErrorIs(t, err, apperr.ErrInsufficientSupply)

	err = st.Atomically(ctx, func(tx store.Tx) error {
		return svc.ReserveForSaleTx(ctx, tx, uuid.New(), dec("1"))
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	got, err := svc.Batch(ctx, batch.ID)
	require.NoError(t, err)
	assert.True(t, got.AvailableAmount.Equal(dec("70")))
	assert.True(t, got.TotalAmount.Equal(dec("80")))

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.TotalSold.Equal(dec("10")))
}

func TestConcurrentCreditsAreAllApplied(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	buyer := uuid.New()

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.CreditBalance(ctx, buyer, decimal.NewFromInt(1)))
		}()
	}
	wg.Wait()

	balance, err := svc.Balance(ctx, buyer)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(n)), balance.String())
}

func TestDebitBalanceNeverOverdraws(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	buyer := uuid.New()
	require.NoError(t, svc.CreditBalance(ctx, buyer, dec("10")))

	err := svc.DebitBalance(ctx, buyer, dec("15"))
	assert.ErrorIs(t, err, apperr.ErrInsufficientBalance)

	require.NoError(t, svc.DebitBalance(ctx, buyer, dec("4.5")))
	balance, err := svc.Balance(ctx, buyer)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("5.5")))

	assert.ErrorIs(t, svc.DebitBalance(ctx, buyer, decimal.Zero), apperr.ErrValidation)
}
