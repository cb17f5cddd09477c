package retirement

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"carbon-scribe/credit-ledger/internal/anchor"
	"carbon-scribe/credit-ledger/internal/apperr"
	"carbon-scribe/credit-ledger/internal/auth"
	"carbon-scribe/credit-ledger/internal/ledger"
	"carbon-scribe/credit-ledger/internal/store/memory"
	"carbon-scribe/credit-ledger/pkg/pdf"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newService(t *testing.T, balance string) (*Service, *ledger.Service, auth.Principal) {
	t.Helper()
	st := memory.New()
	credits := ledger.NewService(st, anchor.HashAnchor{}, zap.NewNop())
	buyer := auth.Principal{UserID: uuid.New(), Role: auth.RoleBuyer}
	if balance != "0" {
		require.NoError(t, credits.CreditBalance(context.Background(), buyer.UserID, dec(balance)))
	}
	svc := NewService(st, credits, anchor.HashAnchor{}, pdf.NewGenerator(pdf.DefaultOptions()), zap.NewNop())
	return svc, credits, buyer
}

func TestRetireDebitsBalance(t *testing.T) {
	svc, credits, buyer := newService(t, "10")
	ctx := context.Background()

	retirement, err := svc.Retire(ctx, buyer, RetireRequest{Amount: dec("4"), Reason: " 2026 travel offset ", Beneficiary: "Acme Ltd"})
	require.NoError(t, err)

	assert.Equal(t, "2026 travel offset", retirement.Reason)
	assert.Regexp(t, `^RET-\d{4}-[0-9A-F]{12}$`, retirement.CertificateNumber)
	assert.NotEmpty(t, retirement.AnchorReceipt)

	balance, err := credits.Balance(ctx, buyer.UserID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("6")))

	stats, err := credits.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.TotalRetired.Equal(dec("4")))

	stored, err := svc.Get(ctx, buyer, retirement.ID)
	require.NoError(t, err)
	assert.Equal(t, retirement.AnchorReceipt, stored.AnchorReceipt)
}

func TestRetireMoreThanBalance(t *testing.T) {
	svc, credits, buyer := newService(t, "10")
	ctx := context.Background()

	_, err := svc.Retire(ctx, buyer, RetireRequest{Amount: dec("15"), Reason: "offset"})
	assert.ErrorIs(t, err, apperr.ErrInsufficientBalance)

	balance, err := credits.Balance(ctx, buyer.UserID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("10")))

	list, err := svc.List(ctx, buyer)
	require.NoError(t, err)
	assert.Empty(t, list)

	stats, err := credits.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.TotalRetired.IsZero())
}

func TestRetireValidation(t *testing.T) {
	svc, _, buyer := newService(t, "10")
	ctx := context.Background()

	_, err := svc.Retire(ctx, buyer, RetireRequest{Amount: dec("-1"), Reason: "x"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Retire(ctx, buyer, RetireRequest{Amount: dec("0.0005"), Reason: "x"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Retire(ctx, buyer, RetireRequest{Amount: dec("1"), Reason: "   "})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, apperr.FieldsOf(err), "reason")

	verifier := auth.Principal{UserID: uuid.New(), Role: auth.RoleVerifier}
	_, err = svc.Retire(ctx, verifier, RetireRequest{Amount: dec("1"), Reason: "x"})
	assert.ErrorIs(t, err, apperr.ErrAuthorization)
}

func TestConcurrentRetirementsNeverOverdraw(t *testing.T) {
	svc, credits, buyer := newService(t, "10")
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		rejected  atomic.Int32
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Retire(ctx, buyer, RetireRequest{Amount: dec("1"), Reason: "bulk"})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, apperr.ErrInsufficientBalance):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), succeeded.Load())
	assert.Equal(t, int32(15), rejected.Load())

	balance, err := credits.Balance(ctx, buyer.UserID)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	list, err := svc.List(ctx, buyer)
	require.NoError(t, err)
	assert.Len(t, list, 10)
	assert.True(t, Total(list).Equal(dec("10")))
}

func TestRetirementsAreScopedToBuyer(t *testing.T) {
	svc, _, buyer := newService(t, "5")
	ctx := context.Background()

	retirement, err := svc.Retire(ctx, buyer, RetireRequest{Amount: dec("1"), Reason: "offset"})
	require.NoError(t, err)

	other := auth.Principal{UserID: uuid.New(), Role: auth.RoleBuyer}
	_, err = svc.Get(ctx, other, retirement.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, _, err = svc.Certificate(ctx, other, retirement.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	list, err := svc.List(ctx, other)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCertificateAndExport(t *testing.T) {
	svc, _, buyer := newService(t, "20")
	ctx := context.Background()

	first, err := svc.Retire(ctx, buyer, RetireRequest{Amount: dec("2.5"), Reason: "Q1"})
	require.NoError(t, err)
	_, err = svc.Retire(ctx, buyer, RetireRequest{Amount: dec("3"), Reason: "Q2"})
	require.NoError(t, err)

	retirement, doc, err := svc.Certificate(ctx, buyer, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.CertificateNumber, retirement.CertificateNumber)
	assert.True(t, bytes.HasPrefix(doc, []byte("%PDF-")))

	var buf bytes.Buffer
	require.NoError(t, svc.Export(ctx, buyer, FormatXLSX, &buf))

	book, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer book.Close()

	rows, err := book.GetRows(statementSheet)
	require.NoError(t, err)
	require.Len(t, rows, 6) // title, blank, header, two retirements, total
	assert.Equal(t, statementColumns[0], rows[2][0])
	assert.Equal(t, "Total", rows[5][1])

	total, err := book.GetCellValue(statementSheet, "C6", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "5.5", total)
}

func TestExportCSV(t *testing.T) {
	svc, _, buyer := newService(t, "20")
	ctx := context.Background()

	_, err := svc.Retire(ctx, buyer, RetireRequest{Amount: dec("2.5"), Reason: "Scope 1, 2024", Beneficiary: "Acme"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, svc.Export(ctx, buyer, FormatCSV, &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, statementColumns, records[0])
	assert.Equal(t, "2.500", records[1][2])
	assert.Equal(t, "Scope 1, 2024", records[1][3])

	_, err = ParseFormat("pdf")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)
}
