package payments

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbon-scribe/credit-ledger/internal/anchor"
	"carbon-scribe/credit-ledger/internal/apperr"
	"carbon-scribe/credit-ledger/internal/auth"
	"carbon-scribe/credit-ledger/internal/domain"
	"carbon-scribe/credit-ledger/internal/ledger"
	"carbon-scribe/credit-ledger/internal/store"
	"carbon-scribe/credit-ledger/internal/store/memory"
	"carbon-scribe/credit-ledger/pkg/security"
)

const webhookSecret = "whsec_test"

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	svc     *Service
	credits *ledger.Service
	st      store.Store
	batch   *domain.CreditBatch
	buyer   auth.Principal
}

func newFixture(t *testing.T, supply string) *fixture {
	t.Helper()
	st := memory.New()
	credits := ledger.NewService(st, anchor.HashAnchor{}, zap.NewNop())
	batch, err := credits.Mint(context.Background(), uuid.New(), uuid.New(), dec(supply), 0.9)
	require.NoError(t, err)

	return &fixture{
		svc: NewService(st, credits, Sandbox{}, Options{
			Currency:      "INR",
			UnitPrice:     150000,
			WebhookSecret: webhookSecret,
		}, zap.NewNop()),
		credits: credits,
		st:      st,
		batch:   batch,
		buyer:   newBuyer(),
	}
}

func newBuyer() auth.Principal {
	return auth.Principal{UserID: uuid.New(), Role: auth.RoleBuyer}
}

func paidEvent(orderID string, amount int64) []byte {
	return []byte(fmt.Sprintf(`{"entity":"event","event":"order.paid","payload":{`+
		`"payment":{"entity":{"id":"pay_%s","order_id":%q,"amount":%d,"currency":"INR","status":"captured"}},`+
		`"order":{"entity":{"id":%q,"amount":%d,"amount_paid":%d}}}}`,
		orderID, orderID, amount, orderID, amount, amount))
}

func (f *fixture) order(t *testing.T, buyer auth.Principal, qty string) *CreateOrderResponse {
	t.Helper()
	resp, err := f.svc.CreateOrder(context.Background(), buyer, CreateOrderRequest{CreditID: f.batch.ID, Quantity: dec(qty)})
	require.NoError(t, err)
	return resp
}

func (f *fixture) deliver(t *testing.T, body []byte) (*WebhookAck, error) {
	t.Helper()
	return f.svc.HandleWebhook(context.Background(), security.SignHMAC(webhookSecret, body), body)
}

func (f *fixture) available(t *testing.T) decimal.Decimal {
	t.Helper()
	batch, err := f.credits.Batch(context.Background(), f.batch.ID)
	require.NoError(t, err)
	return batch.AvailableAmount
}

func (f *fixture) balance(t *testing.T, buyer auth.Principal) decimal.Decimal {
	t.Helper()
	balance, err := f.credits.Balance(context.Background(), buyer.UserID)
	require.NoError(t, err)
	return balance
}

func TestPurchaseSettlesOnceAcrossRedelivery(t *testing.T) {
	f := newFixture(t, "80")
	ctx := context.Background()

	resp := f.order(t, f.buyer, "10")
	assert.Equal(t, int64(1500000), resp.Amount)
	assert.Equal(t, "INR", resp.Currency)
	assert.True(t, f.available(t).Equal(dec("80")), "order creation must not reserve supply")

	body := paidEvent(resp.OrderID, resp.Amount)
	ack, err := f.deliver(t, body)
	require.NoError(t, err)
	require.NotNil(t, ack.Settlement)
	assert.True(t, ack.Handled)
	assert.Equal(t, domain.OrderStatusCompleted, ack.Settlement.Status)
	assert.False(t, ack.Settlement.Duplicate)

	assert.True(t, f.available(t).Equal(dec("70")))
	assert.True(t, f.balance(t, f.buyer).Equal(dec("10")))

	again, err := f.deliver(t, body)
	require.NoError(t, err)
	assert.True(t, again.Settlement.Duplicate)
	assert.Equal(t, domain.PaymentOutcomeCompleted, again.Settlement.Outcome)
	assert.True(t, f.available(t).Equal(dec("70")))
	assert.True(t, f.balance(t, f.buyer).Equal(dec("10")))

	order, err := f.svc.GetOrder(ctx, f.buyer, resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, order.Status)
	assert.NotNil(t, order.SettledAt)

	stats, err := f.credits.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.TotalSold.Equal(dec("10")))
}

func TestOnPaymentConfirmedIsIdempotent(t *testing.T) {
	f := newFixture(t, "20")
	resp := f.order(t, f.buyer, "2.5")
	body := paidEvent(resp.OrderID, resp.Amount)
	sig := security.SignHMAC(webhookSecret, body)

	first, err := f.svc.OnPaymentConfirmed(context.Background(), resp.OrderID, sig, body)
	require.NoError(t, err)
	second, err := f.svc.OnPaymentConfirmed(context.Background(), resp.OrderID, sig, body)
	require.NoError(t, err)

	assert.Equal(t, first.Outcome, second.Outcome)
	assert.True(t, second.Duplicate)
	assert.True(t, f.balance(t, f.buyer).Equal(dec("2.5")))
	assert.True(t, f.available(t).Equal(dec("17.5")))
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t, "80")
	ctx := context.Background()

	_, err := f.svc.CreateOrder(ctx, f.buyer, CreateOrderRequest{CreditID: f.batch.ID, Quantity: decimal.Zero})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.CreateOrder(ctx, f.buyer, CreateOrderRequest{CreditID: f.batch.ID, Quantity: dec("1.2345")})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.CreateOrder(ctx, f.buyer, CreateOrderRequest{CreditID: uuid.New(), Quantity: dec("1")})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.CreateOrder(ctx, f.buyer, CreateOrderRequest{CreditID: f.batch.ID, Quantity: dec("80.001")})
	assert.ErrorIs(t, err, apperr.ErrInsufficientSupply)

	manager := auth.Principal{UserID: uuid.New(), Role: auth.RoleManager}
	_, err = f.svc.CreateOrder(ctx, manager, CreateOrderRequest{CreditID: f.batch.ID, Quantity: dec("1")})
	assert.ErrorIs(t, err, apperr.ErrAuthorization)
}

func TestAmountDueRoundsUp(t *testing.T) {
	cases := []struct {
		qty   string
		price int64
		want  int64
	}{
		{"0.001", 150000, 150},
		{"1.333", 1000, 1333},
		{"0.333", 5, 2},
		{"100", 150000, 15000000},
	}
	for _, tc := range cases {
		got, ok := AmountDue(dec(tc.qty), tc.price)
		assert.True(t, ok, tc.qty)
		assert.Equal(t, tc.want, got, tc.qty)
	}
}

func TestAmountDueRejectsOverflow(t *testing.T) {
	_, ok := AmountDue(dec("100000000000000"), 150000)
	assert.False(t, ok)

	_, ok = AmountDue(dec("0.001"), math.MaxInt64)
	assert.False(t, ok)

	f := newFixture(t, "100000000000000")
	_, err := f.svc.CreateOrder(context.Background(), f.buyer, CreateOrderRequest{CreditID: f.batch.ID, Quantity: dec("100000000000000")})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, "order total is too large", apperr.FieldsOf(err)["quantity"])
}

func TestConfirmationMustMatchSignedOrder(t *testing.T) {
	f := newFixture(t, "80")
	ctx := context.Background()
	other := newBuyer()
	paidFor := f.order(t, f.buyer, "10")
	target := f.order(t, other, "10")
	require.Equal(t, paidFor.Amount, target.Amount)

	body := paidEvent(paidFor.OrderID, paidFor.Amount)
	sig := security.SignHMAC(webhookSecret, body)
	_, err := f.svc.OnPaymentConfirmed(ctx, target.OrderID, sig, body)
	assert.ErrorIs(t, err, apperr.ErrPaymentVerification)

	order, err := f.svc.GetOrder(ctx, other, target.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCreated, order.Status)
	assert.True(t, f.balance(t, other).IsZero())
	assert.True(t, f.available(t).Equal(dec("80")))

	bare := []byte(`{"event":"order.paid","payload":{}}`)
	_, err = f.svc.OnPaymentConfirmed(ctx, target.OrderID, security.SignHMAC(webhookSecret, bare), bare)
	assert.ErrorIs(t, err, apperr.ErrPaymentVerification)

	_, err = f.svc.OnPaymentConfirmed(ctx, paidFor.OrderID, sig, body)
	require.NoError(t, err)
	assert.True(t, f.balance(t, f.buyer).Equal(dec("10")))
}

// staleOrderStore hands each transaction an order read that predates the
// latest commit, the view a redelivery racing the first settlement gets.
type staleOrderStore struct{ store.Store }

func (s staleOrderStore) Atomically(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.Atomically(ctx, func(tx store.Tx) error {
		return fn(&staleOrderTx{Tx: tx})
	})
}

type staleOrderTx struct {
	store.Tx
	reads int
}

func (tx *staleOrderTx) GetOrder(ctx context.Context, id string) (*domain.PaymentOrder, error) {
	order, err := tx.Tx.GetOrder(ctx, id)
	tx.reads++
	if err != nil || tx.reads > 1 {
		return order, err
	}
	stale := *order
	stale.Status = domain.OrderStatusCreated
	return &stale, nil
}

func TestDuplicateAckReportsCommittedStatus(t *testing.T) {
	f := newFixture(t, "80")
	resp := f.order(t, f.buyer, "5")
	body := paidEvent(resp.OrderID, resp.Amount)
	sig := security.SignHMAC(webhookSecret, body)

	first, err := f.svc.OnPaymentConfirmed(context.Background(), resp.OrderID, sig, body)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCompleted, first.Status)

	racing := NewService(staleOrderStore{Store: f.st}, f.credits, Sandbox{}, f.svc.opts, zap.NewNop())
	second, err := racing.OnPaymentConfirmed(context.Background(), resp.OrderID, sig, body)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, domain.OrderStatusCompleted, second.Status)
	assert.Equal(t, domain.PaymentOutcomeCompleted, second.Outcome)
	assert.True(t, f.balance(t, f.buyer).Equal(dec("5")))
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture(t, "80")
	resp := f.order(t, f.buyer, "10")
	body := paidEvent(resp.OrderID, resp.Amount)

	_, err := f.svc.HandleWebhook(context.Background(), security.SignHMAC("wrong", body), body)
	assert.ErrorIs(t, err, apperr.ErrPaymentVerification)

	_, err = f.svc.HandleWebhook(context.Background(), "", body)
	assert.ErrorIs(t, err, apperr.ErrPaymentVerification)

	_, err = f.st.GetPaymentEvent(context.Background(), resp.OrderID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.True(t, f.available(t).Equal(dec("80")))
	assert.True(t, f.balance(t, f.buyer).IsZero())
}

func TestConfirmationFailsWhenSupplyIsGone(t *testing.T) {
	f := newFixture(t, "80")
	second := newBuyer()

	first := f.order(t, f.buyer, "50")
	late := f.order(t, second, "50")

	ack, err := f.deliver(t, paidEvent(first.OrderID, first.Amount))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, ack.Settlement.Status)

	body := paidEvent(late.OrderID, late.Amount)
	ack, err = f.deliver(t, body)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFailed, ack.Settlement.Status)
	assert.Equal(t, domain.PaymentOutcomeFailed, ack.Settlement.Outcome)

	assert.True(t, f.available(t).Equal(dec("30")))
	assert.True(t, f.balance(t, second).IsZero())

	order, err := f.svc.GetOrder(context.Background(), second, late.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFailed, order.Status)
	assert.NotEmpty(t, order.FailureReason)

	ack, err = f.deliver(t, body)
	require.NoError(t, err)
	assert.True(t, ack.Settlement.Duplicate)
	assert.Equal(t, domain.PaymentOutcomeFailed, ack.Settlement.Outcome)
}

func TestConcurrentRedeliveryCreditsOnce(t *testing.T) {
	f := newFixture(t, "80")
	resp := f.order(t, f.buyer, "10")
	body := paidEvent(resp.OrderID, resp.Amount)

	var (
		wg     sync.WaitGroup
		fresh  atomic.Int32
		failed atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ack, err := f.deliver(t, body)
			if err != nil {
				failed.Add(1)
				return
			}
			if !ack.Settlement.Duplicate {
				fresh.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, failed.Load())
	assert.Equal(t, int32(1), fresh.Load())
	assert.True(t, f.balance(t, f.buyer).Equal(dec("10")))
	assert.True(t, f.available(t).Equal(dec("70")))
}

func TestAmountMismatchIsRejected(t *testing.T) {
	f := newFixture(t, "80")
	resp := f.order(t, f.buyer, "10")

	_, err := f.deliver(t, paidEvent(resp.OrderID, resp.Amount-1))
	assert.ErrorIs(t, err, apperr.ErrPaymentVerification)

	order, err := f.svc.GetOrder(context.Background(), f.buyer, resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCreated, order.Status)

	ack, err := f.deliver(t, paidEvent(resp.OrderID, resp.Amount))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, ack.Settlement.Status)
}

func TestNonConfirmationEvents(t *testing.T) {
	f := newFixture(t, "80")
	resp := f.order(t, f.buyer, "1")

	failedBody := []byte(fmt.Sprintf(`{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_1","order_id":%q,"error_code":"BAD_REQUEST_ERROR","error_description":"card declined"}}}}`, resp.OrderID))
	ack, err := f.deliver(t, failedBody)
	require.NoError(t, err)
	assert.True(t, ack.Handled)
	assert.Nil(t, ack.Settlement)

	order, err := f.svc.GetOrder(context.Background(), f.buyer, resp.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCreated, order.Status)

	ack, err = f.deliver(t, []byte(`{"event":"refund.processed","payload":{}}`))
	require.NoError(t, err)
	assert.False(t, ack.Handled)

	_, err = f.deliver(t, []byte(`not json`))
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestGetOrderHidesOtherBuyersOrders(t *testing.T) {
	f := newFixture(t, "80")
	resp := f.order(t, f.buyer, "1")

	_, err := f.svc.GetOrder(context.Background(), newBuyer(), resp.OrderID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.GetOrder(context.Background(), f.buyer, "order_missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
