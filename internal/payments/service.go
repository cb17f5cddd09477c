package payments

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"carbon-scribe/credit-ledger/internal/apperr"
	"carbon-scribe/credit-ledger/internal/auth"
	"carbon-scribe/credit-ledger/internal/domain"
	"carbon-scribe/credit-ledger/internal/ledger"
	"carbon-scribe/credit-ledger/internal/store"
	"carbon-scribe/credit-ledger/pkg/security"
)

// Options configure pricing and webhook authentication
type Options struct {
	Currency      string
	UnitPrice     int64 // minor units per tCO2e
	WebhookSecret string
}

// Service is the payment order broker
type Service struct {
	store   store.Store
	ledger  *ledger.Service
	gateway Gateway
	opts    Options
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(st store.Store, credits *ledger.Service, gateway Gateway, opts Options, logger *zap.Logger) *Service {
	return &Service{
		store:   st,
		ledger:  credits,
		gateway: gateway,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

var maxAmount = decimal.NewFromInt(math.MaxInt64)

// AmountDue prices quantity in minor units, rounding up. ok is false when the
// price does not fit in an int64.
func AmountDue(quantity decimal.Decimal, unitPrice int64) (amount int64, ok bool) {
	total := quantity.Mul(decimal.NewFromInt(unitPrice)).Ceil()
	if total.GreaterThan(maxAmount) {
		return 0, false
	}
	return total.IntPart(), true
}

// CreateOrder opens a gateway order for quantity tCO2e of a batch. Supply is
// checked but not reserved; it is taken when the payment is confirmed.
func (s *Service) CreateOrder(ctx context.Context, p auth.Principal, req CreateOrderRequest) (*CreateOrderResponse, error) {
	if !p.HasRole(auth.RoleBuyer) {
		return nil, apperr.Authorization("only buyers can purchase credits")
	}
	fields := map[string]string{}
	if req.CreditID == uuid.Nil {
		fields["creditId"] = "is required"
	}
	if !req.Quantity.IsPositive() {
		fields["quantity"] = "must be positive"
	} else if !req.Quantity.Equal(domain.NormalizeQuantity(req.Quantity)) {
		fields["quantity"] = "supports at most 3 decimal places"
	}
	if len(fields) > 0 {
		return nil, apperr.ValidationFields("invalid order", fields)
	}
	quantity := domain.NormalizeQuantity(req.Quantity)

	batch, err := s.ledger.Batch(ctx, req.CreditID)
	if err != nil {
		return nil, err
	}
	if batch.AvailableAmount.LessThan(quantity) {
		return nil, apperr.InsufficientSupply("only %s tCO2e available in batch %s", batch.AvailableAmount, batch.ID)
	}

	amount, ok := AmountDue(quantity, s.opts.UnitPrice)
	if !ok {
		return nil, apperr.ValidationFields("invalid order", map[string]string{"quantity": "order total is too large"})
	}
	receipt := "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
	gwOrder, err := s.gateway.CreateOrder(ctx, GatewayOrderRequest{
		Amount:   amount,
		Currency: s.opts.Currency,
		Receipt:  receipt,
		Notes: map[string]string{
			"batch_id": batch.ID.String(),
			"buyer_id": p.UserID.String(),
			"quantity": quantity.String(),
		},
	})
	if err != nil {
		return nil, apperr.Wrap(err, "payment gateway is unavailable")
	}

	order := &domain.PaymentOrder{
		ID:        gwOrder.ID,
		BatchID:   batch.ID,
		BuyerID:   p.UserID,
		Quantity:  quantity,
		UnitPrice: s.opts.UnitPrice,
		AmountDue: amount,
		Currency:  s.opts.Currency,
		Receipt:   receipt,
		Status:    domain.OrderStatusCreated,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, apperr.Wrap(err, "failed to save order")
	}

	s.logger.Info("payment order created",
		zap.String("order_id", order.ID),
		zap.String("gateway", s.gateway.Name()),
		zap.String("batch_id", batch.ID.String()),
		zap.String("buyer_id", p.UserID.String()),
		zap.String("quantity", quantity.String()),
		zap.Int64("amount_due", amount),
	)
	return &CreateOrderResponse{OrderID: order.ID, Amount: amount, Currency: order.Currency}, nil
}

// GetOrder returns an order owned by the calling buyer
func (s *Service) GetOrder(ctx context.Context, p auth.Principal, id string) (*domain.PaymentOrder, error) {
	order, err := s.store.GetOrder(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("order %s not found", id)
	}
	if err != nil {
		return nil, apperr.Wrap(err, "failed to load order")
	}
	if order.BuyerID != p.UserID {
		return nil, apperr.NotFound("order %s not found", id)
	}
	return order, nil
}

// verifySignature authenticates a raw gateway payload
func (s *Service) verifySignature(signature string, payload []byte) error {
	if security.VerifyHMAC(s.opts.WebhookSecret, payload, signature) {
		return nil
	}
	s.logger.Warn("payment_signature_mismatch",
		zap.Bool("signature_present", signature != ""),
		zap.Int("payload_bytes", len(payload)),
	)
	return apperr.PaymentVerification("invalid payment signature")
}

// OnPaymentConfirmed settles an order after a signed confirmation. Processing
// the same order twice returns the first outcome without side effects.
func (s *Service) OnPaymentConfirmed(ctx context.Context, orderID, signature string, payload []byte) (*Settlement, error) {
	if err := s.verifySignature(signature, payload); err != nil {
		return nil, err
	}
	ev, err := parseWebhookEvent(payload)
	if err != nil {
		return nil, apperr.PaymentVerification("confirmation payload is not a gateway event")
	}
	if signed := ev.orderID(); signed != orderID {
		s.logger.Warn("payment_order_mismatch",
			zap.String("order_id", orderID),
			zap.String("signed_order_id", signed),
		)
		return nil, apperr.PaymentVerification("confirmation is for order %q, not %q", signed, orderID)
	}
	return s.settle(ctx, orderID, ev.Event, ev.paidAmount(), payload)
}

// HandleWebhook authenticates and dispatches a gateway event
func (s *Service) HandleWebhook(ctx context.Context, signature string, body []byte) (*WebhookAck, error) {
	if err := s.verifySignature(signature, body); err != nil {
		return nil, err
	}
	ev, err := parseWebhookEvent(body)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}
	ack := &WebhookAck{Event: ev.Event}

	switch ev.Event {
	case EventOrderPaid, EventPaymentCaptured:
		orderID := ev.orderID()
		if orderID == "" {
			return nil, apperr.Validation("%s event has no order id", ev.Event)
		}
		settlement, err := s.settle(ctx, orderID, ev.Event, ev.paidAmount(), body)
		if err != nil {
			return nil, err
		}
		ack.Handled = true
		ack.Settlement = settlement
	case EventPaymentFailed:
		fields := []zap.Field{zap.String("order_id", ev.orderID())}
		if ev.Payload.Payment != nil {
			fields = append(fields,
				zap.String("payment_id", ev.Payload.Payment.Entity.ID),
				zap.String("error_code", ev.Payload.Payment.Entity.ErrorCode),
				zap.String("error_description", ev.Payload.Payment.Entity.ErrorDescription),
			)
		}
		s.logger.Info("payment attempt failed", fields...)
		ack.Handled = true
	default:
		s.logger.Debug("ignoring webhook event", zap.String("event", ev.Event))
	}
	return ack, nil
}

// settle applies a confirmation in one transaction. The idempotency record
// is the first write, so concurrent deliveries serialize on it.
func (s *Service) settle(ctx context.Context, orderID, eventType string, paid *int64, payload []byte) (*Settlement, error) {
	now := s.now().UTC()
	result := &Settlement{OrderID: orderID}
	var raw datatypes.JSON
	if json.Valid(payload) {
		raw = datatypes.JSON(payload)
	}
	var order *domain.PaymentOrder

	err := s.store.Atomically(ctx, func(tx store.Tx) error {
		*result = Settlement{OrderID: orderID}
		var err error
		order, err = tx.GetOrder(ctx, orderID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("order %s not found", orderID)
		}
		if err != nil {
			return err
		}
		if paid != nil && *paid != order.AmountDue {
			return apperr.PaymentVerification("paid amount %d does not match amount due %d", *paid, order.AmountDue)
		}

		event := &domain.PaymentEvent{
			OrderID:    orderID,
			EventType:  eventType,
			Outcome:    domain.PaymentOutcomeCompleted,
			Payload:    raw,
			ReceivedAt: now,
		}
		inserted, err := tx.RecordPaymentEvent(ctx, event)
		if err != nil {
			return err
		}
		if !inserted {
			existing, err := tx.GetPaymentEvent(ctx, orderID)
			if err != nil {
				return err
			}
			// the first delivery may have committed after order was read
			current, err := tx.GetOrder(ctx, orderID)
			if err != nil {
				return err
			}
			result.Outcome = existing.Outcome
			result.Status = current.Status
			result.Duplicate = true
			return nil
		}
		if order.Status != domain.OrderStatusCreated {
			return apperr.InvalidState("order %s is already %s", orderID, order.Status)
		}

		err = s.ledger.ReserveForSaleTx(ctx, tx, order.BatchID, order.Quantity)
		if errors.Is(err, apperr.ErrInsufficientSupply) {
			return s.failOrderTx(ctx, tx, order, "insufficient supply at confirmation", now, result)
		}
		if err != nil {
			return err
		}
		if err := s.ledger.CreditBalanceTx(ctx, tx, order.BuyerID, order.Quantity); err != nil {
			return err
		}
		ok, err := tx.TransitionOrder(ctx, orderID, domain.OrderStatusCreated, domain.OrderStatusCompleted, "", now)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InvalidState("order %s was settled concurrently", orderID)
		}
		result.Status = domain.OrderStatusCompleted
		result.Outcome = domain.PaymentOutcomeCompleted
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(err, "failed to settle payment")
	}

	log := s.logger.With(
		zap.String("order_id", orderID),
		zap.String("event", eventType),
		zap.String("outcome", string(result.Outcome)),
	)
	switch {
	case result.Duplicate:
		log.Info("duplicate payment confirmation ignored")
	case result.Outcome == domain.PaymentOutcomeFailed:
		log.Warn("paid order could not be fulfilled",
			zap.String("batch_id", order.BatchID.String()),
			zap.String("quantity", order.Quantity.String()),
		)
	default:
		log.Info("payment settled",
			zap.String("buyer_id", order.BuyerID.String()),
			zap.String("quantity", order.Quantity.String()),
		)
	}
	return result, nil
}

func (s *Service) failOrderTx(ctx context.Context, tx store.Tx, order *domain.PaymentOrder, reason string, at time.Time, result *Settlement) error {
	ok, err := tx.TransitionOrder(ctx, order.ID, domain.OrderStatusCreated, domain.OrderStatusFailed, reason, at)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.InvalidState("order %s was settled concurrently", order.ID)
	}
	if err := tx.SetPaymentEventOutcome(ctx, order.ID, domain.PaymentOutcomeFailed); err != nil {
		return err
	}
	result.Status = domain.OrderStatusFailed
	result.Outcome = domain.PaymentOutcomeFailed
	return nil
}
