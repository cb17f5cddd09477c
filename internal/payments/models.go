package payments

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"carbon-scribe/credit-ledger/internal/domain"
)

// CreateOrderRequest is the body of POST /payment/create-order
type CreateOrderRequest struct {
	CreditID uuid.UUID       `json:"creditId"`
	Quantity decimal.Decimal `json:"quantity"`
}

// CreateOrderResponse carries what the client needs to open the checkout
type CreateOrderResponse struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Settlement is the outcome of processing a payment confirmation
type Settlement struct {
	OrderID   string                `json:"order_id"`
	Status    domain.OrderStatus    `json:"status"`
	Outcome   domain.PaymentOutcome `json:"outcome"`
	Duplicate bool                  `json:"duplicate"`
}

// WebhookAck is returned to the gateway for every authenticated event
type WebhookAck struct {
	Event      string      `json:"event"`
	Handled    bool        `json:"handled"`
	Settlement *Settlement `json:"settlement,omitempty"`
}

// Gateway event names
const (
	EventOrderPaid       = "order.paid"
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
)

type paymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           *int64 `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
}

type orderEntity struct {
	ID         string `json:"id"`
	Amount     *int64 `json:"amount"`
	AmountPaid *int64 `json:"amount_paid"`
	Receipt    string `json:"receipt"`
}

// webhookEvent is the subset of the gateway's event envelope we read
type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity paymentEntity `json:"entity"`
		} `json:"payment"`
		Order *struct {
			Entity orderEntity `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

func parseWebhookEvent(body []byte) (*webhookEvent, error) {
	var ev webhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("malformed webhook payload: %w", err)
	}
	if ev.Event == "" {
		return nil, fmt.Errorf("webhook payload has no event")
	}
	return &ev, nil
}

// orderID returns the gateway order the event refers to
func (ev *webhookEvent) orderID() string {
	if ev.Payload.Order != nil && ev.Payload.Order.Entity.ID != "" {
		return ev.Payload.Order.Entity.ID
	}
	if ev.Payload.Payment != nil {
		return ev.Payload.Payment.Entity.OrderID
	}
	return ""
}

// paidAmount returns the amount the buyer paid, when the event carries one
func (ev *webhookEvent) paidAmount() *int64 {
	if ev.Payload.Order != nil && ev.Payload.Order.Entity.AmountPaid != nil {
		return ev.Payload.Order.Entity.AmountPaid
	}
	if ev.Payload.Payment != nil {
		return ev.Payload.Payment.Entity.Amount
	}
	return nil
}
