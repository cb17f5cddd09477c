package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"carbon-scribe/credit-ledger/pkg/workflows"
)

// OrderStatus is the status of a payment order
type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "created"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusFailed    OrderStatus = "failed"
)

// OrderTransitions allows exactly one settlement per order
var OrderTransitions = workflows.NewStateMachine(map[OrderStatus][]OrderStatus{
	OrderStatusCreated:   {OrderStatusCompleted, OrderStatusFailed},
	OrderStatusCompleted: {},
	OrderStatusFailed:    {},
})

// PaymentOrder is a buyer's purchase of credits from one batch.
// ID is assigned by the payment gateway and doubles as the idempotency key.
type PaymentOrder struct {
	ID            string          `gorm:"primaryKey" json:"id"`
	BatchID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"batch_id"`
	BuyerID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"buyer_id"`
	Quantity      decimal.Decimal `gorm:"type:numeric(18,3);not null" json:"quantity"`
	UnitPrice     int64           `gorm:"not null" json:"unit_price"` // minor units per tCO2e, frozen at creation
	AmountDue     int64           `gorm:"not null" json:"amount_due"` // minor units
	Currency      string          `gorm:"not null" json:"currency"`
	Receipt       string          `gorm:"uniqueIndex" json:"receipt"`
	Status        OrderStatus     `gorm:"not null;index" json:"status"`
	FailureReason string          `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	SettledAt     *time.Time      `json:"settled_at,omitempty"`
}

// PaymentOutcome is the recorded result of processing a confirmation
type PaymentOutcome string

const (
	PaymentOutcomeCompleted PaymentOutcome = "completed"
	PaymentOutcomeFailed    PaymentOutcome = "failed"
)

// PaymentEvent is the idempotency record of a processed gateway confirmation.
// At most one exists per order.
type PaymentEvent struct {
	OrderID    string         `gorm:"primaryKey" json:"order_id"`
	EventType  string         `gorm:"not null" json:"event_type"`
	Outcome    PaymentOutcome `gorm:"not null" json:"outcome"`
	Payload    datatypes.JSON `json:"payload"`
	ReceivedAt time.Time      `gorm:"not null" json:"received_at"`
}
