package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// QuantityPlaces is the precision of tCO2e quantities (kilogram resolution)
const QuantityPlaces = 3

// CreditBatch is an issued, divisible pool of credits minted from one approved report.
// TotalAmount is fixed at mint; AvailableAmount only ever decreases.
type CreditBatch struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ReportID        uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"report_id"`
	ProjectID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"project_id"`
	TotalAmount     decimal.Decimal `gorm:"type:numeric(18,3);not null" json:"total_amount"`
	AvailableAmount decimal.Decimal `gorm:"type:numeric(18,3);not null;check:available_amount >= 0" json:"available_amount"`
	QualityScore    float64         `gorm:"type:numeric(4,3);not null" json:"quality_score"`
	AnchorReceipt   string          `json:"anchor_receipt,omitempty"`
	MintedAt        time.Time       `gorm:"not null" json:"minted_at"`
}

// Balance is a buyer's credited-but-not-retired tCO2e
type Balance struct {
	BuyerID   uuid.UUID       `gorm:"type:uuid;primaryKey" json:"buyer_id"`
	Amount    decimal.Decimal `gorm:"type:numeric(18,3);not null;default:0;check:amount >= 0" json:"amount"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Ledger-wide counters, maintained in the same transaction as the mutation they count
const (
	CounterTotalIssued  = "total_issued"
	CounterTotalSold    = "total_sold"
	CounterTotalRetired = "total_retired"
)

// LedgerCounter is a named running total
type LedgerCounter struct {
	Name      string          `gorm:"primaryKey" json:"name"`
	Value     decimal.Decimal `gorm:"type:numeric(18,3);not null;default:0" json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NormalizeQuantity rounds a quantity to ledger precision
func NormalizeQuantity(q decimal.Decimal) decimal.Decimal {
	return q.Round(QuantityPlaces)
}

// QuantityFromFloat converts a scoring estimate into a ledger quantity
func QuantityFromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(QuantityPlaces)
}
