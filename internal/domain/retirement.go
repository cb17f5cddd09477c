package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Retirement is the permanent consumption of credits from a buyer's balance
type Retirement struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	BuyerID           uuid.UUID       `gorm:"type:uuid;not null;index" json:"buyer_id"`
	Amount            decimal.Decimal `gorm:"type:numeric(18,3);not null;check:amount > 0" json:"amount"`
	Reason            string          `gorm:"not null" json:"reason"`
	Beneficiary       string          `json:"beneficiary,omitempty"`
	CertificateNumber string          `gorm:"not null;uniqueIndex" json:"certificate_number"`
	AnchorReceipt     string          `json:"anchor_receipt,omitempty"`
	RetiredAt         time.Time       `gorm:"not null;index" json:"retired_at"`
}

// CertificateNumberFor derives a human-readable certificate number from the record id
func CertificateNumberFor(id uuid.UUID, at time.Time) string {
	short := strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:12])
	return fmt.Sprintf("RET-%d-%s", at.UTC().Year(), short)
}
