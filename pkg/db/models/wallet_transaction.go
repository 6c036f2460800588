package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sewasetu/sewasetu-backend/pkg/enums"
)

// WalletTransaction is a row in the wallet ledger. Rows are immutable once
// Status is completed; (PartnerID, ReferenceType, ReferenceID) is unique among
// non-failed rows and acts as the idempotency key for applying external events.
type WalletTransaction struct {
	ID            uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PartnerID     uuid.UUID               `gorm:"column:partner_id;type:uuid;not null;index"`
	Type          enums.TransactionType   `gorm:"column:type;not null"`
	Amount        decimal.Decimal         `gorm:"column:amount;type:numeric(12,2);not null"`
	BalanceBefore decimal.Decimal         `gorm:"column:balance_before;type:numeric(12,2);not null"`
	BalanceAfter  decimal.NullDecimal     `gorm:"column:balance_after;type:numeric(12,2)"`
	Description   string                  `gorm:"column:description"`
	ReferenceID   string                  `gorm:"column:reference_id;not null"`
	ReferenceType enums.ReferenceType     `gorm:"column:reference_type;not null"`
	Status        enums.TransactionStatus `gorm:"column:status;not null;default:'pending'"`
	Metadata      json.RawMessage         `gorm:"column:metadata;type:jsonb"`
	CreatedAt     time.Time               `gorm:"column:created_at;autoCreateTime"`
	ProcessedAt   *time.Time              `gorm:"column:processed_at"`
}
