package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sewasetu/sewasetu-backend/pkg/enums"
)

// Partner is a field partner who funds job acceptance from a prepaid wallet.
// WalletBalance is only ever mutated through the wallet balance accessor.
type Partner struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name              string              `gorm:"column:name;not null"`
	Phone             string              `gorm:"column:phone;not null;unique"`
	PasswordHash      string              `gorm:"column:password_hash;not null"`
	Status            enums.PartnerStatus `gorm:"column:status;not null;default:'active'"`
	WalletBalance     decimal.Decimal     `gorm:"column:wallet_balance;type:numeric(12,2);not null;default:0"`
	WalletUpdatedAt   *time.Time          `gorm:"column:wallet_updated_at"`
	LastTransactionAt *time.Time          `gorm:"column:last_transaction_at"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
