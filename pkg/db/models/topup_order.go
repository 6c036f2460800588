package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TopupOrder records a Razorpay order created for a wallet top-up so the
// poll path can resolve which partner a gateway order belongs to.
type TopupOrder struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PartnerID       uuid.UUID       `gorm:"column:partner_id;type:uuid;not null"`
	RazorpayOrderID string          `gorm:"column:razorpay_order_id;not null;unique"`
	Amount          decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	Status          string          `gorm:"column:status;not null;default:'created'"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
