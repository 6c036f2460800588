package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sewasetu/sewasetu-backend/pkg/enums"
)

// Order is a customer job. It is created unassigned; a partner claims it
// through the debit flow, which funds AdvanceAmount from the partner wallet.
type Order struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ServiceName   string            `gorm:"column:service_name;not null"`
	CustomerName  string            `gorm:"column:customer_name;not null"`
	Area          *string           `gorm:"column:area"`
	Status        enums.OrderStatus `gorm:"column:status;not null;default:'pending'"`
	PartnerID     *uuid.UUID        `gorm:"column:partner_id;type:uuid"`
	AdvanceAmount decimal.Decimal   `gorm:"column:advance_amount;type:numeric(12,2);not null;default:0"`
	TotalAmount   decimal.Decimal   `gorm:"column:total_amount;type:numeric(12,2);not null;default:0"`
	AssignedAt    *time.Time        `gorm:"column:assigned_at"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
