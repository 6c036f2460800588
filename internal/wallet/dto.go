package wallet

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sewasetu/sewasetu-backend/pkg/db/models"
	"github.com/sewasetu/sewasetu-backend/pkg/enums"
)

// PaymentEvent is the canonical shape of a gateway payment confirmation,
// regardless of whether it arrived by webhook or by polling. Amount is in
// rupees; minor-unit conversion happens at the gateway adapter edge.
type PaymentEvent struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Amount           decimal.Decimal
	Status           enums.GatewayPaymentStatus
	Method           string
}

// ReconcileStatus distinguishes a settled credit from one still in flight at
// the gateway.
type ReconcileStatus string

const (
	ReconcileStatusCompleted ReconcileStatus = "completed"
	ReconcileStatusPending   ReconcileStatus = "pending"
)

// ReconcileResult is returned by the credit flow. AlreadyProcessed means a
// completed transaction for this payment existed before this call; the call
// still counts as success.
type ReconcileResult struct {
	Status           ReconcileStatus            `json:"status"`
	WalletBalance    decimal.Decimal            `json:"wallet_balance"`
	AmountAdded      decimal.Decimal            `json:"amount_added"`
	AlreadyProcessed bool                       `json:"already_processed"`
	GatewayStatus    enums.GatewayPaymentStatus `json:"gateway_status,omitempty"`
	TransactionID    uuid.UUID                  `json:"transaction_id,omitempty"`
}

// TopupOrderResult is returned when a gateway order has been created for a
// wallet top-up. The client completes payment against GatewayOrderID.
type TopupOrderResult struct {
	GatewayOrderID string          `json:"gateway_order_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	CreatedAt      time.Time       `json:"created_at"`
}

// TransactionList wraps a page of ledger rows plus the next page cursor.
type TransactionList struct {
	Transactions []models.WalletTransaction `json:"transactions"`
	NextCursor   string                     `json:"next_cursor,omitempty"`
}
