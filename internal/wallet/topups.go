package wallet

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sewasetu/sewasetu-backend/pkg/db/models"
)

// Top-up order lifecycle states as recorded locally. The gateway remains the
// source of truth for payment state; this is bookkeeping for ownership checks.
const (
	TopupStatusCreated = "created"
	TopupStatusPaid    = "paid"
)

// TopupRepository persists the gateway orders created for wallet top-ups.
type TopupRepository interface {
	WithTx(tx *gorm.DB) TopupRepository
	Create(ctx context.Context, topup *models.TopupOrder) error
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.TopupOrder, error)
	MarkPaid(ctx context.Context, id uuid.UUID) error
}

type topupRepository struct {
	db *gorm.DB
}

// NewTopupRepository builds a top-up order repository bound to the provided DB.
func NewTopupRepository(db *gorm.DB) TopupRepository {
	return &topupRepository{db: db}
}

func (r *topupRepository) WithTx(tx *gorm.DB) TopupRepository {
	if tx == nil {
		return r
	}
	return &topupRepository{db: tx}
}

func (r *topupRepository) Create(ctx context.Context, topup *models.TopupOrder) error {
	return r.db.WithContext(ctx).Create(topup).Error
}

func (r *topupRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.TopupOrder, error) {
	var topup models.TopupOrder
	err := r.db.WithContext(ctx).
		Where("razorpay_order_id = ?", gatewayOrderID).
		First(&topup).Error
	if err != nil {
		return nil, err
	}
	return &topup, nil
}

func (r *topupRepository) MarkPaid(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.TopupOrder{}).
		Where("id = ?", id).
		Update("status", TopupStatusPaid).Error
}
