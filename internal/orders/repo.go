package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sewasetu/sewasetu-backend/pkg/db/models"
	"github.com/sewasetu/sewasetu-backend/pkg/enums"
)

// Repository defines persistence operations for orders. Assignment is a
// conditional update so two partners can never claim the same order.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ConditionallyAssign(ctx context.Context, orderID, partnerID uuid.UUID) (bool, error)
	RevertAssignment(ctx context.Context, orderID, partnerID uuid.UUID) (bool, error)
	ListUnassigned(ctx context.Context, limit int) ([]models.Order, error)
	ListByPartner(ctx context.Context, partnerID uuid.UUID) ([]models.Order, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ConditionallyAssign claims the order for the partner only if it is still
// pending and unassigned. Returns false when another caller won the race.
func (r *repository) ConditionallyAssign(ctx context.Context, orderID, partnerID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ? AND partner_id IS NULL", orderID, enums.OrderStatusPending).
		Updates(map[string]any{
			"status":      enums.OrderStatusAssigned,
			"partner_id":  partnerID,
			"assigned_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RevertAssignment returns a just-assigned order to the pending pool. Used as
// compensation when the paired debit cannot be completed.
func (r *repository) RevertAssignment(ctx context.Context, orderID, partnerID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ? AND partner_id = ?", orderID, enums.OrderStatusAssigned, partnerID).
		Updates(map[string]any{
			"status":      enums.OrderStatusPending,
			"partner_id":  nil,
			"assigned_at": nil,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) ListUnassigned(ctx context.Context, limit int) ([]models.Order, error) {
	var orders []models.Order
	query := r.db.WithContext(ctx).
		Where("status = ? AND partner_id IS NULL", enums.OrderStatusPending).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repository) ListByPartner(ctx context.Context, partnerID uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("partner_id = ?", partnerID).
		Order("assigned_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}
