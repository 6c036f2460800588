package partners

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sewasetu/sewasetu-backend/pkg/db/models"
	"github.com/sewasetu/sewasetu-backend/pkg/enums"
)

// Repository manages persistence for partner records. Wallet balance writes
// do not live here; those go through the wallet balance accessor.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, partner *models.Partner) (*models.Partner, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Partner, error)
	FindByPhone(ctx context.Context, phone string) (*models.Partner, error)
	FindActiveByID(ctx context.Context, id uuid.UUID) (*models.Partner, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.PartnerStatus) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a partners repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, partner *models.Partner) (*models.Partner, error) {
	if err := r.db.WithContext(ctx).Create(partner).Error; err != nil {
		return nil, err
	}
	return partner, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Partner, error) {
	var partner models.Partner
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&partner).Error
	if err != nil {
		return nil, err
	}
	return &partner, nil
}

func (r *repository) FindByPhone(ctx context.Context, phone string) (*models.Partner, error) {
	var partner models.Partner
	err := r.db.WithContext(ctx).
		Where("phone = ?", phone).
		First(&partner).Error
	if err != nil {
		return nil, err
	}
	return &partner, nil
}

func (r *repository) FindActiveByID(ctx context.Context, id uuid.UUID) (*models.Partner, error) {
	var partner models.Partner
	err := r.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, enums.PartnerStatusActive).
		First(&partner).Error
	if err != nil {
		return nil, err
	}
	return &partner, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.PartnerStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Partner{}).
		Where("id = ?", id).
		Update("status", status).Error
}
