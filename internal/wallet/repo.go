package wallet

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sewasetu/sewasetu-backend/pkg/db/models"
	"github.com/sewasetu/sewasetu-backend/pkg/enums"
	"github.com/sewasetu/sewasetu-backend/pkg/pagination"
)

// Repository manages persistence for the wallet ledger. Completed rows are
// never updated again.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.WalletTransaction) error
	FindCompletedByReference(ctx context.Context, partnerID uuid.UUID, refType enums.ReferenceType, refID string) (*models.WalletTransaction, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, balanceBefore, balanceAfter decimal.Decimal, processedAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, metadata []byte) error
	ListByPartner(ctx context.Context, partnerID uuid.UUID, params pagination.Params) (*TransactionList, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a wallet ledger repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.WalletTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) FindCompletedByReference(ctx context.Context, partnerID uuid.UUID, refType enums.ReferenceType, refID string) (*models.WalletTransaction, error) {
	var txn models.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("partner_id = ? AND reference_type = ? AND reference_id = ? AND status = ?",
			partnerID, refType, refID, enums.TransactionStatusCompleted).
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// MarkCompleted settles a pending row with the balances observed by the
// applied delta. The row's pre-read balance_before may be stale by the time
// the delta lands, so both columns come from the caller here.
func (r *repository) MarkCompleted(ctx context.Context, id uuid.UUID, balanceBefore, balanceAfter decimal.Decimal, processedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.WalletTransaction{}).
		Where("id = ? AND status = ?", id, enums.TransactionStatusPending).
		Updates(map[string]any{
			"status":         enums.TransactionStatusCompleted,
			"balance_before": balanceBefore,
			"balance_after":  balanceAfter,
			"processed_at":   processedAt,
		}).Error
}

func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, metadata []byte) error {
	updates := map[string]any{
		"status":       enums.TransactionStatusFailed,
		"processed_at": time.Now().UTC(),
	}
	if len(metadata) > 0 {
		updates["metadata"] = metadata
	}
	return r.db.WithContext(ctx).
		Model(&models.WalletTransaction{}).
		Where("id = ? AND status = ?", id, enums.TransactionStatusPending).
		Updates(updates).Error
}

func (r *repository) ListByPartner(ctx context.Context, partnerID uuid.UUID, params pagination.Params) (*TransactionList, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	query := r.db.WithContext(ctx).
		Where("partner_id = ?", partnerID).
		Order("created_at DESC, id DESC").
		Limit(limit)

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var rows []models.WalletTransaction
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	pageSize := pagination.NormalizeLimit(params.Limit)
	list := &TransactionList{}
	if len(rows) > pageSize {
		rows = rows[:pageSize]
		last := rows[len(rows)-1]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	list.Transactions = rows
	return list, nil
}
