package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sewasetu/sewasetu-backend/pkg/config"
	"github.com/sewasetu/sewasetu-backend/pkg/db/models"
	"github.com/sewasetu/sewasetu-backend/pkg/enums"
	pkgerrors "github.com/sewasetu/sewasetu-backend/pkg/errors"
	"github.com/sewasetu/sewasetu-backend/pkg/metrics"
)

// BalanceChange reports the balance movement a delta produced.
type BalanceChange struct {
	Before decimal.Decimal
	After  decimal.Decimal
}

// BalanceAccessor is the only component allowed to mutate a partner's wallet
// balance. Every write is a compare-and-set conditioned on the balance read in
// the same attempt, so concurrent writers for one partner cannot lose updates.
type BalanceAccessor interface {
	GetBalance(ctx context.Context, partnerID uuid.UUID) (decimal.Decimal, error)
	ApplyDelta(ctx context.Context, partnerID uuid.UUID, delta decimal.Decimal) (*BalanceChange, error)
}

type balanceAccessor struct {
	db      *gorm.DB
	retries uint64
	backoff retry.Backoff
	metrics *metrics.WalletMetrics
}

// NewBalanceAccessor builds the accessor with the configured retry bounds.
func NewBalanceAccessor(db *gorm.DB, cfg config.WalletConfig, m *metrics.WalletMetrics) (BalanceAccessor, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle required")
	}
	retries := uint64(1)
	if cfg.BalanceRetries > 0 {
		retries = uint64(cfg.BalanceRetries)
	}
	return &balanceAccessor{
		db:      db,
		retries: retries,
		backoff: retry.NewConstant(cfg.BalanceRetryBackoff),
		metrics: m,
	}, nil
}

func (a *balanceAccessor) GetBalance(ctx context.Context, partnerID uuid.UUID) (decimal.Decimal, error) {
	partner, err := a.loadActivePartner(ctx, partnerID)
	if err != nil {
		return decimal.Zero, err
	}
	return partner.WalletBalance, nil
}

func (a *balanceAccessor) ApplyDelta(ctx context.Context, partnerID uuid.UUID, delta decimal.Decimal) (*BalanceChange, error) {
	if partnerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "partner id required")
	}
	if delta.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delta must be non-zero")
	}

	var change *BalanceChange
	err := retry.Do(ctx, retry.WithMaxRetries(a.retries, a.backoff), func(ctx context.Context) error {
		applied, attemptErr := a.attemptDelta(ctx, partnerID, delta)
		if attemptErr != nil {
			return attemptErr
		}
		change = applied
		return nil
	})
	if err != nil {
		if errors.Is(err, errBalanceRaceLost) {
			return nil, pkgerrors.New(pkgerrors.CodeConcurrentModification, "balance update lost the race too many times")
		}
		return nil, err
	}
	return change, nil
}

var errBalanceRaceLost = errors.New("balance changed between read and update")

func (a *balanceAccessor) attemptDelta(ctx context.Context, partnerID uuid.UUID, delta decimal.Decimal) (*BalanceChange, error) {
	partner, err := a.loadActivePartner(ctx, partnerID)
	if err != nil {
		return nil, err
	}

	before := partner.WalletBalance
	after := before.Add(delta)
	if after.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "wallet balance is insufficient").
			WithDetails(map[string]any{
				"required_amount": delta.Neg().String(),
				"current_balance": before.String(),
			})
	}

	res := a.db.WithContext(ctx).Exec(`
		UPDATE partners
		SET wallet_balance = ?,
			wallet_updated_at = CURRENT_TIMESTAMP,
			last_transaction_at = CURRENT_TIMESTAMP,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND wallet_balance = ? AND status = ?
	`, after, partnerID, before, enums.PartnerStatusActive)
	if res.Error != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update wallet balance")
	}
	if res.RowsAffected == 0 {
		a.metrics.IncBalanceRetry()
		return nil, retry.RetryableError(errBalanceRaceLost)
	}

	return &BalanceChange{Before: before, After: after}, nil
}

func (a *balanceAccessor) loadActivePartner(ctx context.Context, partnerID uuid.UUID) (*models.Partner, error) {
	var partner models.Partner
	err := a.db.WithContext(ctx).
		Where("id = ? AND status = ?", partnerID, enums.PartnerStatusActive).
		First(&partner).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodePartnerNotFound, "partner not found or inactive")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load partner")
	}
	return &partner, nil
}
