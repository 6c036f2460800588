package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/sewasetu/sewasetu-backend/internal/partners"
	"github.com/sewasetu/sewasetu-backend/internal/wallet"
	"github.com/sewasetu/sewasetu-backend/pkg/alerts"
	"github.com/sewasetu/sewasetu-backend/pkg/db/models"
	"github.com/sewasetu/sewasetu-backend/pkg/enums"
	pkgerrors "github.com/sewasetu/sewasetu-backend/pkg/errors"
	"github.com/sewasetu/sewasetu-backend/pkg/logger"
	"github.com/sewasetu/sewasetu-backend/pkg/metrics"
)

// AcceptResult is returned when a partner successfully claims an order.
type AcceptResult struct {
	OrderID       uuid.UUID       `json:"order_id"`
	NewBalance    decimal.Decimal `json:"new_balance"`
	DebitedAmount decimal.Decimal `json:"debited_amount"`
}

// Service exposes order acceptance and supporting reads.
type Service interface {
	AcceptOrder(ctx context.Context, orderID, partnerID uuid.UUID) (*AcceptResult, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListAssigned(ctx context.Context, partnerID uuid.UUID) ([]models.Order, error)
}

// ServiceParams carries the dependencies the orders service requires.
type ServiceParams struct {
	Repo     Repository
	Partners partners.Repository
	Wallet   wallet.Repository
	Balance  wallet.BalanceAccessor
	Notifier alerts.Notifier
	Metrics  *metrics.WalletMetrics
	Logger   *logger.Logger
}

type service struct {
	repo     Repository
	partners partners.Repository
	wallet   wallet.Repository
	balance  wallet.BalanceAccessor
	notifier alerts.Notifier
	metrics  *metrics.WalletMetrics
	logg     *logger.Logger
}

// NewService wires the orders service with its dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Partners == nil {
		return nil, fmt.Errorf("partners repository required")
	}
	if params.Wallet == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if params.Balance == nil {
		return nil, fmt.Errorf("balance accessor required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("alerts notifier required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     params.Repo,
		partners: params.Partners,
		wallet:   params.Wallet,
		balance:  params.Balance,
		notifier: params.Notifier,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// AcceptOrder claims a pending order for the partner and debits the order's
// advance from the partner wallet. At most one of any set of concurrent
// callers succeeds; everyone else gets OrderNotAvailable.
func (s *service) AcceptOrder(ctx context.Context, orderID, partnerID uuid.UUID) (*AcceptResult, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if partnerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "partner id required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id":   orderID.String(),
		"partner_id": partnerID.String(),
	})

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.metrics.IncDebit("order_not_available")
			return nil, pkgerrors.New(pkgerrors.CodeOrderNotAvailable, "order not available")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.Status != enums.OrderStatusPending || order.PartnerID != nil {
		s.metrics.IncDebit("order_not_available")
		return nil, pkgerrors.New(pkgerrors.CodeOrderNotAvailable, "order not available")
	}

	partner, err := s.partners.FindActiveByID(ctx, partnerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodePartnerNotFound, "partner not found or inactive")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load partner")
	}

	advance := order.AdvanceAmount
	if partner.WalletBalance.LessThan(advance) {
		s.metrics.IncDebit("insufficient_funds")
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "wallet balance is insufficient").
			WithDetails(map[string]any{
				"required_amount": advance.String(),
				"current_balance": partner.WalletBalance.String(),
				"shortfall":       advance.Sub(partner.WalletBalance).String(),
			})
	}

	assigned, err := s.repo.ConditionallyAssign(ctx, orderID, partnerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign order")
	}
	if !assigned {
		s.metrics.IncDebit("order_not_available")
		return nil, pkgerrors.New(pkgerrors.CodeOrderNotAvailable, "order was claimed by another partner")
	}

	if advance.IsZero() {
		s.metrics.IncDebit("completed")
		balance, balErr := s.balance.GetBalance(ctx, partnerID)
		if balErr != nil {
			balance = partner.WalletBalance
		}
		return &AcceptResult{OrderID: orderID, NewBalance: balance, DebitedAmount: decimal.Zero}, nil
	}

	change, err := s.balance.ApplyDelta(ctx, partnerID, advance.Neg())
	if err != nil {
		return nil, s.compensateAssignment(ctx, orderID, partnerID, err)
	}

	if err := s.recordDebit(ctx, order, partnerID, change); err != nil {
		// Balance and order both moved but the ledger is missing its row.
		// This is divergence an operator has to close out.
		s.reportPartialFailure(ctx, orderID, partnerID, "debit applied but ledger write failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodePartialFailure, err, "record debit transaction")
	}

	s.metrics.IncDebit("completed")
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"debited_amount": advance.String(),
		"new_balance":    change.After.String(),
	}), "order accepted")

	return &AcceptResult{
		OrderID:       orderID,
		NewBalance:    change.After,
		DebitedAmount: advance,
	}, nil
}

// compensateAssignment undoes the order claim after a failed debit. When even
// the revert fails the two stores have diverged, which is the one condition
// that must reach an operator.
func (s *service) compensateAssignment(ctx context.Context, orderID, partnerID uuid.UUID, debitErr error) error {
	reverted, revertErr := s.repo.RevertAssignment(ctx, orderID, partnerID)
	if revertErr == nil && reverted {
		s.metrics.IncDebit("reverted")
		s.logg.Warn(ctx, "order assignment reverted after debit failure")
		return debitErr
	}

	if revertErr == nil {
		revertErr = errors.New("revert matched no rows")
	}
	combined := multierr.Combine(debitErr, revertErr)
	s.reportPartialFailure(ctx, orderID, partnerID, "debit failed and order revert also failed", combined)
	return pkgerrors.Wrap(pkgerrors.CodePartialFailure, combined, "order and wallet state diverged")
}

func (s *service) recordDebit(ctx context.Context, order *models.Order, partnerID uuid.UUID, change *wallet.BalanceChange) error {
	metadata, _ := json.Marshal(map[string]string{
		"service_name": order.ServiceName,
	})
	txn := &models.WalletTransaction{
		PartnerID:     partnerID,
		Type:          enums.TransactionTypeDebit,
		Amount:        order.AdvanceAmount,
		BalanceBefore: change.Before,
		BalanceAfter:  decimal.NewNullDecimal(change.After),
		Description:   fmt.Sprintf("advance for order %s", order.ID),
		ReferenceID:   order.ID.String(),
		ReferenceType: enums.ReferenceTypeOrderAdvance,
		Status:        enums.TransactionStatusCompleted,
		Metadata:      metadata,
	}
	now := time.Now().UTC()
	txn.ProcessedAt = &now
	return s.wallet.Create(ctx, txn)
}

func (s *service) reportPartialFailure(ctx context.Context, orderID, partnerID uuid.UUID, message string, cause error) {
	s.metrics.IncPartialFailure()
	s.metrics.IncDebit("partial_failure")
	s.logg.Error(ctx, message, cause)
	if err := s.notifier.Notify(ctx, alerts.Alert{
		Kind:      alerts.KindPartialFailure,
		Severity:  alerts.SeverityCritical,
		Message:   message,
		OrderID:   orderID.String(),
		PartnerID: partnerID.String(),
		Details:   map[string]any{"error": cause.Error()},
	}); err != nil {
		s.logg.Error(ctx, "alerting on partial failure errored", err)
	}
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) ListAssigned(ctx context.Context, partnerID uuid.UUID) ([]models.Order, error) {
	if partnerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "partner id required")
	}
	orders, err := s.repo.ListByPartner(ctx, partnerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list assigned orders")
	}
	return orders, nil
}
