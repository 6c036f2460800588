package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sewasetu/sewasetu-backend/internal/partners"
	"github.com/sewasetu/sewasetu-backend/pkg/alerts"
	"github.com/sewasetu/sewasetu-backend/pkg/db"
	"github.com/sewasetu/sewasetu-backend/pkg/db/models"
	"github.com/sewasetu/sewasetu-backend/pkg/enums"
	pkgerrors "github.com/sewasetu/sewasetu-backend/pkg/errors"
	"github.com/sewasetu/sewasetu-backend/pkg/logger"
	"github.com/sewasetu/sewasetu-backend/pkg/metrics"
	"github.com/sewasetu/sewasetu-backend/pkg/pagination"
	"github.com/sewasetu/sewasetu-backend/pkg/razorpay"
)

// Gateway is the slice of the payment gateway the credit flow depends on.
type Gateway interface {
	FetchOrder(ctx context.Context, gatewayOrderID string) (*razorpay.Order, error)
	FetchPaymentsForOrder(ctx context.Context, gatewayOrderID string) ([]razorpay.Payment, error)
	CreateOrder(ctx context.Context, params razorpay.OrderCreateParams) (*razorpay.Order, error)
}

// Service exposes the wallet credit flow and supporting reads.
type Service interface {
	CreateTopupOrder(ctx context.Context, partnerID uuid.UUID, amount decimal.Decimal) (*TopupOrderResult, error)
	ReconcileEvent(ctx context.Context, partnerID uuid.UUID, event PaymentEvent) (*ReconcileResult, error)
	ReconcileByOrder(ctx context.Context, partnerID uuid.UUID, gatewayOrderID string) (*ReconcileResult, error)
	Balance(ctx context.Context, partnerID uuid.UUID) (decimal.Decimal, error)
	History(ctx context.Context, partnerID uuid.UUID, params pagination.Params) (*TransactionList, error)
}

// ServiceParams carries the dependencies the wallet service requires.
type ServiceParams struct {
	Repo     Repository
	Topups   TopupRepository
	Partners partners.Repository
	Balance  BalanceAccessor
	Gateway  Gateway
	Notifier alerts.Notifier
	Metrics  *metrics.WalletMetrics
	Logger   *logger.Logger
}

type service struct {
	repo     Repository
	topups   TopupRepository
	partners partners.Repository
	balance  BalanceAccessor
	gateway  Gateway
	notifier alerts.Notifier
	metrics  *metrics.WalletMetrics
	logg     *logger.Logger
}

// NewService wires the wallet service with its dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if params.Topups == nil {
		return nil, fmt.Errorf("topup repository required")
	}
	if params.Partners == nil {
		return nil, fmt.Errorf("partners repository required")
	}
	if params.Balance == nil {
		return nil, fmt.Errorf("balance accessor required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("gateway adapter required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("alerts notifier required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     params.Repo,
		topups:   params.Topups,
		partners: params.Partners,
		balance:  params.Balance,
		gateway:  params.Gateway,
		notifier: params.Notifier,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

func (s *service) CreateTopupOrder(ctx context.Context, partnerID uuid.UUID, amount decimal.Decimal) (*TopupOrderResult, error) {
	if partnerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "partner id required")
	}
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "top-up amount must be positive")
	}
	paise := amount.Mul(decimal.NewFromInt(100))
	if !paise.IsInteger() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "top-up amount cannot be finer than one paisa")
	}

	if _, err := s.partners.FindActiveByID(ctx, partnerID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodePartnerNotFound, "partner not found or inactive")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load partner")
	}

	order, err := s.gateway.CreateOrder(ctx, razorpay.OrderCreateParams{
		AmountPaise: paise.IntPart(),
		Receipt:     fmt.Sprintf("topup-%s", uuid.NewString()[:8]),
		Notes:       map[string]string{"partner_id": partnerID.String()},
	})
	if err != nil {
		return nil, err
	}

	topup := &models.TopupOrder{
		PartnerID:       partnerID,
		RazorpayOrderID: order.ID,
		Amount:          amount,
		Status:          TopupStatusCreated,
	}
	if err := s.topups.Create(ctx, topup); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record top-up order")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"partner_id":       partnerID.String(),
		"gateway_order_id": order.ID,
		"amount":           amount.String(),
	}), "top-up order created")

	return &TopupOrderResult{
		GatewayOrderID: order.ID,
		Amount:         amount,
		Currency:       order.Currency,
		CreatedAt:      topup.CreatedAt,
	}, nil
}

// ReconcileEvent applies a payment confirmation that arrived by webhook. Safe
// to call twice for the same payment and concurrently with the poll path.
func (s *service) ReconcileEvent(ctx context.Context, partnerID uuid.UUID, event PaymentEvent) (*ReconcileResult, error) {
	started := time.Now()
	result, err := s.reconcile(ctx, partnerID, event)
	s.metrics.ObserveReconcileDuration("webhook", time.Since(started))
	return result, err
}

// ReconcileByOrder resolves payment state from the gateway and applies any
// captured payment. This is the client polling path.
func (s *service) ReconcileByOrder(ctx context.Context, partnerID uuid.UUID, gatewayOrderID string) (*ReconcileResult, error) {
	started := time.Now()
	defer func() {
		s.metrics.ObserveReconcileDuration("poll", time.Since(started))
	}()

	if gatewayOrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway order id required")
	}

	payments, err := s.gateway.FetchPaymentsForOrder(ctx, gatewayOrderID)
	if err != nil {
		return nil, err
	}

	event := PaymentEvent{GatewayOrderID: gatewayOrderID, Status: enums.GatewayPaymentStatusCreated}
	for i := range payments {
		payment := payments[i]
		if payment.NormalizedStatus() == enums.GatewayPaymentStatusCaptured {
			event = PaymentEvent{
				GatewayOrderID:   gatewayOrderID,
				GatewayPaymentID: payment.ID,
				Amount:           payment.AmountRupees(),
				Status:           enums.GatewayPaymentStatusCaptured,
				Method:           payment.Method,
			}
			break
		}
		event.Status = payment.NormalizedStatus()
	}

	return s.reconcile(ctx, partnerID, event)
}

func (s *service) reconcile(ctx context.Context, partnerID uuid.UUID, event PaymentEvent) (*ReconcileResult, error) {
	if partnerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "partner id required")
	}
	if event.GatewayOrderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway order id required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"partner_id":       partnerID.String(),
		"gateway_order_id": event.GatewayOrderID,
	})

	// Ownership must be settled before any balance mutation.
	topup, err := s.topups.FindByGatewayOrderID(ctx, event.GatewayOrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "unknown gateway order")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve top-up order")
	}
	if topup.PartnerID != partnerID {
		return nil, pkgerrors.New(pkgerrors.CodeOwnershipMismatch, "payment belongs to a different partner")
	}

	if event.GatewayPaymentID != "" {
		if done := s.findProcessed(ctx, partnerID, event.GatewayPaymentID); done != nil {
			return done, nil
		}
	}

	if event.Status != enums.GatewayPaymentStatusCaptured {
		return &ReconcileResult{
			Status:        ReconcileStatusPending,
			GatewayStatus: event.Status,
		}, nil
	}
	if !event.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "captured amount must be positive")
	}

	balanceBefore, err := s.balance.GetBalance(ctx, partnerID)
	if err != nil {
		return nil, err
	}

	metadata, _ := json.Marshal(map[string]string{
		"gateway_order_id": event.GatewayOrderID,
		"method":           event.Method,
	})
	txn := &models.WalletTransaction{
		PartnerID:     partnerID,
		Type:          enums.TransactionTypeCredit,
		Amount:        event.Amount,
		BalanceBefore: balanceBefore,
		Description:   "wallet top-up",
		ReferenceID:   event.GatewayPaymentID,
		ReferenceType: enums.ReferenceTypeRazorpayPayment,
		Status:        enums.TransactionStatusPending,
		Metadata:      metadata,
	}

	// The pending insert reserves the idempotency key. Losing this race means
	// the other path owns the credit.
	if err := s.repo.Create(ctx, txn); err != nil {
		if db.IsUniqueViolation(err, "") {
			if done := s.findProcessed(ctx, partnerID, event.GatewayPaymentID); done != nil {
				return done, nil
			}
			s.metrics.IncDuplicateSuppressed()
			// The competing row is still pending; report the balance as it
			// stands now rather than the pre-read from before the race.
			balance := balanceBefore
			if current, balErr := s.balance.GetBalance(ctx, partnerID); balErr == nil {
				balance = current
			}
			return &ReconcileResult{
				Status:           ReconcileStatusCompleted,
				WalletBalance:    balance,
				AlreadyProcessed: true,
			}, nil
		}
		s.metrics.IncCredit("failed")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record pending credit")
	}

	change, err := s.balance.ApplyDelta(ctx, partnerID, event.Amount)
	if err != nil {
		s.failCredit(ctx, txn, err)
		return nil, err
	}

	if err := s.repo.MarkCompleted(ctx, txn.ID, change.Before, change.After, time.Now().UTC()); err != nil {
		// The balance moved but the ledger row is stuck pending. Operators
		// must close it out by hand, so this is never swallowed.
		s.metrics.IncPartialFailure()
		alertErr := s.notifier.Notify(ctx, alerts.Alert{
			Kind:           alerts.KindPartialFailure,
			Severity:       alerts.SeverityCritical,
			Message:        "credit applied but ledger row not completed",
			PartnerID:      partnerID.String(),
			TransactionID:  txn.ID.String(),
			GatewayOrderID: event.GatewayOrderID,
		})
		if alertErr != nil {
			s.logg.Error(ctx, "alerting on stuck credit failed", alertErr)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePartialFailure, err, "complete credit transaction")
	}

	if err := s.topups.MarkPaid(ctx, topup.ID); err != nil {
		s.logg.Error(ctx, "marking top-up order paid failed", err)
	}

	s.metrics.IncCredit("completed")
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"transaction_id": txn.ID.String(),
		"amount":         event.Amount.String(),
	}), "wallet credited")

	return &ReconcileResult{
		Status:        ReconcileStatusCompleted,
		WalletBalance: change.After,
		AmountAdded:   event.Amount,
		TransactionID: txn.ID,
	}, nil
}

// findProcessed returns the already-processed result when a completed
// transaction exists for this payment, nil otherwise.
func (s *service) findProcessed(ctx context.Context, partnerID uuid.UUID, gatewayPaymentID string) *ReconcileResult {
	done, err := s.repo.FindCompletedByReference(ctx, partnerID, enums.ReferenceTypeRazorpayPayment, gatewayPaymentID)
	if err != nil {
		return nil
	}
	s.metrics.IncDuplicateSuppressed()
	balance := done.BalanceBefore
	if done.BalanceAfter.Valid {
		balance = done.BalanceAfter.Decimal
	}
	return &ReconcileResult{
		Status:           ReconcileStatusCompleted,
		WalletBalance:    balance,
		AmountAdded:      done.Amount,
		AlreadyProcessed: true,
		TransactionID:    done.ID,
	}
}

func (s *service) failCredit(ctx context.Context, txn *models.WalletTransaction, cause error) {
	metadata, _ := json.Marshal(map[string]string{"error": cause.Error()})
	if err := s.repo.MarkFailed(ctx, txn.ID, metadata); err != nil {
		s.logg.Error(ctx, "marking credit transaction failed errored", err)
	}
	s.metrics.IncCredit("failed")
	if err := s.notifier.Notify(ctx, alerts.Alert{
		Kind:          alerts.KindCreditFailed,
		Severity:      alerts.SeverityWarning,
		Message:       "credit could not be applied",
		PartnerID:     txn.PartnerID.String(),
		TransactionID: txn.ID.String(),
		Details:       map[string]any{"error": cause.Error()},
	}); err != nil {
		s.logg.Error(ctx, "alerting on failed credit errored", err)
	}
}

func (s *service) Balance(ctx context.Context, partnerID uuid.UUID) (decimal.Decimal, error) {
	return s.balance.GetBalance(ctx, partnerID)
}

func (s *service) History(ctx context.Context, partnerID uuid.UUID, params pagination.Params) (*TransactionList, error) {
	if partnerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "partner id required")
	}
	list, err := s.repo.ListByPartner(ctx, partnerID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wallet transactions")
	}
	return list, nil
}
