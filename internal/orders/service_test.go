package orders

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sewasetu/sewasetu-backend/internal/partners"
	"github.com/sewasetu/sewasetu-backend/internal/wallet"
	"github.com/sewasetu/sewasetu-backend/pkg/alerts"
	"github.com/sewasetu/sewasetu-backend/pkg/db/models"
	"github.com/sewasetu/sewasetu-backend/pkg/enums"
	pkgerrors "github.com/sewasetu/sewasetu-backend/pkg/errors"
	"github.com/sewasetu/sewasetu-backend/pkg/logger"
	"github.com/sewasetu/sewasetu-backend/pkg/metrics"
	"github.com/sewasetu/sewasetu-backend/pkg/pagination"
)

type stubOrdersRepo struct {
	order        *models.Order
	assignResult bool
	assignErr    error
	assignCalls  int
	revertResult bool
	revertErr    error
	revertCalls  int
}

func (s *stubOrdersRepo) WithTx(tx *gorm.DB) Repository {
	return s
}

func (s *stubOrdersRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	return order, nil
}

func (s *stubOrdersRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if s.order != nil && s.order.ID == id {
		return s.order, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOrdersRepo) ConditionallyAssign(ctx context.Context, orderID, partnerID uuid.UUID) (bool, error) {
	s.assignCalls++
	if s.assignErr != nil {
		return false, s.assignErr
	}
	return s.assignResult, nil
}

func (s *stubOrdersRepo) RevertAssignment(ctx context.Context, orderID, partnerID uuid.UUID) (bool, error) {
	s.revertCalls++
	if s.revertErr != nil {
		return false, s.revertErr
	}
	return s.revertResult, nil
}

func (s *stubOrdersRepo) ListUnassigned(ctx context.Context, limit int) ([]models.Order, error) {
	return nil, nil
}

func (s *stubOrdersRepo) ListByPartner(ctx context.Context, partnerID uuid.UUID) ([]models.Order, error) {
	return nil, nil
}

type stubPartnersRepo struct {
	partner *models.Partner
}

func (s *stubPartnersRepo) WithTx(tx *gorm.DB) partners.Repository {
	return s
}

func (s *stubPartnersRepo) Create(ctx context.Context, partner *models.Partner) (*models.Partner, error) {
	return partner, nil
}

func (s *stubPartnersRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Partner, error) {
	return s.FindActiveByID(ctx, id)
}

func (s *stubPartnersRepo) FindByPhone(ctx context.Context, phone string) (*models.Partner, error) {
	if s.partner != nil && s.partner.Phone == phone {
		return s.partner, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubPartnersRepo) FindActiveByID(ctx context.Context, id uuid.UUID) (*models.Partner, error) {
	if s.partner != nil && s.partner.ID == id {
		return s.partner, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubPartnersRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.PartnerStatus) error {
	return nil
}

type stubWalletRepo struct {
	created   []*models.WalletTransaction
	createErr error
}

func (s *stubWalletRepo) WithTx(tx *gorm.DB) wallet.Repository {
	return s
}

func (s *stubWalletRepo) Create(ctx context.Context, txn *models.WalletTransaction) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, txn)
	return nil
}

func (s *stubWalletRepo) FindCompletedByReference(ctx context.Context, partnerID uuid.UUID, refType enums.ReferenceType, refID string) (*models.WalletTransaction, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubWalletRepo) MarkCompleted(ctx context.Context, id uuid.UUID, balanceBefore, balanceAfter decimal.Decimal, processedAt time.Time) error {
	return nil
}

func (s *stubWalletRepo) MarkFailed(ctx context.Context, id uuid.UUID, metadata []byte) error {
	return nil
}

func (s *stubWalletRepo) ListByPartner(ctx context.Context, partnerID uuid.UUID, params pagination.Params) (*wallet.TransactionList, error) {
	return &wallet.TransactionList{}, nil
}

type stubBalance struct {
	balance  decimal.Decimal
	applyErr error
	applied  []decimal.Decimal
}

func (s *stubBalance) GetBalance(ctx context.Context, partnerID uuid.UUID) (decimal.Decimal, error) {
	return s.balance, nil
}

func (s *stubBalance) ApplyDelta(ctx context.Context, partnerID uuid.UUID, delta decimal.Decimal) (*wallet.BalanceChange, error) {
	if s.applyErr != nil {
		return nil, s.applyErr
	}
	before := s.balance
	s.balance = s.balance.Add(delta)
	s.applied = append(s.applied, delta)
	return &wallet.BalanceChange{Before: before, After: s.balance}, nil
}

type stubNotifier struct {
	alerts []alerts.Alert
}

func (s *stubNotifier) Notify(ctx context.Context, alert alerts.Alert) error {
	s.alerts = append(s.alerts, alert)
	return nil
}

type acceptFixture struct {
	orderID   uuid.UUID
	partnerID uuid.UUID
	repo      *stubOrdersRepo
	wallet    *stubWalletRepo
	balance   *stubBalance
	notifier  *stubNotifier
	svc       Service
}

func newAcceptFixture(t *testing.T) *acceptFixture {
	t.Helper()
	orderID := uuid.New()
	partnerID := uuid.New()
	f := &acceptFixture{
		orderID:   orderID,
		partnerID: partnerID,
		repo: &stubOrdersRepo{
			order: &models.Order{
				ID:            orderID,
				ServiceName:   "deep-clean",
				Status:        enums.OrderStatusPending,
				AdvanceAmount: decimal.NewFromInt(200),
			},
			assignResult: true,
			revertResult: true,
		},
		wallet:   &stubWalletRepo{},
		balance:  &stubBalance{balance: decimal.NewFromInt(500)},
		notifier: &stubNotifier{},
	}
	svc, err := NewService(ServiceParams{
		Repo: f.repo,
		Partners: &stubPartnersRepo{partner: &models.Partner{
			ID:            partnerID,
			Status:        enums.PartnerStatusActive,
			WalletBalance: decimal.NewFromInt(500),
		}},
		Wallet:   f.wallet,
		Balance:  f.balance,
		Notifier: f.notifier,
		Metrics:  metrics.NewWalletMetrics(nil),
		Logger:   logger.New(logger.Options{Level: zerolog.ErrorLevel, Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.svc = svc
	return f
}

func TestAcceptOrderDebitsAdvance(t *testing.T) {
	f := newAcceptFixture(t)

	result, err := f.svc.AcceptOrder(context.Background(), f.orderID, f.partnerID)
	if err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if !result.NewBalance.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected balance 300, got %s", result.NewBalance)
	}
	if !result.DebitedAmount.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("expected debit 200, got %s", result.DebitedAmount)
	}
	if len(f.wallet.created) != 1 {
		t.Fatalf("expected 1 ledger row, got %d", len(f.wallet.created))
	}
	txn := f.wallet.created[0]
	if txn.Type != enums.TransactionTypeDebit || txn.ReferenceType != enums.ReferenceTypeOrderAdvance {
		t.Fatalf("unexpected transaction shape %+v", txn)
	}
	if txn.ReferenceID != f.orderID.String() {
		t.Fatalf("expected order reference, got %s", txn.ReferenceID)
	}
	if txn.Status != enums.TransactionStatusCompleted {
		t.Fatalf("debit rows are written completed, got %s", txn.Status)
	}
}

func TestAcceptOrderNotPending(t *testing.T) {
	f := newAcceptFixture(t)
	f.repo.order.Status = enums.OrderStatusAssigned

	_, err := f.svc.AcceptOrder(context.Background(), f.orderID, f.partnerID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeOrderNotAvailable) {
		t.Fatalf("expected ORDER_NOT_AVAILABLE, got %v", err)
	}
	if f.repo.assignCalls != 0 {
		t.Fatal("must not attempt assignment for a non-pending order")
	}
}

func TestAcceptOrderLosesAssignmentRace(t *testing.T) {
	f := newAcceptFixture(t)
	f.repo.assignResult = false

	_, err := f.svc.AcceptOrder(context.Background(), f.orderID, f.partnerID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeOrderNotAvailable) {
		t.Fatalf("expected ORDER_NOT_AVAILABLE, got %v", err)
	}
	if len(f.balance.applied) != 0 {
		t.Fatal("losers of the assignment race must not be debited")
	}
}

func TestAcceptOrderInsufficientFunds(t *testing.T) {
	f := newAcceptFixture(t)
	f.repo.order.AdvanceAmount = decimal.NewFromInt(900)

	_, err := f.svc.AcceptOrder(context.Background(), f.orderID, f.partnerID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeInsufficientFunds) {
		t.Fatalf("expected INSUFFICIENT_FUNDS, got %v", err)
	}

	details, ok := pkgerrors.As(err).Details().(map[string]any)
	if !ok {
		t.Fatalf("expected detail map, got %T", pkgerrors.As(err).Details())
	}
	if details["required_amount"] != "900" || details["current_balance"] != "500" {
		t.Fatalf("expected shortfall details, got %v", details)
	}
	if f.repo.assignCalls != 0 {
		t.Fatal("must not assign when funds are insufficient")
	}
}

func TestAcceptOrderPartnerNotFound(t *testing.T) {
	f := newAcceptFixture(t)

	_, err := f.svc.AcceptOrder(context.Background(), f.orderID, uuid.New())
	if !pkgerrors.HasCode(err, pkgerrors.CodePartnerNotFound) {
		t.Fatalf("expected PARTNER_NOT_FOUND, got %v", err)
	}
}

func TestAcceptOrderRevertsOnDebitFailure(t *testing.T) {
	f := newAcceptFixture(t)
	f.balance.applyErr = pkgerrors.New(pkgerrors.CodeConcurrentModification, "balance race lost")

	_, err := f.svc.AcceptOrder(context.Background(), f.orderID, f.partnerID)
	if !pkgerrors.HasCode(err, pkgerrors.CodeConcurrentModification) {
		t.Fatalf("expected the debit error to surface, got %v", err)
	}
	if f.repo.revertCalls != 1 {
		t.Fatal("expected the assignment to be reverted")
	}
	if !pkgerrors.Retryable(err) {
		t.Fatal("after a clean revert the caller should be able to retry")
	}
	if len(f.notifier.alerts) != 0 {
		t.Fatal("a clean revert is not an operator incident")
	}
}

func TestAcceptOrderPartialFailureWhenRevertFails(t *testing.T) {
	f := newAcceptFixture(t)
	f.balance.applyErr = errors.New("connection reset")
	f.repo.revertErr = errors.New("connection reset")

	_, err := f.svc.AcceptOrder(context.Background(), f.orderID, f.partnerID)
	if !pkgerrors.HasCode(err, pkgerrors.CodePartialFailure) {
		t.Fatalf("expected PARTIAL_FAILURE, got %v", err)
	}
	if len(f.notifier.alerts) != 1 {
		t.Fatalf("expected exactly one operator alert, got %d", len(f.notifier.alerts))
	}
	alert := f.notifier.alerts[0]
	if alert.OrderID != f.orderID.String() || alert.PartnerID != f.partnerID.String() {
		t.Fatalf("alert must name both entities, got %+v", alert)
	}
}

func TestAcceptOrderPartialFailureWhenLedgerWriteFails(t *testing.T) {
	f := newAcceptFixture(t)
	f.wallet.createErr = errors.New("connection reset")

	_, err := f.svc.AcceptOrder(context.Background(), f.orderID, f.partnerID)
	if !pkgerrors.HasCode(err, pkgerrors.CodePartialFailure) {
		t.Fatalf("expected PARTIAL_FAILURE, got %v", err)
	}
	if len(f.notifier.alerts) != 1 {
		t.Fatal("expected an operator alert for the missing ledger row")
	}
}

func TestAcceptOrderZeroAdvanceSkipsDebit(t *testing.T) {
	f := newAcceptFixture(t)
	f.repo.order.AdvanceAmount = decimal.Zero

	result, err := f.svc.AcceptOrder(context.Background(), f.orderID, f.partnerID)
	if err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if !result.DebitedAmount.IsZero() {
		t.Fatalf("expected zero debit, got %s", result.DebitedAmount)
	}
	if len(f.balance.applied) != 0 {
		t.Fatal("zero-advance orders must not touch the balance")
	}
	if len(f.wallet.created) != 0 {
		t.Fatal("zero-advance orders write no ledger row")
	}
}
