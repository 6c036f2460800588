package wallet

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
	"github.com/sewasetu/sewasetu-backend/pkg/alerts"
	"github.com/sewasetu/sewasetu-backend/pkg/db/models"
	"github.com/sewasetu/sewasetu-backend/pkg/enums"
	pkgerrors "github.com/sewasetu/sewasetu-backend/pkg/errors"
	"github.com/sewasetu/sewasetu-backend/pkg/logger"
	"github.com/sewasetu/sewasetu-backend/pkg/metrics"
	"github.com/sewasetu/sewasetu-backend/pkg/pagination"
	"github.com/sewasetu/sewasetu-backend/pkg/razorpay"
)

type completedCall struct {
	id     uuid.UUID
	before decimal.Decimal
	after  decimal.Decimal
}

type stubWalletRepo struct {
	created       []*models.WalletTransaction
	completedRows map[string]*models.WalletTransaction
	createErr     error
	markCompleted []completedCall
	markFailed    []uuid.UUID
}

func referenceKey(partnerID uuid.UUID, refType enums.ReferenceType, refID string) string {
	return partnerID.String() + "|" + string(refType) + "|" + refID
}

func (s *stubWalletRepo) WithTx(tx *gorm.DB) Repository {
	return s
}

func (s *stubWalletRepo) Create(ctx context.Context, txn *models.WalletTransaction) error {
	if s.createErr != nil {
		return s.createErr
	}
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	s.created = append(s.created, txn)
	return nil
}

func (s *stubWalletRepo) FindCompletedByReference(ctx context.Context, partnerID uuid.UUID, refType enums.ReferenceType, refID string) (*models.WalletTransaction, error) {
	if txn, ok := s.completedRows[referenceKey(partnerID, refType, refID)]; ok {
		return txn, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubWalletRepo) MarkCompleted(ctx context.Context, id uuid.UUID, balanceBefore, balanceAfter decimal.Decimal, processedAt time.Time) error {
	s.markCompleted = append(s.markCompleted, completedCall{id: id, before: balanceBefore, after: balanceAfter})
	return nil
}

func (s *stubWalletRepo) MarkFailed(ctx context.Context, id uuid.UUID, metadata []byte) error {
	s.markFailed = append(s.markFailed, id)
	return nil
}

func (s *stubWalletRepo) ListByPartner(ctx context.Context, partnerID uuid.UUID, params pagination.Params) (*TransactionList, error) {
	return &TransactionList{}, nil
}

type stubTopupRepo struct {
	byGatewayOrder map[string]*models.TopupOrder
	created        []*models.TopupOrder
	paid           []uuid.UUID
}

func (s *stubTopupRepo) WithTx(tx *gorm.DB) TopupRepository {
	return s
}

func (s *stubTopupRepo) Create(ctx context.Context, topup *models.TopupOrder) error {
	if topup.ID == uuid.Nil {
		topup.ID = uuid.New()
	}
	s.created = append(s.created, topup)
	return nil
}

func (s *stubTopupRepo) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.TopupOrder, error) {
	if topup, ok := s.byGatewayOrder[gatewayOrderID]; ok {
		return topup, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubTopupRepo) MarkPaid(ctx context.Context, id uuid.UUID) error {
	s.paid = append(s.paid, id)
	return nil
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

type stubBalance struct {
	balance   decimal.Decimal
	applyErr  error
	applied   []decimal.Decimal
	getBalErr error
	afterRead func()
}

func (s *stubBalance) GetBalance(ctx context.Context, partnerID uuid.UUID) (decimal.Decimal, error) {
	if s.getBalErr != nil {
		return decimal.Zero, s.getBalErr
	}
	current := s.balance
	if s.afterRead != nil {
		hook := s.afterRead
		s.afterRead = nil
		hook()
	}
	return current, nil
}

func (s *stubBalance) ApplyDelta(ctx context.Context, partnerID uuid.UUID, delta decimal.Decimal) (*BalanceChange, error) {
	if s.applyErr != nil {
		return nil, s.applyErr
	}
	before := s.balance
	s.balance = s.balance.Add(delta)
	s.applied = append(s.applied, delta)
	return &BalanceChange{Before: before, After: s.balance}, nil
}

type stubGateway struct {
	payments    []razorpay.Payment
	paymentsErr error
	order       *razorpay.Order
	createErr   error
}

func (s *stubGateway) FetchOrder(ctx context.Context, gatewayOrderID string) (*razorpay.Order, error) {
	return s.order, nil
}

func (s *stubGateway) FetchPaymentsForOrder(ctx context.Context, gatewayOrderID string) ([]razorpay.Payment, error) {
	if s.paymentsErr != nil {
		return nil, s.paymentsErr
	}
	return s.payments, nil
}

func (s *stubGateway) CreateOrder(ctx context.Context, params razorpay.OrderCreateParams) (*razorpay.Order, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &razorpay.Order{ID: "order_new", Amount: params.AmountPaise, Currency: "INR", Status: "created"}, nil
}

type stubNotifier struct {
	alerts []alerts.Alert
}

func (s *stubNotifier) Notify(ctx context.Context, alert alerts.Alert) error {
	s.alerts = append(s.alerts, alert)
	return nil
}

type walletFixture struct {
	partnerID uuid.UUID
	repo      *stubWalletRepo
	topups    *stubTopupRepo
	partners  *stubPartnersRepo
	balance   *stubBalance
	gateway   *stubGateway
	notifier  *stubNotifier
	svc       Service
}

func newWalletFixture(t *testing.T) *walletFixture {
	t.Helper()
	partnerID := uuid.New()
	f := &walletFixture{
		partnerID: partnerID,
		repo:      &stubWalletRepo{completedRows: map[string]*models.WalletTransaction{}},
		topups: &stubTopupRepo{byGatewayOrder: map[string]*models.TopupOrder{
			"order_abc": {ID: uuid.New(), PartnerID: partnerID, RazorpayOrderID: "order_abc", Amount: decimal.NewFromInt(1000)},
		}},
		partners: &stubPartnersRepo{partner: &models.Partner{
			ID:            partnerID,
			Status:        enums.PartnerStatusActive,
			WalletBalance: decimal.NewFromInt(500),
		}},
		balance:  &stubBalance{balance: decimal.NewFromInt(500)},
		gateway:  &stubGateway{},
		notifier: &stubNotifier{},
	}
	svc, err := NewService(ServiceParams{
		Repo:     f.repo,
		Topups:   f.topups,
		Partners: f.partners,
		Balance:  f.balance,
		Gateway:  f.gateway,
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

func capturedEvent(amount int64) PaymentEvent {
	return PaymentEvent{
		GatewayOrderID:   "order_abc",
		GatewayPaymentID: "pay_1",
		Amount:           decimal.NewFromInt(amount),
		Status:           enums.GatewayPaymentStatusCaptured,
		Method:           "upi",
	}
}

func TestReconcileEventCreditsWallet(t *testing.T) {
	f := newWalletFixture(t)

	result, err := f.svc.ReconcileEvent(context.Background(), f.partnerID, capturedEvent(1000))
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.AlreadyProcessed {
		t.Fatal("first credit should not be already processed")
	}
	if !result.WalletBalance.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("expected balance 1500, got %s", result.WalletBalance)
	}
	if !result.AmountAdded.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("expected amount 1000, got %s", result.AmountAdded)
	}
	if len(f.repo.created) != 1 {
		t.Fatalf("expected 1 pending insert, got %d", len(f.repo.created))
	}
	txn := f.repo.created[0]
	if txn.Type != enums.TransactionTypeCredit || txn.ReferenceType != enums.ReferenceTypeRazorpayPayment || txn.ReferenceID != "pay_1" {
		t.Fatalf("unexpected transaction shape %+v", txn)
	}
	if len(f.repo.markCompleted) != 1 {
		t.Fatal("expected transaction to be completed")
	}
	if len(f.topups.paid) != 1 {
		t.Fatal("expected top-up order to be marked paid")
	}
}

func TestReconcileEventIsIdempotent(t *testing.T) {
	f := newWalletFixture(t)
	existing := &models.WalletTransaction{
		ID:           uuid.New(),
		PartnerID:    f.partnerID,
		Amount:       decimal.NewFromInt(1000),
		BalanceAfter: decimal.NewNullDecimal(decimal.NewFromInt(1500)),
		Status:       enums.TransactionStatusCompleted,
	}
	f.repo.completedRows[referenceKey(f.partnerID, enums.ReferenceTypeRazorpayPayment, "pay_1")] = existing

	result, err := f.svc.ReconcileEvent(context.Background(), f.partnerID, capturedEvent(1000))
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if !result.AlreadyProcessed {
		t.Fatal("expected already processed")
	}
	if !result.WalletBalance.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("expected recorded balance 1500, got %s", result.WalletBalance)
	}
	if len(f.balance.applied) != 0 {
		t.Fatal("balance must not be mutated on replay")
	}
	if len(f.repo.created) != 0 {
		t.Fatal("no new transaction may be inserted on replay")
	}
}

func TestReconcileEventDuplicateInsertExitsEarly(t *testing.T) {
	f := newWalletFixture(t)
	f.repo.createErr = errors.New(`ERROR: duplicate key value violates unique constraint "ux_wallet_transactions_reference"`)

	result, err := f.svc.ReconcileEvent(context.Background(), f.partnerID, capturedEvent(1000))
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if !result.AlreadyProcessed {
		t.Fatal("losing the insert race must report already processed")
	}
	if len(f.balance.applied) != 0 {
		t.Fatal("balance must not be mutated after losing the insert race")
	}
}

func TestReconcileEventCompletesWithBalancesFromAppliedDelta(t *testing.T) {
	f := newWalletFixture(t)
	// A concurrent credit of 100 settles between this call's balance pre-read
	// and its delta, so the pre-read of 500 is stale when the delta applies.
	f.balance.afterRead = func() {
		f.balance.balance = f.balance.balance.Add(decimal.NewFromInt(100))
	}

	result, err := f.svc.ReconcileEvent(context.Background(), f.partnerID, capturedEvent(200))
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if !result.WalletBalance.Equal(decimal.NewFromInt(800)) {
		t.Fatalf("expected balance 800, got %s", result.WalletBalance)
	}
	if len(f.repo.markCompleted) != 1 {
		t.Fatal("expected transaction to be completed")
	}
	call := f.repo.markCompleted[0]
	if !call.before.Equal(decimal.NewFromInt(600)) {
		t.Fatalf("completed row must carry the balance observed by the delta, got before=%s", call.before)
	}
	if !call.before.Add(decimal.NewFromInt(200)).Equal(call.after) {
		t.Fatalf("ledger row must satisfy before+amount=after, got before=%s after=%s", call.before, call.after)
	}
}

func TestReconcileEventDuplicateInsertReportsCurrentBalance(t *testing.T) {
	f := newWalletFixture(t)
	f.repo.createErr = errors.New(`ERROR: duplicate key value violates unique constraint "ux_wallet_transactions_reference"`)
	// The winner of the insert race credits the wallet after this call's
	// pre-read of 500.
	f.balance.afterRead = func() {
		f.balance.balance = decimal.NewFromInt(1500)
	}

	result, err := f.svc.ReconcileEvent(context.Background(), f.partnerID, capturedEvent(1000))
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if !result.AlreadyProcessed {
		t.Fatal("losing the insert race must report already processed")
	}
	if !result.WalletBalance.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("expected the current balance 1500, got %s", result.WalletBalance)
	}
}

func TestReconcileEventPendingWhenNotCaptured(t *testing.T) {
	f := newWalletFixture(t)
	event := capturedEvent(1000)
	event.Status = enums.GatewayPaymentStatusCreated

	result, err := f.svc.ReconcileEvent(context.Background(), f.partnerID, event)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Status != ReconcileStatusPending {
		t.Fatalf("expected pending result, got %s", result.Status)
	}
	if result.GatewayStatus != enums.GatewayPaymentStatusCreated {
		t.Fatalf("expected gateway status created, got %s", result.GatewayStatus)
	}
	if len(f.repo.created) != 0 {
		t.Fatal("pending events must not write ledger rows")
	}
}

func TestReconcileEventOwnershipMismatch(t *testing.T) {
	f := newWalletFixture(t)
	otherPartner := uuid.New()

	_, err := f.svc.ReconcileEvent(context.Background(), otherPartner, capturedEvent(1000))
	if !pkgerrors.HasCode(err, pkgerrors.CodeOwnershipMismatch) {
		t.Fatalf("expected OWNERSHIP_MISMATCH, got %v", err)
	}
	if len(f.balance.applied) != 0 {
		t.Fatal("ownership mismatch must be rejected before any balance mutation")
	}
}

func TestReconcileEventMarksFailedOnApplyError(t *testing.T) {
	f := newWalletFixture(t)
	f.balance.applyErr = pkgerrors.New(pkgerrors.CodeConcurrentModification, "balance race lost")

	_, err := f.svc.ReconcileEvent(context.Background(), f.partnerID, capturedEvent(1000))
	if !pkgerrors.HasCode(err, pkgerrors.CodeConcurrentModification) {
		t.Fatalf("expected the apply error to surface, got %v", err)
	}
	if len(f.repo.markFailed) != 1 {
		t.Fatal("expected the pending row to be marked failed")
	}
	if len(f.notifier.alerts) != 1 || f.notifier.alerts[0].Kind != alerts.KindCreditFailed {
		t.Fatalf("expected a credit-failed alert, got %+v", f.notifier.alerts)
	}
}

func TestReconcileByOrderSelectsCapturedPayment(t *testing.T) {
	f := newWalletFixture(t)
	f.gateway.payments = []razorpay.Payment{
		{ID: "pay_a", OrderID: "order_abc", Amount: 100000, Status: "failed"},
		{ID: "pay_b", OrderID: "order_abc", Amount: 100000, Status: "captured", Method: "upi"},
	}

	result, err := f.svc.ReconcileByOrder(context.Background(), f.partnerID, "order_abc")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Status != ReconcileStatusCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	if !result.AmountAdded.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("expected 1000 rupees from 100000 paise, got %s", result.AmountAdded)
	}
	if f.repo.created[0].ReferenceID != "pay_b" {
		t.Fatalf("expected captured payment to be referenced, got %s", f.repo.created[0].ReferenceID)
	}
}

func TestReconcileByOrderPendingWhenNoCapture(t *testing.T) {
	f := newWalletFixture(t)
	f.gateway.payments = []razorpay.Payment{
		{ID: "pay_a", OrderID: "order_abc", Amount: 100000, Status: "authorized"},
	}

	result, err := f.svc.ReconcileByOrder(context.Background(), f.partnerID, "order_abc")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if result.Status != ReconcileStatusPending {
		t.Fatalf("expected pending, got %s", result.Status)
	}
}

func TestReconcileByOrderPropagatesGatewayUnavailable(t *testing.T) {
	f := newWalletFixture(t)
	f.gateway.paymentsErr = pkgerrors.New(pkgerrors.CodeGatewayUnavailable, "razorpay request timed out")

	_, err := f.svc.ReconcileByOrder(context.Background(), f.partnerID, "order_abc")
	if !pkgerrors.HasCode(err, pkgerrors.CodeGatewayUnavailable) {
		t.Fatalf("expected GATEWAY_UNAVAILABLE, got %v", err)
	}
	if !pkgerrors.Retryable(err) {
		t.Fatal("gateway timeouts must stay retryable, not map to a failed credit")
	}
}

func TestCreateTopupOrder(t *testing.T) {
	f := newWalletFixture(t)

	result, err := f.svc.CreateTopupOrder(context.Background(), f.partnerID, decimal.NewFromInt(750))
	if err != nil {
		t.Fatalf("create top-up failed: %v", err)
	}
	if result.GatewayOrderID != "order_new" {
		t.Fatalf("unexpected gateway order id %s", result.GatewayOrderID)
	}
	if len(f.topups.created) != 1 {
		t.Fatal("expected top-up record to be persisted")
	}
	if f.topups.created[0].PartnerID != f.partnerID {
		t.Fatal("top-up record must carry the partner id")
	}
}

func TestCreateTopupOrderRejectsSubPaisaAmount(t *testing.T) {
	f := newWalletFixture(t)
	amount, _ := decimal.NewFromString("10.005")

	_, err := f.svc.CreateTopupOrder(context.Background(), f.partnerID, amount)
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestCreateTopupOrderUnknownPartner(t *testing.T) {
	f := newWalletFixture(t)

	_, err := f.svc.CreateTopupOrder(context.Background(), uuid.New(), decimal.NewFromInt(100))
	if !pkgerrors.HasCode(err, pkgerrors.CodePartnerNotFound) {
		t.Fatalf("expected PARTNER_NOT_FOUND, got %v", err)
	}
}
