package razorpaywebhook

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sewasetu/sewasetu-backend/internal/wallet"
	"github.com/sewasetu/sewasetu-backend/pkg/db/models"
	pkgerrors "github.com/sewasetu/sewasetu-backend/pkg/errors"
	"github.com/sewasetu/sewasetu-backend/pkg/logger"
	"github.com/sewasetu/sewasetu-backend/pkg/razorpay"
)

type stubReconciler struct {
	partnerID uuid.UUID
	event     *wallet.PaymentEvent
	calls     int
	err       error
}

func (s *stubReconciler) ReconcileEvent(_ context.Context, partnerID uuid.UUID, event wallet.PaymentEvent) (*wallet.ReconcileResult, error) {
	s.calls++
	s.partnerID = partnerID
	s.event = &event
	if s.err != nil {
		return nil, s.err
	}
	return &wallet.ReconcileResult{
		Status:        wallet.ReconcileStatusCompleted,
		WalletBalance: decimal.NewFromInt(1500),
		AmountAdded:   event.Amount,
	}, nil
}

type stubTopups struct {
	topup *models.TopupOrder
	err   error
	calls int
}

func (s *stubTopups) FindByGatewayOrderID(_ context.Context, _ string) (*models.TopupOrder, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.topup, nil
}

func newTestService(t *testing.T, reconciler *stubReconciler, topups *stubTopups) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Wallet: reconciler,
		Topups: topups,
		Logger: logger.New(logger.Options{Level: zerolog.ErrorLevel, Output: io.Discard}),
	})
	require.NoError(t, err)
	return svc
}

func capturedEvent(partnerID string) *Event {
	entity := razorpay.Payment{
		ID:      "pay_abc",
		OrderID: "order_abc",
		Amount:  100000,
		Status:  "captured",
		Method:  "upi",
	}
	if partnerID != "" {
		entity.Notes = map[string]string{"partner_id": partnerID}
	}
	return &Event{
		Event:   EventPaymentCaptured,
		Payload: Payload{Payment: PaymentWrapper{Entity: entity}},
	}
}

func TestParseEventDecodesEnvelope(t *testing.T) {
	body := []byte(`{
	  "event": "payment.captured",
	  "payload": {
	    "payment": {
	      "entity": {
	        "id": "pay_abc",
	        "order_id": "order_abc",
	        "amount": 50000,
	        "status": "captured",
	        "method": "card",
	        "notes": {"partner_id": "not-checked-here"}
	      }
	    }
	  },
	  "created_at": 1756000000
	}`)

	event, err := ParseEvent(body)
	require.NoError(t, err)
	assert.Equal(t, EventPaymentCaptured, event.Event)
	assert.Equal(t, "pay_abc", event.Payload.Payment.Entity.ID)
	assert.Equal(t, int64(50000), event.Payload.Payment.Entity.Amount)
	assert.Equal(t, "not-checked-here", event.Payload.Payment.Entity.Notes["partner_id"])

	_, err = ParseEvent([]byte(`{"payload": {}}`))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = ParseEvent([]byte(`not json`))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestHandleCapturedUsesNotesHint(t *testing.T) {
	partnerID := uuid.New()
	reconciler := &stubReconciler{}
	topups := &stubTopups{}
	svc := newTestService(t, reconciler, topups)

	err := svc.HandleEvent(context.Background(), capturedEvent(partnerID.String()))
	require.NoError(t, err)

	assert.Equal(t, 1, reconciler.calls)
	assert.Equal(t, partnerID, reconciler.partnerID)
	assert.Equal(t, 0, topups.calls, "notes hint skips the top-up lookup")

	require.NotNil(t, reconciler.event)
	assert.Equal(t, "order_abc", reconciler.event.GatewayOrderID)
	assert.Equal(t, "pay_abc", reconciler.event.GatewayPaymentID)
	assert.True(t, reconciler.event.Amount.Equal(decimal.NewFromInt(1000)), "100000 paise is 1000 rupees")
	assert.Equal(t, "upi", reconciler.event.Method)
}

func TestHandleCapturedFallsBackToTopupRecord(t *testing.T) {
	partnerID := uuid.New()
	reconciler := &stubReconciler{}
	topups := &stubTopups{topup: &models.TopupOrder{PartnerID: partnerID}}
	svc := newTestService(t, reconciler, topups)

	err := svc.HandleEvent(context.Background(), capturedEvent(""))
	require.NoError(t, err)

	assert.Equal(t, 1, topups.calls)
	assert.Equal(t, partnerID, reconciler.partnerID)
}

func TestHandleCapturedUnknownOrder(t *testing.T) {
	reconciler := &stubReconciler{}
	topups := &stubTopups{err: gorm.ErrRecordNotFound}
	svc := newTestService(t, reconciler, topups)

	err := svc.HandleEvent(context.Background(), capturedEvent(""))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
	assert.Equal(t, 0, reconciler.calls)
}

func TestHandleCapturedMalformedNotes(t *testing.T) {
	reconciler := &stubReconciler{}
	svc := newTestService(t, reconciler, &stubTopups{})

	err := svc.HandleEvent(context.Background(), capturedEvent("not-a-uuid"))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, 0, reconciler.calls)
}

func TestHandleCapturedMissingIdentifiers(t *testing.T) {
	reconciler := &stubReconciler{}
	svc := newTestService(t, reconciler, &stubTopups{})

	event := capturedEvent("")
	event.Payload.Payment.Entity.OrderID = ""

	err := svc.HandleEvent(context.Background(), event)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, 0, reconciler.calls)
}

func TestHandleFailedPaymentDoesNotTouchWallet(t *testing.T) {
	reconciler := &stubReconciler{}
	svc := newTestService(t, reconciler, &stubTopups{})

	event := capturedEvent(uuid.NewString())
	event.Event = EventPaymentFailed
	event.Payload.Payment.Entity.Status = "failed"

	require.NoError(t, svc.HandleEvent(context.Background(), event))
	assert.Equal(t, 0, reconciler.calls)
}

func TestHandleIgnoresUnknownEventTypes(t *testing.T) {
	reconciler := &stubReconciler{}
	svc := newTestService(t, reconciler, &stubTopups{})

	require.NoError(t, svc.HandleEvent(context.Background(), &Event{Event: "refund.created"}))
	assert.Equal(t, 0, reconciler.calls)

	err := svc.HandleEvent(context.Background(), nil)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestHandleCapturedPropagatesReconcileError(t *testing.T) {
	reconciler := &stubReconciler{err: pkgerrors.New(pkgerrors.CodeOwnershipMismatch, "payment does not belong to this partner")}
	svc := newTestService(t, reconciler, &stubTopups{})

	err := svc.HandleEvent(context.Background(), capturedEvent(uuid.NewString()))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeOwnershipMismatch))
}

type stubIdempotencyStore struct {
	data map[string]string
	err  error
}

func (s *stubIdempotencyStore) Get(_ context.Context, key string) (string, error) {
	return s.data[key], nil
}

func (s *stubIdempotencyStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = value.(string)
	return true, nil
}

func (s *stubIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "ss:idempotency:" + scope + ":" + id
}

func (s *stubIdempotencyStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func TestIdempotencyGuardSuppressesReplays(t *testing.T) {
	store := &stubIdempotencyStore{data: map[string]string{}}
	guard, err := NewIdempotencyGuard(store, time.Hour, "razorpay")
	require.NoError(t, err)
	ctx := context.Background()

	seen, err := guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, guard.Delete(ctx, "evt_1"))
	seen, err = guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen, "deleting the mark re-arms the event id")

	_, err = guard.CheckAndMark(ctx, "")
	assert.Error(t, err)
}
