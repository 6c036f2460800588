// Package razorpaywebhook turns verified Razorpay webhook deliveries into
// wallet credit reconciliations.
package razorpaywebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sewasetu/sewasetu-backend/internal/wallet"
	"github.com/sewasetu/sewasetu-backend/pkg/db/models"
	pkgerrors "github.com/sewasetu/sewasetu-backend/pkg/errors"
	"github.com/sewasetu/sewasetu-backend/pkg/logger"
	"github.com/sewasetu/sewasetu-backend/pkg/razorpay"
)

// Event names delivered by Razorpay that this service reacts to. Everything
// else is acknowledged and dropped.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
)

// Event is the webhook envelope Razorpay posts. The payment entity reuses
// the gateway adapter's wire type.
type Event struct {
	Event     string  `json:"event"`
	AccountID string  `json:"account_id"`
	Payload   Payload `json:"payload"`
	CreatedAt int64   `json:"created_at"`
}

type Payload struct {
	Payment PaymentWrapper `json:"payment"`
}

type PaymentWrapper struct {
	Entity razorpay.Payment `json:"entity"`
}

// ParseEvent decodes a webhook body. Signature verification happens before
// this, on the raw bytes.
func ParseEvent(body []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode webhook body")
	}
	if event.Event == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook event name missing")
	}
	return &event, nil
}

type walletReconciler interface {
	ReconcileEvent(ctx context.Context, partnerID uuid.UUID, event wallet.PaymentEvent) (*wallet.ReconcileResult, error)
}

type topupFinder interface {
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.TopupOrder, error)
}

type ServiceParams struct {
	Wallet walletReconciler
	Topups topupFinder
	Logger *logger.Logger
}

type Service struct {
	wallet walletReconciler
	topups topupFinder
	logg   *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Wallet == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "wallet service required")
	}
	if params.Topups == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "topup repository required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		wallet: params.Wallet,
		topups: params.Topups,
		logg:   params.Logger,
	}, nil
}

// HandleEvent routes a decoded webhook event. Unrecognized event types are
// acknowledged without action so the gateway does not retry them.
func (s *Service) HandleEvent(ctx context.Context, event *Event) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "webhook event required")
	}

	switch event.Event {
	case EventPaymentCaptured:
		return s.handleCaptured(ctx, event.Payload.Payment.Entity)
	case EventPaymentFailed:
		entity := event.Payload.Payment.Entity
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"gateway_payment_id": entity.ID,
			"gateway_order_id":   entity.OrderID,
			"error_code":         entity.ErrorCode,
			"error_reason":       entity.ErrorReason,
		}), "payment failed at gateway")
		return nil
	default:
		return nil
	}
}

func (s *Service) handleCaptured(ctx context.Context, entity razorpay.Payment) error {
	if entity.ID == "" || entity.OrderID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment entity missing identifiers")
	}

	partnerID, err := s.resolvePartner(ctx, entity)
	if err != nil {
		return err
	}

	result, err := s.wallet.ReconcileEvent(ctx, partnerID, wallet.PaymentEvent{
		GatewayOrderID:   entity.OrderID,
		GatewayPaymentID: entity.ID,
		Amount:           entity.AmountRupees(),
		Status:           entity.NormalizedStatus(),
		Method:           entity.Method,
	})
	if err != nil {
		return err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"partner_id":         partnerID,
		"gateway_payment_id": entity.ID,
		"gateway_order_id":   entity.OrderID,
		"status":             result.Status,
		"already_processed":  result.AlreadyProcessed,
	}), "webhook credit reconciled")
	return nil
}

// resolvePartner determines which wallet the payment claims to belong to.
// The notes hint is preferred; the top-up record is the fallback for
// payments created before notes were stamped. Either way the wallet service
// re-checks the claim against the stored top-up order.
func (s *Service) resolvePartner(ctx context.Context, entity razorpay.Payment) (uuid.UUID, error) {
	if hint, ok := entity.Notes["partner_id"]; ok {
		partnerID, err := uuid.Parse(hint)
		if err != nil {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("malformed partner id in payment notes: %q", hint))
		}
		return partnerID, nil
	}

	topup, err := s.topups.FindByGatewayOrderID(ctx, entity.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, "no top-up order matches the gateway order")
		}
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load top-up order")
	}
	return topup.PartnerID, nil
}
