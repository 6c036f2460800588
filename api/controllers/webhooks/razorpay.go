package webhooks

import (
	"io"
	"net/http"

	"github.com/sewasetu/sewasetu-backend/api/responses"
	razorpaywebhook "github.com/sewasetu/sewasetu-backend/internal/webhooks/razorpay"
	pkgerrors "github.com/sewasetu/sewasetu-backend/pkg/errors"
	"github.com/sewasetu/sewasetu-backend/pkg/logger"
)

const maxWebhookBodyBytes = 1 << 20

type signatureVerifier interface {
	VerifyWebhookSignature(body []byte, signature string) bool
}

// RazorpayWebhook verifies, dedupes, and dispatches gateway payment events.
// The gateway retries on any non-2xx, so processing failures release the
// dedupe mark before reporting the error.
func RazorpayWebhook(svc *razorpaywebhook.Service, guard *razorpaywebhook.IdempotencyGuard, verifier signatureVerifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read webhook body"))
			return
		}

		signature := r.Header.Get("X-Razorpay-Signature")
		if !verifier.VerifyWebhookSignature(body, signature) {
			logg.Warn(ctx, "razorpay webhook signature rejected")
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		event, err := razorpaywebhook.ParseEvent(body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		eventID := r.Header.Get("X-Razorpay-Event-Id")
		if eventID != "" {
			ctx = logg.WithField(ctx, "webhook_event_id", eventID)
			fresh, err := guard.CheckAndMark(ctx, eventID)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "webhook dedupe check"))
				return
			}
			if !fresh {
				logg.Info(ctx, "razorpay webhook replay suppressed")
				responses.WriteSuccess(w, map[string]string{"status": "duplicate"})
				return
			}
		}

		if err := svc.HandleEvent(ctx, event); err != nil {
			if eventID != "" {
				if delErr := guard.Delete(ctx, eventID); delErr != nil {
					logg.Error(ctx, "release webhook dedupe mark", delErr)
				}
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "processed"})
	}
}
