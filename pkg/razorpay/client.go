package razorpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sewasetu/sewasetu-backend/pkg/config"
	"github.com/sewasetu/sewasetu-backend/pkg/enums"
	pkgerrors "github.com/sewasetu/sewasetu-backend/pkg/errors"
	"github.com/sewasetu/sewasetu-backend/pkg/logger"
)

var (
	errKeyIDRequired         = errors.New("razorpay key id is required")
	errKeySecretRequired     = errors.New("razorpay key secret is required")
	errWebhookSecretRequired = errors.New("razorpay webhook secret is required")
	errLoggerRequired        = errors.New("razorpay logger is required")
)

// Client wraps the Razorpay REST API with centralized auth, timeouts, logging,
// and error mapping. All amounts on the wire are in paise.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	keyID         string
	keySecret     string
	webhookSecret string
	logger        *logger.Logger
}

// Order is a Razorpay order as returned by the orders API.
type Order struct {
	ID         string            `json:"id"`
	Amount     int64             `json:"amount"`
	AmountPaid int64             `json:"amount_paid"`
	Currency   string            `json:"currency"`
	Receipt    string            `json:"receipt"`
	Status     string            `json:"status"`
	Notes      map[string]string `json:"notes"`
	CreatedAt  int64             `json:"created_at"`
}

// Payment is a Razorpay payment attached to an order.
type Payment struct {
	ID          string            `json:"id"`
	OrderID     string            `json:"order_id"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Status      string            `json:"status"`
	Method      string            `json:"method"`
	ErrorCode   string            `json:"error_code"`
	ErrorReason string            `json:"error_reason"`
	Notes       map[string]string `json:"notes"`
	CreatedAt   int64             `json:"created_at"`
}

// OrderCreateParams describes a server-side order creation request.
type OrderCreateParams struct {
	AmountPaise int64
	Currency    string
	Receipt     string
	Notes       map[string]string
}

type paymentCollection struct {
	Count int       `json:"count"`
	Items []Payment `json:"items"`
}

type apiErrorBody struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// NewClient initializes the Razorpay wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.RazorpayConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	keyID := strings.TrimSpace(cfg.KeyID)
	if keyID == "" {
		return nil, errKeyIDRequired
	}
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if keySecret == "" {
		return nil, errKeySecretRequired
	}
	webhookSecret := strings.TrimSpace(cfg.WebhookSecret)
	if webhookSecret == "" {
		return nil, errWebhookSecretRequired
	}

	c := &Client{
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		logger:        logg,
	}

	logg.Info(ctx, "razorpay client initialized")
	return c, nil
}

// FetchOrder retrieves a single order by its gateway id.
func (c *Client) FetchOrder(ctx context.Context, gatewayOrderID string) (*Order, error) {
	var order Order
	path := fmt.Sprintf("/v1/orders/%s", gatewayOrderID)
	if err := c.do(ctx, http.MethodGet, path, nil, &order); err != nil {
		return nil, err
	}
	c.log(ctx, "fetch_order", map[string]any{
		"gateway_order_id": order.ID,
		"status":           order.Status,
	})
	return &order, nil
}

// FetchPaymentsForOrder retrieves all payments recorded against an order.
func (c *Client) FetchPaymentsForOrder(ctx context.Context, gatewayOrderID string) ([]Payment, error) {
	var collection paymentCollection
	path := fmt.Sprintf("/v1/orders/%s/payments", gatewayOrderID)
	if err := c.do(ctx, http.MethodGet, path, nil, &collection); err != nil {
		return nil, err
	}
	c.log(ctx, "fetch_payments", map[string]any{
		"gateway_order_id": gatewayOrderID,
		"count":            collection.Count,
	})
	return collection.Items, nil
}

// CreateOrder creates a gateway order for a wallet top-up.
func (c *Client) CreateOrder(ctx context.Context, params OrderCreateParams) (*Order, error) {
	if params.AmountPaise <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "top-up amount must be positive")
	}
	currency := params.Currency
	if currency == "" {
		currency = "INR"
	}
	body := map[string]any{
		"amount":   params.AmountPaise,
		"currency": currency,
		"receipt":  params.Receipt,
	}
	if len(params.Notes) > 0 {
		body["notes"] = params.Notes
	}

	var order Order
	if err := c.do(ctx, http.MethodPost, "/v1/orders", body, &order); err != nil {
		return nil, err
	}
	c.log(ctx, "create_order", map[string]any{
		"gateway_order_id": order.ID,
		"amount_paise":     order.Amount,
	})
	return &order, nil
}

// VerifyWebhookSignature checks the X-Razorpay-Signature HMAC over the raw body.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature)))
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding razorpay request")
		}
		reader = strings.NewReader(string(raw))
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building razorpay request")
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "razorpay request timed out")
		}
		return pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "razorpay request failed")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, err, "reading razorpay response")
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return c.mapAPIError(resp.StatusCode, payload)
	}

	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding razorpay response")
		}
	}
	return nil
}

func (c *Client) mapAPIError(status int, payload []byte) error {
	var parsed apiErrorBody
	description := ""
	if err := json.Unmarshal(payload, &parsed); err == nil {
		description = parsed.Error.Description
	}
	if description == "" {
		description = http.StatusText(status)
	}
	cause := fmt.Errorf("razorpay api status %d: %s", status, description)

	switch {
	case status >= http.StatusInternalServerError, status == http.StatusTooManyRequests:
		return pkgerrors.Wrap(pkgerrors.CodeGatewayUnavailable, cause, "razorpay unavailable")
	case status == http.StatusNotFound:
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, cause, "razorpay entity not found")
	case status == http.StatusUnauthorized:
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, cause, "razorpay credentials rejected")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "razorpay request rejected")
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (c *Client) log(ctx context.Context, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{"operation": op}
	for k, v := range fields {
		logFields[k] = v
	}
	c.logger.Info(c.logger.WithFields(ctx, logFields), fmt.Sprintf("razorpay %s", op))
}

// NormalizedStatus collapses the gateway's payment lifecycle into the states
// the ledger cares about. Authorized-but-uncaptured money is still pending.
func (p Payment) NormalizedStatus() enums.GatewayPaymentStatus {
	switch p.Status {
	case "captured":
		return enums.GatewayPaymentStatusCaptured
	case "failed":
		return enums.GatewayPaymentStatusFailed
	default:
		return enums.GatewayPaymentStatusCreated
	}
}

// AmountRupees converts the wire amount from paise to rupees exactly.
func (p Payment) AmountRupees() decimal.Decimal {
	return RupeesFromPaise(p.Amount)
}

// RupeesFromPaise converts gateway minor units to rupees with two exact
// decimal places. No rounding is involved, 100 paise is 1.00 rupee.
func RupeesFromPaise(paise int64) decimal.Decimal {
	return decimal.New(paise, -2)
}
