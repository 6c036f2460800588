// Package alerts publishes operator-visible incidents to a Pub/Sub topic.
// Ledger divergence is never retried silently; it lands here so the ops
// rotation can reconcile by hand.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/sewasetu/sewasetu-backend/pkg/logger"
)

const (
	KindPartialFailure = "wallet.partial_failure"
	KindCreditFailed   = "wallet.credit_failed"

	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// Alert is the payload delivered to the operator channel.
type Alert struct {
	Kind           string         `json:"kind"`
	Severity       string         `json:"severity"`
	Message        string         `json:"message"`
	OrderID        string         `json:"order_id,omitempty"`
	PartnerID      string         `json:"partner_id,omitempty"`
	TransactionID  string         `json:"transaction_id,omitempty"`
	GatewayOrderID string         `json:"gateway_order_id,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

// Notifier is the surface the wallet flows depend on.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", fmt.Errorf("publish result unavailable")
	}
	return r.PublishResult.Get(ctx)
}

// PubSubNotifier publishes alerts to the configured topic and blocks until
// the broker acknowledges, so a failed publish is visible to the caller.
type PubSubNotifier struct {
	publisher publisher
	logger    *logger.Logger
}

// NewPubSubNotifier wraps a topic publisher handle.
func NewPubSubNotifier(pub *gcppubsub.Publisher, logg *logger.Logger) (*PubSubNotifier, error) {
	if pub == nil {
		return nil, fmt.Errorf("alerts publisher is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("alerts logger is required")
	}
	return &PubSubNotifier{publisher: &gcpPublisher{Publisher: pub}, logger: logg}, nil
}

func (n *PubSubNotifier) Notify(ctx context.Context, alert Alert) error {
	if alert.OccurredAt.IsZero() {
		alert.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encoding alert: %w", err)
	}

	result := n.publisher.Publish(ctx, &gcppubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"kind":     alert.Kind,
			"severity": alert.Severity,
		},
	})
	if result == nil {
		return fmt.Errorf("alerts publisher not initialized")
	}
	if _, err := result.Get(ctx); err != nil {
		n.logger.Error(ctx, "publishing operator alert failed", err)
		return fmt.Errorf("publishing alert: %w", err)
	}

	n.logger.Info(n.logger.WithFields(ctx, map[string]any{
		"alert_kind": alert.Kind,
		"order_id":   alert.OrderID,
		"partner_id": alert.PartnerID,
	}), "operator alert published")
	return nil
}

// LogNotifier writes alerts to the structured log only. Used when the
// Pub/Sub channel is disabled, dev and test environments mostly.
type LogNotifier struct {
	logger *logger.Logger
}

func NewLogNotifier(logg *logger.Logger) *LogNotifier {
	return &LogNotifier{logger: logg}
}

func (n *LogNotifier) Notify(ctx context.Context, alert Alert) error {
	if n == nil || n.logger == nil {
		return nil
	}
	ctx = n.logger.WithFields(ctx, map[string]any{
		"alert_kind":       alert.Kind,
		"alert_severity":   alert.Severity,
		"order_id":         alert.OrderID,
		"partner_id":       alert.PartnerID,
		"transaction_id":   alert.TransactionID,
		"gateway_order_id": alert.GatewayOrderID,
	})
	n.logger.Error(ctx, fmt.Sprintf("operator alert: %s", alert.Message), nil)
	return nil
}
