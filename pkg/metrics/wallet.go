package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WalletMetrics records ledger activity for the wallet flows.
type WalletMetrics struct {
	credits           *prometheus.CounterVec
	debits            *prometheus.CounterVec
	duplicatesSkipped prometheus.Counter
	partialFailures   prometheus.Counter
	balanceRetries    prometheus.Counter
	reconcileDuration *prometheus.HistogramVec
}

// NewWalletMetrics registers the wallet metrics on the provided registerer.
func NewWalletMetrics(reg prometheus.Registerer) *WalletMetrics {
	if reg == nil {
		return &WalletMetrics{}
	}
	credits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_credits_total",
		Help: "Wallet credit attempts by outcome.",
	}, []string{"outcome"})
	debits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_debits_total",
		Help: "Wallet debit attempts by outcome.",
	}, []string{"outcome"})
	duplicatesSkipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wallet_duplicate_credits_suppressed_total",
		Help: "Credits skipped because the payment was already processed.",
	})
	partialFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wallet_partial_failures_total",
		Help: "Flows that left order and ledger state diverged.",
	})
	balanceRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wallet_balance_retries_total",
		Help: "Conditional balance updates retried after losing a race.",
	})
	reconcileDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wallet_reconcile_duration_seconds",
		Help:    "Duration of payment reconciliation in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"path"})
	reg.MustRegister(credits, debits, duplicatesSkipped, partialFailures, balanceRetries, reconcileDuration)
	return &WalletMetrics{
		credits:           credits,
		debits:            debits,
		duplicatesSkipped: duplicatesSkipped,
		partialFailures:   partialFailures,
		balanceRetries:    balanceRetries,
		reconcileDuration: reconcileDuration,
	}
}

// IncCredit increments the credit counter for the given outcome.
func (w *WalletMetrics) IncCredit(outcome string) {
	if w == nil || w.credits == nil {
		return
	}
	w.credits.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncDebit increments the debit counter for the given outcome.
func (w *WalletMetrics) IncDebit(outcome string) {
	if w == nil || w.debits == nil {
		return
	}
	w.debits.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncDuplicateSuppressed records an idempotent replay that was skipped.
func (w *WalletMetrics) IncDuplicateSuppressed() {
	if w == nil || w.duplicatesSkipped == nil {
		return
	}
	w.duplicatesSkipped.Inc()
}

// IncPartialFailure records a flow that needs manual reconciliation.
func (w *WalletMetrics) IncPartialFailure() {
	if w == nil || w.partialFailures == nil {
		return
	}
	w.partialFailures.Inc()
}

// IncBalanceRetry records a lost balance race that was retried.
func (w *WalletMetrics) IncBalanceRetry() {
	if w == nil || w.balanceRetries == nil {
		return
	}
	w.balanceRetries.Inc()
}

// ObserveReconcileDuration records the duration of a reconciliation attempt.
func (w *WalletMetrics) ObserveReconcileDuration(path string, duration time.Duration) {
	if w == nil || w.reconcileDuration == nil {
		return
	}
	w.reconcileDuration.WithLabelValues(normalizeLabel(path)).Observe(duration.Seconds())
}
