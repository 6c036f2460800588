// Package orderfeed maintains a periodically refreshed snapshot of
// unassigned orders for the partner app's job board. It is an explicit
// component with an injected lifecycle; the ledger core never reads from it.
package orderfeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sewasetu/sewasetu-backend/pkg/config"
	"github.com/sewasetu/sewasetu-backend/pkg/db/models"
	"github.com/sewasetu/sewasetu-backend/pkg/logger"
	"github.com/sewasetu/sewasetu-backend/pkg/metrics"
)

const jobName = "order-feed-refresh"

type orderLister interface {
	ListUnassigned(ctx context.Context, limit int) ([]models.Order, error)
}

// FeedParams configure the order feed.
type FeedParams struct {
	Orders  orderLister
	Logger  *logger.Logger
	Metrics *metrics.CronJobMetrics
	Config  config.OrderFeedConfig
}

// Feed polls the order store on a fixed cadence and serves the latest
// snapshot. Snapshot reads never block on a refresh.
type Feed struct {
	orders   orderLister
	logg     *logger.Logger
	metrics  *metrics.CronJobMetrics
	interval time.Duration
	size     int

	mu          sync.RWMutex
	snapshot    []models.Order
	refreshedAt time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewFeed builds the feed with its dependencies.
func NewFeed(params FeedParams) (*Feed, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("order lister required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	interval := params.Config.PollInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	size := params.Config.SnapshotSize
	if size <= 0 {
		size = 200
	}
	return &Feed{
		orders:   params.Orders,
		logg:     params.Logger,
		metrics:  params.Metrics,
		interval: interval,
		size:     size,
		done:     make(chan struct{}),
	}, nil
}

// Start performs an initial refresh and begins the polling loop. It is safe
// to call at most once; later calls are no-ops.
func (f *Feed) Start(ctx context.Context) error {
	var startErr error
	f.startOnce.Do(func() {
		if err := f.Refresh(ctx); err != nil {
			f.logg.Error(ctx, "initial order feed refresh failed", err)
		}
		loopCtx, cancel := context.WithCancel(ctx)
		f.cancel = cancel
		go f.loop(loopCtx)
	})
	return startErr
}

// Stop cancels the polling loop and waits for it to exit.
func (f *Feed) Stop() {
	f.stopOnce.Do(func() {
		if f.cancel == nil {
			close(f.done)
			return
		}
		f.cancel()
		<-f.done
	})
}

func (f *Feed) loop(ctx context.Context) {
	defer close(f.done)
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.logg.Info(ctx, "order feed stopped")
			return
		case <-ticker.C:
			if err := f.Refresh(ctx); err != nil {
				f.logg.Error(ctx, "order feed refresh failed", err)
			}
		}
	}
}

// Refresh replaces the snapshot with the current unassigned orders.
func (f *Feed) Refresh(ctx context.Context) error {
	started := time.Now()
	orders, err := f.orders.ListUnassigned(ctx, f.size)
	if f.metrics != nil {
		f.metrics.ObserveDuration(jobName, time.Since(started))
	}
	if err != nil {
		if f.metrics != nil {
			f.metrics.IncFailure(jobName)
		}
		return err
	}

	f.mu.Lock()
	f.snapshot = orders
	f.refreshedAt = time.Now().UTC()
	f.mu.Unlock()

	if f.metrics != nil {
		f.metrics.IncSuccess(jobName)
	}
	return nil
}

// Snapshot returns the most recent unassigned-order view and when it was
// taken. The returned slice is a copy.
func (f *Feed) Snapshot() ([]models.Order, time.Time) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]models.Order, len(f.snapshot))
	copy(out, f.snapshot)
	return out, f.refreshedAt
}
