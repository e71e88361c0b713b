package trading

import (
	"context"
	"log/slog"
	"time"

	"github.com/cardexhq/cardex/cardex/logger"
)

// ExpiryStore is the sweep primitive the reconciler needs: a single
// conditional update flipping every overdue open trade to expired.
type ExpiryStore interface {
	ExpireOpen(ctx context.Context, now time.Time) (int64, error)
}

const (
	sweepTimeout = 30 * time.Second

	// defaultSweepInterval applies when no interval is configured.
	defaultSweepInterval = 90 * time.Second
)

// ExpiryReconciler handles timing and cleanup for trades. Expiry is lazy at
// the trade operations themselves (every transition re-checks expire_at),
// so the sweeper only exists to keep listings tidy; running it twice, or
// never, changes nothing about correctness.
type ExpiryReconciler struct {
	store       ExpiryStore
	sweepTicker *time.Ticker
	shutdown    chan struct{}

	now func() time.Time
}

// NewExpiryReconciler creates a new expiry reconciler sweeping at the given
// interval, or defaultSweepInterval when none is configured.
func NewExpiryReconciler(store ExpiryStore, interval time.Duration) *ExpiryReconciler {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &ExpiryReconciler{
		store:       store,
		sweepTicker: time.NewTicker(interval),
		shutdown:    make(chan struct{}),
		now:         time.Now,
	}
}

// Start begins the background sweep loop.
func (r *ExpiryReconciler) Start() {
	go r.startSweepTicker()
}

func (r *ExpiryReconciler) startSweepTicker() {
	defer r.sweepTicker.Stop()

	for {
		select {
		case <-r.sweepTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)

			if _, err := r.Sweep(ctx); err != nil {
				logger.LogError("Failed to sweep expired trades", err)
			}

			cancel()
		case <-r.shutdown:
			return
		}
	}
}

// Sweep transitions every open trade whose expiry has passed to expired and
// returns how many were flipped. The store-side status guard makes the
// sweep idempotent: a trade already completed, cancelled or expired by a
// concurrent operation is simply not matched.
func (r *ExpiryReconciler) Sweep(ctx context.Context) (int64, error) {
	expired, err := r.store.ExpireOpen(ctx, r.now())
	if err != nil {
		return 0, err
	}

	if expired > 0 {
		logger.LogSystem("Expired trades swept", slog.Int64("count", expired))
	}
	return expired, nil
}

// Shutdown gracefully stops the sweep loop.
func (r *ExpiryReconciler) Shutdown() {
	close(r.shutdown)
	r.sweepTicker.Stop()
	logger.LogSystem("Trade expiry reconciler shutdown completed")
}
