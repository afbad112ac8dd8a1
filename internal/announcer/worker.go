package announcer

import (
	"context"
	"log/slog"
	"time"

	"flowgate/internal/platform/config"
	"flowgate/internal/platform/metrics"
	"flowgate/pkg/platform/circuit"
)

// Worker republishes outbox entries that the post-commit flush could not
// deliver. Entries younger than the grace period are left to that flush.
type Worker struct {
	announcer *Announcer
	outbox    OutboxStore
	breaker   *circuit.Breaker
	interval  time.Duration
	grace     time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewWorker(a *Announcer, cfg config.OutboxConfig, logger *slog.Logger, m *metrics.Metrics) *Worker {
	return &Worker{
		announcer: a,
		outbox:    a.outbox,
		breaker: circuit.New("announcer-outbox",
			circuit.WithFailureThreshold(cfg.FailureThreshold),
			circuit.WithCooldown(cfg.Cooldown),
		),
		interval:  cfg.PollInterval,
		grace:     cfg.GracePeriod,
		batchSize: cfg.BatchSize,
		logger:    logger,
		metrics:   m,
	}
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch makes one pass over the pending entries and returns how many
// were published.
func (w *Worker) ProcessBatch(ctx context.Context) int {
	if pending, err := w.outbox.CountPending(ctx); err == nil && w.metrics != nil {
		w.metrics.OutboxPending.Set(float64(pending))
	}
	if !w.breaker.Allow() {
		return 0
	}

	entries, err := w.outbox.Pending(ctx, w.announcer.now().Add(-w.grace), w.batchSize)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to load pending outbox entries", "error", err)
		return 0
	}

	published := 0
	for _, e := range entries {
		if err := w.announcer.publish(ctx, e); err != nil {
			if _, change := w.breaker.RecordFailure(); change.Opened {
				w.logger.WarnContext(ctx, "outbox circuit opened", "breaker", w.breaker.Name())
			}
			// Stop this pass; the broker is likely down for the rest too.
			return published
		}
		if _, change := w.breaker.RecordSuccess(); change.Closed {
			w.logger.InfoContext(ctx, "outbox circuit closed", "breaker", w.breaker.Name())
		}
		published++
	}
	return published
}
