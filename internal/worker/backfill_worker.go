package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/personaops/backend/internal/domain"
	"github.com/personaops/backend/internal/observability/metrics"
)

// BackfillWorker periodically links analyzer outputs that were saved before
// their ICP existed.
type BackfillWorker struct {
	outputs  domain.AnalyzerOutputRepository
	logger   *slog.Logger
	interval time.Duration
}

// NewBackfillWorker creates a new backfill worker
func NewBackfillWorker(outputs domain.AnalyzerOutputRepository, logger *slog.Logger, interval time.Duration) *BackfillWorker {
	return &BackfillWorker{
		outputs:  outputs,
		logger:   logger,
		interval: interval,
	}
}

// Start runs the backfill loop until ctx is cancelled.
func (w *BackfillWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("backfill worker started", slog.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("backfill worker stopped")
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx, "worker"); err != nil && ctx.Err() == nil {
				w.logger.Error("icp backfill failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce performs a single backfill pass.
func (w *BackfillWorker) RunOnce(ctx context.Context, source string) (int64, error) {
	n, err := w.outputs.BackfillICPIDs(ctx)
	if err != nil {
		return 0, err
	}
	metrics.ObserveBackfill(source, n)
	if n > 0 {
		w.logger.Info("linked analyzer outputs to icps", slog.Int64("rows", n))
	}
	return n, nil
}
