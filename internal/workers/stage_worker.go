package workers

import (
	"context"

	"go.uber.org/zap"

	"github.com/selivandex/crypto-index/internal/adapters/redis"
	"github.com/selivandex/crypto-index/pkg/logger"
	"github.com/selivandex/crypto-index/pkg/models"
)

// Stage is one batch pipeline engine. Every stage backfills idempotently,
// so re-running after a partial failure is always safe.
type Stage interface {
	Run(ctx context.Context) (*models.RunSummary, error)
}

// StageWorker adapts a Stage to pkg/worker.Worker, guarding each pass with
// an optional distributed lock so concurrent deployments never run the same
// stage twice.
type StageWorker struct {
	name  string
	stage Stage
	locks *redis.Client
}

// NewStageWorker creates new stage worker. locks may be nil when no Redis
// is configured; the stage then runs unguarded.
func NewStageWorker(name string, stage Stage, locks *redis.Client) *StageWorker {
	return &StageWorker{
		name:  name,
		stage: stage,
		locks: locks,
	}
}

// Name returns worker name
func (w *StageWorker) Name() string {
	return w.name
}

// Run executes one pass of the stage under the distributed lock.
// Called periodically by pkg/worker.PeriodicWorker.
func (w *StageWorker) Run(ctx context.Context) error {
	if w.locks != nil {
		lock := w.locks.RunLock(w.name)
		acquired, err := lock.TryAcquire(ctx)
		if err != nil {
			return err
		}
		if !acquired {
			logger.Debug("stage skipped, lock held elsewhere",
				zap.String("stage", w.name),
			)
			return nil
		}
		defer lock.Release(ctx)
	}

	summary, err := w.stage.Run(ctx)
	if err != nil {
		return err
	}

	if summary.Failed > 0 {
		logger.Warn("stage finished with failures", summary.Fields()...)
	}
	return nil
}
