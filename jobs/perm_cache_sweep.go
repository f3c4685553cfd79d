package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/havenlist/havenlist/internal/jobs"
	"github.com/havenlist/havenlist/internal/rbac"
)

// PermCacheSweepJob periodically clears the permission cache. Invalidation is
// already triggered by every committed role/permission mutation; the sweep is
// the safety net against a missed call site, bounding staleness to one sweep
// interval.
type PermCacheSweepJob struct {
	Cache   rbac.Cache
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewPermCacheSweepJob initialises the sweep handler.
func NewPermCacheSweepJob(cache rbac.Cache, logger *slog.Logger, metrics *jobmetrics.Metrics) *PermCacheSweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &PermCacheSweepJob{Cache: cache, Logger: logger, Metrics: metrics}
}

// Handle executes the sweep.
func (j *PermCacheSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Cache == nil {
		return errors.New("perm cache sweep: handler not configured")
	}
	var payload PermCacheSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskPermCacheSweep)
	err := j.Cache.InvalidateAll(ctx)
	if err != nil {
		j.Logger.Error("permission cache sweep failed",
			slog.String("reason", payload.Reason), slog.Any("error", err))
	} else {
		j.Logger.Info("permission cache swept", slog.String("reason", payload.Reason))
	}
	return tracker.End(err)
}
