package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPermCacheSweep is the task type for the periodic permission cache
	// sweep.
	TaskPermCacheSweep = "perm:cache_sweep"
)

// PermCacheSweepPayload configures one sweep run.
type PermCacheSweepPayload struct {
	// Reason is recorded in logs; cron runs use "scheduled".
	Reason string `json:"reason"`
}

// NewPermCacheSweepTask constructs an Asynq task.
func NewPermCacheSweepTask(payload PermCacheSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPermCacheSweep, data), nil
}
