package jobs

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/havenlist/havenlist/internal/rbac"
	_ "github.com/havenlist/havenlist/testing"
)

func TestPermCacheSweepClearsEveryEntry(t *testing.T) {
	cache := rbac.NewMemoryCache(0)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, cache.Put(ctx, uuid.New(), rbac.NewCapabilitySet("dashboard:view")))
	}
	require.Equal(t, 3, cache.Len())

	task, err := NewPermCacheSweepTask(PermCacheSweepPayload{Reason: "scheduled"})
	require.NoError(t, err)

	job := NewPermCacheSweepJob(cache, nil, nil)
	require.NoError(t, job.Handle(ctx, task))
	require.Equal(t, 0, cache.Len())
}

func TestPermCacheSweepSkipsRetryOnBadPayload(t *testing.T) {
	job := NewPermCacheSweepJob(rbac.NewMemoryCache(0), nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskPermCacheSweep, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
