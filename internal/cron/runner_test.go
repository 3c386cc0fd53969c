package cron

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunner_StartStop(t *testing.T) {
	r := NewRunner(Config{}, zap.NewNop())

	require.NoError(t, r.Start())
	assert.True(t, r.IsRunning())
	assert.Error(t, r.Start(), "second start fails")

	r.Stop()
	assert.False(t, r.IsRunning())
	r.Stop()
}

func TestRunner_AddJob_InvalidSpec(t *testing.T) {
	r := NewRunner(Config{}, nil)

	_, err := r.AddJob("bad", "not a schedule", func(context.Context) {})
	assert.Error(t, err)
	assert.Empty(t, r.ListJobs())
}

func TestRunner_ListAndRemove(t *testing.T) {
	r := NewRunner(Config{}, nil)

	a, err := r.AddJob("a", "@every 5m", func(context.Context) {})
	require.NoError(t, err)
	b, err := r.AddJob("b", "0 9 * * *", func(context.Context) {})
	require.NoError(t, err)

	jobs := r.ListJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].Name)
	assert.Equal(t, "b", jobs[1].Name)

	r.RemoveJob(a.ID)
	jobs = r.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, b.ID, jobs[0].ID)
}

func TestRunner_RunsJob(t *testing.T) {
	r := NewRunner(Config{Timeout: time.Second}, nil)

	var runs atomic.Int32
	_, err := r.AddJob("tick", "@every 1s", func(ctx context.Context) {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		runs.Add(1)
	})
	require.NoError(t, err)

	require.NoError(t, r.Start())
	defer r.Stop()

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)

	jobs := r.ListJobs()
	require.Len(t, jobs, 1)
	assert.GreaterOrEqual(t, jobs[0].RunCount, 1)
	assert.NotNil(t, jobs[0].LastRunAt)
	assert.NotNil(t, jobs[0].NextRunAt)
}
