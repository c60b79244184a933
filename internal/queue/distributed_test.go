package queue

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cursor-prompt/prompt-optimizer/internal/domain/optimization"
	"github.com/cursor-prompt/prompt-optimizer/internal/domain/template"
)

// An unroutable broker address forces the remote enqueue to fail fast.
func unreachableBroker() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestDistributedFallsBackToLocal(t *testing.T) {
	runner := newFakeRunner()
	local := New(runner, testConfig(), zap.NewNop())
	local.Start()
	defer local.Stop()

	dist := NewDistributed(unreachableBroker(), local, "test", zap.NewNop())

	id, err := dist.AddJob(context.Background(), "tmpl-1",
		template.Template{Name: "t", Version: "1"}, optimization.Request{}, AddOptions{})
	require.NoError(t, err, "broker failure must fall back to the local queue")

	job := waitForStatus(t, local, id, optimization.JobCompleted)
	assert.Equal(t, "tmpl-1", job.TemplateID)
}

func TestDistributedCancelFallsBackToLocal(t *testing.T) {
	runner := newFakeRunner()
	runner.started = make(chan string, 4)
	gate := make(chan struct{})
	runner.gate = gate

	local := New(runner, testConfig(), zap.NewNop())
	local.Start()
	defer local.Stop()

	dist := NewDistributed(unreachableBroker(), local, "test", zap.NewNop())

	// Occupy the worker, then queue a second job locally.
	_, err := dist.AddJob(context.Background(), "blocker",
		template.Template{Name: "b", Version: "1"}, optimization.Request{}, AddOptions{})
	require.NoError(t, err)
	<-runner.started

	id, err := dist.AddJob(context.Background(), "victim",
		template.Template{Name: "v", Version: "1"}, optimization.Request{}, AddOptions{})
	require.NoError(t, err)

	require.NoError(t, dist.CancelJob(context.Background(), id))
	job, err := local.GetJob(id)
	require.NoError(t, err)
	assert.Equal(t, optimization.JobCancelled, job.Status)

	close(gate)
}

func TestRemotePriorityMapping(t *testing.T) {
	assert.Equal(t, float64(10), remotePriority[optimization.PriorityUrgent])
	assert.Equal(t, float64(5), remotePriority[optimization.PriorityHigh])
	assert.Equal(t, float64(0), remotePriority[optimization.PriorityNormal])
	assert.Equal(t, float64(-5), remotePriority[optimization.PriorityLow])
}
