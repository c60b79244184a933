package queue

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cursor-prompt/prompt-optimizer/internal/domain/optimization"
	"github.com/cursor-prompt/prompt-optimizer/internal/domain/shared"
	"github.com/cursor-prompt/prompt-optimizer/internal/domain/template"
	"github.com/cursor-prompt/prompt-optimizer/internal/pipeline"
	apperrors "github.com/cursor-prompt/prompt-optimizer/pkg/errors"
)

// fakeRunner drives the queue with scripted outcomes.
type fakeRunner struct {
	mu      sync.Mutex
	outcome func(templateID string, attempt int) pipeline.Outcome
	gate    chan struct{} // when non-nil, Run blocks until closed/received
	started chan string   // receives templateID when Run begins
	calls   map[string]int
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{calls: make(map[string]int)}
}

func (f *fakeRunner) Run(ctx context.Context, templateID string, tmpl template.Template, req optimization.Request) pipeline.Outcome {
	f.mu.Lock()
	f.calls[templateID]++
	attempt := f.calls[templateID]
	gate := f.gate
	f.mu.Unlock()

	if f.started != nil {
		f.started <- templateID
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return pipeline.Outcome{Success: false, Err: ctx.Err()}
		}
	}
	if f.outcome != nil {
		return f.outcome(templateID, attempt)
	}
	return pipeline.Outcome{
		Success: true,
		Result:  optimization.Result{OptimizedPrompt: "optimized " + templateID, Status: optimization.StatusCompleted},
	}
}

func success() pipeline.Outcome {
	return pipeline.Outcome{Success: true, Result: optimization.Result{OptimizedPrompt: "ok", Status: optimization.StatusCompleted}}
}

func transientFailure() pipeline.Outcome {
	return pipeline.Outcome{Success: false, Err: apperrors.NewBackendUnreachableError(nil)}
}

func permanentFailure() pipeline.Outcome {
	return pipeline.Outcome{Success: false, Err: apperrors.NewValidationError("bad template")}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxConcurrency = 1
	cfg.JobTimeout = 5 * time.Second
	cfg.RetryDelay = 10 * time.Millisecond
	cfg.CleanupInterval = time.Hour
	return cfg
}

func waitForStatus(t *testing.T, q *Queue, id string, want optimization.JobStatus) optimization.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := q.GetJob(id)
		require.NoError(t, err)
		if job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := q.GetJob(id)
	t.Fatalf("job %s never reached %s (stuck at %s)", id, want, job.Status)
	return optimization.Job{}
}

func TestJobCompletes(t *testing.T) {
	runner := newFakeRunner()
	q := New(runner, testConfig(), zap.NewNop())
	q.Start()
	defer q.Stop()

	id, err := q.AddJob("tmpl-1", template.Template{Name: "t", Version: "1"}, optimization.Request{}, AddOptions{})
	require.NoError(t, err)

	job := waitForStatus(t, q, id, optimization.JobCompleted)
	assert.Equal(t, 100, job.Progress)
	assert.NotNil(t, job.Result)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.CompletedAt)
	assert.Equal(t, "optimized tmpl-1", job.Result.OptimizedPrompt)
}

func TestPriorityOrdering(t *testing.T) {
	runner := newFakeRunner()
	runner.started = make(chan string, 16)
	gate := make(chan struct{})
	runner.gate = gate

	q := New(runner, testConfig(), zap.NewNop())
	q.Start()
	defer q.Stop()

	// Occupy the single worker.
	_, err := q.AddJob("blocker", template.Template{Name: "b", Version: "1"}, optimization.Request{}, AddOptions{})
	require.NoError(t, err)
	require.Equal(t, "blocker", <-runner.started)

	// Queue three normals, then an urgent while the worker is busy.
	for _, id := range []string{"n1", "n2", "n3"} {
		_, err := q.AddJob(id, template.Template{Name: id, Version: "1"}, optimization.Request{}, AddOptions{})
		require.NoError(t, err)
	}
	_, err = q.AddJob("u1", template.Template{Name: "u1", Version: "1"}, optimization.Request{},
		AddOptions{Priority: optimization.PriorityUrgent})
	require.NoError(t, err)

	close(gate)

	order := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		order = append(order, <-runner.started)
	}
	assert.Equal(t, []string{"u1", "n1", "n2", "n3"}, order)
}

func TestTransientErrorRetriesThenSucceeds(t *testing.T) {
	runner := newFakeRunner()
	runner.outcome = func(templateID string, attempt int) pipeline.Outcome {
		if attempt <= 2 {
			return transientFailure()
		}
		return success()
	}
	q := New(runner, testConfig(), zap.NewNop())
	q.Start()
	defer q.Stop()

	retries := 5
	id, err := q.AddJob("flaky", template.Template{Name: "f", Version: "1"}, optimization.Request{},
		AddOptions{MaxRetries: &retries})
	require.NoError(t, err)

	job := waitForStatus(t, q, id, optimization.JobCompleted)
	// retryCount equals the number of failed attempts before success.
	assert.Equal(t, 2, job.RetryCount)
}

func TestTransientErrorExhaustsRetries(t *testing.T) {
	runner := newFakeRunner()
	runner.outcome = func(string, int) pipeline.Outcome { return transientFailure() }
	q := New(runner, testConfig(), zap.NewNop())
	q.Start()
	defer q.Stop()

	retries := 3
	id, err := q.AddJob("doomed", template.Template{Name: "d", Version: "1"}, optimization.Request{},
		AddOptions{MaxRetries: &retries})
	require.NoError(t, err)

	job := waitForStatus(t, q, id, optimization.JobFailed)
	assert.Equal(t, 3, job.RetryCount)
	assert.Error(t, job.Err)
}

func TestPermanentErrorSkipsRetries(t *testing.T) {
	runner := newFakeRunner()
	runner.outcome = func(string, int) pipeline.Outcome { return permanentFailure() }
	q := New(runner, testConfig(), zap.NewNop())
	q.Start()
	defer q.Stop()

	retries := 3
	id, err := q.AddJob("invalid", template.Template{Name: "i", Version: "1"}, optimization.Request{},
		AddOptions{MaxRetries: &retries})
	require.NoError(t, err)

	job := waitForStatus(t, q, id, optimization.JobFailed)
	assert.Equal(t, 1, job.RetryCount)
	runner.mu.Lock()
	assert.Equal(t, 1, runner.calls["invalid"])
	runner.mu.Unlock()
}

func TestZeroMaxRetriesFailsImmediately(t *testing.T) {
	runner := newFakeRunner()
	runner.outcome = func(string, int) pipeline.Outcome { return transientFailure() }
	q := New(runner, testConfig(), zap.NewNop())
	q.Start()
	defer q.Stop()

	retries := 0
	id, err := q.AddJob("once", template.Template{Name: "o", Version: "1"}, optimization.Request{},
		AddOptions{MaxRetries: &retries})
	require.NoError(t, err)

	job := waitForStatus(t, q, id, optimization.JobFailed)
	runner.mu.Lock()
	assert.Equal(t, 1, runner.calls["once"])
	runner.mu.Unlock()
	assert.Equal(t, 1, job.RetryCount)
}

func TestJobTimeout(t *testing.T) {
	runner := newFakeRunner()
	runner.gate = make(chan struct{}) // never released: the run hangs

	cfg := testConfig()
	cfg.JobTimeout = 50 * time.Millisecond
	q := New(runner, cfg, zap.NewNop())
	q.Start()
	defer q.Stop()

	retries := 0
	id, err := q.AddJob("slow", template.Template{Name: "s", Version: "1"}, optimization.Request{},
		AddOptions{MaxRetries: &retries})
	require.NoError(t, err)

	job := waitForStatus(t, q, id, optimization.JobFailed)
	require.Error(t, job.Err)
	assert.True(t, strings.HasPrefix(job.Err.Error(), "REQUEST_TIMEOUT: Job timeout after"), job.Err.Error())
	close(runner.gate)
}

func TestCancelPendingJob(t *testing.T) {
	runner := newFakeRunner()
	runner.started = make(chan string, 16)
	gate := make(chan struct{})
	runner.gate = gate

	q := New(runner, testConfig(), zap.NewNop())
	q.Start()
	defer q.Stop()

	_, err := q.AddJob("blocker", template.Template{Name: "b", Version: "1"}, optimization.Request{}, AddOptions{})
	require.NoError(t, err)
	require.Equal(t, "blocker", <-runner.started)

	id, err := q.AddJob("victim", template.Template{Name: "v", Version: "1"}, optimization.Request{}, AddOptions{})
	require.NoError(t, err)

	require.NoError(t, q.CancelJob(id))
	job, err := q.GetJob(id)
	require.NoError(t, err)
	assert.Equal(t, optimization.JobCancelled, job.Status)

	// Cancelling a terminal job is a no-op.
	require.NoError(t, q.CancelJob(id))
	job, _ = q.GetJob(id)
	assert.Equal(t, optimization.JobCancelled, job.Status)

	close(gate)
	waitForStatus(t, q, id, optimization.JobCancelled)
	runner.mu.Lock()
	assert.Zero(t, runner.calls["victim"], "cancelled pending job must never run")
	runner.mu.Unlock()
}

func TestCancelProcessingJobDiscardsResult(t *testing.T) {
	runner := newFakeRunner()
	runner.started = make(chan string, 16)
	gate := make(chan struct{})
	runner.gate = gate

	q := New(runner, testConfig(), zap.NewNop())
	q.Start()
	defer q.Stop()

	id, err := q.AddJob("running", template.Template{Name: "r", Version: "1"}, optimization.Request{}, AddOptions{})
	require.NoError(t, err)
	require.Equal(t, "running", <-runner.started)

	require.NoError(t, q.CancelJob(id))
	close(gate)

	// Give the worker time to observe the cancellation and discard.
	time.Sleep(100 * time.Millisecond)
	job, err := q.GetJob(id)
	require.NoError(t, err)
	assert.Equal(t, optimization.JobCancelled, job.Status)
	assert.Nil(t, job.Result)
}

func TestGetStats(t *testing.T) {
	runner := newFakeRunner()
	q := New(runner, testConfig(), zap.NewNop())
	q.Start()
	defer q.Stop()

	var ids []string
	for _, name := range []string{"a", "b"} {
		id, err := q.AddJob(name, template.Template{Name: name, Version: "1"}, optimization.Request{}, AddOptions{})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for _, id := range ids {
		waitForStatus(t, q, id, optimization.JobCompleted)
	}

	stats := q.GetStats()
	assert.Equal(t, 2, stats.TotalJobs)
	assert.Equal(t, 2, stats.Completed)
	assert.Zero(t, stats.Failed)
	assert.InDelta(t, 1.0, stats.SuccessRate, 1e-9)
	assert.Zero(t, stats.QueueLength)
}

func TestCleanupTrimsTerminalJobs(t *testing.T) {
	runner := newFakeRunner()
	cfg := testConfig()
	cfg.MaxJobHistory = 2
	q := New(runner, cfg, zap.NewNop())
	q.Start()
	defer q.Stop()

	var ids []string
	for _, name := range []string{"a", "b", "c", "d"} {
		id, err := q.AddJob(name, template.Template{Name: name, Version: "1"}, optimization.Request{}, AddOptions{})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for _, id := range ids {
		waitForStatus(t, q, id, optimization.JobCompleted)
	}

	removed := q.Cleanup()
	assert.Equal(t, 2, removed)
	stats := q.GetStats()
	assert.Equal(t, 2, stats.TotalJobs)
}

func TestEventsEmittedInOrder(t *testing.T) {
	runner := newFakeRunner()
	q := New(runner, testConfig(), zap.NewNop())

	var mu sync.Mutex
	var events []string
	for _, name := range []string{EventJobAdded, EventJobStarted, EventJobCompleted} {
		name := name
		q.On(name, func(evt shared.Event) {
			mu.Lock()
			events = append(events, name)
			mu.Unlock()
		})
	}

	q.Start()
	defer q.Stop()

	id, err := q.AddJob("evt", template.Template{Name: "e", Version: "1"}, optimization.Request{}, AddOptions{})
	require.NoError(t, err)
	waitForStatus(t, q, id, optimization.JobCompleted)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{EventJobAdded, EventJobStarted, EventJobCompleted}, events)
}

func TestAddAfterStop(t *testing.T) {
	runner := newFakeRunner()
	q := New(runner, testConfig(), zap.NewNop())
	q.Start()
	q.Stop()

	_, err := q.AddJob("late", template.Template{Name: "l", Version: "1"}, optimization.Request{}, AddOptions{})
	assert.ErrorIs(t, err, ErrQueueStopped)
}

func TestConcurrentWorkers(t *testing.T) {
	runner := newFakeRunner()
	cfg := testConfig()
	cfg.MaxConcurrency = 3

	var peak int32
	var current int32
	runner.outcome = func(string, int) pipeline.Outcome {
		c := atomic.AddInt32(&current, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if c <= p || atomic.CompareAndSwapInt32(&peak, p, c) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return success()
	}

	q := New(runner, cfg, zap.NewNop())
	q.Start()
	defer q.Stop()

	var ids []string
	for i := 0; i < 9; i++ {
		id, err := q.AddJob("tmpl", template.Template{Name: "t", Version: "1"}, optimization.Request{}, AddOptions{})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for _, id := range ids {
		waitForStatus(t, q, id, optimization.JobCompleted)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
	assert.Greater(t, atomic.LoadInt32(&peak), int32(1))
}
