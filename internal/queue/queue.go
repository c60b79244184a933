// Package queue implements the priority job scheduler: a bounded
// worker pool pulls jobs from a strict-priority pending list, races each
// pipeline run against a job timeout, retries transient failures within a
// budget, and supports idempotent cancellation. Terminal jobs are trimmed
// by a periodic cleanup keeping the most recent history.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cursor-prompt/prompt-optimizer/internal/domain/optimization"
	"github.com/cursor-prompt/prompt-optimizer/internal/domain/shared"
	"github.com/cursor-prompt/prompt-optimizer/internal/domain/template"
	"github.com/cursor-prompt/prompt-optimizer/internal/pipeline"
	apperrors "github.com/cursor-prompt/prompt-optimizer/pkg/errors"
)

// Runner executes the optimization pipeline for one job.
// *pipeline.Pipeline satisfies this interface.
type Runner interface {
	Run(ctx context.Context, templateID string, tmpl template.Template, req optimization.Request) pipeline.Outcome
}

// Config bounds the queue's concurrency, timing, and retained history.
type Config struct {
	MaxConcurrency  int
	JobTimeout      time.Duration
	RetryDelay      time.Duration
	MaxJobHistory   int
	CleanupInterval time.Duration
	DefaultRetries  int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency:  3,
		JobTimeout:      10 * time.Minute,
		RetryDelay:      5 * time.Second,
		MaxJobHistory:   1000,
		CleanupInterval: time.Hour,
		DefaultRetries:  3,
	}
}

// AddOptions tunes one job at submission time.
type AddOptions struct {
	Priority   optimization.Priority
	MaxRetries *int
	Metadata   map[string]interface{}
}

// Stats summarizes the queue state returned by GetStats.
type Stats struct {
	TotalJobs         int           `json:"total_jobs"`
	Pending           int           `json:"pending"`
	Processing        int           `json:"processing"`
	Completed         int           `json:"completed"`
	Failed            int           `json:"failed"`
	Cancelled         int           `json:"cancelled"`
	AvgProcessingTime time.Duration `json:"avg_processing_time"`
	SuccessRate       float64       `json:"success_rate"`
	ActiveWorkers     int           `json:"active_workers"`
	QueueLength       int           `json:"queue_length"`
}

// Event name constants.
const (
	EventJobAdded     = "job:added"
	EventJobStarted   = "job:started"
	EventJobCompleted = "job:completed"
	EventJobFailed    = "job:failed"
	EventJobCancelled = "job:cancelled"
	EventJobRetried   = "job:retried"
)

// ErrJobNotFound is returned when an id refers to no known job.
var ErrJobNotFound = errors.New("job not found")

// ErrQueueStopped is returned by AddJob after Stop.
var ErrQueueStopped = errors.New("queue is stopped")

type pendingEntry struct {
	job *optimization.Job
	seq uint64
}

// Queue is the in-process priority job scheduler.
type Queue struct {
	mu         sync.Mutex
	cond       *sync.Cond
	jobs       map[string]*optimization.Job
	pending    []pendingEntry
	processing map[string]context.CancelFunc
	retries    map[string]*time.Timer
	seq        uint64
	active     int
	stopped    bool

	runner  Runner
	emitter *shared.Emitter
	logger  *zap.Logger
	cfg     Config

	wg          sync.WaitGroup
	cleanupStop chan struct{}
}

// New constructs a Queue. Call Start to launch workers.
func New(runner Runner, cfg Config, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 3
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Minute
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.MaxJobHistory <= 0 {
		cfg.MaxJobHistory = 1000
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.DefaultRetries < 0 {
		cfg.DefaultRetries = 3
	}
	q := &Queue{
		jobs:        make(map[string]*optimization.Job),
		processing:  make(map[string]context.CancelFunc),
		retries:     make(map[string]*time.Timer),
		runner:      runner,
		emitter:     shared.NewEmitter(),
		logger:      logger.Named("queue"),
		cfg:         cfg,
		cleanupStop: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// On subscribes handler to a queue event name.
func (q *Queue) On(name string, handler shared.Handler) {
	q.emitter.On(name, handler)
}

// Start launches the worker pool and the cleanup timer.
func (q *Queue) Start() {
	for i := 0; i < q.cfg.MaxConcurrency; i++ {
		workerID := fmt.Sprintf("worker-%d", i+1)
		q.wg.Add(1)
		go q.workerLoop(workerID)
	}
	q.wg.Add(1)
	go q.cleanupLoop()
	q.logger.Info("queue started", zap.Int("max_concurrency", q.cfg.MaxConcurrency))
}

// Stop drains the pool: pending jobs stay pending, in-flight jobs run to
// completion, and no new jobs are accepted.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	for id, timer := range q.retries {
		timer.Stop()
		delete(q.retries, id)
	}
	q.cond.Broadcast()
	q.mu.Unlock()

	close(q.cleanupStop)
	q.wg.Wait()
	q.logger.Info("queue stopped")
}

// AddJob creates a job and inserts it into the pending list in strict
// priority order, FIFO within a level. Returns the fresh job id.
func (q *Queue) AddJob(templateID string, tmpl template.Template, req optimization.Request, opts AddOptions) (string, error) {
	priority := opts.Priority
	if priority == "" {
		priority = optimization.PriorityNormal
	}
	maxRetries := q.cfg.DefaultRetries
	if opts.MaxRetries != nil {
		maxRetries = *opts.MaxRetries
	}

	job := &optimization.Job{
		ID:         uuid.NewString(),
		TemplateID: templateID,
		Template:   tmpl,
		Request:    req,
		Priority:   priority,
		Status:     optimization.JobPending,
		MaxRetries: maxRetries,
		CreatedAt:  time.Now(),
		Metadata:   opts.Metadata,
	}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return "", ErrQueueStopped
	}
	q.jobs[job.ID] = job
	q.enqueueLocked(job)
	q.cond.Signal()
	q.mu.Unlock()

	q.emitter.Emit(EventJobAdded, map[string]interface{}{
		"job_id":      job.ID,
		"template_id": templateID,
		"priority":    string(priority),
	})
	q.logger.Debug("job added",
		zap.String("job_id", job.ID),
		zap.String("template_id", templateID),
		zap.String("priority", string(priority)))
	return job.ID, nil
}

// enqueueLocked inserts job after the last pending entry of equal or
// higher priority, preserving FIFO within a level.
func (q *Queue) enqueueLocked(job *optimization.Job) {
	q.seq++
	entry := pendingEntry{job: job, seq: q.seq}
	rank := job.Priority.Rank()
	idx := sort.Search(len(q.pending), func(i int) bool {
		return q.pending[i].job.Priority.Rank() > rank
	})
	q.pending = append(q.pending, pendingEntry{})
	copy(q.pending[idx+1:], q.pending[idx:])
	q.pending[idx] = entry
}

// GetJob returns a snapshot of the job with the given id.
func (q *Queue) GetJob(id string) (optimization.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return optimization.Job{}, ErrJobNotFound
	}
	return job.Snapshot(), nil
}

// CancelJob cancels a job. Cancelling a terminal job is a no-op.
// Pending jobs are removed from the queue immediately; processing jobs are
// marked cancelled and their worker abandons the result cooperatively.
func (q *Queue) CancelJob(id string) error {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return ErrJobNotFound
	}
	if job.Status.IsTerminal() {
		q.mu.Unlock()
		return nil
	}

	if timer, ok := q.retries[id]; ok {
		timer.Stop()
		delete(q.retries, id)
	}
	q.removePendingLocked(id)

	now := time.Now()
	job.Status = optimization.JobCancelled
	job.CompletedAt = &now
	if cancel, ok := q.processing[id]; ok {
		cancel()
	}
	q.mu.Unlock()

	q.emitter.Emit(EventJobCancelled, map[string]interface{}{"job_id": id, "template_id": job.TemplateID})
	q.logger.Info("job cancelled", zap.String("job_id", id))
	return nil
}

func (q *Queue) removePendingLocked(id string) {
	for i, entry := range q.pending {
		if entry.job.ID == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}

// GetStats summarizes totals by status, average processing time over
// completed jobs, success rate, active workers, and queue length.
func (q *Queue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := Stats{
		TotalJobs:     len(q.jobs),
		ActiveWorkers: q.active,
		QueueLength:   len(q.pending),
	}
	var totalProcessing time.Duration
	for _, job := range q.jobs {
		switch job.Status {
		case optimization.JobPending:
			stats.Pending++
		case optimization.JobProcessing:
			stats.Processing++
		case optimization.JobCompleted:
			stats.Completed++
			if job.StartedAt != nil && job.CompletedAt != nil {
				totalProcessing += job.CompletedAt.Sub(*job.StartedAt)
			}
		case optimization.JobFailed:
			stats.Failed++
		case optimization.JobCancelled:
			stats.Cancelled++
		}
	}
	if stats.Completed > 0 {
		stats.AvgProcessingTime = totalProcessing / time.Duration(stats.Completed)
	}
	if stats.Completed+stats.Failed > 0 {
		stats.SuccessRate = float64(stats.Completed) / float64(stats.Completed+stats.Failed)
	}
	return stats
}

func (q *Queue) workerLoop(workerID string) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.stopped {
			q.cond.Wait()
		}
		if q.stopped {
			q.mu.Unlock()
			return
		}
		entry := q.pending[0]
		q.pending = q.pending[1:]
		job := entry.job

		// A job cancelled while pending may still be in the list if the
		// cancel raced the pop; skip it.
		if job.Status != optimization.JobPending {
			q.mu.Unlock()
			continue
		}

		now := time.Now()
		job.Status = optimization.JobProcessing
		job.StartedAt = &now
		job.WorkerID = workerID
		job.CurrentStep = "starting"
		jobCtx, cancel := context.WithCancel(context.Background())
		q.processing[job.ID] = cancel
		q.active++
		q.mu.Unlock()

		q.emitter.Emit(EventJobStarted, map[string]interface{}{
			"job_id": job.ID, "template_id": job.TemplateID, "worker_id": workerID,
		})

		outcome, timedOut := q.runWithTimeout(jobCtx, job)
		q.finishJob(job, outcome, timedOut)

		q.mu.Lock()
		if c, ok := q.processing[job.ID]; ok {
			c()
			delete(q.processing, job.ID)
		}
		q.active--
		q.mu.Unlock()
	}
}

// runWithTimeout races the pipeline against the job timeout. When both
// resolve in the same quantum, the timeout wins.
func (q *Queue) runWithTimeout(ctx context.Context, job *optimization.Job) (pipeline.Outcome, bool) {
	done := make(chan pipeline.Outcome, 1)
	go func() {
		done <- q.runner.Run(ctx, job.TemplateID, job.Template, job.Request)
	}()

	timer := time.NewTimer(q.cfg.JobTimeout)
	defer timer.Stop()

	select {
	case <-timer.C:
		return pipeline.Outcome{}, true
	case outcome := <-done:
		select {
		case <-timer.C:
			return pipeline.Outcome{}, true
		default:
			return outcome, false
		}
	}
}

func (q *Queue) finishJob(job *optimization.Job, outcome pipeline.Outcome, timedOut bool) {
	q.mu.Lock()

	// A worker observing cancellation abandons its result without touching
	// the job's recorded state.
	if job.Status == optimization.JobCancelled {
		q.mu.Unlock()
		q.logger.Debug("discarding result of cancelled job", zap.String("job_id", job.ID))
		return
	}

	var runErr error
	switch {
	case timedOut:
		runErr = apperrors.New(apperrors.CategoryNetwork, apperrors.CodeRequestTimeout, apperrors.SeverityMedium,
			fmt.Sprintf("Job timeout after %dms", q.cfg.JobTimeout.Milliseconds()))
	case !outcome.Success:
		runErr = outcome.Err
	}

	now := time.Now()
	if runErr == nil {
		job.Status = optimization.JobCompleted
		job.Progress = 100
		job.CurrentStep = "completed"
		job.CompletedAt = &now
		result := outcome.Result
		job.Result = &result
		q.mu.Unlock()

		q.emitter.Emit(EventJobCompleted, map[string]interface{}{
			"job_id": job.ID, "template_id": job.TemplateID, "result": result,
		})
		q.logger.Info("job completed", zap.String("job_id", job.ID),
			zap.Duration("took", now.Sub(*job.StartedAt)))
		return
	}

	job.RetryCount++
	job.Err = runErr

	if isTransient(runErr) && job.RetryCount < job.MaxRetries && !q.stopped {
		job.Status = optimization.JobPending
		job.Progress = 0
		job.CurrentStep = "awaiting retry"
		jobID := job.ID
		q.retries[jobID] = time.AfterFunc(q.cfg.RetryDelay, func() {
			q.requeue(jobID)
		})
		retryCount := job.RetryCount
		q.mu.Unlock()

		q.emitter.Emit(EventJobRetried, map[string]interface{}{
			"job_id": job.ID, "template_id": job.TemplateID, "retry_count": retryCount, "error": runErr.Error(),
		})
		q.logger.Warn("job failed, retry scheduled",
			zap.String("job_id", job.ID),
			zap.Int("retry_count", retryCount),
			zap.Error(runErr))
		return
	}

	job.Status = optimization.JobFailed
	job.CompletedAt = &now
	q.mu.Unlock()

	q.emitter.Emit(EventJobFailed, map[string]interface{}{
		"job_id": job.ID, "template_id": job.TemplateID, "error": runErr.Error(), "retry_count": job.RetryCount,
	})
	q.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(runErr))
}

func (q *Queue) requeue(jobID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.retries, jobID)
	job, ok := q.jobs[jobID]
	if !ok || job.Status != optimization.JobPending || q.stopped {
		return
	}
	q.enqueueLocked(job)
	q.cond.Signal()
}

// isTransient reports whether an error is worth retrying. Permanent
// categories (validation, template, configuration) skip retries; errors
// without taxonomy information get the benefit of the doubt.
func isTransient(err error) bool {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.IsTransient()
	}
	return true
}

func (q *Queue) cleanupLoop() {
	defer q.wg.Done()
	ticker := time.NewTicker(q.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-q.cleanupStop:
			return
		case <-ticker.C:
			removed := q.Cleanup()
			if removed > 0 {
				q.logger.Info("cleaned up terminal jobs", zap.Int("removed", removed))
			}
		}
	}
}

// Cleanup trims terminal jobs beyond MaxJobHistory, retaining the most
// recent by completion time, and returns the number removed.
func (q *Queue) Cleanup() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	var terminal []*optimization.Job
	for _, job := range q.jobs {
		if job.Status.IsTerminal() {
			terminal = append(terminal, job)
		}
	}
	if len(terminal) <= q.cfg.MaxJobHistory {
		return 0
	}

	sort.Slice(terminal, func(i, j int) bool {
		return completedTime(terminal[i]).After(completedTime(terminal[j]))
	})
	removed := 0
	for _, job := range terminal[q.cfg.MaxJobHistory:] {
		delete(q.jobs, job.ID)
		removed++
	}
	return removed
}

func completedTime(job *optimization.Job) time.Time {
	if job.CompletedAt != nil {
		return *job.CompletedAt
	}
	return job.CreatedAt
}
