// Package feedback implements the continuous-improvement observer:
// it accumulates user feedback and performance metrics per template,
// detects rating and performance degradation, and converts them into
// re-optimization triggers subject to a per-template cooldown. The cycle
// back into the queue is event-driven: the loop emits
// reoptimization:triggered and a subscriber (or the loop itself, when
// auto re-optimization is enabled) turns it into a queue submission.
package feedback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cursor-prompt/prompt-optimizer/internal/cache"
	"github.com/cursor-prompt/prompt-optimizer/internal/domain/optimization"
	"github.com/cursor-prompt/prompt-optimizer/internal/domain/shared"
	"github.com/cursor-prompt/prompt-optimizer/internal/domain/template"
	"github.com/cursor-prompt/prompt-optimizer/internal/queue"
	apperrors "github.com/cursor-prompt/prompt-optimizer/pkg/errors"
)

// Config tunes the loop's thresholds and timers.
type Config struct {
	FeedbackThreshold        int
	RatingThreshold          float64
	PerformanceThreshold     float64
	Cooldown                 time.Duration
	ReviewInterval           time.Duration
	EnableAutoReoptimization bool
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		FeedbackThreshold:        10,
		RatingThreshold:          3.0,
		PerformanceThreshold:     0.8,
		Cooldown:                 24 * time.Hour,
		ReviewInterval:           7 * 24 * time.Hour,
		EnableAutoReoptimization: false,
	}
}

// Submitter resubmits a template for optimization. *queue.Queue satisfies
// this directly; tests use fakes.
type Submitter interface {
	AddJob(templateID string, tmpl template.Template, req optimization.Request, opts queue.AddOptions) (string, error)
}

// Trend classifies the recent direction of a template's ratings.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// Event name constants.
const (
	EventReoptimizationTriggered = "reoptimization:triggered"
	EventReoptimizationCompleted = "reoptimization:completed"
	EventReoptimizationFailed    = "reoptimization:failed"
)

// Loop is the long-lived feedback observer.
type Loop struct {
	mu        sync.Mutex
	feedback  map[string][]optimization.Feedback
	metrics   map[string][]optimization.PerformanceMetric
	lastReopt map[string]time.Time
	templates map[string]template.Template
	tracked   map[string]string // job id -> template id for submitted re-optimizations

	cfg       Config
	submitter Submitter
	store     *cache.Distributed
	cacheTTL  time.Duration
	emitter   *shared.Emitter
	logger    *zap.Logger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New constructs a Loop. submitter may be nil when auto re-optimization is
// disabled; store may be nil to skip durable mirroring.
func New(cfg Config, submitter Submitter, store *cache.Distributed, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FeedbackThreshold <= 0 {
		cfg.FeedbackThreshold = 10
	}
	if cfg.RatingThreshold <= 0 {
		cfg.RatingThreshold = 3.0
	}
	if cfg.PerformanceThreshold <= 0 {
		cfg.PerformanceThreshold = 0.8
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 24 * time.Hour
	}
	if cfg.ReviewInterval <= 0 {
		cfg.ReviewInterval = 7 * 24 * time.Hour
	}
	return &Loop{
		feedback:  make(map[string][]optimization.Feedback),
		metrics:   make(map[string][]optimization.PerformanceMetric),
		lastReopt: make(map[string]time.Time),
		templates: make(map[string]template.Template),
		tracked:   make(map[string]string),
		cfg:       cfg,
		submitter: submitter,
		store:     store,
		cacheTTL:  30 * 24 * time.Hour,
		emitter:   shared.NewEmitter(),
		logger:    logger.Named("feedback-loop"),
		stop:      make(chan struct{}),
	}
}

// On subscribes handler to a feedback-loop event name.
func (l *Loop) On(name string, handler shared.Handler) {
	l.emitter.On(name, handler)
}

// Start launches the scheduled-review timer.
func (l *Loop) Start() {
	l.wg.Add(1)
	go l.reviewLoop()
}

// Stop halts the scheduled-review timer.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
	l.wg.Wait()
}

// AttachQueue translates queue job terminations for jobs this loop
// submitted into reoptimization:completed / reoptimization:failed events.
func (l *Loop) AttachQueue(q *queue.Queue) {
	q.On(queue.EventJobCompleted, func(evt shared.Event) {
		l.resolveTracked(evt, EventReoptimizationCompleted)
	})
	q.On(queue.EventJobFailed, func(evt shared.Event) {
		l.resolveTracked(evt, EventReoptimizationFailed)
	})
}

func (l *Loop) resolveTracked(evt shared.Event, outcome string) {
	payload, ok := evt.Payload.(map[string]interface{})
	if !ok {
		return
	}
	jobID, _ := payload["job_id"].(string)

	l.mu.Lock()
	templateID, tracked := l.tracked[jobID]
	if tracked {
		delete(l.tracked, jobID)
	}
	l.mu.Unlock()

	if tracked {
		l.emitter.Emit(outcome, map[string]interface{}{"template_id": templateID, "job_id": jobID})
	}
}

// RegisterTemplate records the template snapshot re-optimization will
// resubmit.
func (l *Loop) RegisterTemplate(tmpl template.Template) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.templates[tmpl.ID] = tmpl
}

// RecordFeedback appends one user rating, mirrors the per-template list to
// the durable cache, and evaluates re-optimization necessity.
func (l *Loop) RecordFeedback(fb optimization.Feedback) error {
	if fb.Rating < 1 || fb.Rating > 5 {
		return apperrors.NewValidationError(fmt.Sprintf("rating must be between 1 and 5, got %d", fb.Rating))
	}
	if fb.TemplateID == "" {
		return apperrors.NewValidationError("feedback requires a template id")
	}
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	if fb.Timestamp.IsZero() {
		fb.Timestamp = time.Now()
	}

	l.mu.Lock()
	l.feedback[fb.TemplateID] = append(l.feedback[fb.TemplateID], fb)
	snapshot := append([]optimization.Feedback(nil), l.feedback[fb.TemplateID]...)
	l.mu.Unlock()

	if l.store != nil {
		l.store.Set(context.Background(), "feedback:"+fb.TemplateID, snapshot, l.cacheTTL)
	}

	l.logger.Debug("feedback recorded",
		zap.String("template_id", fb.TemplateID),
		zap.Int("rating", fb.Rating),
		zap.String("category", string(fb.Category)))

	l.evaluate(fb.TemplateID)
	return nil
}

// RecordMetric appends one performance observation and, once enough exist,
// compares recent performance against the prior baseline.
func (l *Loop) RecordMetric(m optimization.PerformanceMetric) error {
	if m.TemplateID == "" {
		return apperrors.NewValidationError("metric requires a template id")
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}

	l.mu.Lock()
	l.metrics[m.TemplateID] = append(l.metrics[m.TemplateID], m)
	snapshot := append([]optimization.PerformanceMetric(nil), l.metrics[m.TemplateID]...)
	l.mu.Unlock()

	if l.store != nil {
		l.store.Set(context.Background(), "metrics:"+m.TemplateID, snapshot, l.cacheTTL)
	}

	if len(snapshot) >= 10 && l.performanceRatio(snapshot) < l.cfg.PerformanceThreshold {
		l.evaluate(m.TemplateID)
	}
	return nil
}

// performanceRatio compares the mean of the 5 most recent values against
// the mean of the prior ones.
func (l *Loop) performanceRatio(metrics []optimization.PerformanceMetric) float64 {
	if len(metrics) < 10 {
		return 1
	}
	recent := metrics[len(metrics)-5:]
	prior := metrics[:len(metrics)-5]

	priorMean := metricMean(prior)
	if priorMean == 0 {
		return 1
	}
	return metricMean(recent) / priorMean
}

func metricMean(metrics []optimization.PerformanceMetric) float64 {
	if len(metrics) == 0 {
		return 0
	}
	var sum float64
	for _, m := range metrics {
		sum += m.Value
	}
	return sum / float64(len(metrics))
}

// FeedbackTrend compares the mean of the last 3 ratings to the mean of
// the 3 before that: delta > 0.5 improving, < -0.5 declining, else stable.
func (l *Loop) FeedbackTrend(templateID string) Trend {
	l.mu.Lock()
	fbs := l.feedback[templateID]
	l.mu.Unlock()
	return ratingTrend(fbs)
}

func ratingTrend(fbs []optimization.Feedback) Trend {
	if len(fbs) < 6 {
		return TrendStable
	}
	last3 := ratingMean(fbs[len(fbs)-3:])
	prev3 := ratingMean(fbs[len(fbs)-6 : len(fbs)-3])
	delta := last3 - prev3
	switch {
	case delta > 0.5:
		return TrendImproving
	case delta < -0.5:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func ratingMean(fbs []optimization.Feedback) float64 {
	if len(fbs) == 0 {
		return 0
	}
	var sum int
	for _, fb := range fbs {
		sum += fb.Rating
	}
	return float64(sum) / float64(len(fbs))
}

// AverageRating returns the mean rating over all feedback for a template.
func (l *Loop) AverageRating(templateID string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ratingMean(l.feedback[templateID])
}

// Feedback returns a copy of the per-template feedback list in arrival
// order.
func (l *Loop) Feedback(templateID string) []optimization.Feedback {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]optimization.Feedback(nil), l.feedback[templateID]...)
}

// evaluate decides whether templateID needs re-optimization and triggers
// it when the per-template cooldown has elapsed.
func (l *Loop) evaluate(templateID string) {
	l.mu.Lock()
	fbs := l.feedback[templateID]
	ms := l.metrics[templateID]
	last, hasLast := l.lastReopt[templateID]
	l.mu.Unlock()

	lowRating := len(fbs) >= l.cfg.FeedbackThreshold && ratingMean(fbs) < l.cfg.RatingThreshold
	degraded := len(ms) >= 10 && l.performanceRatio(ms) < l.cfg.PerformanceThreshold
	declining := ratingTrend(fbs) == TrendDeclining

	if !lowRating && !degraded && !declining {
		return
	}
	if hasLast && time.Since(last) < l.cfg.Cooldown {
		l.logger.Debug("re-optimization suppressed by cooldown",
			zap.String("template_id", templateID),
			zap.Time("last", last))
		return
	}

	l.trigger(templateID, reason(lowRating, degraded, declining))
}

func reason(lowRating, degraded, declining bool) string {
	switch {
	case lowRating:
		return "low average rating"
	case degraded:
		return "performance degradation"
	default:
		return "declining feedback trend"
	}
}

func (l *Loop) trigger(templateID, why string) {
	l.mu.Lock()
	l.lastReopt[templateID] = time.Now()
	tmpl, haveTemplate := l.templates[templateID]
	l.mu.Unlock()

	l.emitter.Emit(EventReoptimizationTriggered, map[string]interface{}{
		"template_id": templateID,
		"reason":      why,
	})

	if !l.cfg.EnableAutoReoptimization || l.submitter == nil {
		l.logger.Info("re-optimization recommended",
			zap.String("template_id", templateID),
			zap.String("reason", why))
		return
	}
	if !haveTemplate {
		l.logger.Warn("cannot auto re-optimize: template not registered",
			zap.String("template_id", templateID))
		l.emitter.Emit(EventReoptimizationFailed, map[string]interface{}{
			"template_id": templateID,
			"error":       "template not registered",
		})
		return
	}

	jobID, err := l.submitter.AddJob(templateID, tmpl, optimization.Request{},
		queue.AddOptions{Priority: optimization.PriorityHigh, Metadata: map[string]interface{}{"reoptimization": true, "reason": why}})
	if err != nil {
		l.logger.Error("re-optimization submission failed",
			zap.String("template_id", templateID), zap.Error(err))
		l.emitter.Emit(EventReoptimizationFailed, map[string]interface{}{
			"template_id": templateID,
			"error":       err.Error(),
		})
		return
	}

	l.mu.Lock()
	l.tracked[jobID] = templateID
	l.mu.Unlock()

	l.logger.Info("re-optimization triggered",
		zap.String("template_id", templateID),
		zap.String("job_id", jobID),
		zap.String("reason", why))
}

// reviewLoop is the periodic scheduled review: templates whose feedback
// trend is declining are evaluated for re-optimization.
func (l *Loop) reviewLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.cfg.ReviewInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.RunScheduledReview()
		}
	}
}

// RunScheduledReview evaluates every template with recorded feedback.
// Exposed for the review timer and for tests.
func (l *Loop) RunScheduledReview() {
	l.mu.Lock()
	ids := make([]string, 0, len(l.feedback))
	for id := range l.feedback {
		ids = append(ids, id)
	}
	l.mu.Unlock()

	for _, id := range ids {
		if l.FeedbackTrend(id) == TrendDeclining {
			l.evaluate(id)
		}
	}
	l.logger.Debug("scheduled review completed", zap.Int("templates", len(ids)))
}
