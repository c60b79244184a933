// Package monitoring instruments the queue, pipeline, cache, and feedback
// loop with Prometheus metrics. Collectors subscribe to each subsystem's
// event emitter so instrumentation never touches correctness paths.
package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cursor-prompt/prompt-optimizer/internal/cache"
	"github.com/cursor-prompt/prompt-optimizer/internal/domain/shared"
	"github.com/cursor-prompt/prompt-optimizer/internal/feedback"
	"github.com/cursor-prompt/prompt-optimizer/internal/pipeline"
	"github.com/cursor-prompt/prompt-optimizer/internal/queue"
)

// Metrics holds every collector the service exports.
type Metrics struct {
	reg             prometheus.Registerer
	jobsTotal       *prometheus.CounterVec
	jobDuration     prometheus.Histogram
	stageDuration   *prometheus.HistogramVec
	stageFailures   *prometheus.CounterVec
	cacheHitRatio   prometheus.GaugeFunc
	reoptimizations *prometheus.CounterVec
}

// New registers all collectors with reg. Pass a *cache.Local to export its
// hit ratio; nil skips that gauge.
func New(reg prometheus.Registerer, local *cache.Local) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		reg: reg,
		jobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prompt_optimizer_jobs_total",
			Help: "Jobs by terminal outcome",
		}, []string{"outcome"}),
		jobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prompt_optimizer_job_duration_seconds",
			Help:    "Wall-clock duration of completed jobs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prompt_optimizer_stage_duration_seconds",
			Help:    "Duration of individual pipeline stages",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"stage"}),
		stageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prompt_optimizer_stage_failures_total",
			Help: "Pipeline stage failures by stage",
		}, []string{"stage"}),
		reoptimizations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prompt_optimizer_reoptimizations_total",
			Help: "Re-optimization lifecycle events",
		}, []string{"event"}),
	}

	if local != nil {
		m.cacheHitRatio = factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "prompt_optimizer_cache_hit_ratio",
			Help: "Fraction of cache lookups served from the cache",
		}, func() float64 {
			stats := local.Stats()
			total := stats.Hits + stats.Misses
			if total == 0 {
				return 0
			}
			return float64(stats.Hits) / float64(total)
		})
	}

	return m
}

// ObserveQueue subscribes the job collectors to q's events. Depth and
// worker gauges read the queue's stats directly so they cannot drift on
// cancellations.
func (m *Metrics) ObserveQueue(q *queue.Queue) {
	factory := promauto.With(m.reg)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "prompt_optimizer_queue_depth",
		Help: "Jobs currently pending in the queue",
	}, func() float64 {
		return float64(q.GetStats().QueueLength)
	})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "prompt_optimizer_active_workers",
		Help: "Workers currently processing a job",
	}, func() float64 {
		return float64(q.GetStats().ActiveWorkers)
	})

	started := make(map[string]time.Time)
	var mu sync.Mutex

	track := func(fn func()) {
		mu.Lock()
		fn()
		mu.Unlock()
	}

	q.On(queue.EventJobStarted, func(evt shared.Event) {
		if id, ok := jobID(evt); ok {
			track(func() { started[id] = evt.OccurredAt })
		}
	})
	terminal := func(outcome string) shared.Handler {
		return func(evt shared.Event) {
			m.jobsTotal.WithLabelValues(outcome).Inc()
			if id, ok := jobID(evt); ok {
				track(func() {
					if t, ok := started[id]; ok {
						m.jobDuration.Observe(evt.OccurredAt.Sub(t).Seconds())
						delete(started, id)
					}
				})
			}
		}
	}
	q.On(queue.EventJobCompleted, terminal("completed"))
	q.On(queue.EventJobFailed, terminal("failed"))
	q.On(queue.EventJobCancelled, terminal("cancelled"))
}

// ObservePipeline subscribes the stage collectors to p's events.
func (m *Metrics) ObservePipeline(p *pipeline.Pipeline) {
	p.On(pipeline.EventStageCompleted, func(evt shared.Event) {
		if stage, ms, ok := stagePayload(evt); ok {
			m.stageDuration.WithLabelValues(stage).Observe(float64(ms) / 1000)
		}
	})
	p.On(pipeline.EventStageFailed, func(evt shared.Event) {
		if stage, ms, ok := stagePayload(evt); ok {
			m.stageDuration.WithLabelValues(stage).Observe(float64(ms) / 1000)
			m.stageFailures.WithLabelValues(stage).Inc()
		}
	})
}

// ObserveFeedback counts re-optimization lifecycle events.
func (m *Metrics) ObserveFeedback(l *feedback.Loop) {
	for _, name := range []string{
		feedback.EventReoptimizationTriggered,
		feedback.EventReoptimizationCompleted,
		feedback.EventReoptimizationFailed,
	} {
		name := name
		l.On(name, func(shared.Event) {
			m.reoptimizations.WithLabelValues(name).Inc()
		})
	}
}

func jobID(evt shared.Event) (string, bool) {
	payload, ok := evt.Payload.(map[string]interface{})
	if !ok {
		return "", false
	}
	id, ok := payload["job_id"].(string)
	return id, ok
}

func stagePayload(evt shared.Event) (string, int64, bool) {
	payload, ok := evt.Payload.(map[string]interface{})
	if !ok {
		return "", 0, false
	}
	stage, ok := payload["stage"].(string)
	if !ok {
		return "", 0, false
	}
	ms, _ := payload["duration_ms"].(int64)
	return stage, ms, true
}
