package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cursor-prompt/prompt-optimizer/internal/domain/optimization"
	"github.com/cursor-prompt/prompt-optimizer/internal/domain/shared"
	"github.com/cursor-prompt/prompt-optimizer/internal/domain/template"
)

// remotePriority maps queue priorities onto the broker's numeric scale.
var remotePriority = map[optimization.Priority]float64{
	optimization.PriorityUrgent: 10,
	optimization.PriorityHigh:   5,
	optimization.PriorityNormal: 0,
	optimization.PriorityLow:    -5,
}

// remoteJob is the wire form of a job handed to the broker.
type remoteJob struct {
	ID         string                 `json:"id"`
	TemplateID string                 `json:"template_id"`
	Template   template.Template      `json:"template"`
	Request    optimization.Request   `json:"request"`
	Priority   float64                `json:"priority"`
	MaxRetries int                    `json:"max_retries"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// progressEvent is what remote workers publish back on the progress
// channel.
type progressEvent struct {
	JobID       string  `json:"job_id"`
	TemplateID  string  `json:"template_id"`
	Status      string  `json:"status"`
	Progress    int     `json:"progress"`
	CurrentStep string  `json:"current_step,omitempty"`
	Error       string  `json:"error,omitempty"`
	Result      *optimization.Result `json:"result,omitempty"`
}

// Distributed enqueues jobs through an external Redis broker instead of
// the in-process pool, streaming progress back via pub/sub. When the
// broker cannot be reached at add time it falls back to the local queue
// transparently.
type Distributed struct {
	client    *redis.Client
	local     *Queue
	emitter   *shared.Emitter
	logger    *zap.Logger
	namespace string

	subCancel context.CancelFunc
}

// NewDistributed wraps local with a Redis broker front. namespace prefixes
// every broker key.
func NewDistributed(client *redis.Client, local *Queue, namespace string, logger *zap.Logger) *Distributed {
	if logger == nil {
		logger = zap.NewNop()
	}
	if namespace == "" {
		namespace = "prompt-optimizer"
	}
	return &Distributed{
		client:    client,
		local:     local,
		emitter:   shared.NewEmitter(),
		logger:    logger.Named("distributed-queue"),
		namespace: namespace,
	}
}

func (d *Distributed) queueKey() string    { return d.namespace + ":queue" }
func (d *Distributed) jobKey(id string) string { return d.namespace + ":job:" + id }
func (d *Distributed) progressChannel() string { return d.namespace + ":progress" }

// On subscribes handler to a queue event name; events originate from
// remote progress messages or, after a fallback, from the local queue.
func (d *Distributed) On(name string, handler shared.Handler) {
	d.emitter.On(name, handler)
	d.local.On(name, handler)
}

// Start begins consuming remote progress events.
func (d *Distributed) Start(ctx context.Context) {
	subCtx, cancel := context.WithCancel(ctx)
	d.subCancel = cancel
	go d.consumeProgress(subCtx)
}

// Stop halts the progress consumer.
func (d *Distributed) Stop() {
	if d.subCancel != nil {
		d.subCancel()
	}
}

// AddJob enqueues remotely; if the broker is unreachable it falls back to
// the local queue and returns that job id instead.
func (d *Distributed) AddJob(ctx context.Context, templateID string, tmpl template.Template, req optimization.Request, opts AddOptions) (string, error) {
	priority := opts.Priority
	if priority == "" {
		priority = optimization.PriorityNormal
	}
	maxRetries := d.local.cfg.DefaultRetries
	if opts.MaxRetries != nil {
		maxRetries = *opts.MaxRetries
	}

	job := remoteJob{
		ID:         uuid.NewString(),
		TemplateID: templateID,
		Template:   tmpl,
		Request:    req,
		Priority:   remotePriority[priority],
		MaxRetries: maxRetries,
		Metadata:   opts.Metadata,
		CreatedAt:  time.Now(),
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return "", err
	}

	pipe := d.client.TxPipeline()
	pipe.Set(ctx, d.jobKey(job.ID), payload, 0)
	pipe.ZAdd(ctx, d.queueKey(), redis.Z{Score: job.Priority, Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		d.logger.Warn("broker unreachable, falling back to local queue", zap.Error(err))
		return d.local.AddJob(templateID, tmpl, req, opts)
	}

	d.emitter.Emit(EventJobAdded, map[string]interface{}{
		"job_id":      job.ID,
		"template_id": templateID,
		"priority":    string(priority),
		"remote":      true,
	})
	return job.ID, nil
}

// CancelJob removes the job from the broker queue and publishes a cancel
// marker for remote workers. Unknown remote ids are delegated to the local
// queue.
func (d *Distributed) CancelJob(ctx context.Context, id string) error {
	removed, err := d.client.ZRem(ctx, d.queueKey(), id).Result()
	if err != nil {
		return d.local.CancelJob(id)
	}
	if removed == 0 {
		// Not pending remotely; it is either processing remotely or local.
		if _, localErr := d.local.GetJob(id); localErr == nil {
			return d.local.CancelJob(id)
		}
	}
	msg, _ := json.Marshal(progressEvent{JobID: id, Status: string(optimization.JobCancelled)})
	if err := d.client.Publish(ctx, d.progressChannel(), msg).Err(); err != nil {
		d.logger.Warn("failed to publish cancel marker", zap.String("job_id", id), zap.Error(err))
	}
	d.emitter.Emit(EventJobCancelled, map[string]interface{}{"job_id": id})
	return nil
}

// consumeProgress re-emits remote progress messages as local queue events.
func (d *Distributed) consumeProgress(ctx context.Context) {
	sub := d.client.Subscribe(ctx, d.progressChannel())
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var evt progressEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				d.logger.Warn("undecodable progress event", zap.Error(err))
				continue
			}
			d.emitProgress(evt)
		}
	}
}

func (d *Distributed) emitProgress(evt progressEvent) {
	payload := map[string]interface{}{
		"job_id":      evt.JobID,
		"template_id": evt.TemplateID,
		"progress":    evt.Progress,
		"remote":      true,
	}
	switch optimization.JobStatus(evt.Status) {
	case optimization.JobProcessing:
		d.emitter.Emit(EventJobStarted, payload)
	case optimization.JobCompleted:
		if evt.Result != nil {
			payload["result"] = *evt.Result
		}
		d.emitter.Emit(EventJobCompleted, payload)
	case optimization.JobFailed:
		payload["error"] = evt.Error
		d.emitter.Emit(EventJobFailed, payload)
	case optimization.JobCancelled:
		d.emitter.Emit(EventJobCancelled, payload)
	}
}
