// Package pipeline implements the nine-stage optimization pipeline:
// a single (template-id, template, request) triple is carried
// through metadata-extraction, context-preparation, preprocessing,
// example-generation, request-building, optimization, postprocessing,
// validation, and template-update, emitting a named event at each stage's
// start, success, and failure.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cursor-prompt/prompt-optimizer/internal/domain/optimization"
	"github.com/cursor-prompt/prompt-optimizer/internal/domain/shared"
	"github.com/cursor-prompt/prompt-optimizer/internal/domain/template"
	"github.com/cursor-prompt/prompt-optimizer/internal/engine"
)

// Backend is the external optimizer collaborator the optimization stage
// delegates to. internal/optimizerclient.Client satisfies this interface.
type Backend interface {
	Optimize(ctx context.Context, req optimization.Request) (optimization.Result, error)
}

// TemplateSaver persists the optimized sibling template produced by the
// template-update stage. Both the template file store and the cache can
// satisfy this.
type TemplateSaver interface {
	SaveTemplate(ctx context.Context, tmpl template.Template) error
}

// Config controls which optional stages run and their parameters.
type Config struct {
	DefaultModel           optimization.TargetModel
	EnablePreprocessing    bool
	EnablePostprocessing   bool
	EnableValidation       bool
	EnableCaching          bool
	MaxPromptLength        int
	MinConfidence          float64
	FewShotCount           int
	RefineIterations       int
	GenerateReasoning      bool
}

// DefaultConfig returns the service's documented defaults.
func DefaultConfig() Config {
	return Config{
		DefaultModel:         optimization.ModelGPT4,
		EnablePreprocessing:  true,
		EnablePostprocessing: true,
		EnableValidation:     true,
		EnableCaching:        true,
		MaxPromptLength:      10000,
		MinConfidence:        0.7,
		FewShotCount:         5,
		RefineIterations:     3,
		GenerateReasoning:    true,
	}
}

// StageResult records one stage's outcome.
type StageResult struct {
	Stage    string        `json:"stage"`
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration"`
	Err      string        `json:"error,omitempty"`
}

// Outcome is the pipeline's terminal result: either a completed
// optimization.Result or a failure, always carrying the stage results
// observed up to the point of completion or abort.
type Outcome struct {
	Success bool
	Result  optimization.Result
	Stages  []StageResult
	Err     error
}

// Pipeline wires the template engine, optimizer backend, and optional
// template persistence behind the nine fixed stages.
type Pipeline struct {
	logger  *zap.Logger
	engine  *engine.Engine
	backend Backend
	saver   TemplateSaver
	emitter *shared.Emitter
	config  Config
}

// New constructs a Pipeline. saver may be nil, in which case the
// template-update stage is skipped.
func New(logger *zap.Logger, eng *engine.Engine, backend Backend, saver TemplateSaver, emitter *shared.Emitter, cfg Config) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if emitter == nil {
		emitter = shared.NewEmitter()
	}
	return &Pipeline{logger: logger, engine: eng, backend: backend, saver: saver, emitter: emitter, config: cfg}
}

// On subscribes handler to a pipeline event name.
func (p *Pipeline) On(name string, handler shared.Handler) {
	p.emitter.On(name, handler)
}

// Event name constants.
const (
	EventPipelineStarted   = "pipeline:started"
	EventStageStarted      = "stage:started"
	EventStageCompleted    = "stage:completed"
	EventStageFailed       = "stage:failed"
	EventPipelineCompleted = "pipeline:completed"
	EventPipelineFailed    = "pipeline:failed"
)

// abortingStages cannot be recovered from; their failure aborts the whole
// pipeline rather than merely logging and continuing.
var abortingStages = map[string]bool{
	stageMetadataExtraction: true,
	stageContextPreparation: true,
	stageOptimization:       true,
}

// Run executes all nine stages in order for one (templateID, tmpl, req)
// triple.
func (p *Pipeline) Run(ctx context.Context, templateID string, tmpl template.Template, req optimization.Request) Outcome {
	p.emitter.Emit(EventPipelineStarted, map[string]interface{}{"template_id": templateID})

	state := &runState{
		templateID: templateID,
		template:   tmpl,
		request:    req,
		config:     p.config,
	}

	stages := []stageEntry{
		{stageMetadataExtraction, p.runMetadataExtraction},
		{stageContextPreparation, p.runContextPreparation},
		{stagePreprocessing, p.runPreprocessing},
		{stageExampleGeneration, p.runExampleGeneration},
		{stageRequestBuilding, p.runRequestBuilding},
		{stageOptimization, p.runOptimization},
		{stagePostprocessing, p.runPostprocessing},
		{stageValidation, p.runValidation},
		{stageTemplateUpdate, p.runTemplateUpdate},
	}

	var results []StageResult
	for _, stage := range stages {
		duration, err := p.execStage(ctx, state, stage)
		results = append(results, StageResult{Stage: stage.name, Success: err == nil, Duration: duration, Err: errString(err)})
		if err != nil {
			if abortingStages[stage.name] {
				p.emitter.Emit(EventPipelineFailed, map[string]interface{}{"template_id": templateID, "stage": stage.name, "error": err.Error()})
				return Outcome{Success: false, Stages: results, Err: err}
			}
			p.logger.Warn("pipeline stage recovered", zap.String("stage", stage.name), zap.Error(err))
		}
	}

	p.emitter.Emit(EventPipelineCompleted, map[string]interface{}{"template_id": templateID})
	return Outcome{Success: true, Result: state.result, Stages: results}
}

type stageFunc func(ctx context.Context, state *runState) (string, error)

type stageEntry struct {
	name string
	fn   stageFunc
}

func (p *Pipeline) execStage(ctx context.Context, state *runState, stage stageEntry) (time.Duration, error) {
	p.emitter.Emit(EventStageStarted, map[string]interface{}{"stage": stage.name, "template_id": state.templateID})
	start := time.Now()
	_, err := stage.fn(ctx, state)
	duration := time.Since(start)

	if err != nil {
		p.emitter.Emit(EventStageFailed, map[string]interface{}{"stage": stage.name, "error": err.Error(), "duration_ms": duration.Milliseconds()})
	} else {
		p.emitter.Emit(EventStageCompleted, map[string]interface{}{"stage": stage.name, "duration_ms": duration.Milliseconds()})
	}
	return duration, err
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func fmtStageErr(stage string, err error) error {
	return fmt.Errorf("%s: %w", stage, err)
}
