// Package optimization defines the request/result/job/feedback data model
// the pipeline, queue, and feedback loop operate on.
package optimization

import "time"

// TargetModel enumerates the fixed set of downstream LLM targets.
type TargetModel string

const (
	ModelGPT4          TargetModel = "gpt-4"
	ModelGPT35Turbo    TargetModel = "gpt-3.5-turbo"
	ModelClaude3Opus   TargetModel = "claude-3-opus"
	ModelClaude3Sonnet TargetModel = "claude-3-sonnet"
	ModelGeminiPro     TargetModel = "gemini-pro"
)

// ValidTargetModels lists the enum's members, used by config validation.
var ValidTargetModels = []TargetModel{
	ModelGPT4, ModelGPT35Turbo, ModelClaude3Opus, ModelClaude3Sonnet, ModelGeminiPro,
}

// Request carries everything the optimizer backend needs to produce an
// optimized prompt variant.
type Request struct {
	Task                string                 `json:"task"`
	OriginalPrompt      string                 `json:"original_prompt"`
	TargetModel         TargetModel            `json:"target_model"`
	RefineIterations    int                    `json:"refine_iterations"` // 1-10
	FewShotCount        int                    `json:"few_shot_count"`    // 0-20
	GenerateReasoning   bool                   `json:"generate_reasoning"`
	Examples            []Example              `json:"examples,omitempty"`
	Metadata            map[string]interface{} `json:"metadata,omitempty"`
	SkipCache           bool                   `json:"skip_cache,omitempty"`
}

// Example is a single few-shot example attached to a Request.
type Example struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Status enumerates the lifecycle of an optimization result.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Metrics quantifies the improvement an optimization achieved.
type Metrics struct {
	AccuracyImprovement float64 `json:"accuracy_improvement"` // [0,1]
	TokenReduction      float64 `json:"token_reduction"`      // [0,1]
	CostReduction       float64 `json:"cost_reduction"`       // factor >= 1
	ProcessingTimeMS    int64   `json:"processing_time_ms"`
	APICallsUsed        int     `json:"api_calls_used"`
}

// Result is what the optimizer backend (or the pipeline on its behalf)
// returns for a Request.
type Result struct {
	OptimizedPrompt string     `json:"optimized_prompt"`
	Metrics         Metrics    `json:"metrics"`
	Confidence      *float64   `json:"confidence,omitempty"` // nil = "do not enforce threshold"
	Status          Status     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}
