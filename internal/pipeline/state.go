package pipeline

import (
	"github.com/cursor-prompt/prompt-optimizer/internal/domain/optimization"
	"github.com/cursor-prompt/prompt-optimizer/internal/domain/template"
)

const (
	stageMetadataExtraction = "metadata-extraction"
	stageContextPreparation = "context-preparation"
	stagePreprocessing      = "preprocessing"
	stageExampleGeneration  = "example-generation"
	stageRequestBuilding    = "request-building"
	stageOptimization       = "optimization"
	stagePostprocessing     = "postprocessing"
	stageValidation         = "validation"
	stageTemplateUpdate     = "template-update"
)

// Metadata is the output of the metadata-extraction stage.
type Metadata struct {
	ComplexityScore      int      `json:"complexity_score"` // capped at 10
	TokenEstimate        int      `json:"token_estimate"`
	IncludeDependencies  []string `json:"include_dependencies"`
	VariableCount        int      `json:"variable_count"`
}

// Constraints bounds what the optimizer backend may change.
type Constraints struct {
	MaxLength         int  `json:"max_length"`
	PreserveVariables bool `json:"preserve_variables"`
	MaintainStructure bool `json:"maintain_structure"`
}

// OptimizationContext is the output of the context-preparation stage.
type OptimizationContext struct {
	TemplateID  string                 `json:"template_id"`
	TargetModel optimization.TargetModel `json:"target_model"`
	Task        string                 `json:"task"`
	Constraints Constraints            `json:"constraints"`
}

// processedText is the output of the preprocessing stage: task text with
// every {{...}} placeholder swapped for a stable opaque token, and the
// mapping needed to restore them.
type processedText struct {
	Body    string
	Mapping map[string]string
}

// runState threads stage outputs through the fixed sequence for one
// pipeline execution.
type runState struct {
	templateID string
	template   template.Template
	request    optimization.Request
	config     Config

	metadata     Metadata
	optContext   OptimizationContext
	processed    processedText
	examples     []optimization.Example
	builtRequest optimization.Request
	result       optimization.Result
}
