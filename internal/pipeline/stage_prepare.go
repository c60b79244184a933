package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/cursor-prompt/prompt-optimizer/internal/domain/optimization"
)

const fallbackTask = "Optimize the following prompt for clarity and efficiency."

func (p *Pipeline) runMetadataExtraction(ctx context.Context, state *runState) (string, error) {
	content := state.template.Content

	variables, err := p.engine.ExtractVariables(content)
	if err != nil {
		return stageMetadataExtraction, fmtStageErr(stageMetadataExtraction, err)
	}

	conditionals := strings.Count(content, "{{#if") + strings.Count(content, "{{#unless")
	loops := strings.Count(content, "{{#each")
	partials := partialNames(content)

	score := len(content)/500 + len(variables)/5 + conditionals + loops + len(partials)
	if score > 10 {
		score = 10
	}

	state.metadata = Metadata{
		ComplexityScore:     score,
		TokenEstimate:       int(math.Ceil(float64(len(content)) / 4)),
		IncludeDependencies: partials,
		VariableCount:       len(variables),
	}
	return stageMetadataExtraction, nil
}

func partialNames(content string) []string {
	seen := make(map[string]bool)
	var names []string
	remaining := content
	for {
		idx := strings.Index(remaining, "{{>")
		if idx == -1 {
			break
		}
		end := strings.Index(remaining[idx:], "}}")
		if end == -1 {
			break
		}
		end += idx
		fields := strings.Fields(strings.TrimSpace(remaining[idx+3 : end]))
		if len(fields) > 0 && !seen[fields[0]] {
			seen[fields[0]] = true
			names = append(names, fields[0])
		}
		remaining = remaining[end+2:]
	}
	return names
}

func (p *Pipeline) runContextPreparation(ctx context.Context, state *runState) (string, error) {
	targetModel := state.request.TargetModel
	if targetModel == "" {
		targetModel = state.config.DefaultModel
	}

	task := state.request.Task
	if task == "" {
		task = state.template.Description
	}
	if task == "" {
		task = fallbackTask
	}

	maxLength := state.config.MaxPromptLength
	if v, ok := state.request.Metadata["max_length"]; ok {
		if f, ok := toFloat(v); ok {
			maxLength = int(f)
		}
	}

	state.optContext = OptimizationContext{
		TemplateID:  state.templateID,
		TargetModel: targetModel,
		Task:        task,
		Constraints: Constraints{
			MaxLength:         maxLength,
			PreserveVariables: true,
			MaintainStructure: true,
		},
	}
	return stageContextPreparation, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	default:
		return 0, false
	}
}

func (p *Pipeline) runPreprocessing(ctx context.Context, state *runState) (string, error) {
	if !state.config.EnablePreprocessing {
		state.processed = processedText{Body: state.optContext.Task, Mapping: map[string]string{}}
		return stagePreprocessing, nil
	}

	normalized := normalizeWhitespace(state.optContext.Task)
	body, mapping := tokenizePlaceholders(normalized)
	state.processed = processedText{Body: body, Mapping: mapping}
	return stagePreprocessing, nil
}

func normalizeWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// tokenizePlaceholders replaces every {{...}} occurrence with a stable
// opaque token and returns the mapping needed to restore them later. It
// never mutates the original template content — only the auxiliary task
// string passed to the optimizer backend.
func tokenizePlaceholders(s string) (string, map[string]string) {
	mapping := make(map[string]string)
	var out strings.Builder
	remaining := s
	count := 0
	for {
		start := strings.Index(remaining, "{{")
		if start == -1 {
			out.WriteString(remaining)
			break
		}
		end := strings.Index(remaining[start:], "}}")
		if end == -1 {
			out.WriteString(remaining)
			break
		}
		end += start + 2
		placeholder := remaining[start:end]
		token := fmt.Sprintf("__VAR_%d__", count)
		count++
		mapping[token] = placeholder

		out.WriteString(remaining[:start])
		out.WriteString(token)
		remaining = remaining[end:]
	}
	return out.String(), mapping
}

func (p *Pipeline) runExampleGeneration(ctx context.Context, state *runState) (string, error) {
	max := state.config.FewShotCount
	if state.request.FewShotCount > 0 && state.request.FewShotCount < max {
		max = state.request.FewShotCount
	}
	if len(state.request.Examples) > 0 {
		examples := state.request.Examples
		if len(examples) > max {
			examples = examples[:max]
		}
		state.examples = examples
		return stageExampleGeneration, nil
	}

	category := strings.ToLower(state.template.Metadata.Category)
	pool := exampleSetFor(category)
	if max < len(pool) {
		pool = pool[:max]
	}
	state.examples = pool
	return stageExampleGeneration, nil
}

func exampleSetFor(category string) []optimization.Example {
	switch category {
	case "coding":
		return []optimization.Example{
			{Input: "Write a function to reverse a string.", Output: "func reverse(s string) string { ... }"},
			{Input: "Add error handling to a file read.", Output: "if err != nil { return fmt.Errorf(...) }"},
		}
	case "analysis":
		return []optimization.Example{
			{Input: "Summarize the quarterly sales trend.", Output: "Sales grew 12% QoQ, driven by..."},
			{Input: "Identify the outlier in this dataset.", Output: "Row 42 deviates by 3 standard deviations."},
		}
	default:
		return []optimization.Example{
			{Input: "Explain this concept simply.", Output: "In plain terms, it means..."},
		}
	}
}

func (p *Pipeline) runRequestBuilding(ctx context.Context, state *runState) (string, error) {
	meta := map[string]interface{}{
		"template_id":      state.templateID,
		"template_version": state.template.Version,
		"author":           state.template.Metadata.Author,
	}
	state.builtRequest = optimization.Request{
		Task:              state.processed.Body,
		OriginalPrompt:    state.template.Content,
		TargetModel:       state.optContext.TargetModel,
		RefineIterations:  firstPositive(state.request.RefineIterations, state.config.RefineIterations),
		FewShotCount:      len(state.examples),
		GenerateReasoning: state.config.GenerateReasoning,
		Examples:          state.examples,
		Metadata:          meta,
		SkipCache:         !state.config.EnableCaching,
	}
	return stageRequestBuilding, nil
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
