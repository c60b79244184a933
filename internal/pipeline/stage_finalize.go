package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cursor-prompt/prompt-optimizer/internal/domain/template"
	apperrors "github.com/cursor-prompt/prompt-optimizer/pkg/errors"
)

func (p *Pipeline) runPostprocessing(ctx context.Context, state *runState) (string, error) {
	if !state.config.EnablePostprocessing {
		return stagePostprocessing, nil
	}

	restored := state.result.OptimizedPrompt
	for token, placeholder := range state.processed.Mapping {
		restored = strings.ReplaceAll(restored, token, placeholder)
	}
	state.result.OptimizedPrompt = restored

	originalTokens := float64(int(math.Ceil(float64(len(state.template.Content)) / 4)))
	optimizedTokens := float64(int(math.Ceil(float64(len(restored)) / 4)))
	if originalTokens > 0 {
		state.result.Metrics.TokenReduction = (originalTokens - optimizedTokens) / originalTokens
	}
	return stagePostprocessing, nil
}

func (p *Pipeline) runValidation(ctx context.Context, state *runState) (string, error) {
	if !state.config.EnableValidation {
		return stageValidation, nil
	}

	m := state.result.Metrics
	if m.AccuracyImprovement <= 0 && m.TokenReduction <= 0 {
		return stageValidation, fmtStageErr(stageValidation,
			apperrors.NewValidationError("optimization produced neither an accuracy nor a token improvement"))
	}

	originalPlaceholders := placeholderSet(state.template.Content)
	optimizedPlaceholders := placeholderSet(state.result.OptimizedPrompt)
	for ph := range optimizedPlaceholders {
		if !originalPlaceholders[ph] {
			p.logger.Warn("optimized content introduced a placeholder absent from the original",
				zap.String("placeholder", ph), zap.String("template_id", state.templateID))
		}
	}

	if state.result.Confidence != nil && *state.result.Confidence < state.config.MinConfidence {
		return stageValidation, fmtStageErr(stageValidation,
			apperrors.NewValidationError(fmt.Sprintf("confidence %.2f below minimum %.2f",
				*state.result.Confidence, state.config.MinConfidence)))
	}
	return stageValidation, nil
}

func placeholderSet(content string) map[string]bool {
	set := make(map[string]bool)
	remaining := content
	for {
		start := strings.Index(remaining, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(remaining[start:], "}}")
		if end == -1 {
			break
		}
		end += start + 2
		set[remaining[start:end]] = true
		remaining = remaining[end:]
	}
	return set
}

func (p *Pipeline) runTemplateUpdate(ctx context.Context, state *runState) (string, error) {
	optimizedID := state.templateID + "_optimized"
	now := time.Now().UTC()

	optimized := template.Template{
		ID:          optimizedID,
		Name:        state.template.Name + " (Optimized)",
		Version:     state.template.Version,
		Description: state.template.Description,
		Content:     state.result.OptimizedPrompt,
		Variables:   state.template.Variables,
		Files:       state.template.Files,
		Commands:    state.template.Commands,
		Metadata: template.Metadata{
			Author:    state.template.Metadata.Author,
			Tags:      state.template.Metadata.Tags,
			Category:  state.template.Metadata.Category,
			CreatedAt: now,
			UpdatedAt: now,
			Extra: map[string]string{
				"original_template_id": state.templateID,
				"optimized_at":         now.Format(time.RFC3339),
				"accuracy_improvement": fmt.Sprintf("%.4f", state.result.Metrics.AccuracyImprovement),
				"token_reduction":      fmt.Sprintf("%.4f", state.result.Metrics.TokenReduction),
			},
		},
	}

	if p.saver == nil {
		return stageTemplateUpdate, nil
	}
	if err := p.saver.SaveTemplate(ctx, optimized); err != nil {
		return stageTemplateUpdate, fmtStageErr(stageTemplateUpdate, err)
	}
	return stageTemplateUpdate, nil
}
