package pipeline

import (
	"context"

	apperrors "github.com/cursor-prompt/prompt-optimizer/pkg/errors"
)

func (p *Pipeline) runOptimization(ctx context.Context, state *runState) (string, error) {
	if p.backend == nil {
		return stageOptimization, fmtStageErr(stageOptimization,
			apperrors.NewBackendUnreachableError(nil))
	}

	result, err := p.backend.Optimize(ctx, state.builtRequest)
	if err != nil {
		return stageOptimization, fmtStageErr(stageOptimization, err)
	}
	state.result = result
	return stageOptimization, nil
}
