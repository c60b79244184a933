// Package engine implements the Mustache/Handlebars-style template
// renderer: include resolution, nested block structures (#if/#unless/
// #each), partials, pipe transforms, and bare variable substitution.
package engine

import (
	"os"

	"go.uber.org/zap"

	"github.com/cursor-prompt/prompt-optimizer/internal/domain/template"
	"github.com/cursor-prompt/prompt-optimizer/internal/engine/helper"
	"github.com/cursor-prompt/prompt-optimizer/internal/engine/transform"
	apperrors "github.com/cursor-prompt/prompt-optimizer/pkg/errors"
)

// Engine renders Template content against a RenderContext. It owns the
// transform and helper registries and the partial store; a single Engine
// is safe for concurrent use once constructed.
type Engine struct {
	logger     *zap.Logger
	transforms *transform.Registry
	helpers    *helper.Registry
	partials   *partialStore
}

// New constructs an Engine with every built-in transform and helper
// registered.
func New(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		logger:     logger,
		transforms: transform.New(logger),
		helpers:    helper.New(logger),
		partials:   newPartialStore(),
	}
}

// ValidationResult reports which of a template's required variables are
// unresolved against a given context.
type ValidationResult struct {
	Valid   bool     `json:"valid"`
	Missing []string `json:"missing,omitempty"`
}

// Render resolves includes, blocks, partials, pipe transforms, and bare
// variables, in that order, and returns the rendered string. It fails on
// include cycles, missing includes, or include-depth overflow; it never
// fails on a missing variable.
func (e *Engine) Render(content string, ctx template.RenderContext) (string, error) {
	if ctx == nil {
		ctx = template.RenderContext{}
	}
	return e.renderInternal(content, ctx)
}

// RenderFile reads the template at path and renders it.
func (e *Engine) RenderFile(path string, ctx template.RenderContext) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", apperrors.New(apperrors.CategoryFilesystem, apperrors.CodeFileNotFound,
			apperrors.SeverityMedium, "template file not found").WithCause(err).WithEntity(path)
	}
	return e.Render(string(data), ctx)
}

func (e *Engine) renderInternal(content string, ctx template.RenderContext) (string, error) {
	withIncludes, err := e.resolveIncludes(content, make(map[string]bool), 0)
	if err != nil {
		return "", err
	}
	withBlocks, err := e.resolveBlocks(withIncludes, ctx)
	if err != nil {
		return "", err
	}
	withPartials, err := e.resolvePartials(withBlocks, ctx)
	if err != nil {
		return "", err
	}
	return e.resolveVariables(withPartials, ctx), nil
}

// ValidateContext reports whether every variable extracted from content
// resolves against ctx. A present key with a null value counts as
// resolved; only an absent key counts as missing.
func (e *Engine) ValidateContext(content string, ctx template.RenderContext) (ValidationResult, error) {
	vars, err := e.ExtractVariables(content)
	if err != nil {
		return ValidationResult{}, err
	}
	var missing []string
	for _, v := range vars {
		if _, ok := template.Lookup(ctx, v); !ok {
			missing = append(missing, v)
		}
	}
	return ValidationResult{Valid: len(missing) == 0, Missing: missing}, nil
}

// RegisterPartial registers a named partial body in memory.
func (e *Engine) RegisterPartial(name, body string) {
	e.partials.Register(name, body)
}

// RegisterPartialFromFile reads path and registers it as partial name.
func (e *Engine) RegisterPartialFromFile(name, path string) error {
	return e.partials.RegisterFromFile(name, path)
}

// SetPartialsDirectory sets the default directory used by a subsequent
// LoadPartials call with an empty argument.
func (e *Engine) SetPartialsDirectory(dir string) {
	e.partials.SetDirectory(dir)
}

// LoadPartials registers every file in dir as a partial named after its
// filename without extension. An empty dir falls back to the directory
// set by SetPartialsDirectory.
func (e *Engine) LoadPartials(dir string) error {
	return e.partials.LoadDirectory(dir)
}

// RegisterTransform adds or overrides a named pipe transform.
func (e *Engine) RegisterTransform(name string, fn transform.Func) {
	e.transforms.Register(name, fn)
}

// RegisterHelper adds or overrides a named tag helper.
func (e *Engine) RegisterHelper(name string, fn helper.Func) {
	e.helpers.Register(name, fn)
}
