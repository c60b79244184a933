// Package helper implements the named N-ary function registry callable
// inside tags and conditions (`{{helperName arg arg}}`, `(name arg)`).
package helper

import "go.uber.org/zap"

// Func is a helper's signature: positional arguments already resolved
// against the render context, returning the helper's result.
type Func func(args ...interface{}) interface{}

// Registry holds named helpers, populated at startup and read-only
// thereafter.
type Registry struct {
	logger *zap.Logger
	funcs  map[string]Func
}

// New creates a registry pre-populated with every built-in helper.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{logger: logger, funcs: make(map[string]Func)}
	registerComparisonHelpers(r)
	registerLogicalHelpers(r)
	registerMathHelpers(r)
	registerStringHelpers(r)
	registerArrayHelpers(r)
	registerTypeHelpers(r)
	registerUtilityHelpers(r)
	return r
}

// Register adds or overrides a named helper.
func (r *Registry) Register(name string, fn Func) {
	r.funcs[name] = fn
}

// Has reports whether name is registered. Unknown helpers leave their tag
// textually intact — callers check Has before invoking Call.
func (r *Registry) Has(name string) bool {
	_, ok := r.funcs[name]
	return ok
}

// Call invokes the named helper. Callers must check Has first; Call on an
// unregistered name logs a warning and returns nil.
func (r *Registry) Call(name string, args ...interface{}) interface{} {
	fn, ok := r.funcs[name]
	if !ok {
		r.logger.Warn("unknown helper", zap.String("name", name))
		return nil
	}
	return fn(args...)
}
