// Package transform implements the named, pure value -> value function
// registry used in pipe-transform chains (`{{ path | t1 | t2:arg }}`).
package transform

import (
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Func is a transform's signature: the piped value plus any parsed chain
// arguments, returning the transformed value.
type Func func(value interface{}, args ...interface{}) interface{}

// Registry holds named transforms, populated at startup and read-only
// thereafter.
type Registry struct {
	logger *zap.Logger
	funcs  map[string]Func
}

// New creates a registry pre-populated with every built-in transform.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{logger: logger, funcs: make(map[string]Func)}
	registerStringTransforms(r)
	registerNumberTransforms(r)
	registerArrayTransforms(r)
	registerDateTransforms(r)
	registerFormatTransforms(r)
	registerUtilityTransforms(r)
	return r
}

// Register adds or overrides a named transform.
func (r *Registry) Register(name string, fn Func) {
	r.funcs[name] = fn
}

// Apply runs the named transform against value with args. Unknown
// transforms log a warning and return value unchanged.
func (r *Registry) Apply(name string, value interface{}, args ...interface{}) interface{} {
	fn, ok := r.funcs[name]
	if !ok {
		r.logger.Warn("unknown transform", zap.String("name", name))
		return value
	}
	return fn(value, args...)
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.funcs[name]
	return ok
}

// ApplyChain parses and applies a full pipe chain, e.g.
// "upper | truncate:20,...". Each segment is trimmed; the first segment
// before any `|` is not part of the chain (callers pass the already
// resolved starting value).
func (r *Registry) ApplyChain(value interface{}, chain string) interface{} {
	segments := strings.Split(chain, "|")
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		name, args := parseSegment(seg)
		value = r.Apply(name, value, args...)
	}
	return value
}

// parseSegment splits "name:arg1,arg2" into its name and parsed arguments.
func parseSegment(seg string) (string, []interface{}) {
	name := seg
	var rawArgs string
	if idx := strings.Index(seg, ":"); idx >= 0 {
		name = seg[:idx]
		rawArgs = seg[idx+1:]
	}
	name = strings.TrimSpace(name)
	if rawArgs == "" {
		return name, nil
	}
	parts := strings.Split(rawArgs, ",")
	args := make([]interface{}, 0, len(parts))
	for _, p := range parts {
		args = append(args, parseArgLiteral(strings.TrimSpace(p)))
	}
	return name, args
}

// parseArgLiteral parses a transform-chain argument token: booleans,
// null/undefined, integers, floats, or a raw string.
func parseArgLiteral(tok string) interface{} {
	switch tok {
	case "true":
		return true
	case "false":
		return false
	case "null", "undefined":
		return nil
	}
	if i, err := strconv.Atoi(tok); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return f
	}
	return tok
}
