package engine

import (
	"fmt"
	"strings"

	"github.com/cursor-prompt/prompt-optimizer/internal/domain/template"
	"github.com/cursor-prompt/prompt-optimizer/internal/engine/helper"
)

// resolveVariables resolves pipe-transform chains and bare variables, in
// that order, against ctx. A tag whose base path or helper is unresolvable
// is left textually intact.
func (e *Engine) resolveVariables(content string, ctx template.RenderContext) string {
	var out strings.Builder
	remaining := content
	for {
		start := strings.Index(remaining, "{{")
		if start == -1 {
			out.WriteString(remaining)
			break
		}
		tagEnd := strings.Index(remaining[start:], "}}")
		if tagEnd == -1 {
			out.WriteString(remaining)
			break
		}
		tagEnd += start

		raw := strings.TrimSpace(remaining[start+2 : tagEnd])
		out.WriteString(remaining[:start])

		if value, ok := e.resolveTagValue(raw, ctx); ok {
			out.WriteString(toDisplayString(value))
		} else {
			out.WriteString(remaining[start : tagEnd+2])
		}
		remaining = remaining[tagEnd+2:]
	}
	return out.String()
}

func (e *Engine) resolveTagValue(tag string, ctx template.RenderContext) (interface{}, bool) {
	parts := strings.SplitN(tag, "|", 2)
	base := strings.TrimSpace(parts[0])

	value, ok := e.resolveBase(base, ctx)
	if !ok {
		return nil, false
	}
	if len(parts) > 1 {
		value = e.transforms.ApplyChain(value, parts[1])
	}
	return value, true
}

func (e *Engine) resolveBase(base string, ctx template.RenderContext) (interface{}, bool) {
	fields := strings.Fields(base)
	if len(fields) > 1 {
		name := fields[0]
		if !e.helpers.Has(name) {
			return nil, false
		}
		argsRaw := strings.TrimSpace(strings.TrimPrefix(base, name))
		args := helper.ResolveArgs(ctx, argsRaw)
		return e.helpers.Call(name, args...), true
	}
	if value, ok := template.Lookup(ctx, base); ok {
		return value, true
	}
	if len(fields) == 1 && e.helpers.Has(fields[0]) {
		return e.helpers.Call(fields[0]), true
	}
	return nil, false
}

func toDisplayString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case int:
		return fmt.Sprintf("%d", val)
	case bool:
		return fmt.Sprintf("%t", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
