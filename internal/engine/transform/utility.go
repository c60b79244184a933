package transform

import (
	"fmt"
	"sort"
)

func registerUtilityTransforms(r *Registry) {
	r.Register("default", func(v interface{}, args ...interface{}) interface{} {
		if v == nil {
			if len(args) > 0 {
				return args[0]
			}
			return nil
		}
		if s, ok := v.(string); ok && s == "" {
			if len(args) > 0 {
				return args[0]
			}
		}
		return v
	})
	r.Register("ternary", func(v interface{}, args ...interface{}) interface{} {
		truthy := isTruthyArg(v)
		if truthy {
			return argOr(args, 0, nil)
		}
		return argOr(args, 1, nil)
	})
	r.Register("typeof", func(v interface{}, args ...interface{}) interface{} {
		return typeName(v)
	})
	r.Register("length", func(v interface{}, args ...interface{}) interface{} {
		switch val := v.(type) {
		case string:
			return len(val)
		case []interface{}:
			return len(val)
		case map[string]interface{}:
			return len(val)
		default:
			return 0
		}
	})
	r.Register("keys", func(v interface{}, args ...interface{}) interface{} {
		m, ok := v.(map[string]interface{})
		if !ok {
			return []interface{}{}
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]interface{}, len(keys))
		for i, k := range keys {
			out[i] = k
		}
		return out
	})
	r.Register("values", func(v interface{}, args ...interface{}) interface{} {
		m, ok := v.(map[string]interface{})
		if !ok {
			return []interface{}{}
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]interface{}, len(keys))
		for i, k := range keys {
			out[i] = m[k]
		}
		return out
	})
	r.Register("entries", func(v interface{}, args ...interface{}) interface{} {
		m, ok := v.(map[string]interface{})
		if !ok {
			return []interface{}{}
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]interface{}, len(keys))
		for i, k := range keys {
			out[i] = []interface{}{k, m[k]}
		}
		return out
	})
}

func argOr(args []interface{}, idx int, def interface{}) interface{} {
	if idx >= len(args) {
		return def
	}
	return args[idx]
}

func isTruthyArg(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return len(val) > 0
	case int:
		return val != 0
	case float64:
		return val != 0
	case []interface{}:
		return len(val) > 0
	case map[string]interface{}:
		return len(val) > 0
	default:
		return true
	}
}

func typeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "undefined"
	case bool:
		return "boolean"
	case int, int64, float64:
		return "number"
	case string:
		return "string"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
