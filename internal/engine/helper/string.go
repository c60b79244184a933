package helper

import "strings"

func registerStringHelpers(r *Registry) {
	r.Register("uppercase", func(args ...interface{}) interface{} {
		return strings.ToUpper(toString(argAt(args, 0)))
	})
	r.Register("lowercase", func(args ...interface{}) interface{} {
		return strings.ToLower(toString(argAt(args, 0)))
	})
	r.Register("capitalize", func(args ...interface{}) interface{} {
		s := toString(argAt(args, 0))
		if s == "" {
			return s
		}
		return strings.ToUpper(s[:1]) + s[1:]
	})
	r.Register("trim", func(args ...interface{}) interface{} {
		return strings.TrimSpace(toString(argAt(args, 0)))
	})
	r.Register("replace", func(args ...interface{}) interface{} {
		s := toString(argAt(args, 0))
		old := toString(argAt(args, 1))
		n := toString(argAt(args, 2))
		return strings.Replace(s, old, n, 1)
	})
	r.Register("substring", func(args ...interface{}) interface{} {
		s := toString(argAt(args, 0))
		start, _ := toFloat(argAt(args, 1))
		end := float64(len(s))
		if len(args) > 2 {
			if e, ok := toFloat(argAt(args, 2)); ok {
				end = e
			}
		}
		si, ei := int(start), int(end)
		if si < 0 {
			si = 0
		}
		if ei > len(s) {
			ei = len(s)
		}
		if si >= ei || si > len(s) {
			return ""
		}
		return s[si:ei]
	})
	r.Register("length", func(args ...interface{}) interface{} {
		switch v := argAt(args, 0).(type) {
		case string:
			return len(v)
		case []interface{}:
			return len(v)
		case map[string]interface{}:
			return len(v)
		default:
			return 0
		}
	})
	r.Register("contains", func(args ...interface{}) interface{} {
		return strings.Contains(toString(argAt(args, 0)), toString(argAt(args, 1)))
	})
	r.Register("startsWith", func(args ...interface{}) interface{} {
		return strings.HasPrefix(toString(argAt(args, 0)), toString(argAt(args, 1)))
	})
	r.Register("endsWith", func(args ...interface{}) interface{} {
		return strings.HasSuffix(toString(argAt(args, 0)), toString(argAt(args, 1)))
	})
	r.Register("split", func(args ...interface{}) interface{} {
		s := toString(argAt(args, 0))
		sep := toString(argAt(args, 1))
		if sep == "" {
			sep = ","
		}
		parts := strings.Split(s, sep)
		out := make([]interface{}, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out
	})
	r.Register("join", func(args ...interface{}) interface{} {
		s := toSlice(argAt(args, 0))
		sep := toString(argAt(args, 1))
		if sep == "" {
			sep = ","
		}
		parts := make([]string, len(s))
		for i, v := range s {
			parts[i] = toString(v)
		}
		return strings.Join(parts, sep)
	})
}
