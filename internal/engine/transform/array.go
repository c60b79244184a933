package transform

import (
	"fmt"
	"sort"
	"strings"
)

func registerArrayTransforms(r *Registry) {
	r.Register("first", func(v interface{}, args ...interface{}) interface{} {
		s := toSlice(v)
		k := argInt(args, 0, 1)
		if k <= 1 {
			if len(s) == 0 {
				return nil
			}
			return s[0]
		}
		if k > len(s) {
			k = len(s)
		}
		return append([]interface{}{}, s[:k]...)
	})
	r.Register("last", func(v interface{}, args ...interface{}) interface{} {
		s := toSlice(v)
		k := argInt(args, 0, 1)
		if k <= 1 {
			if len(s) == 0 {
				return nil
			}
			return s[len(s)-1]
		}
		if k > len(s) {
			k = len(s)
		}
		return append([]interface{}{}, s[len(s)-k:]...)
	})
	r.Register("reverse", func(v interface{}, args ...interface{}) interface{} {
		s := toSlice(v)
		out := make([]interface{}, len(s))
		for i, item := range s {
			out[len(s)-1-i] = item
		}
		return out
	})
	r.Register("sort", func(v interface{}, args ...interface{}) interface{} {
		s := append([]interface{}{}, toSlice(v)...)
		sort.Slice(s, func(i, j int) bool {
			return fmt.Sprintf("%v", s[i]) < fmt.Sprintf("%v", s[j])
		})
		return s
	})
	r.Register("sortBy", func(v interface{}, args ...interface{}) interface{} {
		key := argString(args, 0, "")
		s := append([]interface{}{}, toSlice(v)...)
		sort.Slice(s, func(i, j int) bool {
			return fmt.Sprintf("%v", fieldOf(s[i], key)) < fmt.Sprintf("%v", fieldOf(s[j], key))
		})
		return s
	})
	r.Register("unique", func(v interface{}, args ...interface{}) interface{} {
		s := toSlice(v)
		seen := make(map[string]bool, len(s))
		out := make([]interface{}, 0, len(s))
		for _, item := range s {
			key := fmt.Sprintf("%v", item)
			if !seen[key] {
				seen[key] = true
				out = append(out, item)
			}
		}
		return out
	})
	r.Register("join", func(v interface{}, args ...interface{}) interface{} {
		sep := argString(args, 0, ",")
		s := toSlice(v)
		parts := make([]string, len(s))
		for i, item := range s {
			parts[i] = toString(item)
		}
		return strings.Join(parts, sep)
	})
	r.Register("slice", func(v interface{}, args ...interface{}) interface{} {
		s := toSlice(v)
		start := argInt(args, 0, 0)
		end := len(s)
		if len(args) > 1 && args[1] != nil {
			end = argInt(args, 1, len(s))
		}
		start, end = clampRange(start, end, len(s))
		return append([]interface{}{}, s[start:end]...)
	})
	r.Register("take", func(v interface{}, args ...interface{}) interface{} {
		s := toSlice(v)
		n := argInt(args, 0, 0)
		if n > len(s) {
			n = len(s)
		}
		if n < 0 {
			n = 0
		}
		return append([]interface{}{}, s[:n]...)
	})
	r.Register("skip", func(v interface{}, args ...interface{}) interface{} {
		s := toSlice(v)
		n := argInt(args, 0, 0)
		if n > len(s) {
			n = len(s)
		}
		if n < 0 {
			n = 0
		}
		return append([]interface{}{}, s[n:]...)
	})
	r.Register("filter", func(v interface{}, args ...interface{}) interface{} {
		s := toSlice(v)
		key := argString(args, 0, "")
		expected := argString(args, 1, "")
		out := make([]interface{}, 0, len(s))
		for _, item := range s {
			if toString(fieldOf(item, key)) == expected {
				out = append(out, item)
			}
		}
		return out
	})
	r.Register("map", func(v interface{}, args ...interface{}) interface{} {
		s := toSlice(v)
		key := argString(args, 0, "")
		out := make([]interface{}, len(s))
		for i, item := range s {
			out[i] = fieldOf(item, key)
		}
		return out
	})
}

func fieldOf(item interface{}, key string) interface{} {
	if m, ok := item.(map[string]interface{}); ok {
		return m[key]
	}
	return nil
}

func clampRange(start, end, length int) (int, int) {
	if start < 0 {
		start = 0
	}
	if end > length {
		end = length
	}
	if start > end {
		start = end
	}
	return start, end
}
