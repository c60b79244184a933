package helper

import (
	"fmt"
	"sort"
)

func registerArrayHelpers(r *Registry) {
	r.Register("first", func(args ...interface{}) interface{} {
		s := toSlice(argAt(args, 0))
		if len(s) == 0 {
			return nil
		}
		return s[0]
	})
	r.Register("last", func(args ...interface{}) interface{} {
		s := toSlice(argAt(args, 0))
		if len(s) == 0 {
			return nil
		}
		return s[len(s)-1]
	})
	r.Register("length", func(args ...interface{}) interface{} {
		return len(toSlice(argAt(args, 0)))
	})
	r.Register("reverse", func(args ...interface{}) interface{} {
		s := toSlice(argAt(args, 0))
		out := make([]interface{}, len(s))
		for i, v := range s {
			out[len(s)-1-i] = v
		}
		return out
	})
	r.Register("sort", func(args ...interface{}) interface{} {
		s := toSlice(argAt(args, 0))
		out := append([]interface{}{}, s...)
		sort.Slice(out, func(i, j int) bool {
			return fmt.Sprintf("%v", out[i]) < fmt.Sprintf("%v", out[j])
		})
		return out
	})
	r.Register("unique", func(args ...interface{}) interface{} {
		s := toSlice(argAt(args, 0))
		seen := make(map[string]bool, len(s))
		out := make([]interface{}, 0, len(s))
		for _, v := range s {
			key := fmt.Sprintf("%v", v)
			if !seen[key] {
				seen[key] = true
				out = append(out, v)
			}
		}
		return out
	})
}
