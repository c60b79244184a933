package helper

import (
	"encoding/json"
	"time"
)

func registerUtilityHelpers(r *Registry) {
	r.Register("default", func(args ...interface{}) interface{} {
		v := argAt(args, 0)
		if !isTruthy(v) {
			return argAt(args, 1)
		}
		return v
	})
	r.Register("json", func(args ...interface{}) interface{} {
		out, err := json.Marshal(argAt(args, 0))
		if err != nil {
			return ""
		}
		return string(out)
	})
	r.Register("now", func(args ...interface{}) interface{} {
		return time.Now().UTC().Format(time.RFC3339)
	})
	r.Register("date", func(args ...interface{}) interface{} {
		format := "2006-01-02"
		if len(args) > 0 {
			format = toString(args[0])
		}
		return time.Now().UTC().Format(format)
	})
}
