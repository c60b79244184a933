package transform

import (
	"fmt"
	"strconv"
)

// toString renders any value as its textual form, used by transforms that
// operate on strings regardless of the resolved value's native type.
func toString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// toFloat coerces a value to float64, returning (0, false) if it cannot be
// interpreted numerically.
func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// toInt coerces a value to int, defaulting to 0 when it cannot be
// interpreted numerically.
func toInt(v interface{}) int {
	f, ok := toFloat(v)
	if !ok {
		return 0
	}
	return int(f)
}

// toSlice coerces a value to []interface{}, returning nil if it is not an
// array-shaped value.
func toSlice(v interface{}) []interface{} {
	if s, ok := v.([]interface{}); ok {
		return s
	}
	return nil
}

// argString returns args[idx] as a string, or def if idx is out of range.
func argString(args []interface{}, idx int, def string) string {
	if idx >= len(args) || args[idx] == nil {
		return def
	}
	return toString(args[idx])
}

// argInt returns args[idx] as an int, or def if idx is out of range.
func argInt(args []interface{}, idx int, def int) int {
	if idx >= len(args) || args[idx] == nil {
		return def
	}
	return toInt(args[idx])
}
