package helper

func registerTypeHelpers(r *Registry) {
	r.Register("isArray", func(args ...interface{}) interface{} {
		_, ok := argAt(args, 0).([]interface{})
		return ok
	})
	r.Register("isObject", func(args ...interface{}) interface{} {
		_, ok := argAt(args, 0).(map[string]interface{})
		return ok
	})
	r.Register("isString", func(args ...interface{}) interface{} {
		_, ok := argAt(args, 0).(string)
		return ok
	})
	r.Register("isNumber", func(args ...interface{}) interface{} {
		_, ok := toFloat(argAt(args, 0))
		return ok
	})
	r.Register("isBoolean", func(args ...interface{}) interface{} {
		_, ok := argAt(args, 0).(bool)
		return ok
	})
	r.Register("isNull", func(args ...interface{}) interface{} {
		return argAt(args, 0) == nil
	})
	r.Register("isUndefined", func(args ...interface{}) interface{} {
		return len(args) == 0 || args[0] == nil
	})
	r.Register("isDefined", func(args ...interface{}) interface{} {
		return len(args) > 0 && args[0] != nil
	})
	r.Register("isEmpty", func(args ...interface{}) interface{} {
		v := argAt(args, 0)
		switch val := v.(type) {
		case nil:
			return true
		case string:
			return val == ""
		case []interface{}:
			return len(val) == 0
		case map[string]interface{}:
			return len(val) == 0
		default:
			return false
		}
	})
}
