package helper

func registerLogicalHelpers(r *Registry) {
	r.Register("and", func(args ...interface{}) interface{} {
		for _, a := range args {
			if !isTruthy(a) {
				return false
			}
		}
		return true
	})
	r.Register("or", func(args ...interface{}) interface{} {
		for _, a := range args {
			if isTruthy(a) {
				return true
			}
		}
		return false
	})
	r.Register("not", func(args ...interface{}) interface{} {
		return !isTruthy(argAt(args, 0))
	})
}
