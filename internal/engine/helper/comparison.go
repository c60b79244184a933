package helper

import "fmt"

func registerComparisonHelpers(r *Registry) {
	r.Register("eq", func(args ...interface{}) interface{} {
		return looseEqual(argAt(args, 0), argAt(args, 1))
	})
	r.Register("neq", func(args ...interface{}) interface{} {
		return !looseEqual(argAt(args, 0), argAt(args, 1))
	})
	r.Register("lt", func(args ...interface{}) interface{} {
		a, b, ok := numPair(args)
		return ok && a < b
	})
	r.Register("gt", func(args ...interface{}) interface{} {
		a, b, ok := numPair(args)
		return ok && a > b
	})
	r.Register("lte", func(args ...interface{}) interface{} {
		a, b, ok := numPair(args)
		return ok && a <= b
	})
	r.Register("gte", func(args ...interface{}) interface{} {
		a, b, ok := numPair(args)
		return ok && a >= b
	})
}

func numPair(args []interface{}) (float64, float64, bool) {
	a, aok := toFloat(argAt(args, 0))
	b, bok := toFloat(argAt(args, 1))
	return a, b, aok && bok
}

func looseEqual(a, b interface{}) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
