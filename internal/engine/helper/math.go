package helper

import "math"

func registerMathHelpers(r *Registry) {
	r.Register("add", func(args ...interface{}) interface{} {
		a, b, ok := numPair(args)
		if !ok {
			return 0
		}
		return a + b
	})
	r.Register("subtract", func(args ...interface{}) interface{} {
		a, b, ok := numPair(args)
		if !ok {
			return 0
		}
		return a - b
	})
	r.Register("multiply", func(args ...interface{}) interface{} {
		a, b, ok := numPair(args)
		if !ok {
			return 0
		}
		return a * b
	})
	r.Register("divide", func(args ...interface{}) interface{} {
		a, b, ok := numPair(args)
		if !ok || b == 0 {
			return 0.0
		}
		return a / b
	})
	r.Register("mod", func(args ...interface{}) interface{} {
		a, b, ok := numPair(args)
		if !ok || b == 0 {
			return 0
		}
		return math.Mod(a, b)
	})
	r.Register("round", func(args ...interface{}) interface{} {
		a, ok := toFloat(argAt(args, 0))
		if !ok {
			return 0
		}
		return math.Round(a)
	})
	r.Register("floor", func(args ...interface{}) interface{} {
		a, ok := toFloat(argAt(args, 0))
		if !ok {
			return 0
		}
		return math.Floor(a)
	})
	r.Register("ceil", func(args ...interface{}) interface{} {
		a, ok := toFloat(argAt(args, 0))
		if !ok {
			return 0
		}
		return math.Ceil(a)
	})
	r.Register("abs", func(args ...interface{}) interface{} {
		a, ok := toFloat(argAt(args, 0))
		if !ok {
			return 0
		}
		return math.Abs(a)
	})
	r.Register("min", func(args ...interface{}) interface{} {
		a, b, ok := numPair(args)
		if !ok {
			return 0
		}
		return math.Min(a, b)
	})
	r.Register("max", func(args ...interface{}) interface{} {
		a, b, ok := numPair(args)
		if !ok {
			return 0
		}
		return math.Max(a, b)
	})
}
