package transform

import (
	"math"
	"strconv"
)

func registerNumberTransforms(r *Registry) {
	r.Register("abs", func(v interface{}, args ...interface{}) interface{} {
		f, _ := toFloat(v)
		return math.Abs(f)
	})
	r.Register("ceil", func(v interface{}, args ...interface{}) interface{} {
		f, _ := toFloat(v)
		return math.Ceil(f)
	})
	r.Register("floor", func(v interface{}, args ...interface{}) interface{} {
		f, _ := toFloat(v)
		return math.Floor(f)
	})
	r.Register("round", func(v interface{}, args ...interface{}) interface{} {
		f, _ := toFloat(v)
		prec := argInt(args, 0, 0)
		mult := math.Pow(10, float64(prec))
		return math.Round(f*mult) / mult
	})
	r.Register("toFixed", func(v interface{}, args ...interface{}) interface{} {
		f, _ := toFloat(v)
		d := argInt(args, 0, 2)
		return strconv.FormatFloat(f, 'f', d, 64)
	})
	r.Register("toPrecision", func(v interface{}, args ...interface{}) interface{} {
		f, _ := toFloat(v)
		p := argInt(args, 0, 2)
		return strconv.FormatFloat(f, 'g', p, 64)
	})
	r.Register("toExponential", func(v interface{}, args ...interface{}) interface{} {
		f, _ := toFloat(v)
		if len(args) == 0 || args[0] == nil {
			return strconv.FormatFloat(f, 'e', -1, 64)
		}
		return strconv.FormatFloat(f, 'e', argInt(args, 0, 6), 64)
	})
	r.Register("parseInt", func(v interface{}, args ...interface{}) interface{} {
		radix := argInt(args, 0, 10)
		i, err := strconv.ParseInt(toString(v), radix, 64)
		if err != nil {
			return 0
		}
		return i
	})
	r.Register("parseFloat", func(v interface{}, args ...interface{}) interface{} {
		f, ok := toFloat(v)
		if !ok {
			return 0.0
		}
		return f
	})
}
