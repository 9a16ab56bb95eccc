package exprcalc

import (
	"math"

	"github.com/cockroachdb/errors"
)

var constants = map[string]float64{
	"pi":  math.Pi,
	"e":   math.E,
	"tau": 2 * math.Pi,
}

type function struct {
	minArgs int
	maxArgs int // -1 for variadic
	fn      func(args []float64) (float64, error)
}

func unary(fn func(float64) float64) function {
	return function{minArgs: 1, maxArgs: 1, fn: func(args []float64) (float64, error) {
		return fn(args[0]), nil
	}}
}

func positive(name string, fn func(float64) float64) function {
	return function{minArgs: 1, maxArgs: 1, fn: func(args []float64) (float64, error) {
		if args[0] <= 0 {
			return 0, errors.Wrapf(ErrDomain, "%s of a non-positive number", name)
		}
		return fn(args[0]), nil
	}}
}

var functions = map[string]function{
	"abs":   unary(math.Abs),
	"floor": unary(math.Floor),
	"ceil":  unary(math.Ceil),
	"exp":   unary(math.Exp),
	"sin":   unary(math.Sin),
	"cos":   unary(math.Cos),
	"tan":   unary(math.Tan),
	"ln":    positive("ln", math.Log),
	"log10": positive("log10", math.Log10),
	"log2":  positive("log2", math.Log2),
	"sqrt": {minArgs: 1, maxArgs: 1, fn: func(args []float64) (float64, error) {
		if args[0] < 0 {
			return 0, errors.Wrap(ErrDomain, "square root of a negative number")
		}
		return math.Sqrt(args[0]), nil
	}},
	"log": {minArgs: 1, maxArgs: 2, fn: func(args []float64) (float64, error) {
		if args[0] <= 0 {
			return 0, errors.Wrap(ErrDomain, "log of a non-positive number")
		}
		if len(args) == 1 {
			return math.Log(args[0]), nil
		}
		base := args[1]
		if base <= 0 || base == 1 {
			return 0, errors.Wrapf(ErrDomain, "invalid logarithm base %v", base)
		}
		return math.Log(args[0]) / math.Log(base), nil
	}},
	"round": {minArgs: 1, maxArgs: 2, fn: func(args []float64) (float64, error) {
		if len(args) == 1 {
			return math.RoundToEven(args[0]), nil
		}
		scale := math.Pow(10, math.Trunc(args[1]))
		return math.RoundToEven(args[0]*scale) / scale, nil
	}},
	"pow": {minArgs: 2, maxArgs: 2, fn: func(args []float64) (float64, error) {
		if args[0] == 0 && args[1] < 0 {
			return 0, errors.Wrap(ErrDivisionByZero, "zero raised to a negative power")
		}
		return math.Pow(args[0], args[1]), nil
	}},
	"hypot": {minArgs: 2, maxArgs: 2, fn: func(args []float64) (float64, error) {
		return math.Hypot(args[0], args[1]), nil
	}},
	"min": {minArgs: 1, maxArgs: -1, fn: func(args []float64) (float64, error) {
		m := args[0]
		for _, v := range args[1:] {
			m = math.Min(m, v)
		}
		return m, nil
	}},
	"max": {minArgs: 1, maxArgs: -1, fn: func(args []float64) (float64, error) {
		m := args[0]
		for _, v := range args[1:] {
			m = math.Max(m, v)
		}
		return m, nil
	}},
}

func call(name string, args []float64) (float64, error) {
	f, ok := functions[name]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownIdentifier, "function %q", name)
	}
	if len(args) < f.minArgs || (f.maxArgs >= 0 && len(args) > f.maxArgs) {
		return 0, errors.Wrapf(ErrArity, "%s() got %d", name, len(args))
	}
	return f.fn(args)
}
