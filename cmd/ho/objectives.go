package main

import (
	"fmt"
	"math"
	"sort"
)

// objective evaluates params and returns the value to minimize.
type objective func(params map[string]any) (float64, error)

var objectives = map[string]objective{
	"sphere":     sphere,
	"branin":     branin,
	"rosenbrock": rosenbrock,
}

func lookupObjective(name string) (objective, error) {
	f, ok := objectives[name]
	if !ok {
		names := make([]string, 0, len(objectives))
		for n := range objectives {
			names = append(names, n)
		}

		sort.Strings(names)

		return nil, fmt.Errorf("unknown objective %q, expected one of %v", name, names)
	}

	return f, nil
}

// numeric returns the numeric params in name order.
func numeric(params map[string]any) ([]float64, error) {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}

	sort.Strings(names)

	out := make([]float64, 0, len(names))

	for _, name := range names {
		switch v := params[name].(type) {
		case float64:
			out = append(out, v)
		case int:
			out = append(out, float64(v))
		default:
			return nil, fmt.Errorf("param %s: %v is not numeric", name, v)
		}
	}

	return out, nil
}

// sphere is sum(x_i^2), minimum 0 at the origin.
func sphere(params map[string]any) (float64, error) {
	xs, err := numeric(params)
	if err != nil {
		return 0, err
	}

	var sum float64
	for _, x := range xs {
		sum += x * x
	}

	return sum, nil
}

// branin takes exactly two params, minimum 0.397887 at three points, e.g.
// (pi, 2.275) with x1 in [-5, 10] and x2 in [0, 15].
func branin(params map[string]any) (float64, error) {
	xs, err := numeric(params)
	if err != nil {
		return 0, err
	}

	if len(xs) != 2 {
		return 0, fmt.Errorf("branin takes 2 params, got %d", len(xs))
	}

	const (
		a = 1.0
		r = 6.0
		s = 10.0
	)

	b := 5.1 / (4 * math.Pi * math.Pi)
	c := 5 / math.Pi
	t := 1 / (8 * math.Pi)

	x1, x2 := xs[0], xs[1]
	q := x2 - b*x1*x1 + c*x1 - r

	return a*q*q + s*(1-t)*math.Cos(x1) + s, nil
}

// rosenbrock is the banana function over consecutive params, minimum 0 at
// (1, ..., 1).
func rosenbrock(params map[string]any) (float64, error) {
	xs, err := numeric(params)
	if err != nil {
		return 0, err
	}

	if len(xs) < 2 {
		return 0, fmt.Errorf("rosenbrock takes at least 2 params, got %d", len(xs))
	}

	var sum float64

	for i := 0; i < len(xs)-1; i++ {
		d := xs[i+1] - xs[i]*xs[i]
		e := 1 - xs[i]
		sum += 100*d*d + e*e
	}

	return sum, nil
}
