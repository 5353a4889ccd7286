package nutrition

import (
	"fmt"
	"math"

	"mcp-meal-optimizer/internal/models"
	"mcp-meal-optimizer/internal/solver"
)

const (
	// DefaultUpperBound caps every food quantity, in grams.
	DefaultUpperBound = 2000.0
	// DefaultEpsilon guards the relative error against zero limits.
	DefaultEpsilon = 1e-6
	// StartOffset is added to each minimum to form the starting point.
	StartOffset = 10.0

	limitTolerance = 1e-9
)

// Minimizer is the constrained solver the optimizer delegates to.
type Minimizer interface {
	Minimize(p *solver.Problem, x0 []float64) (*solver.Result, error)
}

// Optimizer computes food quantities that fill nutrient limits as closely as
// the weights ask without exceeding any of them. It holds no per-call state
// and may be shared between goroutines.
type Optimizer struct {
	upperBound float64
	epsilon    float64
	minimizer  Minimizer
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithUpperBound overrides the per-food upper bound in grams.
func WithUpperBound(u float64) Option {
	return func(o *Optimizer) {
		if u > 0 {
			o.upperBound = u
		}
	}
}

// WithEpsilon overrides the zero-limit guard.
func WithEpsilon(eps float64) Option {
	return func(o *Optimizer) {
		if eps > 0 {
			o.epsilon = eps
		}
	}
}

// WithSolverOptions configures the default solver's iteration caps and tolerances.
func WithSolverOptions(opts solver.Options) Option {
	return func(o *Optimizer) {
		o.minimizer = solver.New(opts)
	}
}

// WithMinimizer replaces the solver.
func WithMinimizer(m Minimizer) Option {
	return func(o *Optimizer) {
		if m != nil {
			o.minimizer = m
		}
	}
}

// NewOptimizer returns an Optimizer with the default bound, epsilon and solver.
func NewOptimizer(opts ...Option) *Optimizer {
	o := &Optimizer{
		upperBound: DefaultUpperBound,
		epsilon:    DefaultEpsilon,
		minimizer:  solver.New(solver.DefaultOptions()),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// UpperBound returns the per-food upper bound in grams.
func (o *Optimizer) UpperBound() float64 {
	return o.upperBound
}

// Optimize solves
//
//	min Σ_k w_k·((limit_k − total_k)/(limit_k + ε))²
//	s.t. total_k ≤ limit_k, minimums_i ≤ x_i ≤ upper bound
//
// for the quantities x in grams. minimums may be nil, meaning all zero.
// Errors unwrap to ErrInput, ErrInfeasible or ErrNumericInstability.
func (o *Optimizer) Optimize(profiles []models.PerGramProfile, minimums []float64, limits, weights models.Nutrients) (*models.OptimizationResult, error) {
	if minimums == nil {
		minimums = make([]float64, len(profiles))
	}
	if err := o.validate(profiles, minimums, limits, weights); err != nil {
		return nil, err
	}
	if err := o.checkFeasible(profiles, minimums, limits); err != nil {
		return nil, err
	}

	n := len(profiles)
	p := o.problem(profiles, minimums, limits, weights)

	x0 := make([]float64, n)
	for i, m := range minimums {
		x0[i] = math.Min(m+StartOffset, o.upperBound)
	}

	res, err := o.minimizer.Minimize(p, x0)
	if err != nil {
		return nil, fmt.Errorf("failed to run solver: %w", err)
	}

	switch {
	case res.Mode == solver.NonFinite:
		return nil, &NumericInstabilityError{Reason: res.Mode.String()}
	case !res.Converged():
		return nil, &InfeasibleError{Reason: res.Mode.String()}
	}
	if len(res.X) != n {
		return nil, &NumericInstabilityError{Reason: fmt.Sprintf("solver returned %d quantities for %d foods", len(res.X), n)}
	}
	for i, v := range res.X {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &NumericInstabilityError{Food: profiles[i].Name, Value: v}
		}
	}

	x := make([]float64, n)
	for i, v := range res.X {
		x[i] = math.Min(math.Max(v, minimums[i]), o.upperBound)
	}
	restoreFeasibility(x, profiles, minimums, limits)

	totals := Totals(profiles, x)
	return &models.OptimizationResult{
		Quantities:  x,
		Success:     true,
		Totals:      totals,
		Fulfillment: Fulfillment(totals, limits),
		Objective:   p.Func(x),
		Iterations:  res.Iterations,
	}, nil
}

func (o *Optimizer) validate(profiles []models.PerGramProfile, minimums []float64, limits, weights models.Nutrients) error {
	if len(profiles) == 0 {
		return inputErrorf("profiles", "no foods to optimize")
	}
	if len(minimums) != len(profiles) {
		return inputErrorf("minimums", "got %d minimum bounds for %d foods", len(minimums), len(profiles))
	}
	for i, prof := range profiles {
		for _, axis := range models.Axes {
			if v := prof.PerGram.Get(axis); !finite(v) || v < 0 {
				return inputErrorf("profile", "food %q has %s coefficient %v", prof.Name, axis, v)
			}
		}
		if m := minimums[i]; !finite(m) || m < 0 {
			return inputErrorf("minimums", "minimum for %q is %v", prof.Name, m)
		}
	}
	for _, axis := range models.Axes {
		if v := limits.Get(axis); !finite(v) || v < 0 {
			return inputErrorf("limits", "%s limit is %v", axis, v)
		}
		if w := weights.Get(axis); !finite(w) || w <= 0 {
			return inputErrorf("weights", "%s weight is %v", axis, w)
		}
	}
	return nil
}

// checkFeasible rejects minimums that no point of the box can satisfy. All
// coefficients are non-negative, so the smallest reachable total on each axis
// is the one at the minimum bounds.
func (o *Optimizer) checkFeasible(profiles []models.PerGramProfile, minimums []float64, limits models.Nutrients) error {
	for i, m := range minimums {
		if m > o.upperBound {
			return &InfeasibleError{Food: profiles[i].Name, Limit: o.upperBound, Required: m}
		}
	}
	required := Totals(profiles, minimums)
	for _, axis := range models.Axes {
		limit := limits.Get(axis)
		if req := required.Get(axis); req > limit+limitTolerance*math.Max(1, limit) {
			return &InfeasibleError{Axis: axis.String(), Limit: limit, Required: req}
		}
	}
	return nil
}

func (o *Optimizer) problem(profiles []models.PerGramProfile, minimums []float64, limits, weights models.Nutrients) *solver.Problem {
	n := len(profiles)
	g := make([][]float64, len(models.Axes))
	h := make([]float64, len(models.Axes))
	denom := make([]float64, len(models.Axes))
	w := make([]float64, len(models.Axes))
	for k, axis := range models.Axes {
		g[k] = make([]float64, n)
		for i, prof := range profiles {
			g[k][i] = prof.PerGram.Get(axis)
		}
		h[k] = limits.Get(axis)
		denom[k] = h[k] + o.epsilon
		w[k] = weights.Get(axis)
	}

	upper := make([]float64, n)
	for i := range upper {
		upper[i] = o.upperBound
	}
	lower := make([]float64, n)
	copy(lower, minimums)

	// The same objective as a residual ‖Ex - F‖² so the solver can take it exactly.
	e := make([][]float64, len(models.Axes))
	f := make([]float64, len(models.Axes))
	for k := range g {
		s := math.Sqrt(w[k]) / denom[k]
		e[k] = make([]float64, n)
		for i, c := range g[k] {
			e[k][i] = s * c
		}
		f[k] = s * h[k]
	}

	residual := func(k int, x []float64) float64 {
		var total float64
		for i, c := range g[k] {
			total += c * x[i]
		}
		return (h[k] - total) / denom[k]
	}

	return &solver.Problem{
		Func: func(x []float64) float64 {
			var loss float64
			for k := range g {
				r := residual(k, x)
				loss += w[k] * r * r
			}
			return loss
		},
		Grad: func(grad, x []float64) {
			for i := range grad {
				grad[i] = 0
			}
			for k := range g {
				scale := -2 * w[k] * residual(k, x) / denom[k]
				for i, c := range g[k] {
					grad[i] += scale * c
				}
			}
		},
		Lower: lower,
		Upper: upper,
		G:     g,
		H:     h,
		E:     e,
		F:     f,
	}
}

// restoreFeasibility pulls the foods that contribute to an exceeded axis
// toward their minimum bounds until the axis total meets its limit. Foods
// without that nutrient keep their quantity. Shrinking never raises another
// total, so one pass over the axes suffices. The solver only guarantees
// feasibility within its tolerance.
func restoreFeasibility(x []float64, profiles []models.PerGramProfile, minimums []float64, limits models.Nutrients) {
	for _, axis := range models.Axes {
		var total, req float64
		for i, prof := range profiles {
			c := prof.PerGram.Get(axis)
			total += c * x[i]
			req += c * minimums[i]
		}
		limit := limits.Get(axis)
		if total <= limit || total <= req {
			continue
		}
		t := math.Max(0, (limit-req)/(total-req))
		for i, prof := range profiles {
			if prof.PerGram.Get(axis) > 0 {
				x[i] = minimums[i] + t*(x[i]-minimums[i])
			}
		}
	}
}

// Totals returns Σ_i quantities_i·profile_i on every axis.
func Totals(profiles []models.PerGramProfile, quantities []float64) models.Nutrients {
	var totals models.Nutrients
	for i, prof := range profiles {
		totals = totals.Add(prof.PerGram.Scale(quantities[i]))
	}
	return totals
}

// Fulfillment returns min(100, 100·total/limit) per axis, and 0 for a zero limit.
func Fulfillment(totals, limits models.Nutrients) models.Nutrients {
	var out models.Nutrients
	for _, axis := range models.Axes {
		limit := limits.Get(axis)
		if limit == 0 {
			continue
		}
		out.Set(axis, math.Max(0, math.Min(100, 100*totals.Get(axis)/limit)))
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
