// Package solver minimizes a smooth objective over a box subject to linear
// inequality constraints.
//
// The method is a safeguarded augmented Lagrangian: the linear constraints
// Gx ≤ h are moved into a PHR penalty term and each subproblem
// min Φ(x) s.t. l ≤ x ≤ u is solved with a spectral projected gradient
// iteration. Both loops carry hard iteration caps so a call always returns
// in bounded time.
//
// Problems that state their objective as a linear least-squares residual
// ‖Ex - F‖² skip the iteration and are solved exactly through least
// distance programming.
package solver

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Mode reports how a minimization ended.
type Mode int

const (
	// Converged means the final point is feasible within FeasTol and stationary within Tol.
	Converged Mode = iota
	// BadArgument means the problem dimensions or bounds are unusable.
	BadArgument
	// Infeasible means the constraints admit no point, or the penalty parameter
	// hit its cap while they remained violated.
	Infeasible
	// MaxIterations means the outer iteration cap was reached first.
	MaxIterations
	// NonFinite means the objective or gradient evaluated to NaN or ±Inf.
	NonFinite
)

func (m Mode) String() string {
	switch m {
	case Converged:
		return "converged"
	case BadArgument:
		return "bad argument"
	case Infeasible:
		return "inequality constraints incompatible"
	case MaxIterations:
		return "iteration limit exceeded"
	case NonFinite:
		return "non-finite evaluation"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Problem describes min f(x) s.t. Gx ≤ H, Lower ≤ x ≤ Upper.
type Problem struct {
	// Func evaluates the objective.
	Func func(x []float64) float64
	// Grad stores ∇f(x) in grad. Optional: forward differences are used when nil.
	Grad func(grad, x []float64)

	Lower []float64
	Upper []float64

	// G holds one row of length n per inequality constraint.
	G [][]float64
	H []float64

	// E and F optionally restate f as ‖Ex - F‖². When E is set Minimize
	// solves the problem directly and Func is only evaluated at the answer.
	E [][]float64
	F []float64
}

// Options bounds the work done by Minimize.
type Options struct {
	// MaxIter caps augmented Lagrangian (outer) iterations.
	MaxIter int
	// MaxInnerIter caps projected gradient iterations per subproblem.
	MaxInnerIter int
	// Tol is the projected gradient sup-norm accepted as stationary,
	// relative to max(1, the norm at the start of each subproblem).
	Tol float64
	// FeasTol is the accepted constraint violation, relative to max(1, |h_k|).
	FeasTol float64
}

// DefaultOptions returns the caps used when none are configured.
func DefaultOptions() Options {
	return Options{
		MaxIter:      100,
		MaxInnerIter: 3000,
		Tol:          1e-9,
		FeasTol:      1e-7,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxIter <= 0 {
		o.MaxIter = d.MaxIter
	}
	if o.MaxInnerIter <= 0 {
		o.MaxInnerIter = d.MaxInnerIter
	}
	if o.Tol <= 0 {
		o.Tol = d.Tol
	}
	if o.FeasTol <= 0 {
		o.FeasTol = d.FeasTol
	}
	return o
}

// Result is the outcome of a minimization.
type Result struct {
	X []float64
	F float64
	// Multipliers holds the Lagrange multiplier estimate of each inequality constraint.
	Multipliers []float64
	// MaxViolation is the largest scaled violation max(0, (G_k·x - h_k)/max(1,|h_k|)).
	MaxViolation float64
	Iterations   int
	InnerIter    int
	Evaluations  int
	Mode         Mode
}

// Converged reports whether the minimization converged.
func (r *Result) Converged() bool {
	return r.Mode == Converged
}

// Solver is a reusable, stateless augmented Lagrangian minimizer.
type Solver struct {
	Options Options
}

// New returns a Solver using opts, with unset fields taken from DefaultOptions.
func New(opts Options) *Solver {
	return &Solver{Options: opts.withDefaults()}
}

// Minimize solves p starting from x0. x0 is not modified.
func (s *Solver) Minimize(p *Problem, x0 []float64) (*Result, error) {
	return Minimize(p, x0, s.Options)
}

const (
	rhoInit   = 10.0
	rhoGrowth = 10.0
	rhoMax    = 1e12
	lambdaMax = 1e20
	// A subproblem whose constraint measure did not shrink by this factor raises the penalty.
	decreaseFactor = 0.5
)

// Minimize solves p from x0 with opts. The returned error is non-nil only
// for malformed problems; convergence is reported through Result.Mode.
func Minimize(p *Problem, x0 []float64, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if err := p.validate(x0); err != nil {
		return &Result{Mode: BadArgument}, err
	}

	n := len(x0)
	m := len(p.H)

	x := make([]float64, n)
	copy(x, x0)
	project(x, p.Lower, p.Upper)
	if len(p.E) > 0 {
		return minimizeLeastSquares(p, x, opts), nil
	}

	w := newWork(p, n, m)

	res := &Result{X: x, Multipliers: w.lambda}
	rho := rhoInit
	prevMeasure := math.Inf(1)

	for iter := 1; iter <= opts.MaxIter; iter++ {
		res.Iterations = iter

		inner, err := w.spg(x, rho, opts)
		res.InnerIter += inner.iterations
		if err != nil {
			res.Mode = NonFinite
			res.F = math.NaN()
			res.Evaluations = w.evals
			return res, nil
		}

		measure, violation := w.constraintMeasure(x, rho)
		w.updateMultipliers(rho)
		res.MaxViolation = violation

		if measure <= opts.FeasTol && inner.converged {
			res.Mode = Converged
			break
		}

		if measure > opts.FeasTol && measure > decreaseFactor*prevMeasure {
			rho *= rhoGrowth
		}
		prevMeasure = measure

		if rho > rhoMax {
			if violation > opts.FeasTol {
				res.Mode = Infeasible
			} else {
				res.Mode = MaxIterations
			}
			break
		}
		if iter == opts.MaxIter {
			res.Mode = MaxIterations
		}
	}

	res.F = p.Func(x)
	w.evals++
	res.Evaluations = w.evals
	if isNonFinite(res.F) {
		res.Mode = NonFinite
	}
	return res, nil
}

func (p *Problem) validate(x0 []float64) error {
	n := len(x0)
	switch {
	case p == nil || p.Func == nil:
		return fmt.Errorf("objective function is required")
	case n == 0:
		return fmt.Errorf("problem has no variables")
	case len(p.Lower) != n || len(p.Upper) != n:
		return fmt.Errorf("bounds have length %d/%d, want %d", len(p.Lower), len(p.Upper), n)
	case len(p.G) != len(p.H):
		return fmt.Errorf("constraint matrix has %d rows but %d right-hand sides", len(p.G), len(p.H))
	}
	for i := range x0 {
		if isNonFinite(p.Lower[i]) || isNonFinite(p.Upper[i]) {
			return fmt.Errorf("bound %d is not finite", i)
		}
		if p.Lower[i] > p.Upper[i] {
			return fmt.Errorf("lower bound %g exceeds upper bound %g for variable %d", p.Lower[i], p.Upper[i], i)
		}
	}
	for k, row := range p.G {
		if len(row) != n {
			return fmt.Errorf("constraint row %d has length %d, want %d", k, len(row), n)
		}
		if isNonFinite(p.H[k]) {
			return fmt.Errorf("constraint %d right-hand side is not finite", k)
		}
	}
	if len(p.E) != len(p.F) {
		return fmt.Errorf("residual matrix has %d rows but %d targets", len(p.E), len(p.F))
	}
	for k, row := range p.E {
		if len(row) != n {
			return fmt.Errorf("residual row %d has length %d, want %d", k, len(row), n)
		}
		if isNonFinite(p.F[k]) || floats.HasNaN(row) || math.IsInf(floats.Max(row), 0) || math.IsInf(floats.Min(row), 0) {
			return fmt.Errorf("residual row %d is not finite", k)
		}
	}
	return nil
}

func project(x, lower, upper []float64) {
	for i := range x {
		x[i] = math.Min(math.Max(x[i], lower[i]), upper[i])
	}
}

func isNonFinite(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
