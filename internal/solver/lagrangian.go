package solver

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
)

var errNonFinite = errors.New("non-finite evaluation")

const (
	armijo    = 1e-4
	alphaMin  = 1e-12
	alphaMax  = 1e12
	stepFloor = 1e-18
)

// work holds the scratch state of one Minimize call. It is never shared.
type work struct {
	p     *Problem
	n, m  int
	scale []float64
	// lambda holds multipliers of the scaled constraints (G_k·x - h_k)/scale_k ≤ 0.
	lambda []float64
	c      []float64

	grad   []float64
	gtrial []float64
	xtrial []float64
	d      []float64
	s      []float64
	y      []float64
	fdx    []float64

	evals int
}

type innerResult struct {
	iterations int
	converged  bool
}

func newWork(p *Problem, n, m int) *work {
	w := &work{
		p:      p,
		n:      n,
		m:      m,
		scale:  make([]float64, m),
		lambda: make([]float64, m),
		c:      make([]float64, m),
		grad:   make([]float64, n),
		gtrial: make([]float64, n),
		xtrial: make([]float64, n),
		d:      make([]float64, n),
		s:      make([]float64, n),
		y:      make([]float64, n),
		fdx:    make([]float64, n),
	}
	for k, h := range p.H {
		w.scale[k] = math.Max(1, math.Abs(h))
	}
	return w
}

// constraint returns the scaled value of constraint k at x.
func (w *work) constraint(k int, x []float64) float64 {
	return (floats.Dot(w.p.G[k], x) - w.p.H[k]) / w.scale[k]
}

// merit evaluates the PHR augmented Lagrangian without its constant term.
func (w *work) merit(x []float64, rho float64) float64 {
	w.evals++
	phi := w.p.Func(x)
	for k := 0; k < w.m; k++ {
		t := math.Max(0, w.constraint(k, x)+w.lambda[k]/rho)
		phi += 0.5 * rho * t * t
	}
	return phi
}

// meritGrad stores the gradient of the augmented Lagrangian at x in g.
func (w *work) meritGrad(g, x []float64, rho float64) {
	w.objectiveGrad(g, x)
	for k := 0; k < w.m; k++ {
		mult := math.Max(0, w.lambda[k]+rho*w.constraint(k, x))
		if mult == 0 {
			continue
		}
		floats.AddScaled(g, mult/w.scale[k], w.p.G[k])
	}
}

func (w *work) objectiveGrad(g, x []float64) {
	if w.p.Grad != nil {
		w.p.Grad(g, x)
		return
	}
	// Forward differences, stepping backwards at the upper bound.
	f0 := w.p.Func(x)
	w.evals++
	copy(w.fdx, x)
	for i := range x {
		h := math.Sqrt(epsilon) * math.Max(1, math.Abs(x[i]))
		if x[i]+h > w.p.Upper[i] {
			h = -h
		}
		w.fdx[i] = x[i] + h
		g[i] = (w.p.Func(w.fdx) - f0) / h
		w.evals++
		w.fdx[i] = x[i]
	}
}

const epsilon = 2.220446049250313e-16

// projectedGradientNorm returns ‖P(x - g) - x‖∞.
func (w *work) projectedGradientNorm(x, g []float64) float64 {
	var norm float64
	for i := range x {
		v := math.Min(math.Max(x[i]-g[i], w.p.Lower[i]), w.p.Upper[i])
		norm = math.Max(norm, math.Abs(v-x[i]))
	}
	return norm
}

// spg minimizes the augmented Lagrangian over the box, updating x in place.
func (w *work) spg(x []float64, rho float64, opts Options) (innerResult, error) {
	var out innerResult

	phi := w.merit(x, rho)
	w.meritGrad(w.grad, x, rho)
	if isNonFinite(phi) || floats.HasNaN(w.grad) {
		return out, errNonFinite
	}

	pg := w.projectedGradientNorm(x, w.grad)
	// Stationarity is judged relative to the gradient scale of the subproblem.
	tol := opts.Tol * math.Max(1, pg)
	alpha := 1.0
	if pg > 0 {
		alpha = math.Min(alphaMax, math.Max(alphaMin, 1/pg))
	}

	for out.iterations < opts.MaxInnerIter {
		if pg <= tol {
			out.converged = true
			return out, nil
		}
		out.iterations++

		// Spectral step, projected back onto the box.
		floats.AddScaledTo(w.d, x, -alpha, w.grad)
		project(w.d, w.p.Lower, w.p.Upper)
		floats.Sub(w.d, x)
		slope := floats.Dot(w.grad, w.d)
		if slope >= 0 {
			// Rounding has erased the descent direction.
			out.converged = true
			return out, nil
		}

		t := 1.0
		var trial float64
		for {
			floats.AddScaledTo(w.xtrial, x, t, w.d)
			trial = w.merit(w.xtrial, rho)
			if isNonFinite(trial) {
				return out, errNonFinite
			}
			if trial <= phi+armijo*t*slope {
				break
			}
			t *= 0.5
			if t < stepFloor {
				out.converged = true
				return out, nil
			}
		}

		w.meritGrad(w.gtrial, w.xtrial, rho)
		if floats.HasNaN(w.gtrial) {
			return out, errNonFinite
		}
		floats.SubTo(w.s, w.xtrial, x)
		floats.SubTo(w.y, w.gtrial, w.grad)
		if sy := floats.Dot(w.s, w.y); sy > 0 {
			alpha = math.Min(alphaMax, math.Max(alphaMin, floats.Dot(w.s, w.s)/sy))
		} else {
			alpha = alphaMax
		}

		copy(x, w.xtrial)
		copy(w.grad, w.gtrial)
		phi = trial
		pg = w.projectedGradientNorm(x, w.grad)
	}

	out.converged = pg <= tol
	return out, nil
}

// constraintMeasure returns the joint feasibility/complementarity measure
// max_k |max(c_k, -λ_k/ρ)| and the largest scaled violation at x.
func (w *work) constraintMeasure(x []float64, rho float64) (measure, violation float64) {
	for k := 0; k < w.m; k++ {
		w.c[k] = w.constraint(k, x)
		measure = math.Max(measure, math.Abs(math.Max(w.c[k], -w.lambda[k]/rho)))
		violation = math.Max(violation, w.c[k])
	}
	return measure, violation
}

// updateMultipliers applies the first-order update using the constraint values
// recorded by the last constraintMeasure call.
func (w *work) updateMultipliers(rho float64) {
	for k := 0; k < w.m; k++ {
		w.lambda[k] = math.Min(lambdaMax, math.Max(0, w.lambda[k]+rho*w.c[k]))
	}
}
