package solver

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// proximalWeight scales, relative to the largest column norm of E, the term
// √μ‖x - x0‖ appended to the residuals. It gives E full column rank and picks
// the optimum nearest x0 when several points fit equally well.
const proximalWeight = 1e-6

var (
	errNNLSIterations = errors.New("nnls iteration limit exceeded")
	errNNLSSingular   = errors.New("nnls passive set is singular")
)

// minimizeLeastSquares solves min ‖E x - F‖² s.t. G x ≤ H, Lower ≤ x ≤ Upper
// without iterating on the objective. A QR factorization of the proximally
// regularized residual matrix turns the problem into least distance
// programming, which is solved as a nonnegative least squares problem
// (Lawson & Hanson, chapter 23).
func minimizeLeastSquares(p *Problem, x0 []float64, opts Options) *Result {
	n := len(x0)
	rows := len(p.E)
	res := &Result{Multipliers: make([]float64, len(p.H))}

	var colMax float64
	for j := 0; j < n; j++ {
		var s float64
		for k := 0; k < rows; k++ {
			s += p.E[k][j] * p.E[k][j]
		}
		colMax = math.Max(colMax, math.Sqrt(s))
	}
	if colMax == 0 {
		colMax = 1
	}
	sqrtMu := proximalWeight * colMax

	e := mat.NewDense(rows+n, n, nil)
	f := mat.NewVecDense(rows+n, nil)
	for k := 0; k < rows; k++ {
		e.SetRow(k, p.E[k])
		f.SetVec(k, p.F[k])
	}
	for i := 0; i < n; i++ {
		e.Set(rows+i, i, sqrtMu)
		f.SetVec(rows+i, sqrtMu*x0[i])
	}

	var qr mat.QR
	qr.Factorize(e)
	var r, q mat.Dense
	qr.RTo(&r)
	qr.QTo(&q)

	var qtf mat.VecDense
	qtf.MulVec(q.T(), f)
	f1 := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		f1.SetVec(i, qtf.AtVec(i))
	}

	var rinv mat.Dense
	if err := rinv.Inverse(r.Slice(0, n, 0, n)); err != nil && !isCondition(err) {
		res.Mode = NonFinite
		return res
	}

	// Every constraint as a row of Cx ≥ d: limits, then lower and upper bounds.
	m := len(p.H)
	c := mat.NewDense(m+2*n, n, nil)
	d := make([]float64, m+2*n)
	for k := 0; k < m; k++ {
		for j := 0; j < n; j++ {
			c.Set(k, j, -p.G[k][j])
		}
		d[k] = -p.H[k]
	}
	for i := 0; i < n; i++ {
		c.Set(m+i, i, 1)
		d[m+i] = p.Lower[i]
		c.Set(m+n+i, i, -1)
		d[m+n+i] = -p.Upper[i]
	}

	// With x = R⁻¹(z + f1) the objective is ‖z‖² plus a constant and the
	// constraints become (C R⁻¹) z ≥ d - C R⁻¹ f1.
	var ct mat.Dense
	ct.Mul(c, &rinv)
	var cf mat.VecDense
	cf.MulVec(&ct, f1)

	// LDP matrix: one column [ĉ_j; d̂_j] per constraint, normalized by ‖ĉ_j‖.
	a := mat.NewDense(n+1, len(d), nil)
	norms := make([]float64, len(d))
	for j := range d {
		row := ct.RawRowView(j)
		dj := d[j] - cf.AtVec(j)
		norm := floats.Norm(row, 2)
		if norm < epsilon {
			if dj > opts.FeasTol {
				res.Mode = Infeasible
				return res
			}
			continue
		}
		norms[j] = norm
		for i := 0; i < n; i++ {
			a.Set(i, j, row[i]/norm)
		}
		a.Set(n, j, dj/norm)
	}
	b := mat.NewVecDense(n+1, nil)
	b.SetVec(n, 1)

	u, iters, err := nnls(a, b, opts.MaxInnerIter)
	res.Iterations = 1
	res.InnerIter = iters
	switch {
	case errors.Is(err, errNNLSIterations):
		res.Mode = MaxIterations
		return res
	case err != nil:
		res.Mode = NonFinite
		return res
	}

	// The residual of the NNLS solution is [ĉᵀu; d̂ᵀu - 1]; its squared norm
	// is 1 - d̂ᵀu and vanishes exactly when the constraints are incompatible.
	fac := 1.0
	for j, uj := range u {
		fac -= a.At(n, j) * uj
	}
	if isNonFinite(fac) || fac < 1e3*epsilon {
		res.Mode = Infeasible
		return res
	}

	z := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		var s float64
		for j, uj := range u {
			s += a.At(i, j) * uj
		}
		z.SetVec(i, s/fac)
	}
	z.AddVec(z, f1)
	var xv mat.VecDense
	xv.MulVec(&rinv, z)

	x := make([]float64, n)
	for i := range x {
		x[i] = xv.AtVec(i)
	}
	if floats.HasNaN(x) {
		res.Mode = NonFinite
		return res
	}
	project(x, p.Lower, p.Upper)
	res.X = x

	// The objective is ‖z‖², twice the LDP objective.
	for k := 0; k < m; k++ {
		if norms[k] > 0 {
			res.Multipliers[k] = 2 * u[k] / fac / norms[k] * math.Max(1, math.Abs(p.H[k]))
		}
		res.MaxViolation = math.Max(res.MaxViolation, (floats.Dot(p.G[k], x)-p.H[k])/math.Max(1, math.Abs(p.H[k])))
	}

	res.F = p.Func(x)
	res.Evaluations = 1
	if isNonFinite(res.F) {
		res.Mode = NonFinite
		return res
	}
	res.Mode = Converged
	return res
}

// nnls solves min ‖A u - b‖ s.t. u ≥ 0 with the Lawson-Hanson active set
// method. iterations counts passive-set least-squares solves.
func nnls(a *mat.Dense, b *mat.VecDense, maxIter int) (u []float64, iterations int, err error) {
	rows, cols := a.Dims()
	u = make([]float64, cols)
	w := make([]float64, cols)
	z := make([]float64, cols)
	passive := make([]bool, cols)
	rejected := make([]bool, cols)
	resid := mat.NewVecDense(rows, nil)

	tol := 1e3 * epsilon * math.Max(1, mat.Norm(a, 1))

	for {
		// Dual vector w = Aᵀ(b - A u).
		resid.MulVec(a, mat.NewVecDense(cols, u))
		resid.SubVec(b, resid)
		mat.NewVecDense(cols, w).MulVec(a.T(), resid)

		t, best := -1, tol
		for j := range w {
			if !passive[j] && !rejected[j] && w[j] > best {
				t, best = j, w[j]
			}
		}
		if t < 0 {
			return u, iterations, nil
		}
		passive[t] = true

		for first := true; ; first = false {
			iterations++
			if iterations > maxIter {
				return u, iterations, errNNLSIterations
			}
			if !solvePassive(a, b, passive, z) {
				return u, iterations, errNNLSSingular
			}

			if first && z[t] <= 0 {
				// Rounding made the chosen column useless; skip it until u moves.
				passive[t] = false
				rejected[t] = true
				break
			}

			alpha, jmin := math.Inf(1), -1
			for j, p := range passive {
				if p && z[j] <= 0 {
					if step := u[j] / (u[j] - z[j]); step < alpha {
						alpha, jmin = step, j
					}
				}
			}
			for j := range rejected {
				rejected[j] = false
			}
			if jmin < 0 {
				copy(u, z)
				break
			}

			for j, p := range passive {
				if p {
					u[j] += alpha * (z[j] - u[j])
				}
			}
			u[jmin] = 0
			for j, p := range passive {
				if p && u[j] <= 0 {
					u[j] = 0
					passive[j] = false
				}
			}
		}
	}
}

// solvePassive stores in z the least-squares solution over the passive
// columns of A and zero elsewhere.
func solvePassive(a *mat.Dense, b *mat.VecDense, passive []bool, z []float64) bool {
	rows, _ := a.Dims()
	var idx []int
	for j, p := range passive {
		z[j] = 0
		if p {
			idx = append(idx, j)
		}
	}
	if len(idx) == 0 {
		return true
	}
	if len(idx) > rows {
		return false
	}

	ap := mat.NewDense(rows, len(idx), nil)
	for col, j := range idx {
		for i := 0; i < rows; i++ {
			ap.Set(i, col, a.At(i, j))
		}
	}

	var qr mat.QR
	qr.Factorize(ap)
	var sol mat.VecDense
	if err := qr.SolveVecTo(&sol, false, b); err != nil && !isCondition(err) {
		return false
	}
	for col, j := range idx {
		v := sol.AtVec(col)
		if isNonFinite(v) {
			return false
		}
		z[j] = v
	}
	return true
}

// isCondition reports whether err only warns about conditioning.
func isCondition(err error) bool {
	var cond mat.Condition
	return errors.As(err, &cond)
}
