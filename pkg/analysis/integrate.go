package analysis

import (
	"context"
	"errors"
	"math"

	"github.com/edp1096/circuit-engine/pkg/matrix"
	"github.com/edp1096/circuit-engine/pkg/simerr"
	"github.com/edp1096/circuit-engine/pkg/util"
)

// Dormand-Prince 5(4) tableau.
var (
	dpC = [7]float64{0, 1.0 / 5, 3.0 / 10, 4.0 / 5, 8.0 / 9, 1, 1}
	dpA = [7][6]float64{
		{},
		{1.0 / 5},
		{3.0 / 40, 9.0 / 40},
		{44.0 / 45, -56.0 / 15, 32.0 / 9},
		{19372.0 / 6561, -25360.0 / 2187, 64448.0 / 6561, -212.0 / 729},
		{9017.0 / 3168, -355.0 / 33, 46732.0 / 5247, 49.0 / 176, -5103.0 / 18656},
		{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84},
	}
	// fifth-order weights minus fourth-order weights
	dpE = [7]float64{71.0 / 57600, 0, -71.0 / 16695, 71.0 / 1920, -17253.0 / 339200, 22.0 / 525, -1.0 / 40}
)

// errorNorm is the largest component error scaled by atol + rtol*|x|.
func (r *tranRun) errorNorm(errs, x, xNew []float64) float64 {
	tol := r.convergence.tol
	norm := 0.0
	for i := range errs {
		scale := tol + tol*max(math.Abs(x[i]), math.Abs(xNew[i]))
		norm = max(norm, math.Abs(errs[i])/scale)
	}
	return norm
}

// stepFactor is the controller gain for an error norm of a method whose
// local error grows as h^(order+1).
func stepFactor(norm float64, order int, grow float64) float64 {
	if norm == 0 {
		return grow
	}
	return min(grow, max(0.2, 0.9*math.Pow(norm, -1.0/float64(order+1))))
}

// reject records a rejected step and returns the next step size, or a
// ConvergenceError once the minimum step has been tried.
func (r *tranRun) reject(t, hs, factor, residual float64) (float64, error) {
	r.rejected++
	if hs <= r.minStep*(1+1e-9) {
		return 0, &simerr.ConvergenceError{Iterations: r.accepted + r.rejected, Residual: residual, Time: t, Transient: true}
	}
	return max(hs*factor, r.minStep), nil
}

func axpy(x []float64, h float64, k [][]float64, w []float64) []float64 {
	out := append([]float64(nil), x...)
	for j, wj := range w {
		if wj == 0 {
			continue
		}
		for i := range out {
			out[i] += h * wj * k[j][i]
		}
	}
	return out
}

// rk45 integrates the state equations with Dormand-Prince and step-size
// control. The derivative comes from a State-mode solve at each stage.
func (r *tranRun) rk45(ctx context.Context, x []float64, emit func(Sample) bool) error {
	t := 0.0
	sol, k1, err := r.f(ctx, t, x)
	if err != nil {
		return err
	}
	if err := r.emitAt(t, sol, r.stateSt, emit); err != nil {
		return err
	}

	h := min(max(r.step, r.minStep), r.maxStep)
	eps := 1e-12 * r.stop
	k := make([][]float64, 7)

	for t < r.stop-eps {
		if err := r.budget(t, 0); err != nil {
			return err
		}
		hs := min(h, r.stop-t)

		k[0] = k1
		var solNew, xNew []float64
		failed := false
		for s := 1; s < 7; s++ {
			xs := axpy(x, hs, k[:s], dpA[s][:s])
			solS, ks, err := r.f(ctx, t+dpC[s]*hs, xs)
			if err != nil {
				if errors.Is(err, simerr.ErrConvergence) {
					failed = true
					break
				}
				return err
			}
			k[s] = ks
			if s == 6 {
				solNew, xNew = solS, xs
			}
		}
		if failed {
			if h, err = r.reject(t, hs, 0.25, math.Inf(1)); err != nil {
				return err
			}
			continue
		}

		errs := make([]float64, len(x))
		for s, e := range dpE {
			for i := range errs {
				errs[i] += hs * e * k[s][i]
			}
		}
		norm := r.errorNorm(errs, x, xNew)
		if norm > 1 {
			if h, err = r.reject(t, hs, stepFactor(norm, 4, 1), norm); err != nil {
				return err
			}
			continue
		}

		t += hs
		x, k1 = xNew, k[6]
		r.accepted++
		if err := r.emitAt(t, solNew, r.stateSt, emit); err != nil {
			return err
		}
		h = min(max(hs*stepFactor(norm, 4, 5), r.minStep), r.maxStep)
	}
	return nil
}

// jacobian approximates df/dx by forward differences around (t, x).
func (r *tranRun) jacobian(ctx context.Context, t float64, x, fx []float64) ([][]float64, error) {
	n := len(x)
	jac := make([][]float64, n)
	for i := range jac {
		jac[i] = make([]float64, n)
	}
	for j := range n {
		d := 1e-7 * max(math.Abs(x[j]), 1)
		xp := append([]float64(nil), x...)
		xp[j] += d
		_, fp, err := r.f(ctx, t, xp)
		if err != nil {
			return nil, err
		}
		for i := range n {
			jac[i][j] = (fp[i] - fx[i]) / d
		}
	}
	return jac, nil
}

// corrector solves y = hist + beta*h*f(t, y) by Newton's method starting
// from the predictor.
func (r *tranRun) corrector(ctx context.Context, t, bh float64, hist, pred []float64) ([]float64, error) {
	n := len(pred)
	y := append([]float64(nil), pred...)
	if n == 0 {
		return y, nil
	}

	_, fy, err := r.f(ctx, t, y)
	if err != nil {
		return nil, err
	}
	jac, err := r.jacobian(ctx, t, y, fy)
	if err != nil {
		return nil, err
	}
	mat := make([][]float64, n)
	for i := range n {
		mat[i] = make([]float64, n)
		for j := range n {
			mat[i][j] = -bh * jac[i][j]
		}
		mat[i][i] += 1
	}

	for iter := 1; iter <= r.convergence.maxIter; iter++ {
		g := make([]float64, n)
		for i := range n {
			g[i] = -(y[i] - hist[i] - bh*fy[i])
		}
		dy, err := matrix.SolveDense(mat, g, r.matrixOpts.PivotThreshold)
		if err != nil {
			return nil, err
		}
		delta := 0.0
		for i := range n {
			y[i] += dy[i]
			delta = max(delta, math.Abs(dy[i]))
		}
		if delta <= r.convergence.tol {
			return y, nil
		}
		if _, fy, err = r.f(ctx, t, y); err != nil {
			return nil, err
		}
	}
	return nil, &simerr.ConvergenceError{Iterations: r.convergence.maxIter, Residual: math.Inf(1), Time: t, Transient: true}
}

// bdf integrates with variable-step BDF of order 1 then 2, estimating the
// local error from the distance between an explicit predictor and the
// implicit corrector.
func (r *tranRun) bdf(ctx context.Context, x []float64, emit func(Sample) bool) error {
	t := 0.0
	sol, fx, err := r.f(ctx, t, x)
	if err != nil {
		return err
	}
	if err := r.emitAt(t, sol, r.stateSt, emit); err != nil {
		return err
	}

	h := min(max(r.step, r.minStep), r.maxStep)
	eps := 1e-12 * r.stop
	order, hPrev := 1, 0.0
	var xPrev, fPrev []float64

	for t < r.stop-eps {
		if err := r.budget(t, 0); err != nil {
			return err
		}
		hs := min(h, r.stop-t)

		ratio := 1.0
		if order == 2 {
			ratio = hs / hPrev
		}
		alpha, beta := util.VariableBDFCoeffs(order, ratio)

		hist := make([]float64, len(x))
		pred := make([]float64, len(x))
		for i := range x {
			hist[i] = alpha[0] * x[i]
			pred[i] = x[i] + hs*fx[i]
			if order == 2 {
				hist[i] += alpha[1] * xPrev[i]
				pred[i] = x[i] + hs*((1+ratio/2)*fx[i]-(ratio/2)*fPrev[i])
			}
		}

		y, err := r.corrector(ctx, t+hs, beta*hs, hist, pred)
		if err != nil {
			if errors.Is(err, simerr.ErrConvergence) {
				if h, err = r.reject(t, hs, 0.25, math.Inf(1)); err != nil {
					return err
				}
				continue
			}
			return err
		}

		errs := make([]float64, len(y))
		for i := range y {
			errs[i] = util.BDFErrorFactor(order) * (y[i] - pred[i])
		}
		norm := r.errorNorm(errs, x, y)
		if norm > 1 {
			if h, err = r.reject(t, hs, stepFactor(norm, order, 1), norm); err != nil {
				return err
			}
			continue
		}

		solNew, fNew, err := r.f(ctx, t+hs, y)
		if err != nil {
			return err
		}
		xPrev, fPrev, hPrev = x, fx, hs
		x, fx = y, fNew
		t += hs
		r.accepted++
		if err := r.emitAt(t, solNew, r.stateSt, emit); err != nil {
			return err
		}
		h = min(max(hs*stepFactor(norm, order, 2), r.minStep), r.maxStep)
		order = 2
	}
	return nil
}
