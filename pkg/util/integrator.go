package util

type BackwardDifferentialFormula struct {
	coefficients []float64
	beta         float64
}

// BdfCoefficients holds the fixed-step Gear formulas of order 1..6:
// x[n+1] = sum(coefficients[i] * x[n-i]) + beta * h * x'[n+1].
var BdfCoefficients = [6]BackwardDifferentialFormula{
	{[]float64{1.0}, 1.0},
	{[]float64{4.0 / 3.0, -1.0 / 3.0}, 2.0 / 3.0},
	{[]float64{18.0 / 11.0, -9.0 / 11.0, 2.0 / 11.0}, 6.0 / 11.0},
	{[]float64{48.0 / 25.0, -36.0 / 25.0, 16.0 / 25.0, -3.0 / 25.0}, 12.0 / 25.0},
	{[]float64{300.0 / 137.0, -300.0 / 137.0, 200.0 / 137.0, -75.0 / 137.0, 12.0 / 137.0}, 60.0 / 137.0},
	{[]float64{360.0 / 147.0, -450.0 / 147.0, 400.0 / 147.0, -225.0 / 147.0, 72.0 / 147.0, -10.0 / 147.0}, 60.0 / 147.0},
}

// GetTrapezoidalCoeffs returns the companion scale factor: 1/dt for
// order 1 (backward Euler) and 2/dt for order 2 (trapezoidal).
func GetTrapezoidalCoeffs(order int, dt float64) []float64 {
	if order < 1 || order > 2 {
		order = 1
	}

	coeffs := make([]float64, 1)
	coeffs[0] = 2.0 / dt
	if order == 1 {
		coeffs[0] = 1.0 / dt
	}

	return coeffs
}

// VariableBDFCoeffs returns the history weights and beta of a BDF step of
// order 1 or 2 whose size is ratio times the previous step. With ratio 1 it
// reduces to the fixed-step table.
func VariableBDFCoeffs(order int, ratio float64) ([]float64, float64) {
	if order < 1 || order > 2 {
		order = 1
	}
	if order == 1 || ratio == 1 {
		bdf := BdfCoefficients[order-1]
		return append([]float64(nil), bdf.coefficients...), bdf.beta
	}

	w := ratio
	den := 1 + 2*w
	return []float64{(1 + w) * (1 + w) / den, -w * w / den}, (1 + w) / den
}

// BDFErrorFactor scales the predictor-corrector difference of a BDF step
// into a local truncation error estimate (Milne's device). Order 1 pairs
// with a forward Euler predictor, order 2 with Adams-Bashforth 2.
func BDFErrorFactor(order int) float64 {
	if order >= 2 {
		return 8.0 / 23.0
	}
	return 0.5
}
