package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrapezoidalCoeffs(t *testing.T) {
	assert.Equal(t, 1e6, GetTrapezoidalCoeffs(1, 1e-6)[0])
	assert.Equal(t, 2e6, GetTrapezoidalCoeffs(2, 1e-6)[0])
	assert.Equal(t, 1e6, GetTrapezoidalCoeffs(7, 1e-6)[0])
}

func TestVariableBDFReducesToTable(t *testing.T) {
	alpha, beta := VariableBDFCoeffs(2, 1)
	assert.InDeltaSlice(t, []float64{4.0 / 3.0, -1.0 / 3.0}, alpha, 1e-15)
	assert.InDelta(t, 2.0/3.0, beta, 1e-15)

	alpha, beta = VariableBDFCoeffs(1, 3)
	assert.Equal(t, []float64{1.0}, alpha)
	assert.Equal(t, 1.0, beta)
}

func TestVariableBDF2IsExactForQuadratics(t *testing.T) {
	// x(t) = t^2 with steps h0 = 1 (t: -1 -> 0) and h = 2 (t: 0 -> 2)
	alpha, beta := VariableBDFCoeffs(2, 2)
	xPrev, xNow, xNext := 1.0, 0.0, 4.0
	dxNext := 4.0
	got := alpha[0]*xNow + alpha[1]*xPrev + beta*2*dxNext
	assert.InDelta(t, xNext, got, 1e-12)
}
