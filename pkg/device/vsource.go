package device

import "github.com/edp1096/circuit-engine/pkg/matrix"

func stampVoltageSource(e *Element, m matrix.DeviceMatrix, st *Status) {
	stampBranch(m, e.Idx[0], e.Idx[1], e.Branch)

	if st.Mode == AC {
		p := e.Phasor()
		m.AddComplexRHS(e.Branch, real(p), imag(p))
		return
	}
	m.AddRHS(e.Branch, e.SourceValue(st))
}

// stampGround pins a node to zero volts through its own branch row.
func stampGround(e *Element, m matrix.DeviceMatrix) {
	n := e.Idx[0]
	if n == 0 || e.Branch == 0 {
		return
	}
	m.AddElement(n, e.Branch, 1)
	m.AddElement(e.Branch, n, 1)
}
