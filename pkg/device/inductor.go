package device

import (
	"github.com/edp1096/circuit-engine/pkg/matrix"
	"github.com/edp1096/circuit-engine/pkg/util"
)

// Inductors always own a branch row so the unknown layout is the same in
// every mode. In DC the row reads v1 - v2 = 0 (a short).
func stampInductor(e *Element, m matrix.DeviceMatrix, st *Status) {
	n1, n2, br := e.Idx[0], e.Idx[1], e.Branch

	if st.Mode == State {
		// branch current pinned to the state; KCL still sees it
		if n1 > 0 {
			m.AddElement(n1, br, 1)
		}
		if n2 > 0 {
			m.AddElement(n2, br, -1)
		}
		m.AddElement(br, br, 1)
		m.AddRHS(br, st.State[e.Slot])
		return
	}

	stampBranch(m, n1, n2, br)

	switch st.Mode {
	case AC:
		m.AddComplexElement(br, br, 0, -st.omega()*e.Value)
	case Transient:
		req, veq := inductorCompanion(e, st)
		m.AddElement(br, br, -req)
		m.AddRHS(br, veq)
	}
}

// inductorCompanion returns req and veq of the branch equation
// v1 - v2 - req*i = veq.
func inductorCompanion(e *Element, st *Status) (req, veq float64) {
	iPrev := st.History.Current[e.Slot]
	vPrev := st.History.Voltage[e.Slot]

	if st.Method == TR {
		req = e.Value * util.GetTrapezoidalCoeffs(2, st.TimeStep)[0]
		return req, -req*iPrev - vPrev
	}
	req = e.Value * util.GetTrapezoidalCoeffs(1, st.TimeStep)[0]
	return req, -req * iPrev
}
