package device

import (
	"github.com/edp1096/circuit-engine/pkg/matrix"
	"github.com/edp1096/circuit-engine/pkg/util"
)

func stampCapacitor(e *Element, m matrix.DeviceMatrix, st *Status) {
	n1, n2 := e.Idx[0], e.Idx[1]

	switch st.Mode {
	case OperatingPoint:
		// open circuit
	case AC:
		stampAdmittance(m, n1, n2, complex(0, st.omega()*e.Value))
	case Transient:
		geq, ieq := capacitorCompanion(e, st)
		stampConductance(m, n1, n2, geq)
		stampCurrent(m, n1, n2, ieq)
	case State:
		// ideal source of the state voltage; its current is the aux unknown
		stampBranch(m, n1, n2, e.Aux)
		m.AddRHS(e.Aux, st.State[e.Slot])
	}
}

// capacitorCompanion returns geq and ieq of the Norton companion so that the
// capacitor current is geq*v + ieq at the new time point.
func capacitorCompanion(e *Element, st *Status) (geq, ieq float64) {
	vPrev := st.History.Voltage[e.Slot]
	iPrev := st.History.Current[e.Slot]

	if st.Method == TR {
		geq = e.Value * util.GetTrapezoidalCoeffs(2, st.TimeStep)[0]
		return geq, -(geq*vPrev + iPrev)
	}
	geq = e.Value * util.GetTrapezoidalCoeffs(1, st.TimeStep)[0]
	return geq, -geq * vPrev
}
