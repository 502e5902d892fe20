package device

import "github.com/edp1096/circuit-engine/pkg/matrix"

func stampResistor(e *Element, m matrix.DeviceMatrix, st *Status) {
	g := 1.0 / e.Value
	if st.Mode == AC {
		stampAdmittance(m, e.Idx[0], e.Idx[1], complex(g, 0))
		return
	}
	stampConductance(m, e.Idx[0], e.Idx[1], g)
}
