package device

import "github.com/edp1096/circuit-engine/pkg/matrix"

func stampCurrentSource(e *Element, m matrix.DeviceMatrix, st *Status) {
	if st.Mode == AC {
		stampCurrentAC(m, e.Idx[0], e.Idx[1], e.Phasor())
		return
	}
	stampCurrent(m, e.Idx[0], e.Idx[1], e.SourceValue(st))
}
