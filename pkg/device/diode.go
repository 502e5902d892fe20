package device

import (
	"math"

	"github.com/edp1096/circuit-engine/internal/consts"
	"github.com/edp1096/circuit-engine/pkg/matrix"
)

func temperature(st *Status) float64 {
	if st == nil || st.Temp <= 0 {
		return consts.NominalTemp
	}
	return st.Temp
}

func thermalVoltage(temp float64) float64 {
	return consts.BOLTZMANN * temp / consts.CHARGE
}

// diodeCurrent evaluates the Shockley equation with a parallel gmin. Above
// MaxExpArg thermal voltages the exponential continues linearly.
func diodeCurrent(e *Element, vd, temp float64) (id, gd float64) {
	nvt := e.N * thermalVoltage(temp)
	arg := vd / nvt

	switch {
	case arg > consts.MaxExpArg:
		evt := math.Exp(consts.MaxExpArg)
		id = e.Is*(evt*(1+arg-consts.MaxExpArg)) - e.Is
		gd = e.Is * evt / nvt
	case arg < -5:
		id = -e.Is
		gd = 0
	default:
		evd := math.Exp(arg)
		id = e.Is * (evd - 1)
		gd = e.Is * evd / nvt
	}

	return id + consts.Gmin*vd, gd + consts.Gmin
}

// limitJunction is the SPICE pnjlim step limiter.
func limitJunction(vnew, vold, nvt, vcrit float64) (float64, bool) {
	if vnew <= vcrit || math.Abs(vnew-vold) <= 2*nvt {
		return vnew, false
	}
	if vold > 0 {
		arg := 1 + (vnew-vold)/nvt
		if arg > 0 {
			return vold + nvt*math.Log(arg), true
		}
		return vcrit, true
	}
	return nvt * math.Log(vnew/nvt), true
}

func stampDiode(e *Element, m matrix.DeviceMatrix, st *Status) {
	anode, cathode := e.Idx[0], e.Idx[1]
	temp := temperature(st)

	if st.Mode == AC {
		_, gd := diodeCurrent(e, e.Voltage(st.Iterate), temp)
		stampAdmittance(m, anode, cathode, complex(gd, 0))
		return
	}

	vd := e.Voltage(st.Iterate)
	if st.Junction != nil && e.Junction >= 0 {
		nvt := e.N * thermalVoltage(temp)
		vcrit := nvt * math.Log(nvt/(math.Sqrt2*e.Is))
		var limited bool
		vd, limited = limitJunction(vd, st.Junction[e.Junction], nvt, vcrit)
		st.Junction[e.Junction] = vd
		st.Limited = st.Limited || limited
	}

	id, gd := diodeCurrent(e, vd, temp)
	stampConductance(m, anode, cathode, gd)
	stampCurrent(m, anode, cathode, id-gd*vd)
}
