package device

import (
	"fmt"
	"math"

	"github.com/edp1096/circuit-engine/pkg/matrix"
)

// Element is a component bound to its rows in the unknown vector.
type Element struct {
	Component
	Idx      []int // matrix row per terminal, 0 for ground
	Branch   int   // branch-current row, 0 if none
	Aux      int   // capacitor current row used in State mode
	Slot     int   // state slot (capacitors and inductors), -1 if none
	Junction int   // nonlinear slot, -1 if none
}

func at(sol []float64, i int) float64 {
	if i <= 0 || i >= len(sol) {
		return 0
	}
	return sol[i]
}

func atC(sol []complex128, i int) complex128 {
	if i <= 0 || i >= len(sol) {
		return 0
	}
	return sol[i]
}

// Voltage across the element, first terminal minus second.
func (e *Element) Voltage(sol []float64) float64 {
	if len(e.Idx) < 2 {
		return at(sol, e.Idx[0])
	}
	return at(sol, e.Idx[0]) - at(sol, e.Idx[1])
}

func (e *Element) VoltageAC(sol []complex128) complex128 {
	if len(e.Idx) < 2 {
		return atC(sol, e.Idx[0])
	}
	return atC(sol, e.Idx[0]) - atC(sol, e.Idx[1])
}

// Stamp adds the element's contribution for st.Mode.
func Stamp(e *Element, m matrix.DeviceMatrix, st *Status) error {
	switch e.Kind {
	case Resistor:
		stampResistor(e, m, st)
	case Capacitor:
		stampCapacitor(e, m, st)
	case Inductor:
		stampInductor(e, m, st)
	case VoltageSource:
		stampVoltageSource(e, m, st)
	case CurrentSource:
		stampCurrentSource(e, m, st)
	case Diode:
		stampDiode(e, m, st)
	case Ground:
		stampGround(e, m)
	default:
		return fmt.Errorf("%s: no stamp for %s", e.Name, e.Kind)
	}
	return nil
}

// Current returns the real current through e for a real-mode solution.
func Current(e *Element, sol []float64, st *Status) float64 {
	switch e.Kind {
	case Resistor:
		return e.Voltage(sol) / e.Value
	case Capacitor:
		switch st.Mode {
		case Transient:
			geq, ieq := capacitorCompanion(e, st)
			return geq*e.Voltage(sol) + ieq
		case State:
			return at(sol, e.Aux)
		}
		return 0
	case Inductor, VoltageSource, Ground:
		return at(sol, e.Branch)
	case CurrentSource:
		return e.SourceValue(st)
	case Diode:
		id, _ := diodeCurrent(e, e.Voltage(sol), temperature(st))
		return id
	}
	return 0
}

// CurrentAC returns the phasor current through e. op is the operating
// point the AC solve was linearized around.
func CurrentAC(e *Element, sol []complex128, op []float64, st *Status) complex128 {
	v := e.VoltageAC(sol)
	switch e.Kind {
	case Resistor:
		return v / complex(e.Value, 0)
	case Capacitor:
		return v * complex(0, st.omega()*e.Value)
	case Inductor, VoltageSource, Ground:
		return atC(sol, e.Branch)
	case CurrentSource:
		return e.Phasor()
	case Diode:
		_, gd := diodeCurrent(e, e.Voltage(op), temperature(st))
		return v * complex(gd, 0)
	}
	return 0
}

// Impedance returns the complex impedance of a passive element at freq Hz.
func Impedance(e *Element, freq float64) (complex128, bool) {
	w := 2.0 * math.Pi * freq
	switch e.Kind {
	case Resistor:
		return complex(e.Value, 0), true
	case Capacitor:
		if w == 0 {
			return complex(math.Inf(1), 0), true
		}
		return 1 / complex(0, w*e.Value), true
	case Inductor:
		return complex(0, w*e.Value), true
	}
	return 0, false
}

func stampConductance(m matrix.DeviceMatrix, a, b int, g float64) {
	if a > 0 {
		m.AddElement(a, a, g)
	}
	if b > 0 {
		m.AddElement(b, b, g)
	}
	if a > 0 && b > 0 {
		m.AddElement(a, b, -g)
		m.AddElement(b, a, -g)
	}
}

func stampAdmittance(m matrix.DeviceMatrix, a, b int, y complex128) {
	re, im := real(y), imag(y)
	if a > 0 {
		m.AddComplexElement(a, a, re, im)
	}
	if b > 0 {
		m.AddComplexElement(b, b, re, im)
	}
	if a > 0 && b > 0 {
		m.AddComplexElement(a, b, -re, -im)
		m.AddComplexElement(b, a, -re, -im)
	}
}

// stampCurrent adds a current i flowing from a through the element into b.
func stampCurrent(m matrix.DeviceMatrix, a, b int, i float64) {
	if a > 0 {
		m.AddRHS(a, -i)
	}
	if b > 0 {
		m.AddRHS(b, i)
	}
}

func stampCurrentAC(m matrix.DeviceMatrix, a, b int, i complex128) {
	if a > 0 {
		m.AddComplexRHS(a, -real(i), -imag(i))
	}
	if b > 0 {
		m.AddComplexRHS(b, real(i), imag(i))
	}
}

// stampBranch couples branch row br to terminals a and b: the branch current
// leaves a and enters b, and row br reads v(a) - v(b).
func stampBranch(m matrix.DeviceMatrix, a, b, br int) {
	if a > 0 {
		m.AddElement(a, br, 1)
		m.AddElement(br, a, 1)
	}
	if b > 0 {
		m.AddElement(b, br, -1)
		m.AddElement(br, b, -1)
	}
}
