package device

import "math"

type Mode int

const (
	OperatingPoint Mode = iota
	AC
	Transient
	// State solves the instantaneous circuit with capacitor voltages and
	// inductor currents pinned to a given state vector.
	State
)

func (m Mode) String() string {
	switch m {
	case OperatingPoint:
		return "op"
	case AC:
		return "ac"
	case Transient:
		return "transient"
	case State:
		return "state"
	default:
		return "unknown"
	}
}

type Method int

const (
	BE Method = iota // Backward Euler
	TR               // Trapezoidal
)

// History is the last accepted transient point, one entry per state slot:
// capacitor voltage/current or inductor voltage/current.
type History struct {
	Voltage []float64
	Current []float64
}

func NewHistory(slots int) *History {
	return &History{Voltage: make([]float64, slots), Current: make([]float64, slots)}
}

// Status carries everything a stamp needs beyond the component itself.
// One Status belongs to one run.
type Status struct {
	Mode      Mode
	Time      float64
	TimeStep  float64
	Frequency float64
	Method    Method
	Gmin      float64
	Temp      float64

	Iterate  []float64 // 1-based Newton iterate, nil is all zero
	State    []float64 // state vector for State mode
	History  *History  // companion model history for Transient mode
	Junction []float64 // limited junction voltage per nonlinear slot
	Limited  bool      // set when a junction was limited during the last stamp
}

func (st *Status) omega() float64 {
	return 2.0 * math.Pi * st.Frequency
}
