package device

import (
	"fmt"
	"math"
)

type WaveKind int

const (
	SIN WaveKind = iota
	PULSE
	PWL
)

// Waveform is a time-varying source value for transient analysis.
type Waveform struct {
	Kind WaveKind

	// SIN
	Offset    float64
	Amplitude float64
	Freq      float64
	Phase     float64 // degrees

	// PULSE
	V1, V2 float64
	Delay  float64
	Rise   float64
	Fall   float64
	Width  float64
	Period float64

	// PWL
	Times  []float64
	Values []float64
}

func NewSin(offset, amplitude, freq, phase float64) *Waveform {
	return &Waveform{Kind: SIN, Offset: offset, Amplitude: amplitude, Freq: freq, Phase: phase}
}

func NewPulse(v1, v2, delay, rise, fall, width, period float64) *Waveform {
	return &Waveform{Kind: PULSE, V1: v1, V2: v2, Delay: delay, Rise: rise, Fall: fall, Width: width, Period: period}
}

// NewStep rises from v1 to v2 over rise seconds after delay and stays there.
func NewStep(v1, v2, delay, rise float64) *Waveform {
	return NewPulse(v1, v2, delay, rise, 0, math.Inf(1), 0)
}

func NewPWL(times, values []float64) *Waveform {
	return &Waveform{Kind: PWL, Times: times, Values: values}
}

func (w *Waveform) validate() error {
	switch w.Kind {
	case SIN:
		if w.Freq < 0 {
			return fmt.Errorf("sin frequency must not be negative")
		}
	case PULSE:
		if w.Rise < 0 || w.Fall < 0 || w.Width < 0 || w.Period < 0 || w.Delay < 0 {
			return fmt.Errorf("pulse timing must not be negative")
		}
	case PWL:
		if len(w.Times) == 0 || len(w.Times) != len(w.Values) {
			return fmt.Errorf("pwl needs matching, non-empty time and value lists")
		}
		for i := 1; i < len(w.Times); i++ {
			if w.Times[i] <= w.Times[i-1] {
				return fmt.Errorf("pwl times must increase")
			}
		}
	default:
		return fmt.Errorf("unknown waveform kind %d", int(w.Kind))
	}
	return nil
}

func (w *Waveform) At(t float64) float64 {
	switch w.Kind {
	case SIN:
		phaseRad := w.Phase * math.Pi / 180.0
		return w.Offset + w.Amplitude*math.Sin(2.0*math.Pi*w.Freq*t+phaseRad)
	case PULSE:
		return w.pulseAt(t)
	case PWL:
		return w.pwlAt(t)
	default:
		return 0
	}
}

func (w *Waveform) pulseAt(t float64) float64 {
	if t < w.Delay {
		return w.V1
	}

	t = t - w.Delay
	if w.Period > 0 {
		t = math.Mod(t, w.Period)
	}

	if t < w.Rise {
		return w.V1 + (w.V2-w.V1)*t/w.Rise
	}
	if t < w.Rise+w.Width {
		return w.V2
	}

	fallStart := w.Rise + w.Width
	if t < fallStart+w.Fall {
		return w.V2 - (w.V2-w.V1)*(t-fallStart)/w.Fall
	}
	return w.V1
}

func (w *Waveform) pwlAt(t float64) float64 {
	if t <= w.Times[0] {
		return w.Values[0]
	}

	last := len(w.Times) - 1
	if t >= w.Times[last] {
		return w.Values[last]
	}

	for i := 1; i < len(w.Times); i++ {
		if t <= w.Times[i] {
			t1, t2 := w.Times[i-1], w.Times[i]
			v1, v2 := w.Values[i-1], w.Values[i]
			return v1 + (v2-v1)*(t-t1)/(t2-t1)
		}
	}
	return w.Values[last]
}
