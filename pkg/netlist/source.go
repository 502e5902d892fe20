package netlist

import (
	"errors"
	"strings"

	"github.com/edp1096/circuit-engine/pkg/device"
)

// parseSource reads the value part of a V or I line:
//
//	[DC] v  |  AC mag [phase]  |  SIN(off amp freq [phase])
//	PULSE(v1 v2 delay rise fall width period)  |  PWL(t1 v1 t2 v2 ...)
//
// The DC value also drives AC analysis unless an AC magnitude is given. A
// waveform source without AC is zero in AC analysis.
func parseSource(e element, np, nn int) (device.Component, error) {
	words := tokenize(e.fields[3:])

	var (
		dc, ac, phase float64
		hasDC, hasAC  bool
		wave          *device.Waveform
	)
	for i := 0; i < len(words); {
		w := strings.ToUpper(words[i])
		switch w {
		case "DC", "AC":
			if i+1 >= len(words) {
				return device.Component{}, lineError(e.num, "%s: missing %s value", e.name, w)
			}
			v, err := ParseValue(words[i+1])
			if err != nil {
				return device.Component{}, lineError(e.num, "%s: %v", e.name, err)
			}
			i += 2
			if w == "DC" {
				dc, hasDC = v, true
				continue
			}
			ac, hasAC = v, true
			if i < len(words) {
				if ph, err := ParseValue(words[i]); err == nil {
					phase = ph
					i++
				}
			}

		case "SIN", "PULSE", "PWL":
			args, next := parenArgs(words, i+1)
			values, err := parseValues(args)
			if err != nil {
				return device.Component{}, lineError(e.num, "%s: %s: %v", e.name, w, err)
			}
			if wave, err = waveform(w, values); err != nil {
				return device.Component{}, lineError(e.num, "%s: %v", e.name, err)
			}
			i = next

		default:
			v, err := ParseValue(words[i])
			if err != nil || hasDC || i != 0 {
				return device.Component{}, lineError(e.num, "%s: unexpected %q", e.name, words[i])
			}
			dc, hasDC = v, true
			i++
		}
	}

	value := dc
	switch {
	case !hasDC && wave != nil:
		value = wave.At(0)
	case !hasDC && hasAC:
		value = ac
	case !hasDC:
		return device.Component{}, lineError(e.num, "%s: no source value", e.name)
	}
	if hasAC && ac != value {
		return device.Component{}, lineError(e.num, "%s: AC magnitude %g differs from the DC value %g", e.name, ac, value)
	}

	var c device.Component
	if e.kind == "V" {
		c = device.NewVoltageSource(e.name, np, nn, value)
	} else {
		c = device.NewCurrentSource(e.name, np, nn, value)
	}
	c.Phase = phase
	c.NoAC = wave != nil && !hasAC
	if wave != nil {
		c = c.WithWave(wave)
	}
	return c, nil
}

// tokenize splits fields so parentheses stand alone and commas separate.
func tokenize(fields []string) []string {
	s := strings.Join(fields, " ")
	s = strings.NewReplacer("(", " ( ", ")", " ) ", ",", " ").Replace(s)
	return strings.Fields(s)
}

// parenArgs collects the arguments after a waveform keyword, with or without
// surrounding parentheses. It returns them and the index after the list.
func parenArgs(words []string, i int) ([]string, int) {
	if i < len(words) && words[i] == "(" {
		var args []string
		for i++; i < len(words) && words[i] != ")"; i++ {
			args = append(args, words[i])
		}
		return args, i + 1
	}
	var args []string
	for ; i < len(words); i++ {
		if _, err := ParseValue(words[i]); err != nil {
			break
		}
		args = append(args, words[i])
	}
	return args, i
}

func waveform(kind string, v []float64) (*device.Waveform, error) {
	switch kind {
	case "SIN":
		if len(v) < 3 || len(v) > 4 {
			return nil, errors.New("SIN needs offset, amplitude, frequency and an optional phase")
		}
		phase := 0.0
		if len(v) == 4 {
			phase = v[3]
		}
		return device.NewSin(v[0], v[1], v[2], phase), nil
	case "PULSE":
		if len(v) != 7 {
			return nil, errors.New("PULSE needs v1 v2 delay rise fall width period")
		}
		return device.NewPulse(v[0], v[1], v[2], v[3], v[4], v[5], v[6]), nil
	default:
		if len(v) < 2 || len(v)%2 != 0 {
			return nil, errors.New("PWL needs time-value pairs")
		}
		times := make([]float64, 0, len(v)/2)
		values := make([]float64, 0, len(v)/2)
		for i := 0; i < len(v); i += 2 {
			if len(times) > 0 && v[i] <= times[len(times)-1] {
				return nil, errors.New("PWL time points must be strictly increasing")
			}
			times = append(times, v[i])
			values = append(values, v[i+1])
		}
		return device.NewPWL(times, values), nil
	}
}
