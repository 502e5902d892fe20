package util

import (
	"fmt"
	"math"
)

var prefixes = []struct {
	scale  float64
	symbol string
}{
	{1e12, "T"}, {1e9, "G"}, {1e6, "M"}, {1e3, "k"}, {1, ""},
	{1e-3, "m"}, {1e-6, "u"}, {1e-9, "n"}, {1e-12, "p"}, {1e-15, "f"},
}

// FormatValueFactor renders value with an SI prefix and three decimals,
// e.g. 833.333 uA. Values below the femto range fall back to exponent form.
func FormatValueFactor(value float64, unit string) string {
	if value == 0 {
		return fmt.Sprintf("%.3f %s", 0.0, unit)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Sprintf("%v %s", value, unit)
	}
	abs := math.Abs(value)
	for _, p := range prefixes {
		if abs >= p.scale {
			return fmt.Sprintf("%.3f %s%s", value/p.scale, p.symbol, unit)
		}
	}
	return fmt.Sprintf("%.3e %s", value, unit)
}

func FormatTime(t float64) string { return FormatValueFactor(t, "s") }

func FormatFrequency(freq float64) string {
	switch {
	case freq >= 1e9:
		return fmt.Sprintf("%7.3f GHz", freq/1e9)
	case freq >= 1e6:
		return fmt.Sprintf("%7.3f MHz", freq/1e6)
	case freq >= 1e3:
		return fmt.Sprintf("%7.3f kHz", freq/1e3)
	default:
		return fmt.Sprintf("%7.3f Hz ", freq)
	}
}

func FormatMagnitude(value float64) string {
	if value >= 1000 || (value < 0.001 && value != 0) {
		return fmt.Sprintf("%8.2e", value) // "1.00e+03" or "5.43e-05"
	}
	return fmt.Sprintf("%8.3g", value) // "   0.707"
}

func FormatPhase(value float64) string {
	return fmt.Sprintf("%6.1f", value) // "  90.0"
}

// FormatMagnitudePhase renders a phasor as name=mag<phase deg.
func FormatMagnitudePhase(name string, mag, phaseDeg float64) string {
	return fmt.Sprintf("%s=%s<%sdeg", name, FormatMagnitude(mag), FormatPhase(phaseDeg))
}

// FormatStat renders a Monte Carlo figure the same way for every quantity;
// the unit is inferred from the observation name prefix.
func FormatStat(name string, value float64) string {
	unit := ""
	if len(name) > 1 && name[1] == '(' || len(name) > 2 && name[2] == '(' {
		switch name[0] {
		case 'V':
			unit = "V"
		case 'I':
			unit = "A"
		case 'P':
			unit = "W"
		}
	}
	return FormatValueFactor(value, unit)
}
