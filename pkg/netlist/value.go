package netlist

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var unitMap = map[string]float64{
	"t":   1e12,  // tera
	"g":   1e9,   // giga
	"meg": 1e6,   // mega
	"k":   1e3,   // kilo
	"m":   1e-3,  // milli
	"u":   1e-6,  // micro
	"n":   1e-9,  // nano
	"p":   1e-12, // pico
	"f":   1e-15, // femto
}

// number, optional scale suffix, then any unit letters ("10uF", "1meg", "2.2kohm")
var valueRe = regexp.MustCompile(`(?i)^([-+]?(?:\d+\.?\d*|\.\d+)(?:e[-+]?\d+)?)(meg|[tgkmunpf])?([a-z]*)$`)

// ParseValue - Parse value and factor. 1k -> 1000
func ParseValue(val string) (float64, error) {
	matches := valueRe.FindStringSubmatch(strings.TrimSpace(val))
	if matches == nil {
		return 0, fmt.Errorf("invalid value format: %q", val)
	}

	num, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, err
	}
	if s := strings.ToLower(matches[2]); s != "" {
		num *= unitMap[s]
	}
	return num, nil
}

func parseValues(words []string) ([]float64, error) {
	out := make([]float64, len(words))
	for i, w := range words {
		v, err := ParseValue(w)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
