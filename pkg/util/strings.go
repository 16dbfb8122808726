package util

import (
	"strconv"
	"strings"
)

var compactSuffix = map[byte]float64{'K': 1e3, 'M': 1e6, 'B': 1e9}

// ParseCompactNumber parses plain or abbreviated amounts such as "1.2M" or
// "350k".
func ParseCompactNumber(s string) (float64, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	mult := 1.0
	if m, ok := compactSuffix[s[len(s)-1]]; ok {
		mult = m
		s = s[:len(s)-1]
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v * mult, true
}
