package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCompactNumber(t *testing.T) {
	cases := map[string]float64{
		"42":     42,
		"1.2K":   1200,
		"350k":   350000,
		" 2.5M ": 2.5e6,
		"3B":     3e9,
		"1,024":  1024,
	}
	for in, want := range cases {
		got, ok := ParseCompactNumber(in)
		assert.True(t, ok, in)
		assert.InDelta(t, want, got, 1e-6, in)
	}

	for _, in := range []string{"", "n/a", "M"} {
		_, ok := ParseCompactNumber(in)
		assert.False(t, ok, in)
	}
}
