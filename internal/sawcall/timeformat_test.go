package sawcall

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		seconds float64
		want    string
	}{
		{"zero", 0, "00:00:00.00"},
		{"sub-second", 0.25, "00:00:00.25"},
		{"minutes", 125.25, "00:02:05.25"},
		{"hours", 3661.5, "01:01:01.50"},
		{"many hours", 100 * 3600, "100:00:00.00"},
		{"negative clamps to zero", -5, "00:00:00.00"},
		{"nan clamps to zero", math.NaN(), "00:00:00.00"},
		{"inf clamps to zero", math.Inf(1), "00:00:00.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatTimestamp(tt.seconds))
		})
	}
}

func TestEventTimestamps(t *testing.T) {
	e := Event{Start: 61.5, End: 63.25}
	assert.Equal(t, "00:01:01.50", e.StartTimestamp())
	assert.Equal(t, "00:01:03.25", e.EndTimestamp())
	assert.InDelta(t, 1.75, e.Duration(), 1e-9)
}
