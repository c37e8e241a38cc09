package sawcall

import (
	"fmt"
	"math"
)

// FormatTimestamp converts an offset in seconds to HH:MM:SS.ss with
// two-decimal seconds. Display only; arithmetic is always done on the raw
// float offsets.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		seconds = 0
	}

	hours := int(seconds) / 3600
	remainder := seconds - float64(hours)*3600
	minutes := int(remainder) / 60
	secs := remainder - float64(minutes)*60

	return fmt.Sprintf("%02d:%02d:%05.2f", hours, minutes, secs)
}
