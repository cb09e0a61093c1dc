package format

import (
	"fmt"
	"math"
)

// srtTimestamp formats seconds as HH:MM:SS,mmm.
func srtTimestamp(seconds float64) string {
	return clock(seconds, ',')
}

// vttTimestamp formats seconds as HH:MM:SS.mmm.
func vttTimestamp(seconds float64) string {
	return clock(seconds, '.')
}

// clock renders a zero-padded timestamp. Milliseconds are truncated,
// not rounded. The epsilon keeps float representation error (2.9*1000
// is 2899.999...) from eating a whole millisecond.
func clock(seconds float64, sep byte) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(math.Floor(seconds*1000 + 1e-6))
	h := ms / 3600000
	m := (ms % 3600000) / 60000
	s := (ms % 60000) / 1000
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", h, m, s, sep, ms%1000)
}
