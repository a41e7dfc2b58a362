package subtitle

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"
)

var timestampPattern = regexp.MustCompile(`^(\d+):(\d{2}):(\d{2})[,.](\d{3})$`)

// ParseTimestamp reads "HH:MM:SS,mmm" (a dot separator is also accepted).
// Malformed input yields zero.
func ParseTimestamp(ts string) time.Duration {
	m := timestampPattern.FindStringSubmatch(ts)
	if m == nil {
		return 0
	}
	var parts [4]int
	for i := range parts {
		parts[i], _ = strconv.Atoi(m[i+1])
	}
	return time.Duration(parts[0])*time.Hour +
		time.Duration(parts[1])*time.Minute +
		time.Duration(parts[2])*time.Second +
		time.Duration(parts[3])*time.Millisecond
}

// FormatTimestamp renders d as "HH:MM:SS,mmm", clamping negatives to zero.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d,%03d", ms/3_600_000, ms/60_000%60, ms/1000%60, ms%1000)
}

// SecondsToDuration converts seconds to a duration rounded to the millisecond.
func SecondsToDuration(seconds float64) time.Duration {
	return time.Duration(math.Round(seconds*1000)) * time.Millisecond
}
