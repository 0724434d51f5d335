package display

import (
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

// Calculating is shown while an estimate is not yet defined.
const Calculating = "calculating"

// FormatBytes returns a human-readable IEC size (B, KiB, MiB, GiB, …).
func FormatBytes(bytes int64) string {
	if bytes < 0 {
		return "-" + humanize.IBytes(uint64(-bytes))
	}
	return humanize.IBytes(uint64(bytes))
}

// FormatBytesWithSign prefixes with + or - for delta display (e.g. "- 1.2 MiB").
func FormatBytesWithSign(bytes int64) string {
	sign := ""
	if bytes > 0 {
		sign = "+ "
	} else if bytes < 0 {
		sign = "- "
		bytes = -bytes
	}
	return sign + FormatBytes(bytes)
}

// FormatThroughput renders bytes/second, or [Calculating] when unknown.
func FormatThroughput(bytesPerSec float64, known bool) string {
	if !known || bytesPerSec < 0 || math.IsInf(bytesPerSec, 0) || math.IsNaN(bytesPerSec) {
		return Calculating
	}
	return humanize.IBytes(uint64(bytesPerSec)) + "/s"
}

// FormatETA renders a remaining duration as "42s", "3m 05s" or "1h 02m".
func FormatETA(d time.Duration, known bool) string {
	if !known || d < 0 {
		return Calculating
	}
	secs := int64(d.Round(time.Second) / time.Second)
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm %02ds", secs/60, secs%60)
	default:
		return fmt.Sprintf("%dh %02dm", secs/3600, (secs%3600)/60)
	}
}
