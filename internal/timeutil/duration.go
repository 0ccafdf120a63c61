// Package timeutil parses the duration and timestamp formats used by
// history queries, and resolves query timeframes into concrete windows.
package timeutil

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// segmentPattern matches one "<number><unit>" segment, with optional
// whitespace around it. Decimal numbers are permitted.
var segmentPattern = regexp.MustCompile(`^\s*([0-9]*\.?[0-9]+)\s*([dhmsDHMS])`)

var unitSize = map[string]time.Duration{
	"d": 24 * time.Hour,
	"h": time.Hour,
	"m": time.Minute,
	"s": time.Second,
}

// ParseDuration parses durations like "1d2h3m", "1.5h", or "90 m".
// A bare number is interpreted as seconds.
func ParseDuration(value string) (time.Duration, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}

	var total time.Duration
	rest := s
	for rest != "" {
		m := segmentPattern.FindStringSubmatch(rest)
		if m == nil {
			if strings.TrimSpace(rest) == "" {
				break
			}
			return 0, fmt.Errorf("invalid duration %q", value)
		}
		num, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", value, err)
		}
		unit := unitSize[strings.ToLower(m[2])]
		total += time.Duration(num * float64(unit))
		rest = rest[len(m[0]):]
	}
	return total, nil
}

// FormatDuration renders a duration as "<d>d<h>h<m>m<s>s", omitting
// zero-valued units. It is the inverse of ParseDuration for durations
// expressible in whole seconds.
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}

	var b strings.Builder
	write := func(n int64, unit string) {
		if n > 0 {
			fmt.Fprintf(&b, "%d%s", n, unit)
		}
	}

	secs := int64(d / time.Second)
	write(secs/86400, "d")
	write(secs%86400/3600, "h")
	write(secs%3600/60, "m")
	write(secs%60, "s")

	if b.Len() == 0 {
		return "0s"
	}
	return b.String()
}
