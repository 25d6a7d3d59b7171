package overlay

import (
	"strconv"
	"strings"
)

// ParseClock parses a SMIL clock value into seconds.
//
// Accepted forms: "1:02:03.456" (H:MM:SS.fff), "02:03" (MM:SS), "5.5s",
// "100ms", "2min", "1h", and a bare number of seconds. Parsing fails closed:
// callers treat a false return as an absent value, defaulting to 0, rather
// than aborting the book load.
func ParseClock(value string) (float64, bool) {
	s := strings.TrimSpace(value)
	if s == "" {
		return 0, false
	}

	if strings.ContainsRune(s, ':') {
		return parseClockColon(s)
	}

	// Unit order matters: "ms" and "min" both end in sequences containing
	// "s"/"m", so test the longer suffixes first.
	switch {
	case strings.HasSuffix(s, "ms"):
		return parseClockScaled(s[:len(s)-2], 0.001)
	case strings.HasSuffix(s, "min"):
		return parseClockScaled(s[:len(s)-3], 60)
	case strings.HasSuffix(s, "h"):
		return parseClockScaled(s[:len(s)-1], 3600)
	case strings.HasSuffix(s, "s"):
		return parseClockScaled(s[:len(s)-1], 1)
	}

	return parseClockScaled(s, 1)
}

func parseClockColon(s string) (float64, bool) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}

	var total float64
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || v < 0 {
			return 0, false
		}
		total = total*60 + v
	}
	return total, true
}

func parseClockScaled(s string, scale float64) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v * scale, true
}
