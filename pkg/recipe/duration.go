package recipe

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	isoHoursRe   = regexp.MustCompile(`(\d+)H`)
	isoMinutesRe = regexp.MustCompile(`(\d+)M`)
	firstNumRe   = regexp.MustCompile(`(\d+)`)
)

// ParseDuration converts a duration string into minutes. Supports ISO-8601
// durations (PT1H30M) and falls back to the first number in the string.
// Returns 0 when nothing parseable is found.
func ParseDuration(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	if strings.HasPrefix(s, "PT") || strings.HasPrefix(s, "P") {
		hours, minutes := 0, 0
		if m := isoHoursRe.FindStringSubmatch(s); m != nil {
			hours, _ = strconv.Atoi(m[1])
		}
		if m := isoMinutesRe.FindStringSubmatch(s); m != nil {
			minutes, _ = strconv.Atoi(m[1])
		}
		if hours > 0 || minutes > 0 {
			return hours*60 + minutes
		}
	}

	if m := firstNumRe.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}

// ParseYield extracts a serving count from free-form yield text,
// e.g. "4 servings", "serves 6-8" or a bare number.
func ParseYield(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	if m := firstNumRe.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}
