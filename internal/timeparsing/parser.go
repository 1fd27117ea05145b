// Package timeparsing turns the time expressions accepted on the CLI
// (stale-client windows, subscription expiries) into absolute times.
//
// Parsing is layered: compact duration first (+6h, -1d, 2w), then
// natural language ("3 days ago", "next monday"), then date-only and
// RFC3339 timestamps.
package timeparsing

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// compactDurationRe matches [+-]?(\d+)([hdwmy]), e.g. +6h, -1d, 2w.
var compactDurationRe = regexp.MustCompile(`^([+-]?)(\d+)([hdwmy])$`)

// ParseCompactDuration applies a compact duration to the base time.
//
// Units: h hours, d days, w weeks, m months, y years. No sign means
// forward. "-2w" lands two weeks before base.
func ParseCompactDuration(s string, base time.Time) (time.Time, error) {
	matches := compactDurationRe.FindStringSubmatch(s)
	if matches == nil {
		return time.Time{}, fmt.Errorf("not a compact duration: %q", s)
	}

	amount, err := strconv.Atoi(matches[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid duration amount: %q", matches[2])
	}
	if matches[1] == "-" {
		amount = -amount
	}

	return applyDuration(base, amount, matches[3]), nil
}

func applyDuration(base time.Time, amount int, unit string) time.Time {
	switch unit {
	case "h":
		return base.Add(time.Duration(amount) * time.Hour)
	case "d":
		return base.AddDate(0, 0, amount)
	case "w":
		return base.AddDate(0, 0, amount*7)
	case "m":
		return base.AddDate(0, amount, 0)
	case "y":
		return base.AddDate(amount, 0, 0)
	default:
		return base
	}
}

// IsCompactDuration reports whether s matches compact duration syntax.
func IsCompactDuration(s string) bool {
	return compactDurationRe.MatchString(s)
}

// ParseWindowStart resolves a stale-window expression to the cutoff
// instant before which activity counts as stale. Compact durations are
// read as distances into the past, so "30d" and "-30d" both mean
// thirty days before now. Anything else goes through the layered
// parser, where "2 weeks ago" already points backwards.
func ParseWindowStart(s string, now time.Time) (time.Time, error) {
	if matches := compactDurationRe.FindStringSubmatch(s); matches != nil {
		amount, err := strconv.Atoi(matches[2])
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid duration amount: %q", matches[2])
		}
		return applyDuration(now, -amount, matches[3]), nil
	}
	return ParseRelativeTime(s, now)
}
