package timeparsing

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var nlpParser = newNLPParser()

func newNLPParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// ParseNaturalLanguage parses English time expressions like "tomorrow",
// "next monday at 2pm", "3 days ago". The whole input must be a time
// expression; partial matches ("meet me tomorrow") are rejected so
// typos don't silently become dates.
func ParseNaturalLanguage(s string, base time.Time) (time.Time, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("empty time expression")
	}

	r, err := nlpParser.Parse(trimmed, base)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("not a recognized time expression: %q", s)
	}
	if len(strings.TrimSpace(trimmed[:r.Index])) > 0 ||
		len(strings.TrimSpace(trimmed[r.Index+len(r.Text):])) > 0 {
		return time.Time{}, fmt.Errorf("not a recognized time expression: %q", s)
	}

	return r.Time, nil
}

// ParseRelativeTime resolves a time expression through the layered
// parsers: compact duration, then natural language, then date-only
// (2006-01-02, midnight local), then RFC3339.
func ParseRelativeTime(s string, base time.Time) (time.Time, error) {
	if IsCompactDuration(s) {
		return ParseCompactDuration(s, base)
	}

	if t, err := ParseNaturalLanguage(s, base); err == nil {
		return t, nil
	}

	if t, err := time.ParseInLocation("2006-01-02", s, base.Location()); err == nil {
		return t, nil
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	return time.Time{}, fmt.Errorf("unrecognized time expression: %q", s)
}
