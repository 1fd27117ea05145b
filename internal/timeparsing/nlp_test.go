package timeparsing

import (
	"testing"
	"time"
)

// Reference: Thursday, January 15, 2026, 10:00 local.
func refTime() time.Time {
	return time.Date(2026, 1, 15, 10, 0, 0, 0, time.Local)
}

func TestParseNaturalLanguage(t *testing.T) {
	now := refTime()

	cases := []struct {
		input     string
		wantYear  int
		wantMonth time.Month
		wantDay   int
		wantHour  int // -1 skips the hour check
		wantErr   bool
	}{
		{input: "tomorrow", wantYear: 2026, wantMonth: time.January, wantDay: 16, wantHour: -1},
		{input: "yesterday", wantYear: 2026, wantMonth: time.January, wantDay: 14, wantHour: -1},
		{input: "next monday", wantYear: 2026, wantMonth: time.January, wantDay: 19, wantHour: -1},
		{input: "tomorrow at 9am", wantYear: 2026, wantMonth: time.January, wantDay: 16, wantHour: 9},
		{input: "in 3 days", wantYear: 2026, wantMonth: time.January, wantDay: 18, wantHour: -1},
		{input: "in 1 week", wantYear: 2026, wantMonth: time.January, wantDay: 22, wantHour: -1},
		{input: "3 days ago", wantYear: 2026, wantMonth: time.January, wantDay: 12, wantHour: -1},
		{input: "not a date at all", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, c := range cases {
		got, err := ParseNaturalLanguage(c.input, now)
		if (err != nil) != c.wantErr {
			t.Errorf("ParseNaturalLanguage(%q) error = %v, wantErr %v", c.input, err, c.wantErr)
			continue
		}
		if c.wantErr {
			continue
		}
		if got.Year() != c.wantYear || got.Month() != c.wantMonth || got.Day() != c.wantDay {
			t.Errorf("ParseNaturalLanguage(%q) = %v, want %d-%02d-%02d",
				c.input, got, c.wantYear, c.wantMonth, c.wantDay)
		}
		if c.wantHour >= 0 && got.Hour() != c.wantHour {
			t.Errorf("ParseNaturalLanguage(%q) hour = %d, want %d", c.input, got.Hour(), c.wantHour)
		}
	}
}

func TestParseRelativeTimeLayers(t *testing.T) {
	now := refTime()

	// Compact duration wins first and preserves the clock time.
	got, err := ParseRelativeTime("+1d", now)
	if err != nil {
		t.Fatalf("ParseRelativeTime(+1d) failed: %v", err)
	}
	if !got.Equal(now.AddDate(0, 0, 1)) {
		t.Errorf("ParseRelativeTime(+1d) = %v, want %v", got, now.AddDate(0, 0, 1))
	}

	// Natural language.
	got, err = ParseRelativeTime("tomorrow", now)
	if err != nil {
		t.Fatalf("ParseRelativeTime(tomorrow) failed: %v", err)
	}
	if got.Day() != 16 {
		t.Errorf("ParseRelativeTime(tomorrow) day = %d, want 16", got.Day())
	}

	// Date-only parses at midnight local, not as natural language.
	got, err = ParseRelativeTime("2026-02-01", now)
	if err != nil {
		t.Fatalf("ParseRelativeTime(date) failed: %v", err)
	}
	if got.Year() != 2026 || got.Month() != time.February || got.Day() != 1 || got.Hour() != 0 {
		t.Errorf("ParseRelativeTime(2026-02-01) = %v", got)
	}

	// Full RFC3339.
	got, err = ParseRelativeTime("2026-03-15T14:30:00Z", now)
	if err != nil {
		t.Fatalf("ParseRelativeTime(rfc3339) failed: %v", err)
	}
	if got.Hour() != 14 || got.Minute() != 30 {
		t.Errorf("ParseRelativeTime(rfc3339) = %v", got)
	}

	if _, err := ParseRelativeTime("not-a-date", now); err == nil {
		t.Error("invalid expression accepted")
	}
}

func TestParseNaturalLanguageRejectsPartialMatch(t *testing.T) {
	if _, err := ParseNaturalLanguage("deploy it tomorrow", refTime()); err == nil {
		t.Error("trailing words around the expression accepted")
	}
}
