package lql

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// arity is min/max argument counts per function; max -1 means variadic.
var arities = map[string][2]int{
	"upper":      {1, 1},
	"lower":      {1, 1},
	"trim":       {1, 1},
	"length":     {1, 1},
	"coalesce":   {1, -1},
	"concat":     {1, -1},
	"substring":  {3, 3},
	"left":       {2, 2},
	"right":      {2, 2},
	"replace":    {3, 3},
	"dateformat": {2, 2},
}

func knownFunc(name string) bool {
	_, ok := arities[name]
	return ok
}

func checkArity(name string, n int) error {
	a := arities[name]
	if n < a[0] {
		return fmt.Errorf("%s() needs at least %d argument(s), got %d", name, a[0], n)
	}
	if a[1] >= 0 && n > a[1] {
		return fmt.Errorf("%s() takes at most %d argument(s), got %d", name, a[1], n)
	}
	return nil
}

// callFunc evaluates one function application. Null handling follows
// the mapping rules: null inputs flow through string functions as
// empty, concat skips nulls, and coalesce picks the first non-empty
// value.
func callFunc(name string, args []value) value {
	switch name {
	case "upper":
		return value{s: strings.ToUpper(args[0].s), null: args[0].null}
	case "lower":
		return value{s: strings.ToLower(args[0].s), null: args[0].null}
	case "trim":
		return value{s: strings.TrimSpace(args[0].s), null: args[0].null}
	case "length":
		return value{s: strconv.Itoa(len([]rune(args[0].s)))}
	case "coalesce":
		for _, a := range args {
			if !a.null && a.s != "" {
				return a
			}
		}
		return value{}
	case "concat":
		var b strings.Builder
		for _, a := range args {
			if a.null {
				continue
			}
			b.WriteString(a.s)
		}
		return value{s: b.String()}
	case "substring":
		return substring(args[0], args[1].s, args[2].s)
	case "left":
		n := intArg(args[1].s, 0)
		r := []rune(args[0].s)
		if n < 0 {
			n = 0
		}
		if n > len(r) {
			n = len(r)
		}
		return value{s: string(r[:n])}
	case "right":
		n := intArg(args[1].s, 0)
		r := []rune(args[0].s)
		if n < 0 {
			n = 0
		}
		if n > len(r) {
			n = len(r)
		}
		return value{s: string(r[len(r)-n:])}
	case "replace":
		return value{s: strings.ReplaceAll(args[0].s, args[1].s, args[2].s)}
	case "dateformat":
		return dateFormat(args[0], args[1].s)
	}
	return value{}
}

// substring is 1-based like its SQL namesake.
func substring(v value, startStr, lenStr string) value {
	r := []rune(v.s)
	start := intArg(startStr, 1) - 1
	n := intArg(lenStr, 0)
	if start < 0 {
		start = 0
	}
	if start >= len(r) || n <= 0 {
		return value{}
	}
	end := start + n
	if end > len(r) {
		end = len(r)
	}
	return value{s: string(r[start:end])}
}

func intArg(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return n
}

// dateInputLayouts are tried in order when parsing a dateFormat input.
var dateInputLayouts = []string{
	"2006-01-02T15:04:05.000Z",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// dateFormat reformats a timestamp using yyyy/MM/dd/HH/mm/ss pattern
// tokens. Values that do not parse as dates pass through unchanged.
func dateFormat(v value, pattern string) value {
	if v.null || v.s == "" {
		return v
	}
	var parsed time.Time
	ok := false
	for _, layout := range dateInputLayouts {
		if t, err := time.Parse(layout, v.s); err == nil {
			parsed, ok = t, true
			break
		}
	}
	if !ok {
		return v
	}
	layout := patternToLayout(pattern)
	return value{s: parsed.Format(layout)}
}

var patternTokens = []struct{ from, to string }{
	{"yyyy", "2006"},
	{"yy", "06"},
	{"MM", "01"},
	{"dd", "02"},
	{"HH", "15"},
	{"mm", "04"},
	{"ss", "05"},
	{"SSS", "000"},
}

func patternToLayout(pattern string) string {
	out := pattern
	for _, t := range patternTokens {
		out = strings.ReplaceAll(out, t.from, t.to)
	}
	return out
}
