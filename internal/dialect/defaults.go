package dialect

import (
	"regexp"
	"strings"

	"github.com/steveyegge/tandem/internal/types"
)

// DefaultTranslator renders the default-expression DSL for one engine.
// The DSL is deliberately small: timestamp and UUID nullaries, boolean and
// numeric literals, single-quoted strings, and a curated set of scalar
// functions. Unknown function names pass through unmodified, which also
// makes translation idempotent on already-native SQL.
//
// Normalization lowercases the whole expression, including the contents
// of single-quoted literals. Case-significant string defaults must be
// supplied as literal SQL on the column instead of through the DSL.
type DefaultTranslator struct {
	// Native nullary expressions.
	Now         string
	CurrentDate string
	CurrentTime string
	UUID        string

	// Native boolean literals.
	True  string
	False string

	// Funcs renders a curated scalar function with already-translated
	// arguments. Function names are lowercase.
	Funcs map[string]func(args []string) string
}

var (
	numberRe = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	stringRe = regexp.MustCompile(`^'([^']|'')*'$`)
	funcRe   = regexp.MustCompile(`^([a-z_][a-z0-9_]*)\s*\((.*)\)$`)
)

// Translate renders one DSL expression as native SQL.
func (tr *DefaultTranslator) Translate(dsl string) (string, error) {
	if strings.TrimSpace(dsl) == "" {
		return "", types.InvalidArgumentf("empty default expression")
	}
	norm := strings.ToLower(strings.TrimSpace(dsl))
	return tr.translate(norm), nil
}

func (tr *DefaultTranslator) translate(norm string) string {
	switch norm {
	case "now()", "current_timestamp()", "current_timestamp":
		return tr.Now
	case "current_date()", "current_date":
		return tr.CurrentDate
	case "current_time()", "current_time":
		return tr.CurrentTime
	case "gen_uuid()", "uuid()":
		return tr.UUID
	case "true":
		return tr.True
	case "false":
		return tr.False
	case "null":
		return "NULL"
	}

	if numberRe.MatchString(norm) || stringRe.MatchString(norm) {
		return norm
	}

	if m := funcRe.FindStringSubmatch(norm); m != nil {
		name, body := m[1], m[2]
		if render, ok := tr.Funcs[name]; ok {
			args := splitArgs(body)
			for i := range args {
				args[i] = tr.translate(strings.TrimSpace(args[i]))
			}
			return render(args)
		}
	}

	// Unknown shape: pass through unmodified. This covers engine-native
	// expressions and functions outside the curated set.
	return norm
}

// splitArgs splits a function argument list on top-level commas,
// respecting parentheses and single-quoted strings.
func splitArgs(body string) []string {
	if strings.TrimSpace(body) == "" {
		return nil
	}
	var args []string
	depth := 0
	inString := false
	start := 0
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '\'':
			inString = !inString
		case '(':
			if !inString {
				depth++
			}
		case ')':
			if !inString {
				depth--
			}
		case ',':
			if !inString && depth == 0 {
				args = append(args, body[start:i])
				start = i + 1
			}
		}
	}
	args = append(args, body[start:])
	return args
}

// PassthroughFuncs returns renderers for the curated functions whose
// syntax is identical across engines: name(arg, ...).
func PassthroughFuncs(names ...string) map[string]func(args []string) string {
	funcs := make(map[string]func(args []string) string, len(names))
	for _, name := range names {
		n := name
		funcs[n] = func(args []string) string {
			return n + "(" + strings.Join(args, ", ") + ")"
		}
	}
	return funcs
}
