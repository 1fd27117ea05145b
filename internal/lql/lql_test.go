package lql

import "testing"

func mustParse(t *testing.T, src string) *Expr {
	t.Helper()
	e, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", src, err)
	}
	return e
}

func TestColumnReference(t *testing.T) {
	e := mustParse(t, "name")
	if got := e.Eval(Row{"name": "Ada"}); got != "Ada" {
		t.Errorf("got %q", got)
	}
	// Column names match case-insensitively.
	if got := e.Eval(Row{"Name": "Ada"}); got != "Ada" {
		t.Errorf("case-insensitive lookup: got %q", got)
	}
	// Missing columns read as empty, not as an error.
	if got := e.Eval(Row{}); got != "" {
		t.Errorf("missing column: got %q", got)
	}
}

func TestLiterals(t *testing.T) {
	if got := mustParse(t, "'hello'").Eval(nil); got != "hello" {
		t.Errorf("string literal: got %q", got)
	}
	if got := mustParse(t, "'it''s'").Eval(nil); got != "it's" {
		t.Errorf("escaped quote: got %q", got)
	}
	if got := mustParse(t, "42").Eval(nil); got != "42" {
		t.Errorf("number literal: got %q", got)
	}
}

func TestStringFunctions(t *testing.T) {
	row := Row{"name": "  Ada Lovelace  "}
	cases := []struct {
		expr, want string
	}{
		{"upper(name)", "  ADA LOVELACE  "},
		{"trim(name)", "Ada Lovelace"},
		{"lower(trim(name))", "ada lovelace"},
		{"length(trim(name))", "12"},
		{"substring(trim(name), 1, 3)", "Ada"},
		{"left(trim(name), 3)", "Ada"},
		{"right(trim(name), 8)", "Lovelace"},
		{"replace(trim(name), ' ', '_')", "Ada_Lovelace"},
	}
	for _, c := range cases {
		if got := mustParse(t, c.expr).Eval(row); got != c.want {
			t.Errorf("%s = %q, want %q", c.expr, got, c.want)
		}
	}
}

func TestConcatSkipsNulls(t *testing.T) {
	e := mustParse(t, "concat(first, ' ', last)")
	row := Row{"first": "Ada", "last": nil}
	if got := e.Eval(row); got != "Ada " {
		t.Errorf("concat with null: got %q", got)
	}
}

func TestCoalesce(t *testing.T) {
	e := mustParse(t, "coalesce(nickname, name, 'anonymous')")
	if got := e.Eval(Row{"nickname": nil, "name": "Ada"}); got != "Ada" {
		t.Errorf("got %q", got)
	}
	if got := e.Eval(Row{"nickname": nil, "name": ""}); got != "anonymous" {
		t.Errorf("all-empty fallback: got %q", got)
	}
}

func TestPipeOperator(t *testing.T) {
	e := mustParse(t, "name |> trim() |> upper()")
	if got := e.Eval(Row{"name": "  ada  "}); got != "ADA" {
		t.Errorf("got %q", got)
	}

	// The piped value is the first argument; remaining arguments follow.
	e = mustParse(t, "name |> substring(1, 3) |> lower()")
	if got := e.Eval(Row{"name": "ADA LOVELACE"}); got != "ada" {
		t.Errorf("pipe with args: got %q", got)
	}
}

func TestDateFormat(t *testing.T) {
	e := mustParse(t, "dateFormat(created, 'yyyy/MM/dd')")
	if got := e.Eval(Row{"created": "2026-08-24T12:30:45.000Z"}); got != "2026/08/24" {
		t.Errorf("got %q", got)
	}
	// Values that do not parse as dates pass through untouched.
	if got := e.Eval(Row{"created": "not a date"}); got != "not a date" {
		t.Errorf("non-date passthrough: got %q", got)
	}
}

func TestNumericColumnValues(t *testing.T) {
	e := mustParse(t, "concat('v', version)")
	if got := e.Eval(Row{"version": 7}); got != "v7" {
		t.Errorf("got %q", got)
	}
}

func TestParseErrors(t *testing.T) {
	bad := []string{
		"",
		"upper(",
		"upper()",
		"unknownfn(x)",
		"name |> 'literal'",
		"name |>",
		"'unterminated",
		"upper(name))",
		"substring(a, 1)",
	}
	for _, src := range bad {
		if _, err := Parse(src); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", src)
		}
	}
}
