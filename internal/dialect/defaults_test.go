package dialect

import (
	"strings"
	"testing"
)

func testTranslator() *DefaultTranslator {
	funcs := PassthroughFuncs("lower", "upper", "coalesce")
	funcs["concat"] = func(args []string) string {
		return "(" + strings.Join(args, " || ") + ")"
	}
	return &DefaultTranslator{
		Now:         "CURRENT_TIMESTAMP",
		CurrentDate: "CURRENT_DATE",
		CurrentTime: "CURRENT_TIME",
		UUID:        "(uuid())",
		True:        "1",
		False:       "0",
		Funcs:       funcs,
	}
}

func TestTranslateNullaries(t *testing.T) {
	tr := testTranslator()
	cases := map[string]string{
		"now()":               "CURRENT_TIMESTAMP",
		"NOW()":               "CURRENT_TIMESTAMP",
		"current_timestamp":   "CURRENT_TIMESTAMP",
		"current_timestamp()": "CURRENT_TIMESTAMP",
		"current_date":        "CURRENT_DATE",
		"current_time":        "CURRENT_TIME",
		"gen_uuid()":          "(uuid())",
		"uuid()":              "(uuid())",
		"true":                "1",
		"FALSE":               "0",
		"null":                "NULL",
	}
	for dsl, want := range cases {
		got, err := tr.Translate(dsl)
		if err != nil {
			t.Errorf("Translate(%q) failed: %v", dsl, err)
			continue
		}
		if got != want {
			t.Errorf("Translate(%q) = %q, want %q", dsl, got, want)
		}
	}
}

func TestTranslateLiterals(t *testing.T) {
	tr := testTranslator()
	cases := map[string]string{
		"42":      "42",
		"-3.5":    "-3.5",
		"'ready'": "'ready'",
		// Normalization lowercases quoted strings too; case-significant
		// defaults go through literal SQL instead.
		"'READY'": "'ready'",
		"'it''s'": "'it''s'",
	}
	for dsl, want := range cases {
		got, err := tr.Translate(dsl)
		if err != nil {
			t.Errorf("Translate(%q) failed: %v", dsl, err)
			continue
		}
		if got != want {
			t.Errorf("Translate(%q) = %q, want %q", dsl, got, want)
		}
	}
}

func TestTranslateFunctions(t *testing.T) {
	tr := testTranslator()
	got, err := tr.Translate("lower('ABC')")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if got != "lower('abc')" {
		t.Errorf("got %q", got)
	}

	// Nested calls translate inside out.
	got, err = tr.Translate("concat(upper('a'), now())")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if got != "(upper('a') || CURRENT_TIMESTAMP)" {
		t.Errorf("got %q", got)
	}
}

func TestTranslateUnknownPassesThrough(t *testing.T) {
	tr := testTranslator()
	// Unknown functions pass through, making translation idempotent on
	// native SQL.
	got, err := tr.Translate("strftime('%s','now')")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if got != "strftime('%s','now')" {
		t.Errorf("got %q", got)
	}

	again, err := tr.Translate(got)
	if err != nil {
		t.Fatalf("second Translate failed: %v", err)
	}
	if again != got {
		t.Errorf("translation not idempotent: %q -> %q", got, again)
	}
}

func TestTranslateEmpty(t *testing.T) {
	tr := testTranslator()
	if _, err := tr.Translate("   "); err == nil {
		t.Error("blank expression accepted")
	}
}

func TestSplitArgs(t *testing.T) {
	got := splitArgs("a, f(b, c), 'x, y'")
	if len(got) != 3 {
		t.Fatalf("splitArgs returned %d parts: %v", len(got), got)
	}
	if strings.TrimSpace(got[1]) != "f(b, c)" {
		t.Errorf("nested call split apart: %q", got[1])
	}
	if strings.TrimSpace(got[2]) != "'x, y'" {
		t.Errorf("quoted comma split apart: %q", got[2])
	}
}

func TestTriggerName(t *testing.T) {
	if got := TriggerName("tasks", "insert"); got != "_sync_trg_tasks_insert" {
		t.Errorf("TriggerName = %q", got)
	}
}
