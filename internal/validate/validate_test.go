package validate

import (
	"strings"
	"testing"
)

func TestBuilder(t *testing.T) {
	var b Builder
	b.Require("path", "").
		Require("pattern", "x").
		Range("start_line", "end_line", 5, 2).
		Check(false, "mode", "mode must be valid", "enum")

	err := b.Err()
	if err == nil {
		t.Fatal("expected collected errors")
	}
	errs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("err type %T", err)
	}
	if len(errs) != 3 {
		t.Errorf("got %d errors, want 3: %v", len(errs), errs)
	}
	if !strings.Contains(err.Error(), "path is required") {
		t.Errorf("message missing required failure: %s", err.Error())
	}
}

func TestBuilder_AllPass(t *testing.T) {
	var b Builder
	b.Require("path", "a.txt").Range("start_line", "end_line", 1, 10).Positive("limit", 5)
	if err := b.Err(); err != nil {
		t.Errorf("unexpected errors: %v", err)
	}
}

func TestPattern(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		rule    string // empty = valid
	}{
		{"simple literal", "target", ""},
		{"anchored regex", `^func\s+\w+`, ""},
		{"empty", "", "required"},
		{"too long", strings.Repeat("a", 2000), "max_length"},
		{"bad syntax", "foo(", "syntax"},
		{"nested plus", "(a+)+", "nested_repetition"},
		{"nested star", "(ab*)*", "nested_repetition"},
		{"quantified group then bound", "(x+){10}", "nested_repetition"},
		{"plain group", "(abc)def", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := Pattern(tt.pattern)
			if tt.rule == "" {
				if verr != nil {
					t.Errorf("Pattern(%q) = %v, want nil", tt.pattern, verr)
				}
				return
			}
			if verr == nil {
				t.Fatalf("Pattern(%q) accepted, want rule %s", tt.pattern, tt.rule)
			}
			if verr.Rule != tt.rule {
				t.Errorf("Pattern(%q) rule = %s, want %s", tt.pattern, verr.Rule, tt.rule)
			}
		})
	}
}
