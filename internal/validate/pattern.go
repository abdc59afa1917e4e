package validate

import (
	"regexp"
	"regexp/syntax"
)

// maxPatternLength bounds user-supplied search patterns.
const maxPatternLength = 1024

// nestedRepetition catches quantified groups that are themselves quantified,
// the classic catastrophic-backtracking shape ((a+)+, (a*)* and friends).
// RE2 does not backtrack, but the same patterns still explode when handed to
// external tools, so they are rejected up front.
var nestedRepetition = regexp.MustCompile(`\((?:[^()\\]|\\.)*[*+]\)\s*[*+{]`)

// Pattern validates a user-supplied regular expression: length cap, RE2
// syntax, and a small set of pathological repetition shapes.
func Pattern(pattern string) *ValidationError {
	if pattern == "" {
		return &ValidationError{Field: "pattern", Message: "pattern is required", Rule: "required"}
	}
	if len(pattern) > maxPatternLength {
		return &ValidationError{
			Field:   "pattern",
			Message: "pattern exceeds maximum length",
			Rule:    "max_length",
		}
	}
	if _, err := syntax.Parse(pattern, syntax.Perl); err != nil {
		return &ValidationError{
			Field:      "pattern",
			Message:    "invalid regular expression: " + err.Error(),
			Rule:       "syntax",
			Suggestion: "patterns use RE2 syntax; escape literal metacharacters",
		}
	}
	if nestedRepetition.MatchString(pattern) {
		return &ValidationError{
			Field:      "pattern",
			Message:    "pattern contains nested repetition that may backtrack pathologically",
			Rule:       "nested_repetition",
			Suggestion: "rewrite the pattern without a quantifier on a quantified group",
		}
	}
	return nil
}
