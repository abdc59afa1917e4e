package tools

import (
	"fmt"
	"strings"
)

// matchContextLines is the context window attached to each match location.
const matchContextLines = 3

// analyzeMatches finds every occurrence of needle in content and computes
// its 1-indexed line/column, 0-indexed byte offset and context window.
func analyzeMatches(content, needle string, contextLines int) []MatchLocation {
	if needle == "" {
		return nil
	}
	lines := strings.Split(content, "\n")

	var locations []MatchLocation
	offset := 0
	for {
		idx := strings.Index(content[offset:], needle)
		if idx < 0 {
			break
		}
		byteOffset := offset + idx

		line := 1 + strings.Count(content[:byteOffset], "\n")
		lastNL := strings.LastIndexByte(content[:byteOffset], '\n')
		column := byteOffset - lastNL // 1-indexed: lastNL is -1 when on line 1

		matchedLineCount := strings.Count(needle, "\n") + 1
		first := line - 1 // 0-indexed into lines
		last := first + matchedLineCount - 1

		loc := MatchLocation{
			Line:       line,
			Column:     column,
			ByteOffset: byteOffset,
		}
		for i := first - contextLines; i < first; i++ {
			if i >= 0 {
				loc.ContextBefore = append(loc.ContextBefore, lines[i])
			}
		}
		for i := first; i <= last && i < len(lines); i++ {
			loc.MatchedLines = append(loc.MatchedLines, lines[i])
		}
		for i := last + 1; i <= last+contextLines && i < len(lines); i++ {
			loc.ContextAfter = append(loc.ContextAfter, lines[i])
		}

		locations = append(locations, loc)
		offset = byteOffset + len(needle)
	}
	return locations
}

// disambiguationHint suggests how to make a non-unique old_string unique:
// prepending the preceding line or appending the following line when either
// expansion would isolate a single occurrence, otherwise a generic message.
func disambiguationHint(content, needle string, locations []MatchLocation) string {
	for _, loc := range locations {
		if len(loc.ContextBefore) > 0 {
			expanded := loc.ContextBefore[len(loc.ContextBefore)-1] + "\n" + needle
			if strings.Count(content, expanded) == 1 {
				return "include the line before the target text to make the match unique"
			}
		}
		if len(loc.ContextAfter) > 0 {
			expanded := needle + "\n" + loc.ContextAfter[0]
			if strings.Count(content, expanded) == 1 {
				return "include the line after the target text to make the match unique"
			}
		}
	}
	startLines := make([]string, 0, len(locations))
	for _, loc := range locations {
		startLines = append(startLines, fmt.Sprintf("%d", loc.Line))
	}
	return fmt.Sprintf("old_string matches %d times (lines %s); provide more surrounding context, use replace_all, or pass an explicit selector",
		len(locations), strings.Join(startLines, ", "))
}
