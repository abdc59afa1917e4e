package tools

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/Wolfe-Services/Tachikoma-sub024/internal/validate"
)

// grepBinary is the external search tool. Its --json event stream is the
// compatibility boundary parsed below.
const grepBinary = "rg"

// CodeSearchInput is the typed input of code_search.
type CodeSearchInput struct {
	Pattern         string   `json:"pattern"`
	Path            string   `json:"path"`
	FileType        string   `json:"file_type,omitempty"`
	Globs           []string `json:"globs,omitempty"`
	CaseInsensitive bool     `json:"case_insensitive,omitempty"`
	SmartCase       bool     `json:"smart_case,omitempty"`
	Hidden          bool     `json:"hidden,omitempty"`
	NoIgnore        bool     `json:"no_ignore,omitempty"`
	ContextLines    int      `json:"context_lines,omitempty"`
	ContextBefore   int      `json:"context_before,omitempty"`
	ContextAfter    int      `json:"context_after,omitempty"`
	MaxMatches      int      `json:"max_matches,omitempty"`
}

// CodeSearch shells out to ripgrep and reassembles its line-delimited JSON
// events into matches with context windows.
func CodeSearch(ctx context.Context, ec Context, in CodeSearchInput) (*CodeSearchResult, error) {
	start := time.Now()

	var v validate.Builder
	v.Require("pattern", in.Pattern).Require("path", in.Path)
	if err := v.Err(); err != nil {
		return nil, validationError("code_search", err)
	}
	if verr := validate.Pattern(in.Pattern); verr != nil {
		return nil, invalidPatternError("code_search", verr.Message, verr.Suggestion)
	}

	searchPath, err := ec.ValidateRead("code_search", in.Path)
	if err != nil {
		return nil, err
	}

	maxMatches := in.MaxMatches
	if maxMatches <= 0 {
		maxMatches = ec.Limits.MaxSearchMatches
	}
	if maxMatches <= 0 {
		maxMatches = 1000
	}

	args := buildGrepArgs(in, searchPath)
	cmd := exec.CommandContext(ctx, grepBinary, args...)
	cmd.Dir = ec.Workspace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(err, exec.ErrNotFound):
			return nil, &Error{
				Kind:       KindValidation,
				Code:       code("code_search", "tool_missing"),
				Message:    grepBinary + " not found in PATH",
				Suggestion: "install ripgrep (https://github.com/BurntSushi/ripgrep)",
			}
		case errors.As(err, &exitErr):
			// Exit code 1 means no matches; anything else is a real failure.
			if exitErr.ExitCode() != 1 {
				return nil, &Error{
					Kind:     KindCommandFailed,
					Code:     code("code_search", "failed"),
					Message:  fmt.Sprintf("%s %s: %s", grepBinary, describeExit(exitErr.ExitCode()), strings.TrimSpace(stderr.String())),
					ExitCode: exitErr.ExitCode(),
					err:      err,
				}
			}
		case ctx.Err() != nil:
			return nil, cancelledError("code_search")
		default:
			return nil, ioError("code_search", err)
		}
	}

	matches, total, truncated := parseEventStream(&stdout, maxMatches)
	return &CodeSearchResult{
		Matches:    matches,
		Pattern:    in.Pattern,
		TotalCount: total,
		Truncated:  truncated,
		Metadata:   metadata(start, ec, "code_search"),
	}, nil
}

func buildGrepArgs(in CodeSearchInput, searchPath string) []string {
	args := []string{"--json"}
	if in.FileType != "" {
		args = append(args, "--type", in.FileType)
	}
	for _, g := range in.Globs {
		args = append(args, "--glob", g)
	}
	if in.CaseInsensitive {
		args = append(args, "--ignore-case")
	} else if in.SmartCase {
		args = append(args, "--smart-case")
	}
	if in.Hidden {
		args = append(args, "--hidden")
	}
	if in.NoIgnore {
		args = append(args, "--no-ignore")
	}
	before, after := in.ContextBefore, in.ContextAfter
	if in.ContextLines > 0 {
		before, after = in.ContextLines, in.ContextLines
	}
	if before > 0 {
		args = append(args, "-B", strconv.Itoa(before))
	}
	if after > 0 {
		args = append(args, "-A", strconv.Itoa(after))
	}
	args = append(args, "--", in.Pattern, searchPath)
	return args
}

// Wire types for the grep tool's JSON event stream. Unknown event types are
// skipped, not fatal.
type grepEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type grepLineData struct {
	Path struct {
		Text string `json:"text"`
	} `json:"path"`
	Lines struct {
		Text string `json:"text"`
	} `json:"lines"`
	LineNumber     int `json:"line_number"`
	AbsoluteOffset int `json:"absolute_offset"`
	Submatches     []struct {
		Match struct {
			Text string `json:"text"`
		} `json:"match"`
		Start int `json:"start"`
		End   int `json:"end"`
	} `json:"submatches"`
}

// parseEventStream reassembles match and context events. Context lines
// preceding a match buffer into its context_before; context lines following
// a match (same file, greater line number) attach as context_after, and
// also serve as before-context for the next match in the file.
func parseEventStream(r *bytes.Buffer, maxMatches int) (matches []SearchMatch, total int, truncated bool) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 256*1024), 4*1024*1024)

	var (
		currentFile string
		pending     []string // context lines not yet assigned to a match
		last        *SearchMatch
		lastLine    int
	)

	resetFile := func(path string) {
		currentFile = path
		pending = pending[:0]
		last = nil
		lastLine = 0
	}

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var ev grepEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			slog.Debug("code_search.malformed_event", "error", err)
			continue
		}
		switch ev.Type {
		case "begin":
			var d grepLineData
			if err := json.Unmarshal(ev.Data, &d); err != nil {
				slog.Debug("code_search.malformed_event", "event", ev.Type, "error", err)
				continue
			}
			resetFile(d.Path.Text)
		case "match":
			var d grepLineData
			if err := json.Unmarshal(ev.Data, &d); err != nil {
				slog.Debug("code_search.malformed_event", "event", ev.Type, "error", err)
				continue
			}
			total++
			if len(matches) >= maxMatches {
				truncated = true
				last = nil
				continue
			}
			column := 1
			if len(d.Submatches) > 0 {
				column = d.Submatches[0].Start + 1
			}
			m := SearchMatch{
				Path:          d.Path.Text,
				LineNumber:    d.LineNumber,
				Column:        column,
				LineContent:   strings.TrimRight(d.Lines.Text, "\n"),
				ContextBefore: append([]string(nil), pending...),
			}
			pending = pending[:0]
			matches = append(matches, m)
			last = &matches[len(matches)-1]
			lastLine = d.LineNumber
		case "context":
			var d grepLineData
			if err := json.Unmarshal(ev.Data, &d); err != nil {
				slog.Debug("code_search.malformed_event", "event", ev.Type, "error", err)
				continue
			}
			text := strings.TrimRight(d.Lines.Text, "\n")
			if last != nil && d.Path.Text == currentFile && d.LineNumber > lastLine {
				last.ContextAfter = append(last.ContextAfter, text)
			}
			pending = append(pending, text)
		case "end":
			resetFile("")
		case "summary":
			// Totals are tracked from match events; the summary is advisory.
		default:
			// Unknown event types must not abort parsing.
		}
	}
	return matches, total, truncated
}
