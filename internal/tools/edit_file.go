package tools

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Wolfe-Services/Tachikoma-sub024/internal/validate"
)

// MatchSelector disambiguates a non-unique old_string without replace_all.
type MatchSelector struct {
	Mode  string `json:"mode"`            // "first", "last", "index" or "line"
	Index int    `json:"index,omitempty"` // 1-indexed, for mode "index"
	Line  int    `json:"line,omitempty"`  // 1-indexed starting line, for mode "line"
}

// EditFileInput is the typed input of edit_file.
type EditFileInput struct {
	Path       string         `json:"path"`
	OldString  string         `json:"old_string"`
	NewString  string         `json:"new_string"`
	ReplaceAll bool           `json:"replace_all,omitempty"`
	DryRun     bool           `json:"dry_run,omitempty"`
	Backup     bool           `json:"backup,omitempty"`
	Select     *MatchSelector `json:"select,omitempty"`
}

// EditFile replaces occurrences of old_string in a file. A unique match (or
// replace_all, or an explicit selector) is required; the write is atomic via
// temp-file-and-rename, so a failed write leaves the original untouched.
func EditFile(ctx context.Context, ec Context, in EditFileInput) (*EditFileResult, error) {
	start := time.Now()

	var v validate.Builder
	v.Require("path", in.Path).
		Require("old_string", in.OldString).
		Check(in.OldString != in.NewString, "new_string", "new_string must differ from old_string", "distinct")
	if in.Select != nil {
		v.Check(validSelectorMode(in.Select.Mode), "select.mode",
			"select.mode must be one of first, last, index, line", "enum")
	}
	if err := v.Err(); err != nil {
		return nil, validationError("edit_file", err)
	}

	resolved, err := ec.ValidateWrite("edit_file", in.Path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFoundError("edit_file", resolved)
		}
		return nil, ioError("edit_file", err)
	}
	if info.Size() > ec.Limits.MaxReadSize {
		return nil, fileTooLargeError("edit_file", resolved, info.Size(), ec.Limits.MaxReadSize)
	}

	raw, err := os.ReadFile(resolved)
	if err != nil {
		return nil, ioError("edit_file", err)
	}
	content := string(raw)

	locations := analyzeMatches(content, in.OldString, matchContextLines)
	count := len(locations)
	if count == 0 {
		return nil, targetNotFoundError(resolved)
	}

	var updated string
	replacements := 0
	switch {
	case in.ReplaceAll:
		updated = strings.ReplaceAll(content, in.OldString, in.NewString)
		replacements = count
	case count == 1:
		updated = spliceAt(content, locations[0].ByteOffset, len(in.OldString), in.NewString)
		replacements = 1
	case in.Select != nil:
		loc, err := selectMatch(locations, in.Select)
		if err != nil {
			return nil, err
		}
		updated = spliceAt(content, loc.ByteOffset, len(in.OldString), in.NewString)
		replacements = 1
	default:
		return nil, notUniqueError(resolved, count, disambiguationHint(content, in.OldString, locations))
	}

	diff := unifiedDiff(filepath.Base(resolved), content, updated)

	if in.DryRun {
		return &EditFileResult{
			Success:          true,
			ReplacementCount: replacements,
			ResolvedPath:     resolved,
			Diff:             diff,
			DryRun:           true,
			Metadata:         metadata(start, ec, "edit_file"),
		}, nil
	}

	if in.Backup {
		if err := copyFile(resolved, resolved+".bak", info.Mode()); err != nil {
			return nil, ioError("edit_file", err)
		}
	}

	if err := atomicWrite(resolved, []byte(updated), info.Mode()); err != nil {
		return nil, ioError("edit_file", err)
	}

	return &EditFileResult{
		Success:          true,
		ReplacementCount: replacements,
		ResolvedPath:     resolved,
		Diff:             diff,
		Metadata:         metadata(start, ec, "edit_file"),
	}, nil
}

func validSelectorMode(mode string) bool {
	switch mode {
	case "first", "last", "index", "line":
		return true
	}
	return false
}

func selectMatch(locations []MatchLocation, sel *MatchSelector) (MatchLocation, error) {
	switch sel.Mode {
	case "first":
		return locations[0], nil
	case "last":
		return locations[len(locations)-1], nil
	case "index":
		if sel.Index < 1 || sel.Index > len(locations) {
			return MatchLocation{}, validationError("edit_file", &validate.ValidationError{
				Field:   "select.index",
				Message: fmt.Sprintf("index %d out of range (1-%d)", sel.Index, len(locations)),
				Rule:    "range",
			})
		}
		return locations[sel.Index-1], nil
	case "line":
		for _, loc := range locations {
			if loc.Line == sel.Line {
				return loc, nil
			}
		}
		return MatchLocation{}, validationError("edit_file", &validate.ValidationError{
			Field:   "select.line",
			Message: fmt.Sprintf("no match starts at line %d", sel.Line),
			Rule:    "range",
		})
	}
	return MatchLocation{}, validationError("edit_file", &validate.ValidationError{
		Field: "select.mode", Message: "unknown selector mode", Rule: "enum",
	})
}

func spliceAt(content string, offset, oldLen int, replacement string) string {
	return content[:offset] + replacement + content[offset+oldLen:]
}

// atomicWrite writes via a temp file in the target directory, fsyncs, chmods
// to the original mode and renames over the target.
func atomicWrite(target string, content []byte, mode os.FileMode) error {
	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, ".edit-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	tmpPath = "" // prevent deferred cleanup
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
