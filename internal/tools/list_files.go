package tools

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Wolfe-Services/Tachikoma-sub024/internal/validate"
)

// ListFilesInput is the typed input of list_files. Recursive walks are
// bounded by MaxDepth (1 = immediate children); zero uses the configured
// default.
type ListFilesInput struct {
	Path          string `json:"path"`
	Extension     string `json:"extension,omitempty"`
	Glob          string `json:"glob,omitempty"`
	Recursive     bool   `json:"recursive,omitempty"`
	MaxDepth      int    `json:"max_depth,omitempty"`
	ExcludeDirs   bool   `json:"exclude_dirs,omitempty"`
	IncludeHidden bool   `json:"include_hidden,omitempty"`
	SortBy        string `json:"sort_by,omitempty"` // name|size|extension|type
	Reverse       bool   `json:"reverse,omitempty"`
	Offset        int    `json:"offset,omitempty"`
	Limit         int    `json:"limit,omitempty"`
}

// ListFiles lists a directory, single-level by default or recursively with
// gitignore-aware filtering. Entries are reported relative to the base path.
func ListFiles(ctx context.Context, ec Context, in ListFilesInput) (*ListFilesResult, error) {
	start := time.Now()

	var v validate.Builder
	v.Require("path", in.Path).
		Positive("max_depth", in.MaxDepth).
		Positive("limit", in.Limit).
		Check(in.Offset >= 0, "offset", "offset must not be negative", "range").
		Check(validSortKey(in.SortBy), "sort_by", "sort_by must be one of name, size, extension, type", "enum")
	if err := v.Err(); err != nil {
		return nil, validationError("list_files", err)
	}

	base, err := ec.ValidateRead("list_files", in.Path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFoundError("list_files", base)
		}
		return nil, ioError("list_files", err)
	}
	if !info.IsDir() {
		return nil, validationError("list_files", &validate.ValidationError{
			Field: "path", Message: in.Path + " is not a directory", Rule: "directory",
		})
	}

	var entries []ListEntry
	walkTruncated := false
	if in.Recursive {
		entries, walkTruncated, err = walkEntries(ctx, ec, base, in)
	} else {
		entries, err = listLevel(base, base, in)
	}
	if err != nil {
		return nil, err
	}

	sortEntries(entries, in.SortBy, in.Reverse)

	total := len(entries)
	offset := in.Offset
	if offset > total {
		offset = total
	}
	end := total
	if in.Limit > 0 && offset+in.Limit < end {
		end = offset + in.Limit
	}
	page := entries[offset:end]

	return &ListFilesResult{
		Entries:    page,
		BasePath:   base,
		TotalCount: total,
		Truncated:  walkTruncated || end < total,
		Metadata:   metadata(start, ec, "list_files"),
	}, nil
}

// listLevel reads a single directory level and applies the filters.
func listLevel(base, dir string, in ListFilesInput) ([]ListEntry, error) {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil, ioError("list_files", err)
	}
	var out []ListEntry
	for _, d := range dirents {
		entry, ok := buildEntry(base, filepath.Join(dir, d.Name()), d, in)
		if ok {
			out = append(out, entry)
		}
	}
	return out, nil
}

func buildEntry(base, path string, d os.DirEntry, in ListFilesInput) (ListEntry, bool) {
	name := d.Name()
	if !in.IncludeHidden && strings.HasPrefix(name, ".") {
		return ListEntry{}, false
	}
	if d.IsDir() && in.ExcludeDirs {
		return ListEntry{}, false
	}
	if !d.IsDir() {
		if in.Extension != "" && !hasExtension(name, in.Extension) {
			return ListEntry{}, false
		}
		if in.Glob != "" && !simpleGlobMatch(in.Glob, name) {
			return ListEntry{}, false
		}
	} else if in.Glob != "" && !simpleGlobMatch(in.Glob, name) {
		return ListEntry{}, false
	}

	rel, err := filepath.Rel(base, path)
	if err != nil {
		rel = path
	}
	entry := ListEntry{Path: filepath.ToSlash(rel), IsDir: d.IsDir()}
	if !d.IsDir() {
		if info, err := d.Info(); err == nil {
			size := info.Size()
			entry.Size = &size
		}
		entry.Extension = strings.TrimPrefix(filepath.Ext(name), ".")
	}
	return entry, true
}

// hasExtension compares extensions case-insensitively, tolerating a leading
// dot on the filter.
func hasExtension(name, ext string) bool {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".") == ext
}

// simpleGlobMatch supports the four simple shapes: "*X" suffix, "X*" prefix,
// "*X*" contains, and exact match. Comparison is case-insensitive.
func simpleGlobMatch(pattern, name string) bool {
	p := strings.ToLower(pattern)
	n := strings.ToLower(name)
	switch {
	case strings.HasPrefix(p, "*") && strings.HasSuffix(p, "*") && len(p) > 1:
		return strings.Contains(n, strings.Trim(p, "*"))
	case strings.HasPrefix(p, "*"):
		return strings.HasSuffix(n, strings.TrimPrefix(p, "*"))
	case strings.HasSuffix(p, "*"):
		return strings.HasPrefix(n, strings.TrimSuffix(p, "*"))
	default:
		return n == p
	}
}

func validSortKey(key string) bool {
	switch key {
	case "", "name", "size", "extension", "type":
		return true
	}
	return false
}

// sortEntries orders the listing. "type" puts directories first, then names.
func sortEntries(entries []ListEntry, key string, reverse bool) {
	less := func(a, b ListEntry) bool { return a.Path < b.Path }
	switch key {
	case "size":
		less = func(a, b ListEntry) bool {
			as, bs := int64(0), int64(0)
			if a.Size != nil {
				as = *a.Size
			}
			if b.Size != nil {
				bs = *b.Size
			}
			if as != bs {
				return as < bs
			}
			return a.Path < b.Path
		}
	case "extension":
		less = func(a, b ListEntry) bool {
			if a.Extension != b.Extension {
				return a.Extension < b.Extension
			}
			return a.Path < b.Path
		}
	case "type":
		less = func(a, b ListEntry) bool {
			if a.IsDir != b.IsDir {
				return a.IsDir
			}
			return a.Path < b.Path
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if reverse {
			return less(entries[j], entries[i])
		}
		return less(entries[i], entries[j])
	})
}
