package tools

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// walkEntries walks base recursively up to the depth bound, pruning entries
// denied by .gitignore or the configured deny patterns. Returns truncated
// when the result cap was hit.
func walkEntries(ctx context.Context, ec Context, base string, in ListFilesInput) ([]ListEntry, bool, error) {
	maxDepth := in.MaxDepth
	if maxDepth <= 0 {
		maxDepth = ec.Limits.MaxWalkDepth
	}
	if maxDepth <= 0 {
		maxDepth = 20
	}
	maxResults := ec.Limits.MaxWalkResults
	if maxResults <= 0 {
		maxResults = 10000
	}

	deny := loadGitignore(base)
	for _, p := range ec.Policy.PathDeny {
		if !filepath.IsAbs(p) {
			deny[p] = struct{}{}
		}
	}

	var out []ListEntry
	truncated := false

	var walk func(dir string, depth int) error
	walk = func(dir string, depth int) error {
		if err := ctx.Err(); err != nil {
			return cancelledError("list_files")
		}
		if depth > maxDepth || truncated {
			return nil
		}
		dirents, err := os.ReadDir(dir)
		if err != nil {
			// Unreadable subdirectories are skipped, not fatal.
			if dir != base {
				slog.Debug("list_files.skip_dir", "dir", dir, "error", err)
				return nil
			}
			return ioError("list_files", err)
		}
		for _, d := range dirents {
			if truncated {
				return nil
			}
			name := d.Name()
			if deniedName(deny, name) {
				continue
			}
			if !in.IncludeHidden && strings.HasPrefix(name, ".") {
				continue
			}
			path := filepath.Join(dir, name)

			isDir := d.IsDir()
			if !isDir && d.Type()&os.ModeSymlink != 0 && ec.Limits.FollowSymlinks {
				if info, err := os.Stat(path); err == nil && info.IsDir() {
					isDir = true
				}
			}

			if entry, ok := buildEntry(base, path, d, in); ok {
				out = append(out, entry)
				if len(out) >= maxResults {
					truncated = true
					return nil
				}
			}
			if isDir {
				if d.Type()&os.ModeSymlink != 0 && !ec.Limits.FollowSymlinks {
					continue
				}
				if err := walk(path, depth+1); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := walk(base, 1); err != nil {
		return nil, false, err
	}
	return out, truncated, nil
}

// loadGitignore parses a .gitignore at root into a deny set. Only simple
// name patterns are honored; comments, blanks and negations are skipped.
func loadGitignore(root string) map[string]struct{} {
	deny := make(map[string]struct{})
	f, err := os.Open(filepath.Join(root, ".gitignore"))
	if err != nil {
		return deny
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		line = strings.TrimSuffix(line, "/")
		deny[line] = struct{}{}
	}
	return deny
}

// deniedName matches a path component against the deny set, treating
// entries containing glob metacharacters as filepath.Match patterns.
func deniedName(deny map[string]struct{}, name string) bool {
	if _, ok := deny[name]; ok {
		return true
	}
	for pattern := range deny {
		if strings.ContainsAny(pattern, "*?[") {
			if ok, _ := filepath.Match(pattern, name); ok {
				return true
			}
		}
	}
	return false
}
