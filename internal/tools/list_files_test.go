package tools

import (
	"context"
	"testing"

	"github.com/Wolfe-Services/Tachikoma-sub024/internal/config"
)

func entryPaths(entries []ListEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

func hasPath(entries []ListEntry, path string) bool {
	for _, e := range entries {
		if e.Path == path {
			return true
		}
	}
	return false
}

func TestListFiles_SingleLevel(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.go", "package a\n")
	env.write(t, "b.txt", "text\n")
	env.write(t, ".hidden", "h\n")
	env.write(t, "sub/nested.go", "package sub\n")

	res, err := ListFiles(context.Background(), env.ctx(), ListFilesInput{Path: "."})
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}

	for _, want := range []string{"a.go", "b.txt", "sub"} {
		if !hasPath(res.Entries, want) {
			t.Errorf("missing %s in %v", want, entryPaths(res.Entries))
		}
	}
	if hasPath(res.Entries, ".hidden") {
		t.Error("hidden file listed by default")
	}
	if hasPath(res.Entries, "sub/nested.go") {
		t.Error("nested file listed without recursive")
	}
	if res.TotalCount != 3 {
		t.Errorf("total = %d, want 3", res.TotalCount)
	}
}

func TestListFiles_Filters(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "main.go", "x")
	env.write(t, "main_test.go", "x")
	env.write(t, "README.md", "x")
	env.write(t, "Makefile", "x")

	tests := []struct {
		name  string
		in    ListFilesInput
		wants []string
		count int
	}{
		{"extension", ListFilesInput{Path: ".", Extension: "go"}, []string{"main.go", "main_test.go"}, 2},
		{"extension with dot, case-insensitive", ListFilesInput{Path: ".", Extension: ".GO"}, []string{"main.go"}, 2},
		{"glob suffix", ListFilesInput{Path: ".", Glob: "*_test.go"}, []string{"main_test.go"}, 1},
		{"glob prefix", ListFilesInput{Path: ".", Glob: "main*"}, []string{"main.go", "main_test.go"}, 2},
		{"glob contains", ListFilesInput{Path: ".", Glob: "*ake*"}, []string{"Makefile"}, 1},
		{"glob exact", ListFilesInput{Path: ".", Glob: "README.md"}, []string{"README.md"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ListFiles(context.Background(), env.ctx(), tt.in)
			if err != nil {
				t.Fatalf("ListFiles: %v", err)
			}
			if res.TotalCount != tt.count {
				t.Errorf("total = %d, want %d (%v)", res.TotalCount, tt.count, entryPaths(res.Entries))
			}
			for _, want := range tt.wants {
				if !hasPath(res.Entries, want) {
					t.Errorf("missing %s in %v", want, entryPaths(res.Entries))
				}
			}
		})
	}
}

func TestListFiles_SortAndPagination(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "ccc.txt", "123456789")
	env.write(t, "aaa.txt", "12345")
	env.write(t, "bbb.txt", "1")
	env.write(t, "dir/x", "x")

	res, err := ListFiles(context.Background(), env.ctx(), ListFilesInput{Path: ".", SortBy: "size"})
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	paths := entryPaths(res.Entries)
	// dir sorts first (no size), then files ascending by size.
	if paths[len(paths)-1] != "ccc.txt" {
		t.Errorf("size sort order = %v", paths)
	}

	res, err = ListFiles(context.Background(), env.ctx(), ListFilesInput{
		Path: ".", SortBy: "name", Offset: 1, Limit: 2,
	})
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(res.Entries) != 2 || res.TotalCount != 4 || !res.Truncated {
		t.Errorf("page = %v total=%d truncated=%v", entryPaths(res.Entries), res.TotalCount, res.Truncated)
	}
	if res.Entries[0].Path != "bbb.txt" {
		t.Errorf("page start = %s, want bbb.txt", res.Entries[0].Path)
	}

	res, err = ListFiles(context.Background(), env.ctx(), ListFilesInput{
		Path: ".", SortBy: "type",
	})
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if res.Entries[0].Path != "dir" {
		t.Errorf("type sort should list directories first: %v", entryPaths(res.Entries))
	}
}

func TestListFiles_RecursiveDepth(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "top.txt", "x")
	env.write(t, "l1/mid.txt", "x")
	env.write(t, "l1/l2/deep.txt", "x")

	res, err := ListFiles(context.Background(), env.ctx(), ListFilesInput{
		Path: ".", Recursive: true, MaxDepth: 2,
	})
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	for _, want := range []string{"top.txt", "l1", "l1/mid.txt", "l1/l2"} {
		if !hasPath(res.Entries, want) {
			t.Errorf("missing %s in %v", want, entryPaths(res.Entries))
		}
	}
	if hasPath(res.Entries, "l1/l2/deep.txt") {
		t.Errorf("depth bound ignored: %v", entryPaths(res.Entries))
	}
}

func TestListFiles_Gitignore(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, ".gitignore", "ignored.txt\n*.log\n")
	env.write(t, "keep.txt", "x")
	env.write(t, "ignored.txt", "x")
	env.write(t, "test.log", "x")

	res, err := ListFiles(context.Background(), env.ctx(), ListFilesInput{Path: ".", Recursive: true})
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if !hasPath(res.Entries, "keep.txt") {
		t.Errorf("keep.txt missing: %v", entryPaths(res.Entries))
	}
	for _, gone := range []string{"ignored.txt", "test.log"} {
		if hasPath(res.Entries, gone) {
			t.Errorf("%s listed despite gitignore: %v", gone, entryPaths(res.Entries))
		}
	}
	if res.TotalCount != 1 {
		t.Errorf("total = %d, want 1", res.TotalCount)
	}
}

func TestListFiles_ResultCap(t *testing.T) {
	env := newTestEnvWith(t, config.SecurityConfig{}, config.LimitsConfig{MaxWalkResults: 3})
	env.write(t, "a.txt", "x")
	env.write(t, "b.txt", "x")
	env.write(t, "c.txt", "x")
	env.write(t, "d.txt", "x")

	res, err := ListFiles(context.Background(), env.ctx(), ListFilesInput{Path: ".", Recursive: true})
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if !res.Truncated {
		t.Error("cap hit without truncated flag")
	}
	if len(res.Entries) != 3 {
		t.Errorf("got %d entries, want 3", len(res.Entries))
	}
}

func TestListFiles_NotADirectory(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "file.txt", "x")

	_, err := ListFiles(context.Background(), env.ctx(), ListFilesInput{Path: "file.txt"})
	if kindOf(t, err) != KindValidation {
		t.Errorf("kind = %v, want validation", kindOf(t, err))
	}
}
