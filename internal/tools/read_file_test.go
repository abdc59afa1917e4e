package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/Wolfe-Services/Tachikoma-sub024/internal/config"
)

func TestReadFile_Whole(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "hello.txt", "hello world\n")

	res, err := ReadFile(context.Background(), env.ctx(), ReadFileInput{Path: "hello.txt"})
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if res.Content != "hello world\n" {
		t.Errorf("content = %q", res.Content)
	}
	if res.Size != 12 || res.Truncated {
		t.Errorf("size=%d truncated=%v", res.Size, res.Truncated)
	}
	if res.Metadata.PrimitiveName != "read_file" || res.Metadata.OperationID == "" {
		t.Errorf("metadata = %+v", res.Metadata)
	}
}

func TestReadFile_LineRange(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "lines.txt", "line1\nline2\nline3\nline4\nline5")

	res, err := ReadFile(context.Background(), env.ctx(), ReadFileInput{
		Path: "lines.txt", StartLine: 2, EndLine: 4,
	})
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	for _, want := range []string{"line2", "line3", "line4"} {
		if !strings.Contains(res.Content, want) {
			t.Errorf("content missing %q: %q", want, res.Content)
		}
	}
	for _, gone := range []string{"line1", "line5"} {
		if strings.Contains(res.Content, gone) {
			t.Errorf("content contains %q: %q", gone, res.Content)
		}
	}
	if res.Size != 29 {
		t.Errorf("size = %d, want 29", res.Size)
	}
	if res.Truncated {
		t.Error("truncated = true")
	}
	// Each emitted line carries a right-aligned 6-wide number and a tab.
	if !strings.Contains(res.Content, "     2\tline2") {
		t.Errorf("line numbering missing: %q", res.Content)
	}
}

func TestReadFile_InvalidRange(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "short.txt", "one\ntwo\n")

	_, err := ReadFile(context.Background(), env.ctx(), ReadFileInput{
		Path: "short.txt", StartLine: 10, EndLine: 20,
	})
	if kindOf(t, err) != KindInvalidLineRange {
		t.Errorf("kind = %v, want invalid_line_range", kindOf(t, err))
	}

	_, err = ReadFile(context.Background(), env.ctx(), ReadFileInput{
		Path: "short.txt", StartLine: 3, EndLine: 1,
	})
	if kindOf(t, err) != KindValidation {
		t.Errorf("kind = %v, want validation for inverted range", kindOf(t, err))
	}
}

func TestReadFile_TooLarge(t *testing.T) {
	env := newTestEnvWith(t, config.SecurityConfig{}, config.LimitsConfig{MaxReadSize: 16})
	env.write(t, "big.txt", strings.Repeat("a", 64))

	_, err := ReadFile(context.Background(), env.ctx(), ReadFileInput{Path: "big.txt"})
	if kindOf(t, err) != KindFileTooLarge {
		t.Errorf("kind = %v, want file_too_large", kindOf(t, err))
	}

	// A line range bypasses the whole-file cap.
	res, err := ReadFile(context.Background(), env.ctx(), ReadFileInput{Path: "big.txt", StartLine: 1, EndLine: 1})
	if err != nil {
		t.Fatalf("ranged read of large file: %v", err)
	}
	if !strings.Contains(res.Content, "aaaa") {
		t.Errorf("content = %q", res.Content)
	}
}

func TestReadFile_Binary(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "blob.bin", "PK\x03\x04\x00\x00binarydata")

	res, err := ReadFile(context.Background(), env.ctx(), ReadFileInput{Path: "blob.bin"})
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if res.Content != binarySentinel {
		t.Errorf("content = %q, want sentinel", res.Content)
	}
	if res.Truncated {
		t.Error("binary file marked truncated")
	}
}

func TestReadFile_NotFoundSuggestion(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "config.json", "{}")

	_, err := ReadFile(context.Background(), env.ctx(), ReadFileInput{Path: "config.jsn"})
	te, ok := err.(*Error)
	if !ok || te.Kind != KindFileNotFound {
		t.Fatalf("err = %v, want file_not_found", err)
	}
	if !strings.Contains(te.Suggestion, "config.json") {
		t.Errorf("suggestion = %q, want similar-name hint", te.Suggestion)
	}
	if te.Code != "READ_FILE_NOT_FOUND" {
		t.Errorf("code = %s", te.Code)
	}
}

func TestReadFile_OutsideWorkspace(t *testing.T) {
	env := newTestEnv(t)
	_, err := ReadFile(context.Background(), env.ctx(), ReadFileInput{Path: "/etc/passwd"})
	if kindOf(t, err) != KindPathNotAllowed {
		t.Errorf("kind = %v, want path_not_allowed", kindOf(t, err))
	}
}

func TestReadFile_Truncation(t *testing.T) {
	env := newTestEnvWith(t, config.SecurityConfig{}, config.LimitsConfig{MaxReadSize: 1024})
	env.write(t, "exact.txt", strings.Repeat("b", 1024))

	res, err := ReadFile(context.Background(), env.ctx(), ReadFileInput{Path: "exact.txt"})
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if res.Truncated || len(res.Content) != 1024 {
		t.Errorf("exact-cap file: truncated=%v len=%d", res.Truncated, len(res.Content))
	}
}
