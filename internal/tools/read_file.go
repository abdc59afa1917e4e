package tools

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Wolfe-Services/Tachikoma-sub024/internal/validate"
)

// binarySniffLen is how many leading bytes are scanned for null bytes when
// deciding whether a file is binary.
const binarySniffLen = 8 * 1024

// binarySentinel is returned as the content of binary files.
const binarySentinel = "[Binary file]"

// ReadFileInput is the typed input of read_file. StartLine and EndLine are
// 1-indexed and inclusive; zero means unset.
type ReadFileInput struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line,omitempty"`
	EndLine   int    `json:"end_line,omitempty"`
}

// ReadFile reads a file inside the workspace, honoring the size cap, binary
// detection and optional line ranges. Line-ranged output carries a
// right-aligned 6-wide line number and a tab per line.
func ReadFile(ctx context.Context, ec Context, in ReadFileInput) (*ReadFileResult, error) {
	start := time.Now()

	var v validate.Builder
	v.Require("path", in.Path).Range("start_line", "end_line", in.StartLine, in.EndLine)
	if err := v.Err(); err != nil {
		return nil, validationError("read_file", err)
	}

	resolved, err := ec.ValidateRead("read_file", in.Path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFoundError("read_file", resolved)
		}
		return nil, ioError("read_file", err)
	}
	if info.IsDir() {
		return nil, validationError("read_file", fmt.Errorf("%s is a directory", in.Path))
	}

	maxSize := ec.Limits.MaxReadSize
	ranged := in.StartLine > 0 || in.EndLine > 0
	if info.Size() > maxSize && !ranged {
		return nil, fileTooLargeError("read_file", resolved, info.Size(), maxSize)
	}

	f, err := os.Open(resolved)
	if err != nil {
		return nil, ioError("read_file", err)
	}
	defer f.Close()

	if binary, err := sniffBinary(f); err != nil {
		return nil, ioError("read_file", err)
	} else if binary {
		return &ReadFileResult{
			Content:      binarySentinel,
			ResolvedPath: resolved,
			Size:         info.Size(),
			Metadata:     metadata(start, ec, "read_file"),
		}, nil
	}

	if ranged {
		content, err := readLineRange(ctx, f, in.StartLine, in.EndLine)
		if err != nil {
			return nil, err
		}
		return &ReadFileResult{
			Content:      content,
			ResolvedPath: resolved,
			Size:         info.Size(),
			Metadata:     metadata(start, ec, "read_file"),
		}, nil
	}

	data, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		return nil, ioError("read_file", err)
	}
	truncated := false
	if int64(len(data)) > maxSize {
		data = data[:maxSize]
		truncated = true
	}

	return &ReadFileResult{
		Content:      strings.ToValidUTF8(string(data), "�"),
		ResolvedPath: resolved,
		Size:         info.Size(),
		Truncated:    truncated,
		Metadata:     metadata(start, ec, "read_file"),
	}, nil
}

// sniffBinary scans the first 8 KiB for a null byte and rewinds the file.
func sniffBinary(f *os.File) (bool, error) {
	buf := make([]byte, binarySniffLen)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return false, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return false, err
	}
	return bytes.IndexByte(buf[:n], 0) >= 0, nil
}

// readLineRange streams lines [start, end] (1-indexed, inclusive), numbering
// each emitted line. end == 0 means "to the end of the file".
func readLineRange(ctx context.Context, f *os.File, start, end int) (string, error) {
	if start <= 0 {
		start = 1
	}

	var out strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 256*1024), 4*1024*1024)

	lineNum := 0
	emitted := 0
	for scanner.Scan() {
		lineNum++
		if lineNum%1024 == 0 && ctx.Err() != nil {
			return "", cancelledError("read_file")
		}
		if lineNum < start {
			continue
		}
		if end > 0 && lineNum > end {
			break
		}
		line := strings.ToValidUTF8(scanner.Text(), "�")
		fmt.Fprintf(&out, "%6d\t%s\n", lineNum, line)
		emitted++
	}
	if err := scanner.Err(); err != nil {
		return "", ioError("read_file", err)
	}
	if emitted == 0 {
		// The scan reached the end of the file, so lineNum is its line
		// count, reported in the error message.
		total := lineNum
		return "", invalidLineRangeError("read_file", start, end, total)
	}
	return out.String(), nil
}

func metadata(start time.Time, ec Context, primitive string) ExecutionMetadata {
	return ExecutionMetadata{
		DurationMS:    time.Since(start).Milliseconds(),
		OperationID:   ec.OperationID,
		PrimitiveName: primitive,
	}
}
