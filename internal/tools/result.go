package tools

// ExecutionMetadata accompanies every primitive result.
type ExecutionMetadata struct {
	DurationMS    int64  `json:"duration_ms"`
	OperationID   string `json:"operation_id"`
	PrimitiveName string `json:"primitive_name"`
}

// ReadFileResult is the outcome of read_file.
type ReadFileResult struct {
	Content      string            `json:"content"`
	ResolvedPath string            `json:"resolved_path"`
	Size         int64             `json:"size"`
	Truncated    bool              `json:"truncated"`
	Metadata     ExecutionMetadata `json:"metadata"`
}

// ListEntry is one row of a listing. Size is present only for files.
type ListEntry struct {
	Path      string `json:"path"`
	IsDir     bool   `json:"is_dir"`
	Size      *int64 `json:"size,omitempty"`
	Extension string `json:"extension,omitempty"`
}

// ListFilesResult is the outcome of list_files.
type ListFilesResult struct {
	Entries    []ListEntry       `json:"entries"`
	BasePath   string            `json:"base_path"`
	TotalCount int               `json:"total_count"`
	Truncated  bool              `json:"truncated"`
	Metadata   ExecutionMetadata `json:"metadata"`
}

// BashResult is the outcome of bash. Non-zero exit codes are data, not
// errors; TimedOut implies ExitCode == -1 with any partial output retained.
type BashResult struct {
	ExitCode        int               `json:"exit_code"`
	Stdout          string            `json:"stdout"`
	Stderr          string            `json:"stderr"`
	TimedOut        bool              `json:"timed_out"`
	StdoutTruncated bool              `json:"stdout_truncated"`
	StderrTruncated bool              `json:"stderr_truncated"`
	Metadata        ExecutionMetadata `json:"metadata"`
}

// EditFileResult is the outcome of edit_file.
type EditFileResult struct {
	Success          bool              `json:"success"`
	ReplacementCount int               `json:"replacement_count"`
	ResolvedPath     string            `json:"resolved_path"`
	Diff             string            `json:"diff,omitempty"`
	DryRun           bool              `json:"dry_run,omitempty"`
	Metadata         ExecutionMetadata `json:"metadata"`
}

// SearchMatch is one code_search hit with its context window.
// Line and column numbers are 1-indexed.
type SearchMatch struct {
	Path          string   `json:"path"`
	LineNumber    int      `json:"line_number"`
	Column        int      `json:"column"`
	LineContent   string   `json:"line_content"`
	ContextBefore []string `json:"context_before"`
	ContextAfter  []string `json:"context_after"`
}

// CodeSearchResult is the outcome of code_search.
type CodeSearchResult struct {
	Matches    []SearchMatch     `json:"matches"`
	Pattern    string            `json:"pattern"`
	TotalCount int               `json:"total_count"`
	Truncated  bool              `json:"truncated"`
	Metadata   ExecutionMetadata `json:"metadata"`
}

// MatchLocation identifies one occurrence of a string in a file.
// Line and Column are 1-indexed; ByteOffset is 0-indexed.
type MatchLocation struct {
	Line          int      `json:"line"`
	Column        int      `json:"column"`
	ByteOffset    int      `json:"byte_offset"`
	ContextBefore []string `json:"context_before"`
	MatchedLines  []string `json:"matched_lines"`
	ContextAfter  []string `json:"context_after"`
}
