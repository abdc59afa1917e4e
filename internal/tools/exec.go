package tools

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Wolfe-Services/Tachikoma-sub024/internal/cancel"
	"github.com/Wolfe-Services/Tachikoma-sub024/internal/validate"
)

// BashInput is the typed input of bash.
type BashInput struct {
	Command    string `json:"command"`
	WorkingDir string `json:"working_dir,omitempty"`
	TimeoutMs  int    `json:"timeout_ms,omitempty"`
	StripANSI  bool   `json:"strip_ansi,omitempty"`
	Trim       bool   `json:"trim,omitempty"`
}

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]`)

// streamCapture accumulates one pipe's bytes up to a cap, then keeps
// draining so the child never blocks on pipe back-pressure.
type streamCapture struct {
	mu        sync.Mutex
	buf       []byte
	cap       int64
	truncated bool
}

func (c *streamCapture) drain(r io.Reader) error {
	chunk := make([]byte, 32*1024)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			c.mu.Lock()
			remaining := c.cap - int64(len(c.buf))
			switch {
			case remaining >= int64(n):
				c.buf = append(c.buf, chunk[:n]...)
			case remaining > 0:
				c.buf = append(c.buf, chunk[:remaining]...)
				c.truncated = true
			default:
				c.truncated = true
			}
			c.mu.Unlock()
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

func (c *streamCapture) snapshot() ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, len(c.buf))
	copy(out, c.buf)
	return out, c.truncated
}

// Bash runs a shell command under the subprocess supervisor: policy gates
// before spawn, capped concurrent stream capture, timeout and cancellation
// with SIGTERM→SIGKILL escalation against the whole process group, and a
// final reap so no descendant outlives the call.
//
// The process outcome is data: non-zero exit codes and timeouts return a
// BashResult, not an error. Cancellation returns the partial BashResult
// together with a cancelled error. Other errors are reserved for validation,
// policy and the supervisor's own failures.
func Bash(ctx context.Context, ec Context, in BashInput, tok cancel.Token) (*BashResult, error) {
	start := time.Now()

	var v validate.Builder
	v.Require("command", in.Command).Positive("timeout_ms", in.TimeoutMs)
	if err := v.Err(); err != nil {
		return nil, validationError("bash", err)
	}

	if err := ec.ValidateCommand(in.Command); err != nil {
		return nil, err
	}
	cwd, err := ec.resolveWorkingDir(in.WorkingDir)
	if err != nil {
		return nil, err
	}

	timeoutMs := in.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = ec.Limits.DefaultTimeoutMs
	}
	if timeoutMs <= 0 {
		timeoutMs = 30000
	}
	grace := time.Duration(ec.Limits.KillGraceMs) * time.Millisecond
	if grace <= 0 {
		grace = 5 * time.Second
	}

	cmd := exec.Command("bash", "-c", in.Command)
	cmd.Dir = cwd
	cmd.Env = ec.Policy.SanitizeEnv(os.Environ())
	cmd.Stdin = nil // stdin closed: the child reads EOF immediately
	setProcessGroup(cmd)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, ioError("bash", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, ioError("bash", err)
	}

	capSize := ec.Policy.MaxOutputSize
	stdout := &streamCapture{cap: capSize}
	stderr := &streamCapture{cap: capSize}

	if err := cmd.Start(); err != nil {
		return nil, ioError("bash", err)
	}

	var g errgroup.Group
	g.Go(func() error { return stdout.drain(stdoutPipe) })
	g.Go(func() error { return stderr.drain(stderrPipe) })

	// Wait must run after both drains finish (pipe ownership), so a single
	// goroutine sequences them and reports through done.
	done := make(chan error, 1)
	go func() {
		gErr := g.Wait()
		wErr := cmd.Wait()
		if wErr == nil {
			wErr = gErr
		}
		done <- wErr
	}()

	timer := time.NewTimer(time.Duration(timeoutMs) * time.Millisecond)
	defer timer.Stop()

	var timedOut, cancelled bool
	var waitErr error

	select {
	case waitErr = <-done:
	case <-timer.C:
		timedOut = true
		waitErr = terminateTree(cmd, done, grace)
	case <-tok.Done():
		cancelled = true
		waitErr = terminateTree(cmd, done, grace)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			timedOut = true
		} else {
			cancelled = true
		}
		waitErr = terminateTree(cmd, done, grace)
	}

	outBytes, outTrunc := stdout.snapshot()
	errBytes, errTrunc := stderr.snapshot()

	// Redaction applies to every string that leaves bash: the result the
	// caller sees, not just the audit entry.
	result := &BashResult{
		Stdout:          ec.Policy.Redactor().String(postprocess(outBytes, in)),
		Stderr:          ec.Policy.Redactor().String(postprocess(errBytes, in)),
		TimedOut:        timedOut,
		StdoutTruncated: outTrunc,
		StderrTruncated: errTrunc,
		Metadata:        metadata(start, ec, "bash"),
	}

	switch {
	case timedOut:
		result.ExitCode = -1
	case cancelled:
		result.ExitCode = -1
		return result, cancelledError("bash")
	default:
		result.ExitCode = exitCodeOf(cmd, waitErr)
	}

	if result.ExitCode != 0 {
		slog.Debug("bash.nonzero_exit", "exit", describeExit(result.ExitCode), "timed_out", result.TimedOut)
	}
	return result, nil
}

// terminateTree escalates against the whole process group: a short grace for
// in-flight output, SIGTERM, the kill grace period, then SIGKILL, and a
// final reap via done so no zombie remains.
func terminateTree(cmd *exec.Cmd, done <-chan error, grace time.Duration) error {
	// Give the drains a moment to capture immediately-available bytes.
	time.Sleep(100 * time.Millisecond)

	signalGroup(cmd, false)
	select {
	case err := <-done:
		return err
	case <-time.After(grace):
	}

	signalGroup(cmd, true)
	return <-done
}

// exitCodeOf extracts the child's exit code, mapping signal deaths to
// 128+signal.
func exitCodeOf(cmd *exec.Cmd, waitErr error) int {
	if waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
		if sig, ok := exitSignal(exitErr); ok {
			return 128 + sig
		}
	}
	if cmd.ProcessState != nil {
		if code := cmd.ProcessState.ExitCode(); code >= 0 {
			return code
		}
	}
	return -1
}

func postprocess(raw []byte, in BashInput) string {
	s := strings.ToValidUTF8(string(raw), "�")
	if in.StripANSI {
		s = ansiEscape.ReplaceAllString(s, "")
	}
	if in.Trim {
		s = strings.TrimSpace(s)
	}
	return s
}
