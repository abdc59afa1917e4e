package audit

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Wolfe-Services/Tachikoma-sub024/internal/policy"
)

// Pipeline binds a sink to a redactor. One pipeline is shared by every
// invocation; builders are per-invocation.
type Pipeline struct {
	sink     Sink
	redactor *policy.Redactor
}

// NewPipeline wires a sink and redactor together. A nil sink disables
// auditing (entries are dropped).
func NewPipeline(sink Sink, redactor *policy.Redactor) *Pipeline {
	if sink == nil {
		sink = NopSink{}
	}
	return &Pipeline{sink: sink, redactor: redactor}
}

// Close closes the underlying sink.
func (p *Pipeline) Close() error { return p.sink.Close() }

// Begin opens an entry builder at invocation start.
func (p *Pipeline) Begin(operationID, kind, workingDir string) *Builder {
	return &Builder{
		pipeline: p,
		start:    time.Now(),
		entry: Entry{
			OperationID:   operationID,
			OperationKind: kind,
			Timestamp:     time.Now().UTC(),
			WorkingDir:    workingDir,
		},
	}
}

// Builder accumulates one entry and seals it exactly once.
type Builder struct {
	mu       sync.Mutex
	pipeline *Pipeline
	start    time.Time
	entry    Entry
	sealed   bool
}

// SetInputs records the invocation inputs, redacted before storage.
func (b *Builder) SetInputs(inputs map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed || inputs == nil {
		return
	}
	redacted, _ := b.pipeline.redactor.Value(inputs).(map[string]any)
	b.entry.Inputs = redacted
}

// SetOutputSummary records a short description of the result, redacted.
func (b *Builder) SetOutputSummary(summary string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed {
		return
	}
	b.entry.OutputSummary = b.pipeline.redactor.String(summary)
}

// AddMetadata attaches a key/value pair. Values are stored verbatim; callers
// redact where appropriate.
func (b *Builder) AddMetadata(key, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed {
		return
	}
	if b.entry.Metadata == nil {
		b.entry.Metadata = make(map[string]string)
	}
	b.entry.Metadata[key] = value
}

// Success seals the entry with outcome success.
func (b *Builder) Success() { b.seal(OutcomeSuccess, "", "") }

// Failure seals the entry with the error code and message.
func (b *Builder) Failure(code, message string) { b.seal(OutcomeFailure, code, message) }

// TimedOut seals the entry with outcome timeout.
func (b *Builder) TimedOut() { b.seal(OutcomeTimeout, "", "") }

// Cancelled seals the entry with outcome cancelled.
func (b *Builder) Cancelled() { b.seal(OutcomeCancelled, "", "") }

// seal writes the entry once. Sink failures are logged, never surfaced to
// the invocation.
func (b *Builder) seal(outcome Outcome, code, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed {
		return
	}
	b.sealed = true
	b.entry.DurationMS = time.Since(b.start).Milliseconds()
	b.entry.Outcome = outcome
	b.entry.ErrorCode = code
	if message != "" {
		b.entry.ErrorMessage = b.pipeline.redactor.String(message)
	}
	if err := b.pipeline.sink.Write(b.entry); err != nil {
		slog.Warn("audit.sink_write_failed", "operation_id", b.entry.OperationID, "error", err)
	}
}
