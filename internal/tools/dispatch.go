package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Wolfe-Services/Tachikoma-sub024/internal/cancel"
	"github.com/Wolfe-Services/Tachikoma-sub024/internal/ratelimit"
)

// DispatchOptions tune one invocation of Execute.
type DispatchOptions struct {
	// Blocking waits for rate-limit tokens instead of failing fast.
	Blocking bool
	// AcquireTimeout bounds the blocking wait; zero means wait on ctx alone.
	AcquireTimeout time.Duration
	// Token propagates external cancellation into the primitive.
	Token cancel.Token
}

// Execute runs one primitive from JSON input to JSON output through the full
// middleware chain. Exactly one audit entry is sealed per call to a
// registered primitive, with an outcome class matching the returned result
// class; an unknown name is rejected before any entry is opened.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage, opts DispatchOptions) (json.RawMessage, error) {
	e, ok := r.lookup(name)
	if !ok {
		return nil, &Error{
			Kind:       KindValidation,
			Code:       "UNKNOWN_PRIMITIVE",
			Message:    fmt.Sprintf("unknown primitive %q", name),
			Suggestion: "list available primitives with Definitions()",
		}
	}

	pol := r.pol.Load()
	ec := NewContext(pol, r.limits)

	// Rate limit before anything else touches the workspace.
	if err := r.acquire(ctx, name, opts); err != nil {
		rlErr := rateLimitedError(name, err)
		var te *ratelimit.TimeoutError
		if errors.As(err, &te) {
			rlErr.Kind = KindTimeout
			rlErr.Code = code(name, "rate_limit_timeout")
		}
		b := r.audit.Begin(ec.OperationID, name, ec.Workspace)
		b.SetInputs(rawToMap(input))
		b.Failure(rlErr.Code, rlErr.Message)
		return nil, rlErr
	}

	b := r.audit.Begin(ec.OperationID, name, ec.Workspace)
	b.SetInputs(rawToMap(input))

	tracer := otel.Tracer("agentops/tools")
	ctx, span := tracer.Start(ctx, "primitive."+name, trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		attribute.String("operation_id", ec.OperationID),
		attribute.String("primitive", name),
	)
	defer span.End()

	result, err := e.fn(ctx, ec, input, opts.Token)
	if err != nil {
		te := AsError(name, err)
		switch te.Kind {
		case KindTimeout:
			b.TimedOut()
		case KindCancelled:
			b.Cancelled()
		default:
			b.Failure(te.Code, te.Message)
		}
		if te.Kind == KindCommandBlocked {
			// Blocked commands are audited verbatim; redaction applies to
			// every other surface.
			b.AddMetadata("blocked_command", commandFromInput(input))
		}
		span.SetStatus(codes.Error, te.Code)
		return nil, te
	}

	out, mErr := json.Marshal(result)
	if mErr != nil {
		b.Failure(code(name, "io"), mErr.Error())
		span.SetStatus(codes.Error, "marshal")
		return nil, ioError(name, mErr)
	}

	if br, ok := result.(*BashResult); ok && br.TimedOut {
		b.TimedOut()
	} else {
		b.SetOutputSummary(summarize(name, result))
		b.Success()
	}
	span.SetStatus(codes.Ok, "")
	return out, nil
}

func (r *Registry) acquire(ctx context.Context, name string, opts DispatchOptions) error {
	switch {
	case !opts.Blocking:
		return r.limiter.TryAcquire(name)
	case opts.AcquireTimeout > 0:
		return r.limiter.AcquireTimeout(ctx, name, opts.AcquireTimeout)
	default:
		return r.limiter.Acquire(ctx, name)
	}
}

func rawToMap(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{"_raw": string(raw)}
	}
	return m
}

func commandFromInput(raw json.RawMessage) string {
	var in struct {
		Command string `json:"command"`
	}
	json.Unmarshal(raw, &in)
	return in.Command
}

// summarize produces the short output description stored in the audit entry.
func summarize(name string, result any) string {
	switch v := result.(type) {
	case *ReadFileResult:
		return fmt.Sprintf("read %d bytes (truncated=%v)", v.Size, v.Truncated)
	case *ListFilesResult:
		return fmt.Sprintf("%d entries (truncated=%v)", v.TotalCount, v.Truncated)
	case *BashResult:
		return fmt.Sprintf("%s, %d stdout bytes, %d stderr bytes",
			describeExit(v.ExitCode), len(v.Stdout), len(v.Stderr))
	case *EditFileResult:
		return fmt.Sprintf("%d replacements (dry_run=%v)", v.ReplacementCount, v.DryRun)
	case *CodeSearchResult:
		return fmt.Sprintf("%d matches (truncated=%v)", v.TotalCount, v.Truncated)
	default:
		return name
	}
}
