package audit

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/harun/toolbelt/internal/tracing"
)

// Event is one audited tool run.
type Event struct {
	Timestamp time.Time     `json:"timestamp"`
	Tool      string        `json:"tool"`
	Kind      string        `json:"kind"`
	Outcome   string        `json:"outcome"`         // e.g. "success", "invalid_input"
	Code      string        `json:"code,omitempty"`  // error code on failure
	Error     string        `json:"error,omitempty"` // error message on failure
	Duration  time.Duration `json:"duration"`
	Caller    string        `json:"caller,omitempty"`
	CallID    string        `json:"call_id,omitempty"`
	TraceID   string        `json:"trace_id,omitempty"`
}

// Logger appends audit events as JSON lines.
type Logger struct {
	logger zerolog.Logger
	mu     sync.Mutex
	file   *os.File
}

// New opens path for appending, creating parent directories as needed.
func New(path string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	l := NewWriter(file)
	l.file = file
	return l, nil
}

// NewWriter writes audit events to w.
func NewWriter(w io.Writer) *Logger {
	return &Logger{logger: zerolog.New(w)}
}

// Record writes event. Call and trace IDs missing from event are taken from
// ctx, and the event is also attached to the active span.
func (a *Logger) Record(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.CallID == "" {
		event.CallID = tracing.GetCallID(ctx)
	}
	if event.Caller == "" {
		event.Caller = tracing.GetCallerID(ctx)
	}
	if event.TraceID == "" {
		event.TraceID = tracing.GetTraceID(ctx)
	}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.AddEvent("audit", trace.WithAttributes(
			attribute.String("audit.tool", event.Tool),
			attribute.String("audit.outcome", event.Outcome),
		))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry := a.logger.Log().
		Time("timestamp", event.Timestamp).
		Str("tool", event.Tool).
		Str("kind", event.Kind).
		Str("outcome", event.Outcome).
		Dur("duration", event.Duration)

	if event.Code != "" {
		entry.Str("code", event.Code).Str("error", event.Error)
	}
	if event.Caller != "" {
		entry.Str("caller", event.Caller)
	}
	if event.CallID != "" {
		entry.Str("call_id", event.CallID)
	}
	if event.TraceID != "" {
		entry.Str("trace_id", event.TraceID)
	}

	entry.Msg("")
}

// Close closes the audit file, if any.
func (a *Logger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file != nil {
		return a.file.Close()
	}
	return nil
}
