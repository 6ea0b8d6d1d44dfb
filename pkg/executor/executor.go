package executor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/harun/toolbelt/internal/audit"
	"github.com/harun/toolbelt/internal/tracing"
	"github.com/harun/toolbelt/pkg/registry"
	"github.com/harun/toolbelt/pkg/remote"
	"github.com/harun/toolbelt/pkg/schema"
	"github.com/harun/toolbelt/pkg/tool"
)

// DefaultTimeout bounds HTTP tools that declare no timeout of their own.
const DefaultTimeout = 30 * time.Second

// Run outcomes reported to the Recorder.
const (
	OutcomeSuccess       = "success"
	OutcomeNotFound      = "not_found"
	OutcomeInvalidInput  = "invalid_input"
	OutcomeFailed        = "execution_failed"
	OutcomeInvalidOutput = "invalid_output"
)

// Lookup is the read side of a registry. Both *registry.Registry and
// *registry.Holder satisfy it.
type Lookup interface {
	GetTool(fullName string) (tool.Tool, error)
	GetToolkit(namespace string, runner registry.Runner) (*registry.Toolkit, error)
}

// Recorder receives per-run statistics.
type Recorder interface {
	RecordRun(tool, kind, outcome string, duration time.Duration)
	RecordError(tool, code string)
}

// Auditor receives one event per finished run.
type Auditor interface {
	Record(ctx context.Context, event audit.Event)
}

// Executor dispatches tool calls to their implementation.
type Executor struct {
	tools          Lookup
	resolver       remote.Resolver
	client         *http.Client
	defaultTimeout time.Duration
	logger         zerolog.Logger
	recorder       Recorder
	auditor        Auditor
}

// Option configures an Executor.
type Option func(*Executor)

// WithResolver sets the resolver for RemoteProcedure tools.
func WithResolver(r remote.Resolver) Option {
	return func(e *Executor) {
		e.resolver = r
	}
}

// WithHTTPClient sets the client used by HTTPEndpoint tools.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Executor) {
		e.client = c
	}
}

// WithDefaultTimeout sets the timeout of HTTP tools that declare none.
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.defaultTimeout = d
		}
	}
}

// WithLogger sets the executor logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithRecorder reports run statistics to r.
func WithRecorder(r Recorder) Option {
	return func(e *Executor) {
		e.recorder = r
	}
}

// WithAuditor writes an audit event for every run to a.
func WithAuditor(a Auditor) Option {
	return func(e *Executor) {
		e.auditor = a
	}
}

// New creates an executor over tools.
func New(tools Lookup, opts ...Option) *Executor {
	e := &Executor{
		tools:          tools,
		client:         http.DefaultClient,
		defaultTimeout: DefaultTimeout,
		logger:         log.Logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With().Str("component", "executor").Logger()
	return e
}

// Toolkit returns namespace with every member bound to e.
func (e *Executor) Toolkit(namespace string) (*registry.Toolkit, error) {
	return e.tools.GetToolkit(namespace, e)
}

// Run executes the tool registered under fullName with raw input. The
// returned output has passed the tool's output schema.
func (e *Executor) Run(ctx context.Context, fullName string, raw interface{}) (interface{}, error) {
	startTime := time.Now()
	callID := gonanoid.Must()

	ctx = tracing.PropagateToCall(ctx, callID)
	ctx, span := tracing.StartSpan(ctx, tracing.TracerName, "tool.run",
		attribute.String("tool.name", fullName),
		attribute.String("tool.call_id", callID),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, e.logger).With().Str("tool", fullName).Logger()

	t, err := e.tools.GetTool(fullName)
	if err != nil {
		logger.Warn().Err(err).Msg("Tool not found")
		e.finish(ctx, span, fullName, tool.KindUnknown, OutcomeNotFound, startTime, err)
		return nil, err
	}

	kind := t.Kind()
	span.SetAttributes(attribute.String("tool.kind", string(kind)))
	inSchema, outSchema := t.Schemas()

	input, err := schema.Validate(inSchema, raw)
	if err != nil {
		err = &tool.InputValidationError{ToolName: fullName, Cause: err}
		logger.Debug().Err(err).Msg("Input validation failed")
		e.finish(ctx, span, fullName, kind, OutcomeInvalidInput, startTime, err)
		return nil, err
	}

	logger.Debug().Str("kind", string(kind)).Msg("Executing tool")

	result, err := e.execute(ctx, t, input)
	if err != nil {
		execErr := &tool.ExecutionError{ToolName: fullName, Input: input, Cause: err}
		var se *statusError
		if errors.As(err, &se) {
			execErr.StatusCode = se.status
		}

		logger.Error().
			Err(execErr).
			Dur("duration", time.Since(startTime)).
			Msg("Tool execution failed")
		e.finish(ctx, span, fullName, kind, OutcomeFailed, startTime, execErr)
		return nil, execErr
	}

	output, err := schema.Validate(outSchema, result)
	if err != nil {
		err = &tool.OutputValidationError{ToolName: fullName, Cause: err}
		logger.Error().Err(err).Msg("Output validation failed")
		e.finish(ctx, span, fullName, kind, OutcomeInvalidOutput, startTime, err)
		return nil, err
	}

	logger.Debug().
		Dur("duration", time.Since(startTime)).
		Msg("Tool execution completed")
	e.finish(ctx, span, fullName, kind, OutcomeSuccess, startTime, nil)

	return output, nil
}

func (e *Executor) finish(ctx context.Context, s trace.Span, fullName string, kind tool.Kind, outcome string, startTime time.Time, err error) {
	duration := time.Since(startTime)
	if err != nil {
		s.RecordError(err)
		s.SetStatus(codes.Error, string(tool.CodeOf(err)))
	} else {
		s.SetStatus(codes.Ok, "")
	}

	if e.auditor != nil {
		event := audit.Event{
			Tool:     fullName,
			Kind:     string(kind),
			Outcome:  outcome,
			Duration: duration,
		}
		if err != nil {
			event.Code = string(tool.CodeOf(err))
			event.Error = err.Error()
		}
		e.auditor.Record(ctx, event)
	}

	if e.recorder == nil {
		return
	}
	e.recorder.RecordRun(fullName, string(kind), outcome, duration)
	if err != nil {
		e.recorder.RecordError(fullName, string(tool.CodeOf(err)))
	}
}

// execute dispatches on the implementation variant.
func (e *Executor) execute(ctx context.Context, t tool.Tool, input interface{}) (interface{}, error) {
	switch impl := tool.Concrete(t.Implementation).(type) {
	case tool.NativeFunction:
		return runNative(ctx, impl, input)
	case tool.HTTPEndpoint:
		return e.runHTTP(ctx, impl, input)
	case tool.RemoteProcedure:
		return e.runRemote(ctx, impl, input)
	default:
		return nil, fmt.Errorf("%w: %T", tool.ErrUnsupportedImplementation, t.Implementation)
	}
}

// runNative calls the function in-process. It is not interrupted when ctx
// ends; the function decides whether to honor it.
func runNative(ctx context.Context, impl tool.NativeFunction, input interface{}) (output interface{}, err error) {
	if impl.Func == nil {
		return nil, fmt.Errorf("%w: native function is nil", tool.ErrUnsupportedImplementation)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("native function panicked: %v", r)
		}
	}()

	return impl.Func(ctx, input)
}

func (e *Executor) runRemote(ctx context.Context, impl tool.RemoteProcedure, input interface{}) (interface{}, error) {
	if e.resolver == nil {
		return nil, fmt.Errorf("no resolver configured for remote service %s", impl.Service)
	}

	svc, err := e.resolver.Resolve(ctx, impl.Service, impl.Version)
	if err != nil {
		return nil, err
	}
	return svc.Execute(ctx, input)
}
