package executor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/harun/toolbelt/internal/audit"
	"github.com/harun/toolbelt/internal/metrics"
	"github.com/harun/toolbelt/internal/tracing"
	"github.com/harun/toolbelt/pkg/registry"
	"github.com/harun/toolbelt/pkg/remote"
	"github.com/harun/toolbelt/pkg/schema"
	"github.com/harun/toolbelt/pkg/stdlib"
	"github.com/harun/toolbelt/pkg/tool"
	"github.com/harun/toolbelt/pkg/toolbox"
	"github.com/harun/toolbelt/pkg/workspace"
)

var objectOutput = schema.MustNew(map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"result": map[string]interface{}{"type": "number"},
	},
	"required": []string{"result"},
})

func newRegistry(t *testing.T, internal *toolbox.Toolbox, project *workspace.Workspace) *registry.Registry {
	t.Helper()
	reg, err := registry.Merge(registry.Sources{Internal: internal, Project: project},
		registry.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	return reg
}

func internalToolbox(tools ...tool.Tool) *toolbox.Toolbox {
	b := toolbox.NewBuilder("stdlib", toolbox.WithLogger(zerolog.Nop()))
	for _, t := range tools {
		b.MustAddTool(t)
	}
	return b.Build()
}

func newExecutor(t *testing.T, tools ...tool.Tool) *Executor {
	t.Helper()
	return New(newRegistry(t, internalToolbox(tools...), nil), WithLogger(zerolog.Nop()))
}

// spy counts invocations of a native tool.
func spy(name string, calls *atomic.Int32, in, out *schema.Schema, result interface{}) tool.Tool {
	return tool.Native(tool.Definition{Name: name, Description: name}, in, out,
		func(ctx context.Context, input interface{}) (interface{}, error) {
			calls.Add(1)
			return result, nil
		})
}

func TestRun_Calculator(t *testing.T) {
	exec := newExecutor(t, stdlib.Calculator())

	out, err := exec.Run(context.Background(), "calculator", map[string]interface{}{"expression": "2 + 2 * 5"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"result": float64(12)}, out)
}

func TestRun_InputValidation(t *testing.T) {
	var calls atomic.Int32
	in := schema.MustNew(map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"expression": map[string]interface{}{"type": "string"}},
		"required":   []string{"expression"},
	})
	exec := newExecutor(t, spy("calculator", &calls, in, nil, map[string]interface{}{"result": 1}))

	_, err := exec.Run(context.Background(), "calculator", map[string]interface{}{})
	require.Error(t, err)

	var inputErr *tool.InputValidationError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "calculator", inputErr.ToolName)

	var cause *schema.ValidationError
	require.ErrorAs(t, err, &cause)
	assert.Equal(t, []string{"expression"}, cause.Fields())

	assert.Equal(t, int32(0), calls.Load(), "implementation must not run on invalid input")
	assert.False(t, tool.IsRetryable(err))
}

func TestRun_NotFound(t *testing.T) {
	exec := newExecutor(t, stdlib.Calculator())

	_, err := exec.Run(context.Background(), "nonexistent-tool", map[string]interface{}{})
	var notFound *tool.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "nonexistent-tool", notFound.ToolName)
	assert.Equal(t, tool.CodeNotFound, tool.CodeOf(err))
}

func TestRun_OutputValidation(t *testing.T) {
	var calls atomic.Int32
	exec := newExecutor(t, spy("broken", &calls, nil, objectOutput, map[string]interface{}{"result": "twelve"}))

	_, err := exec.Run(context.Background(), "broken", nil)
	var outputErr *tool.OutputValidationError
	require.ErrorAs(t, err, &outputErr)
	assert.Equal(t, "broken", outputErr.ToolName)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRun_ReturnsNormalizedOutput(t *testing.T) {
	type result struct {
		Result int `json:"result"`
	}
	var calls atomic.Int32
	exec := newExecutor(t, spy("typed", &calls, nil, objectOutput, result{Result: 3}))

	out, err := exec.Run(context.Background(), "typed", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"result": float64(3)}, out)
}

func TestRun_NativeFailures(t *testing.T) {
	boom := errors.New("boom")
	failing := tool.Native(tool.Definition{Name: "failing", Description: "fails"}, nil, nil,
		func(ctx context.Context, input interface{}) (interface{}, error) {
			return nil, boom
		})
	panicking := tool.Native(tool.Definition{Name: "panicking", Description: "panics"}, nil, nil,
		func(ctx context.Context, input interface{}) (interface{}, error) {
			panic("nil map")
		})
	exec := newExecutor(t, failing, panicking)

	_, err := exec.Run(context.Background(), "failing", map[string]interface{}{"a": 1})
	var execErr *tool.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, map[string]interface{}{"a": float64(1)}, execErr.Input)
	assert.False(t, tool.IsRetryable(err))

	_, err = exec.Run(context.Background(), "panicking", nil)
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, err.Error(), "panicked: nil map")
}

type foreignImpl struct{ tool.NativeFunction }

func TestRun_UnsupportedImplementation(t *testing.T) {
	exec := newExecutor(t,
		tool.Tool{Definition: tool.Definition{Name: "empty", Description: "no implementation"}},
		tool.Tool{Definition: tool.Definition{Name: "foreign", Description: "embedded variant"}, Implementation: foreignImpl{}},
		tool.Tool{Definition: tool.Definition{Name: "nil-func", Description: "nil function"}, Implementation: tool.NativeFunction{}},
	)

	for _, name := range []string{"empty", "foreign", "nil-func"} {
		t.Run(name, func(t *testing.T) {
			_, err := exec.Run(context.Background(), name, nil)
			var execErr *tool.ExecutionError
			require.ErrorAs(t, err, &execErr)
			assert.ErrorIs(t, err, tool.ErrUnsupportedImplementation)
		})
	}
}

func TestRun_CallContext(t *testing.T) {
	var callID, traceID string
	probe := tool.Native(tool.Definition{Name: "probe", Description: "records context"}, nil, nil,
		func(ctx context.Context, input interface{}) (interface{}, error) {
			callID = tracing.GetCallID(ctx)
			traceID = tracing.GetTraceID(ctx)
			return nil, nil
		})
	exec := newExecutor(t, probe)

	ctx := tracing.WithTraceID(context.Background(), "trace-1")
	_, err := exec.Run(ctx, "probe", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, callID)
	assert.Equal(t, "trace-1", traceID)
}

func TestRun_Metrics(t *testing.T) {
	m := metrics.NewMetrics()
	reg := newRegistry(t, internalToolbox(stdlib.Calculator()), nil)
	exec := New(reg, WithLogger(zerolog.Nop()), WithRecorder(m))

	_, err := exec.Run(context.Background(), "calculator", map[string]interface{}{"expression": "1 + 1"})
	require.NoError(t, err)
	_, err = exec.Run(context.Background(), "calculator", map[string]interface{}{})
	require.Error(t, err)
	_, err = exec.Run(context.Background(), "missing", nil)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolRunsTotal.WithLabelValues("calculator", "native", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolRunsTotal.WithLabelValues("calculator", "native", OutcomeInvalidInput)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolRunsTotal.WithLabelValues("missing", "unknown", OutcomeNotFound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolRunErrorsTotal.WithLabelValues("calculator", string(tool.CodeInvalidInput))))
}

type auditSpy struct {
	events []audit.Event
	callID string
}

func (a *auditSpy) Record(ctx context.Context, event audit.Event) {
	a.events = append(a.events, event)
	a.callID = tracing.GetCallID(ctx)
}

func TestRun_Audit(t *testing.T) {
	spy := &auditSpy{}
	reg := newRegistry(t, internalToolbox(stdlib.Calculator()), nil)
	exec := New(reg, WithLogger(zerolog.Nop()), WithAuditor(spy))

	_, err := exec.Run(context.Background(), "calculator", map[string]interface{}{"expression": "1 / 0"})
	require.Error(t, err)

	require.Len(t, spy.events, 1)
	event := spy.events[0]
	assert.Equal(t, "calculator", event.Tool)
	assert.Equal(t, "native", event.Kind)
	assert.Equal(t, OutcomeFailed, event.Outcome)
	assert.Equal(t, string(tool.CodeExecutionFailed), event.Code)
	assert.Contains(t, event.Error, "division by zero")
	assert.NotEmpty(t, spy.callID)
}

func TestToolkit(t *testing.T) {
	proj := workspace.NewBuilder("acme", toolbox.WithLogger(zerolog.Nop()))
	proj.Toolbox("math").MustAddTool(stdlib.Calculator())
	reg := newRegistry(t, nil, proj.Build())

	exec := New(registry.NewHolder(reg), WithLogger(zerolog.Nop()))
	tk, err := exec.Toolkit("math")
	require.NoError(t, err)
	assert.Equal(t, []string{"math/calculator"}, tk.Names())

	calc, ok := tk.Tool("calculator")
	require.True(t, ok)
	out, err := calc.Execute(context.Background(), map[string]interface{}{"expression": "3 * 3"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"result": float64(9)}, out)

	_, err = calc.Execute(context.Background(), map[string]interface{}{})
	var inputErr *tool.InputValidationError
	assert.ErrorAs(t, err, &inputErr, "toolkit members go through the same pipeline")

	_, err = exec.Toolkit("geo")
	var tkErr *tool.ToolkitNotFoundError
	assert.ErrorAs(t, err, &tkErr)
}

// mockResolver is a testify mock of remote.Resolver.
type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, slug, version string) (remote.Service, error) {
	args := m.Called(ctx, slug, version)
	svc, _ := args.Get(0).(remote.Service)
	return svc, args.Error(1)
}

func remoteTool(name string) tool.Tool {
	return tool.Tool{
		Definition: tool.Definition{Name: name, Description: "remote solver"},
		Implementation: tool.RemoteProcedure{
			Service:      "solver",
			Version:      "^1.0",
			OutputSchema: objectOutput,
		},
	}
}

func TestRun_Remote(t *testing.T) {
	resolver := &mockResolver{}
	resolver.On("Resolve", mock.Anything, "solver", "^1.0").Return(remote.ServiceFunc(
		func(ctx context.Context, input interface{}) (interface{}, error) {
			args := input.(map[string]interface{})
			return map[string]interface{}{"result": args["x"].(float64) * 2}, nil
		}), nil)

	reg := newRegistry(t, internalToolbox(remoteTool("solve")), nil)
	exec := New(reg, WithLogger(zerolog.Nop()), WithResolver(resolver))

	out, err := exec.Run(context.Background(), "solve", map[string]interface{}{"x": 21})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"result": float64(42)}, out)
	resolver.AssertExpectations(t)
}

func TestRun_RemoteFailures(t *testing.T) {
	resolver := &mockResolver{}
	resolver.On("Resolve", mock.Anything, "solver", "^1.0").Return(nil, remote.ErrServiceNotFound)

	reg := newRegistry(t, internalToolbox(remoteTool("solve")), nil)

	exec := New(reg, WithLogger(zerolog.Nop()), WithResolver(resolver))
	_, err := exec.Run(context.Background(), "solve", nil)
	var execErr *tool.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.ErrorIs(t, err, remote.ErrServiceNotFound)

	exec = New(reg, WithLogger(zerolog.Nop()))
	_, err = exec.Run(context.Background(), "solve", nil)
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, err.Error(), "no resolver configured")
}

func TestRun_LogsCallID(t *testing.T) {
	var buf bytes.Buffer
	reg := newRegistry(t, internalToolbox(stdlib.Calculator()), nil)
	exec := New(reg, WithLogger(zerolog.New(&buf).Level(zerolog.DebugLevel)))

	_, err := exec.Run(context.Background(), "calculator", map[string]interface{}{"expression": "1"})
	require.NoError(t, err)

	logs := buf.String()
	assert.Contains(t, logs, `"component":"executor"`)
	assert.Contains(t, logs, `"call_id":"`)
	assert.Contains(t, logs, "Tool execution completed")
}

// roundTripFunc lets tests observe the exact outbound request.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestRun_HTTPTemplate(t *testing.T) {
	var requests []*http.Request
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		requests = append(requests, r)
		return jsonResponse(http.StatusOK, `{"id": 7, "title": "write tests"}`), nil
	})}

	todo := tool.Tool{
		Definition: tool.Definition{Name: "todo", Description: "fetch a todo"},
		Implementation: tool.HTTPEndpoint{
			URL: "https://api.example.com/todos/{id}",
			InputSchema: schema.MustNew(map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"id": map[string]interface{}{"type": "integer"}},
				"required":   []string{"id"},
			}),
		},
	}
	reg := newRegistry(t, internalToolbox(todo), nil)
	exec := New(reg, WithLogger(zerolog.Nop()), WithHTTPClient(client))

	out, err := exec.Run(context.Background(), "todo", map[string]interface{}{"id": 7})
	require.NoError(t, err)

	require.Len(t, requests, 1)
	assert.Equal(t, http.MethodGet, requests[0].Method)
	assert.Equal(t, "https://api.example.com/todos/7", requests[0].URL.String())
	assert.Nil(t, requests[0].Body)
	assert.Equal(t, map[string]interface{}{"id": float64(7), "title": "write tests"}, out)
}

func TestRun_HTTPOversizedResponse(t *testing.T) {
	huge := `"` + strings.Repeat("a", maxResponseBytes) + `"`
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, huge), nil
	})}

	reg := newRegistry(t, internalToolbox(tool.Tool{
		Definition:     tool.Definition{Name: "dump", Description: "returns a large document"},
		Implementation: tool.HTTPEndpoint{URL: "https://api.example.com/dump"},
	}), nil)
	exec := New(reg, WithLogger(zerolog.Nop()), WithHTTPClient(client))

	out, err := exec.Run(context.Background(), "dump", nil)
	assert.Nil(t, out)
	var execErr *tool.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, err.Error(), "response exceeds")
}

func TestRun_HTTPPost(t *testing.T) {
	var gotBody, gotAuth, gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.EscapedPath()
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result": 1}`))
	}))
	defer srv.Close()

	create := tool.Tool{
		Definition: tool.Definition{Name: "create", Description: "create a record"},
		Implementation: tool.HTTPEndpoint{
			URL:          srv.URL + "/boards/{board}/cards?q={title}",
			Method:       "post",
			Headers:      map[string]string{"Authorization": "Bearer token"},
			BodyMapping:  map[string]string{"name": "title", "size": "points"},
			OutputSchema: objectOutput,
		},
	}
	reg := newRegistry(t, internalToolbox(create), nil)
	exec := New(reg, WithLogger(zerolog.Nop()))

	_, err := exec.Run(context.Background(), "create", map[string]interface{}{
		"board":  "team a",
		"title":  "fix & ship",
		"points": 1.5,
		"ignore": true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer token", gotAuth)
	assert.Equal(t, "/boards/team%20a/cards", gotPath)
	assert.Equal(t, "fix & ship", gotQuery)
	assert.JSONEq(t, `{"name": "fix & ship", "size": 1.5}`, gotBody)
}

func TestRun_HTTPFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/unavailable":
			http.Error(w, "try later", http.StatusServiceUnavailable)
		case "/missing":
			http.Error(w, "no such thing", http.StatusNotFound)
		case "/slow":
			time.Sleep(200 * time.Millisecond)
			_, _ = w.Write([]byte(`{"result": 1}`))
		case "/html":
			_, _ = w.Write([]byte(`<html>ok</html>`))
		}
	}))
	defer srv.Close()

	endpoint := func(name, path string, timeout time.Duration) tool.Tool {
		return tool.Tool{
			Definition: tool.Definition{Name: name, Description: name},
			Implementation: tool.HTTPEndpoint{
				URL:          srv.URL + path,
				Timeout:      timeout,
				OutputSchema: objectOutput,
			},
		}
	}
	reg := newRegistry(t, internalToolbox(
		endpoint("unavailable", "/unavailable", 0),
		endpoint("missing", "/missing", 0),
		endpoint("slow", "/slow", 20*time.Millisecond),
		endpoint("html", "/html", 0),
		endpoint("template", "/items/{id}", 0),
	), nil)
	exec := New(reg, WithLogger(zerolog.Nop()))
	ctx := context.Background()

	t.Run("5xx is retryable", func(t *testing.T) {
		_, err := exec.Run(ctx, "unavailable", nil)
		var execErr *tool.ExecutionError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, http.StatusServiceUnavailable, execErr.StatusCode)
		assert.Contains(t, err.Error(), "try later")
		assert.True(t, tool.IsRetryable(err))
	})

	t.Run("4xx is not retryable", func(t *testing.T) {
		_, err := exec.Run(ctx, "missing", nil)
		var execErr *tool.ExecutionError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, http.StatusNotFound, execErr.StatusCode)
		assert.False(t, tool.IsRetryable(err))
	})

	t.Run("timeout", func(t *testing.T) {
		_, err := exec.Run(ctx, "slow", nil)
		var execErr *tool.ExecutionError
		require.ErrorAs(t, err, &execErr)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.True(t, tool.IsRetryable(err))
	})

	t.Run("malformed body fails output validation", func(t *testing.T) {
		_, err := exec.Run(ctx, "html", nil)
		var outputErr *tool.OutputValidationError
		assert.ErrorAs(t, err, &outputErr)
	})

	t.Run("missing placeholder", func(t *testing.T) {
		_, err := exec.Run(ctx, "template", map[string]interface{}{})
		var execErr *tool.ExecutionError
		require.ErrorAs(t, err, &execErr)
		assert.Contains(t, err.Error(), "missing URL parameters: id")
	})
}

func TestRun_HTTPCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	reg := newRegistry(t, internalToolbox(tool.Tool{
		Definition:     tool.Definition{Name: "hang", Description: "never answers"},
		Implementation: tool.HTTPEndpoint{URL: srv.URL},
	}), nil)
	exec := New(reg, WithLogger(zerolog.Nop()))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := exec.Run(ctx, "hang", nil)
	var execErr *tool.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.ErrorIs(t, err, context.Canceled)
}
