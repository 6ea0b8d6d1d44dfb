package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/toolbelt/internal/tracing"
	"github.com/harun/toolbelt/pkg/registry"
	"github.com/harun/toolbelt/pkg/schema"
	"github.com/harun/toolbelt/pkg/tool"
)

// Headers that carry caller supplied tracing values into a run.
const (
	TraceHeader   = "X-Trace-Id"
	CallerHeader  = "X-Caller-Id"
	RequestHeader = "X-Request-Id"
)

const maxRequestBytes = 1 << 20

// Source yields the registry snapshot to serve. *registry.Holder satisfies it.
type Source interface {
	Load() *registry.Registry
}

// Server exposes the registry and the executor over HTTP.
type Server struct {
	host        string
	port        int
	tools       Source
	runner      registry.Runner
	metrics     http.Handler
	metricsPath string
	logger      zerolog.Logger

	server   *http.Server
	listener net.Listener
	inFlight sync.WaitGroup
}

// Config holds server configuration
type Config struct {
	Host        string
	Port        int
	Tools       Source
	Runner      registry.Runner
	Metrics     http.Handler
	MetricsPath string
	Logger      zerolog.Logger
}

// New creates a server. Port 0 picks a free port on Start.
func New(cfg Config) (*Server, error) {
	if cfg.Port < 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Tools == nil {
		return nil, fmt.Errorf("tool source is required")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if cfg.Metrics != nil && cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	return &Server{
		host:        cfg.Host,
		port:        cfg.Port,
		tools:       cfg.Tools,
		runner:      cfg.Runner,
		metrics:     cfg.Metrics,
		metricsPath: cfg.MetricsPath,
		logger:      cfg.Logger,
	}, nil
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /tools", s.handleList)
	mux.HandleFunc("GET /tools/{name...}", s.handleDescribe)
	mux.HandleFunc("GET /toolkits/{namespace...}", s.handleToolkit)
	mux.HandleFunc("POST /run/{name...}", s.handleRun)
	if s.metrics != nil {
		mux.Handle("GET "+s.metricsPath, s.metrics)
	}
	return mux
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", net.JoinHostPort(s.host, fmt.Sprint(s.port)))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting tool server")

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Tool server error")
		}
	}()
	return nil
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop waits for in-flight runs and shuts the server down.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	s.logger.Info().Msg("Shutting down tool server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown timeout reached, abandoning in-flight runs")
	}

	s.logger.Info().Msg("Tool server stopped")
	return nil
}

// ToolInfo is the listing entry for one tool.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Kind        tool.Kind      `json:"kind"`
	Tier        registry.Tier  `json:"tier"`
	Version     string         `json:"version,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Input       *schema.Schema `json:"input_schema,omitempty"`
	Output      *schema.Schema `json:"output_schema,omitempty"`
}

// Describe builds the info for e. Schemas are included when full is set.
func Describe(e registry.Entry, full bool) ToolInfo {
	info := ToolInfo{
		Name:        e.FullName,
		Description: e.Tool.Definition.Description,
		Kind:        e.Tool.Kind(),
		Tier:        e.Tier,
		Version:     e.Tool.Definition.Version,
		Tags:        e.Tool.Definition.Tags,
	}
	if full {
		info.Input, info.Output = e.Tool.Schemas()
	}
	return info
}

// ErrorBody is the JSON error returned by every route.
type ErrorBody struct {
	Code      tool.ErrorCode `json:"code"`
	Message   string         `json:"message"`
	Fields    []string       `json:"fields,omitempty"`
	Retryable bool           `json:"retryable,omitempty"`
}

// NewErrorBody classifies err.
func NewErrorBody(err error) ErrorBody {
	body := ErrorBody{
		Code:      tool.CodeOf(err),
		Message:   err.Error(),
		Retryable: tool.IsRetryable(err),
	}
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		body.Fields = verr.Fields()
	}
	return body
}

func statusFor(err error) int {
	switch tool.CodeOf(err) {
	case tool.CodeNotFound, tool.CodeToolkitNotFound:
		return http.StatusNotFound
	case tool.CodeInvalidInput:
		return http.StatusBadRequest
	case tool.CodeExecutionFailed, tool.CodeInvalidOutput:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) registry() *registry.Registry {
	return s.tools.Load()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	n := 0
	if r := s.registry(); r != nil {
		n = r.Len()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "tools": n})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	infos := []ToolInfo{}
	if r := s.registry(); r != nil {
		for _, e := range r.Entries() {
			infos = append(infos, Describe(e, false))
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tools": infos})
}

func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	reg := s.registry()
	if reg == nil {
		s.writeError(w, &tool.NotFoundError{ToolName: name})
		return
	}
	e, err := reg.Entry(name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Describe(e, true))
}

func (s *Server) handleToolkit(w http.ResponseWriter, r *http.Request) {
	ns := r.PathValue("namespace")
	reg := s.registry()
	if reg == nil {
		s.writeError(w, &tool.ToolkitNotFoundError{Namespace: ns})
		return
	}
	tk, err := reg.GetToolkit(ns, s.runner)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"namespace": tk.Namespace,
		"metadata":  tk.Metadata,
		"tools":     tk.Names(),
	})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	s.inFlight.Add(1)
	defer s.inFlight.Done()

	name := r.PathValue("name")

	tc := &tracing.TraceContext{
		TraceID:   r.Header.Get(TraceHeader),
		CallerID:  r.Header.Get(CallerHeader),
		RequestID: r.Header.Get(RequestHeader),
	}
	if tc.TraceID == "" {
		tc.TraceID = tracing.NewTraceID()
	}
	ctx := tracing.NewContext(r.Context(), tc)
	logger := tracing.LoggerFromContext(ctx, s.logger)
	w.Header().Set(TraceHeader, tc.TraceID)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	var input interface{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &input); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error": ErrorBody{Code: tool.CodeInvalidInput, Message: "request body is not valid JSON: " + err.Error()},
			})
			return
		}
	}

	logger.Info().Str("tool", name).Msg("Tool server received run request")

	output, err := s.runner.Run(ctx, name, input)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"output": output})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]interface{}{"error": NewErrorBody(err)})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
