package remote

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"
)

// MCP JSON-RPC messages
type mcpRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      interface{} `json:"id,omitempty"`
}

type mcpResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *mcpError       `json:"error,omitempty"`
	ID      interface{}     `json:"id"`
}

type mcpError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// MCPToolResult is the result of an MCP tools/call request.
type MCPToolResult struct {
	Content           []MCPContent `json:"content"`
	StructuredContent interface{}  `json:"structuredContent,omitempty"`
	IsError           bool         `json:"isError,omitempty"`
}

// MCPContent is one content block of a tool result.
type MCPContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// MCPServerConfig describes how to start an MCP server process.
type MCPServerConfig struct {
	Name    string
	Command string
	Args    []string
	Timeout time.Duration
}

// MCPClient speaks line-delimited JSON-RPC 2.0 to one MCP server.
type MCPClient struct {
	name    string
	timeout time.Duration
	logger  zerolog.Logger

	startOnce sync.Once
	startErr  error
	start     func() (io.WriteCloser, io.Reader, error)

	writeMu sync.Mutex
	stdin   io.WriteCloser

	mu            sync.Mutex
	process       *exec.Cmd
	id            int
	pending       map[int]chan *mcpResponse
	serverVersion string
	// connErr is set once the server's output ends. Later calls fail with it.
	connErr error
}

// NewMCPClient creates a client that starts the configured process on first use.
func NewMCPClient(cfg MCPServerConfig, logger zerolog.Logger) *MCPClient {
	c := newMCPClient(cfg.Name, cfg.Timeout, logger)
	c.start = func() (io.WriteCloser, io.Reader, error) {
		cmd := exec.Command(cfg.Command, cfg.Args...)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, nil, err
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, nil, err
		}
		if err := cmd.Start(); err != nil {
			return nil, nil, err
		}
		c.mu.Lock()
		c.process = cmd
		c.mu.Unlock()
		return stdin, stdout, nil
	}
	return c
}

// NewMCPClientConn creates a client over an established connection.
func NewMCPClientConn(name string, w io.WriteCloser, r io.Reader, logger zerolog.Logger) *MCPClient {
	c := newMCPClient(name, 0, logger)
	c.start = func() (io.WriteCloser, io.Reader, error) {
		return w, r, nil
	}
	return c
}

func newMCPClient(name string, timeout time.Duration, logger zerolog.Logger) *MCPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MCPClient{
		name:    name,
		timeout: timeout,
		logger:  logger.With().Str("component", "mcp-client").Str("server", name).Logger(),
		pending: make(map[int]chan *mcpResponse),
	}
}

// Start connects and performs the initialize handshake once. It is called
// implicitly by CallTool; a failed start is not retried.
func (c *MCPClient) Start(ctx context.Context) error {
	c.startOnce.Do(func() {
		stdin, stdout, err := c.start()
		if err != nil {
			c.startErr = fmt.Errorf("failed to start MCP server %s: %w", c.name, err)
			return
		}
		c.stdin = stdin
		go c.listen(stdout)

		c.startErr = c.initialize(ctx)
	})
	return c.startErr
}

func (c *MCPClient) listen(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		var resp mcpResponse
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			c.logger.Error().Err(err).Msg("Failed to unmarshal MCP response")
			continue
		}

		// Responses carry numeric ids; notifications carry none.
		id, ok := resp.ID.(float64)
		if !ok {
			continue
		}
		c.mu.Lock()
		ch, exists := c.pending[int(id)]
		if exists {
			delete(c.pending, int(id))
			ch <- &resp
		}
		c.mu.Unlock()
	}

	connErr := fmt.Errorf("MCP server %s closed the connection", c.name)
	if err := scanner.Err(); err != nil {
		connErr = fmt.Errorf("MCP server %s connection failed: %w", c.name, err)
	}
	c.logger.Warn().Err(connErr).Msg("MCP server output ended")

	c.mu.Lock()
	c.connErr = connErr
	for id, ch := range c.pending {
		delete(c.pending, id)
		close(ch)
	}
	c.mu.Unlock()
}

func (c *MCPClient) initialize(ctx context.Context) error {
	params := map[string]interface{}{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]interface{}{
			"name":    "toolbelt",
			"version": "1.0.0",
		},
	}
	resp, err := c.call(ctx, "initialize", params)
	if err != nil {
		return fmt.Errorf("MCP initialize failed: %w", err)
	}

	var result struct {
		ServerInfo struct {
			Version string `json:"version"`
		} `json:"serverInfo"`
	}
	if err := json.Unmarshal(resp.Result, &result); err == nil {
		c.mu.Lock()
		c.serverVersion = result.ServerInfo.Version
		c.mu.Unlock()
	}

	return c.notify("notifications/initialized")
}

func (c *MCPClient) write(msg mcpRequest) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.stdin.Write(append(data, '\n'))
	return err
}

func (c *MCPClient) notify(method string) error {
	return c.write(mcpRequest{JSONRPC: "2.0", Method: method})
}

func (c *MCPClient) call(ctx context.Context, method string, params interface{}) (*mcpResponse, error) {
	c.mu.Lock()
	if c.connErr != nil {
		err := c.connErr
		c.mu.Unlock()
		return nil, err
	}
	c.id++
	id := c.id
	ch := make(chan *mcpResponse, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.write(mcpRequest{JSONRPC: "2.0", Method: method, Params: params, ID: id}); err != nil {
		c.forget(id)
		return nil, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			c.mu.Lock()
			defer c.mu.Unlock()
			return nil, c.connErr
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("MCP error (%d): %s", resp.Error.Code, resp.Error.Message)
		}
		return resp, nil
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	case <-timer.C:
		c.forget(id)
		return nil, fmt.Errorf("MCP request %s timed out after %s", method, c.timeout)
	}
}

func (c *MCPClient) forget(id int) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// ServerVersion returns the version reported during initialize.
func (c *MCPClient) ServerVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverVersion
}

// CallTool invokes tools/call.
func (c *MCPClient) CallTool(ctx context.Context, name string, arguments interface{}) (*MCPToolResult, error) {
	if err := c.Start(ctx); err != nil {
		return nil, err
	}

	resp, err := c.call(ctx, "tools/call", map[string]interface{}{
		"name":      name,
		"arguments": arguments,
	})
	if err != nil {
		return nil, err
	}

	var result MCPToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to decode MCP tool result: %w", err)
	}
	return &result, nil
}

// Close stops the server process, if the client started one.
func (c *MCPClient) Close() error {
	c.writeMu.Lock()
	if c.stdin != nil {
		_ = c.stdin.Close()
	}
	c.writeMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.process != nil && c.process.Process != nil {
		return c.process.Process.Kill()
	}
	return nil
}

// mcpService exposes one MCP tool as a Service.
type mcpService struct {
	client *MCPClient
	tool   string
}

func (s *mcpService) Execute(ctx context.Context, input interface{}) (interface{}, error) {
	result, err := s.client.CallTool(ctx, s.tool, input)
	if err != nil {
		return nil, err
	}
	if result.IsError {
		return nil, fmt.Errorf("MCP tool %s failed: %s", s.tool, result.text())
	}
	if result.StructuredContent != nil {
		return result.StructuredContent, nil
	}

	// Text content is returned as parsed JSON when possible.
	text := result.text()
	var parsed interface{}
	if err := json.Unmarshal([]byte(text), &parsed); err == nil {
		return parsed, nil
	}
	return text, nil
}

func (r *MCPToolResult) text() string {
	parts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		if c.Type == "text" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// MCPResolver resolves slugs of the form <server>.<tool> to tools on
// registered MCP servers. A version constraint is checked against the
// version the server reports.
type MCPResolver struct {
	mu      sync.RWMutex
	servers map[string]*MCPClient
}

// NewMCPResolver creates an empty resolver.
func NewMCPResolver() *MCPResolver {
	return &MCPResolver{
		servers: make(map[string]*MCPClient),
	}
}

// AddServer registers client under its name.
func (r *MCPResolver) AddServer(client *MCPClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servers[client.name] = client
}

// Resolve implements Resolver.
func (r *MCPResolver) Resolve(ctx context.Context, slug, version string) (Service, error) {
	server, toolName, ok := strings.Cut(slug, ".")
	if !ok || toolName == "" {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, slug)
	}

	r.mu.RLock()
	client, exists := r.servers[server]
	r.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, slug)
	}

	if version != "" {
		if err := client.Start(ctx); err != nil {
			return nil, err
		}
		if err := checkServerVersion(client.ServerVersion(), version); err != nil {
			return nil, fmt.Errorf("service %s: %w", slug, err)
		}
	}

	return &mcpService{client: client, tool: toolName}, nil
}

// Close closes every server.
func (r *MCPResolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for _, c := range r.servers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func checkServerVersion(reported, constraint string) error {
	v, err := semver.NewVersion(reported)
	if err != nil {
		return fmt.Errorf("server reports unparseable version %q", reported)
	}
	_, err = selectVersion([]*semver.Version{v}, constraint)
	return err
}
