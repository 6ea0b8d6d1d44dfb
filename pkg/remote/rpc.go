package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/rpc"

	"github.com/hashicorp/go-plugin"
)

// Handshake is used to verify that the service process and host are compatible
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "TOOLBELT_SERVICE",
	MagicCookieValue: "toolbelt-remote-service-v1",
}

// PluginName is the name a service process registers under.
const PluginName = "service"

// PluginMap is the map of plugins the host can dispense
var PluginMap = map[string]plugin.Plugin{
	PluginName: &ServicePlugin{},
}

// Serve runs svc as a go-plugin service process. It blocks until the host
// disconnects. Call it from the main function of a service binary.
func Serve(svc Service) {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]plugin.Plugin{
			PluginName: &ServicePlugin{Impl: svc},
		},
	})
}

// ServicePlugin is the plugin.Plugin implementation for net/rpc services.
type ServicePlugin struct {
	Impl Service
}

func (p *ServicePlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &RPCServer{Impl: p.Impl}, nil
}

func (p *ServicePlugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &RPCClient{client: c}, nil
}

// ExecuteArgs carries JSON-encoded input. gob cannot encode arbitrary
// interface values, so payloads cross the wire as JSON.
type ExecuteArgs struct {
	Input []byte
}

// ExecuteResp carries JSON-encoded output or an error message.
type ExecuteResp struct {
	Output []byte
	Error  string
}

// RPCServer is the RPC server that RPCClient talks to
type RPCServer struct {
	Impl Service
}

func (s *RPCServer) Execute(args *ExecuteArgs, resp *ExecuteResp) error {
	var input interface{}
	if len(args.Input) > 0 {
		if err := json.Unmarshal(args.Input, &input); err != nil {
			resp.Error = fmt.Sprintf("invalid input: %v", err)
			return nil
		}
	}

	output, err := s.Impl.Execute(context.Background(), input)
	if err != nil {
		resp.Error = err.Error()
		return nil
	}

	data, err := json.Marshal(output)
	if err != nil {
		resp.Error = fmt.Sprintf("failed to encode output: %v", err)
		return nil
	}
	resp.Output = data
	return nil
}

// RPCClient is the RPC client that talks to RPCServer
type RPCClient struct {
	client *rpc.Client
}

// NewRPCClient wraps an existing net/rpc client.
func NewRPCClient(c *rpc.Client) *RPCClient {
	return &RPCClient{client: c}
}

// Execute implements Service. net/rpc has no cancellation, so a canceled
// ctx abandons the pending call instead of interrupting the service.
func (c *RPCClient) Execute(ctx context.Context, input interface{}) (interface{}, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode input: %w", err)
	}

	var resp ExecuteResp
	call := c.client.Go("Plugin.Execute", &ExecuteArgs{Input: data}, &resp, make(chan *rpc.Call, 1))

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case done := <-call.Done:
		if done.Error != nil {
			return nil, fmt.Errorf("rpc call failed: %w", done.Error)
		}
	}

	if resp.Error != "" {
		return nil, errors.New(resp.Error)
	}

	var output interface{}
	if len(resp.Output) > 0 {
		if err := json.Unmarshal(resp.Output, &output); err != nil {
			return nil, fmt.Errorf("failed to decode output: %w", err)
		}
	}
	return output, nil
}
