package service

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/WangQiHao-Charlie/thc6gw/internal/gateway"
)

// ServerName is advertised to MCP clients during initialize.
const ServerName = "THC IPv6 Security Toolkit Server"

const argsParam = "args"

// NewMCPServer registers one MCP tool per gateway endpoint.
func NewMCPServer(gw *gateway.Gateway, version string) *server.MCPServer {
	s := server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	for _, ep := range gateway.Endpoints() {
		s.AddTool(ToolFor(ep), ToolHandler(gw, ep))
	}
	return s
}

// ToolFor describes ep as an MCP tool: every parameter is a required string,
// variadic endpoints add an optional array of strings.
func ToolFor(ep gateway.Endpoint) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(ep.Description)}
	for _, p := range ep.Params {
		opts = append(opts, mcp.WithString(p.Name, mcp.Required(), mcp.Description(p.Description)))
	}
	if ep.Variadic {
		opts = append(opts, mcp.WithArray(argsParam,
			mcp.Description("Positional arguments passed to the tool in order"),
			mcp.Items(map[string]any{"type": "string"}),
		))
	}
	return mcp.NewTool(ep.Name, opts...)
}

// ToolHandler adapts a gateway endpoint to an MCP tool call. Tool failures
// are ordinary text results; only malformed calls become MCP tool errors.
func ToolHandler(gw *gateway.Gateway, ep gateway.Endpoint) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params := make(map[string]string, len(ep.Params))
		for _, p := range ep.Params {
			v, err := req.RequireString(p.Name)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			params[p.Name] = v
		}
		var args []string
		if ep.Variadic {
			var err error
			args, err = stringList(req.GetArguments()[argsParam])
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
		}
		out, err := gw.Invoke(ctx, ep.Name, params, args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}

func stringList(v any) ([]string, error) {
	switch list := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string, got %T", argsParam, i, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s must be an array of strings, got %T", argsParam, v)
	}
}
