// Package mcp implements the tool broker port over the Model Context
// Protocol. Authoritative tools (calculator, web search, code execution)
// live on an external MCP server; the engine only forwards invocations and
// extracts the textual result.
package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpprotocol "github.com/mark3labs/mcp-go/mcp"

	"github.com/quorumlabs/quorum/internal/port/toolbroker"
)

// Broker implements toolbroker.Broker against a streamable-HTTP MCP server.
type Broker struct {
	url     string
	timeout time.Duration
}

// NewBroker creates a broker for the MCP server at url.
func NewBroker(url string, timeout time.Duration) *Broker {
	return &Broker{url: url, timeout: timeout}
}

// Invoke connects, performs the MCP handshake, calls the named tool and
// returns its text result. A fresh connection per invocation keeps the
// broker stateless; tool calls are rare (at most one per session).
func (b *Broker) Invoke(ctx context.Context, tool string, args map[string]any) (*toolbroker.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	client, err := mcpclient.NewStreamableHttpClient(b.url)
	if err != nil {
		return nil, fmt.Errorf("create mcp client: %w", err)
	}
	defer client.Close() //nolint:errcheck // best-effort cleanup

	initReq := mcpprotocol.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpprotocol.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpprotocol.Implementation{
		Name:    "quorum",
		Version: "1.0.0",
	}
	if _, err := client.Initialize(ctx, initReq); err != nil {
		return nil, fmt.Errorf("mcp initialize: %w", err)
	}

	callReq := mcpprotocol.CallToolRequest{}
	callReq.Params.Name = tool
	callReq.Params.Arguments = args

	result, err := client.CallTool(ctx, callReq)
	if err != nil {
		return nil, fmt.Errorf("call tool %s: %w", tool, err)
	}

	text := textFromContent(result.Content)
	if result.IsError {
		return nil, fmt.Errorf("tool %s reported error: %s", tool, text)
	}

	return &toolbroker.Result{Tool: tool, Value: text}, nil
}

// textFromContent concatenates the text blocks of an MCP tool result.
func textFromContent(content []mcpprotocol.Content) string {
	var parts []string
	for _, c := range content {
		if tc, ok := c.(mcpprotocol.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
