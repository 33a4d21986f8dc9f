package skill

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/aschepis/backscratcher/skillloop/llm"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
)

const clientName = "skillloop"

// MCPExecutor invokes skills exposed as tools by an MCP server.
// MCP tool names may contain dots, which model APIs reject, so tools are
// advertised under a safe name and mapped back on invocation.
type MCPExecutor struct {
	client *client.Client
	logger zerolog.Logger

	mu             sync.RWMutex
	safeToOriginal map[string]string
}

// NewMCPHTTPExecutor connects to an MCP server over streamable HTTP.
func NewMCPHTTPExecutor(ctx context.Context, baseURL string, logger zerolog.Logger) (*MCPExecutor, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required for HTTP MCP client")
	}
	c, err := client.NewStreamableHttpClient(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP MCP client: %w", err)
	}
	return NewMCPExecutor(ctx, c, logger)
}

// NewMCPStdioExecutor launches an MCP server as a subprocess and talks to it over stdio.
// A command containing spaces is split into command and leading arguments.
func NewMCPStdioExecutor(ctx context.Context, command string, args, env []string, logger zerolog.Logger) (*MCPExecutor, error) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return nil, fmt.Errorf("command is required for STDIO MCP client")
	}
	cmdArgs := append(parts[1:len(parts):len(parts)], args...)
	c, err := client.NewStdioMCPClient(parts[0], env, cmdArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to create stdio MCP client: %w", err)
	}
	return NewMCPExecutor(ctx, c, logger)
}

// NewMCPExecutor starts and initializes an existing mcp-go client.
func NewMCPExecutor(ctx context.Context, c *client.Client, logger zerolog.Logger) (*MCPExecutor, error) {
	logger = logger.With().Str("component", "mcp_executor").Logger()

	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to start MCP client: %w", err)
	}

	initReq := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    clientName,
				Version: "1.0.0",
			},
		},
	}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize MCP client: %w", err)
	}
	logger.Info().Msg("MCP client initialized")

	return &MCPExecutor{
		client:         c,
		logger:         logger,
		safeToOriginal: make(map[string]string),
	}, nil
}

// ToSafeName converts an MCP tool name to one accepted by model APIs.
// Example: "gmail.messages.list" -> "gmail_messages_list"
func ToSafeName(original string) string {
	return strings.ReplaceAll(original, ".", "_")
}

// ListTools returns the server's tools as catalog specs under their safe names.
func (e *MCPExecutor) ListTools(ctx context.Context) ([]llm.ToolSpec, error) {
	result, err := e.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	specs := make([]llm.ToolSpec, 0, len(result.Tools))
	for _, tool := range result.Tools {
		safe := ToSafeName(tool.Name)
		e.safeToOriginal[safe] = tool.Name

		schema := map[string]any{"type": tool.InputSchema.Type}
		if tool.InputSchema.Properties != nil {
			schema["properties"] = tool.InputSchema.Properties
		}
		if len(tool.InputSchema.Required) > 0 {
			schema["required"] = tool.InputSchema.Required
		}
		if len(tool.InputSchema.Defs) > 0 {
			schema["$defs"] = tool.InputSchema.Defs
		}
		specs = append(specs, llm.ToolSpec{
			Name:        safe,
			Description: tool.Description,
			Schema:      SchemaFromMap(schema),
		})
	}
	e.logger.Info().Int("tool_count", len(specs)).Msg("Listed MCP tools")
	return specs, nil
}

// Execute implements Executor. A tool result flagged as an error is reported
// as a 422 status so it is not retried.
func (e *MCPExecutor) Execute(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	e.mu.RLock()
	original, ok := e.safeToOriginal[name]
	e.mu.RUnlock()
	if !ok {
		original = name
	}

	var input map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &input); err != nil {
			return nil, &Error{Kind: KindValidation, Message: "tool arguments must be a JSON object", Cause: err}
		}
	}

	result, err := e.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      original,
			Arguments: input,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke tool %s: %w", original, err)
	}

	texts := make([]string, 0, len(result.Content))
	for _, content := range result.Content {
		if text, ok := mcp.AsTextContent(content); ok {
			texts = append(texts, text.Text)
		}
	}

	if result.IsError {
		return nil, &StatusError{StatusCode: http.StatusUnprocessableEntity, Body: strings.Join(texts, "\n")}
	}

	if result.StructuredContent != nil {
		return json.Marshal(result.StructuredContent)
	}
	output := map[string]any{}
	switch len(texts) {
	case 0:
	case 1:
		output["text"] = texts[0]
	default:
		output["text"] = texts
	}
	return json.Marshal(output)
}

// Close shuts down the MCP connection.
func (e *MCPExecutor) Close() error {
	return e.client.Close()
}

var _ Executor = (*MCPExecutor)(nil)
