package skill

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/aschepis/backscratcher/skillloop/llm"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// maxErrorBody bounds how much of an error response is kept for reporting.
const maxErrorBody = 4096

// HTTPExecutor invokes skills on a skill service.
//
// Server contract:
//
//	POST {base}/skill-invocations
//	Body:     {"session_id": "...", "invocation_id": "...", "skill_name": "...", "args": {...}}
//	Response: {"invocation_id": "...", "output": {...}}
//
//	GET {base}/tools?session_id=...
//	Response: [{"name": "...", "description": "...", "inputSchema": {...}}]
//
// A base of the form unix:///path/to/socket talks HTTP over that unix socket.
type HTTPExecutor struct {
	baseURL    string
	sessionID  string
	authToken  string
	httpClient *http.Client
	logger     zerolog.Logger
}

// HTTPOption configures an HTTPExecutor.
type HTTPOption func(*HTTPExecutor)

// WithAuthToken sends the token as a bearer Authorization header.
func WithAuthToken(token string) HTTPOption {
	return func(e *HTTPExecutor) {
		e.authToken = token
	}
}

// WithHTTPClient replaces the HTTP client. It is ignored for unix socket bases.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(e *HTTPExecutor) {
		e.httpClient = c
	}
}

// NewHTTPExecutor creates an executor for the skill service at base.
// No client-level timeout is set; the invoker bounds every attempt.
func NewHTTPExecutor(base, sessionID string, logger zerolog.Logger, opts ...HTTPOption) (*HTTPExecutor, error) {
	if base == "" {
		return nil, fmt.Errorf("skill service base URL is required")
	}

	e := &HTTPExecutor{
		sessionID:  sessionID,
		httpClient: &http.Client{},
		logger:     logger.With().Str("component", "http_executor").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if socketPath, ok := strings.CutPrefix(base, "unix://"); ok {
		if socketPath == "" {
			return nil, fmt.Errorf("unix socket path is required")
		}
		dialer := &net.Dialer{}
		e.httpClient = &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					return dialer.DialContext(ctx, "unix", socketPath)
				},
			},
		}
		e.baseURL = "http://unix"
	} else {
		if _, err := url.Parse(base); err != nil {
			return nil, fmt.Errorf("invalid skill service URL: %w", err)
		}
		e.baseURL = strings.TrimRight(base, "/")
	}

	e.logger.Info().Str("base_url", base).Str("session_id", sessionID).Msg("Created skill service executor")
	return e, nil
}

type skillInvocation struct {
	SessionID    string          `json:"session_id"`
	InvocationID string          `json:"invocation_id"`
	SkillName    string          `json:"skill_name"`
	Args         json.RawMessage `json:"args"`
}

type skillInvocationResult struct {
	InvocationID string          `json:"invocation_id"`
	Output       json.RawMessage `json:"output"`
}

// Execute implements Executor.
func (e *HTTPExecutor) Execute(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	invocationID := uuid.NewString()
	body, err := json.Marshal(skillInvocation{
		SessionID:    e.sessionID,
		InvocationID: invocationID,
		SkillName:    name,
		Args:         args,
	})
	if err != nil {
		return nil, &Error{Kind: KindValidation, Message: "failed to marshal invocation", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/skill-invocations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	e.authorize(req)

	e.logger.Debug().Str("skill", name).Str("invocation_id", invocationID).Msg("Invoking skill")
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck // Body close error can be ignored

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result skillInvocationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &StatusError{StatusCode: http.StatusBadGateway, Body: fmt.Sprintf("undecodable response: %v", err)}
	}
	if len(result.Output) == 0 {
		return json.RawMessage("null"), nil
	}
	return result.Output, nil
}

type remoteTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// FetchTools reads the tools the skill service offers for this session.
func (e *HTTPExecutor) FetchTools(ctx context.Context) ([]llm.ToolSpec, error) {
	q := url.Values{}
	q.Set("session_id", e.sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/tools?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	e.authorize(req)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tools: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // Body close error can be ignored

	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("failed to fetch tools: %w", err)
	}

	var tools []remoteTool
	if err := json.NewDecoder(resp.Body).Decode(&tools); err != nil {
		return nil, fmt.Errorf("failed to decode tools: %w", err)
	}

	specs := make([]llm.ToolSpec, 0, len(tools))
	for _, t := range tools {
		schema := map[string]any{}
		if len(t.InputSchema) > 0 {
			if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
				return nil, fmt.Errorf("tool %s: invalid input schema: %w", t.Name, err)
			}
		}
		specs = append(specs, llm.ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			Schema:      SchemaFromMap(schema),
		})
	}
	e.logger.Info().Strs("tools", lo.Map(specs, func(s llm.ToolSpec, _ int) string { return s.Name })).Msg("Fetched skill catalog")
	return specs, nil
}

func (e *HTTPExecutor) authorize(req *http.Request) {
	if e.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+e.authToken)
	}
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
}

var _ Executor = (*HTTPExecutor)(nil)
