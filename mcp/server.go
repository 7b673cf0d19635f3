// Package mcp provides the MCP (Model Context Protocol) server: a
// newline-delimited JSON-RPC 2.0 transport over stdio that exposes the tool
// registry and a few read-only resources.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Benny93/mermaid-mcp/internal/diagram"
	"github.com/Benny93/mermaid-mcp/internal/storage"
	"github.com/Benny93/mermaid-mcp/internal/tools"
	"github.com/Benny93/mermaid-mcp/internal/validator"
)

// ProtocolVersion is the MCP protocol revision reported by initialize.
const ProtocolVersion = "2024-11-05"

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// maxLineSize bounds one JSON-RPC message.
const maxLineSize = 10 << 20

// Server represents the MCP server.
type Server struct {
	registry  *tools.Registry
	validator *validator.Validator
	templates storage.TemplateStore
	info      *mcp.Implementation
	logger    *log.Logger
	running   atomic.Bool
}

// Resource represents an MCP resource.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithVersion sets the version reported in serverInfo.
func WithVersion(version string) Option {
	return func(s *Server) {
		s.info.Version = version
	}
}

// NewServer creates a new MCP server.
func NewServer(registry *tools.Registry, v *validator.Validator, templates storage.TemplateStore, opts ...Option) *Server {
	s := &Server{
		registry:  registry,
		validator: v,
		templates: templates,
		info: &mcp.Implementation{
			Name:    "mermaid-mcp",
			Version: "0.1.0",
		},
		logger: log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Running reports whether Run is serving requests.
func (s *Server) Running() bool {
	return s.running.Load()
}

// ListResources returns all registered resources.
func (s *Server) ListResources() []Resource {
	return []Resource{
		{
			URI:         "mermaid://diagram-types",
			Name:        "Diagram Types",
			Description: "Supported diagram types, their declaration keywords and validation strategy",
			MimeType:    "text/plain",
		},
		{
			URI:         "mermaid://templates",
			Name:        "Template Catalog",
			Description: "Every available diagram template",
			MimeType:    "text/plain",
		},
	}
}

// ReadResource reads a resource by URI.
func (s *Server) ReadResource(ctx context.Context, uri string) (string, error) {
	switch uri {
	case "mermaid://diagram-types":
		return s.diagramTypes(), nil
	case "mermaid://templates":
		return s.templateCatalog(ctx)
	default:
		return "", fmt.Errorf("unknown resource: %s", uri)
	}
}

func (s *Server) diagramTypes() string {
	var sb strings.Builder
	sb.WriteString("Supported diagram types:\n\n")
	for _, t := range diagram.Types() {
		fmt.Fprintf(&sb, "- %s (`%s`), validated by %s\n", t, t.Keyword(), s.validator.StrategyFor(t).Name())
	}
	return sb.String()
}

func (s *Server) templateCatalog(ctx context.Context) (string, error) {
	all, err := s.templates.List(ctx)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d templates:\n\n", len(all))
	for _, t := range all {
		fmt.Fprintf(&sb, "- **%s** `%s` (%s, %s): %s\n", t.Name, t.ID, t.DiagramType, t.Category, t.Description)
	}
	sb.WriteString("\nNext: Use `get_diagram_templates` to fetch template code.")
	return sb.String(), nil
}

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// isNotification reports whether the request carries no id and so expects
// no response.
func (r *request) isNotification() bool {
	return len(r.ID) == 0
}

// Response is one JSON-RPC response message.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error member of a failed response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

var nullID = json.RawMessage("null")

// Run starts the MCP server with stdio transport. It returns nil when stdin
// is exhausted and ctx.Err() when ctx is cancelled.
func (s *Server) Run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	if stdin == nil || stdout == nil {
		return fmt.Errorf("stdin and stdout must not be nil")
	}

	s.running.Store(true)
	defer s.running.Store(false)

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(stdin)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	// Note: Do NOT use SetIndent - MCP protocol requires compact JSON (one line per message)
	encoder := json.NewEncoder(stdout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case line := <-lines:
			if len(strings.TrimSpace(string(line))) == 0 {
				continue
			}
			resp := s.HandleMessage(ctx, line)
			if resp == nil {
				continue
			}
			if err := encoder.Encode(resp); err != nil {
				return fmt.Errorf("writing response: %w", err)
			}
		}
	}
}

// HandleMessage processes one raw JSON-RPC message and returns the response
// to send, or nil for notifications.
func (s *Server) HandleMessage(ctx context.Context, raw []byte) *Response {
	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse(nullID, CodeParseError, "Parse error: "+err.Error())
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		id := req.ID
		if len(id) == 0 {
			id = nullID
		}
		return errorResponse(id, CodeInvalidRequest, "Invalid request")
	}
	if req.isNotification() {
		s.logger.Debug("notification", "method", req.Method)
		return nil
	}
	return s.handleRequest(ctx, &req)
}

func (s *Server) handleRequest(ctx context.Context, req *request) *Response {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req.ID)
	case "ping":
		return resultResponse(req.ID, struct{}{})
	case "tools/list":
		return s.handleToolsList(req.ID)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "resources/list":
		return resultResponse(req.ID, map[string]any{"resources": s.ListResources()})
	case "resources/read":
		return s.handleResourcesRead(ctx, req)
	default:
		return errorResponse(req.ID, CodeMethodNotFound, "Method not found: "+req.Method)
	}
}

func (s *Server) handleInitialize(id json.RawMessage) *Response {
	return resultResponse(id, map[string]any{
		"protocolVersion": ProtocolVersion,
		"serverInfo":      s.info,
		"capabilities": map[string]any{
			"tools": map[string]any{
				"listChanged": false,
			},
			"resources": map[string]any{
				"listChanged": false,
			},
		},
	})
}

func (s *Server) handleToolsList(id json.RawMessage) *Response {
	return resultResponse(id, map[string]any{"tools": s.registry.List()})
}

type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (s *Server) handleToolsCall(ctx context.Context, req *request) *Response {
	var params callParams
	if len(req.Params) == 0 {
		return errorResponse(req.ID, CodeInvalidParams, "Invalid params: missing params")
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "Invalid params: "+err.Error())
	}
	if params.Name == "" {
		return errorResponse(req.ID, CodeInvalidParams, "Invalid params: missing tool name")
	}

	result, err := s.registry.Call(ctx, params.Name, params.Arguments, nil)
	var pe *tools.ParamsError
	var te *tools.ToolError
	switch {
	case errors.Is(err, tools.ErrUnknownTool):
		return errorResponse(req.ID, CodeMethodNotFound, "Unknown tool: "+params.Name)
	case errors.As(err, &pe):
		return errorResponse(req.ID, CodeInvalidParams, pe.Error())
	case errors.As(err, &te):
		return resultResponse(req.ID, toolErrorResult(te))
	case err != nil:
		s.logger.Error("tool call failed", "tool", params.Name, "err", err)
		return errorResponse(req.ID, CodeInternalError, "Internal error")
	}

	payload, err := json.Marshal(result)
	if err != nil {
		s.logger.Error("encoding tool result", "tool", params.Name, "err", err)
		return errorResponse(req.ID, CodeInternalError, "Internal error")
	}
	return resultResponse(req.ID, &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: string(payload)}},
		StructuredContent: result,
	})
}

// ToolFailure is the payload of a failed tool call.
type ToolFailure struct {
	Tool  string `json:"tool"`
	Error string `json:"error"`
}

func toolErrorResult(te *tools.ToolError) *mcp.CallToolResult {
	failure := ToolFailure{Tool: te.Tool, Error: te.Message}
	payload, _ := json.Marshal(failure)
	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: string(payload)}},
		StructuredContent: failure,
		IsError:           true,
	}
}

type readParams struct {
	URI string `json:"uri"`
}

func (s *Server) handleResourcesRead(ctx context.Context, req *request) *Response {
	var params readParams
	if len(req.Params) == 0 || json.Unmarshal(req.Params, &params) != nil || params.URI == "" {
		return errorResponse(req.ID, CodeInvalidParams, "Invalid params")
	}

	content, err := s.ReadResource(ctx, params.URI)
	if err != nil {
		return errorResponse(req.ID, CodeInvalidParams, err.Error())
	}

	return resultResponse(req.ID, map[string]any{
		"contents": []map[string]any{
			{
				"uri":      params.URI,
				"mimeType": "text/plain",
				"text":     content,
			},
		},
	})
}

// Helper functions

func resultResponse(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Result: result}
}

func errorResponse(id json.RawMessage, code int, message string) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	}
}
