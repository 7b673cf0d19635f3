// Package tools is the tool dispatcher shared by the JSON-RPC and streaming
// transports. Every tool has a JSON schema for its arguments; calls are
// validated against it before the handler runs, and handler failures are
// normalized into ToolError values.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/google/jsonschema-go/jsonschema"
)

// ErrUnknownTool is returned when a call names a tool that is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// ParamsError reports arguments rejected by a tool's input schema.
type ParamsError struct {
	Tool string
	Err  error
}

func (e *ParamsError) Error() string {
	return fmt.Sprintf("invalid params for %s: %v", e.Tool, e.Err)
}

func (e *ParamsError) Unwrap() error { return e.Err }

// ToolError reports a handler failure or a recovered handler panic.
type ToolError struct {
	Tool    string
	Message string
	Panic   bool
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Message)
}

// ProgressFunc receives progress reports from a running tool. percentage is
// in [0, 100]; stage may be empty.
type ProgressFunc func(percentage float64, message, stage string)

// Handler implements a tool. args have already been validated and carry
// schema defaults. progress is never nil.
type Handler func(ctx context.Context, args map[string]any, progress ProgressFunc) (any, error)

// Tool is a registered tool.
type Tool struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"inputSchema"`

	resolved *jsonschema.Resolved
	handler  Handler
}

// Registry maps tool names to their schema and handler. It is immutable
// after construction and safe for concurrent use.
type Registry struct {
	tools  map[string]*Tool
	logger *log.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for recovered panics and failures.
func WithLogger(logger *log.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

func newRegistry(opts ...Option) *Registry {
	r := &Registry{
		tools:  make(map[string]*Tool),
		logger: log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// register resolves the tool's schema and adds it to the registry.
func (r *Registry) register(name, description string, schema *jsonschema.Schema, handler Handler) error {
	resolved, err := schema.Resolve(&jsonschema.ResolveOptions{ValidateDefaults: true})
	if err != nil {
		return fmt.Errorf("resolving schema for %s: %w", name, err)
	}
	r.tools[name] = &Tool{
		Name:        name,
		Description: description,
		InputSchema: schema,
		resolved:    resolved,
		handler:     handler,
	}
	return nil
}

// List returns every registered tool ordered by name.
func (r *Registry) List() []Tool {
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the registered tool names in order.
func (r *Registry) Names() []string {
	tools := r.List()
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names
}

// Has reports whether name is a registered tool.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Validate checks args against the input schema of the named tool and
// returns a copy carrying schema defaults.
func (r *Registry) Validate(name string, args map[string]any) (map[string]any, error) {
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	if args == nil {
		args = map[string]any{}
	}
	if err := tool.resolved.Validate(args); err != nil {
		return nil, &ParamsError{Tool: name, Err: err}
	}

	withDefaults, err := applyDefaults(tool.InputSchema, args)
	if err != nil {
		return nil, &ParamsError{Tool: name, Err: err}
	}
	return withDefaults, nil
}

// Call validates args and runs the named tool. It returns ErrUnknownTool,
// a *ParamsError or a *ToolError on failure; a panic inside the handler is
// recovered into a *ToolError.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any, progress ProgressFunc) (result any, err error) {
	validated, err := r.Validate(name, args)
	if err != nil {
		return nil, err
	}
	if progress == nil {
		progress = func(float64, string, string) {}
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool panicked", "tool", name, "panic", rec, "stack", string(debug.Stack()))
			result = nil
			err = &ToolError{Tool: name, Message: fmt.Sprintf("internal error: %v", rec), Panic: true}
		}
	}()

	result, err = r.tools[name].handler(ctx, validated, progress)
	if err != nil {
		r.logger.Warn("tool failed", "tool", name, "err", err)
		return nil, &ToolError{Tool: name, Message: err.Error()}
	}
	return result, nil
}

// applyDefaults copies args and fills in top-level property defaults.
func applyDefaults(schema *jsonschema.Schema, args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	for name, prop := range schema.Properties {
		if _, ok := out[name]; ok || len(prop.Default) == 0 {
			continue
		}
		var v any
		if err := json.Unmarshal(prop.Default, &v); err != nil {
			return nil, fmt.Errorf("default for %s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

// decode converts validated arguments into a typed input struct.
func decode(args map[string]any, v any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
