// Package streaming serves tool invocations over the push transport. Each
// POST request is validated, then answered with a start event, zero or more
// progress events and exactly one result or error event.
package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/Benny93/mermaid-mcp/internal/sse"
	"github.com/Benny93/mermaid-mcp/internal/tools"
)

// DefaultRequestTimeout bounds one streamed tool invocation.
const DefaultRequestTimeout = 60 * time.Second

// Error codes carried by error events.
const (
	CodeToolError = "tool_error"
	CodeTimeout   = "timeout"
	CodeCancelled = "cancelled"
	CodeInternal  = "internal_error"
)

// Routes maps each streaming path to the tool it invokes.
var Routes = map[string]string{
	"/api/stream/validate":  tools.ValidateMermaid,
	"/api/stream/optimize":  tools.OptimizeDiagram,
	"/api/stream/templates": tools.GetDiagramTemplates,
	"/api/stream/convert":   tools.ConvertDiagramFormat,
	"/api/stream/analyze":   tools.AnalyzeDiagram,
}

// Handlers bridges the tool registry and the push transport.
type Handlers struct {
	registry  *tools.Registry
	transport *sse.Transport
	timeout   time.Duration
	logger    *log.Logger
	now       func() time.Time
}

// Option configures Handlers.
type Option func(*Handlers)

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(h *Handlers) {
		h.logger = logger
	}
}

// WithTimeout bounds each invocation. Zero or negative disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(h *Handlers) {
		h.timeout = d
	}
}

// New creates streaming handlers for registry on transport.
func New(registry *tools.Registry, transport *sse.Transport, opts ...Option) *Handlers {
	h := &Handlers{
		registry:  registry,
		transport: transport,
		timeout:   DefaultRequestTimeout,
		logger:    log.New(io.Discard),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts every streaming route on the transport.
func (h *Handlers) Register() {
	for path, tool := range Routes {
		h.transport.HandleStream(path, h.Handler(tool))
	}
}

// Handler returns the HTTP handler streaming the named tool.
func (h *Handlers) Handler(tool string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		args, err := decodeArgs(r.Body)
		if err != nil {
			sse.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		args, err = h.registry.Validate(tool, args)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, tools.ErrUnknownTool) {
				status = http.StatusNotFound
			}
			sse.WriteError(w, status, err.Error())
			return
		}

		stream, err := h.transport.OpenStream(w, r)
		if err != nil {
			h.logger.Warn("stream rejected", "tool", tool, "err", err)
			sse.WriteError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		defer stream.Close()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		h.run(stream, requestID, tool, args)
	}
}

// run invokes the tool and emits its events on stream.
func (h *Handlers) run(stream *sse.Stream, requestID, tool string, args map[string]any) {
	e := &emitter{stream: stream, requestID: requestID, tool: tool, logger: h.logger}
	start := h.now()

	e.emit(sse.StartPayload{RequestID: requestID, Tool: tool, Timestamp: start})

	ctx := stream.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := h.registry.Call(ctx, tool, args, e.progress)
		done <- outcome{result, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			e.finish(sse.ErrorPayload{RequestID: requestID, Tool: tool, Code: errorCode(out.err), Error: out.err.Error()})
			return
		}
		e.finish(sse.ResultPayload{
			RequestID: requestID,
			Tool:      tool,
			Result:    out.result,
			Duration:  h.now().Sub(start).Milliseconds(),
		})
	case <-ctx.Done():
		code, msg := CodeCancelled, "request cancelled"
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			code, msg = CodeTimeout, fmt.Sprintf("tool %s exceeded %s", tool, h.timeout)
		}
		e.finish(sse.ErrorPayload{RequestID: requestID, Tool: tool, Code: code, Error: msg})
	}
}

func errorCode(err error) string {
	var te *tools.ToolError
	if errors.As(err, &te) && !te.Panic {
		return CodeToolError
	}
	return CodeInternal
}

// emitter serializes the events of one request. Once the terminal event is
// written every later emission is dropped.
type emitter struct {
	mu        sync.Mutex
	finished  bool
	stream    *sse.Stream
	requestID string
	tool      string
	logger    *log.Logger
}

func (e *emitter) progress(percentage float64, message, stage string) {
	e.emit(sse.ProgressPayload{
		RequestID:  e.requestID,
		Percentage: min(max(percentage, 0), 100),
		Message:    message,
		Stage:      stage,
	})
}

func (e *emitter) emit(p sse.Payload) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.finished {
		e.send(p)
	}
}

func (e *emitter) finish(p sse.Payload) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.finished {
		e.send(p)
		e.finished = true
	}
}

// send must be called with e.mu held. Write failures mean the client went
// away; they are logged and swallowed.
func (e *emitter) send(p sse.Payload) {
	ev, err := sse.NewEvent(p)
	if err != nil {
		e.logger.Error("dropping invalid event", "tool", e.tool, "event", p.EventName(), "err", err)
		return
	}
	ev.ID = e.requestID
	if err := e.stream.Send(ev); err != nil {
		e.logger.Debug("stream write failed", "id", e.stream.ID, "tool", e.tool, "event", ev.Name, "err", err)
	}
}

// decodeArgs reads a JSON object body. An empty body is an empty object.
func decodeArgs(body io.Reader) (map[string]any, error) {
	var args map[string]any
	dec := json.NewDecoder(body)
	if err := dec.Decode(&args); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	if dec.More() {
		return nil, errors.New("invalid request body: trailing data")
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
