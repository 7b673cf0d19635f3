// Package sse implements the server-push transport: the event wire format,
// the connection manager and the HTTP transport with heartbeats and health
// monitoring.
package sse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Event names.
const (
	EventConnected = "connected"
	EventHeartbeat = "heartbeat"
	EventStart     = "start"
	EventProgress  = "progress"
	EventResult    = "result"
	EventError     = "error"
)

// Event is one server-sent event.
type Event struct {
	ID    string
	Name  string
	Data  any
	Retry int // milliseconds, 0 omits the field
}

// Payload is the closed set of values an event may carry.
type Payload interface {
	EventName() string
	validate() error
}

// NewEvent wraps a validated payload into an event.
func NewEvent(p Payload) (Event, error) {
	if err := p.validate(); err != nil {
		return Event{}, fmt.Errorf("invalid %s payload: %w", p.EventName(), err)
	}
	return Event{Name: p.EventName(), Data: p}, nil
}

// MustEvent is NewEvent for payloads built from known-good values.
func MustEvent(p Payload) Event {
	e, err := NewEvent(p)
	if err != nil {
		panic(err)
	}
	return e
}

// Encode serializes e in the text/event-stream format. Data is encoded as
// JSON (strings are written as-is) and split into one data line per line.
func (e Event) Encode() ([]byte, error) {
	if e.Name == "" {
		return nil, errors.New("event name is required")
	}
	if strings.ContainsAny(e.Name, "\r\n") || strings.ContainsAny(e.ID, "\r\n") {
		return nil, errors.New("event name and id must be single-line")
	}

	var data string
	switch v := e.Data.(type) {
	case string:
		data = v
	case []byte:
		data = string(v)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding %s data: %w", e.Name, err)
		}
		data = string(raw)
	}

	var buf bytes.Buffer
	if e.ID != "" {
		fmt.Fprintf(&buf, "id: %s\n", e.ID)
	}
	fmt.Fprintf(&buf, "event: %s\n", e.Name)
	for _, line := range strings.Split(strings.ReplaceAll(data, "\r\n", "\n"), "\n") {
		fmt.Fprintf(&buf, "data: %s\n", line)
	}
	if e.Retry > 0 {
		fmt.Fprintf(&buf, "retry: %d\n", e.Retry)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// WriteEvent encodes e and writes it to w.
func WriteEvent(w io.Writer, e Event) error {
	data, err := e.Encode()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// ConnectedPayload is sent once when an event stream opens.
type ConnectedPayload struct {
	ConnectionID string    `json:"connectionId"`
	Topics       []string  `json:"topics,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

func (ConnectedPayload) EventName() string { return EventConnected }

func (p ConnectedPayload) validate() error {
	if p.ConnectionID == "" {
		return errors.New("connectionId is required")
	}
	return nil
}

// HeartbeatPayload is written to every event stream on each heartbeat tick.
type HeartbeatPayload struct {
	Timestamp       time.Time `json:"timestamp"`
	ConnectionCount int       `json:"connectionCount"`
	ServerUptime    int64     `json:"serverUptime"` // milliseconds
}

func (HeartbeatPayload) EventName() string { return EventHeartbeat }

func (p HeartbeatPayload) validate() error {
	if p.ConnectionCount < 0 || p.ServerUptime < 0 {
		return errors.New("counts must not be negative")
	}
	return nil
}

// StartPayload opens a streamed tool invocation.
type StartPayload struct {
	RequestID string    `json:"requestId"`
	Tool      string    `json:"tool"`
	Timestamp time.Time `json:"timestamp"`
}

func (StartPayload) EventName() string { return EventStart }

func (p StartPayload) validate() error {
	if p.RequestID == "" || p.Tool == "" {
		return errors.New("requestId and tool are required")
	}
	return nil
}

// ProgressPayload reports intermediate progress of a streamed invocation.
type ProgressPayload struct {
	RequestID  string  `json:"requestId"`
	Percentage float64 `json:"percentage"`
	Message    string  `json:"message"`
	Stage      string  `json:"stage,omitempty"`
}

func (ProgressPayload) EventName() string { return EventProgress }

func (p ProgressPayload) validate() error {
	if p.Percentage < 0 || p.Percentage > 100 {
		return fmt.Errorf("percentage %g outside [0, 100]", p.Percentage)
	}
	return nil
}

// ResultPayload carries the successful outcome of a streamed invocation.
type ResultPayload struct {
	RequestID string `json:"requestId"`
	Tool      string `json:"tool"`
	Result    any    `json:"result"`
	Duration  int64  `json:"duration"` // milliseconds
}

func (ResultPayload) EventName() string { return EventResult }

func (p ResultPayload) validate() error {
	if p.Tool == "" {
		return errors.New("tool is required")
	}
	return nil
}

// ErrorPayload carries the failure of a streamed invocation.
type ErrorPayload struct {
	RequestID string `json:"requestId"`
	Tool      string `json:"tool"`
	Code      string `json:"code"`
	Error     string `json:"error"`
}

func (ErrorPayload) EventName() string { return EventError }

func (p ErrorPayload) validate() error {
	if p.Error == "" {
		return errors.New("error message is required")
	}
	return nil
}
