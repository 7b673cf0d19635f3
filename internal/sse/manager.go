package sse

import (
	"errors"
	"io"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

var (
	// ErrCapacity is returned when the connection table is full.
	ErrCapacity = errors.New("connection capacity reached")

	// ErrConnectionClosed is returned when writing to a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
)

// Kind distinguishes long-lived event streams from per-request tool streams.
type Kind string

const (
	// KindEvents is a GET event stream; it receives broadcasts and heartbeats.
	KindEvents Kind = "events"

	// KindStream is a POST tool stream; only its own request writes to it.
	KindStream Kind = "stream"
)

// Handle is the transport side of a connection. Write must deliver the bytes
// to the peer (flushing as needed) and should give up after a bounded time.
// Close releases the peer; it may be called more than once and concurrently
// with a Write in progress.
type Handle interface {
	Write(p []byte) error
	Close()
}

// Connection is one registered push-channel peer. Writes are serialized so
// events on one connection are delivered in emission order. Activity and
// closed state never wait on a write in progress.
type Connection struct {
	ID        string
	Kind      Kind
	CreatedAt time.Time
	Metadata  map[string]string

	topics map[string]bool
	handle Handle
	now    func() time.Time

	writeMu      sync.Mutex
	lastActivity atomic.Int64 // unix nanoseconds, 0 before the first write
	closed       atomic.Bool
}

// NewConnection creates a connection around handle. An empty id gets a
// generated UUID.
func NewConnection(id string, kind Kind, handle Handle, topics []string) *Connection {
	if id == "" {
		id = uuid.NewString()
	}
	c := &Connection{
		ID:       id,
		Kind:     kind,
		Metadata: map[string]string{},
		topics:   make(map[string]bool, len(topics)),
		handle:   handle,
		now:      time.Now,
	}
	for _, t := range topics {
		if t != "" {
			c.topics[t] = true
		}
	}
	return c
}

// Topics returns the connection's subscriptions in sorted order.
func (c *Connection) Topics() []string {
	return slices.Sorted(maps.Keys(c.topics))
}

// Subscribed reports whether the connection receives events for topic. A
// connection without subscriptions receives every topic.
func (c *Connection) Subscribed(topic string) bool {
	return len(c.topics) == 0 || c.topics[topic]
}

// LastActivity returns the time of the last successful write.
func (c *Connection) LastActivity() time.Time {
	ns := c.lastActivity.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (c *Connection) touch(t time.Time) {
	c.lastActivity.Store(t.UnixNano())
}

// Closed reports whether the connection has been closed.
func (c *Connection) Closed() bool {
	return c.closed.Load()
}

// Send encodes and writes e, waiting for any write in progress. A failed
// write closes the connection.
func (c *Connection) Send(e Event) error {
	data, err := e.Encode()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.send(data)
}

// TrySend writes e unless another write is in progress on c, in which case
// it returns false without writing.
func (c *Connection) TrySend(e Event) (bool, error) {
	data, err := e.Encode()
	if err != nil {
		return false, err
	}

	if !c.writeMu.TryLock() {
		return false, nil
	}
	defer c.writeMu.Unlock()
	if err := c.send(data); err != nil {
		return false, err
	}
	return true, nil
}

// send must be called with writeMu held.
func (c *Connection) send(data []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	if err := c.write(data); err != nil {
		c.Close()
		return err
	}
	c.touch(c.now())
	return nil
}

// write recovers a panicking handle into an error.
func (c *Connection) write(data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("connection write panicked")
		}
	}()
	return c.handle.Write(data)
}

// Close closes the connection without waiting for a write in progress. It
// is idempotent.
func (c *Connection) Close() {
	if c.closed.CompareAndSwap(false, true) {
		c.handle.Close()
	}
}

// Stats summarizes the connection table.
type Stats struct {
	ActiveConnections         int     `json:"activeConnections"`
	TotalConnections          int     `json:"totalConnections"`
	CleanedUpConnections      int     `json:"cleanedUpConnections"`
	AverageConnectionDuration float64 `json:"averageConnectionDuration"` // milliseconds
}

// Manager owns the connection table. All access goes through its lock.
type Manager struct {
	mu             sync.Mutex
	conns          map[string]*Connection
	maxConnections int
	totalAccepted  int
	cleanedUp      int
	closedCount    int
	closedTotal    time.Duration
	now            func() time.Time
	logger         *log.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock sets the time source used for activity and durations.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// WithManagerLogger sets the logger for connection lifecycle events.
func WithManagerLogger(logger *log.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a manager accepting up to maxConnections connections.
func NewManager(maxConnections int, opts ...ManagerOption) *Manager {
	m := &Manager{
		conns:          make(map[string]*Connection),
		maxConnections: maxConnections,
		now:            time.Now,
		logger:         log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Capacity returns the maximum number of concurrent connections.
func (m *Manager) Capacity() int {
	return m.maxConnections
}

// Add registers c. It returns false when the table is full or the ID is
// already registered; c is then left untouched.
func (m *Manager) Add(c *Connection) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.conns) >= m.maxConnections {
		m.logger.Warn("connection rejected", "id", c.ID, "reason", "capacity", "max", m.maxConnections)
		return false
	}
	if _, exists := m.conns[c.ID]; exists {
		return false
	}

	now := m.now()
	c.now = m.now
	c.CreatedAt = now
	c.touch(now)

	m.conns[c.ID] = c
	m.totalAccepted++
	m.logger.Debug("connection added", "id", c.ID, "kind", c.Kind, "active", len(m.conns))
	return true
}

// AddConnection creates and registers an event-stream connection for
// handle under id.
func (m *Manager) AddConnection(id string, handle Handle) bool {
	return m.Add(NewConnection(id, KindEvents, handle, nil))
}

// Get returns the connection registered under id.
func (m *Manager) Get(id string) (*Connection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[id]
	return c, ok
}

// Remove unregisters and closes the connection under id. It returns false
// if no such connection exists.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	c, ok := m.conns[id]
	if ok {
		m.unregister(c)
	}
	m.mu.Unlock()

	if ok {
		c.Close()
		m.logger.Debug("connection removed", "id", id)
	}
	return ok
}

// unregister must be called with m.mu held.
func (m *Manager) unregister(c *Connection) {
	delete(m.conns, c.ID)
	m.closedCount++
	m.closedTotal += m.now().Sub(c.CreatedAt)
}

// All returns a snapshot of every registered connection.
func (m *Manager) All() []*Connection {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *Connection) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}

// Count returns the number of registered connections.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// CleanupIdle removes connections whose last activity is older than
// maxIdle and returns how many were removed. A connection stuck in a write
// does not delay it.
func (m *Manager) CleanupIdle(maxIdle time.Duration) int {
	m.mu.Lock()
	cutoff := m.now().Add(-maxIdle)
	var idle []*Connection
	for _, c := range m.conns {
		if c.LastActivity().Before(cutoff) {
			idle = append(idle, c)
			m.unregister(c)
		}
	}
	m.cleanedUp += len(idle)
	m.mu.Unlock()

	for _, c := range idle {
		c.Close()
		m.logger.Info("evicted idle connection", "id", c.ID, "idle", maxIdle)
	}
	return len(idle)
}

// CloseAll removes and closes every connection.
func (m *Manager) CloseAll() int {
	m.mu.Lock()
	all := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		all = append(all, c)
		m.unregister(c)
	}
	m.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
	return len(all)
}

// Stats returns the current connection statistics. The average duration
// covers connections that have ended.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		ActiveConnections:    len(m.conns),
		TotalConnections:     m.totalAccepted,
		CleanedUpConnections: m.cleanedUp,
	}
	if m.closedCount > 0 {
		s.AverageConnectionDuration = float64(m.closedTotal.Milliseconds()) / float64(m.closedCount)
	}
	return s
}
