package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// ErrNotAccepting is returned when a stream is opened on a stopped transport.
var ErrNotAccepting = errors.New("transport is not accepting connections")

const (
	// highWaterFraction of capacity triggers a health warning.
	highWaterFraction = 0.8

	// heartbeatErrorThreshold of accumulated heartbeat failures triggers a
	// health warning.
	heartbeatErrorThreshold = 10

	maxRequestBody = 10 << 20
)

// Config holds the push transport settings.
type Config struct {
	Host              string
	Port              int
	EventPath         string
	CORSOrigins       []string
	CORSCredentials   bool
	HeartbeatEnabled  bool
	HeartbeatInterval time.Duration
	IdleTimeout       time.Duration
	HealthInterval    time.Duration
	WriteTimeout      time.Duration // per event write; 0 disables the deadline
	MaxConnections    int
	Retry             time.Duration // reconnect hint sent with the connected event
}

// DefaultConfig returns the transport defaults.
func DefaultConfig() Config {
	return Config{
		Host:              "127.0.0.1",
		Port:              3001,
		EventPath:         "/events",
		CORSOrigins:       []string{"*"},
		HeartbeatEnabled:  true,
		HeartbeatInterval: 30 * time.Second,
		IdleTimeout:       5 * time.Minute,
		HealthInterval:    30 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxConnections:    100,
		Retry:             3 * time.Second,
	}
}

// Ticker is the subset of time.Ticker the transport timers use.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

// TickerFactory creates a ticker firing every d.
type TickerFactory func(d time.Duration) Ticker

type timeTicker struct {
	*time.Ticker
}

func (t timeTicker) Chan() <-chan time.Time { return t.C }

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{time.NewTicker(d)}
}

// HeartbeatStatus reports the heartbeat timer state.
type HeartbeatStatus struct {
	Enabled  bool       `json:"enabled"`
	Interval int64      `json:"interval"` // milliseconds
	Sent     int        `json:"sent"`
	LastSent *time.Time `json:"lastSent,omitempty"`
	Errors   int        `json:"errors"`
}

// HealthStatus reports the health monitor state.
type HealthStatus struct {
	ConnectionStats Stats    `json:"connectionStats"`
	Uptime          int64    `json:"uptime"` // milliseconds
	Warnings        []string `json:"warnings,omitempty"`
}

// Status is the snapshot served on /health.
type Status struct {
	IsRunning       bool            `json:"isRunning"`
	ConnectionCount int             `json:"connectionCount"`
	Port            int             `json:"port"`
	Heartbeat       HeartbeatStatus `json:"heartbeat"`
	Health          HealthStatus    `json:"health"`
}

// Transport is the HTTP server-push transport. It owns the listener, the
// connection manager and the heartbeat and health timers.
type Transport struct {
	cfg       Config
	manager   *Manager
	router    chi.Router
	logger    *log.Logger
	newTicker TickerFactory
	now       func() time.Time

	mu       sync.Mutex // guards server, listener and cancel
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
	loops    sync.WaitGroup
	pending  sync.WaitGroup // heartbeat writes still in flight

	startedAt atomic.Int64 // unix nanoseconds
	port      atomic.Int64
	running   atomic.Bool
	accepting atomic.Bool

	counters struct {
		sync.Mutex
		sent     int
		lastSent time.Time
		errors   int
		warnings []string
	}
}

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the transport logger.
func WithLogger(logger *log.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithTicker replaces the timer source of the heartbeat and health loops.
func WithTicker(factory TickerFactory) Option {
	return func(t *Transport) {
		t.newTicker = factory
	}
}

// WithTransportClock sets the time source for the transport and its manager.
func WithTransportClock(now func() time.Time) Option {
	return func(t *Transport) {
		t.now = now
	}
}

// NewTransport creates a transport. Routes for tool streams must be added
// with HandleStream before Start.
func NewTransport(cfg Config, opts ...Option) *Transport {
	t := &Transport{
		cfg:       cfg,
		logger:    log.New(io.Discard),
		newTicker: newTimeTicker,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.manager = NewManager(cfg.MaxConnections, WithClock(t.now), WithManagerLogger(t.logger))
	t.startedAt.Store(t.now().UnixNano())
	t.port.Store(int64(cfg.Port))
	t.accepting.Store(true)

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(cors{origins: cfg.CORSOrigins, credentials: cfg.CORSCredentials}.handler)
	r.Use(chimiddleware.RequestSize(maxRequestBody))
	r.Get("/health", t.handleHealth)
	r.Get(cfg.EventPath, t.handleEvents)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not found: "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed: "+r.Method)
	})
	t.router = r
	return t
}

// Manager returns the connection manager.
func (t *Transport) Manager() *Manager {
	return t.manager
}

// Handler returns the HTTP handler serving every transport route.
func (t *Transport) Handler() http.Handler {
	return t.router
}

// HandleStream registers a POST route serving tool streams.
func (t *Transport) HandleStream(path string, h http.HandlerFunc) {
	t.router.Post(path, h)
}

// Addr returns the listening address once started.
func (t *Transport) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return ""
	}
	return t.listener.Addr().String()
}

// Running reports whether the transport is serving.
func (t *Transport) Running() bool {
	return t.running.Load()
}

// Start binds the listener and starts serving along with the heartbeat and
// health loops. The loops stop when ctx is done or Stop is called.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running.Load() {
		return errors.New("transport already running")
	}

	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	t.listener = ln
	t.server = &http.Server{
		Handler:           t.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		t.port.Store(int64(tcp.Port))
	}
	t.startedAt.Store(t.now().UnixNano())
	t.accepting.Store(true)
	t.running.Store(true)

	loopCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.logger.Error("push transport stopped serving", "err", err)
		}
	}(t.server)

	if t.cfg.HeartbeatEnabled {
		t.loops.Add(1)
		go t.heartbeatLoop(loopCtx)
	}
	t.loops.Add(1)
	go t.healthLoop(loopCtx)

	t.logger.Info("push transport started", "addr", ln.Addr().String(), "events", t.cfg.EventPath, "maxConnections", t.cfg.MaxConnections)
	return nil
}

// Stop stops accepting connections, closes every open connection and shuts
// the HTTP server down. It is safe to call more than once.
func (t *Transport) Stop(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.accepting.Store(false)
	if !t.running.Load() {
		return nil
	}

	t.cancel()
	t.loops.Wait()

	closed := t.manager.CloseAll()
	err := waitContext(ctx, &t.pending)
	if err == nil {
		err = t.server.Shutdown(ctx)
	} else {
		_ = t.server.Close()
	}
	t.running.Store(false)
	t.listener = nil

	t.logger.Info("push transport stopped", "closedConnections", closed)
	if err != nil {
		return fmt.Errorf("shutting down push transport: %w", err)
	}
	return nil
}

// waitContext waits for wg or until ctx is done.
func waitContext(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a snapshot of the transport state.
func (t *Transport) Status() Status {
	t.counters.Lock()
	hb := HeartbeatStatus{
		Enabled:  t.cfg.HeartbeatEnabled,
		Interval: t.cfg.HeartbeatInterval.Milliseconds(),
		Sent:     t.counters.sent,
		Errors:   t.counters.errors,
	}
	if !t.counters.lastSent.IsZero() {
		last := t.counters.lastSent
		hb.LastSent = &last
	}
	warnings := append([]string(nil), t.counters.warnings...)
	t.counters.Unlock()

	return Status{
		IsRunning:       t.running.Load(),
		ConnectionCount: t.manager.Count(),
		Port:            int(t.port.Load()),
		Heartbeat:       hb,
		Health: HealthStatus{
			ConnectionStats: t.manager.Stats(),
			Uptime:          t.uptime(),
			Warnings:        warnings,
		},
	}
}

// Broadcast writes e to every event stream and returns how many writes
// succeeded. Failing connections are removed.
func (t *Transport) Broadcast(e Event) int {
	return t.deliver(t.eventStreams(""), e)
}

// Publish writes e to the event streams subscribed to topic.
func (t *Transport) Publish(topic string, e Event) int {
	return t.deliver(t.eventStreams(topic), e)
}

// SendToConnection writes e to one connection. A failed write removes the
// connection; the failure is logged and reported as false.
func (t *Transport) SendToConnection(id string, e Event) bool {
	c, ok := t.manager.Get(id)
	if !ok {
		t.logger.Debug("send to unknown connection", "id", id)
		return false
	}
	if err := c.Send(e); err != nil {
		t.logger.Warn("send failed, removing connection", "id", id, "err", err)
		t.manager.Remove(id)
		return false
	}
	return true
}

func (t *Transport) uptime() int64 {
	return max(t.now().Sub(time.Unix(0, t.startedAt.Load())).Milliseconds(), 0)
}

// eventStreams snapshots the GET event streams, filtered by topic when set.
func (t *Transport) eventStreams(topic string) []*Connection {
	var out []*Connection
	for _, c := range t.manager.All() {
		if c.Kind != KindEvents {
			continue
		}
		if topic != "" && !c.Subscribed(topic) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// deliver writes e to every connection concurrently and returns the number
// of successful writes. A slow peer delays only its own write.
func (t *Transport) deliver(conns []*Connection, e Event) int {
	var (
		wg        sync.WaitGroup
		delivered atomic.Int64
	)
	for _, c := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Send(e); err != nil {
				t.logger.Warn("write failed, removing connection", "id", c.ID, "event", e.Name, "err", err)
				t.manager.Remove(c.ID)
				return
			}
			delivered.Add(1)
		}()
	}
	wg.Wait()
	return int(delivered.Load())
}

func (t *Transport) heartbeatLoop(ctx context.Context) {
	defer t.loops.Done()

	ticker := t.newTicker(t.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			t.sendHeartbeat()
		}
	}
}

func (t *Transport) sendHeartbeat() {
	conns := t.eventStreams("")
	now := t.now()
	ev := MustEvent(HeartbeatPayload{
		Timestamp:       now,
		ConnectionCount: t.manager.Count(),
		ServerUptime:    t.uptime(),
	})

	t.counters.Lock()
	t.counters.sent++
	t.counters.lastSent = now
	t.counters.Unlock()

	// Each write runs on its own goroutine and the loop does not wait for
	// them. A connection still busy with an earlier write is skipped.
	for _, c := range conns {
		t.pending.Add(1)
		go func() {
			defer t.pending.Done()
			sent, err := c.TrySend(ev)
			switch {
			case err != nil:
				t.logger.Warn("heartbeat failed, removing connection", "id", c.ID, "err", err)
				t.manager.Remove(c.ID)
				t.counters.Lock()
				t.counters.errors++
				t.counters.Unlock()
			case !sent:
				t.logger.Debug("heartbeat skipped, write in progress", "id", c.ID)
			}
		}()
	}
}

func (t *Transport) healthLoop(ctx context.Context) {
	defer t.loops.Done()

	ticker := t.newTicker(t.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			t.checkHealth()
		}
	}
}

// checkHealth evicts idle connections and recomputes the health warnings.
func (t *Transport) checkHealth() {
	if evicted := t.manager.CleanupIdle(t.cfg.IdleTimeout); evicted > 0 {
		t.logger.Info("idle connections evicted", "count", evicted)
	}

	var warnings []string
	active, capacity := t.manager.Count(), t.manager.Capacity()
	if float64(active) > highWaterFraction*float64(capacity) {
		warnings = append(warnings, fmt.Sprintf("connection count %d exceeds %.0f%% of capacity %d", active, highWaterFraction*100, capacity))
	}

	t.counters.Lock()
	if t.counters.errors > heartbeatErrorThreshold {
		warnings = append(warnings, fmt.Sprintf("%d heartbeat errors", t.counters.errors))
	}
	t.counters.warnings = warnings
	t.counters.Unlock()

	for _, w := range warnings {
		t.logger.Warn("push transport health", "warning", w)
	}
}

func (t *Transport) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, t.Status())
}

func (t *Transport) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !t.accepting.Load() {
		writeJSONError(w, http.StatusServiceUnavailable, ErrNotAccepting.Error())
		return
	}

	h := newHTTPHandle(w, t.cfg.WriteTimeout)
	conn := NewConnection("", KindEvents, h, parseTopics(r.URL.Query().Get("topics")))
	conn.Metadata["remoteAddr"] = r.RemoteAddr
	conn.Metadata["userAgent"] = r.UserAgent()

	setStreamHeaders(w)
	if !t.manager.Add(conn) {
		clearStreamHeaders(w)
		writeJSONError(w, http.StatusServiceUnavailable, ErrCapacity.Error())
		return
	}
	defer t.manager.Remove(conn.ID)

	t.logger.Info("event stream opened", "id", conn.ID, "topics", conn.Topics(), "remote", r.RemoteAddr)

	ev := MustEvent(ConnectedPayload{ConnectionID: conn.ID, Topics: conn.Topics(), Timestamp: t.now()})
	ev.Retry = int(t.cfg.Retry.Milliseconds())
	if err := conn.Send(ev); err != nil {
		t.logger.Warn("event stream failed on open", "id", conn.ID, "err", err)
		return
	}

	select {
	case <-r.Context().Done():
		t.logger.Debug("client disconnected", "id", conn.ID)
	case <-h.done:
	}
}

// Stream is a registered per-request tool stream. Its context is cancelled
// when the client disconnects or the transport closes the connection.
type Stream struct {
	*Connection

	ctx     context.Context
	release func()
}

// Context returns the stream context.
func (s *Stream) Context() context.Context {
	return s.ctx
}

// Close unregisters the stream. It is safe to call more than once.
func (s *Stream) Close() {
	s.release()
}

// OpenStream registers a tool stream on w, counted against the connection
// capacity, and writes the streaming response headers. On ErrCapacity or
// ErrNotAccepting nothing has been written to w.
func (t *Transport) OpenStream(w http.ResponseWriter, r *http.Request) (*Stream, error) {
	if !t.accepting.Load() {
		return nil, ErrNotAccepting
	}

	h := newHTTPHandle(w, t.cfg.WriteTimeout)
	conn := NewConnection("", KindStream, h, nil)
	conn.Metadata["path"] = r.URL.Path

	setStreamHeaders(w)
	if !t.manager.Add(conn) {
		clearStreamHeaders(w)
		return nil, ErrCapacity
	}

	w.WriteHeader(http.StatusOK)
	_ = h.rc.Flush()

	ctx, cancel := context.WithCancel(r.Context())
	go func() {
		select {
		case <-h.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	var once sync.Once
	return &Stream{
		Connection: conn,
		ctx:        ctx,
		release: func() {
			once.Do(func() {
				t.manager.Remove(conn.ID)
				cancel()
			})
		},
	}, nil
}

// httpHandle writes events to an HTTP response and flushes each one. Each
// write gets its own deadline so a peer that stops reading fails the write
// instead of holding it forever.
type httpHandle struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	timeout time.Duration
	done    chan struct{}
	once    sync.Once
}

func newHTTPHandle(w http.ResponseWriter, timeout time.Duration) *httpHandle {
	return &httpHandle{
		w:       w,
		rc:      http.NewResponseController(w),
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

func (h *httpHandle) Write(p []byte) error {
	select {
	case <-h.done:
		return ErrConnectionClosed
	default:
	}
	if h.timeout > 0 {
		// Recorders and some wrappers do not support deadlines.
		if err := h.rc.SetWriteDeadline(time.Now().Add(h.timeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
	}
	if _, err := h.w.Write(p); err != nil {
		return err
	}
	return h.rc.Flush()
}

func (h *httpHandle) Close() {
	h.once.Do(func() { close(h.done) })
}

var streamHeaders = map[string]string{
	"Content-Type":      "text/event-stream",
	"Cache-Control":     "no-cache",
	"Connection":        "keep-alive",
	"X-Accel-Buffering": "no",
}

func setStreamHeaders(w http.ResponseWriter) {
	for k, v := range streamHeaders {
		w.Header().Set(k, v)
	}
}

func clearStreamHeaders(w http.ResponseWriter) {
	for k := range streamHeaders {
		w.Header().Del(k)
	}
}

func parseTopics(raw string) []string {
	var topics []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// WriteError writes a JSON error body. Streaming handlers use it for
// failures detected before a stream is opened.
func WriteError(w http.ResponseWriter, status int, message string) {
	writeJSONError(w, status, message)
}
