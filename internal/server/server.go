// Package server is the process façade: it wires the template store, the
// tool registry, the JSON-RPC transport and the push transport, runs them
// together and shuts them down in order.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/Benny93/mermaid-mcp/internal/config"
	"github.com/Benny93/mermaid-mcp/internal/logging"
	"github.com/Benny93/mermaid-mcp/internal/optimizer"
	"github.com/Benny93/mermaid-mcp/internal/sse"
	"github.com/Benny93/mermaid-mcp/internal/storage"
	"github.com/Benny93/mermaid-mcp/internal/streaming"
	"github.com/Benny93/mermaid-mcp/internal/templates"
	"github.com/Benny93/mermaid-mcp/internal/tools"
	"github.com/Benny93/mermaid-mcp/internal/validator"
	"github.com/Benny93/mermaid-mcp/mcp"
)

// TopicTemplates is the subscription topic of template reload events.
const TopicTemplates = "templates"

// shutdownTimeout bounds the graceful stop of the push transport.
const shutdownTimeout = 10 * time.Second

// Server owns both transports and their shared services.
type Server struct {
	cfg       config.Config
	logger    *log.Logger
	store     storage.TemplateStore
	registry  *tools.Registry
	rpc       *mcp.Server
	transport *sse.Transport
	watcher   *templates.Watcher

	rpcCtx    context.Context
	cancelRPC context.CancelFunc
	done      chan struct{}
	stopOnce  sync.Once
	stopErr   error
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the root logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithStore replaces the Badger template store.
func WithStore(store storage.TemplateStore) Option {
	return func(s *Server) {
		s.store = store
	}
}

// New builds every component from cfg and loads the template catalog.
func New(ctx context.Context, cfg config.Config, version string, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:    cfg,
		logger: log.New(io.Discard),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.rpcCtx, s.cancelRPC = context.WithCancel(context.Background())

	if s.store == nil {
		store := storage.NewBadgerStore()
		if err := store.Initialize(cfg.Templates.DBPath, false); err != nil {
			return nil, fmt.Errorf("initializing template store: %w", err)
		}
		s.store = store
	}

	count, err := templates.Load(ctx, s.store, cfg.Templates.Dir)
	if err != nil {
		_ = s.store.Close()
		return nil, fmt.Errorf("loading templates: %w", err)
	}
	s.logger.Info("templates loaded", "count", count, "dir", cfg.Templates.Dir)

	v := validator.New(validator.WithLogger(logging.Component(s.logger, "validator")))
	s.registry, err = tools.New(tools.Services{
		Validator: v,
		Optimizer: optimizer.New(optimizer.WithLogger(logging.Component(s.logger, "optimizer"))),
		Templates: s.store,
	}, tools.WithLogger(logging.Component(s.logger, "tools")))
	if err != nil {
		_ = s.store.Close()
		return nil, fmt.Errorf("creating tool registry: %w", err)
	}

	s.rpc = mcp.NewServer(s.registry, v, s.store,
		mcp.WithLogger(logging.Component(s.logger, "rpc")),
		mcp.WithVersion(version),
	)

	if cfg.SSE.Enabled {
		s.transport = sse.NewTransport(cfg.SSE.Transport(), sse.WithLogger(logging.Component(s.logger, "sse")))
		streaming.New(s.registry, s.transport,
			streaming.WithLogger(logging.Component(s.logger, "streaming")),
			streaming.WithTimeout(cfg.SSE.RequestTimeout),
		).Register()
	}

	if cfg.Templates.Watch {
		s.watcher = templates.NewWatcher(cfg.Templates.Dir, s.store,
			templates.WithWatchLogger(logging.Component(s.logger, "templates")),
			templates.WithReloadHook(s.templatesReloaded),
		)
	}
	return s, nil
}

// Registry returns the tool registry.
func (s *Server) Registry() *tools.Registry {
	return s.registry
}

// Transport returns the push transport, or nil when it is disabled.
func (s *Server) Transport() *sse.Transport {
	return s.transport
}

// Run serves JSON-RPC on stdin/stdout and, when enabled, the push
// transport. The JSON-RPC transport starts first. Run returns after
// shutdown, which is triggered by a termination signal, by ctx, by the end
// of stdin or by a transport failure.
func (s *Server) Run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	select {
	case <-s.done:
		return s.stopErr
	default:
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := s.rpc.Run(s.rpcCtx, stdin, stdout)
		s.logger.Debug("json-rpc transport finished", "err", err)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		if shutdownErr := s.shutdownWithTimeout(); err == nil {
			err = shutdownErr
		}
		return err
	})

	if s.transport != nil {
		if err := s.transport.Start(gctx); err != nil {
			_ = s.shutdownWithTimeout()
			_ = g.Wait()
			return fmt.Errorf("starting push transport: %w", err)
		}
	}

	if s.watcher != nil {
		g.Go(func() error {
			err := s.watcher.Run(s.rpcCtx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
			s.logger.Info("shutdown requested")
		case <-s.done:
		}
		return s.shutdownWithTimeout()
	})

	return g.Wait()
}

func (s *Server) shutdownWithTimeout() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown stops the push transport, then the JSON-RPC transport and the
// template watcher. Only the first call has an effect; later calls return
// its result.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		if s.transport != nil {
			s.stopErr = s.transport.Stop(ctx)
		}
		s.cancelRPC()
		close(s.done)
		s.logger.Info("server stopped")
	})
	return s.stopErr
}

// Close releases the template store.
func (s *Server) Close() error {
	return s.store.Close()
}

// RPCStatus reports the JSON-RPC transport state.
type RPCStatus struct {
	Running bool `json:"running"`
}

// Status is a snapshot of the whole server.
type Status struct {
	RPC       RPCStatus   `json:"rpc"`
	SSE       *sse.Status `json:"sse,omitempty"`
	Tools     []string    `json:"tools"`
	Templates int         `json:"templates"`
}

// Status returns the current server status.
func (s *Server) Status() Status {
	st := Status{
		RPC:       RPCStatus{Running: s.rpc.Running()},
		Tools:     s.registry.Names(),
		Templates: s.store.Count(),
	}
	if s.transport != nil {
		sseStatus := s.transport.Status()
		st.SSE = &sseStatus
	}
	return st
}

// TemplatesReloadedPayload announces a catalog reload to subscribers.
type TemplatesReloadedPayload struct {
	Changed   []string `json:"changed"`
	Templates int      `json:"templates"`
}

func (s *Server) templatesReloaded(changed []string) {
	if s.transport == nil {
		return
	}
	n := s.transport.Publish(TopicTemplates, sse.Event{
		Name: "templates-reloaded",
		Data: TemplatesReloadedPayload{Changed: changed, Templates: s.store.Count()},
	})
	s.logger.Debug("template reload published", "subscribers", n)
}
