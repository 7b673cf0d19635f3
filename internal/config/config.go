// Package config defines the server configuration. The struct tags double
// as the kong flag definitions (with environment overrides) and as the
// validation rules checked before startup.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Benny93/mermaid-mcp/internal/sse"
)

// validate is a single instance of Validate, it caches struct info.
var validate = validator.New(validator.WithRequiredStructEnabled())

// SSE configures the push transport.
type SSE struct {
	Enabled           bool          `name:"enabled" default:"true" negatable:"" env:"MERMAID_SSE_ENABLED" help:"Serve the streaming transport"`
	Host              string        `name:"host" default:"127.0.0.1" env:"MERMAID_SSE_HOST" help:"Streaming listen host" validate:"required"`
	Port              int           `name:"port" default:"3001" env:"MERMAID_SSE_PORT" help:"Streaming listen port" validate:"min=1,max=65535"`
	EventPath         string        `name:"event-path" default:"/events" env:"MERMAID_SSE_EVENT_PATH" help:"Path of the event stream" validate:"required,startswith=/"`
	CORSOrigins       []string      `name:"cors-origins" default:"*" env:"MERMAID_SSE_CORS_ORIGINS" help:"Allowed CORS origins (* for any)" validate:"min=1,dive,required"`
	CORSCredentials   bool          `name:"cors-credentials" env:"MERMAID_SSE_CORS_CREDENTIALS" help:"Allow credentialed CORS requests"`
	HeartbeatEnabled  bool          `name:"heartbeat" default:"true" negatable:"" env:"MERMAID_SSE_HEARTBEAT" help:"Send heartbeat events"`
	HeartbeatInterval time.Duration `name:"heartbeat-interval" default:"30s" env:"MERMAID_SSE_HEARTBEAT_INTERVAL" help:"Heartbeat interval" validate:"gte=100ms"`
	IdleTimeout       time.Duration `name:"idle-timeout" default:"5m" env:"MERMAID_SSE_IDLE_TIMEOUT" help:"Evict connections idle for longer than this" validate:"gte=1s"`
	HealthInterval    time.Duration `name:"health-interval" default:"30s" env:"MERMAID_SSE_HEALTH_INTERVAL" help:"Health monitor interval" validate:"gte=100ms"`
	WriteTimeout      time.Duration `name:"write-timeout" default:"10s" env:"MERMAID_SSE_WRITE_TIMEOUT" help:"Drop a streaming client whose write stalls for longer than this" validate:"gte=100ms"`
	MaxConnections    int           `name:"max-connections" default:"100" env:"MERMAID_SSE_MAX_CONNECTIONS" help:"Maximum concurrent streaming connections" validate:"min=1,max=10000"`
	RequestTimeout    time.Duration `name:"request-timeout" default:"60s" env:"MERMAID_SSE_REQUEST_TIMEOUT" help:"Upper bound for one streamed tool call (0 disables)" validate:"gte=0"`
}

// Templates configures the template catalog.
type Templates struct {
	Dir    string `name:"dir" env:"MERMAID_TEMPLATES_DIR" help:"Directory of YAML template files" type:"path" validate:"required_if=Watch true"`
	Watch  bool   `name:"watch" env:"MERMAID_TEMPLATES_WATCH" help:"Reload templates when files change"`
	DBPath string `name:"db" env:"MERMAID_TEMPLATES_DB" help:"Badger directory for the template index (empty keeps it in memory)" type:"path"`
}

// Log configures logging.
type Log struct {
	Level string `name:"level" default:"info" env:"MERMAID_LOG_LEVEL" enum:"debug,info,warn,error" help:"Log level (debug, info, warn, error)" validate:"oneof=debug info warn error"`
}

// Config is the complete server configuration.
type Config struct {
	SSE       SSE       `embed:"" prefix:"sse-"`
	Templates Templates `embed:"" prefix:"templates-"`
	Log       Log       `embed:"" prefix:"log-"`
}

// Default returns the configuration used when no flags or environment
// variables are set.
func Default() Config {
	t := sse.DefaultConfig()
	return Config{
		SSE: SSE{
			Enabled:           true,
			Host:              t.Host,
			Port:              t.Port,
			EventPath:         t.EventPath,
			CORSOrigins:       t.CORSOrigins,
			HeartbeatEnabled:  t.HeartbeatEnabled,
			HeartbeatInterval: t.HeartbeatInterval,
			IdleTimeout:       t.IdleTimeout,
			HealthInterval:    t.HealthInterval,
			WriteTimeout:      t.WriteTimeout,
			MaxConnections:    t.MaxConnections,
			RequestTimeout:    60 * time.Second,
		},
		Log: Log{Level: "info"},
	}
}

// Validate checks c and lists every offending field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		fields = append(fields, fmt.Sprintf("%s (%s, got %v)", fe.Namespace(), rule, fe.Value()))
	}
	return fmt.Errorf("invalid configuration: %s: %w", strings.Join(fields, "; "), err)
}

// Transport converts the SSE section into push transport settings.
func (s SSE) Transport() sse.Config {
	cfg := sse.DefaultConfig()
	cfg.Host = s.Host
	cfg.Port = s.Port
	cfg.EventPath = s.EventPath
	cfg.CORSOrigins = append([]string(nil), s.CORSOrigins...)
	cfg.CORSCredentials = s.CORSCredentials
	cfg.HeartbeatEnabled = s.HeartbeatEnabled
	cfg.HeartbeatInterval = s.HeartbeatInterval
	cfg.IdleTimeout = s.IdleTimeout
	cfg.HealthInterval = s.HealthInterval
	cfg.WriteTimeout = s.WriteTimeout
	cfg.MaxConnections = s.MaxConnections
	return cfg
}
