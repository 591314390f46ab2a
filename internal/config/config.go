// Package config loads the runtime configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/joynr/internal/core/address"
	"github.com/zeusync/joynr/internal/core/dispatching"
	"github.com/zeusync/joynr/internal/core/message"
	"github.com/zeusync/joynr/internal/core/messagequeue"
	"github.com/zeusync/joynr/internal/core/observability/log"
	"github.com/zeusync/joynr/internal/core/routing"
)

var (
	ErrNegativeValue       = errors.New("value must not be negative")
	ErrInvalidLogLevel     = errors.New("unknown log level")
	ErrIncompleteParent    = errors.New("parent address needs host and port")
	ErrInvalidWSProtocol   = errors.New("websocket protocol must be WS or WSS")
	ErrPersistenceNoBucket = errors.New("persistence path set without bucket")
	ErrInvalidServerPath   = errors.New("server path must start with / and differ from the metrics path")
)

// MetricsPath is where the server exposes prometheus metrics.
const MetricsPath = "/metrics"

type Config struct {
	InstanceID  string      `yaml:"instanceId"`
	Log         Log         `yaml:"log"`
	Messaging   Messaging   `yaml:"messaging"`
	Routing     Routing     `yaml:"routing"`
	Persistence Persistence `yaml:"persistence"`
	Server      Server      `yaml:"server"`
}

type Log struct {
	Level string `yaml:"level"`
}

type Messaging struct {
	TTLUpliftMs            int64 `yaml:"ttlUpliftMs"`
	DefaultTTLMs           int64 `yaml:"defaultTtlMs"`
	MaxQueueSizeKBytes     int64 `yaml:"maxQueueSizeKBytes"`
	QueueCleanupIntervalMs int64 `yaml:"queueCleanupIntervalMs"`
	ReplyCleanupIntervalMs int64 `yaml:"replyCleanupIntervalMs"`
}

type Routing struct {
	RequireReplyTo            bool `yaml:"requireReplyTo"`
	MulticastPatternCacheSize int  `yaml:"multicastPatternCacheSize"`
	// Parent is the cluster controller. Without it the router is the root.
	// Embedders must hand the runtime a routing proxy for it.
	Parent *WebSocket `yaml:"parent,omitempty"`
}

type WebSocket struct {
	Protocol string `yaml:"protocol"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Path     string `yaml:"path"`
}

// Persistence enables the bbolt routing store when Path is set.
type Persistence struct {
	Path   string `yaml:"path"`
	Bucket string `yaml:"bucket"`
}

// Server is the inbound WebSocket endpoint. An empty ListenAddr disables it.
type Server struct {
	ListenAddr      string `yaml:"listenAddr"`
	Path            string `yaml:"path"`
	MaxMessageBytes int64  `yaml:"maxMessageBytes"`
}

var levels = map[string]struct{}{
	"debug": {}, "info": {}, "warn": {}, "warning": {}, "error": {}, "fatal": {},
}

func Default() Config {
	return Config{
		InstanceID: uuid.NewString(),
		Log:        Log{Level: "info"},
		Messaging: Messaging{
			DefaultTTLMs:           message.DefaultTTL.Milliseconds(),
			MaxQueueSizeKBytes:     messagequeue.DefaultMaxQueueSizeKBytes,
			QueueCleanupIntervalMs: messagequeue.DefaultCleanupInterval.Milliseconds(),
			ReplyCleanupIntervalMs: dispatching.DefaultReplyCleanupInterval.Milliseconds(),
		},
		Routing: Routing{
			MulticastPatternCacheSize: routing.DefaultPatternCacheSize,
		},
		Persistence: Persistence{Bucket: "routing"},
		Server: Server{
			ListenAddr:      "127.0.0.1:4242",
			Path:            "/joynr",
			MaxMessageBytes: 1 << 20,
		},
	}
}

// Load reads the YAML file at path on top of Default.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads YAML from r on top of Default and validates the result.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if _, ok := levels[strings.ToLower(c.Log.Level)]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Log.Level)
	}

	numbers := []struct {
		name  string
		value int64
	}{
		{"messaging.ttlUpliftMs", c.Messaging.TTLUpliftMs},
		{"messaging.defaultTtlMs", c.Messaging.DefaultTTLMs},
		{"messaging.maxQueueSizeKBytes", c.Messaging.MaxQueueSizeKBytes},
		{"messaging.queueCleanupIntervalMs", c.Messaging.QueueCleanupIntervalMs},
		{"messaging.replyCleanupIntervalMs", c.Messaging.ReplyCleanupIntervalMs},
		{"routing.multicastPatternCacheSize", int64(c.Routing.MulticastPatternCacheSize)},
		{"server.maxMessageBytes", c.Server.MaxMessageBytes},
	}
	for _, n := range numbers {
		if n.value < 0 {
			return fmt.Errorf("%s: %w", n.name, ErrNegativeValue)
		}
	}

	if p := c.Routing.Parent; p != nil {
		if p.Host == "" || p.Port <= 0 {
			return ErrIncompleteParent
		}
		switch address.WebSocketProtocol(strings.ToUpper(p.Protocol)) {
		case address.WebSocketProtocolWS, address.WebSocketProtocolWSS, "":
		default:
			return fmt.Errorf("%w: %q", ErrInvalidWSProtocol, p.Protocol)
		}
	}

	if c.Persistence.Path != "" && strings.TrimSpace(c.Persistence.Bucket) == "" {
		return ErrPersistenceNoBucket
	}

	if c.Server.ListenAddr != "" && (!strings.HasPrefix(c.Server.Path, "/") || c.Server.Path == MetricsPath) {
		return fmt.Errorf("%w: %q", ErrInvalidServerPath, c.Server.Path)
	}
	return nil
}

func (c Config) LogLevel() log.Level {
	return log.ParseLevel(c.Log.Level)
}

func (c Config) TTLUplift() time.Duration {
	return time.Duration(c.Messaging.TTLUpliftMs) * time.Millisecond
}

func (c Config) DefaultTTL() time.Duration {
	return time.Duration(c.Messaging.DefaultTTLMs) * time.Millisecond
}

func (c Config) ReplyCleanupInterval() time.Duration {
	return time.Duration(c.Messaging.ReplyCleanupIntervalMs) * time.Millisecond
}

func (c Config) Queue() messagequeue.Config {
	return messagequeue.Config{
		MaxQueueSizeKBytes: c.Messaging.MaxQueueSizeKBytes,
		CleanupInterval:    time.Duration(c.Messaging.QueueCleanupIntervalMs) * time.Millisecond,
	}
}

// ParentAddress is the configured cluster controller, or nil.
func (c Config) ParentAddress() address.Address {
	p := c.Routing.Parent
	if p == nil {
		return nil
	}
	protocol := address.WebSocketProtocol(strings.ToUpper(p.Protocol))
	if protocol == "" {
		protocol = address.WebSocketProtocolWS
	}
	return &address.WebSocketAddress{Protocol: protocol, Host: p.Host, Port: p.Port, Path: p.Path}
}

// Router builds the router config. A router with a parent announces itself
// to it under a WebSocketClientAddress named after the instance.
func (c Config) Router() routing.Config {
	cfg := routing.Config{
		InstanceID:       c.InstanceID,
		RequireReplyTo:   c.Routing.RequireReplyTo,
		PatternCacheSize: c.Routing.MulticastPatternCacheSize,
	}
	if parent := c.ParentAddress(); parent != nil {
		cfg.ParentAddress = parent
		cfg.IncomingAddress = &address.WebSocketClientAddress{ID: c.InstanceID}
	}
	return cfg
}
