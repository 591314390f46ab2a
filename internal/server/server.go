package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zeusync/joynr/internal/core/messaging"
	"github.com/zeusync/joynr/internal/core/observability/log"
)

const (
	defaultPath            = "/joynr"
	defaultMetricsPath     = "/metrics"
	defaultMaxMessageBytes = 1 << 20
	defaultShutdownTimeout = 5 * time.Second
)

// Config holds server configuration
type Config struct {
	ListenAddr      string
	Path            string
	MetricsPath     string
	MaxMessageBytes int64
}

// Server is the HTTP endpoint of a runtime: joynr envelopes arrive as
// WebSocket text frames on Path and metrics are served on MetricsPath.
type Server struct {
	cfg      Config
	inbound  messaging.MessagingStub
	gatherer prometheus.Gatherer

	http     *http.Server
	listener net.Listener
	sessions *sessions

	running atomic.Bool
	closed  atomic.Bool
	wg      sync.WaitGroup

	logger log.Log
}

// NewServer creates a server that hands every received envelope to inbound.
// A nil gatherer disables the metrics endpoint.
func NewServer(cfg Config, inbound messaging.MessagingStub, gatherer prometheus.Gatherer, logger log.Log) (*Server, error) {
	if inbound == nil {
		return nil, ErrMissingInbound
	}
	if cfg.Path == "" {
		cfg.Path = defaultPath
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = defaultMetricsPath
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = defaultMaxMessageBytes
	}

	s := &Server{
		cfg:      cfg,
		inbound:  inbound,
		gatherer: gatherer,
		logger:   logger.Named("server"),
	}
	s.sessions = newSessions(cfg.MaxMessageBytes, inbound, s.logger)
	s.http = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	return s, nil
}

// Handler routes the WebSocket and metrics endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.sessions.handleWebSocket)
	if s.gatherer != nil {
		mux.Handle(s.cfg.MetricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start listens on ListenAddr and serves in the background.
func (s *Server) Start(_ context.Context) error {
	if s.closed.Load() {
		return ErrServerClosed
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrServerAlreadyRunning
	}

	listener, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("%w: %w", ErrListenerFailed, err)
	}
	s.listener = listener

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server stopped unexpectedly", log.Error(err))
		}
	}()

	s.logger.Info("Server listening",
		log.String("addr", listener.Addr().String()),
		log.String("path", s.cfg.Path))
	return nil
}

// Addr is the bound listen address, available after Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop stops accepting connections and closes the open WebSocket sessions.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return ErrServerNotRunning
	}
	s.closed.Store(true)

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultShutdownTimeout)
		defer cancel()
	}

	err := s.http.Shutdown(ctx)
	s.sessions.closeAll()
	s.wg.Wait()

	s.logger.Info("Server stopped")
	return err
}
