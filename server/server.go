// Package server wires configuration, the upstream client and the HTTP
// router into a running relay.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ivfcopilot/copilot/config"
	"github.com/ivfcopilot/copilot/server/handlers"
	"github.com/ivfcopilot/copilot/server/metrics"
	"github.com/ivfcopilot/copilot/server/middleware"
	"github.com/ivfcopilot/copilot/server/processing"
	"github.com/ivfcopilot/copilot/server/provider"
	"github.com/ivfcopilot/copilot/server/routing"
	"github.com/ivfcopilot/copilot/server/validation"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Server represents the HTTP server. The request pipeline is rebuilt from
// scratch on every configuration change and swapped in atomically; requests
// already in flight finish on the pipeline they started with.
type Server struct {
	httpServer *http.Server
	handler    atomic.Pointer[http.Handler]
	current    atomic.Pointer[config.Config]
	metrics    *metrics.Metrics
	watcher    config.Watcher
	httpClient *http.Client
	logger     *zap.Logger
}

// Option customizes a Server.
type Option func(*Server)

// WithWatcher reloads the pipeline whenever w publishes a new config.
func WithWatcher(w config.Watcher) Option {
	return func(s *Server) {
		s.watcher = w
	}
}

// WithMetrics uses m instead of a fresh metrics registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithUpstreamHTTPClient sets the HTTP client used for upstream calls.
func WithUpstreamHTTPClient(hc *http.Client) Option {
	return func(s *Server) {
		s.httpClient = hc
	}
}

// NewServer creates a server for cfg. It fails only when the pipeline cannot
// be built; a missing upstream credential is logged and reported per request.
func NewServer(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.NewMetrics()
	}

	if err := s.Reload(cfg); err != nil {
		return nil, err
	}

	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        s,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	return s, nil
}

// Reload builds a new pipeline from cfg and swaps it in. On error the
// current pipeline stays active.
func (s *Server) Reload(cfg *config.Config) error {
	h, err := s.buildHandler(cfg)
	if err != nil {
		return fmt.Errorf("build request pipeline: %w", err)
	}

	if prev := s.current.Load(); prev != nil && prev.Server.Port != cfg.Server.Port {
		s.logger.Warn("Port change requires a restart",
			zap.Int("current_port", prev.Server.Port),
			zap.Int("configured_port", cfg.Server.Port),
		)
	}
	if !cfg.HasCredential() {
		s.logger.Warn("Upstream credential is not set, answer requests will fail",
			zap.String("env_var", config.CredentialEnvVar),
		)
	}

	s.handler.Store(&h)
	s.current.Store(cfg)
	return nil
}

func (s *Server) buildHandler(cfg *config.Config) (http.Handler, error) {
	var counter *validation.TokenCounter
	if cfg.Validation.MaxQuestionTokens > 0 {
		var err error
		counter, err = validation.NewTokenCounter(cfg.Validation.Encoding)
		if err != nil {
			return nil, err
		}
	}

	v, err := validation.NewValidator(cfg, counter)
	if err != nil {
		return nil, err
	}

	client := provider.NewClient(cfg.Upstream, cfg.CircuitBreaker,
		provider.WithHTTPClient(s.httpClient),
		provider.WithMetrics(s.metrics),
		provider.WithLogger(s.logger),
	)

	p, err := processing.NewProcessor(client, s.metrics, s.logger)
	if err != nil {
		return nil, err
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(cfg.RateLimit, s.metrics)
	}

	return routing.NewRouter(routing.Handlers{
		Answer: handlers.NewAnswerHandler(v, p, cfg.Server.MaxBodyBytes, s.logger),
		Health: handlers.Health(cfg.Server.HealthMessage),
	}, s.metrics, limiter, s.logger), nil
}

// ServeHTTP dispatches to the current pipeline.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	(*s.handler.Load()).ServeHTTP(w, r)
}

// Config returns the configuration of the active pipeline.
func (s *Server) Config() *config.Config {
	return s.current.Load()
}

// Metrics returns the server's metrics.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// Start listens and serves until ctx is cancelled, then shuts down
// gracefully within the configured shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		cfg := s.Config()
		s.logger.Info("Server started",
			zap.String("address", s.httpServer.Addr),
			zap.String("upstream", cfg.Upstream.Endpoint),
			zap.String("model", cfg.Upstream.Model),
		)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		timeout := s.Config().Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		s.logger.Info("Shutting down server")
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error during server shutdown: %w", err)
		}
		return nil
	})

	if s.watcher != nil {
		updates := s.watcher.Subscribe()
		g.Go(func() error {
			s.watchConfig(gctx, updates)
			return nil
		})
	}

	return g.Wait()
}

func (s *Server) watchConfig(ctx context.Context, updates <-chan *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			if err := s.Reload(cfg); err != nil {
				s.logger.Error("Failed to apply new configuration", zap.Error(err))
				continue
			}
			s.logger.Info("Applied new configuration")
		}
	}
}
