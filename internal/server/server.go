// Package server hosts the explorer HTTP API, health and metrics endpoints,
// and runs the export worker alongside the listener.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"albuminome/internal/core"
)

// Background is a component started with the server and stopped on
// shutdown.
type Background interface {
	Start()
	Stop(ctx context.Context) error
}

// Config configures the listener.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MetricsPath     string
}

// Routes are the handlers mounted on the mux. Nil handlers are not mounted.
type Routes struct {
	API     http.Handler
	Metrics http.Handler
	// Ready reports whether the service can take traffic; nil means always.
	Ready func() error
}

// Server runs the HTTP listener and background workers.
type Server struct {
	cfg        Config
	http       *http.Server
	background []Background
	logger     core.Logger
}

// New builds a server. logger may be nil.
func New(cfg Config, routes Routes, logger core.Logger, background ...Background) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &Server{
		cfg: cfg,
		http: &http.Server{
			Addr:              cfg.Addr,
			Handler:           NewMux(cfg.MetricsPath, routes),
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
		},
		background: background,
		logger:     logger,
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// NewMux mounts the API under /api/, metrics at metricsPath and the health
// probe at /healthz.
func NewMux(metricsPath string, routes Routes) *http.ServeMux {
	mux := http.NewServeMux()
	if routes.API != nil {
		mux.Handle("/api/", routes.API)
	}
	if routes.Metrics != nil {
		mux.Handle(metricsPath, routes.Metrics)
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if routes.Ready != nil {
			if err := routes.Ready(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(err.Error() + "\n"))
				return
			}
		}
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve starts the background workers, serves ln until ctx is cancelled,
// then drains the listener and stops the workers within the shutdown
// timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	for _, bg := range s.background {
		bg.Start()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("http listening", "addr", ln.Addr().String())
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		errs := []error{s.http.Shutdown(shutdownCtx)}
		for _, bg := range s.background {
			errs = append(errs, bg.Stop(shutdownCtx))
		}
		s.logger.Info("http stopped")
		return errors.Join(errs...)
	})
	return g.Wait()
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
