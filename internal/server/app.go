package server

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"albuminome/internal/adapters/datasets"
	"albuminome/internal/blob"
	"albuminome/internal/config"
	"albuminome/internal/core"
	"albuminome/internal/loader"
	"albuminome/internal/logging"
	"albuminome/internal/metrics"
	"albuminome/internal/session"
)

// App is the assembled explorer: dataset, service, sessions, export worker
// and their HTTP routes.
type App struct {
	Service  *core.Service
	Sessions *session.Manager
	Worker   *datasets.Worker
	Store    blob.Store
	Routes   Routes

	closers []func() error
}

// LoadService opens the blob store, loads the reference tables and builds
// the explorer service. It is shared by the server and the one-shot CLI
// commands.
func LoadService(ctx context.Context, cfg config.Config, logger *logging.Logger, opts ...core.ServiceOption) (*core.Service, blob.Store, error) {
	store, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		return nil, nil, fmt.Errorf("open blob store: %w", err)
	}
	src, closeSrc, err := loader.Open(ctx, cfg.Data, store)
	if err != nil {
		return nil, nil, fmt.Errorf("open data source: %w", err)
	}
	ds, err := loader.Load(ctx, src, func() time.Time { return time.Now().UTC() }, logger.Named("loader"))
	if cerr := closeSrc(); cerr != nil {
		logger.Warn("close data source", "error", cerr)
	}
	if err != nil {
		return nil, nil, err
	}
	opts = append([]core.ServiceOption{
		core.WithLogger(logger.Named("explorer")),
		core.WithPluginName(cfg.Explorer.PluginName),
	}, opts...)
	svc, err := core.NewService(ds, opts...)
	if err != nil {
		return nil, nil, err
	}
	return svc, store, nil
}

// Build assembles the full application from configuration.
func Build(ctx context.Context, cfg config.Config, logger *logging.Logger) (*App, error) {
	app := &App{}
	var opts []core.ServiceOption

	var metricsHandler http.Handler
	var registry *prometheus.Registry
	switch strings.ToLower(cfg.Metrics.Backend) {
	case "", "prometheus":
		registry = metrics.NewRegistry()
		rec, err := metrics.NewRecorder(registry)
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		opts = append(opts, core.WithMetricsRecorder(rec))
		metricsHandler = metrics.Handler(registry)
	case "expvar":
		opts = append(opts, core.WithMetricsRecorder(core.NewExpvarMetricsRecorder("albuminome_explorer")))
		metricsHandler = expvar.Handler()
	case "none":
	default:
		return nil, fmt.Errorf("unknown metrics backend %q", cfg.Metrics.Backend)
	}

	if cfg.Explorer.TraceFile != "" {
		f, err := os.OpenFile(cfg.Explorer.TraceFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) // #nosec G304 -- operator-supplied path
		if err != nil {
			return nil, fmt.Errorf("open trace file: %w", err)
		}
		app.closers = append(app.closers, f.Close)
		opts = append(opts, core.WithTracer(core.NewJSONTracer(f)))
	}

	svc, store, err := LoadService(ctx, cfg, logger, opts...)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Service = svc
	app.Store = store
	app.Sessions = session.NewManager(svc, svc.DefaultParams, session.Config{
		MaxSessions: cfg.Sessions.MaxSessions,
		TTL:         cfg.Sessions.TTL,
	}, logger.Named("sessions"))
	if registry != nil {
		if err := metrics.TrackSessions(registry, app.Sessions.Len); err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("register session gauge: %w", err)
		}
	}
	app.Worker = datasets.NewWorker(svc, store, datasets.LoggerAudit{Logger: logger.Named("audit")}, datasets.WorkerConfig{
		Workers:   cfg.Exports.Workers,
		Queue:     cfg.Exports.Queue,
		Prefix:    cfg.Exports.Prefix,
		URLExpiry: cfg.Exports.URLExpiry,
	})

	api := datasets.NewHandler(svc)
	api.Explorer = svc
	api.Sessions = app.Sessions
	api.Exports = app.Worker
	app.Routes = Routes{API: api, Metrics: metricsHandler}
	return app, nil
}

// Server returns a server for the app's routes and worker.
func (a *App) Server(cfg config.ServerConfig, metricsPath string, logger core.Logger) *Server {
	return New(Config{
		Addr:            cfg.Addr,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
		MetricsPath:     metricsPath,
	}, a.Routes, logger, a.Worker)
}

// Close releases files opened by Build.
func (a *App) Close() error {
	var errs []error
	for _, closer := range a.closers {
		errs = append(errs, closer())
	}
	a.closers = nil
	return errors.Join(errs...)
}
