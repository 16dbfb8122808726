package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"TradeSync/internal/usecase"
	"TradeSync/pkg/cache"
	"TradeSync/pkg/config"
	xhttp "TradeSync/pkg/http"
	applogger "TradeSync/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	session    *usecase.Session
	handler    xhttp.Handler
	cache      cache.Service
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, session *usecase.Session, handler xhttp.Handler, c cache.Service) *App {
	return &App{
		cfg:     cfg,
		logger:  l,
		session: session,
		handler: handler,
		cache:   c,
	}
}

// Run starts the sync session and the local API, then blocks until
// interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.session.Start(ctx); err != nil {
		a.logger.Error("session start error", applogger.Error(err))
		return err
	}

	if a.cfg.Server.Enabled || a.cfg.Metrics.Enabled {
		var handler xhttp.Handler
		if a.cfg.Server.Enabled {
			handler = a.handler
		}
		opts := []xhttp.ServerOption{
			xhttp.WithHost(a.cfg.Server.Host),
			xhttp.WithPort(a.cfg.Server.Port),
			xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
			xhttp.WithCORSOrigins(a.cfg.Server.CORSOrigins),
		}
		if a.cfg.Metrics.Enabled {
			opts = append(opts, xhttp.WithMetricsPath(a.cfg.Metrics.Path))
		}
		a.httpServer = xhttp.NewServer(handler, a.logger, opts...)
		if err := a.httpServer.Start(); err != nil {
			a.logger.Error("http server start error", applogger.Error(err))
			return errors.Join(err, a.shutdown(context.Background()))
		}
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
		return a.shutdown(context.Background())
	case err := <-a.serveErrors():
		return errors.Join(err, a.shutdown(context.Background()))
	}
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.logger.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	if err := a.session.Shutdown(ctx); err != nil {
		a.logger.Warn("session stop error", applogger.Error(err))
		errs = append(errs, err)
	}

	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("cache close error", applogger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
	a.logger.DetachDigest()
	return errors.Join(errs...)
}

// serveErrors is nil, and so never ready, when no HTTP server runs.
func (a *App) serveErrors() <-chan error {
	if a.httpServer == nil {
		return nil
	}
	return a.httpServer.Errors()
}
