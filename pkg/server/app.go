package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"WasteFlow/internal/service/ratelimit"
	"WasteFlow/internal/usecase"
	"WasteFlow/pkg/config"
	xhttp "WasteFlow/pkg/http"
	applogger "WasteFlow/pkg/logger"
)

// Resource is an infrastructure client closed on shutdown.
type Resource struct {
	Name string
	io.Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	forecast   *usecase.ForecastService
	exchange   *usecase.ExchangeService
	httpServer *xhttp.Server
	limiter    *ratelimit.Limiter
	resources  []Resource

	// ForceTrain retrains the models at startup even if saved ones exist.
	ForceTrain bool
}

// New creates a new App instance with all dependencies. Resources are closed
// in reverse order on shutdown; nil closers are skipped.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	forecast *usecase.ForecastService,
	exchange *usecase.ExchangeService,
	httpServer *xhttp.Server,
	limiter *ratelimit.Limiter,
	resources ...Resource,
) *App {
	return &App{
		cfg:        cfg,
		log:        l,
		forecast:   forecast,
		exchange:   exchange,
		httpServer: httpServer,
		limiter:    limiter,
		resources:  resources,
	}
}

// Start prepares models and exchange state, then starts serving.
func (a *App) Start(ctx context.Context) error {
	start := time.Now()
	if err := a.forecast.Bootstrap(ctx, a.ForceTrain); err != nil {
		return fmt.Errorf("forecast bootstrap: %w", err)
	}
	status := a.forecast.Status()
	a.log.Info("forecast models ready",
		applogger.Int("models", status.Models),
		applogger.Duration("elapsed", time.Since(start)))

	if err := a.exchange.Init(ctx, a.cfg.Exchange.Seed); err != nil {
		return fmt.Errorf("exchange init: %w", err)
	}

	if a.limiter != nil {
		go a.pruneLimiter(ctx)
	}

	return a.httpServer.Start()
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		a.log.Error("startup failed", applogger.Error(err))
		_ = a.Shutdown(ctx)
		return err
	}
	a.log.Info("wasteflow started",
		applogger.String("env", a.cfg.Environment),
		applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	cancel()
	return a.Shutdown(context.Background())
}

// Shutdown stops the HTTP server and closes every resource.
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.httpServer.ShutdownTimeout())
	defer cancel()

	var errs []error
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}

	for i := len(a.resources) - 1; i >= 0; i-- {
		r := a.resources[i]
		if r.Closer == nil {
			continue
		}
		if err := r.Close(); err != nil {
			a.log.Warn("resource close error", applogger.String("resource", r.Name), applogger.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", r.Name, err))
		}
	}

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) pruneLimiter(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.limiter.Prune(10 * time.Minute); n > 0 {
				a.log.Debug("rate limiter pruned", applogger.Int("buckets", n))
			}
		}
	}
}
