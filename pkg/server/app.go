package server

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	drepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/usecase"
	"MarketPulse/pkg/config"
	xhttp "MarketPulse/pkg/http"
	applogger "MarketPulse/pkg/logger"
)

// Resource is an infrastructure client closed on shutdown, after the
// publisher and history store.
type Resource struct {
	Name   string
	Closer io.Closer
}

// Resources are closed in order.
type Resources []Resource

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	scheduler  *usecase.WindowLockScheduler
	discovery  *usecase.TraderDiscovery
	httpServer *xhttp.Server
	publisher  drepo.Publisher
	history    drepo.HistoryStore
	resources  Resources

	wg sync.WaitGroup
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	scheduler *usecase.WindowLockScheduler,
	discovery *usecase.TraderDiscovery,
	httpServer *xhttp.Server,
	publisher drepo.Publisher,
	history drepo.HistoryStore,
	resources Resources,
) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		scheduler:  scheduler,
		discovery:  discovery,
		httpServer: httpServer,
		publisher:  publisher,
		history:    history,
		resources:  resources,
	}
}

// Run starts the polling loops and the HTTP server and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.Start(ctx)

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		cancel()
		a.Shutdown()
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	cancel()
	a.Shutdown()
	return nil
}

// Start launches the scheduler and discovery loops. They stop when ctx ends.
func (a *App) Start(ctx context.Context) {
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.scheduler.Run(ctx)
	}()
	go func() {
		defer a.wg.Done()
		a.discovery.Run(ctx)
	}()

	a.log.Info("engine started",
		applogger.String("symbol", a.cfg.Market.Symbol),
		applogger.String("slug_prefix", a.cfg.Market.SlugPrefix),
		applogger.Duration("window", a.cfg.Window.Length),
	)
}

// Shutdown waits for the loops to return, then stops the HTTP server and
// closes every resource. The loops must already be cancelled.
func (a *App) Shutdown() {
	a.log.Info("shutting down...")
	a.wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	// flush pending digest entries while the publisher is still open
	a.log.DetachDigest()

	if err := a.publisher.Close(); err != nil {
		a.log.Warn("publisher close error", applogger.Error(err))
	}
	if err := a.history.Close(); err != nil {
		a.log.Warn("history close error", applogger.Error(err))
	}
	for _, r := range a.resources {
		if err := r.Closer.Close(); err != nil {
			a.log.Warn("resource close error", applogger.String("resource", r.Name), applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
}
