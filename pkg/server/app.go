package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	domrepo "FxSentry/internal/domain/repository"
	"FxSentry/internal/service/pricefeed"
	"FxSentry/pkg/config"
	xhttp "FxSentry/pkg/http"
	applogger "FxSentry/pkg/logger"
	"FxSentry/pkg/queue"
	"FxSentry/pkg/scheduler"
)

// App owns the process lifecycle: the two monitor schedulers, the daily
// summary scheduler, the live price feed, the summary queue worker, and the
// HTTP server. Run blocks until SIGINT/SIGTERM, then shuts everything down
// within the configured grace period.
type App struct {
	cfg *config.Config
	log *applogger.Logger

	httpServer    *xhttp.Server
	signalSched   *scheduler.Scheduler
	positionSched *scheduler.Scheduler
	summarySched  *scheduler.Scheduler
	feed          *pricefeed.Stream
	queue         *queue.RedisQueue
	publisher     domrepo.EventPublisher
	audit         domrepo.AuditStore

	cancel context.CancelFunc
}

func New(
	cfg *config.Config,
	log *applogger.Logger,
	httpServer *xhttp.Server,
	signalSched *scheduler.Scheduler,
	positionSched *scheduler.Scheduler,
	summarySched *scheduler.Scheduler,
	feed *pricefeed.Stream,
	q *queue.RedisQueue,
	publisher domrepo.EventPublisher,
	audit domrepo.AuditStore,
) *App {
	return &App{
		cfg:           cfg,
		log:           log,
		httpServer:    httpServer,
		signalSched:   signalSched,
		positionSched: positionSched,
		summarySched:  summarySched,
		feed:          feed,
		queue:         q,
		publisher:     publisher,
		audit:         audit,
	}
}

// Run starts all components and blocks until a termination signal.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	defer cancel()

	if a.feed != nil {
		if err := a.feed.Start(ctx); err != nil {
			// Candle fallback keeps the position monitor working.
			a.log.Warn("price feed unavailable at startup", applogger.Error(err))
		}
	}

	if a.queue != nil {
		if err := a.queue.Start(); err != nil {
			return err
		}
		a.queue.StartRetryProcessor()
	}

	if err := a.signalSched.Start(ctx); err != nil {
		return err
	}
	if err := a.positionSched.Start(ctx); err != nil {
		return err
	}
	if err := a.summarySched.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.httpServer.Start()
	}()
	a.log.Info("engine started",
		applogger.Int("port", a.cfg.Server.Port),
		applogger.String("environment", a.cfg.Environment),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		a.log.Info("shutdown signal received", applogger.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			a.log.Error("http server failed", applogger.Error(err))
			a.shutdown()
			return err
		}
	}

	a.shutdown()
	return nil
}

// shutdown stops components in reverse dependency order: schedulers first so
// no new cycles begin, then the workers and servers, then the sinks.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.signalSched.Stop(ctx); err != nil {
		a.log.Warn("signal scheduler stop", applogger.Error(err))
	}
	if err := a.positionSched.Stop(ctx); err != nil {
		a.log.Warn("position scheduler stop", applogger.Error(err))
	}
	if err := a.summarySched.Stop(ctx); err != nil {
		a.log.Warn("summary scheduler stop", applogger.Error(err))
	}

	if a.cancel != nil {
		a.cancel()
	}

	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			a.log.Warn("queue stop", applogger.Error(err))
		}
	}
	if a.feed != nil {
		a.feed.Close()
	}
	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Warn("http server stop", applogger.Error(err))
	}

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warn("publisher close", applogger.Error(err))
		}
	}
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			a.log.Warn("audit store close", applogger.Error(err))
		}
	}

	a.log.Info("engine stopped")
}
