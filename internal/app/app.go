package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"netflow-crawler/internal/cadence"
	"netflow-crawler/internal/config"
	"netflow-crawler/internal/locator"
	"netflow-crawler/internal/metrics"
	"netflow-crawler/internal/record"
	"netflow-crawler/internal/scheduler"
	"netflow-crawler/internal/service"
	"netflow-crawler/internal/session"
	"netflow-crawler/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	metrics *metrics.Collector
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config:  cfg,
		Logger:  logger.With().Str("component", "app").Logger(),
		metrics: metrics.NewCollector("netflow"),
	}
}

func (a *App) newOpener() session.Opener {
	cfg := a.Config.Session
	agents := session.UserAgents(cfg.UserAgent)

	if cfg.Driver == "http" {
		return session.NewHTTPOpener(session.HTTPOptions{
			Timeout:    cfg.RequestTimeout,
			UserAgents: agents,
		}, a.Logger)
	}
	return session.NewChromeOpener(session.ChromeOptions{
		ExecPath:   cfg.ChromePath,
		Headless:   cfg.Headless,
		UserAgents: agents,
	}, a.Logger)
}

func (a *App) newLocator() *locator.Locator {
	cfg := a.Config.Locator
	marker := a.Config.Source.Marker
	return locator.New(locator.Options{
		Marker:      marker,
		SettleDelay: cfg.SettleDelay,
		Retries:     cfg.Retries,
		BackoffMin:  cfg.BackoffMin,
		BackoffMax:  cfg.BackoffMax,
	}, locator.DefaultStrategies(marker, cfg.ElementTimeout), a.Logger)
}

func (a *App) newBuilder() *record.Builder {
	return record.NewBuilder(record.Options{
		MarketMarker:    a.Config.Record.MarketMarker,
		AlignTimestamps: a.Config.Record.AlignTimestamps,
	}, a.Logger)
}

// openStore builds the CSV writer plus any configured mirrors.
func (a *App) openStore(ctx context.Context) (storage.Writer, func(), error) {
	var (
		mirrors []storage.Mirror
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if path := a.Config.Storage.SQLitePath; path != "" {
		store, err := storage.OpenSQLite(ctx, path)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		mirrors = append(mirrors, storage.Mirror{Name: "sqlite", Writer: store})
		closers = append(closers, func() {
			if err := store.Close(); err != nil {
				a.Logger.Warn().Err(err).Msg("failed to close sqlite mirror")
			}
		})
	}

	if a.Config.Database.DSN != "" {
		pool, err := storage.NewPool(ctx, a.Config.Database)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		store := storage.NewPostgresStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			closeAll()
			return nil, nil, err
		}
		mirrors = append(mirrors, storage.Mirror{Name: "postgres", Writer: store})
		closers = append(closers, store.Close)
	}

	primary := storage.NewCSVStore(a.Config.Storage.CSVPath)
	if len(mirrors) == 0 {
		return primary, closeAll, nil
	}
	return storage.NewFanout(primary, mirrors, a.Logger), closeAll, nil
}

func (a *App) newService(sched *scheduler.Scheduler, writer storage.Writer) *service.Service {
	return service.New(service.Options{
		URL:              a.Config.Source.URL,
		Interval:         a.Config.Scheduler.Interval,
		FailOnCloseError: a.Config.Scheduler.FailOnCloseError,
	}, service.Deps{
		Scheduler: sched,
		Opener:    a.newOpener(),
		Locator:   a.newLocator(),
		Estimator: cadence.NewEstimator(),
		Builder:   a.newBuilder(),
		Writer:    writer,
		Metrics:   a.metrics,
	}, a.Logger)
}

// Run executes the long-running crawl service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	writer, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if a.Config.Metrics.Listen != "" {
		go a.serveMetrics(ctx)
	}

	sched := scheduler.New(scheduler.Options{
		Interval:      a.Config.Scheduler.Interval,
		AlignToBucket: a.Config.Scheduler.AlignToBucket,
		RunOnStart:    a.Config.Scheduler.RunOnStart,
		StartupDelay:  a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	svc := a.newService(sched, writer)

	a.Logger.Info().
		Str("url", a.Config.Source.URL).
		Str("driver", a.Config.Session.Driver).
		Dur("interval", a.Config.Scheduler.Interval).
		Msg("starting crawl service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("crawl service stopped")
	return nil
}

func (a *App) serveMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle(a.Config.Metrics.Path, a.metrics.Handler())

	srv := &http.Server{
		Addr:              a.Config.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	a.Logger.Info().Str("listen", srv.Addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.Logger.Error().Err(err).Msg("metrics server failed")
	}
}
