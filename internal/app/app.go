// Package app wires all voxmux subsystems into a running daemon.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves until the context is cancelled, and Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithOutputModule,
// WithHistoryStore, WithMetrics). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/voxmux/voxmux/internal/config"
	"github.com/voxmux/voxmux/internal/health"
	"github.com/voxmux/voxmux/internal/history"
	"github.com/voxmux/voxmux/internal/observe"
	"github.com/voxmux/voxmux/pkg/output"
	"github.com/voxmux/voxmux/pkg/output/espeakng"
	"github.com/voxmux/voxmux/pkg/output/mock"
	"github.com/voxmux/voxmux/pkg/speech"
)

// defaultListenAddr is used when server.listen_addr is not configured.
const defaultListenAddr = ":8729"

// mockUtteranceLength is how long the silent mock backend pretends each
// utterance takes.
const mockUtteranceLength = 300 * time.Millisecond

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config

	out       output.Module
	store     history.Store
	metrics   *observe.Metrics
	scheduler *speech.Scheduler
	gauges    metric.Registration
	srv       *http.Server

	// closers run after the scheduler is closed, in order. Used for
	// backend resources such as the pgx pool.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithOutputModule injects a synthesis backend instead of creating one from
// config.
func WithOutputModule(m output.Module) Option {
	return func(a *App) { a.out = m }
}

// WithHistoryStore injects a history store instead of creating one from
// config.
func WithHistoryStore(s history.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects a metrics instance instead of using the package-level
// default. Tests use this to avoid cross-test pollution.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together: output module,
// history store, scheduler with its observers, occupancy gauges, and the
// HTTP server for health and metrics.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	if err := a.initOutput(); err != nil {
		return nil, fmt.Errorf("app: init output: %w", err)
	}
	if err := a.initHistory(ctx); err != nil {
		return nil, fmt.Errorf("app: init history: %w", err)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	a.scheduler = speech.New(a.out,
		speech.WithLogger(slog.Default()),
		speech.WithObserver(history.NewRecorder(a.store, slog.Default())),
		speech.WithObserver(observe.NewCollector(a.metrics)),
	)

	gauges, err := observe.RegisterSchedulerGauges(otel.GetMeterProvider(), a.scheduler.Stats)
	if err != nil {
		return nil, fmt.Errorf("app: register gauges: %w", err)
	}
	a.gauges = gauges

	a.srv = a.buildHTTPServer()
	return a, nil
}

// initOutput creates the synthesis backend named in the config, unless one
// was injected.
func (a *App) initOutput() error {
	if a.out != nil {
		return nil
	}
	switch a.cfg.Output.Module {
	case config.OutputMock:
		a.out = &mock.Module{
			AutoBegin:     true,
			AutoAckStop:   true,
			AutoAckPause:  true,
			AutoAckResume: true,
			AutoEndAfter:  mockUtteranceLength,
		}
		return nil
	case config.OutputEspeakNG, "":
		es := a.cfg.Output.EspeakNG
		mod, err := espeakng.New(espeakng.Config{
			Binary:    es.Binary,
			Voice:     es.Voice,
			Rate:      es.Rate,
			Pitch:     es.Pitch,
			Amplitude: es.Amplitude,
		}, espeakng.WithLogger(slog.Default()))
		if err != nil {
			return err
		}
		a.out = mod
		return nil
	default:
		return fmt.Errorf("unknown output module %q", a.cfg.Output.Module)
	}
}

// initHistory creates the history store named in the config, unless one was
// injected.
func (a *App) initHistory(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	switch a.cfg.History.Backend {
	case config.HistoryMemory, "":
		a.store = history.NewMemStore(a.cfg.History.Capacity)
		return nil
	case config.HistoryPostgres:
		pool, err := pgxpool.New(ctx, a.cfg.History.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		store := history.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return err
		}
		// Shed history traffic when postgres goes away instead of stacking
		// writes on a dead pool. Speech keeps flowing either way.
		a.store = history.NewGuardedStore(store, history.GuardConfig{}, slog.Default())
		a.closers = append(a.closers, func() error {
			pool.Close()
			return nil
		})
		return nil
	default:
		return fmt.Errorf("unknown history backend %q", a.cfg.History.Backend)
	}
}

// buildHTTPServer assembles the health and metrics endpoints behind the
// observe middleware.
func (a *App) buildHTTPServer() *http.Server {
	mux := http.NewServeMux()
	health.New(
		health.OutputChecker(a.out),
		health.HistoryChecker(a.store),
	).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = defaultListenAddr
	}
	return &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Scheduler returns the running scheduler. Clients connect through it.
func (a *App) Scheduler() *speech.Scheduler {
	return a.scheduler
}

// History returns the message history store.
func (a *App) History() history.Store {
	return a.store
}

// Run serves HTTP until ctx is cancelled, then stops the server. The
// scheduler itself needs no loop; it runs on client and output callbacks.
func (a *App) Run(ctx context.Context) error {
	slog.Info("app running", "listen_addr", a.srv.Addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Shutdown tears down all subsystems: the scheduler (which cancels every
// message and closes the output module), the occupancy gauges, the history
// store, and finally the backend closers. It respects the context deadline:
// if ctx expires, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down")

		if a.gauges != nil {
			if err := a.gauges.Unregister(); err != nil {
				slog.Warn("gauge unregister error", "err", err)
			}
		}
		if err := a.scheduler.Close(); err != nil {
			slog.Warn("scheduler close error", "err", err)
		}
		if err := a.store.Close(); err != nil {
			slog.Warn("history store close error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
