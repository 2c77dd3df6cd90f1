package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"leaveflow/internal/domain/leave"
	"leaveflow/internal/domain/notifications"
	"leaveflow/internal/platform/cache"
	"leaveflow/internal/platform/config"
	"leaveflow/internal/platform/db"
	"leaveflow/internal/platform/email"
	"leaveflow/internal/platform/jobs"
	"leaveflow/internal/storage/memory"
	"leaveflow/internal/storage/postgres"
	"leaveflow/internal/storage/sqlite"
	leavehandler "leaveflow/internal/transport/http/handlers/leave"
	"leaveflow/internal/transport/http/middleware"
)

type App struct {
	Config  config.Config
	Service *leave.Service
	Router  http.Handler

	jobs     *jobs.Service
	stopJobs context.CancelFunc
	closers  []func()
}

// New wires the store selected by cfg.StoreDriver, the read cache, the
// notification workers and the HTTP router.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	app := &App{Config: cfg}

	store, err := app.openStore(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	allowances, err := cfg.Allowances()
	if err != nil {
		app.Close()
		return nil, err
	}
	entries, err := cache.New[[]leave.Summary](cfg.CacheMaxEntries, time.Now)
	if err != nil {
		app.Close()
		return nil, err
	}

	jobCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	app.jobs = jobs.New(cfg.NotifyQueueSize)
	app.stopJobs = stop
	app.jobs.Start(jobCtx, cfg.NotifyWorkers)

	notifier := notifications.New(app.jobs, email.New(cfg), cfg.EmailFrom, cfg.EmailDomain)
	app.Service = leave.NewService(store, leave.NewReadCache(entries), notifier, leave.NewAggregator(allowances))
	app.Router = app.routes()
	return app, nil
}

func (a *App) openStore(ctx context.Context) (leave.Store, error) {
	switch a.Config.StoreDriver {
	case config.DriverPostgres:
		pool, err := db.Connect(ctx, a.Config.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db connect failed: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		if a.Config.RunMigrations {
			if err := db.Migrate(ctx, pool, db.Migrations()); err != nil {
				return nil, fmt.Errorf("migrations failed: %w", err)
			}
		}
		return postgres.NewStore(pool), nil
	case config.DriverSQLite:
		store, err := sqlite.New(a.Config.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if err := store.Close(); err != nil {
				slog.Warn("sqlite close failed", "err", err)
			}
		})
		return store, nil
	case config.DriverMemory:
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", a.Config.StoreDriver)
}

func (a *App) routes() http.Handler {
	cfg := a.Config
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	if len(cfg.CORSAllowedOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.Auth(cfg.JWTSecret))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.Service.Ping(ctx); err != nil {
			http.Error(w, "store not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if cfg.MetricsEnabled {
		router.Handle("/metrics", promhttp.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
		r.Use(middleware.TransitionRateLimit(cfg.RateLimitPerMinute, time.Minute))
		leavehandler.NewHandler(a.Service).RegisterRoutes(r)
	})

	return router
}

// Close stops the notification workers and releases the store.
func (a *App) Close() {
	if a.stopJobs != nil {
		a.stopJobs()
		a.jobs.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func Run() {
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer app.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("server shutdown failed", "err", err)
		}
	}()

	slog.Info("leave server listening", "addr", cfg.Addr, "store", cfg.StoreDriver)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
