package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"caseTasks/internal/config"
	"caseTasks/internal/handlers"
	"caseTasks/internal/logger"
	"caseTasks/internal/metrics"
	"caseTasks/internal/middleware"
	"caseTasks/internal/migrations"
	"caseTasks/internal/notify"
	"caseTasks/internal/repository/task/inmemory"
	"caseTasks/internal/repository/task/postgres"
	userinmem "caseTasks/internal/repository/user/inmemory"
	userpg "caseTasks/internal/repository/user/postgres"
	"caseTasks/internal/service"
	"caseTasks/internal/worker"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type App struct {
	config     *config.Config
	server     *http.Server
	router     *chi.Mux
	repository service.TaskRepository
	users      service.UserDirectory
	service    *service.TaskService
	worker     *worker.OverdueWorker
	metrics    *metrics.Metrics
	registry   *prometheus.Registry
	shutdowns  []func()
}

func New(cfg *config.Config) *App {
	return &App{
		config:    cfg,
		shutdowns: make([]func(), 0),
	}
}

// Init builds every component. Close releases what Init acquired, also after a failed Init.
func (a *App) Init(ctx context.Context) error {
	if err := logger.Init(a.config.Logging.Development); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	a.shutdowns = append(a.shutdowns, func() {
		logger.Info("App: flushing logs")
		logger.Sync()
	})

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.registry)

	if err := a.initStorage(ctx); err != nil {
		return err
	}

	var notifier notify.Notifier = notify.NewRetrying(notify.NewLogNotifier(), notify.RetryOptions{
		MaxRetries: a.config.Notify.MaxRetries,
		Timeout:    a.config.Notify.Timeout,
	})
	notifier = notify.WithRecorder(notifier, a.metrics)

	a.service = service.NewTaskService(a.repository, a.users,
		service.WithNotifier(notifier, a.config.Notify.Concurrency),
		service.WithMetrics(a.metrics),
	)

	if a.config.Worker.Enabled {
		a.worker = worker.NewOverdueWorker(a.repository, notifier,
			a.config.Worker.Interval,
			a.config.Worker.BatchSize,
			a.config.Worker.RemindEvery,
			worker.WithGauge(a.metrics),
			worker.WithConcurrency(a.config.Notify.Concurrency),
		)
	}

	a.initRouter()
	a.server = &http.Server{
		Addr:         a.config.GetServerAddr(),
		Handler:      otelhttp.NewHandler(a.router, "case-tasks"),
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
	}

	logger.Info("App: initialized",
		zap.String("repository", a.config.Repository.Type),
		zap.Bool("worker", a.worker != nil),
		zap.String("addr", a.server.Addr))
	return nil
}

func (a *App) initStorage(ctx context.Context) error {
	switch a.config.Repository.Type {
	case config.RepositoryInMemory:
		a.repository = inmemory.NewTaskStorage()
		users, err := a.seedUsers()
		if err != nil {
			return err
		}
		a.users = users
		return nil

	case config.RepositoryPostgres:
		if err := migrations.Up(a.config.Database.URL); err != nil {
			return fmt.Errorf("applying migrations: %w", err)
		}
		storage, err := postgres.New(ctx, a.config.Database)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		a.shutdowns = append(a.shutdowns, storage.Close)

		users := userpg.New(storage.Pool())
		seed, err := a.seedUsers()
		if err != nil {
			return err
		}
		for _, u := range seed.All() {
			if err := users.Upsert(ctx, u); err != nil {
				return fmt.Errorf("seeding user %s: %w", u.UUID, err)
			}
		}

		a.repository = storage
		a.users = users
		return nil
	}
	return fmt.Errorf("unknown repository type %q", a.config.Repository.Type)
}

func (a *App) seedUsers() (*userinmem.UserStorage, error) {
	if a.config.Seed.UsersFile == "" {
		logger.Warn("App: no users file configured, every caller will be unauthenticated")
		return userinmem.NewUserStorage(), nil
	}
	users, err := userinmem.LoadFile(a.config.Seed.UsersFile)
	if err != nil {
		return nil, fmt.Errorf("loading users: %w", err)
	}
	return users, nil
}

func (a *App) initRouter() {
	h := handlers.NewTaskHandler(a.service)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.config.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", middleware.UserIDHeader, "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Remaining"},
		MaxAge:         300,
	}))
	r.Use(middleware.RateLimit(a.config.Server.RateLimitRPM))
	r.Use(middleware.Timeout(a.config.Server.RequestTimeout))

	r.Get("/health", h.HealthCheck)
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Identify(a.service.Identify))
		h.Routes(r)
	})

	a.router = r
}

// Handler is the router without the tracing wrapper, for tests.
func (a *App) Handler() http.Handler {
	return a.router
}

// Run serves until ctx is done, then shuts the server down gracefully.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("App: server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})

	if a.worker != nil {
		g.Go(func() error {
			a.worker.Start(gctx)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
		defer cancel()

		logger.Info("App: shutting down server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Close runs the shutdown hooks in reverse order.
func (a *App) Close() {
	for i := len(a.shutdowns) - 1; i >= 0; i-- {
		a.shutdowns[i]()
	}
	a.shutdowns = nil
}
