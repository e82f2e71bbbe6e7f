package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/platinummonkey/hearth/pkg/audit"
	"github.com/platinummonkey/hearth/pkg/config"
	"github.com/platinummonkey/hearth/pkg/crm"
	"github.com/platinummonkey/hearth/pkg/httputil"
	"github.com/platinummonkey/hearth/pkg/middleware"
	"github.com/platinummonkey/hearth/pkg/observability"
	"github.com/platinummonkey/hearth/pkg/orgs"
	"github.com/platinummonkey/hearth/pkg/rbac"
	"github.com/platinummonkey/hearth/pkg/sequence"
	"github.com/platinummonkey/hearth/pkg/storage"
	"github.com/platinummonkey/hearth/pkg/storage/postgres"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("hearth exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	db, err := postgres.Open(ctx, postgres.ConnectionConfig{
		URL:         cfg.Database.URL,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		return err
	}
	if cfg.Database.RunMigrations {
		if err := storage.Migrate(ctx, db, logger); err != nil {
			return err
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = postgres.NewRedisClient(ctx, postgres.RedisConfig{
			URL:        cfg.Redis.URL,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			MaxRetries: cfg.Redis.MaxRetries,
			PoolSize:   cfg.Redis.PoolSize,
		})
		if err != nil {
			return err
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	catalog := rbac.NewCatalog()
	if cfg.Catalog.Path != "" {
		if err := catalog.ApplyFile(cfg.Catalog.Path); err != nil {
			return err
		}
		if cfg.Catalog.Watch {
			if err := rbac.WatchCatalogFile(ctx, catalog, cfg.Catalog.Path, logger); err != nil {
				return err
			}
		}
	}

	uow := storage.NewSQLUnitOfWork(db)
	memberStore := rbac.NewPostgresStore(db)
	guard := rbac.NewGuard(memberStore,
		rbac.WithDecisionCache(cfg.Guard.CacheSize, cfg.Guard.CacheTTL),
		rbac.WithGuardMetrics(metrics),
		rbac.WithGuardLogger(logger),
	)
	memberships := rbac.NewMemberships(memberStore, catalog, guard, uow, logger, metrics)

	principalStore := orgs.NewPostgresPrincipalStore(db)
	tenants := orgs.NewTenants(orgs.NewPostgresTenantStore(db), principalStore, memberships, uow, logger)
	principals := orgs.NewPrincipals(principalStore, guard)
	workflow := orgs.NewWorkflow(orgs.NewPostgresInvitationStore(db), memberships, guard, uow,
		orgs.WithMaxTTL(cfg.Invitations.MaxTTL),
		orgs.WithSweepConcurrency(cfg.Invitations.SweepConcurrency),
		orgs.WithWorkflowLogger(logger),
		orgs.WithWorkflowMetrics(metrics),
	)

	var counter sequence.Counter = sequence.NewPostgresCounter(db)
	if cfg.Sequence.Backend == config.SequenceBackendRedis {
		counter = sequence.NewRedisCounter(redisClient)
	}
	numbers := sequence.NewService(counter, logger, metrics)
	trail := audit.NewTrail(audit.NewPostgresStore(db), audit.WithLogger(logger), audit.WithMetrics(metrics))

	contactStore := crm.NewPostgresContactStore(db)
	jobStore := crm.NewPostgresJobStore(db)
	if cfg.Sequence.Backend == config.SequenceBackendRedis {
		reconciled, err := crm.ReconcileAllJobNumbers(ctx, jobStore, numbers)
		if err != nil {
			return fmt.Errorf("failed to reconcile job counters: %w", err)
		}
		logger.WithField("tenants", reconciled).Info("job counters reconciled")
	}
	contacts := crm.NewContacts(contactStore, trail, guard, uow, logger)
	jobs := crm.NewJobs(jobStore, contactStore, numbers, trail, guard, uow, logger)

	verifier := middleware.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	orgHandlers := orgs.NewHandlers(tenants, principals, workflow, cfg.Invitations.DefaultTTL)

	router := mux.NewRouter()
	router.Use(
		httputil.RequestIDMiddleware(logger),
		httputil.LoggingMiddleware,
		httputil.RecoveryMiddleware,
		httputil.MaxBytesMiddleware(cfg.Server.MaxBodyBytes),
	)
	if cfg.Observability.MetricsEnabled {
		router.Use(observability.HTTPMetricsMiddleware(metrics))
	}

	invitee := router.NewRoute().Subrouter()
	invitee.Use(
		middleware.RateLimit(middleware.RateLimitConfig{
			Requests: cfg.Invitations.RateLimit,
			Window:   cfg.Invitations.RateWindow,
			Logger:   logger,
		}),
		middleware.NewAuthMiddleware(verifier, true).Handler,
	)
	orgHandlers.RegisterInviteeRoutes(invitee)

	api := router.NewRoute().Subrouter()
	api.Use(middleware.NewAuthMiddleware(verifier, false).Handler)
	orgHandlers.RegisterRoutes(api)
	rbac.NewHandlers(memberships).RegisterRoutes(api)
	crm.NewHandlers(contacts, jobs).RegisterRoutes(api)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      otelhttp.NewHandler(router, "hearth"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	checker := observability.NewHealthChecker(db, redisClient)
	if cfg.Catalog.Path != "" {
		checker.AddProbe("catalog_file", true, func(context.Context) error {
			_, err := os.Stat(cfg.Catalog.Path)
			return err
		})
	}
	observability.RegisterHealthRoutes(healthMux, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:              cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	scheduler, err := schedule(cfg, logger, db, metrics, workflow)
	if err != nil {
		return err
	}
	scheduler.Start()

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, server, healthServer)
	shutdown.Register("scheduler", func(ctx context.Context) error {
		select {
		case <-scheduler.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	shutdown.Register("catalog watcher", func(context.Context) error {
		cancel()
		return nil
	})
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}
	shutdown.Register("database", func(context.Context) error { return db.Close() })
	shutdown.Register("tracing", func(ctx context.Context) error { return observability.ShutdownOTel(ctx, tp, logger) })

	serveErr := make(chan error, 2)
	for _, srv := range []*http.Server{server, healthServer} {
		srv := srv
		go func() {
			logger.Infof("Listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- fmt.Errorf("server %s: %w", srv.Addr, err)
			}
		}()
	}

	waitCtx, stopWaiting := context.WithCancel(ctx)
	defer stopWaiting()
	go func() {
		if err := <-serveErr; err != nil {
			logger.WithError(err).Error("server failed")
			stopWaiting()
		}
	}()

	return shutdown.WaitForShutdown(waitCtx)
}

// schedule registers the background jobs: the invitation expiry sweep, the
// purge of old terminal invitations and the pool statistics refresh
func schedule(cfg *config.Config, logger *observability.Logger, db *sql.DB, metrics *observability.Metrics, workflow *orgs.Workflow) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(time.UTC))

	jobs := []struct {
		name string
		spec string
		fn   func()
	}{
		{"invitation sweep", cfg.Invitations.SweepSchedule, func() {
			if _, err := workflow.SweepExpired(context.Background(), nil); err != nil {
				logger.WithError(err).Error("invitation sweep failed")
			}
		}},
		{"invitation purge", cfg.Invitations.PurgeSchedule, func() {
			if _, err := workflow.PurgeTerminal(context.Background(), cfg.Invitations.PurgeAfter); err != nil {
				logger.WithError(err).Error("invitation purge failed")
			}
		}},
		{"db stats", "@every 15s", func() {
			stats := db.Stats()
			metrics.UpdateDBStats(stats.InUse, stats.Idle)
		}},
	}

	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		if _, err := c.AddFunc(job.spec, observability.SafeJob(logger, job.name, job.fn)); err != nil {
			return nil, fmt.Errorf("failed to schedule %s: %w", job.name, err)
		}
		logger.Infof("Scheduled %s: %s", job.name, job.spec)
	}
	return c, nil
}
