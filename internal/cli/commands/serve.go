package commands

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/portal/internal/alerts"
	"github.com/conduit-lang/portal/internal/api"
	"github.com/conduit-lang/portal/internal/cache"
	"github.com/conduit-lang/portal/internal/cli/config"
	"github.com/conduit-lang/portal/internal/jobs"
	"github.com/conduit-lang/portal/internal/leads"
	"github.com/conduit-lang/portal/internal/metrics"
	"github.com/conduit-lang/portal/internal/store"
	"github.com/conduit-lang/portal/internal/tenant"
	"github.com/conduit-lang/portal/internal/web/auth"
	"github.com/conduit-lang/portal/internal/web/middleware"
	"github.com/conduit-lang/portal/internal/web/ratelimit"
	"github.com/conduit-lang/portal/internal/web/server"
)

// NewServeCommand creates the serve command
func NewServeCommand(opts *globalOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		Long: `Start the portal HTTP server together with the job workers and scheduler.

SIGINT or SIGTERM stops accepting requests, drains in-flight requests and
jobs, then closes Redis and the database.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Address = addr
			}
			if err := cfg.ValidateServe(); err != nil {
				return &configError{err: err}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.address")

	return cmd
}

// runServe wires every component and blocks until ctx ends and shutdown completes
func runServe(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	db, err := store.Open(ctx, cfg.Database.URL, cfg.Database.Pool)
	if err != nil {
		return err
	}

	if cfg.Database.AutoMigrate {
		migrator, err := store.NewMigrator(db)
		if err != nil {
			db.Close()
			return err
		}
		applied, err := migrator.Up(ctx)
		if err != nil {
			db.Close()
			return err
		}
		if len(applied) > 0 {
			logger.Info("applied migrations", zap.Strings("migrations", applied))
		}
	}

	if err := store.SeedTenants(ctx, db, cfg.TenantNames()); err != nil {
		db.Close()
		return err
	}

	tenants, err := tenant.NewRegistry(cfg.Tenants)
	if err != nil {
		db.Close()
		return err
	}

	// Redis is optional: without it limits and alert caching stay in process.
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = cache.Connect(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, using in-memory backends", zap.Error(err))
			rdb = nil
		}
	}

	m := metrics.New()

	limits, err := ratelimit.NewRegistry(cfg.RateLimit.Backend, rdb, cfg.RateLimit.Policies...)
	if err != nil {
		closeAll(logger, rdb, db)
		return err
	}
	logger.Info("rate limiting", zap.String("backend", string(limits.Backend())))

	var alertCache cache.Cache
	var memCache *cache.MemoryCache
	if rdb != nil {
		alertCache = cache.NewRedisCache(rdb, cache.DefaultConfig())
	} else {
		memCache = cache.NewMemoryCache(cache.DefaultConfig(), cfg.Alerts.CacheTTL)
		alertCache = memCache
	}

	tokens, err := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		limits.Close()
		closeAll(logger, rdb, db)
		return err
	}
	authenticator := auth.NewAuthenticator(auth.NewUserStore(db), tokens)

	queue := jobs.NewQueue(db)
	dispatcher := jobs.NewDispatcher(queue, logger)

	pool := jobs.NewWorkerPool(queue, cfg.Jobs.Pool, logger, m)
	jobs.NewNotifier(tenants, jobs.NewLogMailer(logger), logger).Register(pool)
	pool.RegisterHandler(jobs.TypePurgeCompleted, jobs.PurgeHandler(queue, cfg.Jobs.Retention, logger))

	scheduler := jobs.NewScheduler(queue, cfg.Jobs.SchedulerTick, logger)
	if err := scheduler.Add(jobs.Every(cfg.Jobs.PurgeInterval, jobs.TypePurgeCompleted, nil)); err != nil {
		limits.Close()
		closeAll(logger, rdb, db)
		return err
	}

	leadService := leads.NewService(store.NewTxManager(db), dispatcher, logger, m)
	alertService := alerts.NewService(db, alertCache, cfg.Alerts, logger, m)

	proxies, err := middleware.ParseTrustedProxies(cfg.RateLimit.TrustedProxies)
	if err != nil {
		limits.Close()
		closeAll(logger, rdb, db)
		return err
	}

	health := map[string]api.HealthCheck{
		"database": db.PingContext,
	}
	if rdb != nil {
		health["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	handler, err := api.NewRouter(api.Config{
		Tenants:             tenants,
		Tokens:              tokens,
		Authenticator:       authenticator,
		Leads:               leadService,
		Alerts:              alertService,
		Limits:              limits,
		Metrics:             m,
		Logger:              logger,
		RateLimitFailClosed: cfg.RateLimit.FailClosed,
		InternalToken:       cfg.RateLimit.InternalToken,
		TrustedProxies:      proxies,
		Health:              health,
		Profiling:           cfg.Profiling,
	})
	if err != nil {
		limits.Close()
		closeAll(logger, rdb, db)
		return err
	}

	srv, err := server.New(cfg.Server, handler)
	if err != nil {
		limits.Close()
		closeAll(logger, rdb, db)
		return err
	}

	// Workers get their own context so shutdown drains jobs instead of
	// abandoning them when the signal arrives.
	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()
	pool.Start(workCtx)
	scheduler.Start(workCtx)

	gs := server.NewGracefulShutdown(srv, cfg.Server.ShutdownTimeout, logger)
	gs.RegisterHook("scheduler", func(context.Context) error {
		scheduler.Stop()
		return nil
	})
	gs.RegisterHook("workers", pool.Shutdown)
	gs.RegisterHook("rate limits", func(context.Context) error { return limits.Close() })
	if memCache != nil {
		gs.RegisterHook("alert cache", func(context.Context) error { return memCache.Close() })
	}
	if rdb != nil {
		gs.RegisterHook("redis", func(context.Context) error { return rdb.Close() })
	}
	gs.RegisterHook("database", func(context.Context) error { return db.Close() })

	logger.Info("portal starting",
		zap.String("version", Version),
		zap.String("address", cfg.Server.Address),
		zap.Strings("tenants", tenantSlugs(tenants)),
	)

	if err := gs.Run(ctx); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	logger.Info("portal stopped")
	return nil
}

// closeAll releases connections opened before a startup failure
func closeAll(logger *zap.Logger, rdb *redis.Client, db *sql.DB) {
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if err := db.Close(); err != nil {
		logger.Warn("failed to close database", zap.Error(err))
	}
}

func tenantSlugs(r *tenant.Registry) []string {
	all := r.All()
	out := make([]string, len(all))
	for i, t := range all {
		out[i] = t.Slug
	}
	return out
}
