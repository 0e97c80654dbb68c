// Command iar runs the information asset register API server.
//
// Usage:
//
//	iar [serve]                      run migrations and serve the API
//	iar migrate                      apply pending schema migrations and exit
//	iar grant <username> <codename>  grant a model permission, e.g. assets.view_asset
//	iar superuser <username>         make a user a superuser
//
// Configuration is read from IAR_* environment variables, optionally on top
// of the YAML file named by IAR_CONFIG_FILE.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/platinummonkey/iar/pkg/api"
	"github.com/platinummonkey/iar/pkg/assets"
	"github.com/platinummonkey/iar/pkg/auth"
	"github.com/platinummonkey/iar/pkg/config"
	"github.com/platinummonkey/iar/pkg/database"
	"github.com/platinummonkey/iar/pkg/introspect"
	"github.com/platinummonkey/iar/pkg/lookup"
	"github.com/platinummonkey/iar/pkg/oauth2client"
	"github.com/platinummonkey/iar/pkg/observability"
	"github.com/platinummonkey/iar/pkg/permissions"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [serve | migrate | grant <username> <codename> | superuser <username>]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	ctx := context.Background()
	args := flag.Args()
	command := "serve"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	switch command {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "migrate":
		err = withDatabase(ctx, cfg, logger, func(*sql.DB) error { return nil })
	case "grant":
		if len(args) != 2 {
			flag.Usage()
			os.Exit(2)
		}
		err = withDatabase(ctx, cfg, logger, func(db *sql.DB) error {
			return auth.NewStore(db).GrantPermission(ctx, args[0], args[1])
		})
	case "superuser":
		if len(args) != 1 {
			flag.Usage()
			os.Exit(2)
		}
		err = withDatabase(ctx, cfg, logger, func(db *sql.DB) error {
			return auth.NewStore(db).SetSuperuser(ctx, args[0], true)
		})
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		logger.WithError(err).Error(command + " failed")
		os.Exit(1)
	}
}

// openDatabase connects to Postgres and applies pending migrations
func openDatabase(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*sql.DB, error) {
	db, err := database.Open(ctx, database.Options{
		URL:         cfg.Database.URL,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: cfg.Database.MaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func withDatabase(ctx context.Context, cfg *config.Config, logger *observability.Logger, fn func(db *sql.DB) error) error {
	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func serve(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	server := &http.Server{
		Addr:         cfg.Addr(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	// cleanups run in reverse registration order, also when startup fails
	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	fail := func(err error) error {
		return errors.Join(err, shutdown.Shutdown(context.Background()))
	}

	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Observability.TracingEnabled,
		Endpoint:    cfg.Observability.OTLPEndpoint,
		ServiceName: "iar",
		Insecure:    cfg.Observability.OTLPInsecure,
		SampleRatio: cfg.Observability.SampleRatio,
	}, logger)
	if err != nil {
		return err
	}
	if tp != nil {
		shutdown.Register("tracing", func(ctx context.Context) error {
			return observability.ShutdownTracing(ctx, tp)
		})
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	shutdown.Register("database", func(context.Context) error { return db.Close() })

	var rdb *redis.Client
	var cache lookup.ProfileCache
	if cfg.Redis.URL != "" {
		rdb, err = lookup.OpenRedis(ctx, lookup.RedisOptions{
			URL:        cfg.Redis.URL,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			MaxRetries: cfg.Redis.MaxRetries,
			PoolSize:   cfg.Redis.PoolSize,
		})
		if err != nil {
			return fail(err)
		}
		shutdown.Register("redis", func(context.Context) error { return rdb.Close() })
		cache = lookup.NewRedisCache(rdb)
	} else {
		cache = lookup.NewMemoryCache(cfg.Lookup.CacheSize)
	}
	logger.WithField("cache_type", cache.Name()).Info("Profile cache ready")

	session := func(scopes []string) *oauth2client.Session {
		return oauth2client.NewSession(oauth2client.Config{
			ClientID:     cfg.OAuth2.ClientID,
			ClientSecret: cfg.OAuth2.ClientSecret,
			TokenURL:     cfg.OAuth2.TokenURL,
			Scopes:       scopes,
			Timeout:      cfg.OAuth2.RequestTimeout,
			MaxRetries:   cfg.OAuth2.MaxConnectRetries,
		}, oauth2client.WithLogger(logger), oauth2client.WithMetrics(metrics))
	}

	validator := introspect.NewClient(session(cfg.OAuth2.IntrospectScopes), cfg.OAuth2.IntrospectURL, logger, metrics)
	profiles := lookup.NewClient(session(cfg.Lookup.Scopes), cfg.Lookup.RootURL, cache, cfg.Lookup.CacheTTL, logger, metrics)
	authenticator := auth.NewAuthenticator(validator, auth.NewStore(db), profiles, logger)

	store := assets.NewStore(db)
	policy := permissions.DefaultPolicy(cfg.Assets.RequiredScopes, cfg.Assets.UsersGroup, profiles, logger)
	handlers := api.NewAssetHandlers(store, policy, profiles, api.Options{
		Group:    cfg.Assets.UsersGroup,
		PageSize: cfg.Assets.PageSize,
	})

	serverCfg := api.ServerConfig{
		Assets:        handlers,
		Authenticator: authenticator,
		Logger:        logger,
		Health:        observability.NewHealthChecker(db, rdb),
	}
	if cfg.Observability.MetricsEnabled {
		serverCfg.Metrics = metrics
		serverCfg.Registry = registry
	}
	server.Handler = api.NewServer(serverCfg)

	scheduler, err := scheduleStats(cfg.Assets.StatsSchedule, store, metrics, logger)
	if err != nil {
		return fail(err)
	}
	if err := refreshStats(ctx, store, metrics); err != nil {
		logger.WithError(err).Warn("Initial asset stats refresh failed")
	}
	scheduler.Start()
	shutdown.Register("stats scheduler", func(ctx context.Context) error {
		select {
		case <-scheduler.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	serveErr := make(chan error, 2)
	go func() {
		defer observability.RecoverPanic(logger, "http server")
		logger.Infof("Starting information asset register on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fail(err)
		}
	}()

	go func() {
		serveErr <- shutdown.WaitForSignal()
	}()

	if err := <-serveErr; err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}
