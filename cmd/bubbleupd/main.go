package main

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/bubbleup/bubbleup/pkg/api"
	"github.com/bubbleup/bubbleup/pkg/audit"
	"github.com/bubbleup/bubbleup/pkg/config"
	"github.com/bubbleup/bubbleup/pkg/identity"
	"github.com/bubbleup/bubbleup/pkg/observability"
	"github.com/bubbleup/bubbleup/pkg/rbac"
	"github.com/bubbleup/bubbleup/pkg/stories"
	"github.com/bubbleup/bubbleup/pkg/users"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).WithError(err).Error("invalid configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	migrateCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err := runMigrations(migrateCtx, db); err != nil {
		return err
	}
	logger.Info("database migrations applied")

	redisClient := openRedis(cfg.Redis, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	metrics := observability.NewMetrics(prometheus.NewRegistry())

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return err
	}

	verifier, err := identity.NewOIDCVerifier(ctx, cfg.Identity.IssuerURL, cfg.Identity.ClientID, metrics)
	if err != nil {
		return err
	}

	var admin identity.Admin
	if cfg.Identity.AdminAPIURL != "" {
		adminClient, err := identity.NewAdminClient(ctx, identity.AdminClientConfig{
			BaseURL:      cfg.Identity.AdminAPIURL,
			ClientID:     cfg.Identity.AdminClientID,
			ClientSecret: cfg.Identity.AdminClientSecret,
			TokenURL:     cfg.Identity.AdminTokenURL,
			Audience:     cfg.Identity.AdminAudience,
			RedirectTo:   cfg.Identity.RecoveryRedirectTo,
		}, metrics)
		if err != nil {
			return err
		}
		admin = adminClient
	} else {
		logger.Warn("identity admin API not configured, user management routes disabled")
	}

	server := api.NewServer(api.Options{
		DB:             db,
		Redis:          redisClient,
		Verifier:       verifier,
		Admin:          admin,
		Logger:         logger,
		Metrics:        metrics,
		TracingEnabled: cfg.Observability.OTelEnabled,
	})

	var reconciler *users.Reconciler
	if cfg.Reconciler.Enabled && admin != nil {
		reconciler = users.NewReconciler(rbac.NewStore(db), admin, logger, metrics)
		if err := reconciler.Start(cfg.Reconciler.Schedule); err != nil {
			return err
		}
		logger.WithField("schedule", cfg.Reconciler.Schedule).Info("orphaned account reconciler started")
	}

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	internalServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: api.NewInternalServer(db, redisClient, metrics),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		api.NewStatsSampler(db, metrics, logger).Run(gctx, 30*time.Second)
		return nil
	})

	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("API server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		logger.WithField("addr", internalServer.Addr).Info("health/metrics server listening")
		if err := internalServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if reconciler != nil {
			reconciler.Stop()
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("API server shutdown failed")
		}
		if err := internalServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("internal server shutdown failed")
		}
		if otelProviders != nil {
			if err := otelProviders.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Warn("trace exporter shutdown failed")
			}
		}
		return nil
	})

	return g.Wait()
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MinConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)
	db.SetConnMaxIdleTime(cfg.MaxIdleTime)

	pingCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func openRedis(cfg config.RedisConfig, logger *observability.Logger) *redis.Client {
	if cfg.URL == "" {
		logger.Warn("redis not configured, rate limiting disabled")
		return nil
	}

	if strings.Contains(cfg.URL, "://") {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			logger.WithError(err).Warn("invalid redis URL, rate limiting disabled")
			return nil
		}
		return redis.NewClient(opts)
	}

	return redis.NewClient(&redis.Options{
		Addr:     cfg.URL,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	if err := rbac.RunMigrations(ctx, db); err != nil {
		return err
	}
	if err := stories.RunMigrations(ctx, db); err != nil {
		return err
	}
	return audit.RunMigrations(ctx, db)
}
