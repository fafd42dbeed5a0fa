package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/lectio/canon/pkg/api"
	"github.com/lectio/canon/pkg/audit"
	"github.com/lectio/canon/pkg/auth"
	"github.com/lectio/canon/pkg/config"
	"github.com/lectio/canon/pkg/middleware"
	"github.com/lectio/canon/pkg/observability"
	"github.com/lectio/canon/pkg/rbac"
	"github.com/lectio/canon/pkg/storage"
)

func main() {
	migrate := flag.Bool("migrate", false, "apply database schema and seed the permission catalog, then continue serving")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("failed to connect to postgres")
		os.Exit(1)
	}
	defer db.Close()

	if *migrate {
		if err := rbac.Migrate(ctx, db); err != nil {
			logger.WithError(err).Error("migration failed")
			os.Exit(1)
		}
		logger.Info("schema applied and catalog seeded")
	}

	metrics := observability.NewMetrics(observability.NewRegistry())
	auditLog := audit.NewLogger(os.Stderr)
	tokens := auth.NewTokenManager([]byte(cfg.Auth.JWTSecret), cfg.Auth.JWTIssuer).
		WithTokenTTL(cfg.Auth.TokenTTL)
	binder := storage.NewBinder(db, cfg.Storage.AcquireTimeout)
	store := rbac.NewStore()
	gate := rbac.NewGate(rbac.NewAuthorizer(store, logger), metrics, auditLog, logger)

	var limiter *middleware.LoginRateLimiter
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		limiter = middleware.NewLoginRateLimiter(redisClient, nil, logger)
	}

	server := api.NewServer(api.Options{
		DB:      db,
		Tokens:  tokens,
		Binder:  binder,
		Gate:    gate,
		Limiter: limiter,
		Logger:  logger,
		Audit:   auditLog,
		Metrics: metrics,
	})

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	health := observability.NewHealthHandler(db)
	healthMux := mux.NewRouter()
	healthMux.HandleFunc("/healthz/live", health.Live).Methods(http.MethodGet)
	healthMux.HandleFunc("/healthz/ready", health.Ready).Methods(http.MethodGet)
	healthMux.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("api server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	// periodically publish pool statistics
	g.Go(func() error {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				metrics.CollectDBStats(db)
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("api server shutdown")
		}
		return healthServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
}
