package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/vetcare-scheduling/internal/api/router"
	"github.com/wolfman30/vetcare-scheduling/internal/app/bootstrap"
	appconfig "github.com/wolfman30/vetcare-scheduling/internal/config"
	"github.com/wolfman30/vetcare-scheduling/internal/http/handlers"
	"github.com/wolfman30/vetcare-scheduling/internal/observability/metrics"
	"github.com/wolfman30/vetcare-scheduling/internal/practice"
	"github.com/wolfman30/vetcare-scheduling/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting vetcare-scheduling API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := checkRuntime(cfg); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	pool, err := bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	var sqlDB *sql.DB
	if pool != nil {
		defer pool.Close()
		sqlDB = stdlib.OpenDBFromPool(pool)
		defer sqlDB.Close()
	}
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	schedMetrics := metrics.NewSchedulingMetrics(reg)

	app := bootstrap.BuildScheduling(bootstrap.SchedulingDeps{
		Config:  cfg,
		Pool:    pool,
		SQLDB:   sqlDB,
		Redis:   redisClient,
		Metrics: schedMetrics,
		Logger:  logger,
	})

	srv := newServer(cfg, buildRouter(cfg, app, healthChecks(pool, redisClient), promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), ctx.Done(), logger))

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// checkRuntime refuses production starts without a database or secrets. An
// empty admin secret disables admin routes and an empty Retell secret accepts
// unsigned webhooks.
func checkRuntime(cfg *appconfig.Config) error {
	if !cfg.IsProduction() {
		return nil
	}
	switch {
	case cfg.DatabaseURL == "":
		return errors.New("DATABASE_URL is required in production")
	case cfg.AdminJWTSecret == "":
		return errors.New("ADMIN_JWT_SECRET is required in production")
	case cfg.RetellWebhookSecret == "":
		return errors.New("RETELL_WEBHOOK_SECRET is required in production")
	}
	return nil
}

func newServer(cfg *appconfig.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func buildRouter(cfg *appconfig.Config, app *bootstrap.Scheduling, checks map[string]handlers.HealthCheck, metricsHandler http.Handler, done <-chan struct{}, logger *logging.Logger) http.Handler {
	availabilityCfg := handlers.AvailabilityHandlerConfig{
		Writer:          app.Writer,
		DefaultTimezone: cfg.DefaultPracticeTimezone,
		Publisher:       app.Publisher,
		Logger:          logger,
	}
	if app.Practices != nil {
		availabilityCfg.Timezones = app.Practices
	}
	if app.Audit != nil {
		availabilityCfg.Audit = app.Audit
	}

	routerCfg := &router.Config{
		Logger:              logger,
		Health:              handlers.NewHealthHandler(checks),
		MetricsHandler:      metricsHandler,
		Retell:              handlers.NewRetellHandler(app.Booking, app.Metrics, logger),
		Slots:               handlers.NewSlotsHandler(app.Booking, logger),
		Availability:        handlers.NewAvailabilityHandler(availabilityCfg),
		AdminAuthSecret:     cfg.AdminJWTSecret,
		RetellWebhookSecret: cfg.RetellWebhookSecret,
		RateLimitRPS:        cfg.RateLimitRPS,
		RateLimitBurst:      cfg.RateLimitBurst,
		Done:                done,
	}
	if app.Practices != nil {
		routerCfg.PracticeConfig = practice.NewHandler(app.Practices, cfg.DefaultPracticeTimezone, logger)
	}
	return router.New(routerCfg)
}

func healthChecks(pool *pgxpool.Pool, redisClient *redis.Client) map[string]handlers.HealthCheck {
	checks := map[string]handlers.HealthCheck{}
	if pool != nil {
		checks["postgres"] = pool.Ping
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	return checks
}
