package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medportal/portal/internal/config"
	"github.com/medportal/portal/internal/domain/hospital"
	"github.com/medportal/portal/internal/domain/identity"
	"github.com/medportal/portal/internal/domain/lab"
	"github.com/medportal/portal/internal/domain/medication"
	"github.com/medportal/portal/internal/domain/scheduling"
	"github.com/medportal/portal/internal/platform/ai"
	"github.com/medportal/portal/internal/platform/auth"
	"github.com/medportal/portal/internal/platform/db"
	"github.com/medportal/portal/internal/platform/metrics"
	"github.com/medportal/portal/internal/platform/middleware"
	"github.com/medportal/portal/internal/platform/websocket"
)

const version = "0.1.0"

// serverDeps are the long-lived resources runServer opens before building routes.
type serverDeps struct {
	pool      *pgxpool.Pool
	pinger    db.Pinger
	revoked   auth.RevocationStore
	limiter   middleware.Limiter
	generator ai.Generator
	metrics   *metrics.Metrics
	hub       *websocket.Hub
	logger    zerolog.Logger
}

type server struct {
	echo    *echo.Echo
	sweeper *medication.Sweeper
}

func newServer(cfg *config.Config, d serverDeps) *server {
	logger := d.logger
	issuer := auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.JWTTTL)
	pinger := d.pinger
	if pinger == nil {
		pinger = d.pool
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(d.metrics.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(middleware.BodyLimit("1M", "10M", "/api/ai", "/api/lab/ai-draft"))

	rateLimitCfg := rateLimitConfig(cfg)
	rateLimitCfg.Limiter = d.limiter
	rateLimit := middleware.RateLimit(rateLimitCfg)
	requireAuth := auth.JWTMiddleware(issuer, d.revoked)

	root := e.Group("")
	authGroup := e.Group("/auth", rateLimit)
	api := e.Group("/api", rateLimit)

	// Domain wiring
	users := identity.NewUserRepoPG(d.pool)
	identitySvc := identity.NewService(users, issuer, d.metrics, logger)
	identity.NewHandler(identitySvc).RegisterRoutes(authGroup, requireAuth)
	authGroup.POST("/logout", auth.LogoutHandler(d.revoked), requireAuth)

	hospitalSvc := hospital.NewService(
		hospital.NewHospitalRepoPG(d.pool),
		hospital.NewDoctorRepoPG(d.pool),
		issuer, d.metrics, logger,
	)
	hospital.NewHandler(hospitalSvc).RegisterRoutes(api, requireAuth)

	schedSvc := scheduling.NewService(scheduling.NewAppointmentRepoPG(d.pool), hospitalSvc, d.hub, d.metrics, logger)
	scheduling.NewHandler(schedSvc).RegisterRoutes(api, requireAuth)

	labSvc := lab.NewService(
		lab.NewLabRepoPG(d.pool),
		lab.NewTestRepoPG(d.pool),
		lab.NewBookingRepoPG(d.pool),
		lab.Config{
			Generator: d.generator,
			AITimeout: cfg.AITimeout,
			Issuer:    issuer,
			Events:    d.hub,
			Metrics:   d.metrics,
			Logger:    logger,
		},
	)
	lab.NewHandler(labSvc).RegisterRoutes(root, api, requireAuth)

	medicines := medication.NewMedicineRepoPG(d.pool)
	medication.NewHandler(medication.NewService(medicines, logger)).RegisterRoutes(root, requireAuth)
	sweeper := medication.NewSweeper(medicines, d.hub, d.metrics, logger, cfg.ReminderSweepInterval)

	ai.NewHandler(d.generator, cfg.AITimeout, d.metrics).RegisterRoutes(api, requireAuth)

	websocket.NewHandler(d.hub, issuer, d.revoked).RegisterRoutes(root)

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pinger))
	e.GET("/metrics", d.metrics.Handler())

	return &server{echo: e, sweeper: sweeper}
}

// sharedStores are the state that must be shared by every replica. With
// REDIS_URL set both live in Redis, otherwise token revocations are kept in
// process memory and rate limiting uses local token buckets.
type sharedStores struct {
	revoked auth.RevocationStore
	limiter middleware.Limiter
	close   func()
}

func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (sharedStores, error) {
	if cfg.RedisURL == "" {
		store := auth.NewMemoryRevocationStore()
		logger.Warn().Msg("REDIS_URL not set, token revocations are kept in memory")
		return sharedStores{revoked: store, close: store.Close}, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return sharedStores{}, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return sharedStores{}, fmt.Errorf("redis ping: %w", err)
	}

	revoked := auth.NewRedisRevocationStoreWithClient(client)
	rl := rateLimitConfig(cfg)
	logger.Info().Msg("using redis for token revocation and rate limiting")
	return sharedStores{
		revoked: revoked,
		limiter: middleware.NewRedisLimiter(client, rl.BurstSize, rl.Window()),
		close:   func() { _ = revoked.Close() },
	}, nil
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rl.RequestsPerSecond <= 0 || rl.BurstSize <= 0 {
		rl = middleware.DefaultRateLimitConfig()
	}
	return rl
}

func openGenerator(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (ai.Generator, func(), error) {
	if !cfg.AIEnabled() {
		logger.Warn().Msg("GEMINI_API_KEY not set, AI features are disabled")
		return ai.Disabled{}, func() {}, nil
	}
	gen, err := ai.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
	if err != nil {
		return nil, nil, err
	}
	return gen, func() { _ = gen.Close() }, nil
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func runServer() error {
	logger := newLogger()

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	stores, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open shared stores")
	}
	defer stores.close()

	gen, closeGen, err := openGenerator(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create AI client")
	}
	defer closeGen()

	srv := newServer(cfg, serverDeps{
		pool:      pool,
		revoked:   stores.revoked,
		limiter:   stores.limiter,
		generator: gen,
		metrics:   metrics.New(),
		hub:       websocket.NewHub(logger),
		logger:    logger,
	})

	if err := srv.sweeper.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start refill sweeper")
	}
	defer srv.sweeper.Stop()

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := srv.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.echo.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
