package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hospitalnet/agenda/internal/config"
	"github.com/hospitalnet/agenda/internal/domain/approval"
	"github.com/hospitalnet/agenda/internal/domain/directory"
	"github.com/hospitalnet/agenda/internal/domain/scheduling"
	"github.com/hospitalnet/agenda/internal/platform/auth"
	"github.com/hospitalnet/agenda/internal/platform/db"
	"github.com/hospitalnet/agenda/internal/platform/lock"
	"github.com/hospitalnet/agenda/internal/platform/middleware"
	"github.com/hospitalnet/agenda/internal/platform/server"
)

// application holds the storage handles acquired at startup and the domain
// services built on them. Close releases the handles.
type application struct {
	cfg    *config.Config
	logger zerolog.Logger
	pool   *pgxpool.Pool
	redis  *redis.Client
	pinger db.Pinger

	gate   *approval.Gate
	svc    *scheduling.Service
	engine *scheduling.Engine
}

// memoryStore answers health checks when nothing external is configured.
type memoryStore struct{}

func (memoryStore) Ping(context.Context) error { return nil }

func newApplication(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*application, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	app := &application{cfg: cfg, logger: logger}

	var (
		dir       directory.Resolver
		approvals approval.Repository
		templates scheduling.TemplateRepository
		slots     scheduling.SlotRepository
		bookings  scheduling.BookingRepository
	)
	switch cfg.StorageDriver {
	case config.StorageDriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		app.pool, app.pinger = pool, pool
		dir = directory.NewPG(pool)
		approvals = approval.NewRepoPG(pool)
		templates = scheduling.NewTemplateRepoPG(pool)
		slots = scheduling.NewSlotRepoPG(pool)
		bookings = scheduling.NewBookingRepoPG(pool)
		logger.Info().Int32("max_conns", cfg.DBMaxConns).Msg("connected to database")
	case config.StorageDriverMemory:
		size := int64(cfg.DevDirectorySize)
		dir = directory.NewMemory().Seed(size)
		repo := approval.NewMemoryRepo()
		for id := int64(1); id <= size; id++ {
			repo.Register(id, approval.Pending)
		}
		approvals = repo
		store := scheduling.NewMemoryStore()
		templates, slots, bookings = store.Templates(), store.Slots(), store.Bookings()
		app.pinger = memoryStore{}
		logger.Warn().Int64("directory_size", size).Msg("using in-memory storage; data is lost on restart")
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}

	var locker lock.Locker = lock.NewLocal()
	if cfg.RedisURL != "" {
		client, err := lock.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		app.redis = client
		locker = lock.NewRedis(client, "agenda:lock:")
		logger.Info().Msg("using redis for materialization locks")
	}

	app.gate = approval.NewGate(approvals, logger)
	app.svc = scheduling.NewService(templates, slots, dir, app.gate,
		scheduling.NewMaterializer(dir, loc, cfg.MaterializeMaxDays),
		locker, cfg.MaterializeLockTTL, logger)
	app.engine = scheduling.NewEngine(slots, bookings, dir, app.gate,
		scheduling.RetryPolicy{MaxRetries: cfg.ConflictMaxRetries, BaseBackoff: cfg.ConflictBaseBackoff}, logger)
	return app, nil
}

func (a *application) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *application) router() *echo.Echo {
	cfg := a.cfg
	e := server.New(a.logger)

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(echomw.SecureWithConfig(echomw.SecureConfig{
		XSSProtection:      "0",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
	}))
	e.Use(echomw.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware([]byte(cfg.AuthSigningKey)))
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}
	e.Use(auth.ProfessionalGate(a.gate))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/health/db", db.HealthHandler(a.pinger))

	api := e.Group("/api/v1")
	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
		rl.BurstSize = cfg.RateLimitBurst
	}
	api.Use(middleware.RateLimit(rl))

	scheduling.NewHandler(a.svc, a.engine).RegisterRoutes(api)
	approval.NewHandler(a.gate).RegisterRoutes(api)
	return e
}

const shutdownTimeout = 10 * time.Second
