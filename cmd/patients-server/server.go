package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ehr/patients/internal/config"
	"github.com/ehr/patients/internal/domain/patient"
	"github.com/ehr/patients/internal/platform/db"
	"github.com/ehr/patients/internal/platform/middleware"
	"github.com/ehr/patients/internal/platform/telemetry"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// healthPaths bypass rate limiting and the response cache.
var healthPaths = []string{"/health", "/health/db", "/metrics"}

// cacheInvalidator drops every cached response after a committed change and
// counts the change.
type cacheInvalidator struct {
	store   middleware.CacheStore
	metrics *telemetry.Provider
}

func (c cacheInvalidator) Publish(ctx context.Context, evt patient.ChangeEvent) error {
	c.metrics.RecordChange(string(evt.Action))
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear response cache: %w", err)
	}
	return nil
}

type serverDeps struct {
	storage *storage
	cache   middleware.CacheStore
	events  patient.EventPublisher
	metrics *telemetry.Provider
	logger  zerolog.Logger
}

func newServer(cfg *config.Config, deps serverDeps) *echo.Echo {
	publishers := patient.MultiPublisher{cacheInvalidator{store: deps.cache, metrics: deps.metrics}}
	if deps.events != nil {
		publishers = append(publishers, deps.events)
	}
	svc := patient.NewService(deps.storage.repo,
		patient.WithEvents(publishers),
		patient.WithLogger(deps.logger),
	)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())
	e.Use(deps.metrics.MetricsMiddleware())
	e.Use(middleware.Logger(deps.logger))
	e.Use(middleware.Recovery(deps.logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderContentType, middleware.RequestIDHeader},
	}))
	e.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		SkipPaths:         healthPaths,
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(middleware.ResponseCache(middleware.ResponseCacheConfig{
		Store:     deps.cache,
		TTL:       cfg.CacheTTL,
		SkipPaths: healthPaths,
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/health/db", db.HealthHandler(deps.storage.backend, deps.storage.check, deps.storage.stats))
	e.GET("/metrics", deps.metrics.Handler())

	patient.NewHandler(svc).RegisterRoutes(e)
	return e
}
