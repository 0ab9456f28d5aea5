package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/openhie/shr/internal/config"
	"github.com/openhie/shr/internal/domain/content"
	"github.com/openhie/shr/internal/domain/docstore"
	"github.com/openhie/shr/internal/domain/encounter"
	"github.com/openhie/shr/internal/domain/exchange"
	"github.com/openhie/shr/internal/domain/identity"
	"github.com/openhie/shr/internal/domain/settings"
	"github.com/openhie/shr/internal/platform/auth"
	"github.com/openhie/shr/internal/platform/blobstore"
	"github.com/openhie/shr/internal/platform/db"
	"github.com/openhie/shr/internal/platform/middleware"
	"github.com/openhie/shr/internal/platform/server"
)

const apiPrefix = "/api/v1/shr"

// backends holds the wired services and the connections behind them.
type backends struct {
	pool       *pgxpool.Pool
	resolver   *identity.Resolver
	encounters *encounter.Service
	registry   *content.Registry
	pingers    map[string]db.Pinger
	closers    []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

type store struct {
	patients   identity.PatientRepository
	providers  identity.ProviderRepository
	encounters encounter.Repository
	settings   settings.Store
	docs       docstore.Repository
	tx         db.Transactor
}

func openBackends(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*backends, error) {
	b := &backends{pingers: map[string]db.Pinger{}}

	var st store
	switch cfg.StoreBackend {
	case config.StoreBackendPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		b.pool = pool
		b.closers = append(b.closers, pool.Close)
		b.pingers["postgres"] = db.PingFunc(pool.Ping)
		st = store{
			patients:   identity.NewPatientRepo(pool),
			providers:  identity.NewProviderRepo(pool),
			encounters: encounter.NewRepo(pool),
			settings:   settings.NewStorePG(pool),
			docs:       docstore.NewRepo(pool),
			tx:         db.NewTransactor(pool),
		}
		logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")
	case config.StoreBackendMemory:
		st = memoryStore()
		logger.Warn().Msg("using the in-memory store, data is lost on restart")
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.pingers["blobstore"] = blobs

	var cache identity.Cache
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		b.closers = append(b.closers, func() { _ = client.Close() })

		rc := identity.NewRedisCache(client, cfg.IdentityCacheTTL)
		if err := rc.Ping(ctx); err != nil {
			logger.Warn().Err(err).Msg("identity cache unreachable, lookups fall through to the store")
		}
		b.pingers["redis"] = rc
		cache = rc
	}

	b.resolver = identity.NewResolver(st.patients, st.providers, cache, logger)
	b.encounters = encounter.NewService(st.encounters, st.settings, logger)
	b.registry = buildRegistry(cfg, b.encounters, st.docs, blobs, st.tx, logger)
	return b, nil
}

func memoryStore() store {
	return store{
		patients:   identity.NewPatientRepoMemory(),
		providers:  identity.NewProviderRepoMemory(),
		encounters: encounter.NewRepoMemory(),
		settings:   settings.NewMemoryStore(),
		docs:       docstore.NewRepoMemory(),
	}
}

func openBlobStore(ctx context.Context, cfg *config.Config) (blobstore.Store, error) {
	if cfg.BlobBackend != config.BlobBackendMinio {
		return blobstore.NewMemoryStore(), nil
	}
	return blobstore.NewMinioStore(ctx, blobstore.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	})
}

type handlerBinding struct {
	ContentType string
	Handler     string
}

// handlerBindings lists the configured content types in registration order.
// A type named in both lists ends up with the CDA handler.
func handlerBindings(cfg *config.Config) []handlerBinding {
	bindings := make([]handlerBinding, 0, len(cfg.DefaultTypes)+len(cfg.CDATypes))
	for _, t := range cfg.DefaultTypes {
		bindings = append(bindings, handlerBinding{ContentType: content.NormalizeType(t), Handler: docstore.DefaultHandlerName})
	}
	for _, t := range cfg.CDATypes {
		bindings = append(bindings, handlerBinding{ContentType: content.NormalizeType(t), Handler: docstore.CDAHandlerName})
	}
	return bindings
}

func buildRegistry(cfg *config.Config, encounters docstore.EncounterStore, docs docstore.Repository, blobs blobstore.Store, tx db.Transactor, logger zerolog.Logger) *content.Registry {
	handlers := map[string]content.Handler{
		docstore.DefaultHandlerName: docstore.NewEncounterHandler(docstore.DefaultHandlerName, encounters, docs, blobs, tx, logger),
		docstore.CDAHandlerName: docstore.NewCDAHandler(
			docstore.NewEncounterHandler(docstore.CDAHandlerName, encounters, docs, blobs, tx, logger),
		),
	}

	registry := content.NewRegistry()
	for _, b := range handlerBindings(cfg) {
		registry.Register(b.ContentType, handlers[b.Handler])
	}
	return registry
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	return auth.JWTConfig{
		SigningKey: []byte(cfg.AuthSigningKey),
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
	}
}

func newServer(cfg *config.Config, b *backends, logger zerolog.Logger) *echo.Echo {
	e := server.New(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(b.pingers, b.pool))

	authMW := auth.DevAuthMiddleware()
	if cfg.AuthEnabled() {
		authMW = auth.JWTMiddleware(jwtConfig(cfg))
	}
	api := e.Group(apiPrefix,
		authMW,
		middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			BurstSize:         cfg.RateLimitBurst,
			KeyFunc:           middleware.ClientKey,
		}),
		middleware.Audit(logger, apiPrefix),
	)

	exchange.NewHandler(b.resolver, b.encounters, b.registry, logger).RegisterRoutes(api)
	return e
}
