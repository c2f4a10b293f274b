package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	gormlogger "gorm.io/gorm/logger"

	"github.com/janhq/flow-api/internal/config"
	"github.com/janhq/flow-api/internal/domain/cache"
	domainerrors "github.com/janhq/flow-api/internal/domain/errors"
	"github.com/janhq/flow-api/internal/domain/flow"
	"github.com/janhq/flow-api/internal/domain/interpreter"
	"github.com/janhq/flow-api/internal/domain/session"
	"github.com/janhq/flow-api/internal/domain/speech"
	"github.com/janhq/flow-api/internal/domain/translation"
	"github.com/janhq/flow-api/internal/infrastructure/auth"
	"github.com/janhq/flow-api/internal/infrastructure/database"
	"github.com/janhq/flow-api/internal/infrastructure/llmprovider"
	"github.com/janhq/flow-api/internal/infrastructure/logger"
	"github.com/janhq/flow-api/internal/infrastructure/observability"
	"github.com/janhq/flow-api/internal/infrastructure/repository/flowrepo"
	"github.com/janhq/flow-api/internal/infrastructure/scheduler"
	"github.com/janhq/flow-api/internal/infrastructure/storage"
	"github.com/janhq/flow-api/internal/interfaces/httpserver"
)

type Application struct {
	httpServer *httpserver.HttpServer
	scheduler  *scheduler.Scheduler
	closers    []io.Closer
	log        zerolog.Logger
}

func NewApplication(httpServer *httpserver.HttpServer, sched *scheduler.Scheduler, resources *Resources, log zerolog.Logger) *Application {
	return &Application{
		httpServer: httpServer,
		scheduler:  sched,
		closers:    resources.closers,
		log:        log,
	}
}

// Start runs the HTTP server and the scheduler until ctx is cancelled or one of them fails.
func (a *Application) Start(ctx context.Context) error {
	defer a.close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.httpServer.Run(ctx) })
	g.Go(func() error { return a.scheduler.Run(ctx) })
	return g.Wait()
}

func (a *Application) close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.log.Warn().Err(err).Msg("close resource")
		}
	}
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	resources, err := newResources(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize storage and caches")
	}

	authValidator, err := newAuthValidator(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize auth validator")
	}

	provider := newProviderClient(cfg, log)
	sessionService := newSessionService(cfg, resources, provider, log)

	httpServer := httpserver.New(cfg, log, sessionService, authValidator, readinessChecks(resources))
	app := NewApplication(httpServer, newScheduler(cfg, sessionService, log), resources, log)

	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("application stopped with error")
	}

	log.Info().Msg("application exited cleanly")
}

// Resources holds the storage and cache backends selected by configuration.
type Resources struct {
	store   flow.Store
	backend cache.Backend
	checks  []httpserver.ReadinessCheck
	closers []io.Closer
}

func newResources(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Resources, error) {
	res := &Resources{}

	var repo flow.Repository
	switch cfg.StorageBackend {
	case config.StoragePostgres:
		db, err := database.Connect(database.Config{
			DSN:             cfg.DatabaseURL,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			MaxOpenConns:    cfg.DBMaxOpenConns,
			ConnMaxLifetime: cfg.DBConnLifetime,
			LogLevel:        gormlogger.Warn,
		})
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx, db, log); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		res.checks = append(res.checks, httpserver.ReadinessCheck{Name: "database", Check: sqlDB.PingContext})
		res.closers = append(res.closers, sqlDB)
		repo = flowrepo.NewPostgresRepository(db)
	}

	var assets flow.AssetStore
	if cfg.StorageBackend == config.StorageLocal || cfg.AssetBackend == config.AssetsLocal {
		local, err := storage.NewLocalStorage(cfg.StoragePath, log)
		if err != nil {
			return nil, err
		}
		res.checks = append(res.checks, httpserver.ReadinessCheck{Name: "local_storage", Check: local.Health})
		if repo == nil {
			repo = local
		}
		assets = local
	}
	if cfg.AssetBackend == config.AssetsS3 {
		s3Store, err := storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3UsePathStyle,
			KeyPrefix:    cfg.S3KeyPrefix,
		}, log)
		if err != nil {
			return nil, err
		}
		res.checks = append(res.checks, httpserver.ReadinessCheck{Name: "s3", Check: s3Store.Health})
		assets = s3Store
	}
	res.store = flow.NewStore(repo, assets)

	backend, err := cache.NewBackend(cache.BackendConfig{
		Type:       cfg.CacheBackend,
		RedisURL:   cfg.RedisURL,
		KeyPrefix:  cfg.CacheKeyPrefix,
		MaxEntries: cfg.CacheMaxEntries,
	})
	if err != nil {
		return nil, fmt.Errorf("create cache backend: %w", err)
	}
	if redisBackend, ok := backend.(*cache.RedisBackend); ok {
		res.checks = append(res.checks, httpserver.ReadinessCheck{Name: "redis", Check: redisBackend.HealthCheck})
		res.closers = append(res.closers, redisBackend)
	}
	res.backend = backend

	log.Info().
		Str("storage", cfg.StorageBackend).
		Str("assets", cfg.AssetBackend).
		Str("cache", cfg.CacheBackend).
		Msg("storage and caches initialized")
	return res, nil
}

func readinessChecks(res *Resources) []httpserver.ReadinessCheck {
	return res.checks
}

func newProviderClient(cfg *config.Config, log zerolog.Logger) *llmprovider.Client {
	return llmprovider.NewClient(llmprovider.Config{
		BaseURL:       cfg.LLMAPIURL,
		APIKey:        cfg.LLMAPIKey,
		Timeout:       cfg.LLMTimeout,
		SpeechTimeout: cfg.SpeechTimeout,
	}, domainerrors.NewClassifier(), log)
}

func newSessionService(cfg *config.Config, res *Resources, provider *llmprovider.Client, log zerolog.Logger) session.Service {
	temperature := cfg.LLMTemperature
	interp := interpreter.New(provider, domainerrors.NewClassifier(), interpreter.Config{
		Model:              cfg.LLMModel,
		MaxHistoryMessages: cfg.MaxHistoryMessages,
		PreviewLength:      cfg.PreviewLength,
		Temperature:        &temperature,
	}, log)

	translator := translation.NewService(provider, cfg.TranslationModel,
		cache.New[translation.Entry](translation.NamespaceFull, cfg.TranslationCacheTTL, res.backend,
			cache.WithLogger[translation.Entry](log)),
		cache.New[translation.Entry](translation.NamespacePreview, cfg.PreviewCacheTTL, res.backend,
			cache.WithLogger[translation.Entry](log)),
		log)

	speaker := speech.NewService(provider, res.store,
		cache.New[speech.Entry](speech.Namespace, cfg.SpeechCacheTTL, res.backend,
			cache.WithValidator[speech.Entry](speech.AssetValidator(res.store)),
			cache.WithLogger[speech.Entry](log)),
		speech.Config{
			Model:     cfg.SpeechModel,
			Voice:     cfg.SpeechVoice,
			Format:    cfg.SpeechFormat,
			BatchSize: cfg.SpeechBatchSize,
		}, log)

	return session.NewService(res.store, interp, translator, speaker, session.Config{
		HistoryCapacity: cfg.HistoryCapacity,
		PreviewLength:   cfg.PreviewLength,
	}, log)
}

func newAuthValidator(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*auth.Validator, error) {
	return auth.NewValidator(ctx, auth.Config{
		Enabled:  cfg.AuthEnabled,
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		JWKSURL:  cfg.AuthJWKSURL,
	}, log)
}

func newScheduler(cfg *config.Config, sessions session.Service, log zerolog.Logger) *scheduler.Scheduler {
	return scheduler.New(sessions, scheduler.Config{
		Expression:  cfg.SessionReapCron,
		IdleTimeout: cfg.SessionIdleTimeout,
	}, log)
}

func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
