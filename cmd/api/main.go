package main

import (
	"context"
	"strings"

	"github.com/go-chi/cors"
	"github.com/spf13/viper"

	"github.com/d4l-data4life/go-image-studio/pkg/auth"
	"github.com/d4l-data4life/go-image-studio/pkg/config"
	"github.com/d4l-data4life/go-image-studio/pkg/conversation"
	"github.com/d4l-data4life/go-image-studio/pkg/generation"
	"github.com/d4l-data4life/go-image-studio/pkg/generation/gemini"
	"github.com/d4l-data4life/go-image-studio/pkg/generation/imagen"
	"github.com/d4l-data4life/go-image-studio/pkg/handlers"
	"github.com/d4l-data4life/go-image-studio/pkg/metrics"
	"github.com/d4l-data4life/go-image-studio/pkg/models"
	"github.com/d4l-data4life/go-image-studio/pkg/server"
	"github.com/d4l-data4life/go-image-studio/pkg/storage"

	"github.com/d4l-data4life/go-svc/pkg/db"
	"github.com/d4l-data4life/go-svc/pkg/logging"
	"github.com/d4l-data4life/go-svc/pkg/standard"
)

func main() {
	config.SetupEnv()
	config.SetupLogger()
	dbOpts := db.NewConnection(
		db.WithDebug(viper.GetBool("DEBUG")),
		db.WithHost(viper.GetString("DB_HOST")),
		db.WithPort(viper.GetString("DB_PORT")),
		db.WithDatabaseSchema(viper.GetString("DB_SCHEMA")),
		db.WithDatabaseName(viper.GetString("DB_NAME")),
		db.WithUser(viper.GetString("DB_USER")),
		db.WithPassword(viper.GetString("DB_PASS")),
		db.WithSSLMode(viper.GetString("DB_SSL_MODE")),
		db.WithSSLRootCertPath(viper.GetString("DB_SSL_ROOT_CERT_PATH")),
		db.WithMigrationFunc(models.MigrationFunc),
	)
	standard.Main(mainAPI, config.Name, standard.WithPostgres(dbOpts))
}

// mainAPI contains the main service logic - it must finish on runCtx cancelation!
func mainAPI(runCtx context.Context, svcName string) <-chan struct{} {
	port := viper.GetString("PORT")
	corsHosts := strings.Split(viper.GetString("CORS_HOSTS"), " ")
	corsOptions := config.CorsConfig(corsHosts)
	srv := server.NewServer(svcName,
		cors.New(corsOptions),
		viper.GetInt("HTTP_MAX_PARALLEL_REQUESTS"),
		viper.GetDuration("HTTP_REQUEST_TIMEOUT"),
	)

	genCfg := config.GetGenerationConfig()
	store := setupStorage(runCtx)
	resolver := storage.NewResolver(store, genCfg.ImageCacheTTL)

	validator, err := auth.NewTokenValidator(runCtx,
		viper.GetString("AUTH_JWKS_URL"),
		[]byte(viper.GetString("AUTH_JWT_SECRET")),
	)
	if err != nil {
		logging.LogErrorf(err, "Failed to set up token validation")
		dieEarly := make(chan struct{})
		close(dieEarly)
		return dieEarly
	}

	server.SetupRoutes(srv, handlers.Dependencies{
		Generator:      setupGenerator(runCtx, genCfg, resolver),
		Conversations:  conversation.NewService(conversation.NewGormRepository(db.Get()), store, resolver),
		Storage:        store,
		TokenValidator: validator,
		RateLimiter:    handlers.NewRateLimiter(config.GetRateLimitConfig()),
		AllowedOrigins: corsHosts,
		ServiceSecret:  viper.GetString("SERVICE_SECRET"),
	})
	metrics.AddBuildInfoMetric()
	metrics.AddGenerationMetrics()
	return standard.ListenAndServe(runCtx, srv.Mux(), port)
}

// setupGenerator wires both backends. Without an API key the generator
// answers every request with a configuration error.
func setupGenerator(ctx context.Context, cfg config.GenerationConfig, resolver *storage.Resolver) *generation.Generator {
	var edit generation.EditBackend
	geminiClient, err := gemini.NewClient(ctx, gemini.Config{APIKey: cfg.APIKey, Model: cfg.GeminiModel})
	if err != nil {
		logging.LogErrorf(err, "Gemini backend is not available")
	} else {
		edit = geminiClient
	}

	imagenClient := imagen.NewClient(imagen.Config{
		BaseURL:    cfg.ImagenBaseURL,
		APIKey:     cfg.APIKey,
		Model:      cfg.ImagenModel,
		Timeout:    cfg.Timeout,
		Attempts:   cfg.ImagenRetries,
		RetryDelay: cfg.ImagenBackoff,
	})
	return generation.NewGenerator(cfg, edit, imagenClient, resolver)
}

// imageStore is a bucket that can also report on itself
type imageStore interface {
	storage.BlobStore
	handlers.StorageChecker
}

// setupStorage connects the image bucket and falls back to process memory when
// no bucket credentials are configured
func setupStorage(ctx context.Context) imageStore {
	cfg := config.GetStorageConfig()
	if cfg.AccessKey == "" {
		logging.LogInfof("No storage credentials configured, keeping images in memory")
		return storage.NewMemoryStore(cfg.PublicURL)
	}
	store, err := storage.NewMinioStore(cfg)
	if err != nil {
		logging.LogErrorf(err, "Failed to create storage client, keeping images in memory")
		return storage.NewMemoryStore(cfg.PublicURL)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		logging.LogErrorf(err, "Failed to ensure bucket %s", cfg.Bucket)
	}
	return store
}
