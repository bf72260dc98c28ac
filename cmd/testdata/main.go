package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"

	"github.com/d4l-data4life/go-image-studio/pkg/config"
	"github.com/d4l-data4life/go-image-studio/pkg/conversation"
	"github.com/d4l-data4life/go-image-studio/pkg/history"
	"github.com/d4l-data4life/go-image-studio/pkg/models"
	"github.com/d4l-data4life/go-image-studio/pkg/storage"

	"github.com/d4l-data4life/go-svc/pkg/db"
	"github.com/d4l-data4life/go-svc/pkg/logging"
	"github.com/d4l-data4life/go-svc/pkg/standard"
)

// sampleImage is a 1x1 transparent PNG
const sampleImage = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

func main() {
	// Initialize the environment and logger
	config.SetupEnv()
	config.SetupLogger()
	bindTestDataEnv()
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
	standard.Main(addTestData, config.Name+"-testdata", standard.WithPostgres(dbOpts))
}

func bindTestDataEnv() {
	_ = viper.BindEnv("TESTDATA_USER_ID")
	viper.SetDefault("TESTDATA_USER_ID", "00000000-0000-0000-0000-000000000001")
}

func addTestData(ctx context.Context, _ string) <-chan struct{} {
	dieEarly := make(chan struct{})
	defer close(dieEarly)

	userID, err := uuid.Parse(viper.GetString("TESTDATA_USER_ID"))
	if err != nil {
		logging.LogErrorf(err, "Invalid test data user id")
		return dieEarly
	}

	// blobs stay in memory unless a bucket is configured
	var blobs storage.BlobStore = storage.NewMemoryStore(viper.GetString("STORAGE_PUBLIC_URL"))
	if cfg := config.GetStorageConfig(); cfg.AccessKey != "" {
		store, err := storage.NewMinioStore(cfg)
		if err != nil {
			logging.LogErrorf(err, "Failed to create storage client")
			return dieEarly
		}
		if err := store.EnsureBucket(ctx); err != nil {
			logging.LogErrorf(err, "Failed to ensure bucket %s", cfg.Bucket)
			return dieEarly
		}
		blobs = store
	}

	service := conversation.NewService(
		conversation.NewGormRepository(db.Get()),
		blobs,
		storage.NewResolver(blobs, time.Minute),
	)
	description := "A small transparent square"
	items := []history.Item{
		{Role: history.RoleUser, Parts: []history.Part{{Text: "Draw a tiny square"}}},
		{
			Role:  history.RoleModel,
			Parts: []history.Part{{Text: description}, {Image: sampleImage}},
			Metadata: &models.GenerationMetadata{
				AspectRatio: "1:1",
				Model:       "gemini",
			},
		},
	}

	id, err := service.SaveHistory(ctx, items, "", uuid.Nil, userID)
	if err != nil {
		logging.LogErrorf(err, "Failed to add test conversation")
		return dieEarly
	}
	logging.LogInfof("Added test conversation %s for user %s", id, userID)
	return dieEarly
}
