package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"storyreel/internal/cache"
	"storyreel/internal/http/handlers"
	"storyreel/internal/imagegen"
	"storyreel/internal/infra"
	"storyreel/internal/store"
	"storyreel/internal/storyboard"
	"storyreel/internal/videotask"
)

// buildApp wires the pipeline services onto the shared record store.
func buildApp(ctx context.Context, cfg *infra.Config, pool *pgxpool.Pool, logger infra.Logger) (*handlers.App, error) {
	records := store.NewPostgresStore(pool)
	if err := records.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	blobs, err := store.NewFileStore(store.FileStoreOptions{
		BasePath: cfg.StorageBasePath,
		BaseURL:  cfg.StorageBaseURL,
		Secret:   cfg.StorageSecret,
		URLTTL:   cfg.StorageURLTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("configure storage: %w", err)
	}

	storyboardCache := cache.New(cache.Options{
		Records: records,
		TTL:     cfg.CacheTTL,
		Logger:  logger,
	})

	chatClient := storyboard.NewChatClient(storyboard.ChatOptions{
		APIKey:  cfg.ChatAPIKey,
		Model:   cfg.ChatModel,
		BaseURL: cfg.ChatBaseURL,
		Timeout: cfg.ChatTimeout,
	})
	generator := storyboard.NewGenerator(storyboard.GeneratorOptions{
		Chat:   chatClient,
		Cache:  storyboardCache,
		Logger: logger,
	})

	imageClient := imagegen.NewClient(imagegen.ClientOptions{
		APIKey:  cfg.ImageAPIKey,
		Model:   cfg.ImageModel,
		BaseURL: cfg.ImageBaseURL,
		Timeout: cfg.ImageTimeout,
	})
	batch := imagegen.NewBatchGenerator(imagegen.BatchOptions{
		Caller:    imageClient,
		Records:   records,
		BatchSize: cfg.ImageBatchSize,
		Cooldown:  cfg.ImageBatchCooldown,
		Logger:    logger,
	})

	videos := videotask.NewManager(videotask.ManagerOptions{
		Records: records,
		Provider: videotask.ProviderConfig{
			Host:      cfg.VideoHost,
			Region:    cfg.VideoRegion,
			Service:   cfg.VideoService,
			ReqKey:    cfg.VideoReqKey,
			AccessKey: cfg.VideoAccessKey,
			SecretKey: cfg.VideoSecretKey,
		},
		Timeout: cfg.VideoSubmitTimeout,
		Logger:  logger,
	})

	app := handlers.NewApp(generator, batch, videos, logger)
	app.Blobs = blobs
	return app, nil
}
