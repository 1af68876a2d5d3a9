package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"storyreel/internal/domain"
	"storyreel/internal/infra"
	"storyreel/internal/store"
	"storyreel/internal/videotask"
)

const downloadTimeout = 2 * time.Minute

type pollWorker struct {
	ctx      context.Context
	records  store.RecordStore
	videos   *videotask.Manager
	blobs    store.BlobStore
	interval time.Duration
	logger   infra.Logger
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	records := store.NewPostgresStore(pool)
	if err := records.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker: ensure schema failed")
	}

	storagePath := cfg.StorageBasePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	blobs, err := store.NewFileStore(store.FileStoreOptions{
		BasePath: storagePath,
		BaseURL:  cfg.StorageBaseURL,
		Secret:   cfg.StorageSecret,
		URLTTL:   cfg.StorageURLTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

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
		Timeout: cfg.VideoPollTimeout,
		Logger:  logger,
	})

	worker := &pollWorker{
		ctx:      ctx,
		records:  records,
		videos:   videos,
		blobs:    blobs,
		interval: cfg.WorkerPollInterval,
		logger:   logger,
	}

	if err := worker.Run(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

func (w *pollWorker) Run() error {
	w.logger.Info().Msg("worker: started")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return w.ctx.Err()
		case <-ticker.C:
		}
		w.sweep()
	}
}

// sweep advances every task still marked processing. Per-task failures are
// logged and the sweep moves on; a transient provider error resolves itself on
// a later tick.
func (w *pollWorker) sweep() {
	recs, err := w.records.Query(w.ctx, store.CollectionVideoTasks, store.Filter{
		Fields: map[string]string{"status": string(domain.VideoTaskProcessing)},
	}, store.QueryOptions{OrderBy: "created_at"})
	if err != nil {
		w.logger.Error().Err(err).Msg("worker: list processing tasks failed")
		return
	}

	for _, rec := range recs {
		task, err := w.videos.Poll(w.ctx, rec.ID)
		if err != nil {
			w.logger.Error().Err(err).Str("task_id", rec.ID).Msg("worker: poll failed")
			continue
		}
		if task.Status != domain.VideoTaskCompleted || task.VideoURL == "" {
			continue
		}
		w.archive(task)
	}
}

// archive downloads the finished video into blob storage so the provider URL
// can expire without losing the asset.
func (w *pollWorker) archive(task *domain.VideoTask) {
	data, err := w.download(task.VideoURL)
	if err != nil {
		w.logger.Warn().Err(err).Str("task_id", task.ID).Msg("worker: video download failed")
		return
	}
	key := fmt.Sprintf("videos/%s/%s.mp4", task.OwnerID, task.ID)
	blobID, err := w.blobs.Put(w.ctx, key, data)
	if err != nil {
		w.logger.Warn().Err(err).Str("task_id", task.ID).Msg("worker: video archive failed")
		return
	}
	tempURL, err := w.blobs.TempURL(w.ctx, blobID)
	if err != nil {
		w.logger.Warn().Err(err).Str("task_id", task.ID).Msg("worker: temp url issue failed")
		return
	}
	w.logger.Info().
		Str("task_id", task.ID).
		Str("blob_id", blobID).
		Str("url", tempURL).
		Msg("worker: video archived")
}

func (w *pollWorker) download(url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(w.ctx, downloadTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download video: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download video: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read video body: %w", err)
	}
	return data, nil
}
