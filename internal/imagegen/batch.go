package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"storyreel/internal/domain"
	"storyreel/internal/store"
	"storyreel/internal/strategy"
)

const (
	// DefaultBatchSize is how many scenes run concurrently in one batch.
	DefaultBatchSize = 2
	// DefaultCooldown separates consecutive batches to respect the image
	// service's rate limit.
	DefaultCooldown = 2 * time.Second

	sceneMaxRetries  = 5
	warmUpDelay      = time.Second
	retryBackoffBase = 3 * time.Second
	retryBackoffCap  = 30 * time.Second

	placeholderQuality = 60
	placeholderStyle   = 70

	// imageSeedRange bounds the per-image decorative seed.
	imageSeedRange = 10_000
)

// BatchGenerator turns a storyboard into per-scene image sets under the
// service's rate limits.
type BatchGenerator struct {
	caller    Caller
	records   store.RecordStore
	scorer    *Scorer
	batchSize int
	cooldown  time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	imageSeed func() int64
	now       func() time.Time
	log       zerolog.Logger
}

// BatchOptions configures a BatchGenerator. Records may be nil when results
// should not be persisted. Sleep, ImageSeed and Now default to the real thing.
type BatchOptions struct {
	Caller    Caller
	Records   store.RecordStore
	Scorer    *Scorer
	BatchSize int
	Cooldown  time.Duration
	Sleep     func(ctx context.Context, d time.Duration) error
	ImageSeed func() int64
	Now       func() time.Time
	Logger    zerolog.Logger
}

// NewBatchGenerator creates a batch image generator.
func NewBatchGenerator(opts BatchOptions) *BatchGenerator {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	cooldown := opts.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	scorer := opts.Scorer
	if scorer == nil {
		scorer = NewScorer(nil)
	}
	imageSeed := opts.ImageSeed
	if imageSeed == nil {
		imageSeed = func() int64 { return rand.Int64N(imageSeedRange) }
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &BatchGenerator{
		caller:    opts.Caller,
		records:   opts.Records,
		scorer:    scorer,
		batchSize: batchSize,
		cooldown:  cooldown,
		sleep:     opts.Sleep,
		imageSeed: imageSeed,
		now:       now,
		log:       opts.Logger,
	}
}

// BatchResult is the outcome of one GenerateAll run. Errors lists the scenes
// that fell back to placeholders, with reasons.
type BatchResult struct {
	Sets   []domain.SceneImageSet `json:"data"`
	Errors []string               `json:"errors,omitempty"`
}

type imageResultRecord struct {
	DiaryID string                 `json:"diary_id"`
	Results []domain.SceneImageSet `json:"results"`
	Status  string                 `json:"status"`
}

// GenerateAll renders every scene of the storyboard in fixed-size concurrent
// batches with a cooldown in between. A scene whose call ultimately fails is
// replaced by a placeholder set and noted in the error list; sibling scenes
// are never aborted. The returned sets are ordered by ascending scene id
// regardless of completion order.
func (g *BatchGenerator) GenerateAll(ctx context.Context, sb domain.Storyboard, ownerID, diaryID string) (*BatchResult, error) {
	if len(sb) != domain.SceneCount {
		return nil, fmt.Errorf("imagegen: storyboard has %d scenes, want %d: %w", len(sb), domain.SceneCount, domain.ErrValidation)
	}

	sets := make([]domain.SceneImageSet, len(sb))
	var mu sync.Mutex
	var failures []string

	for start := 0; start < len(sb); start += g.batchSize {
		end := min(start+g.batchSize, len(sb))

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int, scene domain.Scene) {
				defer wg.Done()
				set, err := g.GenerateOne(ctx, scene)
				if err != nil {
					g.log.Error().Err(err).Int("scene_id", scene.SceneID).Msg("scene image generation failed, using placeholder")
					mu.Lock()
					failures = append(failures, fmt.Sprintf("场景%d: %v", scene.SceneID, err))
					mu.Unlock()
					set = g.PlaceholderSet(scene.SceneID)
				}
				sets[idx] = set
			}(i, sb[i])
		}
		wg.Wait()

		if end < len(sb) {
			if err := g.pause(ctx, g.cooldown); err != nil {
				return nil, err
			}
		}
	}

	sort.Slice(sets, func(i, j int) bool { return sets[i].SceneID < sets[j].SceneID })

	result := &BatchResult{Sets: sets, Errors: failures}
	g.persist(ctx, ownerID, diaryID, result)
	return result, nil
}

// GenerateOne renders a single scene, retrying transient failures per the
// backoff policy. Exhausted or permanent failures propagate to the caller.
func (g *BatchGenerator) GenerateOne(ctx context.Context, scene domain.Scene) (domain.SceneImageSet, error) {
	urls, err := strategy.Do(ctx, strategy.Policy{
		MaxRetries: sceneMaxRetries,
		Backoff:    strategy.Exponential(retryBackoffBase, retryBackoffCap),
		WarmUp:     warmUpDelay,
		Retryable: func(err error) bool {
			return errors.Is(err, domain.ErrUpstreamTransient)
		},
		Sleep: g.sleep,
		OnRetry: func(retry int, delay time.Duration, err error) {
			g.log.Warn().Err(err).Int("scene_id", scene.SceneID).Int("retry", retry).Dur("delay", delay).Msg("scene image call failed")
		},
	}, func(ctx context.Context) ([]string, error) {
		return g.caller.Generate(ctx, scene.Prompt)
	})
	if err != nil {
		return domain.SceneImageSet{}, err
	}

	images := make([]domain.Image, 0, len(urls))
	for i, url := range urls {
		images = append(images, domain.Image{
			ID:               fmt.Sprintf("scene_%d_img_%d", scene.SceneID, i+1),
			URL:              url,
			ThumbnailURL:     url,
			Width:            ImageWidth,
			Height:           ImageHeight,
			QualityScore:     g.scorer.Quality(ImageWidth, ImageHeight),
			StyleConsistency: g.scorer.StyleConsistency(scene.Prompt),
			Seed:             g.imageSeed(),
			CreatedAt:        g.now(),
		})
	}
	sort.SliceStable(images, func(i, j int) bool { return images[i].QualityScore > images[j].QualityScore })

	return domain.SceneImageSet{SceneID: scene.SceneID, Images: images, Success: true}, nil
}

// PlaceholderSet synthesizes the fallback candidates for a scene whose
// generation failed: four identical sky-blue SVG frames with fixed scores.
func (g *BatchGenerator) PlaceholderSet(sceneID int) domain.SceneImageSet {
	url := placeholderURL(sceneID)
	images := make([]domain.Image, CandidatesPerScene)
	for i := range images {
		images[i] = domain.Image{
			ID:               fmt.Sprintf("default_scene_%d_img_%d", sceneID, i+1),
			URL:              url,
			ThumbnailURL:     url,
			Width:            ImageWidth,
			Height:           ImageHeight,
			QualityScore:     placeholderQuality,
			StyleConsistency: placeholderStyle,
			Seed:             g.imageSeed(),
			IsFallback:       true,
			CreatedAt:        g.now(),
		}
	}
	return domain.SceneImageSet{SceneID: sceneID, Images: images}
}

// persist writes the finished batch once. A store failure is logged and
// swallowed: the computed result is still returned to the caller.
func (g *BatchGenerator) persist(ctx context.Context, ownerID, diaryID string, result *BatchResult) {
	if g.records == nil || diaryID == "" {
		return
	}
	_, err := g.records.Add(ctx, store.CollectionImageResults, ownerID, imageResultRecord{
		DiaryID: diaryID,
		Results: result.Sets,
		Status:  "completed",
	})
	if err != nil {
		g.log.Error().Err(err).Str("diary_id", diaryID).Msg("persist image results failed")
	}
}

func (g *BatchGenerator) pause(ctx context.Context, d time.Duration) error {
	if g.sleep != nil {
		return g.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func placeholderURL(sceneID int) string {
	svg := fmt.Sprintf(`<svg width="%d" height="%d" xmlns="http://www.w3.org/2000/svg"><rect width="100%%" height="100%%" fill="#87CEEB"/><text x="50%%" y="50%%" font-family="Arial, sans-serif" font-size="36" fill="white" text-anchor="middle" dy=".3em">Scene %d</text></svg>`, ImageWidth, ImageHeight, sceneID)
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg))
}
