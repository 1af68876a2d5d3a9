// Package cache provides the storyboard result cache. Entries are append-only:
// a Put never rewrites an older entry, and a Get reads the newest record for
// the diary. Staleness is enforced on the read side against a soft TTL.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"storyreel/internal/domain"
	"storyreel/internal/store"
)

// DefaultTTL is the soft freshness window for cached storyboards.
const DefaultTTL = 24 * time.Hour

type entry struct {
	DiaryID     string            `json:"diary_id"`
	Storyboards domain.Storyboard `json:"storyboards"`
}

// StoryboardCache caches generated storyboards keyed by owner and diary.
type StoryboardCache struct {
	records store.RecordStore
	ttl     time.Duration
	now     func() time.Time
	log     zerolog.Logger
}

// Options configures a StoryboardCache. TTL defaults to DefaultTTL and Now to
// time.Now when unset.
type Options struct {
	Records store.RecordStore
	TTL     time.Duration
	Now     func() time.Time
	Logger  zerolog.Logger
}

// New creates a StoryboardCache backed by the given record store.
func New(opts Options) *StoryboardCache {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &StoryboardCache{
		records: opts.Records,
		ttl:     ttl,
		now:     now,
		log:     opts.Logger,
	}
}

// Get returns the freshest cached storyboard for the diary, or ok=false when
// no entry exists, the newest entry has aged past the TTL, or the store
// misbehaves. Cache lookups never fail the caller; a broken store reads as a
// miss.
func (c *StoryboardCache) Get(ctx context.Context, ownerID, diaryID string) (domain.Storyboard, bool) {
	if diaryID == "" {
		return nil, false
	}
	recs, err := c.records.Query(ctx, store.CollectionStoryboardCache, store.Filter{
		OwnerID: ownerID,
		Fields:  map[string]string{"diary_id": diaryID},
	}, store.QueryOptions{OrderBy: "created_at", Desc: true, Limit: 1})
	if err != nil {
		c.log.Warn().Err(err).Str("diary_id", diaryID).Msg("storyboard cache lookup failed")
		return nil, false
	}
	if len(recs) == 0 {
		return nil, false
	}
	rec := recs[0]
	if c.now().Sub(rec.CreatedAt) >= c.ttl {
		return nil, false
	}
	var e entry
	if err := json.Unmarshal(rec.Data, &e); err != nil {
		c.log.Warn().Err(err).Str("diary_id", diaryID).Msg("storyboard cache entry corrupt")
		return nil, false
	}
	if len(e.Storyboards) == 0 {
		return nil, false
	}
	return e.Storyboards, true
}

// Put appends a cache entry for the diary. Older entries are left in place;
// reads always pick the newest. Failures are logged and swallowed since the
// cache is advisory.
func (c *StoryboardCache) Put(ctx context.Context, ownerID, diaryID string, sb domain.Storyboard) {
	if diaryID == "" || len(sb) == 0 {
		return
	}
	_, err := c.records.Add(ctx, store.CollectionStoryboardCache, ownerID, entry{
		DiaryID:     diaryID,
		Storyboards: sb,
	})
	if err != nil {
		c.log.Warn().Err(err).Str("diary_id", diaryID).Msg("storyboard cache write failed")
	}
}
