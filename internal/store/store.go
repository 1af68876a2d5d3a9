package store

import (
	"context"
	"time"
)

// Collections used by the pipeline.
const (
	CollectionStoryboardCache = "storyboard_cache"
	CollectionImageResults    = "image_results"
	CollectionVideoTasks      = "video_tasks"
)

// Record is one keyed document inside a collection. Data holds the JSON
// payload as written by the caller.
type Record struct {
	ID        string
	OwnerID   string
	Data      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Filter narrows a query or mutation. Zero-value fields are ignored; Fields
// matches top-level JSON document fields by equality.
type Filter struct {
	ID      string
	OwnerID string
	Fields  map[string]string
}

// QueryOptions shape the result set of a Query.
type QueryOptions struct {
	OrderBy string
	Desc    bool
	Skip    int
	Limit   int
}

// RecordStore is the narrow persistence contract consumed by the pipeline.
// Implementations are treated as external transactional services; the
// pipeline never guards read-then-write sequences itself.
type RecordStore interface {
	Add(ctx context.Context, collection, ownerID string, data any) (string, error)
	Get(ctx context.Context, collection, id string) (*Record, error)
	Query(ctx context.Context, collection string, filter Filter, opts QueryOptions) ([]Record, error)
	Update(ctx context.Context, collection string, filter Filter, data any) (int64, error)
	Remove(ctx context.Context, collection string, filter Filter) (int64, error)
}

// BlobStore persists opaque bytes and hands out time-limited retrieval URLs.
// URLs expire; callers are expected to refresh them.
type BlobStore interface {
	Put(ctx context.Context, path string, data []byte) (string, error)
	TempURL(ctx context.Context, blobID string) (string, error)
}
