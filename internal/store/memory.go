package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"storyreel/internal/domain"
)

// MemoryStore is an in-process RecordStore for development and tests. It
// mirrors the PostgreSQL adapter's semantics, including merge-style updates.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string][]Record
	now         func() time.Time
}

// NewMemoryStore creates an empty in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string][]Record),
		now:         time.Now,
	}
}

// SetClock overrides the store's notion of now. Intended for tests.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.now = now
}

func (s *MemoryStore) Add(ctx context.Context, collection, ownerID string, data any) (string, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("store: encode record: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := Record{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Data:      payload,
		CreatedAt: s.now(),
		UpdatedAt: s.now(),
	}
	s.collections[collection] = append(s.collections[collection], rec)
	return rec.ID, nil
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.collections[collection] {
		if rec.ID == id {
			copied := rec
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *MemoryStore) Query(ctx context.Context, collection string, filter Filter, opts QueryOptions) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, rec := range s.collections[collection] {
		if matches(rec, filter) {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := sortKey(out[i], opts.OrderBy), sortKey(out[j], opts.OrderBy)
		if opts.Desc {
			return a > b
		}
		return a < b
	})
	if opts.Skip > 0 {
		if opts.Skip >= len(out) {
			return nil, nil
		}
		out = out[opts.Skip:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, collection string, filter Filter, data any) (int64, error) {
	patch, err := json.Marshal(data)
	if err != nil {
		return 0, fmt.Errorf("store: encode patch: %w", err)
	}
	var patchFields map[string]json.RawMessage
	if err := json.Unmarshal(patch, &patchFields); err != nil {
		return 0, fmt.Errorf("store: patch must be an object: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var updated int64
	records := s.collections[collection]
	for i := range records {
		if !matches(records[i], filter) {
			continue
		}
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(records[i].Data, &doc); err != nil {
			return updated, fmt.Errorf("store: decode record: %w", err)
		}
		for k, v := range patchFields {
			doc[k] = v
		}
		merged, err := json.Marshal(doc)
		if err != nil {
			return updated, fmt.Errorf("store: merge record: %w", err)
		}
		records[i].Data = merged
		records[i].UpdatedAt = s.now()
		updated++
	}
	return updated, nil
}

func (s *MemoryStore) Remove(ctx context.Context, collection string, filter Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []Record
	var removed int64
	for _, rec := range s.collections[collection] {
		if matches(rec, filter) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	s.collections[collection] = kept
	return removed, nil
}

func matches(rec Record, filter Filter) bool {
	if filter.ID != "" && rec.ID != filter.ID {
		return false
	}
	if filter.OwnerID != "" && rec.OwnerID != filter.OwnerID {
		return false
	}
	if len(filter.Fields) == 0 {
		return true
	}
	var doc map[string]any
	if err := json.Unmarshal(rec.Data, &doc); err != nil {
		return false
	}
	for field, want := range filter.Fields {
		got, ok := doc[field].(string)
		if !ok || got != want {
			return false
		}
	}
	return true
}

func sortKey(rec Record, orderBy string) string {
	switch orderBy {
	case "", "created_at":
		return rec.CreatedAt.Format(time.RFC3339Nano)
	case "updated_at":
		return rec.UpdatedAt.Format(time.RFC3339Nano)
	default:
		var doc map[string]any
		if err := json.Unmarshal(rec.Data, &doc); err != nil {
			return ""
		}
		if v, ok := doc[orderBy].(string); ok {
			return v
		}
		return ""
	}
}

var _ RecordStore = (*MemoryStore)(nil)
