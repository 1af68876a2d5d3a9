package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"storyreel/internal/domain"
	"storyreel/internal/store"
)

func sampleStoryboard(prompt string) domain.Storyboard {
	sb := make(domain.Storyboard, domain.SceneCount)
	for i := range sb {
		sb[i] = domain.Scene{
			SceneID:     i + 1,
			Prompt:      prompt,
			VideoPrompt: "缓慢推进",
			Seed:        42,
			Style:       domain.DefaultStyle(),
		}
	}
	return sb
}

func TestGetMissOnEmptyStore(t *testing.T) {
	c := New(Options{Records: store.NewMemoryStore()})
	if _, ok := c.Get(context.Background(), "owner-1", "diary-1"); ok {
		t.Fatal("expected miss on empty store")
	}
}

func TestPutThenGet(t *testing.T) {
	c := New(Options{Records: store.NewMemoryStore()})
	want := sampleStoryboard("海边散步")
	c.Put(context.Background(), "owner-1", "diary-1", want)

	got, ok := c.Get(context.Background(), "owner-1", "diary-1")
	if !ok {
		t.Fatal("expected hit after put")
	}
	if len(got) != len(want) {
		t.Fatalf("got %d scenes, want %d", len(got), len(want))
	}
	if got[0].Prompt != want[0].Prompt {
		t.Fatalf("prompt = %q, want %q", got[0].Prompt, want[0].Prompt)
	}
}

func TestGetRespectsTTL(t *testing.T) {
	mem := store.NewMemoryStore()
	current := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	mem.SetClock(func() time.Time { return current })
	c := New(Options{Records: mem, TTL: 24 * time.Hour, Now: func() time.Time { return current }})

	c.Put(context.Background(), "owner-1", "diary-1", sampleStoryboard("清晨日记"))

	current = current.Add(24*time.Hour - time.Minute)
	if _, ok := c.Get(context.Background(), "owner-1", "diary-1"); !ok {
		t.Fatal("entry just inside the TTL should hit")
	}

	current = current.Add(time.Minute)
	if _, ok := c.Get(context.Background(), "owner-1", "diary-1"); ok {
		t.Fatal("entry at the TTL boundary should miss")
	}
}

func TestGetReturnsNewestEntry(t *testing.T) {
	mem := store.NewMemoryStore()
	current := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	mem.SetClock(func() time.Time { return current })
	c := New(Options{Records: mem, Now: func() time.Time { return current }})

	c.Put(context.Background(), "owner-1", "diary-1", sampleStoryboard("旧版本"))
	current = current.Add(time.Hour)
	c.Put(context.Background(), "owner-1", "diary-1", sampleStoryboard("新版本"))

	got, ok := c.Get(context.Background(), "owner-1", "diary-1")
	if !ok {
		t.Fatal("expected hit")
	}
	if got[0].Prompt != "新版本" {
		t.Fatalf("prompt = %q, want the newest entry", got[0].Prompt)
	}
}

func TestGetIsolatesOwners(t *testing.T) {
	c := New(Options{Records: store.NewMemoryStore()})
	c.Put(context.Background(), "owner-1", "diary-1", sampleStoryboard("私密日记"))

	if _, ok := c.Get(context.Background(), "owner-2", "diary-1"); ok {
		t.Fatal("cache leaked across owners")
	}
}

func TestGetTreatsStoreErrorAsMiss(t *testing.T) {
	c := New(Options{Records: brokenStore{}})
	if _, ok := c.Get(context.Background(), "owner-1", "diary-1"); ok {
		t.Fatal("store failure must read as a miss")
	}
}

type brokenStore struct{}

var errBroken = errors.New("store offline")

func (brokenStore) Add(ctx context.Context, collection, ownerID string, data any) (string, error) {
	return "", errBroken
}

func (brokenStore) Get(ctx context.Context, collection, id string) (*store.Record, error) {
	return nil, errBroken
}

func (brokenStore) Query(ctx context.Context, collection string, filter store.Filter, opts store.QueryOptions) ([]store.Record, error) {
	return nil, errBroken
}

func (brokenStore) Update(ctx context.Context, collection string, filter store.Filter, data any) (int64, error) {
	return 0, errBroken
}

func (brokenStore) Remove(ctx context.Context, collection string, filter store.Filter) (int64, error) {
	return 0, errBroken
}
