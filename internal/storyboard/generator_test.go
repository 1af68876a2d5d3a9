package storyboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"storyreel/internal/cache"
	"storyreel/internal/domain"
	"storyreel/internal/store"
)

type fakeCompleter struct {
	fn    func(p Prompt) (string, error)
	calls []Prompt
}

func (f *fakeCompleter) Complete(ctx context.Context, p Prompt) (string, error) {
	f.calls = append(f.calls, p)
	return f.fn(p)
}

func isStoryboardPrompt(p Prompt) bool {
	return strings.Contains(p.System, "分镜师")
}

const validCard = `{"description":"一个活泼的短发女孩","hair_style":"棕色短发","eye_color":"明亮的蓝色眼眸","outfit":"白色T恤","accessories":"黄色贝雷帽"}`

func newTestGenerator(chat Completer, c *cache.StoryboardCache, sleeps *[]time.Duration) *Generator {
	return NewGenerator(GeneratorOptions{
		Chat:  chat,
		Cache: c,
		Seed:  func() int64 { return 424242 },
		Sleep: func(ctx context.Context, d time.Duration) error {
			if sleeps != nil {
				*sleeps = append(*sleeps, d)
			}
			return nil
		},
		Logger: zerolog.Nop(),
	})
}

func assertStoryboardInvariants(t *testing.T, sb domain.Storyboard, seed int64) {
	t.Helper()
	if len(sb) != domain.SceneCount {
		t.Fatalf("got %d scenes, want %d", len(sb), domain.SceneCount)
	}
	for i, scene := range sb {
		if scene.SceneID != i+1 {
			t.Fatalf("scene %d has id %d", i, scene.SceneID)
		}
		if scene.Seed != seed {
			t.Fatalf("scene %d seed = %d, want %d", i+1, scene.Seed, seed)
		}
		if n := utf8.RuneCountInString(scene.Prompt); n > domain.MaxPromptChars {
			t.Fatalf("scene %d prompt is %d chars", i+1, n)
		}
		if scene.Prompt == "" || scene.VideoPrompt == "" {
			t.Fatalf("scene %d has empty prompt fields", i+1)
		}
	}
}

func TestGenerateHappyPath(t *testing.T) {
	chat := &fakeCompleter{fn: func(p Prompt) (string, error) {
		if isStoryboardPrompt(p) {
			return validEnvelope, nil
		}
		return validCard, nil
	}}
	g := newTestGenerator(chat, nil, nil)

	res, err := g.Generate(context.Background(), domain.GenerationRequest{SourceText: "今天和朋友去了公园"})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	assertStoryboardInvariants(t, res.Storyboard, 424242)
	if res.FromCache {
		t.Fatal("result unexpectedly marked as cached")
	}
	if res.Seed != 424242 {
		t.Fatalf("seed = %d, want 424242", res.Seed)
	}
	if res.CharacterCard.Description != "一个活泼的短发女孩" {
		t.Fatalf("card description = %q", res.CharacterCard.Description)
	}
	if !strings.Contains(res.CharacterCard.FullDescription, "黄色贝雷帽") {
		t.Fatalf("full description %q is missing accessories", res.CharacterCard.FullDescription)
	}
}

func TestGenerateRejectsEmptyInput(t *testing.T) {
	chat := &fakeCompleter{fn: func(p Prompt) (string, error) { return "", errors.New("unreachable") }}
	g := newTestGenerator(chat, nil, nil)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := g.Generate(context.Background(), domain.GenerationRequest{SourceText: text})
		if !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("err = %v for %q, want ErrValidation", err, text)
		}
	}
	if len(chat.calls) != 0 {
		t.Fatalf("model was called %d times for invalid input", len(chat.calls))
	}
}

func TestGenerateLibraryFallbackScenario(t *testing.T) {
	// Total model failure: the heuristic generator must still deliver four
	// scenes carrying the default character and the extracted location keyword.
	chat := &fakeCompleter{fn: func(p Prompt) (string, error) {
		return "", fmt.Errorf("bad credentials: %w", domain.ErrUpstreamPermanent)
	}}
	g := newTestGenerator(chat, nil, nil)

	res, err := g.Generate(context.Background(), domain.GenerationRequest{SourceText: "今天去了图书馆，很安静"})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	assertStoryboardInvariants(t, res.Storyboard, 424242)

	first := res.Storyboard[0].Prompt
	if !strings.Contains(first, "一个可爱的小女孩") {
		t.Fatalf("scene 1 prompt %q is missing the default character", first)
	}
	if !strings.Contains(first, "图书馆") {
		t.Fatalf("scene 1 prompt %q is missing the extracted keyword", first)
	}
}

func TestGenerateRetriesTransientModelFailures(t *testing.T) {
	var sleeps []time.Duration
	chat := &fakeCompleter{fn: func(p Prompt) (string, error) {
		if isStoryboardPrompt(p) {
			return "", fmt.Errorf("upstream 503: %w", domain.ErrUpstreamTransient)
		}
		return validCard, nil
	}}
	g := newTestGenerator(chat, nil, &sleeps)

	res, err := g.Generate(context.Background(), domain.GenerationRequest{SourceText: "忙碌的一天"})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	assertStoryboardInvariants(t, res.Storyboard, 424242)

	storyboardCalls := 0
	for _, p := range chat.calls {
		if isStoryboardPrompt(p) {
			storyboardCalls++
		}
	}
	if storyboardCalls != modelMaxRetries+1 {
		t.Fatalf("storyboard model calls = %d, want %d", storyboardCalls, modelMaxRetries+1)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", sleeps, want)
	}
	for i := range want {
		if sleeps[i] != want[i] {
			t.Fatalf("sleeps = %v, want %v", sleeps, want)
		}
	}
}

func TestGeneratePermanentModelFailureSkipsRetries(t *testing.T) {
	var sleeps []time.Duration
	chat := &fakeCompleter{fn: func(p Prompt) (string, error) {
		if isStoryboardPrompt(p) {
			return "", fmt.Errorf("status 401: %w", domain.ErrUpstreamPermanent)
		}
		return validCard, nil
	}}
	g := newTestGenerator(chat, nil, &sleeps)

	if _, err := g.Generate(context.Background(), domain.GenerationRequest{SourceText: "平静的一天"}); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	storyboardCalls := 0
	for _, p := range chat.calls {
		if isStoryboardPrompt(p) {
			storyboardCalls++
		}
	}
	if storyboardCalls != 1 {
		t.Fatalf("storyboard model calls = %d, want 1", storyboardCalls)
	}
	if len(sleeps) != 0 {
		t.Fatalf("sleeps = %v, want none", sleeps)
	}
}

func TestGenerateServesFromCache(t *testing.T) {
	c := cache.New(cache.Options{Records: store.NewMemoryStore(), Logger: zerolog.Nop()})
	chat := &fakeCompleter{fn: func(p Prompt) (string, error) {
		if isStoryboardPrompt(p) {
			return validEnvelope, nil
		}
		return validCard, nil
	}}
	g := newTestGenerator(chat, c, nil)
	req := domain.GenerationRequest{SourceText: "今天和朋友去了公园", OwnerID: "owner-1", DiaryID: "diary-1"}

	first, err := g.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("first Generate returned error: %v", err)
	}
	callsAfterFirst := len(chat.calls)

	second, err := g.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("second Generate returned error: %v", err)
	}
	if !second.FromCache {
		t.Fatal("second result not served from cache")
	}
	if len(chat.calls) != callsAfterFirst {
		t.Fatal("cached generation still called the model")
	}
	if second.Seed != first.Seed {
		t.Fatalf("cached seed = %d, want %d", second.Seed, first.Seed)
	}
}

func TestGenerateFixesMalformedModelOutput(t *testing.T) {
	// Two scenes, wild seeds, an oversized prompt: validate-and-fix must still
	// deliver four pinned, bounded scenes.
	long := strings.Repeat("很长的描述", 100)
	chat := &fakeCompleter{fn: func(p Prompt) (string, error) {
		if isStoryboardPrompt(p) {
			return fmt.Sprintf(`{"storyboards":[
			  {"scene_id":9,"prompt":%q,"seed":1},
			  {"scene_id":1,"prompt":"第二幕","video_prompt":"拉远","seed":2,"style":{"model":"other"}}
			]}`, long), nil
		}
		return validCard, nil
	}}
	g := newTestGenerator(chat, nil, nil)

	res, err := g.Generate(context.Background(), domain.GenerationRequest{SourceText: "记一件小事"})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	assertStoryboardInvariants(t, res.Storyboard, 424242)
	if res.Storyboard[1].Style.Model != "other" {
		t.Fatalf("scene 2 model = %q, want the model's value kept", res.Storyboard[1].Style.Model)
	}
	if res.Storyboard[1].Style.Preset != "korean_anime" {
		t.Fatalf("scene 2 preset = %q, want the default filled in", res.Storyboard[1].Style.Preset)
	}
	if res.Storyboard[2].VideoPrompt != defaultVideoPrompt(3) {
		t.Fatalf("scene 3 video prompt = %q", res.Storyboard[2].VideoPrompt)
	}
}

func TestCharacterCardDefaultsAfterRetries(t *testing.T) {
	cardCalls := 0
	chat := &fakeCompleter{fn: func(p Prompt) (string, error) {
		if isStoryboardPrompt(p) {
			return validEnvelope, nil
		}
		cardCalls++
		return "不是JSON", nil
	}}
	g := newTestGenerator(chat, nil, nil)

	res, err := g.Generate(context.Background(), domain.GenerationRequest{SourceText: "记一件小事"})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if cardCalls != cardMaxRetries+1 {
		t.Fatalf("card calls = %d, want %d", cardCalls, cardMaxRetries+1)
	}
	if res.CharacterCard.Description != "一个可爱的小女孩" {
		t.Fatalf("card description = %q, want the default", res.CharacterCard.Description)
	}
}
