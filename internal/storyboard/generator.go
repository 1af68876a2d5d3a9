// Package storyboard turns a short diary text into a four-scene storyboard.
// Generation runs a fallback chain: cached result, language model with retry
// and JSON repair, then a local heuristic that never fails. Callers therefore
// always receive a structurally valid storyboard unless the input itself is
// empty.
package storyboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"storyreel/internal/cache"
	"storyreel/internal/domain"
	"storyreel/internal/strategy"
)

const (
	modelMaxRetries = 3
	cardMaxRetries  = 2

	storyboardSystemPrompt = `你是一个专业的视觉分镜师。请根据用户提供的日记内容，生成4个连贯的视觉分镜，忠于原文，确保角色一致性。

要求：
1. 生成4个分镜，每个分镜包含scene_id、prompt、video_prompt、seed、style字段
2. prompt字段按照"角色卡片+风格+主体描述+美学+氛围"结构，中文输出，280字符以内
3. video_prompt为视频生成提示词，简洁明了
4. seed使用提供的全局种子值确保一致性
5. style包含model、preset、color、aspect_ratio字段
6. 严格按照JSON格式输出，顶层字段为storyboards数组，不要包含任何其他文字`

	characterSystemPrompt = `从日记中提取核心人物的特征，生成一个JSON对象描述其外貌。JSON结构如下：
{
  "description": "简短的角色核心描述",
  "hair_style": "具体的发型",
  "eye_color": "瞳色",
  "outfit": "典型的着装风格",
  "accessories": "标志性配饰"
}
要求：所有描述必须使用中文。如果日记中信息不足，请根据"可爱的小女孩"这一核心概念进行合理、一致的想象和补充。`
)

// Result is the outcome of one generation run.
type Result struct {
	Storyboard    domain.Storyboard    `json:"storyboards"`
	CharacterCard domain.CharacterCard `json:"character_card"`
	Seed          int64                `json:"seed"`
	FromCache     bool                 `json:"from_cache"`
}

// Generator orchestrates storyboard synthesis.
type Generator struct {
	chat    Completer
	cache   *cache.StoryboardCache
	newSeed func() int64
	sleep   func(ctx context.Context, d time.Duration) error
	log     zerolog.Logger
}

// GeneratorOptions configures a Generator. Seed and Sleep default to the real
// thing and exist for tests.
type GeneratorOptions struct {
	Chat   Completer
	Cache  *cache.StoryboardCache
	Seed   func() int64
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger zerolog.Logger
}

// NewGenerator creates a storyboard generator.
func NewGenerator(opts GeneratorOptions) *Generator {
	newSeed := opts.Seed
	if newSeed == nil {
		newSeed = func() int64 { return rand.Int64N(domain.SeedRange) + 1 }
	}
	return &Generator{
		chat:    opts.Chat,
		cache:   opts.Cache,
		newSeed: newSeed,
		sleep:   opts.Sleep,
		log:     opts.Logger,
	}
}

// Generate produces a storyboard for the request. Only empty input is a hard
// error; model failures degrade through retries into the heuristic generator.
func (g *Generator) Generate(ctx context.Context, req domain.GenerationRequest) (*Result, error) {
	content := strings.TrimSpace(req.SourceText)
	if content == "" {
		return nil, fmt.Errorf("storyboard: source text is empty: %w", domain.ErrValidation)
	}

	if req.DiaryID != "" && g.cache != nil {
		if sb, ok := g.cache.Get(ctx, req.OwnerID, req.DiaryID); ok {
			g.log.Debug().Str("diary_id", req.DiaryID).Msg("storyboard served from cache")
			return &Result{Storyboard: sb, Seed: sb.Seed(), FromCache: true}, nil
		}
	}

	seed := g.newSeed()
	card := g.characterCard(ctx, content)

	sb, err := strategy.FirstSuccess(ctx,
		g.modelStrategy(content, card.FullDescription, seed),
		func(ctx context.Context) (domain.Storyboard, error) {
			g.log.Info().Msg("storyboard falling back to heuristic generation")
			return fallbackStoryboard(content, card.FullDescription, seed), nil
		},
	)
	if err != nil {
		return nil, err
	}

	if req.DiaryID != "" && g.cache != nil {
		g.cache.Put(ctx, req.OwnerID, req.DiaryID, sb)
	}
	return &Result{Storyboard: sb, CharacterCard: card, Seed: seed}, nil
}

// modelStrategy wraps the language-model path in the retry policy: transient
// upstream failures back off and retry, parse failures and permanent
// rejections drop straight through to the next strategy.
func (g *Generator) modelStrategy(content, card string, seed int64) strategy.Strategy[domain.Storyboard] {
	return func(ctx context.Context) (domain.Storyboard, error) {
		return strategy.Do(ctx, strategy.Policy{
			MaxRetries: modelMaxRetries,
			Backoff:    strategy.Exponential(time.Second, 0),
			Retryable: func(err error) bool {
				return errors.Is(err, domain.ErrUpstreamTransient)
			},
			Sleep: g.sleep,
			OnRetry: func(retry int, delay time.Duration, err error) {
				g.log.Warn().Err(err).Int("retry", retry).Dur("delay", delay).Msg("storyboard model call failed")
			},
		}, func(ctx context.Context) (domain.Storyboard, error) {
			raw, err := g.chat.Complete(ctx, Prompt{
				System:      storyboardSystemPrompt,
				User:        fmt.Sprintf("角色核心设定：%s\n全局种子值：%d\n\n请为以下日记内容生成4个连贯的分镜：\n\n%s", card, seed, content),
				Temperature: 0.7,
				MaxTokens:   2000,
			})
			if err != nil {
				return nil, err
			}
			scenes, outcome, err := parseScenes(raw)
			if err != nil {
				return nil, err
			}
			if outcome == ParseRepaired {
				g.log.Debug().Msg("storyboard model output repaired before parse")
			}
			return validateAndFix(scenes, card, seed), nil
		})
	}
}

// characterCard asks the model for a structured subject description, retrying
// any failure twice before settling on the default card. Card failures never
// abort the pipeline.
func (g *Generator) characterCard(ctx context.Context, content string) domain.CharacterCard {
	card, err := strategy.Do(ctx, strategy.Policy{
		MaxRetries: cardMaxRetries,
		Sleep:      g.sleep,
	}, func(ctx context.Context) (domain.CharacterCard, error) {
		raw, err := g.chat.Complete(ctx, Prompt{
			System:      characterSystemPrompt,
			User:        "请为以下日记内容生成角色卡片：\n\n" + content,
			Temperature: 0.6,
			MaxTokens:   500,
		})
		if err != nil {
			return domain.CharacterCard{}, err
		}
		var parsed domain.CharacterCard
		if err := json.Unmarshal([]byte(extractObjectFragment(trimCodeFence(raw))), &parsed); err != nil {
			return domain.CharacterCard{}, fmt.Errorf("storyboard: decode character card: %w", domain.ErrParseFailed)
		}
		if parsed.Description == "" {
			return domain.CharacterCard{}, fmt.Errorf("storyboard: character card missing description: %w", domain.ErrParseFailed)
		}
		parsed.FullDescription = joinCardFields(parsed)
		return parsed, nil
	})
	if err != nil {
		g.log.Warn().Err(err).Msg("character card generation failed, using default")
		return defaultCharacterCard()
	}
	return card
}

func defaultCharacterCard() domain.CharacterCard {
	return domain.CharacterCard{
		Description:     "一个可爱的小女孩",
		FullDescription: "一个可爱的小女孩",
	}
}

func joinCardFields(card domain.CharacterCard) string {
	fields := []string{card.Description, card.HairStyle, card.EyeColor, card.Outfit, card.Accessories}
	var parts []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, "，")
}

// validateAndFix rebuilds exactly SceneCount scenes from whatever the model
// returned, synthesizing any missing piece and pinning every seed to the
// shared value.
func validateAndFix(scenes []rawScene, card string, seed int64) domain.Storyboard {
	sb := make(domain.Storyboard, domain.SceneCount)
	for i := range sb {
		sceneID := i + 1
		var raw rawScene
		if i < len(scenes) {
			raw = scenes[i]
		}
		prompt := strings.TrimSpace(raw.Prompt)
		if prompt == "" {
			prompt = fmt.Sprintf("%s，韩式动漫3D风格，场景%d的日常生活描述，中景镜头，柔和光线，温馨氛围，9:16竖版，高画质", card, sceneID)
		}
		videoPrompt := strings.TrimSpace(raw.VideoPrompt)
		if videoPrompt == "" {
			videoPrompt = defaultVideoPrompt(sceneID)
		}
		sb[i] = domain.Scene{
			SceneID:     sceneID,
			Prompt:      domain.TruncatePrompt(prompt),
			VideoPrompt: videoPrompt,
			Seed:        seed,
			Style:       mergeStyle(raw.Style),
		}
	}
	return sb
}

// mergeStyle fills any field the model left empty from the house style.
func mergeStyle(s domain.Style) domain.Style {
	def := domain.DefaultStyle()
	if s.Model == "" {
		s.Model = def.Model
	}
	if s.Preset == "" {
		s.Preset = def.Preset
	}
	if s.Color == "" {
		s.Color = def.Color
	}
	if s.AspectRatio == "" {
		s.AspectRatio = def.AspectRatio
	}
	return s
}
