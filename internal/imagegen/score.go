package imagegen

import (
	"math"
	"math/rand/v2"
	"strings"
)

const (
	qualityBase = 80
	styleBase   = 85

	targetAspectRatio = 9.0 / 16.0
)

// styleKeywords earn a consistency bonus when present in the prompt.
var styleKeywords = []string{"韩式", "动漫", "3D", "浅蓝", "竖版"}

// Scorer computes the quality and style-consistency scores attached to
// generated images. The jitter source is injectable; tests assert bounds, not
// exact values.
type Scorer struct {
	jitter func() float64
}

// NewScorer creates a Scorer. A nil jitter defaults to uniform noise in
// [-5, 5).
func NewScorer(jitter func() float64) *Scorer {
	if jitter == nil {
		jitter = func() float64 { return rand.Float64()*10 - 5 }
	}
	return &Scorer{jitter: jitter}
}

// Quality scores an image from its dimensions: a fixed base plus a bonus for
// aspect ratios close to the 9:16 target, plus jitter, clamped to [0, 100].
func (s *Scorer) Quality(width, height int) int {
	score := float64(qualityBase)
	if width > 0 && height > 0 {
		diff := math.Abs(float64(width)/float64(height) - targetAspectRatio)
		switch {
		case diff < 0.1:
			score += 10
		case diff < 0.2:
			score += 5
		}
	}
	score += s.jitter()
	return clampScore(score)
}

// StyleConsistency scores how well the prompt matches the house style: a
// fixed base plus a per-keyword bonus, plus jitter, clamped to [0, 100].
func (s *Scorer) StyleConsistency(prompt string) int {
	score := float64(styleBase)
	lowered := strings.ToLower(prompt)
	for _, keyword := range styleKeywords {
		if strings.Contains(lowered, strings.ToLower(keyword)) {
			score += 2
		}
	}
	score += s.jitter()
	return clampScore(score)
}

func clampScore(score float64) int {
	rounded := int(math.Round(score))
	if rounded < 0 {
		return 0
	}
	if rounded > 100 {
		return 100
	}
	return rounded
}
