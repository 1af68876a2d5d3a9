package domain

import "unicode/utf8"

const (
	// SceneCount is the fixed number of scenes in every storyboard.
	SceneCount = 4
	// MaxPromptChars bounds a scene prompt, counted in characters.
	MaxPromptChars = 280
	// SeedRange is the exclusive upper bound for generation seeds; seeds are
	// drawn from 1..SeedRange.
	SeedRange = 1_000_000_000
)

// Style pins the rendering parameters shared by every scene of a request.
type Style struct {
	Model       string `json:"model"`
	Preset      string `json:"preset"`
	Color       string `json:"color"`
	AspectRatio string `json:"aspect_ratio"`
}

// DefaultStyle returns the house rendering style.
func DefaultStyle() Style {
	return Style{
		Model:       "dmx-3.0",
		Preset:      "korean_anime",
		Color:       "light_blue",
		AspectRatio: "9:16",
	}
}

// Scene is one of four ordered narrative beats of a storyboard.
type Scene struct {
	SceneID     int    `json:"scene_id"`
	Prompt      string `json:"prompt"`
	VideoPrompt string `json:"video_prompt"`
	Seed        int64  `json:"seed"`
	Style       Style  `json:"style"`
}

// Storyboard is the ordered list of exactly SceneCount scenes. Scene ids form
// a contiguous 1..SceneCount sequence regardless of upstream output order.
type Storyboard []Scene

// Seed reports the shared seed of the storyboard, or zero when empty.
func (s Storyboard) Seed() int64 {
	if len(s) == 0 {
		return 0
	}
	return s[0].Seed
}

// CharacterCard is the reusable description of the recurring subject, injected
// verbatim into every scene prompt of a request for visual continuity.
type CharacterCard struct {
	Description     string `json:"description"`
	HairStyle       string `json:"hair_style,omitempty"`
	EyeColor        string `json:"eye_color,omitempty"`
	Outfit          string `json:"outfit,omitempty"`
	Accessories     string `json:"accessories,omitempty"`
	FullDescription string `json:"full_description"`
}

// GenerationRequest is the immutable caller input to the pipeline.
type GenerationRequest struct {
	SourceText string `json:"source_text"`
	OwnerID    string `json:"owner_id"`
	DiaryID    string `json:"diary_id,omitempty"`
}

// TruncatePrompt bounds a prompt to MaxPromptChars characters.
func TruncatePrompt(s string) string {
	if utf8.RuneCountInString(s) <= MaxPromptChars {
		return s
	}
	runes := []rune(s)
	return string(runes[:MaxPromptChars])
}
