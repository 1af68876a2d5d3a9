package storyboard

import (
	"encoding/json"
	"fmt"
	"strings"

	"storyreel/internal/domain"
)

// ParseOutcome tags how a model response was decoded: strictly, after one
// bounded repair pass, or not at all.
type ParseOutcome int

const (
	ParseOk ParseOutcome = iota
	ParseRepaired
	ParseFailed
)

func (o ParseOutcome) String() string {
	switch o {
	case ParseOk:
		return "ok"
	case ParseRepaired:
		return "repaired"
	default:
		return "failed"
	}
}

// rawScene tolerates partial or malformed model output; validateAndFix fills
// whatever is missing.
type rawScene struct {
	SceneID     int          `json:"scene_id"`
	Prompt      string       `json:"prompt"`
	VideoPrompt string       `json:"video_prompt"`
	Seed        int64        `json:"seed"`
	Style       domain.Style `json:"style"`
}

type sceneEnvelope struct {
	Storyboards []rawScene `json:"storyboards"`
}

// parseScenes decodes a model response in two stages: a strict parse first,
// then a single repair attempt that strips code fences and reparses the
// outermost {...} fragment. Anything beyond that is a hard parse failure.
func parseScenes(raw string) ([]rawScene, ParseOutcome, error) {
	var envelope sceneEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err == nil {
		return envelope.Storyboards, ParseOk, nil
	}

	fragment := extractObjectFragment(trimCodeFence(raw))
	if fragment == "" {
		return nil, ParseFailed, fmt.Errorf("storyboard: no JSON object in model output: %w", domain.ErrParseFailed)
	}
	if err := json.Unmarshal([]byte(fragment), &envelope); err != nil {
		return nil, ParseFailed, fmt.Errorf("storyboard: repair parse: %v: %w", err, domain.ErrParseFailed)
	}
	return envelope.Storyboards, ParseRepaired, nil
}

// extractObjectFragment returns the substring from the first '{' to the last
// '}' inclusive, or empty when no such span exists.
func extractObjectFragment(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// trimCodeFence removes a surrounding markdown code fence, with or without a
// language tag.
func trimCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
