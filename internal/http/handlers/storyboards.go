package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"storyreel/internal/domain"
)

type storyboardGenerateRequest struct {
	Content string `json:"content"`
	DiaryID string `json:"diary_id"`
}

func (a *App) StoryboardsGenerate(w http.ResponseWriter, r *http.Request) {
	ownerID := a.currentOwnerID(r)
	if ownerID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing owner context")
		return
	}
	var req storyboardGenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	res, err := a.Storyboards.Generate(r.Context(), domain.GenerationRequest{
		SourceText: req.Content,
		OwnerID:    ownerID,
		DiaryID:    req.DiaryID,
	})
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			a.error(w, http.StatusBadRequest, "bad_request", "content must not be empty")
			return
		}
		a.Log.Error().Err(err).Msg("storyboard generation failed")
		a.error(w, http.StatusInternalServerError, "internal", "storyboard generation failed")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"success":        true,
		"storyboards":    res.Storyboard,
		"character_card": res.CharacterCard,
		"seed":           res.Seed,
		"from_cache":     res.FromCache,
	})
}
