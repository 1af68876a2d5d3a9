package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"storyreel/internal/domain"
)

type imagesGenerateRequest struct {
	Storyboards domain.Storyboard `json:"storyboards"`
	DiaryID     string            `json:"diary_id"`
}

func (a *App) ImagesGenerate(w http.ResponseWriter, r *http.Request) {
	ownerID := a.currentOwnerID(r)
	if ownerID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing owner context")
		return
	}
	var req imagesGenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	res, err := a.Images.GenerateAll(r.Context(), req.Storyboards, ownerID, req.DiaryID)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			a.error(w, http.StatusBadRequest, "bad_request", "storyboards must contain exactly 4 scenes")
			return
		}
		a.Log.Error().Err(err).Msg("image generation failed")
		a.error(w, http.StatusInternalServerError, "internal", "image generation failed")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    res.Sets,
		"errors":  res.Errors,
	})
}
