package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"storyreel/internal/domain"
	"storyreel/internal/videotask"
)

type videoSubmitRequest struct {
	SelectedImages []string `json:"selected_images"`
	DiaryID        string   `json:"diary_id"`
	SceneID        string   `json:"scene_id"`
	Prompt         string   `json:"prompt"`
	Seed           int64    `json:"seed"`
	AspectRatio    string   `json:"aspect_ratio"`
}

func (a *App) VideosSubmit(w http.ResponseWriter, r *http.Request) {
	ownerID := a.currentOwnerID(r)
	if ownerID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing owner context")
		return
	}
	var req videoSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	task, err := a.Videos.Submit(r.Context(), videotask.SubmitParams{
		OwnerID:        ownerID,
		DiaryID:        req.DiaryID,
		SceneID:        req.SceneID,
		SelectedImages: req.SelectedImages,
		Prompt:         req.Prompt,
		Seed:           req.Seed,
		AspectRatio:    req.AspectRatio,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			a.error(w, http.StatusBadRequest, "bad_request", "selected_images and diary_id are required")
		case errors.Is(err, domain.ErrUpstreamTransient):
			a.error(w, http.StatusBadGateway, "upstream_unavailable", "video service is temporarily unavailable")
		default:
			a.Log.Error().Err(err).Msg("video submission failed")
			a.error(w, http.StatusInternalServerError, "internal", "video submission failed")
		}
		return
	}
	a.json(w, http.StatusAccepted, map[string]any{
		"success": true,
		"task":    task,
	})
}

func (a *App) VideoStatus(w http.ResponseWriter, r *http.Request) {
	ownerID := a.currentOwnerID(r)
	if ownerID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing owner context")
		return
	}
	taskID := chi.URLParam(r, "task_id")
	if taskID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "task_id required")
		return
	}

	task, err := a.Videos.Poll(r.Context(), taskID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			a.error(w, http.StatusNotFound, "not_found", "task not found")
		case errors.Is(err, domain.ErrMissingExternalTask):
			a.error(w, http.StatusConflict, "missing_external_task", "task has no external reference")
		case errors.Is(err, domain.ErrUpstreamTransient):
			a.error(w, http.StatusBadGateway, "upstream_unavailable", "video service is temporarily unavailable")
		default:
			a.Log.Error().Err(err).Str("task_id", taskID).Msg("video status poll failed")
			a.error(w, http.StatusInternalServerError, "internal", "video status poll failed")
		}
		return
	}
	if task.OwnerID != "" && task.OwnerID != ownerID {
		a.error(w, http.StatusNotFound, "not_found", "task not found")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"success": true,
		"task":    task,
	})
}
