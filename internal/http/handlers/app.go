package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"storyreel/internal/domain"
	"storyreel/internal/imagegen"
	"storyreel/internal/store"
	"storyreel/internal/storyboard"
	"storyreel/internal/videotask"
)

// StoryboardService turns diary text into a storyboard.
type StoryboardService interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (*storyboard.Result, error)
}

// ImageService renders a storyboard into per-scene image sets.
type ImageService interface {
	GenerateAll(ctx context.Context, sb domain.Storyboard, ownerID, diaryID string) (*imagegen.BatchResult, error)
}

// VideoService submits and polls image-to-video tasks.
type VideoService interface {
	Submit(ctx context.Context, p videotask.SubmitParams) (*domain.VideoTask, error)
	Poll(ctx context.Context, taskID string) (*domain.VideoTask, error)
}

type App struct {
	Storyboards StoryboardService
	Images      ImageService
	Videos      VideoService
	Blobs       *store.FileStore
	Log         zerolog.Logger
}

func NewApp(storyboards StoryboardService, images ImageService, videos VideoService, log zerolog.Logger) *App {
	return &App{Storyboards: storyboards, Images: images, Videos: videos, Log: log}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, msg string) {
	a.json(w, code, map[string]any{"success": false, "error": errCode, "message": msg})
}

// currentOwnerID identifies the caller. Authentication happens upstream; the
// gateway forwards the resolved identity in a header.
func (a *App) currentOwnerID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Owner-ID"))
}
