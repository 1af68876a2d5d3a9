package httpapi

import (
	stdhttp "net/http"

	"storyreel/internal/http/handlers"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(app *handlers.App) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, middleware.Logger)

	// Health
	r.Get("/v1/healthz", app.Health)

	if app.Blobs != nil {
		r.Get("/static/*", app.ServeBlob)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/storyboards", app.StoryboardsGenerate)
		r.Post("/images", app.ImagesGenerate)
		r.Route("/videos", func(r chi.Router) {
			r.Post("/", app.VideosSubmit)
			r.Get("/{task_id}", app.VideoStatus)
		})
	})

	return r
}
