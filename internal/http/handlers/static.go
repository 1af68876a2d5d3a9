package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ServeBlob serves a stored blob after checking the signed expiry pair issued
// by the file store's TempURL.
func (a *App) ServeBlob(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	q := r.URL.Query()
	if err := a.Blobs.VerifyTempURL(key, q.Get("expires"), q.Get("sig")); err != nil {
		a.error(w, http.StatusForbidden, "forbidden", "invalid or expired link")
		return
	}
	path, err := a.Blobs.Open(key)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "blob not found")
		return
	}
	http.ServeFile(w, r, path)
}
