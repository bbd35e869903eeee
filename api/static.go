package api

import (
	"net/http"
	"strings"

	"github.com/nviv/nviv/internal/log"
	"github.com/nviv/nviv/internal/media"
)

// StaticHandler serves generated images.
type StaticHandler struct {
	images *media.Store
	logger log.Logger
}

// RegisterRoutes registers the image route on the mux.
func (h *StaticHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /static/generated_images/{filename}", h.handleImage)
}

func (h *StaticHandler) handleImage(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")

	if h.images == nil {
		http.Error(w, "image store not configured", http.StatusNotFound)
		return
	}

	path, err := h.images.Path(filename)
	if err != nil {
		h.logger.Warn("image not found", "filename", filename, "user_agent", r.UserAgent())
		http.Error(w, "image not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", imageContentType(filename))
	h.logger.Debug("image served", "filename", filename, "user_agent", r.UserAgent())
	http.ServeFile(w, r, path)
}

// imageContentType maps a filename extension to its media type; unknown
// extensions default to PNG, matching what generation produced historically.
func imageContentType(filename string) string {
	switch {
	case strings.HasSuffix(filename, ".jpg"), strings.HasSuffix(filename, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(filename, ".webp"):
		return "image/webp"
	default:
		return "image/png"
	}
}
