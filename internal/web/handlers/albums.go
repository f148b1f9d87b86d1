package handlers

import (
	"net/http"

	"github.com/suryaprakashreddyadapa/photo-webapp/internal/database"
)

// AlbumsHandler lists saved smart albums.
type AlbumsHandler struct {
	store        *database.Store
	defaultScope string
}

// NewAlbumsHandler creates an albums handler.
func NewAlbumsHandler(store *database.Store, defaultScope string) *AlbumsHandler {
	return &AlbumsHandler{store: store, defaultScope: defaultScope}
}

// List returns the smart albums of a scope, sorted by name.
func (h *AlbumsHandler) List(w http.ResponseWriter, r *http.Request) {
	scope := r.URL.Query().Get("scope")
	if scope == "" {
		scope = h.defaultScope
	}
	albums, err := h.store.Albums.ListSmartAlbums(r.Context(), scope)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if albums == nil {
		albums = []*database.SmartAlbum{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"albums": albums})
}
