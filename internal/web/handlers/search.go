package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/suryaprakashreddyadapa/photo-webapp/internal/database"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/search"
)

// SearchHandler exposes structured search and the natural-language ask
// endpoint.
type SearchHandler struct {
	resolver     *search.Resolver
	defaultScope string
}

// NewSearchHandler creates a search handler.
func NewSearchHandler(resolver *search.Resolver, defaultScope string) *SearchHandler {
	return &SearchHandler{resolver: resolver, defaultScope: defaultScope}
}

// parseDate accepts RFC 3339 timestamps and plain dates.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

type searchResponse struct {
	Items  []*database.MediaItem `json:"items"`
	Total  int                   `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

// Search runs a structured query built from query parameters.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	scope := q.Get("scope")
	if scope == "" {
		scope = h.defaultScope
	}

	var filter database.SearchFilter
	switch kind := q.Get("kind"); kind {
	case "":
	case string(database.KindPhoto):
		filter.Kind = database.KindPhoto
	case string(database.KindVideo):
		filter.Kind = database.KindVideo
	default:
		respondError(w, http.StatusBadRequest, "unknown kind: "+kind)
		return
	}
	if v := q.Get("favorite"); v != "" {
		fav, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid favorite: "+v)
			return
		}
		filter.Favorite = &fav
	}
	if v := q.Get("from"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid from date: "+v)
			return
		}
		filter.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid to date: "+v)
			return
		}
		filter.To = &t
	}
	filter.Tag = q.Get("tag")
	filter.PersonID = q.Get("person")

	var page search.Page
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid limit: "+v)
			return
		}
		page.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid offset: "+v)
			return
		}
		page.Offset = n
	}

	items, total, err := h.resolver.Search(r.Context(), scope, filter, page)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if items == nil {
		items = []*database.MediaItem{}
	}
	respondJSON(w, http.StatusOK, searchResponse{
		Items:  items,
		Total:  total,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
}

type askRequest struct {
	Scope string `json:"scope"`
	Text  string `json:"text"`
}

// Ask answers a natural-language question or executes a recognized command.
func (h *SearchHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Text == "" {
		respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.Scope == "" {
		req.Scope = h.defaultScope
	}

	result, err := h.resolver.Ask(r.Context(), req.Scope, req.Text)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if result.Items == nil {
		result.Items = []*database.MediaItem{}
	}
	respondJSON(w, http.StatusOK, result)
}
