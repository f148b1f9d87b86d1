package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	aimock "github.com/suryaprakashreddyadapa/photo-webapp/internal/ai/mock"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/config"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/database"
	dbmock "github.com/suryaprakashreddyadapa/photo-webapp/internal/database/mock"
	"github.com/suryaprakashreddyadapa/photo-webapp/internal/search"
)

const testScope = "default"

// testStore creates an empty in-memory store.
func testStore() *database.Store {
	return dbmock.NewStore(8)
}

// testResolver creates a resolver over the store with a deterministic embedder.
func testResolver(store *database.Store) *search.Resolver {
	cfg := config.SearchConfig{DefaultLimit: 40, MaxLimit: 200}
	return search.NewResolver(store, aimock.NewEmbedder(8), cfg)
}

// requestWithChiParams creates a request with chi URL parameters.
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse decodes the recorded response body.
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(recorder.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response body: %v", err)
	}
}

// assertStatusCode fails the test when the recorded status differs.
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, want int) {
	t.Helper()
	if recorder.Code != want {
		t.Fatalf("Expected status %d, got %d (body %s)", want, recorder.Code, recorder.Body.String())
	}
}
