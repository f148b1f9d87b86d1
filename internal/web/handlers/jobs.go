package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/suryaprakashreddyadapa/photo-webapp/internal/database"
)

// JobsHandler exposes job enqueueing and inspection.
type JobsHandler struct {
	store        *database.Store
	defaultScope string
}

// NewJobsHandler creates a jobs handler.
func NewJobsHandler(store *database.Store, defaultScope string) *JobsHandler {
	return &JobsHandler{store: store, defaultScope: defaultScope}
}

type triggerRequest struct {
	Scope string `json:"scope"`
	Stage string `json:"stage"` // only for process; empty means the full stage chain
}

func (h *JobsHandler) scopeOrDefault(scope string) string {
	if scope == "" {
		return h.defaultScope
	}
	return scope
}

// TriggerScan enqueues a scan job for a scope. A scope with a scan already
// pending or running answers 409.
func (h *JobsHandler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return
		}
	}

	job := &database.Job{Type: database.JobTypeScan, Scope: h.scopeOrDefault(req.Scope)}
	if err := h.store.Jobs.Enqueue(r.Context(), job); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, job)
}

// TriggerProcess enqueues an enrichment job. An empty stage reprocesses the
// full chain; a named stage enqueues a single-stage job.
func (h *JobsHandler) TriggerProcess(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return
		}
	}

	jobType := database.JobTypeEnrich
	if req.Stage != "" {
		stage := database.Stage(req.Stage)
		if !stage.Valid() {
			respondError(w, http.StatusBadRequest, "unknown stage: "+req.Stage)
			return
		}
		jobType = database.StageJobType(stage)
	}

	job := &database.Job{Type: jobType, Scope: h.scopeOrDefault(req.Scope)}
	if err := h.store.Jobs.Enqueue(r.Context(), job); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, job)
}

// Get returns one job with its progress counters.
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.store.Jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// List returns the jobs of a scope, oldest first.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	scope := h.scopeOrDefault(r.URL.Query().Get("scope"))
	jobs, err := h.store.Jobs.ListByScope(r.Context(), scope)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// Cancel requests cancellation. Pending jobs cancel immediately; running jobs
// stop at the next item boundary. Cancelling a finished job is a no-op.
func (h *JobsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.Jobs.RequestCancel(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "cancel_requested"})
}
