/*
handlers.go - HTTP API handlers for the inflation engine

PURPOSE:
  Exposes the loaded star schema and the pipeline trigger over REST.
  Handles HTTP request/response and JSON serialization, delegating the
  actual work to the pipeline runner and the store.

ENDPOINTS:
  Runs:
    POST   /api/runs           Trigger a pipeline run (optional {"from": "YYYY-MM"})
    GET    /api/runs           List persisted runs, latest first
    GET    /api/runs/{id}      Get one run

  Dimensions:
    GET    /api/regions        List region dimension rows
    GET    /api/categories     List category dimension rows

  Facts:
    GET    /api/observations   Query facts joined with dimensions
                               ?region=&category=&classification=&from=&to=&limit=

  Health:
    GET    /api/healthz        Liveness probe

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid body or query parameters
  - 404: Run not found
  - 409: A run is already in progress
  - 500: Store or pipeline failures

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - pipeline/run.go: What a run actually does
*/
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/austral/ipc-engine/pipeline"
	"github.com/austral/ipc-engine/series"
	"github.com/austral/ipc-engine/warehouse"
)

const defaultRunListLimit = 50

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  warehouse.Store
	Runner *pipeline.Runner
}

// NewHandler creates a handler over a store and a runner.
func NewHandler(store warehouse.Store, runner *pipeline.Runner) *Handler {
	return &Handler{Store: store, Runner: runner}
}

// =============================================================================
// RUN HANDLERS
// =============================================================================

// TriggerRun starts a pipeline run and blocks until it finishes.
// POST /api/runs
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	var from series.Month

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body", err)
		return
	}
	if len(body) > 0 {
		var req TriggerRunRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
		if req.From != "" {
			from, err = series.ParseMonth(req.From)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid from month (use YYYY-MM)", err)
				return
			}
		}
	}

	report, err := h.Runner.Run(r.Context(), from)
	if errors.Is(err, pipeline.ErrRunInProgress) {
		writeError(w, http.StatusConflict, "A run is already in progress", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Run failed", err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// ListRuns returns persisted runs, latest first.
// GET /api/runs
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	runs, err := h.Store.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}

	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRun returns one run by id.
// GET /api/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.Store.GetRun(r.Context(), id)
	if errors.Is(err, warehouse.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "Run not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get run", err)
		return
	}

	writeJSON(w, http.StatusOK, toRunDTO(*run))
}

// =============================================================================
// DIMENSION HANDLERS
// =============================================================================

// ListRegions returns all region dimension rows.
// GET /api/regions
func (h *Handler) ListRegions(w http.ResponseWriter, r *http.Request) {
	regions, err := h.Store.ListRegions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list regions", err)
		return
	}

	dtos := make([]RegionDTO, len(regions))
	for i, reg := range regions {
		dtos[i] = RegionDTO{ID: reg.ID, Name: reg.Name}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListCategories returns all category dimension rows.
// GET /api/categories
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.Store.ListCategories(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list categories", err)
		return
	}

	dtos := make([]CategoryDTO, len(categories))
	for i, c := range categories {
		dtos[i] = CategoryDTO{
			ID:             c.ID,
			Name:           c.Name,
			Classification: c.Classification,
			Nature:         c.Nature,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// OBSERVATION HANDLERS
// =============================================================================

// ListObservations returns facts joined with their dimensions.
// GET /api/observations?region=&category=&classification=&from=&to=&limit=
func (h *Handler) ListObservations(w http.ResponseWriter, r *http.Request) {
	q := warehouse.ObservationQuery{
		Region:         r.URL.Query().Get("region"),
		Category:       r.URL.Query().Get("category"),
		Classification: r.URL.Query().Get("classification"),
	}

	if v := r.URL.Query().Get("from"); v != "" {
		m, err := series.ParseMonth(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from month (use YYYY-MM)", err)
			return
		}
		q.From = m
	}
	if v := r.URL.Query().Get("to"); v != "" {
		m, err := series.ParseMonth(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to month (use YYYY-MM)", err)
			return
		}
		q.To = m
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		q.Limit = n
	}

	rows, err := h.Store.QueryObservations(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query observations", err)
		return
	}

	dtos := make([]ObservationDTO, len(rows))
	for i, row := range rows {
		dtos[i] = toObservationDTO(row)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HEALTH
// =============================================================================

// Healthz reports liveness.
// GET /api/healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
