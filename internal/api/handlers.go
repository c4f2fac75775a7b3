// Package api exposes HTTP handlers for the route service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/plore/internal/auth"
	"example.com/plore/internal/domain"
	"example.com/plore/internal/persistence"
	routesync "example.com/plore/internal/sync"
)

// Handler coordinates HTTP requests with the domain service and synchronizer.
type Handler struct {
	service *domain.Service
	syncer  *routesync.Synchronizer
	store   domain.WorkoutStore
	runCtx  context.Context
}

// NewHandler builds a Handler. runCtx bounds background sync passes to the
// process lifetime rather than the triggering request.
func NewHandler(runCtx context.Context, service *domain.Service, syncer *routesync.Synchronizer, store domain.WorkoutStore) *Handler {
	return &Handler{
		service: service,
		syncer:  syncer,
		store:   store,
		runCtx:  runCtx,
	}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/sync", h.startSync)
	mux.HandleFunc("/v1/sync/rebuild", h.startRebuild)
	mux.HandleFunc("/v1/sync/status", h.syncStatus)
	mux.HandleFunc("/v1/workouts", h.workouts)
	mux.HandleFunc("/v1/workouts/", h.workoutSubtree)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// SyncRequest optionally narrows the pass to a window. Empty bounds mean all
// time.
type SyncRequest struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

func (h *Handler) startSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeSyncRun) {
		writeError(w, http.StatusForbidden, "forbidden", "scope sync:run required")
		return
	}

	var req SyncRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
	}

	window := domain.AllTime()
	if req.Start != nil {
		window.Start = req.Start.UTC()
	}
	if req.End != nil {
		window.End = req.End.UTC()
	}

	h.launch(w, h.syncer.Start(h.runCtx, window, nil))
}

func (h *Handler) startRebuild(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeSyncRun) {
		writeError(w, http.StatusForbidden, "forbidden", "scope sync:run required")
		return
	}

	h.launch(w, h.syncer.StartRebuild(h.runCtx, nil))
}

// launch translates a start attempt into the HTTP response. The synchronizer
// claims its single-flight slot before returning, so a 202 always means a
// pass is running; a pass already in flight coalesces the request into a 409
// carrying the current status.
func (h *Handler) launch(w http.ResponseWriter, err error) {
	if err != nil {
		if errors.Is(err, domain.ErrSyncInProgress) {
			writeJSON(w, http.StatusConflict, toSyncStatusView(h.syncer.Status(), nil))
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (h *Handler) syncStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeRoutesRead) && !claims.HasScope(auth.ScopeSyncRun) {
		writeError(w, http.StatusForbidden, "forbidden", "scope routes:read required")
		return
	}

	// The in-memory snapshot loses LastCompletedAt across restarts; fall
	// back to the persisted watermark.
	var persisted *time.Time
	if ts, err := h.store.LastSyncCompletedAt(r.Context()); err == nil {
		persisted = ts
	}

	writeJSON(w, http.StatusOK, toSyncStatusView(h.syncer.Status(), persisted))
}

func (h *Handler) workouts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeRoutesRead) && !claims.HasScope(auth.ScopeRoutesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope routes:read required")
		return
	}

	filter := domain.ListFilter{}
	if raw := r.URL.Query().Get("kind"); raw != "" {
		kind, ok := domain.ParseKindFilter(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "validation_failed", "unknown kind")
			return
		}
		filter.Kind = &kind
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > 100 {
				parsed = 100
			}
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	workouts, next, err := h.service.ListWorkouts(r.Context(), filter, cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]WorkoutView, 0, len(workouts))
	for _, workout := range workouts {
		items = append(items, toWorkoutView(workout))
	}

	writeJSON(w, http.StatusOK, ListWorkoutsResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) workoutSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/workouts/")
	if rest == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing workout id")
		return
	}

	if id, ok := strings.CutSuffix(rest, "/route"); ok {
		h.workoutRoute(w, r, id)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getWorkout(w, r, rest)
	case http.MethodPatch:
		h.renameWorkout(w, r, rest)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) getWorkout(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeRoutesRead) && !claims.HasScope(auth.ScopeRoutesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope routes:read required")
		return
	}

	workout, err := h.service.GetWorkout(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrWorkoutNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "workout not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toWorkoutView(*workout))
}

func (h *Handler) workoutRoute(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeRoutesRead) && !claims.HasScope(auth.ScopeRoutesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope routes:read required")
		return
	}

	samples, err := h.service.GetRoute(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrWorkoutNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "workout not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	points := make([]GeoSampleView, 0, len(samples))
	for _, sample := range samples {
		points = append(points, GeoSampleView{
			Latitude:   sample.Latitude,
			Longitude:  sample.Longitude,
			CapturedAt: sample.CapturedAt,
		})
	}

	writeJSON(w, http.StatusOK, RouteResponse{WorkoutID: id, Samples: points})
}

// RenameWorkoutRequest is the payload for PATCH /v1/workouts/{id}.
type RenameWorkoutRequest struct {
	DisplayName string `json:"display_name"`
}

func (h *Handler) renameWorkout(w http.ResponseWriter, r *http.Request, id string) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeRoutesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope routes:write required")
		return
	}

	var req RenameWorkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	workout, err := h.service.RenameWorkout(r.Context(), id, req.DisplayName)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrWorkoutNotFound):
			writeError(w, http.StatusNotFound, "not_found", "workout not found")
		case errors.Is(err, domain.ErrInvalidDisplayName):
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, toWorkoutView(*workout))
}

// WorkoutView exposes full details about a workout.
type WorkoutView struct {
	WorkoutID   string    `json:"workout_id"`
	ExternalID  string    `json:"external_id"`
	Kind        string    `json:"kind"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	Indoor      bool      `json:"indoor"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListWorkoutsResponse packages list results.
type ListWorkoutsResponse struct {
	Items      []WorkoutView `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// GeoSampleView is one point on a route path.
type GeoSampleView struct {
	Latitude   float64   `json:"lat"`
	Longitude  float64   `json:"lon"`
	CapturedAt time.Time `json:"captured_at"`
}

// RouteResponse carries a workout's ordered path.
type RouteResponse struct {
	WorkoutID string          `json:"workout_id"`
	Samples   []GeoSampleView `json:"samples"`
}

// SyncOutcomeView summarises a completed pass.
type SyncOutcomeView struct {
	WorkoutsProcessed int       `json:"workouts_processed"`
	WorkoutsFailed    int       `json:"workouts_failed"`
	SamplesInserted   int       `json:"samples_inserted"`
	StartedAt         time.Time `json:"started_at"`
	CompletedAt       time.Time `json:"completed_at"`
	FullRebuild       bool      `json:"full_rebuild"`
}

// SyncStatusResponse reports the live pass state and progress.
type SyncStatusResponse struct {
	State           string           `json:"state"`
	Loaded          int              `json:"loaded"`
	Total           int              `json:"total"`
	LastCompletedAt *time.Time       `json:"last_completed_at,omitempty"`
	LastOutcome     *SyncOutcomeView `json:"last_outcome,omitempty"`
}

func toSyncStatusView(status routesync.Status, persisted *time.Time) SyncStatusResponse {
	resp := SyncStatusResponse{
		State:           string(status.State),
		Loaded:          status.Loaded,
		Total:           status.Total,
		LastCompletedAt: status.LastCompletedAt,
	}
	if resp.LastCompletedAt == nil {
		resp.LastCompletedAt = persisted
	}
	if status.LastOutcome != nil {
		resp.LastOutcome = &SyncOutcomeView{
			WorkoutsProcessed: status.LastOutcome.WorkoutsProcessed,
			WorkoutsFailed:    status.LastOutcome.WorkoutsFailed,
			SamplesInserted:   status.LastOutcome.SamplesInserted,
			StartedAt:         status.LastOutcome.StartedAt,
			CompletedAt:       status.LastOutcome.CompletedAt,
			FullRebuild:       status.LastOutcome.FullRebuild,
		}
	}
	return resp
}

func toWorkoutView(workout domain.Workout) WorkoutView {
	return WorkoutView{
		WorkoutID:   workout.ID,
		ExternalID:  workout.ExternalID,
		Kind:        string(workout.Kind),
		StartedAt:   workout.StartedAt,
		EndedAt:     workout.EndedAt,
		Indoor:      workout.Indoor,
		DisplayName: workout.DisplayName,
		CreatedAt:   workout.CreatedAt,
		UpdatedAt:   workout.UpdatedAt,
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
