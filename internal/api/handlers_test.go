package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"example.com/plore/internal/auth"
	"example.com/plore/internal/domain"
	"example.com/plore/internal/persistence/memory"
	routesync "example.com/plore/internal/sync"
)

func TestListWorkoutsFiltersByKind(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, "ext-1", domain.KindRunning, time.Date(2026, time.March, 1, 7, 0, 0, 0, time.UTC))
	seed(t, store, "ext-2", domain.KindCycling, time.Date(2026, time.March, 2, 7, 0, 0, 0, time.UTC))

	handler := newTestHandler(store, nil)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	req := authorized(httptest.NewRequest(http.MethodGet, "/v1/workouts?kind=running", nil), auth.ScopeRoutesRead)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp ListWorkoutsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 item got %d", len(resp.Items))
	}
	if resp.Items[0].Kind != "running" {
		t.Fatalf("unexpected kind %s", resp.Items[0].Kind)
	}
}

func TestListWorkoutsRejectsUnknownKind(t *testing.T) {
	handler := newTestHandler(memory.NewStore(), nil)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	req := authorized(httptest.NewRequest(http.MethodGet, "/v1/workouts?kind=swimming", nil), auth.ScopeRoutesRead)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestGetWorkoutNotFound(t *testing.T) {
	handler := newTestHandler(memory.NewStore(), nil)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	req := authorized(httptest.NewRequest(http.MethodGet, "/v1/workouts/missing", nil), auth.ScopeRoutesRead)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}

func TestWorkoutRouteReturnsSamples(t *testing.T) {
	store := memory.NewStore()
	id := seed(t, store, "ext-1", domain.KindRunning, time.Date(2026, time.March, 1, 7, 0, 0, 0, time.UTC))

	handler := newTestHandler(store, nil)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	req := authorized(httptest.NewRequest(http.MethodGet, "/v1/workouts/"+id+"/route", nil), auth.ScopeRoutesRead)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp RouteResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.WorkoutID != id {
		t.Fatalf("unexpected workout id %s", resp.WorkoutID)
	}
	if len(resp.Samples) != 2 {
		t.Fatalf("expected 2 samples got %d", len(resp.Samples))
	}
}

func TestRenameWorkout(t *testing.T) {
	store := memory.NewStore()
	id := seed(t, store, "ext-1", domain.KindRunning, time.Date(2026, time.March, 1, 7, 0, 0, 0, time.UTC))

	handler := newTestHandler(store, nil)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	body := strings.NewReader(`{"display_name":"  Morning tempo  "}`)
	req := authorized(httptest.NewRequest(http.MethodPatch, "/v1/workouts/"+id, body), auth.ScopeRoutesWrite)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp WorkoutView
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.DisplayName != "Morning tempo" {
		t.Fatalf("unexpected display name %q", resp.DisplayName)
	}
}

func TestRenameWorkoutRejectsBlankName(t *testing.T) {
	store := memory.NewStore()
	id := seed(t, store, "ext-1", domain.KindRunning, time.Date(2026, time.March, 1, 7, 0, 0, 0, time.UTC))

	handler := newTestHandler(store, nil)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	body := strings.NewReader(`{"display_name":"   "}`)
	req := authorized(httptest.NewRequest(http.MethodPatch, "/v1/workouts/"+id, body), auth.ScopeRoutesWrite)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestRenameWorkoutRequiresWriteScope(t *testing.T) {
	store := memory.NewStore()
	id := seed(t, store, "ext-1", domain.KindRunning, time.Date(2026, time.March, 1, 7, 0, 0, 0, time.UTC))

	handler := newTestHandler(store, nil)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	body := strings.NewReader(`{"display_name":"Tempo"}`)
	req := authorized(httptest.NewRequest(http.MethodPatch, "/v1/workouts/"+id, body), auth.ScopeRoutesRead)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}
}

func TestStartSyncRequiresScope(t *testing.T) {
	handler := newTestHandler(memory.NewStore(), &apiStubSource{})
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	req := authorized(httptest.NewRequest(http.MethodPost, "/v1/sync", nil), auth.ScopeRoutesRead)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}
}

func TestStartSyncAccepted(t *testing.T) {
	store := memory.NewStore()
	source := &apiStubSource{
		sessions: []domain.WorkoutSession{{
			ExternalID: "ext-1",
			Kind:       domain.KindRunning,
			StartedAt:  time.Date(2026, time.March, 1, 7, 0, 0, 0, time.UTC),
			EndedAt:    time.Date(2026, time.March, 1, 7, 45, 0, 0, time.UTC),
		}},
	}

	handler := newTestHandler(store, source)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	req := authorized(httptest.NewRequest(http.MethodPost, "/v1/sync", nil), auth.ScopeSyncRun)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d: %s", rr.Code, rr.Body.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		count, err := store.Count(context.Background())
		if err != nil {
			t.Fatalf("count failed: %v", err)
		}
		if count == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("sync pass never persisted the workout")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStartSyncConflictsWhileRunning(t *testing.T) {
	store := memory.NewStore()
	release := make(chan struct{})
	source := &apiStubSource{
		sessions: []domain.WorkoutSession{{
			ExternalID: "ext-1",
			Kind:       domain.KindRunning,
			StartedAt:  time.Date(2026, time.March, 1, 7, 0, 0, 0, time.UTC),
			EndedAt:    time.Date(2026, time.March, 1, 7, 45, 0, 0, time.UTC),
		}},
		beforeFetch: func() { <-release },
	}

	handler := newTestHandler(store, source)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	first := httptest.NewRecorder()
	mux.ServeHTTP(first, authorized(httptest.NewRequest(http.MethodPost, "/v1/sync", nil), auth.ScopeSyncRun))
	if first.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d: %s", first.Code, first.Body.String())
	}

	// The pass is still blocked inside its fetch. A repeat trigger of either
	// flavour must see the held slot immediately; the old pattern of checking
	// the reported state before spawning the pass could hand out a second 202
	// here.
	second := httptest.NewRecorder()
	mux.ServeHTTP(second, authorized(httptest.NewRequest(http.MethodPost, "/v1/sync", nil), auth.ScopeSyncRun))
	if second.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d: %s", second.Code, second.Body.String())
	}

	rebuild := httptest.NewRecorder()
	mux.ServeHTTP(rebuild, authorized(httptest.NewRequest(http.MethodPost, "/v1/sync/rebuild", nil), auth.ScopeSyncRun))
	if rebuild.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d: %s", rebuild.Code, rebuild.Body.String())
	}

	var resp SyncStatusResponse
	if err := json.Unmarshal(second.Body.Bytes(), &resp); err != nil {
		t.Fatalf("conflict body must carry the sync status: %v", err)
	}

	close(release)
	deadline := time.Now().Add(2 * time.Second)
	for handler.syncer.Status().State != routesync.StateIdle {
		if time.Now().After(deadline) {
			t.Fatalf("pass never finished")
		}
		time.Sleep(10 * time.Millisecond)
	}

	count, err := store.Count(context.Background())
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one pass to run, store has %d workouts", count)
	}
}

func TestSyncStatus(t *testing.T) {
	handler := newTestHandler(memory.NewStore(), &apiStubSource{})
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	req := authorized(httptest.NewRequest(http.MethodGet, "/v1/sync/status", nil), auth.ScopeRoutesRead)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp SyncStatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.State != string(routesync.StateIdle) {
		t.Fatalf("unexpected state %s", resp.State)
	}
}

func TestMissingClaimsRejected(t *testing.T) {
	handler := newTestHandler(memory.NewStore(), nil)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/v1/workouts", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}

func newTestHandler(store *memory.Store, source domain.HealthSource) *Handler {
	if source == nil {
		source = &apiStubSource{}
	}
	syncer := routesync.New(store, source)
	service := domain.NewService(store)
	return NewHandler(context.Background(), service, syncer, store)
}

func authorized(req *http.Request, scopes ...string) *http.Request {
	scopeSet := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		scopeSet[scope] = struct{}{}
	}
	claims := &auth.Claims{
		Subject:   "tester",
		Scopes:    scopeSet,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

func seed(t *testing.T, store *memory.Store, externalID string, kind domain.ActivityKind, start time.Time) string {
	t.Helper()
	result, err := store.Upsert(context.Background(), domain.Workout{
		ExternalID:  externalID,
		Kind:        kind,
		StartedAt:   start,
		EndedAt:     start.Add(45 * time.Minute),
		DisplayName: domain.DefaultDisplayName(kind, start),
	}, []domain.GeoSample{
		{Latitude: 52.52, Longitude: 13.405, CapturedAt: start},
		{Latitude: 52.521, Longitude: 13.406, CapturedAt: start.Add(5 * time.Second)},
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return result.WorkoutID
}

type apiStubSource struct {
	sessions    []domain.WorkoutSession
	beforeFetch func()
}

func (s *apiStubSource) FetchWorkouts(context.Context, []domain.ActivityKind, domain.DateRange) ([]domain.WorkoutSession, error) {
	if s.beforeFetch != nil {
		s.beforeFetch()
	}
	return s.sessions, nil
}

func (s *apiStubSource) FetchSamples(context.Context, domain.WorkoutSession) ([]domain.GeoSample, error) {
	return nil, nil
}
