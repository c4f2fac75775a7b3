// Package memory provides an in-memory route store for local development and
// tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/plore/internal/domain"
)

// Store is a mutex-guarded domain.WorkoutStore. FailUpsert can be set by
// tests to inject a per-workout write failure keyed by external identifier.
type Store struct {
	mu          sync.RWMutex
	workouts    map[string]domain.Workout    // keyed by workout ID
	byExternal  map[string]string            // external ID -> workout ID
	samples     map[string][]domain.GeoSample
	lastSync    *time.Time
	lastOutcome *domain.SyncOutcome

	FailUpsert func(externalID string) error
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		workouts:   make(map[string]domain.Workout),
		byExternal: make(map[string]string),
		samples:    make(map[string][]domain.GeoSample),
	}
}

// FindByExternalID implements domain.WorkoutStore.
func (s *Store) FindByExternalID(ctx context.Context, externalID string) (*domain.Workout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byExternal[externalID]
	if !ok {
		return nil, nil
	}
	workout := s.workouts[id]
	return &workout, nil
}

// Upsert implements the find-or-create semantics of the Postgres store,
// including display-name preservation and sample replacement.
func (s *Store) Upsert(ctx context.Context, workout domain.Workout, samples []domain.GeoSample) (domain.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailUpsert != nil {
		if err := s.FailUpsert(workout.ExternalID); err != nil {
			return domain.UpsertResult{}, err
		}
	}

	now := time.Now().UTC()
	result := domain.UpsertResult{SamplesInserted: len(samples)}

	if existingID, ok := s.byExternal[workout.ExternalID]; ok {
		existing := s.workouts[existingID]
		existing.Kind = workout.Kind
		existing.StartedAt = workout.StartedAt
		existing.EndedAt = workout.EndedAt
		existing.Indoor = workout.Indoor
		existing.UpdatedAt = now
		s.workouts[existingID] = existing
		result.WorkoutID = existingID
	} else {
		if strings.TrimSpace(workout.ID) == "" {
			workout.ID = uuid.NewString()
		}
		workout.CreatedAt = now
		workout.UpdatedAt = now
		s.workouts[workout.ID] = workout
		s.byExternal[workout.ExternalID] = workout.ID
		result.WorkoutID = workout.ID
		result.Created = true
	}

	s.samples[result.WorkoutID] = append([]domain.GeoSample(nil), samples...)
	return result, nil
}

// Get implements domain.WorkoutStore.
func (s *Store) Get(ctx context.Context, workoutID string) (*domain.Workout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workout, ok := s.workouts[workoutID]
	if !ok {
		return nil, nil
	}
	return &workout, nil
}

// List returns workouts newest first with keyset pagination.
func (s *Store) List(ctx context.Context, filter domain.ListFilter, cursor *domain.Cursor, limit int) ([]domain.Workout, *domain.Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]domain.Workout, 0, len(s.workouts))
	for _, workout := range s.workouts {
		if filter.Kind != nil && workout.Kind != *filter.Kind {
			continue
		}
		all = append(all, workout)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].StartedAt.Equal(all[j].StartedAt) {
			return all[i].StartedAt.After(all[j].StartedAt)
		}
		return all[i].ID > all[j].ID
	})

	start := 0
	if cursor != nil {
		start = len(all)
		for i, workout := range all {
			if workout.StartedAt.Before(cursor.StartedAt) ||
				(workout.StartedAt.Equal(cursor.StartedAt) && workout.ID < cursor.ID) {
				start = i
				break
			}
		}
	}

	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	page := append([]domain.Workout(nil), all[start:end]...)

	var next *domain.Cursor
	if len(page) == limit && end < len(all) {
		last := page[len(page)-1]
		next = &domain.Cursor{StartedAt: last.StartedAt, ID: last.ID}
	}
	return page, next, nil
}

// Samples implements domain.WorkoutStore, returning points in capture order.
func (s *Store) Samples(ctx context.Context, workoutID string) ([]domain.GeoSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	samples := append([]domain.GeoSample(nil), s.samples[workoutID]...)
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].CapturedAt.Before(samples[j].CapturedAt)
	})
	return samples, nil
}

// Rename implements domain.WorkoutStore.
func (s *Store) Rename(ctx context.Context, workoutID, displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	workout, ok := s.workouts[workoutID]
	if !ok {
		return domain.ErrWorkoutNotFound
	}
	workout.DisplayName = displayName
	workout.UpdatedAt = time.Now().UTC()
	s.workouts[workoutID] = workout
	return nil
}

// DeleteAll implements domain.WorkoutStore.
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := int64(len(s.workouts))
	s.workouts = make(map[string]domain.Workout)
	s.byExternal = make(map[string]string)
	s.samples = make(map[string][]domain.GeoSample)
	return removed, nil
}

// Count implements domain.WorkoutStore.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.workouts), nil
}

// LastSyncCompletedAt implements domain.WorkoutStore.
func (s *Store) LastSyncCompletedAt(ctx context.Context) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lastSync == nil {
		return nil, nil
	}
	ts := *s.lastSync
	return &ts, nil
}

// RecordSyncCompleted implements domain.WorkoutStore.
func (s *Store) RecordSyncCompleted(ctx context.Context, outcome domain.SyncOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	completed := outcome.CompletedAt
	s.lastSync = &completed
	s.lastOutcome = &outcome
	return nil
}

// LastOutcome exposes the most recent recorded outcome for assertions.
func (s *Store) LastOutcome() *domain.SyncOutcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastOutcome
}
