// Package sync reconciles the local route store with the external health
// data source.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	stdsync "sync"
	"time"

	"github.com/google/uuid"

	"example.com/plore/internal/domain"
)

// State names the phase of the current sync pass.
type State string

const (
	StateIdle       State = "idle"
	StateFetching   State = "fetching"
	StateUpserting  State = "upserting"
	StateCommitting State = "committing"
	StateFailed     State = "failed"
)

// Status is a point-in-time snapshot of the synchronizer for progress
// rendering. Loaded/Total are meaningful while Upserting.
type Status struct {
	State           State
	Loaded          int
	Total           int
	LastCompletedAt *time.Time
	LastOutcome     *domain.SyncOutcome
}

// ProgressFunc receives incremental progress during a pass. It is invoked
// from the sync goroutine; callers needing a particular thread hop there
// themselves.
type ProgressFunc func(loaded, total int)

// Option configures optional behaviour for the Synchronizer.
type Option func(*Synchronizer)

// WithLogger overrides the logger used to report per-workout failures.
func WithLogger(logger *log.Logger) Option {
	return func(s *Synchronizer) {
		s.logger = logger
	}
}

// Synchronizer brings the route store into agreement with the health source
// for a time window. Only one pass may be in flight at a time: concurrent
// passes could race find-or-create for the same external identifier and
// create duplicate records, so a second call is rejected with
// domain.ErrSyncInProgress.
type Synchronizer struct {
	store  domain.WorkoutStore
	source domain.HealthSource
	logger *log.Logger

	mu      stdsync.Mutex
	running bool
	status  Status
}

// New constructs a Synchronizer. The store and source are injected so tests
// can substitute in-memory fakes.
func New(store domain.WorkoutStore, source domain.HealthSource, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		store:  store,
		source: source,
		logger: log.New(log.Writer(), "[sync] ", log.LstdFlags|log.Lshortfile),
		status: Status{State: StateIdle},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status returns a snapshot of the current pass.
func (s *Synchronizer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Sync runs one pass over the given window. A zero window means all time.
// Source failures abort the pass and are returned; per-workout store
// failures are logged, counted, and skipped.
func (s *Synchronizer) Sync(ctx context.Context, window domain.DateRange, progress ProgressFunc) (domain.SyncOutcome, error) {
	if err := s.begin(); err != nil {
		return domain.SyncOutcome{}, err
	}
	defer s.end()

	return s.run(ctx, window, false, progress)
}

// Start begins a pass and runs it on its own goroutine, bounded by ctx. The
// single-flight slot is claimed before Start returns, so a nil error means
// the pass is genuinely running and domain.ErrSyncInProgress means another
// pass already holds the slot.
func (s *Synchronizer) Start(ctx context.Context, window domain.DateRange, progress ProgressFunc) error {
	if err := s.begin(); err != nil {
		return err
	}

	go func() {
		defer s.end()
		if _, err := s.run(ctx, window, false, progress); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Printf("sync pass failed: %v", err)
		}
	}()
	return nil
}

// StartRebuild is Start for a clear-and-resync pass.
func (s *Synchronizer) StartRebuild(ctx context.Context, progress ProgressFunc) error {
	if err := s.begin(); err != nil {
		return err
	}

	go func() {
		defer s.end()
		if _, err := s.rebuild(ctx, progress); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Printf("rebuild pass failed: %v", err)
		}
	}()
	return nil
}

// ClearAndResync deletes every workout and sample, then performs a
// full-history pass. The delete must fully complete before any fetch so a
// rebuild never sees transient duplicate-key states; a delete failure is
// terminal and the fetch phase never runs.
func (s *Synchronizer) ClearAndResync(ctx context.Context, progress ProgressFunc) (domain.SyncOutcome, error) {
	if err := s.begin(); err != nil {
		return domain.SyncOutcome{}, err
	}
	defer s.end()

	return s.rebuild(ctx, progress)
}

func (s *Synchronizer) rebuild(ctx context.Context, progress ProgressFunc) (domain.SyncOutcome, error) {
	deleted, err := s.store.DeleteAll(ctx)
	if err != nil {
		s.setState(StateFailed, 0, 0)
		recordPass("clear_error")
		return domain.SyncOutcome{}, fmt.Errorf("%w: %v", domain.ErrClearFailed, err)
	}
	s.logger.Printf("store cleared (%d workouts removed), starting full resync", deleted)

	return s.run(ctx, domain.AllTime(), true, progress)
}

func (s *Synchronizer) run(ctx context.Context, window domain.DateRange, fullRebuild bool, progress ProgressFunc) (domain.SyncOutcome, error) {
	started := time.Now().UTC()
	outcome := domain.SyncOutcome{StartedAt: started, FullRebuild: fullRebuild}
	defer func() {
		passDuration.Observe(time.Since(started).Seconds())
	}()

	s.setState(StateFetching, 0, 0)
	sessions, err := s.source.FetchWorkouts(ctx, domain.TrackedKinds(), window)
	if err != nil {
		s.setState(StateFailed, 0, 0)
		recordPass("source_error")
		return outcome, err
	}

	total := len(sessions)
	s.setState(StateUpserting, 0, total)

	for i, session := range sessions {
		// Teardown mid-pass: the current per-workout commit has already
		// finished by the time we get here, so stopping between workouts
		// never leaves partial writes.
		if ctx.Err() != nil {
			recordPass("canceled")
			return outcome, ctx.Err()
		}

		// The source is asked for tracked kinds only; re-check at the edge
		// so a misbehaving gateway can never create untracked records.
		if !session.Kind.Tracked() {
			continue
		}

		samples, err := s.source.FetchSamples(ctx, session)
		if err != nil {
			s.setState(StateFailed, i, total)
			recordPass("source_error")
			return outcome, err
		}

		inserted, err := s.upsertOne(ctx, session, samples)
		if err != nil {
			s.logger.Printf("workout %s skipped: %v", session.ExternalID, err)
			outcome.WorkoutsFailed++
			workoutsFailed.Inc()
		} else {
			outcome.WorkoutsProcessed++
			outcome.SamplesInserted += inserted
			workoutsUpserted.Inc()
			samplesInserted.Add(float64(inserted))
		}

		s.setState(StateUpserting, i+1, total)
		if progress != nil {
			progress(i+1, total)
		}
	}

	s.setState(StateCommitting, total, total)
	outcome.CompletedAt = time.Now().UTC()

	// The pass itself succeeded; failing to persist the watermark is logged
	// but does not fail the sync.
	if err := s.store.RecordSyncCompleted(context.WithoutCancel(ctx), outcome); err != nil {
		s.logger.Printf("failed to record sync completion: %v", err)
	}

	recordPass("completed")
	s.finish(outcome)
	return outcome, nil
}

// upsertOne performs the find-or-create upsert for one session. The commit
// runs detached from cancellation so teardown never interrupts a
// half-written workout.
func (s *Synchronizer) upsertOne(ctx context.Context, session domain.WorkoutSession, samples []domain.GeoSample) (int, error) {
	existing, err := s.store.FindByExternalID(ctx, session.ExternalID)
	if err != nil {
		return 0, err
	}

	workout := domain.Workout{
		ExternalID: session.ExternalID,
		Kind:       session.Kind,
		StartedAt:  session.StartedAt,
		EndedAt:    session.EndedAt,
		Indoor:     session.Indoor,
	}
	if existing != nil {
		workout.ID = existing.ID
		workout.DisplayName = existing.DisplayName
	} else {
		workout.ID = uuid.NewString()
		workout.DisplayName = domain.DefaultDisplayName(session.Kind, session.StartedAt)
	}

	result, err := s.store.Upsert(context.WithoutCancel(ctx), workout, samples)
	if err != nil {
		return 0, err
	}
	return result.SamplesInserted, nil
}

func (s *Synchronizer) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return domain.ErrSyncInProgress
	}
	s.running = true
	return nil
}

func (s *Synchronizer) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.status.State = StateIdle
	s.status.Loaded = 0
	s.status.Total = 0
}

func (s *Synchronizer) setState(state State, loaded, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.State = state
	s.status.Loaded = loaded
	s.status.Total = total
}

func (s *Synchronizer) finish(outcome domain.SyncOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	completed := outcome.CompletedAt
	s.status.LastCompletedAt = &completed
	s.status.LastOutcome = &outcome
}
