// Package postgres provides the pgx-backed route store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/plore/internal/domain"
	"example.com/plore/internal/events"
	"example.com/plore/internal/observability"
)

const workoutColumns = `workout_id, external_id, kind, started_at, ended_at, indoor, display_name, created_at, updated_at`

// Repository provides Postgres-backed persistence for workouts, geo samples,
// and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindByExternalID looks up a workout by its health-source identifier.
func (r *Repository) FindByExternalID(ctx context.Context, externalID string) (*domain.Workout, error) {
	query := fmt.Sprintf(`SELECT %s FROM workouts WHERE external_id=$1`, workoutColumns)

	row := r.pool.QueryRow(ctx, query, externalID)
	workout, err := scanWorkout(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return workout, nil
}

// Upsert inserts or refreshes the workout keyed by external_id and replaces
// its samples inside a single transaction. The display name of an existing
// record is never overwritten, so user edits survive re-sync. An outbox row
// is written in the same transaction, making the event exactly as durable as
// the data it describes.
func (r *Repository) Upsert(ctx context.Context, workout domain.Workout, samples []domain.GeoSample) (domain.UpsertResult, error) {
	var result domain.UpsertResult

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return result, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const upsertWorkout = `INSERT INTO workouts (workout_id, external_id, kind, started_at, ended_at, indoor, display_name, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
        ON CONFLICT (external_id) DO UPDATE
            SET kind = EXCLUDED.kind,
                started_at = EXCLUDED.started_at,
                ended_at = EXCLUDED.ended_at,
                indoor = EXCLUDED.indoor,
                updated_at = EXCLUDED.updated_at
        RETURNING workout_id, display_name, (created_at = updated_at) AS inserted`

	now := time.Now().UTC()
	var displayName string
	err = tx.QueryRow(ctx, upsertWorkout,
		workout.ID,
		workout.ExternalID,
		workout.Kind,
		workout.StartedAt,
		workout.EndedAt,
		workout.Indoor,
		workout.DisplayName,
		now,
	).Scan(&result.WorkoutID, &displayName, &result.Created)
	if err != nil {
		return result, err
	}

	// Delete-and-replace keeps repeated passes over overlapping windows from
	// accumulating duplicate points.
	if _, err = tx.Exec(ctx, `DELETE FROM geo_samples WHERE workout_id=$1`, result.WorkoutID); err != nil {
		return result, err
	}

	if len(samples) > 0 {
		rows := make([][]interface{}, 0, len(samples))
		for _, sample := range samples {
			rows = append(rows, []interface{}{result.WorkoutID, sample.Latitude, sample.Longitude, sample.CapturedAt})
		}
		var copied int64
		copied, err = tx.CopyFrom(ctx,
			pgx.Identifier{"geo_samples"},
			[]string{"workout_id", "latitude", "longitude", "captured_at"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return result, err
		}
		result.SamplesInserted = int(copied)
	}

	if err = r.insertOutbox(ctx, tx, "workout.synced", result.WorkoutID, workout.ExternalID, events.WorkoutSynced{
		WorkoutID:   result.WorkoutID,
		ExternalID:  workout.ExternalID,
		Kind:        string(workout.Kind),
		StartedAt:   workout.StartedAt,
		EndedAt:     workout.EndedAt,
		Indoor:      workout.Indoor,
		DisplayName: displayName,
		SampleCount: result.SamplesInserted,
		Created:     result.Created,
	}); err != nil {
		return result, err
	}

	err = tx.Commit(ctx)
	if err != nil {
		return result, err
	}
	observability.RecordWorkoutPersisted(now)
	return result, nil
}

// Get retrieves a workout by ID.
func (r *Repository) Get(ctx context.Context, workoutID string) (*domain.Workout, error) {
	query := fmt.Sprintf(`SELECT %s FROM workouts WHERE workout_id=$1`, workoutColumns)

	row := r.pool.QueryRow(ctx, query, workoutID)
	workout, err := scanWorkout(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return workout, nil
}

// List returns workouts ordered newest first with keyset pagination.
func (r *Repository) List(ctx context.Context, filter domain.ListFilter, cursor *domain.Cursor, limit int) ([]domain.Workout, *domain.Cursor, error) {
	query := fmt.Sprintf(`SELECT %s FROM workouts`, workoutColumns)
	args := []interface{}{}
	where := []string{}

	if filter.Kind != nil {
		args = append(args, *filter.Kind)
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	if cursor != nil {
		args = append(args, cursor.StartedAt, cursor.ID)
		where = append(where, fmt.Sprintf("(started_at, workout_id) < ($%d, $%d)", len(args)-1, len(args)))
	}
	for i, clause := range where {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY started_at DESC, workout_id DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.Workout, 0, limit)
	for rows.Next() {
		workout, err := scanWorkout(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, *workout)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var nextCursor *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{StartedAt: last.StartedAt, ID: last.ID}
	}
	return results, nextCursor, nil
}

// Samples returns a workout's geo samples in capture order.
func (r *Repository) Samples(ctx context.Context, workoutID string) ([]domain.GeoSample, error) {
	const query = `SELECT latitude, longitude, captured_at FROM geo_samples
        WHERE workout_id=$1 ORDER BY captured_at ASC, sample_id ASC`

	rows, err := r.pool.Query(ctx, query, workoutID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	samples := make([]domain.GeoSample, 0)
	for rows.Next() {
		var sample domain.GeoSample
		if err := rows.Scan(&sample.Latitude, &sample.Longitude, &sample.CapturedAt); err != nil {
			return nil, err
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

// Rename applies a user edit to the display name.
func (r *Repository) Rename(ctx context.Context, workoutID, displayName string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE workouts SET display_name=$1, updated_at=NOW() WHERE workout_id=$2`,
		displayName, workoutID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWorkoutNotFound
	}
	return nil
}

// DeleteAll removes every workout in one transaction; geo samples cascade.
// Used by the full rebuild, which must see an empty store before any fetch.
func (r *Repository) DeleteAll(ctx context.Context) (int64, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	var tag pgconn.CommandTag
	tag, err = tx.Exec(ctx, `DELETE FROM workouts`)
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Count returns the number of workout records.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM workouts`).Scan(&count)
	return count, err
}

// LastSyncCompletedAt returns the persisted completion time of the most
// recent pass, or nil if no pass has completed yet.
func (r *Repository) LastSyncCompletedAt(ctx context.Context) (*time.Time, error) {
	var completed *time.Time
	err := r.pool.QueryRow(ctx, `SELECT last_completed_at FROM sync_state WHERE id=1`).Scan(&completed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return completed, nil
}

// RecordSyncCompleted persists the pass outcome and emits sync.completed
// through the outbox in the same transaction.
func (r *Repository) RecordSyncCompleted(ctx context.Context, outcome domain.SyncOutcome) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const stmt = `INSERT INTO sync_state (id, last_completed_at, workouts_processed, workouts_failed, samples_inserted, started_at)
        VALUES (1,$1,$2,$3,$4,$5)
        ON CONFLICT (id) DO UPDATE
            SET last_completed_at = EXCLUDED.last_completed_at,
                workouts_processed = EXCLUDED.workouts_processed,
                workouts_failed = EXCLUDED.workouts_failed,
                samples_inserted = EXCLUDED.samples_inserted,
                started_at = EXCLUDED.started_at`

	if _, err = tx.Exec(ctx, stmt,
		outcome.CompletedAt,
		outcome.WorkoutsProcessed,
		outcome.WorkoutsFailed,
		outcome.SamplesInserted,
		outcome.StartedAt,
	); err != nil {
		return err
	}

	if err = r.insertOutbox(ctx, tx, "sync.completed", "sync", "sync", events.SyncCompleted{
		WorkoutsProcessed: outcome.WorkoutsProcessed,
		WorkoutsFailed:    outcome.WorkoutsFailed,
		SamplesInserted:   outcome.SamplesInserted,
		StartedAt:         outcome.StartedAt,
		CompletedAt:       outcome.CompletedAt,
		FullRebuild:       outcome.FullRebuild,
	}); err != nil {
		return err
	}

	err = tx.Commit(ctx)
	if err != nil {
		return err
	}
	observability.RecordSyncCompleted(outcome.CompletedAt)
	return nil
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, eventType, aggregateID, partitionKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	dedupeKey := fmt.Sprintf("%s:%s:%d", aggregateID, eventType, time.Now().UTC().UnixNano())

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		meta.AggregateType,
		aggregateID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		partitionKey,
		body,
		dedupeKey,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWorkout(row rowScanner) (*domain.Workout, error) {
	var workout domain.Workout
	if err := row.Scan(
		&workout.ID,
		&workout.ExternalID,
		&workout.Kind,
		&workout.StartedAt,
		&workout.EndedAt,
		&workout.Indoor,
		&workout.DisplayName,
		&workout.CreatedAt,
		&workout.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &workout, nil
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	AggregateType string
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	"workout.synced": {
		AggregateType: "workout",
		Topic:         "route_events",
		SchemaSubject: "route_events-value",
	},
	"sync.completed": {
		AggregateType: "sync_pass",
		Topic:         "sync_events",
		SchemaSubject: "sync_events-value",
	},
}
