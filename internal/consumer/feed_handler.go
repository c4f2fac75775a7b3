package consumer

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// FeedHandler writes consumed route events into Postgres. The route_event_log
// table is the share-feed backing store: presentation layers read it to show
// "new route synced" entries without touching the workout tables.
type FeedHandler struct {
	pool *pgxpool.Pool
}

// NewFeedHandler constructs a handler backed by the provided pool.
func NewFeedHandler(pool *pgxpool.Pool) *FeedHandler {
	return &FeedHandler{pool: pool}
}

// Handle stores the event payload in the route_event_log table.
func (h *FeedHandler) Handle(ctx context.Context, msg Message) error {
	conn, err := h.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	_, err = conn.Exec(ctx,
		`INSERT INTO route_event_log (event_type, schema_id, schema_subject, topic, partition, record_offset, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		msg.EventType,
		msg.SchemaID,
		msg.SchemaSubject,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		msg.Payload,
		msg.Timestamp,
	)
	return err
}
