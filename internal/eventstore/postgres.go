// Package eventstore implements the Postgres-backed pkg/events.EventStore
// every aggregate Runtime is wired against: it appends events under
// optimistic concurrency on (aggregate_type, aggregate_id, sequence) and
// replays an aggregate's full history in sequence order.
package eventstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmrolfs/weatherzone/pkg/events"
	weathererrors "github.com/dmrolfs/weatherzone/pkg/errors"
	"github.com/lib/pq"
)

// pqUniqueViolation is the Postgres error code for a unique_violation,
// raised when two concurrent Appends race on the same next sequence.
const pqUniqueViolation = "23505"

// Store is a Postgres-backed events.EventStore.
type Store struct {
	db *sql.DB
}

// New wraps db as a Store. The caller owns the connection pool's lifecycle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the events table and its optimistic-concurrency
// unique constraint if they do not already exist. Called once at bootstrap.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS events (
	id             BIGSERIAL PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	sequence       BIGINT NOT NULL,
	event_type     TEXT NOT NULL,
	event_version  TEXT NOT NULL,
	payload        JSONB NOT NULL,
	metadata       JSONB,
	recorded_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (aggregate_type, aggregate_id, sequence)
)`)
	if err != nil {
		return fmt.Errorf("eventstore: ensure schema: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
CREATE INDEX IF NOT EXISTS events_aggregate_idx ON events (aggregate_type, aggregate_id, sequence)`)
	if err != nil {
		return fmt.Errorf("eventstore: ensure index: %w", err)
	}
	return nil
}

// Append implements events.EventStore: it inserts newEvents starting at
// expectedSeq+1 in a single transaction. A unique-constraint violation on
// (aggregate_type, aggregate_id, sequence) means a concurrent Append won the
// race for this aggregate id; it surfaces as ErrAggregateConflict so the
// Runtime retries the load-handle-append cycle.
func (s *Store) Append(ctx context.Context, aggregateType, aggregateID string, expectedSeq int64, newEvents []events.StoredEvent, metadata map[string]string) error {
	if len(newEvents) == 0 {
		return nil
	}

	metaJSON, err := marshalMetadata(metadata)
	if err != nil {
		return fmt.Errorf("%w: %v", weathererrors.ErrPersistence, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", weathererrors.ErrPersistence, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO events (aggregate_type, aggregate_id, sequence, event_type, event_version, payload, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return fmt.Errorf("%w: %v", weathererrors.ErrPersistence, err)
	}
	defer stmt.Close()

	for i, e := range newEvents {
		seq := expectedSeq + int64(i) + 1
		_, err = stmt.ExecContext(ctx, aggregateType, aggregateID, seq, e.EventType, e.EventVersion, e.Payload, metaJSON)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
				return weathererrors.ErrAggregateConflict
			}
			return fmt.Errorf("%w: %v", weathererrors.ErrPersistence, err)
		}
	}

	if err := tx.Commit(); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return weathererrors.ErrAggregateConflict
		}
		return fmt.Errorf("%w: %v", weathererrors.ErrPersistence, err)
	}
	return nil
}

// Load implements events.EventStore: it replays every persisted event for
// (aggregateType, aggregateID) in ascending sequence order.
func (s *Store) Load(ctx context.Context, aggregateType, aggregateID string) ([]events.PersistedEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT aggregate_type, aggregate_id, sequence, event_type, event_version, payload, metadata, recorded_at
FROM events
WHERE aggregate_type = $1 AND aggregate_id = $2
ORDER BY sequence ASC`, aggregateType, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", weathererrors.ErrPersistence, err)
	}
	defer rows.Close()

	var out []events.PersistedEvent
	for rows.Next() {
		var p events.PersistedEvent
		var metaJSON []byte
		if err := rows.Scan(&p.AggregateType, &p.AggregateID, &p.Sequence, &p.EventType, &p.EventVersion, &p.Payload, &metaJSON, &p.RecordedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", weathererrors.ErrPersistence, err)
		}
		p.Metadata, err = unmarshalMetadata(metaJSON)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", weathererrors.ErrPersistence, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", weathererrors.ErrPersistence, err)
	}
	return out, nil
}
