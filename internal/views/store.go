package views

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	weathererrors "github.com/dmrolfs/weatherzone/pkg/errors"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store is the Postgres-backed ViewRepository port: Load/Save operate on a
// single `views` table keyed by (view_type, view_id), carrying an opaque
// JSON payload and a version column used for optimistic concurrency.
type Store struct {
	db *sql.DB
}

// NewStore wraps db as a Store. The caller owns the connection pool's
// lifecycle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the views table if it does not already exist. Called
// once at bootstrap; safe to call repeatedly.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS views (
	view_type  TEXT NOT NULL,
	view_id    TEXT NOT NULL,
	version    BIGINT NOT NULL DEFAULT 0,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (view_type, view_id)
)`)
	if err != nil {
		return fmt.Errorf("views: ensure schema: %w", err)
	}
	return nil
}

// Load fetches the raw payload and current version for (viewType, viewID).
// Returns weathererrors.ErrNotFound if no row exists.
func (s *Store) Load(ctx context.Context, viewType, viewID string) ([]byte, int64, error) {
	var payload []byte
	var version int64
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, version FROM views WHERE view_type = $1 AND view_id = $2`,
		viewType, viewID,
	).Scan(&payload, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, weathererrors.ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", weathererrors.ErrPersistence, err)
	}
	return payload, version, nil
}

// Save upserts (viewType, viewID) with payload under optimistic concurrency:
// expectedVersion must match the row's current version (0 for a row that
// does not exist yet), else weathererrors.ErrAggregateConflict is returned.
func (s *Store) Save(ctx context.Context, viewType, viewID string, expectedVersion int64, payload []byte) error {
	var result sql.Result
	var err error
	if expectedVersion == 0 {
		result, err = s.db.ExecContext(ctx, `
INSERT INTO views (view_type, view_id, version, payload, updated_at)
VALUES ($1, $2, 1, $3, now())
ON CONFLICT (view_type, view_id) DO NOTHING`,
			viewType, viewID, payload)
	} else {
		result, err = s.db.ExecContext(ctx, `
UPDATE views SET version = version + 1, payload = $3, updated_at = now()
WHERE view_type = $1 AND view_id = $2 AND version = $4`,
			viewType, viewID, payload, expectedVersion)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", weathererrors.ErrPersistence, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", weathererrors.ErrPersistence, err)
	}
	if rows == 0 {
		return weathererrors.ErrAggregateConflict
	}
	return nil
}

// LoadJSON loads and unmarshals the view at (viewType, viewID) into out,
// returning its current version.
func LoadJSON(ctx context.Context, store *Store, viewType, viewID string, out interface{}) (int64, error) {
	payload, version, err := store.Load(ctx, viewType, viewID)
	if err != nil {
		return 0, err
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return 0, fmt.Errorf("%w: %v", weathererrors.ErrPersistence, err)
	}
	return version, nil
}

// SaveJSON marshals in and saves it to (viewType, viewID) under
// expectedVersion.
func SaveJSON(ctx context.Context, store *Store, viewType, viewID string, expectedVersion int64, in interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: %v", weathererrors.ErrPersistence, err)
	}
	return store.Save(ctx, viewType, viewID, expectedVersion, payload)
}
