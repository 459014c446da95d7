package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/vitibrasil/internal/core"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS load_history (
	id            UUID PRIMARY KEY,
	action        TEXT NOT NULL,
	generation_id TEXT,
	success       BOOLEAN NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL,
	duration_ns   BIGINT NOT NULL,
	dataset       TEXT,
	error         TEXT,
	facts         JSONB
);
CREATE INDEX IF NOT EXISTS load_history_started_at_idx ON load_history (started_at DESC);
`

const insertSQL = `
INSERT INTO load_history (id, action, generation_id, success, started_at, duration_ns, dataset, error, facts)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

const recentSQL = `
SELECT id::text, action, generation_id, success, started_at, duration_ns, dataset, error, facts
FROM load_history
ORDER BY started_at DESC
LIMIT $1`

const purgeSQL = `DELETE FROM load_history WHERE started_at < $1`

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var _ DB = (*pgxpool.Pool)(nil)

// PGStore persists load history in PostgreSQL.
type PGStore struct {
	db DB
}

// NewPGStore returns a store on db. Call EnsureSchema once before use.
func NewPGStore(db DB) *PGStore {
	return &PGStore{db: db}
}

// EnsureSchema creates the load_history table if it does not exist.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create load_history: %w", err)
	}
	return nil
}

// Insert writes one event.
func (s *PGStore) Insert(ctx context.Context, ev core.LoadEvent) error {
	var facts []byte
	if len(ev.Facts) > 0 {
		var err error
		if facts, err = json.Marshal(ev.Facts); err != nil {
			return fmt.Errorf("encode facts: %w", err)
		}
	}

	_, err := s.db.Exec(ctx, insertSQL,
		ev.ID,
		string(ev.Action),
		nullText(ev.GenerationID),
		ev.Success,
		ev.StartedAt,
		int64(ev.Duration),
		nullText(string(ev.Dataset)),
		nullText(ev.Error),
		facts,
	)
	if err != nil {
		return fmt.Errorf("insert load history: %w", err)
	}
	return nil
}

// ObserveLoad implements core.LoadObserver. Write failures are logged; a
// history outage never fails a load.
func (s *PGStore) ObserveLoad(ctx context.Context, ev core.LoadEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.Insert(ctx, ev); err != nil {
		slog.Error("failed to record load history",
			"event_id", ev.ID,
			"action", ev.Action,
			"error", err,
		)
	}
}

// Recent returns up to limit events, newest first.
func (s *PGStore) Recent(ctx context.Context, limit int) ([]core.LoadEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, recentSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("query load history: %w", err)
	}
	defer rows.Close()

	events := make([]core.LoadEvent, 0, limit)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read load history: %w", err)
	}
	return events, nil
}

// Purge deletes events that started before the cutoff.
func (s *PGStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, purgeSQL, before)
	if err != nil {
		return 0, fmt.Errorf("purge load history: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanEvent(rows pgx.Rows) (core.LoadEvent, error) {
	var (
		id           string
		action       string
		generationID pgtype.Text
		success      bool
		startedAt    pgtype.Timestamptz
		durationNs   int64
		dataset      pgtype.Text
		errText      pgtype.Text
		facts        []byte
	)
	if err := rows.Scan(&id, &action, &generationID, &success, &startedAt, &durationNs, &dataset, &errText, &facts); err != nil {
		return core.LoadEvent{}, fmt.Errorf("scan load history: %w", err)
	}

	ev := core.LoadEvent{
		ID:           id,
		Action:       core.LoadAction(action),
		GenerationID: generationID.String,
		Success:      success,
		StartedAt:    startedAt.Time,
		Duration:     time.Duration(durationNs),
		Dataset:      core.DatasetID(dataset.String),
		Error:        errText.String,
	}
	if len(facts) > 0 {
		if err := json.Unmarshal(facts, &ev.Facts); err != nil {
			return core.LoadEvent{}, fmt.Errorf("decode facts: %w", err)
		}
	}
	return ev, nil
}

func nullText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}
