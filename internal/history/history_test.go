package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/vitibrasil/internal/core"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func event(n int) core.LoadEvent {
	return core.LoadEvent{
		ID:        fmt.Sprintf("ev-%d", n),
		Action:    core.ActionLoad,
		Success:   true,
		StartedAt: baseTime.Add(time.Duration(n) * time.Minute),
	}
}

func ids(events []core.LoadEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.ID
	}
	return out
}

func equalIDs(got []core.LoadEvent, want ...string) bool {
	g := ids(got)
	if len(g) != len(want) {
		return false
	}
	for i := range g {
		if g[i] != want[i] {
			return false
		}
	}
	return true
}

func TestMemoryStore_Recent(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(3)

	empty, err := m.Recent(ctx, 10)
	if err != nil || len(empty) != 0 {
		t.Fatalf("Recent() on empty store = %v, %v", empty, err)
	}

	for i := 1; i <= 2; i++ {
		m.ObserveLoad(ctx, event(i))
	}
	got, _ := m.Recent(ctx, 0)
	if !equalIDs(got, "ev-2", "ev-1") {
		t.Errorf("Recent() = %v, want [ev-2 ev-1]", ids(got))
	}

	// Wraps around and drops the oldest.
	for i := 3; i <= 5; i++ {
		m.ObserveLoad(ctx, event(i))
	}
	got, _ = m.Recent(ctx, 0)
	if !equalIDs(got, "ev-5", "ev-4", "ev-3") {
		t.Errorf("Recent() = %v, want [ev-5 ev-4 ev-3]", ids(got))
	}

	got, _ = m.Recent(ctx, 2)
	if !equalIDs(got, "ev-5", "ev-4") {
		t.Errorf("Recent(2) = %v, want [ev-5 ev-4]", ids(got))
	}
}

func TestMemoryStore_Purge(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(4)
	for i := 1; i <= 6; i++ {
		m.ObserveLoad(ctx, event(i))
	}

	// Holds ev-3..ev-6; purge everything before ev-5.
	purged, err := m.Purge(ctx, event(5).StartedAt)
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if purged != 2 {
		t.Errorf("Purge() = %d, want 2", purged)
	}
	got, _ := m.Recent(ctx, 0)
	if !equalIDs(got, "ev-6", "ev-5") {
		t.Errorf("Recent() after purge = %v, want [ev-6 ev-5]", ids(got))
	}

	// New events continue after the kept ones.
	m.ObserveLoad(ctx, event(7))
	got, _ = m.Recent(ctx, 0)
	if !equalIDs(got, "ev-7", "ev-6", "ev-5") {
		t.Errorf("Recent() = %v, want [ev-7 ev-6 ev-5]", ids(got))
	}

	if purged, _ := m.Purge(ctx, baseTime); purged != 0 {
		t.Errorf("Purge() with old cutoff = %d, want 0", purged)
	}
}

func TestMemoryStore_PurgeAll(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(2)
	m.ObserveLoad(ctx, event(1))
	m.ObserveLoad(ctx, event(2))

	purged, _ := m.Purge(ctx, baseTime.Add(time.Hour))
	if purged != 2 {
		t.Errorf("Purge() = %d, want 2", purged)
	}
	if got, _ := m.Recent(ctx, 0); len(got) != 0 {
		t.Errorf("Recent() after purging all = %v", ids(got))
	}
}

// fakeDB records Exec calls.
type fakeDB struct {
	sql  []string
	args [][]any
	tag  pgconn.CommandTag
	err  error
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql = append(f.sql, sql)
	f.args = append(f.args, args)
	return f.tag, f.err
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func TestPGStore_Insert(t *testing.T) {
	db := &fakeDB{}
	s := NewPGStore(db)

	ev := core.LoadEvent{
		ID:        "0b5c8a38-8d7c-4a4e-9d59-0d3f7a6f8f10",
		Action:    core.ActionLoad,
		Success:   false,
		StartedAt: baseTime,
		Duration:  1500 * time.Millisecond,
		Dataset:   core.ProductionDataset,
		Error:     "malformed source producao line 3",
	}
	if err := s.Insert(context.Background(), ev); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	if len(db.args) != 1 {
		t.Fatalf("Exec called %d times, want 1", len(db.args))
	}
	args := db.args[0]
	if args[0] != ev.ID || args[1] != "load" || args[3] != false {
		t.Errorf("unexpected args: %v", args)
	}
	if args[5] != int64(1500*time.Millisecond) {
		t.Errorf("duration arg = %v", args[5])
	}
	if gen := args[2].(pgtype.Text); gen.Valid {
		t.Errorf("generation_id should be NULL for a failed load, got %q", gen.String)
	}
	if ds := args[6].(pgtype.Text); !ds.Valid || ds.String != "producao" {
		t.Errorf("dataset arg = %+v", ds)
	}
	if facts := args[8].([]byte); facts != nil {
		t.Errorf("facts should be NULL, got %s", facts)
	}
}

func TestPGStore_Purge(t *testing.T) {
	db := &fakeDB{tag: pgconn.NewCommandTag("DELETE 4")}
	s := NewPGStore(db)

	n, err := s.Purge(context.Background(), baseTime)
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if n != 4 {
		t.Errorf("Purge() = %d, want 4", n)
	}
	if db.args[0][0] != baseTime {
		t.Errorf("cutoff arg = %v, want %v", db.args[0][0], baseTime)
	}
}

func TestPGStore_ObserveLoadSwallowsErrors(t *testing.T) {
	db := &fakeDB{err: errors.New("connection refused")}
	s := NewPGStore(db)

	// Must not panic or block.
	s.ObserveLoad(context.Background(), event(1))
	if len(db.sql) != 1 {
		t.Errorf("Exec called %d times, want 1", len(db.sql))
	}
}

// TestPGStore_Integration runs against a real database when
// TEST_DATABASE_URL is set.
func TestPGStore_Integration(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	s := NewPGStore(pool)
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}

	ev := core.LoadEvent{
		ID:           uuid.NewString(),
		Action:       core.ActionLoad,
		GenerationID: uuid.NewString(),
		Success:      true,
		StartedAt:    time.Now().UTC().Truncate(time.Microsecond),
		Duration:     time.Second,
		Facts:        map[core.DatasetID]int{core.ProductionDataset: 42},
	}
	if err := s.Insert(ctx, ev); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	recent, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	var found bool
	for _, got := range recent {
		if got.ID == ev.ID {
			found = true
			if got.Facts[core.ProductionDataset] != 42 || got.GenerationID != ev.GenerationID {
				t.Errorf("round trip mismatch: %+v", got)
			}
		}
	}
	if !found {
		t.Fatalf("inserted event %s not returned by Recent()", ev.ID)
	}

	if _, err := s.Purge(ctx, ev.StartedAt.Add(time.Second)); err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
}
