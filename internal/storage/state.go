package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/jackc/pgx/v5"
)

// SchemaVersions pins the stored shape of each slot. A bump invalidates
// persisted state for that slot on next load.
var SchemaVersions = map[string]int{
	SlotTopic:       1,
	SlotSelectedIDs: 1,
	SlotPaperCache:  1,
	SlotSections:    1,
}

// Well-known persistence slots.
const (
	SlotTopic       = "research_topic"
	SlotSelectedIDs = "selected_paper_ids"
	SlotPaperCache  = "paper_cache"
	SlotSections    = "generated_sections"
)

// StateStore persists UI state between sessions. Load reports ok=false when
// the slot is absent or its stored schema version no longer matches, in
// which case the stale entry is discarded and the caller falls back to its
// default value.
type StateStore interface {
	Load(ctx context.Context, slot string, version int, out any) (ok bool, err error)
	Save(ctx context.Context, slot string, version int, value any) error
	Delete(ctx context.Context, slot string) error
}

type StateRepo struct {
	db *DB
}

func NewStateRepo(db *DB) *StateRepo {
	return &StateRepo{db: db}
}

func (r *StateRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS ui_state (
  slot TEXT PRIMARY KEY,
  version INT NOT NULL,
  value JSONB NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`)
	if err != nil {
		return fmt.Errorf("ensure ui_state schema: %w", err)
	}
	return nil
}

func (r *StateRepo) Load(ctx context.Context, slot string, version int, out any) (bool, error) {
	var storedVersion int
	var raw []byte
	err := r.db.Pool.QueryRow(ctx,
		`SELECT version, value FROM ui_state WHERE slot=$1`, slot,
	).Scan(&storedVersion, &raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("load state %s: %w", slot, err)
	}
	if storedVersion != version {
		log.Printf("state slot %s: stored version %d != %d, discarding", slot, storedVersion, version)
		if err := r.Delete(ctx, slot); err != nil {
			return false, err
		}
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		log.Printf("state slot %s: undecodable payload, discarding: %v", slot, err)
		if err := r.Delete(ctx, slot); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (r *StateRepo) Save(ctx context.Context, slot string, version int, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", slot, err)
	}
	_, err = r.db.Pool.Exec(ctx, `
INSERT INTO ui_state (slot, version, value)
VALUES ($1, $2, $3)
ON CONFLICT (slot)
DO UPDATE SET version = EXCLUDED.version, value = EXCLUDED.value, updated_at = NOW()`,
		slot, version, raw,
	)
	if err != nil {
		return fmt.Errorf("save state %s: %w", slot, err)
	}
	return nil
}

func (r *StateRepo) Delete(ctx context.Context, slot string) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM ui_state WHERE slot=$1`, slot); err != nil {
		return fmt.Errorf("delete state %s: %w", slot, err)
	}
	return nil
}

// MemoryStateStore keeps state in process memory, for running without
// Postgres and for tests.
type MemoryStateStore struct {
	mu    sync.Mutex
	slots map[string]memoryEntry
}

type memoryEntry struct {
	version int
	raw     []byte
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{slots: make(map[string]memoryEntry)}
}

func (m *MemoryStateStore) Load(ctx context.Context, slot string, version int, out any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.slots[slot]
	if !ok {
		return false, nil
	}
	if entry.version != version {
		delete(m.slots, slot)
		return false, nil
	}
	if err := json.Unmarshal(entry.raw, out); err != nil {
		delete(m.slots, slot)
		return false, nil
	}
	return true, nil
}

func (m *MemoryStateStore) Save(ctx context.Context, slot string, version int, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", slot, err)
	}
	m.mu.Lock()
	m.slots[slot] = memoryEntry{version: version, raw: raw}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStateStore) Delete(ctx context.Context, slot string) error {
	m.mu.Lock()
	delete(m.slots, slot)
	m.mu.Unlock()
	return nil
}
