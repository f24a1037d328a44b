package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fenorlabs/totesys-etl/pkg/blob"
)

// Epoch is the sentinel watermark for tables seen for the first time; far
// enough back that the first extraction captures full history.
var Epoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// ErrCursorConflict means the stored cursor moved since this copy was loaded;
// the caller should reload and retry the whole cycle.
var ErrCursorConflict = errors.New("extraction cursor version conflict")

// Cursor tracks, per source table, the watermark separating already-captured
// rows from not-yet-captured ones. It is an explicit value passed through the
// cycle, versioned for optimistic concurrency against the persisted copy.
type Cursor struct {
	Entries map[string]time.Time `json:"entries"`
	Version int64                `json:"version"`
}

func NewCursor() *Cursor {
	return &Cursor{Entries: make(map[string]time.Time)}
}

// LastChecked returns the watermark for table, or the epoch sentinel when the
// table has never been seen.
func (c *Cursor) LastChecked(tableName string) time.Time {
	if ts, ok := c.Entries[tableName]; ok {
		return ts
	}
	return Epoch
}

// Advance moves the table's watermark forward. Regressions are rejected to
// preserve per-table monotonicity across cycles.
func (c *Cursor) Advance(tableName string, watermark time.Time) error {
	if watermark.Before(c.LastChecked(tableName)) {
		return fmt.Errorf("watermark for %s regresses from %s to %s",
			tableName, c.LastChecked(tableName).Format(time.RFC3339), watermark.Format(time.RFC3339))
	}
	c.Entries[tableName] = watermark.UTC()
	return nil
}

// Clone returns a deep copy; the extractor mutates the copy and the caller
// commits it only after a successful cycle.
func (c *Cursor) Clone() *Cursor {
	out := &Cursor{
		Entries: make(map[string]time.Time, len(c.Entries)),
		Version: c.Version,
	}
	for k, v := range c.Entries {
		out.Entries[k] = v
	}
	return out
}

type CursorStoreConfig struct {
	Logger *slog.Logger
	Store  blob.Store
}

func (cfg *CursorStoreConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	return nil
}

// CursorStore persists the cursor in the object store as JSON.
type CursorStore struct {
	log   *slog.Logger
	store blob.Store
}

func NewCursorStore(cfg CursorStoreConfig) (*CursorStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &CursorStore{log: cfg.Logger, store: cfg.Store}, nil
}

// Load reads the persisted cursor. A missing object yields a fresh cursor so
// the first cycle backfills everything from the epoch.
func (s *CursorStore) Load(ctx context.Context) (*Cursor, error) {
	body, err := s.store.Get(ctx, blob.CursorKey())
	if errors.Is(err, blob.ErrNotFound) {
		s.log.Info("extract: no persisted cursor, starting from epoch")
		return NewCursor(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cursor: %w", err)
	}

	cursor := NewCursor()
	if err := json.Unmarshal(body, cursor); err != nil {
		return nil, fmt.Errorf("failed to decode cursor: %w", err)
	}
	return cursor, nil
}

// Save persists the cursor, failing with ErrCursorConflict when the stored
// version no longer matches the version this copy was loaded at. On success
// the cursor's version is bumped in place.
func (s *CursorStore) Save(ctx context.Context, cursor *Cursor) error {
	stored, err := s.Load(ctx)
	if err != nil {
		return err
	}
	if stored.Version != cursor.Version {
		return fmt.Errorf("%w: stored version %d, loaded version %d",
			ErrCursorConflict, stored.Version, cursor.Version)
	}

	next := cursor.Clone()
	next.Version = cursor.Version + 1
	body, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode cursor: %w", err)
	}
	if err := s.store.Put(ctx, blob.CursorKey(), body); err != nil {
		return fmt.Errorf("failed to persist cursor: %w", err)
	}

	cursor.Version = next.Version
	s.log.Debug("extract: persisted cursor", "version", cursor.Version, "tables", len(cursor.Entries))
	return nil
}
