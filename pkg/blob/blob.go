// Package blob is the snapshot store boundary: a durable object store keyed
// by (table, batch id) holding raw snapshots and transformed artifacts.
package blob

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get for keys that have never been written.
var ErrNotFound = errors.New("object not found")

// Store is the object-store surface the pipeline depends on.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, body []byte) error
}

// RawKey addresses one table's raw jsonl snapshot for a batch.
func RawKey(tableName, batchID string) string {
	return fmt.Sprintf("data/%s/%s/%s.jsonl", tableName, batchID, tableName)
}

// ArtifactKey addresses one target table's parquet artifact for a batch.
func ArtifactKey(targetTable, batchID string) string {
	return fmt.Sprintf("data/%s/%s/%s.parquet", targetTable, batchID, targetTable)
}

// CursorKey addresses the persisted extraction cursor.
func CursorKey() string {
	return "state/extraction_cursor.json"
}
