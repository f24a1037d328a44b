// Package artifact is the columnar codec boundary: conformed dimension and
// fact tables are persisted as parquet objects in the snapshot store.
package artifact

import (
	"bytes"
	"context"
	"fmt"

	"github.com/parquet-go/parquet-go"

	"github.com/fenorlabs/totesys-etl/pkg/blob"
)

// Encode serializes rows to parquet. Encoding is deterministic for identical
// input, which is what makes transform re-runs byte-comparable.
func Encode[T any](rows []T) ([]byte, error) {
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[T](&buf)
	if len(rows) > 0 {
		if _, err := w.Write(rows); err != nil {
			return nil, fmt.Errorf("failed to write parquet rows: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a parquet object back into typed rows.
func Decode[T any](data []byte) ([]T, error) {
	rows, err := parquet.Read[T](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet rows: %w", err)
	}
	return rows, nil
}

// Put encodes rows and writes them under the transformed-artifact key for the
// target table and batch.
func Put[T any](ctx context.Context, store blob.Store, targetTable, batchID string, rows []T) (string, error) {
	body, err := Encode(rows)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s artifact: %w", targetTable, err)
	}
	key := blob.ArtifactKey(targetTable, batchID)
	if err := store.Put(ctx, key, body); err != nil {
		return "", err
	}
	return key, nil
}

// Get reads and decodes the artifact for the target table and batch.
func Get[T any](ctx context.Context, store blob.Store, targetTable, batchID string) ([]T, error) {
	body, err := store.Get(ctx, blob.ArtifactKey(targetTable, batchID))
	if err != nil {
		return nil, err
	}
	rows, err := Decode[T](body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s artifact: %w", targetTable, err)
	}
	return rows, nil
}
