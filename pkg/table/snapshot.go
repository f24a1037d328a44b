// Package table holds the raw tabular snapshot model shared by the
// extraction and transform stages, plus its jsonl wire codec.
package table

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Row maps column name to a scalar value. After decoding, values are one of
// string, json.Number, bool or nil.
type Row map[string]any

// Snapshot is one table's changeset captured in one extraction cycle.
// Immutable once written; the next cycle supersedes it under a new batch id.
type Snapshot struct {
	TableName string
	BatchID   string
	Columns   []string
	Rows      []Row
}

// timestampLayout matches the ingestion format of the raw snapshots: ISO-8601
// without a zone suffix, millisecond precision. Date values are encoded the
// same way at midnight.
const timestampLayout = "2006-01-02T15:04:05.000"

// New builds a snapshot from positional query output.
func New(tableName, batchID string, columns []string, values [][]any) (*Snapshot, error) {
	rows := make([]Row, 0, len(values))
	for i, vals := range values {
		if len(vals) != len(columns) {
			return nil, fmt.Errorf("row %d has %d values, expected %d columns", i, len(vals), len(columns))
		}
		row := make(Row, len(columns))
		for j, col := range columns {
			row[col] = vals[j]
		}
		rows = append(rows, row)
	}
	return &Snapshot{
		TableName: tableName,
		BatchID:   batchID,
		Columns:   columns,
		Rows:      rows,
	}, nil
}

// EncodeJSONL serializes the snapshot as one JSON object per line, fields in
// column order so identical snapshots serialize byte-identically.
func (s *Snapshot) EncodeJSONL() ([]byte, error) {
	var buf bytes.Buffer
	for i, row := range s.Rows {
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteByte('{')
		for j, col := range s.Columns {
			if j > 0 {
				buf.WriteByte(',')
			}
			name, err := json.Marshal(col)
			if err != nil {
				return nil, err
			}
			buf.Write(name)
			buf.WriteByte(':')
			val, err := marshalValue(row[col])
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i, col, err)
			}
			buf.Write(val)
		}
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

// DecodeJSONL parses jsonl produced by EncodeJSONL back into a snapshot.
// Numbers are preserved as json.Number.
func DecodeJSONL(tableName, batchID string, columns []string, data []byte) (*Snapshot, error) {
	var rows []Row
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var row Row
		if err := dec.Decode(&row); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return &Snapshot{
		TableName: tableName,
		BatchID:   batchID,
		Columns:   columns,
		Rows:      rows,
	}, nil
}

func marshalValue(v any) ([]byte, error) {
	switch t := v.(type) {
	case time.Time:
		return json.Marshal(t.UTC().Format(timestampLayout))
	case nil:
		return []byte("null"), nil
	default:
		return json.Marshal(v)
	}
}

// String returns the named column as a string, or an error when the column is
// absent or not a textual value. Null yields an error satisfying IsNull.
func (r Row) String(col string) (string, error) {
	v, ok := r[col]
	if !ok {
		return "", fmt.Errorf("column %q missing", col)
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case nil:
		return "", errNullValue
	default:
		return "", fmt.Errorf("column %q is %T, expected string", col, v)
	}
}

// Int returns the named column as an int64.
func (r Row) Int(col string) (int64, error) {
	v, ok := r[col]
	if !ok {
		return 0, fmt.Errorf("column %q missing", col)
	}
	switch t := v.(type) {
	case json.Number:
		return t.Int64()
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case nil:
		return 0, errNullValue
	default:
		return 0, fmt.Errorf("column %q is %T, expected integer", col, v)
	}
}

// Float returns the named column as a float64.
func (r Row) Float(col string) (float64, error) {
	v, ok := r[col]
	if !ok {
		return 0, fmt.Errorf("column %q missing", col)
	}
	switch t := v.(type) {
	case json.Number:
		return t.Float64()
	case float64:
		return t, nil
	case nil:
		return 0, errNullValue
	default:
		return 0, fmt.Errorf("column %q is %T, expected number", col, v)
	}
}

// NullString returns the named column as a nullable string.
func (r Row) NullString(col string) (*string, error) {
	v, ok := r[col]
	if !ok {
		return nil, fmt.Errorf("column %q missing", col)
	}
	switch t := v.(type) {
	case string:
		return &t, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("column %q is %T, expected string or null", col, v)
	}
}

var errNullValue = errors.New("null value")

// IsNull reports whether err signals a null column value.
func IsNull(err error) bool {
	return errors.Is(err, errNullValue)
}
