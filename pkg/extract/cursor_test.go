package extract

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fenorlabs/totesys-etl/pkg/blob"
	"github.com/fenorlabs/totesys-etl/pkg/testutil"
)

func TestETL_Extract_Cursor(t *testing.T) {
	t.Parallel()

	t.Run("unseen table starts at the epoch", func(t *testing.T) {
		t.Parallel()
		c := NewCursor()
		require.Equal(t, Epoch, c.LastChecked("sales_order"))
	})

	t.Run("advance moves the watermark forward", func(t *testing.T) {
		t.Parallel()
		c := NewCursor()
		w := time.Date(2022, 11, 3, 14, 20, 49, 0, time.UTC)
		require.NoError(t, c.Advance("sales_order", w))
		require.Equal(t, w, c.LastChecked("sales_order"))
	})

	t.Run("advance rejects regressions", func(t *testing.T) {
		t.Parallel()
		c := NewCursor()
		w := time.Date(2022, 11, 3, 14, 20, 49, 0, time.UTC)
		require.NoError(t, c.Advance("sales_order", w))
		err := c.Advance("sales_order", w.Add(-time.Minute))
		require.Error(t, err)
		require.Contains(t, err.Error(), "regresses")
		require.Equal(t, w, c.LastChecked("sales_order"))
	})

	t.Run("advance to the same watermark is allowed", func(t *testing.T) {
		t.Parallel()
		c := NewCursor()
		w := time.Date(2022, 11, 3, 14, 20, 49, 0, time.UTC)
		require.NoError(t, c.Advance("sales_order", w))
		require.NoError(t, c.Advance("sales_order", w))
	})

	t.Run("clone is independent of the original", func(t *testing.T) {
		t.Parallel()
		c := NewCursor()
		require.NoError(t, c.Advance("design", time.Date(2022, 11, 3, 0, 0, 0, 0, time.UTC)))

		clone := c.Clone()
		require.NoError(t, clone.Advance("design", time.Date(2022, 11, 4, 0, 0, 0, 0, time.UTC)))
		require.Equal(t, time.Date(2022, 11, 3, 0, 0, 0, 0, time.UTC), c.LastChecked("design"))
	})
}

func TestETL_Extract_CursorStore(t *testing.T) {
	t.Parallel()

	newStore := func(t *testing.T) (*CursorStore, *blob.MemoryStore) {
		t.Helper()
		mem := blob.NewMemoryStore()
		cs, err := NewCursorStore(CursorStoreConfig{Logger: testutil.NewLogger(), Store: mem})
		require.NoError(t, err)
		return cs, mem
	}

	t.Run("load without a persisted cursor yields a fresh one", func(t *testing.T) {
		t.Parallel()
		cs, _ := newStore(t)

		cursor, err := cs.Load(context.Background())
		require.NoError(t, err)
		require.Equal(t, int64(0), cursor.Version)
		require.Equal(t, Epoch, cursor.LastChecked("sales_order"))
	})

	t.Run("save then load roundtrips watermarks", func(t *testing.T) {
		t.Parallel()
		cs, _ := newStore(t)
		ctx := context.Background()

		cursor, err := cs.Load(ctx)
		require.NoError(t, err)
		w := time.Date(2022, 11, 3, 14, 20, 49, 0, time.UTC)
		require.NoError(t, cursor.Advance("sales_order", w))
		require.NoError(t, cs.Save(ctx, cursor))
		require.Equal(t, int64(1), cursor.Version)

		loaded, err := cs.Load(ctx)
		require.NoError(t, err)
		require.Equal(t, w, loaded.LastChecked("sales_order"))
		require.Equal(t, int64(1), loaded.Version)
	})

	t.Run("save detects a concurrent writer", func(t *testing.T) {
		t.Parallel()
		cs, _ := newStore(t)
		ctx := context.Background()

		a, err := cs.Load(ctx)
		require.NoError(t, err)
		b, err := cs.Load(ctx)
		require.NoError(t, err)

		require.NoError(t, a.Advance("design", time.Now()))
		require.NoError(t, cs.Save(ctx, a))

		require.NoError(t, b.Advance("staff", time.Now()))
		err = cs.Save(ctx, b)
		require.ErrorIs(t, err, ErrCursorConflict)
	})

	t.Run("repeated saves from the same copy succeed", func(t *testing.T) {
		t.Parallel()
		cs, _ := newStore(t)
		ctx := context.Background()

		cursor, err := cs.Load(ctx)
		require.NoError(t, err)
		require.NoError(t, cs.Save(ctx, cursor))
		require.NoError(t, cs.Save(ctx, cursor))
		require.Equal(t, int64(2), cursor.Version)
	})
}
