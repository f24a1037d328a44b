package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fenorlabs/totesys-etl/pkg/blob"
	"github.com/fenorlabs/totesys-etl/pkg/extract"
	"github.com/fenorlabs/totesys-etl/pkg/pipeline"
	"github.com/fenorlabs/totesys-etl/pkg/testutil"
	"github.com/fenorlabs/totesys-etl/pkg/transform"
)

type emptyDB struct{}

func (emptyDB) ChangedRows(ctx context.Context, tableName string, since time.Time) ([][]any, []string, error) {
	return nil, nil, nil
}

func (emptyDB) AllRows(ctx context.Context, tableName string) ([][]any, []string, error) {
	return nil, nil, nil
}

func testPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	log := testutil.NewLogger()
	store := blob.NewMemoryStore()

	extractor, err := extract.New(extract.Config{Logger: log, DB: emptyDB{}, Store: store})
	require.NoError(t, err)
	cursorStore, err := extract.NewCursorStore(extract.CursorStoreConfig{Logger: log, Store: store})
	require.NoError(t, err)
	engine, err := transform.NewEngine(transform.Config{Logger: log, Store: store})
	require.NoError(t, err)

	pipe, err := pipeline.New(pipeline.Config{
		Logger:      log,
		Extractor:   extractor,
		CursorStore: cursorStore,
		Engine:      engine,
	})
	require.NoError(t, err)
	return pipe
}

func testServer(t *testing.T, pipe *pipeline.Pipeline) *Server {
	t.Helper()
	srv, err := New(Config{
		Logger:      testutil.NewLogger(),
		Pipeline:    pipe,
		ListenAddr:  "127.0.0.1:0",
		VersionInfo: VersionInfo{Version: "test"},
	})
	require.NoError(t, err)
	return srv
}

func TestETL_Server_New(t *testing.T) {
	t.Parallel()

	t.Run("returns error when config validation fails", func(t *testing.T) {
		t.Parallel()

		_, err := New(Config{})
		require.Error(t, err)
		require.Contains(t, err.Error(), "logger is required")

		_, err = New(Config{Logger: testutil.NewLogger()})
		require.Error(t, err)
		require.Contains(t, err.Error(), "pipeline is required")
	})
}

func TestETL_Server_Handlers(t *testing.T) {
	t.Parallel()

	pipe := testPipeline(t)
	srv := testServer(t, pipe)

	t.Run("healthz is always ok", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		srv.httpSrv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("readyz is 503 before the first successful batch", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		srv.httpSrv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("status is 204 before the first cycle", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		srv.httpSrv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("version reports build info", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		srv.httpSrv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var info VersionInfo
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
		require.Equal(t, "test", info.Version)
	})

	t.Run("metrics is served", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		srv.httpSrv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestETL_Server_ReadyAfterSuccessfulCycle(t *testing.T) {
	t.Parallel()

	pipe := testPipeline(t)
	srv := testServer(t, pipe)

	// An empty-changeset cycle is still a success.
	status := pipe.RunOnce(context.Background())
	require.True(t, status.Success)

	rec := httptest.NewRecorder()
	srv.httpSrv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.httpSrv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got pipeline.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.True(t, got.Success)
	require.True(t, got.TransformSkipped)
}
