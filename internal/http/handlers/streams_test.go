package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jmylchreest/streampulse/internal/models"
	"github.com/jmylchreest/streampulse/internal/repository"
)

func setupStreamHandler(t *testing.T) (*chi.Mux, repository.StreamRepository, repository.MetricRepository) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Stream{}, &models.Metric{}))

	streams := repository.NewStreamRepository(db)
	metrics := repository.NewMetricRepository(db)

	router := chi.NewRouter()
	NewStreamHandler(streams, metrics, nil).Register(router)
	return router, streams, metrics
}

func TestListStreams(t *testing.T) {
	router, streams, _ := setupStreamHandler(t)

	s := &models.Stream{Name: "BBC One", URL: "http://example.com/bbc.m3u8"}
	require.NoError(t, streams.Create(context.Background(), s))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/streams", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got []models.Stream
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "BBC One", got[0].Name)
	assert.Equal(t, models.StreamStatusOffline, got[0].Status)
}

func TestListStreams_FilterByURL(t *testing.T) {
	router, streams, _ := setupStreamHandler(t)
	ctx := context.Background()

	require.NoError(t, streams.Create(ctx, &models.Stream{Name: "BBC One", URL: "http://example.com/bbc.m3u8"}))
	require.NoError(t, streams.Create(ctx, &models.Stream{Name: "ITV", URL: "http://example.com/itv.m3u8"}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/streams?url=http%3A%2F%2Fexample.com%2Fitv.m3u8", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got []models.Stream
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "ITV", got[0].Name)
}

func TestListStreams_FilterByURL_NoMatch(t *testing.T) {
	router, streams, _ := setupStreamHandler(t)

	require.NoError(t, streams.Create(context.Background(), &models.Stream{Name: "BBC One", URL: "http://example.com/bbc.m3u8"}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/streams?url=http%3A%2F%2Fexample.com%2Fnone.m3u8", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got []models.Stream
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Empty(t, got)
}

func TestGetStream(t *testing.T) {
	router, streams, _ := setupStreamHandler(t)

	s := &models.Stream{Name: "Test", URL: "http://example.com/t.m3u8"}
	require.NoError(t, streams.Create(context.Background(), s))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/streams/"+s.ID.String(), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Stream
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, int64(-1), got.Health.MediaSequence)
}

func TestGetStream_NotFound(t *testing.T) {
	router, _, _ := setupStreamHandler(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/streams/"+models.NewULID().String(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetStream_InvalidID(t *testing.T) {
	router, _, _ := setupStreamHandler(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/streams/not-a-ulid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetStreamErrors(t *testing.T) {
	router, streams, _ := setupStreamHandler(t)

	s := &models.Stream{Name: "Test", URL: "http://example.com/t.m3u8"}
	require.NoError(t, streams.Create(context.Background(), s))
	s.AppendError(models.ErrorTypeMediaSequence, "Sequence reset from 100 to 50", "", nil, time.Now())
	require.NoError(t, streams.Save(context.Background(), s))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/streams/"+s.ID.String()+"/errors", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got models.ErrorList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, models.ErrorTypeMediaSequence, got[0].ErrorType)
}

func TestGetStreamMetrics(t *testing.T) {
	router, streams, metrics := setupStreamHandler(t)
	ctx := context.Background()

	s := &models.Stream{Name: "Test", URL: "http://example.com/t.m3u8"}
	require.NoError(t, streams.Create(ctx, s))

	require.NoError(t, metrics.Append(ctx, &models.Metric{
		StreamID: s.ID, HealthScore: 100, Timestamp: time.Now().Add(-time.Minute),
	}))
	require.NoError(t, metrics.Append(ctx, &models.Metric{
		StreamID: s.ID, HealthScore: 70, Timestamp: time.Now().Add(-2 * time.Hour),
	}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/streams/"+s.ID.String()+"/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got []models.Metric
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	// Default window is one hour; the older sample is excluded.
	require.Len(t, got, 1)
	assert.Equal(t, 100, got[0].HealthScore)
}

func TestGetStreamMetrics_CustomWindow(t *testing.T) {
	router, streams, metrics := setupStreamHandler(t)
	ctx := context.Background()

	s := &models.Stream{Name: "Test", URL: "http://example.com/t.m3u8"}
	require.NoError(t, streams.Create(ctx, s))
	require.NoError(t, metrics.Append(ctx, &models.Metric{
		StreamID: s.ID, HealthScore: 70, Timestamp: time.Now().Add(-2 * time.Hour),
	}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/streams/"+s.ID.String()+"/metrics?window=6h", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got []models.Metric
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 1)
}

func TestGetStreamMetrics_InvalidWindow(t *testing.T) {
	router, streams, _ := setupStreamHandler(t)

	s := &models.Stream{Name: "Test", URL: "http://example.com/t.m3u8"}
	require.NoError(t, streams.Create(context.Background(), s))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/streams/"+s.ID.String()+"/metrics?window=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
