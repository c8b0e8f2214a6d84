package monitor

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jmylchreest/streampulse/internal/events"
	"github.com/jmylchreest/streampulse/internal/hls"
	"github.com/jmylchreest/streampulse/internal/httpclient"
	"github.com/jmylchreest/streampulse/internal/models"
	"github.com/jmylchreest/streampulse/internal/repository"
)

type evalFixture struct {
	evaluator *Evaluator
	cache     *StateCache
	streams   repository.StreamRepository
	metrics   repository.MetricRepository
	bus       *events.Bus
	server    *httptest.Server
	stream    *models.Stream

	mu        sync.Mutex
	responses map[string]string
	statuses  map[string]int
}

func newEvalFixture(t *testing.T) *evalFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Stream{}, &models.Metric{}))

	f := &evalFixture{
		cache:     NewStateCache(),
		streams:   repository.NewStreamRepository(db),
		metrics:   repository.NewMetricRepository(db),
		bus:       events.NewBus(nil),
		responses: make(map[string]string),
		statuses:  make(map[string]int),
	}

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		body, ok := f.responses[r.URL.Path]
		status := f.statuses[r.URL.Path]
		f.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			return
		}
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(f.server.Close)

	fetcher := hls.NewFetcher(httpclient.NewWithDefaults(), 5*time.Second, nil)
	f.evaluator = NewEvaluator(fetcher, f.cache, f.streams, f.metrics, nil, f.bus, 12*time.Minute, 0, nil)

	f.stream = &models.Stream{Name: "Test Channel", URL: f.server.URL + "/stream.m3u8"}
	require.NoError(t, f.streams.Create(context.Background(), f.stream))

	return f
}

func (f *evalFixture) respond(path, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[path] = body
	delete(f.statuses, path)
}

func (f *evalFixture) respondStatus(path string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[path] = status
}

func (f *evalFixture) reload(t *testing.T) *models.Stream {
	t.Helper()
	got, err := f.streams.GetByID(context.Background(), f.stream.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	return got
}

func (f *evalFixture) evaluate(t *testing.T) {
	t.Helper()
	stream := f.reload(t)
	f.evaluator.EvaluateStream(context.Background(), stream)
}

func mediaPlaylist(seq int64, segments int) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:6\n")
	fmt.Fprintf(&b, "#EXT-X-MEDIA-SEQUENCE:%d\n", seq)
	for i := 0; i < segments; i++ {
		b.WriteString("#EXTINF:6.000,\n")
		fmt.Fprintf(&b, "segment%d.ts\n", seq+int64(i))
	}
	return b.String()
}

func TestEvaluateStream_FreshOnline(t *testing.T) {
	f := newEvalFixture(t)
	f.respond("/stream.m3u8", mediaPlaylist(100, 5))

	f.evaluate(t)

	got := f.reload(t)
	assert.Equal(t, models.StreamStatusOnline, got.Status)
	assert.Equal(t, int64(100), got.Health.MediaSequence)
	assert.Equal(t, int64(-1), got.Health.PreviousMediaSequence)
	assert.Equal(t, 5, got.Health.SegmentCount)
	assert.Equal(t, 6, got.Health.TargetDuration)
	assert.Equal(t, "LIVE", got.Health.PlaylistType)
	assert.Empty(t, got.StreamErrors)
	assert.Equal(t, 0, got.Health.RecentErrors)
	assert.False(t, got.Health.IsStale)
	require.NotNil(t, got.LastChecked)

	samples, err := f.metrics.ListByStream(context.Background(), f.stream.ID, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, 100, samples[0].HealthScore)
	// No probe has run, so both media scores read "unknown".
	assert.Equal(t, 50, samples[0].VideoScore)
	assert.Equal(t, 50, samples[0].AudioScore)
}

func TestEvaluateStream_NormalAdvance(t *testing.T) {
	f := newEvalFixture(t)
	f.respond("/stream.m3u8", mediaPlaylist(100, 5))
	f.evaluate(t)

	f.respond("/stream.m3u8", mediaPlaylist(101, 5))
	f.evaluate(t)

	got := f.reload(t)
	assert.Equal(t, models.StreamStatusOnline, got.Status)
	assert.Equal(t, int64(101), got.Health.MediaSequence)
	assert.Equal(t, int64(100), got.Health.PreviousMediaSequence)
	assert.Equal(t, int64(0), got.Health.SequenceJumps)
	assert.Empty(t, got.StreamErrors)
}

func TestEvaluateStream_SilentGap(t *testing.T) {
	f := newEvalFixture(t)
	f.respond("/stream.m3u8", mediaPlaylist(100, 5))
	f.evaluate(t)

	// Gap of 1 (expected 101, got 102) is tolerated.
	f.respond("/stream.m3u8", mediaPlaylist(102, 5))
	f.evaluate(t)

	got := f.reload(t)
	assert.Equal(t, int64(0), got.Health.SequenceJumps)
	assert.Empty(t, got.StreamErrors)
}

func TestEvaluateStream_SignificantJump(t *testing.T) {
	f := newEvalFixture(t)
	f.respond("/stream.m3u8", mediaPlaylist(100, 5))
	f.evaluate(t)

	f.respond("/stream.m3u8", mediaPlaylist(105, 5))
	f.evaluate(t)

	got := f.reload(t)
	assert.Equal(t, int64(1), got.Health.SequenceJumps)
	require.Len(t, got.StreamErrors, 1)
	entry := got.StreamErrors[0]
	assert.Equal(t, models.ErrorTypeMediaSequence, entry.ErrorType)
	assert.Equal(t, "Sequence jumped from 100 to 105 (gap: 4)", entry.Details)
	assert.Equal(t, 1, got.Health.RecentSequenceJumps)
	assert.Equal(t, 1, got.Health.RecentErrors)
}

func TestEvaluateStream_Reset(t *testing.T) {
	f := newEvalFixture(t)
	f.respond("/stream.m3u8", mediaPlaylist(100, 5))
	f.evaluate(t)

	f.respond("/stream.m3u8", mediaPlaylist(50, 5))
	f.evaluate(t)

	got := f.reload(t)
	assert.Equal(t, int64(1), got.Health.SequenceResets)
	require.Len(t, got.StreamErrors, 1)
	assert.Equal(t, "Sequence reset from 100 to 50", got.StreamErrors[0].Details)
	assert.Equal(t, 1, got.Health.RecentSequenceResets)
	// The reset sequence is adopted after being recorded.
	assert.Equal(t, int64(50), got.Health.MediaSequence)
}

func TestEvaluateStream_Stale(t *testing.T) {
	f := newEvalFixture(t)
	f.respond("/stream.m3u8", mediaPlaylist(100, 5))

	base := time.Now()
	f.evaluator.now = func() time.Time { return base }
	f.evaluate(t)

	// The sequence has not moved 7.1 s later, past the 7 s threshold.
	f.evaluator.now = func() time.Time { return base.Add(7100 * time.Millisecond) }
	f.evaluate(t)

	got := f.reload(t)
	assert.True(t, got.Health.IsStale)
	assert.Equal(t, models.StreamStatusStale, got.Status)
	assert.Equal(t, int64(7100), got.Health.TimeSinceLastUpdate)
	require.Len(t, got.StreamErrors, 1)
	assert.Equal(t, models.ErrorTypeStaleManifest, got.StreamErrors[0].ErrorType)
	assert.Contains(t, got.StreamErrors[0].Details, "7100 ms")
}

func TestEvaluateStream_ConfiguredStaleThreshold(t *testing.T) {
	f := newEvalFixture(t)
	f.respond("/stream.m3u8", mediaPlaylist(100, 5))

	// The record carries no threshold of its own, so the evaluator's
	// configured default applies.
	stream := f.reload(t)
	stream.Health.StaleThreshold = 0
	require.NoError(t, f.streams.Save(context.Background(), stream))

	f.evaluator.staleThreshold = 3 * time.Second

	base := time.Now()
	f.evaluator.now = func() time.Time { return base }
	f.evaluate(t)

	// 4 s without movement: below the built-in 7 s default but past the
	// configured 3 s threshold.
	f.evaluator.now = func() time.Time { return base.Add(4 * time.Second) }
	f.evaluate(t)

	got := f.reload(t)
	assert.True(t, got.Health.IsStale)
	assert.Equal(t, models.StreamStatusStale, got.Status)
	require.Len(t, got.StreamErrors, 1)
	assert.Contains(t, got.StreamErrors[0].Details, "4000 ms")
}

func TestEvaluateStream_PerStreamThresholdBeatsConfigured(t *testing.T) {
	f := newEvalFixture(t)
	f.respond("/stream.m3u8", mediaPlaylist(100, 5))

	f.evaluator.staleThreshold = 3 * time.Second

	base := time.Now()
	f.evaluator.now = func() time.Time { return base }
	f.evaluate(t)

	// The record's own 7 s threshold still governs: 4 s is tolerated.
	f.evaluator.now = func() time.Time { return base.Add(4 * time.Second) }
	f.evaluate(t)

	got := f.reload(t)
	assert.False(t, got.Health.IsStale)
	assert.Empty(t, got.StreamErrors)
}

func TestEvaluateStream_RecoversFromStale(t *testing.T) {
	f := newEvalFixture(t)
	f.respond("/stream.m3u8", mediaPlaylist(100, 5))

	base := time.Now()
	f.evaluator.now = func() time.Time { return base }
	f.evaluate(t)
	f.evaluator.now = func() time.Time { return base.Add(8 * time.Second) }
	f.evaluate(t)
	require.Equal(t, models.StreamStatusStale, f.reload(t).Status)

	f.respond("/stream.m3u8", mediaPlaylist(101, 5))
	f.evaluator.now = func() time.Time { return base.Add(16 * time.Second) }
	f.evaluate(t)

	got := f.reload(t)
	assert.Equal(t, models.StreamStatusOnline, got.Status)
	assert.False(t, got.Health.IsStale)
	assert.Equal(t, int64(0), got.Health.TimeSinceLastUpdate)
	require.NotNil(t, got.Health.LastManifestUpdate)
}

func TestEvaluateStream_FetchFailure(t *testing.T) {
	f := newEvalFixture(t)
	f.respondStatus("/stream.m3u8", http.StatusInternalServerError)

	f.evaluate(t)

	got := f.reload(t)
	assert.Equal(t, models.StreamStatusError, got.Status)
	require.Len(t, got.StreamErrors, 1)
	entry := got.StreamErrors[0]
	assert.Equal(t, models.ErrorTypeManifestRetrieval, entry.ErrorType)
	require.NotNil(t, entry.Code)
	assert.Equal(t, http.StatusInternalServerError, *entry.Code)
	assert.Equal(t, int64(1), got.Health.TotalErrors)

	// Failed polls never produce metric samples.
	samples, err := f.metrics.ListByStream(context.Background(), f.stream.ID, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestEvaluateStream_EmptyPlaylist(t *testing.T) {
	f := newEvalFixture(t)
	f.respond("/stream.m3u8", "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:6\n#EXT-X-MEDIA-SEQUENCE:0\n")

	f.evaluate(t)

	got := f.reload(t)
	assert.Equal(t, models.StreamStatusError, got.Status)
	require.Len(t, got.StreamErrors, 1)
	assert.Equal(t, models.ErrorTypePlaylistContent, got.StreamErrors[0].ErrorType)
}

func TestEvaluateStream_MasterPlaylistSelectsFirstVariant(t *testing.T) {
	f := newEvalFixture(t)
	f.respond("/stream.m3u8", "#EXTM3U\n"+
		"#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080\nhigh/index.m3u8\n"+
		"#EXT-X-STREAM-INF:BANDWIDTH=1000000,RESOLUTION=640x360\nlow/index.m3u8\n")
	f.respond("/high/index.m3u8", mediaPlaylist(200, 4))

	f.evaluate(t)

	got := f.reload(t)
	assert.Equal(t, models.StreamStatusOnline, got.Status)
	assert.Equal(t, int64(200), got.Health.MediaSequence)
	require.NotNil(t, got.Stats)
	assert.Equal(t, int64(5000000), got.Stats.Bandwidth)
	assert.Equal(t, "1920x1080", got.Stats.Resolution)
}

func TestEvaluateStream_PublishesUpdate(t *testing.T) {
	f := newEvalFixture(t)
	sub := f.bus.Subscribe()
	defer f.bus.Unsubscribe(sub.ID)

	f.respond("/stream.m3u8", mediaPlaylist(100, 5))
	f.evaluate(t)

	select {
	case event := <-sub.Events:
		assert.Equal(t, events.TopicStreamUpdate, event.Topic)
		payload, ok := event.Payload.(*models.Stream)
		require.True(t, ok)
		assert.Equal(t, f.stream.ID, payload.ID)
	case <-time.After(time.Second):
		t.Fatal("no stream update published")
	}
}

func TestEvaluateStream_DiscontinuityAccounting(t *testing.T) {
	f := newEvalFixture(t)
	f.respond("/stream.m3u8", "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:6\n"+
		"#EXT-X-MEDIA-SEQUENCE:10\n#EXT-X-DISCONTINUITY-SEQUENCE:3\n"+
		"#EXTINF:6.000,\nseg10.ts\n"+
		"#EXT-X-DISCONTINUITY\n#EXTINF:6.000,\nseg11.ts\n"+
		"#EXTINF:6.000,\nseg12.ts\n")

	f.evaluate(t)

	got := f.reload(t)
	assert.Equal(t, 1, got.Health.DiscontinuityCount)
	assert.Equal(t, int64(3), got.Health.DiscontinuitySequence)
}

func TestRecordSample_RoundsOnce(t *testing.T) {
	f := newEvalFixture(t)

	stream := f.reload(t)
	stream.Status = models.StreamStatusOnline
	lastError := time.Now().Add(-48 * time.Hour)
	stream.Health.LastErrorTime = &lastError

	// 100 - (10 + 10 + 6) * 0.25 = 93.5, rounded to 94 when stored.
	recent := RecentIssues{Jumps: 2, Resets: 1, Errors: 3}
	f.evaluator.recordSample(context.Background(), stream, &recent, time.Now())

	samples, err := f.metrics.ListByStream(context.Background(), f.stream.ID, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, 94, samples[0].HealthScore)
}

func TestEvaluateStream_TotalErrorsMonotonic(t *testing.T) {
	f := newEvalFixture(t)
	f.respondStatus("/stream.m3u8", http.StatusBadGateway)
	f.evaluate(t)
	f.evaluate(t)

	f.respond("/stream.m3u8", mediaPlaylist(100, 5))
	f.evaluate(t)

	got := f.reload(t)
	assert.Equal(t, models.StreamStatusOnline, got.Status)
	assert.Equal(t, int64(2), got.Health.TotalErrors)
	assert.Len(t, got.StreamErrors, 2)
}
