package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jmylchreest/streampulse/internal/analysis"
	"github.com/jmylchreest/streampulse/internal/events"
	"github.com/jmylchreest/streampulse/internal/hls"
	"github.com/jmylchreest/streampulse/internal/models"
	"github.com/jmylchreest/streampulse/internal/observability"
	"github.com/jmylchreest/streampulse/internal/repository"
)

// Evaluator drives one stream through a single poll: fetch, freshness and
// sequence checks, discontinuity accounting, analysis dispatch, scoring, and
// persistence.
type Evaluator struct {
	fetcher        *hls.Fetcher
	cache          *StateCache
	streams        repository.StreamRepository
	metrics        repository.MetricRepository
	analyzer       *analysis.Analyzer
	bus            *events.Bus
	windowSpan     time.Duration
	staleThreshold time.Duration
	logger         *slog.Logger
	now            func() time.Time
}

// NewEvaluator wires an Evaluator. staleThreshold is the freshness threshold
// applied to streams whose records carry none. A nil analyzer disables
// segment analysis dispatch, which tests use.
func NewEvaluator(
	fetcher *hls.Fetcher,
	cache *StateCache,
	streams repository.StreamRepository,
	metrics repository.MetricRepository,
	analyzer *analysis.Analyzer,
	bus *events.Bus,
	windowSpan time.Duration,
	staleThreshold time.Duration,
	logger *slog.Logger,
) *Evaluator {
	if windowSpan <= 0 {
		windowSpan = DefaultWindowSpan
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		fetcher:        fetcher,
		cache:          cache,
		streams:        streams,
		metrics:        metrics,
		analyzer:       analyzer,
		bus:            bus,
		windowSpan:     windowSpan,
		staleThreshold: staleThreshold,
		logger:         logger.With("component", "evaluator"),
		now:            time.Now,
	}
}

// EvaluateStream performs one poll of the stream. Errors are recorded on the
// stream record rather than returned; the next sweep retries naturally.
func (e *Evaluator) EvaluateStream(ctx context.Context, stream *models.Stream) {
	now := e.now()

	manifest, err := e.fetcher.Fetch(ctx, stream.URL)
	if err != nil {
		e.recordFailure(ctx, stream, models.ErrorTypeManifestRetrieval, err.Error(), fetchStatusCode(err), now)
		return
	}

	// A master playlist points at variants; pick the first, remember its
	// advertised bandwidth and resolution, and fetch the media playlist.
	mediaURL := stream.URL
	if manifest.IsMaster && len(manifest.Variants) > 0 {
		variant := manifest.Variants[0]
		if stream.Stats == nil {
			stream.Stats = &models.StreamStats{}
		}
		stream.Stats.Bandwidth = variant.Bandwidth
		stream.Stats.Resolution = variant.Resolution

		mediaURL = hls.ResolveURI(stream.URL, variant.URI)
		manifest, err = e.fetcher.Fetch(ctx, mediaURL)
		if err != nil {
			e.recordFailure(ctx, stream, models.ErrorTypeManifestRetrieval, err.Error(), fetchStatusCode(err), now)
			return
		}
	}

	if len(manifest.Segments) == 0 {
		e.recordFailure(ctx, stream, models.ErrorTypePlaylistContent, "Playlist contains no segments", nil, now)
		return
	}

	cached := e.cache.Get(stream.ID)
	seq := manifest.MediaSequence

	// Freshness: an unchanged media sequence is tolerated until the stale
	// threshold, then recorded.
	if seq == cached.LastMediaSequence {
		cached.ConsecutiveStales++
		var elapsed int64
		if !cached.LastPollTime.IsZero() {
			elapsed = now.Sub(cached.LastPollTime).Milliseconds()
		}
		stream.Health.TimeSinceLastUpdate = elapsed
		if elapsed > stream.StaleThresholdMs(e.staleThreshold) {
			stream.Health.IsStale = true
			stream.Status = models.StreamStatusStale
			stream.AppendError(models.ErrorTypeStaleManifest,
				fmt.Sprintf("Manifest has not updated for %d ms (media sequence %d)", elapsed, seq),
				"", nil, now)
		}
	} else {
		stream.Health.IsStale = false
		updated := now
		stream.Health.LastManifestUpdate = &updated
		stream.Health.TimeSinceLastUpdate = 0
		cached.ConsecutiveStales = 0
		stream.Status = models.StreamStatusOnline
	}

	// Sequence semantics apply only once a baseline exists. Gaps of 1 or 2
	// are expected with a 7 s poll period against ~6 s segments.
	if cached.LastMediaSequence != -1 {
		expected := cached.LastMediaSequence + 1
		if gap := seq - expected; seq > expected && gap >= 3 {
			stream.Health.SequenceJumps++
			stream.AppendError(models.ErrorTypeMediaSequence,
				fmt.Sprintf("Sequence jumped from %d to %d (gap: %d)", cached.LastMediaSequence, seq, gap),
				"", nil, now)
		}
		if seq < cached.LastMediaSequence {
			stream.Health.SequenceResets++
			stream.AppendError(models.ErrorTypeMediaSequence,
				fmt.Sprintf("Sequence reset from %d to %d", cached.LastMediaSequence, seq),
				"", nil, now)
		}
	}

	// Discontinuity accounting is informational and recomputed each poll.
	stream.Health.DiscontinuityCount = manifest.DiscontinuityCount()
	if manifest.DiscontinuitySequence != stream.Health.DiscontinuitySequence {
		stream.Health.DiscontinuitySequence = manifest.DiscontinuitySequence
	}

	stream.Health.PreviousMediaSequence = cached.LastMediaSequence
	stream.Health.MediaSequence = seq
	stream.Health.SegmentCount = len(manifest.Segments)
	stream.Health.TargetDuration = manifest.TargetDuration
	if manifest.PlaylistType != "" {
		stream.Health.PlaylistType = manifest.PlaylistType
	} else {
		stream.Health.PlaylistType = "LIVE"
	}

	e.cache.Set(stream.ID, PollState{
		LastPollTime:      now,
		LastMediaSequence: seq,
		ConsecutiveStales: cached.ConsecutiveStales,
	})

	if e.analyzer != nil {
		if last := manifest.LastSegment(); last != nil {
			e.analyzer.AnalyzeSegment(stream, hls.ResolveURI(mediaURL, last.URI))
		}
	}

	checked := now
	stream.LastChecked = &checked
	if !e.save(ctx, stream) {
		return
	}

	recent := WindowIssues(stream.StreamErrors, now, e.windowSpan)
	stream.Health.RecentErrors = recent.Errors
	stream.Health.RecentSequenceJumps = recent.Jumps
	stream.Health.RecentSequenceResets = recent.Resets

	e.recordSample(ctx, stream, &recent, now)

	if !e.save(ctx, stream) {
		return
	}
	e.bus.Publish(events.TopicStreamUpdate, stream)
}

// recordFailure marks the stream errored with a ledger entry and publishes
// the updated record. No metric sample is written on a failed poll.
func (e *Evaluator) recordFailure(ctx context.Context, stream *models.Stream, errorType, details string, code *int, now time.Time) {
	observability.WithStream(e.logger, stream.ID.String()).Warn("poll failed",
		slog.String("error_type", errorType),
		slog.String("details", details),
	)

	stream.Status = models.StreamStatusError
	stream.AppendError(errorType, details, "", code, now)
	checked := now
	stream.LastChecked = &checked

	if !e.save(ctx, stream) {
		return
	}
	e.bus.Publish(events.TopicStreamUpdate, stream)
}

// recordSample appends one metric sample for this poll. Failures are logged
// and do not affect the stream update path.
func (e *Evaluator) recordSample(ctx context.Context, stream *models.Stream, recent *RecentIssues, now time.Time) {
	decay := DecayFactor(stream.Health.LastErrorTime, now)

	var videoBitrate, audioBitrate int64
	var fps float64
	if stream.Stats != nil {
		fps = stream.Stats.FPS
		if stream.Stats.Video != nil {
			videoBitrate = stream.Stats.Video.BitRate
		}
		if stream.Stats.Audio != nil {
			audioBitrate = stream.Stats.Audio.BitRate
		}
	}

	metric := &models.Metric{
		StreamID:      stream.ID,
		HealthScore:   int(math.Round(HealthScore(stream, recent, decay))),
		VideoScore:    int(math.Round(VideoScore(stream))),
		AudioScore:    int(math.Round(AudioScore(stream))),
		VideoBitrate:  videoBitrate,
		AudioBitrate:  audioBitrate,
		VideoLevel:    analysis.VideoLevel(videoBitrate),
		AudioLevel:    analysis.AudioLevel(audioBitrate),
		FPS:           fps,
		Status:        stream.Status,
		MediaSequence: stream.Health.MediaSequence,
		SegmentCount:  stream.Health.SegmentCount,
		ErrorCount:    stream.Health.TotalErrors,
		Timestamp:     now,
	}

	if err := e.metrics.Append(ctx, metric); err != nil {
		log := observability.WithStream(e.logger, stream.ID.String())
		observability.WithError(log, err).Warn("appending metric sample failed")
	}
}

// save persists the record following the drop-on-conflict policy. It reports
// whether the caller should continue with this stream.
func (e *Evaluator) save(ctx context.Context, stream *models.Stream) bool {
	err := e.streams.Save(ctx, stream)
	if err == nil {
		return true
	}
	log := observability.WithStream(e.logger, stream.ID.String())
	if errors.Is(err, repository.ErrVersionConflict) {
		log.Debug("dropping poll update, record changed concurrently")
		return false
	}
	observability.WithError(log, err).Error("saving stream failed")
	return false
}

// fetchStatusCode extracts the HTTP status carried by a fetch failure, when
// one was received.
func fetchStatusCode(err error) *int {
	var fetchErr *hls.FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.StatusCode
	}
	return nil
}
