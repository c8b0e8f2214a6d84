package analysis

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmylchreest/streampulse/internal/events"
	"github.com/jmylchreest/streampulse/internal/ffmpeg"
	"github.com/jmylchreest/streampulse/internal/models"
	"github.com/jmylchreest/streampulse/internal/repository"
)

// silenceThresholdDb is the peak level below which audio is considered silent.
const silenceThresholdDb = -50

// defaultAudioBitrate is assumed when the probe omits an audio bitrate.
const defaultAudioBitrate = 128000

// Analyzer characterizes segments: container/codec probe, loudness
// measurement, and thumbnail extraction. Each capability runs as an
// independent pipeline job that mutates the stream record and saves it
// best-effort; a concurrent sweep winning the version race simply drops the
// update.
type Analyzer struct {
	pipeline *Pipeline
	streams  repository.StreamRepository
	prober   *ffmpeg.Prober
	volume   *ffmpeg.VolumeDetector
	thumbs   *ffmpeg.Thumbnailer
	bus      *events.Bus
	logger   *slog.Logger
	now      func() time.Time
}

// NewAnalyzer creates an Analyzer running on the given pipeline.
func NewAnalyzer(
	pipeline *Pipeline,
	streams repository.StreamRepository,
	binaries *ffmpeg.Binaries,
	bus *events.Bus,
	logger *slog.Logger,
) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		pipeline: pipeline,
		streams:  streams,
		prober:   ffmpeg.NewProber(binaries.FFprobePath),
		volume:   ffmpeg.NewVolumeDetector(binaries.FFmpegPath),
		thumbs:   ffmpeg.NewThumbnailer(binaries.FFmpegPath),
		bus:      bus,
		logger:   logger.With("component", "analyzer"),
		now:      time.Now,
	}
}

// AnalyzeSegment submits the probe, loudness, and thumbnail jobs for the
// given segment URL. It returns immediately; the jobs run within the
// pipeline's concurrency bound.
func (a *Analyzer) AnalyzeSegment(stream *models.Stream, segmentURL string) {
	id := stream.ID.String()
	a.pipeline.Submit("probe:"+id, func(ctx context.Context) error {
		return a.probe(ctx, stream, segmentURL)
	})
	a.pipeline.Submit("loudness:"+id, func(ctx context.Context) error {
		return a.loudness(ctx, stream, segmentURL)
	})
	a.pipeline.Submit("thumbnail:"+id, func(ctx context.Context) error {
		return a.thumbnail(ctx, stream, segmentURL)
	})
}

// probe populates the container, video, and audio stat blocks and emits a
// live signal event.
func (a *Analyzer) probe(ctx context.Context, stream *models.Stream, segmentURL string) error {
	result, err := a.prober.Probe(ctx, segmentURL)
	if err != nil {
		return err
	}

	if stream.Stats == nil {
		stream.Stats = &models.StreamStats{}
	}
	stats := stream.Stats

	stats.Container = &models.ContainerStats{
		FormatName: result.Format.FormatName,
		Duration:   result.Duration(),
		Size:       result.Size(),
		BitRate:    result.Bitrate(),
	}

	if video := result.GetVideoStream(); video != nil {
		bitrate := video.BitrateValue()
		if bitrate == 0 {
			// Segment-level video bitrate is often absent for TS; estimate
			// from the container rate.
			bitrate = int64(float64(result.Bitrate()) * 0.85)
		}
		stats.Video = &models.VideoStats{
			Codec:       video.CodecName,
			Profile:     video.Profile,
			Level:       video.LevelString(),
			Width:       video.Width,
			Height:      video.Height,
			PixelFormat: video.PixFmt,
			ColorSpace:  video.ColorSpaceValue(),
			BitRate:     bitrate,
		}
		stats.FPS = video.Framerate()
	}

	if audio := result.GetAudioStream(); audio != nil {
		bitrate := audio.BitrateValue()
		if bitrate == 0 {
			bitrate = defaultAudioBitrate
		}
		prev := stats.Audio
		stats.Audio = &models.AudioStats{
			Codec:         audio.CodecName,
			Channels:      audio.Channels,
			SampleRate:    audio.SampleRateValue(),
			BitRate:       bitrate,
			ChannelLayout: ChannelLayoutName(audio.Channels),
		}
		// Loudness results arrive from a separate job; carry them over.
		if prev != nil {
			stats.Audio.PeakDb = prev.PeakDb
			stats.Audio.AvgDb = prev.AvgDb
			stats.Audio.IsSilent = prev.IsSilent
		}
	}

	a.publishSignal(stream)
	a.bestEffortSave(ctx, stream)
	return nil
}

// loudness measures mean and peak audio levels.
func (a *Analyzer) loudness(ctx context.Context, stream *models.Stream, segmentURL string) error {
	result, err := a.volume.Measure(ctx, segmentURL)
	if err != nil {
		// The null output sink produces expected warnings; drop them.
		if strings.Contains(err.Error(), "null") {
			return nil
		}
		return err
	}

	if stream.Stats == nil {
		stream.Stats = &models.StreamStats{}
	}
	if stream.Stats.Audio == nil {
		stream.Stats.Audio = &models.AudioStats{}
	}
	audio := stream.Stats.Audio
	audio.AvgDb = result.MeanDb
	audio.PeakDb = result.MaxDb
	audio.IsSilent = result.MaxDb != nil && *result.MaxDb < silenceThresholdDb

	a.bestEffortSave(ctx, stream)
	return nil
}

// thumbnail extracts a frame, embeds it as a data URL on the record, and
// announces it on the bus.
func (a *Analyzer) thumbnail(ctx context.Context, stream *models.Stream, segmentURL string) error {
	path := filepath.Join(os.TempDir(),
		fmt.Sprintf("sprite-%s-%d.jpg", stream.ID, a.now().UnixMilli()))

	if err := a.thumbs.Extract(ctx, segmentURL, path); err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		a.logger.Warn("reading thumbnail failed",
			slog.String("stream_id", stream.ID.String()),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if err := os.Remove(path); err != nil {
		a.logger.Warn("removing thumbnail temp file failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}

	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data)
	stream.Thumbnail = dataURL

	a.bestEffortSave(ctx, stream)
	a.bus.Publish(events.TopicStreamSprite, events.SpritePayload{
		ID:  stream.ID.String(),
		URL: dataURL,
	})
	return nil
}

// publishSignal emits a stream:signal event with jittered levels.
func (a *Analyzer) publishSignal(stream *models.Stream) {
	stats := stream.Stats
	if stats == nil {
		return
	}

	var videoBitrate, audioBitrate int64
	var peakDb, avgDb *float64
	var isSilent bool
	if stats.Video != nil {
		videoBitrate = stats.Video.BitRate
	}
	if stats.Audio != nil {
		audioBitrate = stats.Audio.BitRate
		peakDb = stats.Audio.PeakDb
		avgDb = stats.Audio.AvgDb
		isSilent = stats.Audio.IsSilent
	}

	a.bus.Publish(events.TopicStreamSignal, events.SignalPayload{
		ID:           stream.ID.String(),
		Timestamp:    a.now(),
		Video:        jitterLevel(VideoLevel(videoBitrate)),
		Audio:        jitterLevel(AudioLevel(audioBitrate)),
		VideoBitrate: videoBitrate,
		AudioBitrate: audioBitrate,
		FPS:          stats.FPS,
		PeakDb:       peakDb,
		AvgDb:        avgDb,
		IsSilent:     isSilent,
	})
}

// bestEffortSave persists the record, tolerating version conflicts.
func (a *Analyzer) bestEffortSave(ctx context.Context, stream *models.Stream) {
	err := a.streams.Save(ctx, stream)
	if err == nil {
		return
	}
	if errors.Is(err, repository.ErrVersionConflict) {
		a.logger.Debug("dropping analysis update, record changed concurrently",
			slog.String("stream_id", stream.ID.String()),
		)
		return
	}
	a.logger.Warn("saving analysis results failed",
		slog.String("stream_id", stream.ID.String()),
		slog.String("error", err.Error()),
	)
}

// ChannelLayoutName maps a channel count to a display name.
func ChannelLayoutName(channels int) string {
	switch channels {
	case 0:
		return "Unknown"
	case 1:
		return "Mono"
	case 2:
		return "Stereo"
	case 6:
		return "5.1 Surround"
	case 8:
		return "7.1 Surround"
	default:
		return fmt.Sprintf("%d channels", channels)
	}
}
