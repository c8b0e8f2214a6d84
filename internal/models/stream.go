package models

import (
	"net/url"
	"strconv"
	"time"

	"gorm.io/gorm"
)

// StreamStatus represents the observed state of a monitored stream.
type StreamStatus string

// Stream status values.
const (
	StreamStatusOnline  StreamStatus = "online"
	StreamStatusOffline StreamStatus = "offline"
	StreamStatusError   StreamStatus = "error"
	StreamStatusStale   StreamStatus = "stale"
)

// DefaultStaleThresholdMs is the per-stream freshness threshold applied when
// a record does not carry one.
const DefaultStaleThresholdMs = 7000

// Stream represents a monitored HLS stream. Records are created and deleted
// through the API; the monitor only updates them.
type Stream struct {
	BaseModel
	Name         string       `gorm:"not null" json:"name"`
	URL          string       `gorm:"uniqueIndex;not null" json:"url"`
	Status       StreamStatus `gorm:"not null;default:offline" json:"status"`
	Health       StreamHealth `gorm:"type:text;serializer:json" json:"health"`
	Stats        *StreamStats `gorm:"type:text;serializer:json" json:"stats,omitempty"`
	StreamErrors ErrorList    `gorm:"type:text;serializer:json" json:"streamErrors"`
	Thumbnail    string       `gorm:"type:text" json:"thumbnail,omitempty"`
	LastChecked  *time.Time   `json:"lastChecked,omitempty"`

	// Version is a monotonic counter used for optimistic concurrency. Saves
	// carry the expected version; a mismatch means a concurrent writer won.
	Version int64 `gorm:"not null;default:0" json:"version"`
}

// StreamHealth is the rolling health assessment maintained by the monitor.
// It is stored as a JSON column on the stream record.
type StreamHealth struct {
	IsStale             bool       `json:"isStale"`
	LastManifestUpdate  *time.Time `json:"lastManifestUpdate,omitempty"`
	TimeSinceLastUpdate int64      `json:"timeSinceLastUpdate"` // ms
	StaleThreshold      int64      `json:"staleThreshold"`      // ms

	// MediaSequence and PreviousMediaSequence are -1 until the first
	// successful poll.
	MediaSequence         int64 `json:"mediaSequence"`
	PreviousMediaSequence int64 `json:"previousMediaSequence"`

	SequenceJumps  int64 `json:"sequenceJumps"`
	SequenceResets int64 `json:"sequenceResets"`

	DiscontinuitySequence int64 `json:"discontinuitySequence"`
	DiscontinuityCount    int   `json:"discontinuityCount"`

	SegmentCount   int    `json:"segmentCount"`
	TargetDuration int    `json:"targetDuration"`
	PlaylistType   string `json:"playlistType"`

	TotalErrors int64 `json:"totalErrors"`
	// TimeSinceLastError is reset to 0 whenever an error is appended. It is
	// informational only and is not advanced between errors.
	TimeSinceLastError int64      `json:"timeSinceLastError"` // ms
	LastErrorTime      *time.Time `json:"lastErrorTime,omitempty"`

	// Sliding-window snapshots, refreshed on every poll.
	RecentErrors         int `json:"recentErrors"`
	RecentSequenceJumps  int `json:"recentSequenceJumps"`
	RecentSequenceResets int `json:"recentSequenceResets"`
}

// DefaultStreamHealth returns the health block for a never-polled stream.
func DefaultStreamHealth() StreamHealth {
	return StreamHealth{
		StaleThreshold:        DefaultStaleThresholdMs,
		MediaSequence:         -1,
		PreviousMediaSequence: -1,
		PlaylistType:          "LIVE",
	}
}

// StreamStats holds the media characterization produced by the analysis
// pipeline. Nil sub-blocks mean "stat unknown".
type StreamStats struct {
	Bandwidth  int64           `json:"bandwidth,omitempty"`
	Resolution string          `json:"resolution,omitempty"`
	FPS        float64         `json:"fps,omitempty"`
	Video      *VideoStats     `json:"video,omitempty"`
	Audio      *AudioStats     `json:"audio,omitempty"`
	Container  *ContainerStats `json:"container,omitempty"`
}

// VideoStats describes the probed video elementary stream.
type VideoStats struct {
	Codec       string `json:"codec,omitempty"`
	Profile     string `json:"profile,omitempty"`
	Level       string `json:"level,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	PixelFormat string `json:"pixelFormat,omitempty"`
	ColorSpace  string `json:"colorSpace,omitempty"`
	BitRate     int64  `json:"bitRate,omitempty"`
}

// AudioStats describes the probed audio elementary stream plus the loudness
// measurements layered on top of it.
type AudioStats struct {
	Codec         string   `json:"codec,omitempty"`
	Channels      int      `json:"channels,omitempty"`
	SampleRate    int      `json:"sampleRate,omitempty"`
	BitRate       int64    `json:"bitRate,omitempty"`
	ChannelLayout string   `json:"channelLayout,omitempty"`
	PeakDb        *float64 `json:"peakDb,omitempty"`
	AvgDb         *float64 `json:"avgDb,omitempty"`
	IsSilent      bool     `json:"isSilent"`
}

// ContainerStats describes the probed container format.
type ContainerStats struct {
	FormatName string  `json:"formatName,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
	Size       int64   `json:"size,omitempty"`
	BitRate    int64   `json:"bitRate,omitempty"`
}

// BeforeCreate initializes the health block for new records.
func (s *Stream) BeforeCreate(tx *gorm.DB) error {
	if err := s.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if s.Health == (StreamHealth{}) {
		s.Health = DefaultStreamHealth()
	}
	if s.Status == "" {
		s.Status = StreamStatusOffline
	}
	return nil
}

// Validate checks the stream record for consistency.
func (s *Stream) Validate() error {
	if s.Name == "" {
		return ErrNameRequired
	}
	if s.URL == "" {
		return ErrURLRequired
	}
	if _, err := url.ParseRequestURI(s.URL); err != nil {
		return ErrInvalidURL
	}
	switch s.Status {
	case StreamStatusOnline, StreamStatusOffline, StreamStatusError, StreamStatusStale, "":
	default:
		return ErrInvalidStatus
	}
	return nil
}

// StaleThresholdMs returns the stream's freshness threshold. Records that
// carry no threshold of their own use the given fallback; a non-positive
// fallback means DefaultStaleThresholdMs.
func (s *Stream) StaleThresholdMs(fallback time.Duration) int64 {
	if s.Health.StaleThreshold > 0 {
		return s.Health.StaleThreshold
	}
	if fallback > 0 {
		return fallback.Milliseconds()
	}
	return DefaultStaleThresholdMs
}

// VariantLabel returns the stream's bandwidth as a decimal string, or
// "unknown" when no bandwidth has been captured. Used on ledger entries.
func (s *Stream) VariantLabel() string {
	if s.Stats != nil && s.Stats.Bandwidth > 0 {
		return strconv.FormatInt(s.Stats.Bandwidth, 10)
	}
	return "unknown"
}

// TableName returns the database table name.
func (Stream) TableName() string {
	return "streams"
}
