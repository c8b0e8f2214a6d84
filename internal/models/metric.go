package models

import "time"

// Metric is one health sample, appended once per poll per stream. Samples
// older than the retention horizon are purged by the retention sweeper.
type Metric struct {
	BaseModel
	StreamID ULID `gorm:"type:varchar(26);index;not null" json:"streamId"`

	// Scores are computed in floating point and rounded to the nearest
	// integer once, here.
	HealthScore int `gorm:"not null" json:"healthScore"`
	VideoScore  int `gorm:"not null" json:"videoScore"`
	AudioScore  int `gorm:"not null" json:"audioScore"`

	VideoBitrate int64   `json:"videoBitrate"`
	AudioBitrate int64   `json:"audioBitrate"`
	VideoLevel   float64 `json:"videoLevel"`
	AudioLevel   float64 `json:"audioLevel"`
	FPS          float64 `json:"fps"`

	Status        StreamStatus `json:"status"`
	MediaSequence int64        `json:"mediaSequence"`
	SegmentCount  int          `json:"segmentCount"`
	ErrorCount    int64        `json:"errorCount"`

	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
}

// Validate checks the metric sample for consistency.
func (m *Metric) Validate() error {
	if m.StreamID.IsZero() {
		return ErrStreamIDRequired
	}
	return nil
}

// TableName returns the database table name.
func (Metric) TableName() string {
	return "metrics"
}
