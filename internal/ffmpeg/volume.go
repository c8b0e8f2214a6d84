package ffmpeg

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"time"
)

// Loudness holds the result of a volumedetect pass. Nil values mean the
// measurement was absent or unparseable.
type Loudness struct {
	MeanDb *float64
	MaxDb  *float64
}

// volumedetect reports on stderr, case sensitive.
var (
	meanVolumeRe = regexp.MustCompile(`mean_volume: (-?[0-9.]+) dB`)
	maxVolumeRe  = regexp.MustCompile(`max_volume: (-?[0-9.]+) dB`)
)

// VolumeDetector measures audio levels with ffmpeg's volumedetect filter.
type VolumeDetector struct {
	ffmpegPath string
	timeout    time.Duration
}

// NewVolumeDetector creates a new VolumeDetector.
func NewVolumeDetector(ffmpegPath string) *VolumeDetector {
	return &VolumeDetector{
		ffmpegPath: ffmpegPath,
		timeout:    30 * time.Second,
	}
}

// WithTimeout sets the detection timeout.
func (v *VolumeDetector) WithTimeout(timeout time.Duration) *VolumeDetector {
	v.timeout = timeout
	return v
}

// Measure runs volumedetect over the segment's audio track and extracts the
// mean and peak levels from stderr.
func (v *VolumeDetector) Measure(ctx context.Context, url string) (*Loudness, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, v.ffmpegPath,
		"-i", url,
		"-af", "volumedetect",
		"-f", "null",
		"-",
	)

	// volumedetect writes its report to stderr; the exit status is
	// irrelevant as long as the report is present.
	output, err := cmd.CombinedOutput()
	loudness := parseLoudness(string(output))
	if loudness.MeanDb == nil && loudness.MaxDb == nil {
		if err != nil {
			return nil, fmt.Errorf("volumedetect failed: %w", err)
		}
		return nil, fmt.Errorf("volumedetect produced no measurements")
	}

	return loudness, nil
}

func parseLoudness(output string) *Loudness {
	loudness := &Loudness{}
	if m := meanVolumeRe.FindStringSubmatch(output); m != nil {
		loudness.MeanDb = parseDb(m[1])
	}
	if m := maxVolumeRe.FindStringSubmatch(output); m != nil {
		loudness.MaxDb = parseDb(m[1])
	}
	return loudness
}

func parseDb(s string) *float64 {
	val, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(val) || math.IsInf(val, 0) {
		return nil
	}
	return &val
}
