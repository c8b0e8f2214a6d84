package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ProbeResult contains the complete ffprobe output.
type ProbeResult struct {
	Format  ProbeFormat   `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeFormat contains container format information.
type ProbeFormat struct {
	FormatName     string `json:"format_name"`
	FormatLongName string `json:"format_long_name"`
	Duration       string `json:"duration"`
	Size           string `json:"size"`
	BitRate        string `json:"bit_rate"`
}

// ProbeStream contains stream information.
type ProbeStream struct {
	Index          int    `json:"index"`
	CodecName      string `json:"codec_name"`
	Profile        string `json:"profile"`
	CodecType      string `json:"codec_type"` // video, audio, subtitle, data
	Width          int    `json:"width,omitempty"`
	Height         int    `json:"height,omitempty"`
	PixFmt         string `json:"pix_fmt,omitempty"`
	Level          int    `json:"level,omitempty"`
	ColorSpace     string `json:"color_space,omitempty"`
	ColorPrimaries string `json:"color_primaries,omitempty"`
	SampleRate     string `json:"sample_rate,omitempty"`
	Channels       int    `json:"channels,omitempty"`
	ChannelLayout  string `json:"channel_layout,omitempty"`
	RFrameRate     string `json:"r_frame_rate,omitempty"`
	AvgFrameRate   string `json:"avg_frame_rate,omitempty"`
	BitRate        string `json:"bit_rate,omitempty"`
}

// Prober handles ffprobe operations.
type Prober struct {
	ffprobePath string
	timeout     time.Duration
}

// NewProber creates a new stream prober.
func NewProber(ffprobePath string) *Prober {
	return &Prober{
		ffprobePath: ffprobePath,
		timeout:     30 * time.Second,
	}
}

// WithTimeout sets the probe timeout.
func (p *Prober) WithTimeout(timeout time.Duration) *Prober {
	p.timeout = timeout
	return p
}

// Probe probes a URL and returns the decoded format and stream information.
func (p *Prober) Probe(ctx context.Context, url string) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
	}
	args = append(args, url)

	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("probe timeout after %v", p.timeout)
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("parsing ffprobe output: %w", err)
	}

	return &result, nil
}

// GetVideoStream returns the first video stream from probe result.
func (r *ProbeResult) GetVideoStream() *ProbeStream {
	for i := range r.Streams {
		if r.Streams[i].CodecType == "video" {
			return &r.Streams[i]
		}
	}
	return nil
}

// GetAudioStream returns the first audio stream from probe result.
func (r *ProbeResult) GetAudioStream() *ProbeStream {
	for i := range r.Streams {
		if r.Streams[i].CodecType == "audio" {
			return &r.Streams[i]
		}
	}
	return nil
}

// Duration returns the container duration in seconds.
func (r *ProbeResult) Duration() float64 {
	if r.Format.Duration == "" {
		return 0
	}
	if dur, err := strconv.ParseFloat(r.Format.Duration, 64); err == nil {
		return dur
	}
	return 0
}

// Size returns the container size in bytes.
func (r *ProbeResult) Size() int64 {
	if r.Format.Size == "" {
		return 0
	}
	if size, err := strconv.ParseInt(r.Format.Size, 10, 64); err == nil {
		return size
	}
	return 0
}

// Bitrate returns the overall container bitrate in bits per second.
func (r *ProbeResult) Bitrate() int64 {
	if r.Format.BitRate == "" {
		return 0
	}
	if br, err := strconv.ParseInt(r.Format.BitRate, 10, 64); err == nil {
		return br
	}
	return 0
}

// Framerate returns the stream framerate, preferring r_frame_rate.
func (s *ProbeStream) Framerate() float64 {
	if s.RFrameRate != "" {
		return parseFramerate(s.RFrameRate)
	}
	if s.AvgFrameRate != "" {
		return parseFramerate(s.AvgFrameRate)
	}
	return 0
}

// BitrateValue returns the stream bitrate in bits per second, 0 when absent.
func (s *ProbeStream) BitrateValue() int64 {
	if s.BitRate == "" {
		return 0
	}
	if br, err := strconv.ParseInt(s.BitRate, 10, 64); err == nil {
		return br
	}
	return 0
}

// SampleRateValue returns the audio sample rate in Hz, 0 when absent.
func (s *ProbeStream) SampleRateValue() int {
	if s.SampleRate == "" {
		return 0
	}
	if sr, err := strconv.Atoi(s.SampleRate); err == nil {
		return sr
	}
	return 0
}

// LevelString returns the codec level as a decimal string ("41"), empty when
// the probe omitted it.
func (s *ProbeStream) LevelString() string {
	if s.Level <= 0 {
		return ""
	}
	return strconv.Itoa(s.Level)
}

// ColorSpaceValue returns the color space, falling back through
// color_primaries to "unknown".
func (s *ProbeStream) ColorSpaceValue() string {
	if s.ColorSpace != "" {
		return s.ColorSpace
	}
	if s.ColorPrimaries != "" {
		return s.ColorPrimaries
	}
	return "unknown"
}

// parseFramerate parses a framerate string like "30000/1001" or "25/1".
// Plain numeric values are returned as-is; a zero or missing denominator
// yields the numerator.
func parseFramerate(fr string) float64 {
	parts := strings.Split(fr, "/")
	if len(parts) != 2 {
		if f, err := strconv.ParseFloat(fr, 64); err == nil {
			return f
		}
		return 0
	}

	num, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0
	}
	den, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || den == 0 {
		return num
	}

	return num / den
}
