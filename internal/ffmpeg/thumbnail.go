package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// Thumbnailer extracts still frames from segments.
type Thumbnailer struct {
	ffmpegPath string
	timeout    time.Duration
}

// NewThumbnailer creates a new Thumbnailer.
func NewThumbnailer(ffmpegPath string) *Thumbnailer {
	return &Thumbnailer{
		ffmpegPath: ffmpegPath,
		timeout:    30 * time.Second,
	}
}

// WithTimeout sets the extraction timeout.
func (t *Thumbnailer) WithTimeout(timeout time.Duration) *Thumbnailer {
	t.timeout = timeout
	return t
}

// Extract grabs one JPEG frame at a 0.5 s offset, scaled to width 320 with
// the aspect ratio preserved, quality 5, into outputPath.
func (t *Thumbnailer) Extract(ctx context.Context, url, outputPath string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.ffmpegPath,
		"-ss", "0.5",
		"-i", url,
		"-frames:v", "1",
		"-vf", "scale=320:-1",
		"-q:v", "5",
		"-y",
		outputPath,
	)

	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("thumbnail extraction failed: %w (%s)", err, truncate(string(output), 200))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
