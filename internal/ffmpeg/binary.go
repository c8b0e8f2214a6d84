// Package ffmpeg provides FFmpeg/FFprobe subprocess wrappers for media
// analysis: container/codec probing, loudness measurement, and thumbnail
// extraction.
package ffmpeg

import (
	"fmt"
	"os"
	"os/exec"
)

// Binaries holds the resolved paths to the external tools.
type Binaries struct {
	FFmpegPath  string `json:"ffmpeg_path"`
	FFprobePath string `json:"ffprobe_path"`
}

// FindBinaries resolves the ffmpeg and ffprobe binaries. Explicit paths win;
// otherwise the STREAMPULSE_FFMPEG_BINARY / STREAMPULSE_FFPROBE_BINARY
// environment variables are consulted, then PATH.
func FindBinaries(ffmpegPath, ffprobePath string) (*Binaries, error) {
	resolvedFFmpeg, err := findBinary(ffmpegPath, "ffmpeg", "STREAMPULSE_FFMPEG_BINARY")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	resolvedFFprobe, err := findBinary(ffprobePath, "ffprobe", "STREAMPULSE_FFPROBE_BINARY")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}
	return &Binaries{FFmpegPath: resolvedFFmpeg, FFprobePath: resolvedFFprobe}, nil
}

func findBinary(explicit, name, envVar string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("configured path %s: %w", explicit, err)
		}
		return explicit, nil
	}
	if fromEnv := os.Getenv(envVar); fromEnv != "" {
		if _, err := os.Stat(fromEnv); err != nil {
			return "", fmt.Errorf("%s=%s: %w", envVar, fromEnv, err)
		}
		return fromEnv, nil
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", err
	}
	return path, nil
}
