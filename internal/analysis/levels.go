package analysis

import "math/rand/v2"

// Reference bitrates for a 100% signal level.
const (
	videoLevelReference = 5_000_000
	audioLevelReference = 320_000
)

// VideoLevel converts a video bitrate to a 0-100 signal level.
func VideoLevel(bitrate int64) float64 {
	return clampLevel(float64(bitrate) / videoLevelReference * 100)
}

// AudioLevel converts an audio bitrate to a 0-100 signal level.
func AudioLevel(bitrate int64) float64 {
	return clampLevel(float64(bitrate) / audioLevelReference * 100)
}

// jitterLevel adds a random offset in [-5, +5] and re-clamps. Used only for
// the live signal event so idle meters still move.
func jitterLevel(level float64) float64 {
	return clampLevel(level + rand.Float64()*10 - 5)
}

func clampLevel(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
