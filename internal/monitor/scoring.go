package monitor

import (
	"math"
	"strings"
	"time"

	"github.com/jmylchreest/streampulse/internal/models"
)

// DefaultWindowSpan is the sliding window used for recent-issue counts.
const DefaultWindowSpan = 12 * time.Minute

// RecentIssues is the sliding-window snapshot of ledger activity.
type RecentIssues struct {
	Jumps  int
	Resets int
	Errors int
}

// WindowIssues classifies ledger entries within the window ending at now.
// Every windowed entry counts as an error; jumps and resets are additionally
// matched by error type or by their detail text.
func WindowIssues(list models.ErrorList, now time.Time, span time.Duration) RecentIssues {
	if span <= 0 {
		span = DefaultWindowSpan
	}
	cutoff := now.Add(-span)

	var recent RecentIssues
	for _, entry := range list {
		if entry.Date.Before(cutoff) {
			continue
		}
		// The equality checks are kept alongside the substring matches for
		// forward compatibility with typed ledger entries.
		if entry.ErrorType == "SEQUENCE_RESET" || strings.Contains(entry.Details, "reset") {
			recent.Resets++
		}
		if entry.ErrorType == "SEQUENCE_JUMP" || strings.Contains(entry.Details, "Sequence jumped") {
			recent.Jumps++
		}
		recent.Errors++
	}
	return recent
}

// DecayFactor maps the time since the last error to a forgiveness weight in
// [0, 1]. A stream with no errors ever is fully forgiven; recent errors
// weigh in full.
func DecayFactor(lastErrorTime *time.Time, now time.Time) float64 {
	if lastErrorTime == nil {
		return 1.0
	}
	hours := now.Sub(*lastErrorTime).Hours()
	if math.IsNaN(hours) || hours < 0 {
		return 0.0
	}
	switch {
	case hours < 1:
		return 0.0
	case hours < 6:
		return 0.25
	case hours < 24:
		return 0.5
	case hours < 72:
		return 0.75
	default:
		return 0.9
	}
}

// Penalty caps for the health score.
const (
	stalePenalty   = 30
	errorPenalty   = 40
	offlinePenalty = 50

	jumpWeight  = 5
	resetWeight = 10
	errorWeight = 2

	jumpCap  = 20
	resetCap = 30
	errorCap = 20
)

// HealthScore computes the overall health score in [0, 100]. Status
// penalties are additive. Recent-issue penalties are scaled by 1-decay so a
// quiet history nullifies them. When recent is nil the all-time counters are
// used with the same caps and no decay.
func HealthScore(stream *models.Stream, recent *RecentIssues, decay float64) float64 {
	score := 100.0

	if stream.Health.IsStale {
		score -= stalePenalty
	}
	if stream.Status == models.StreamStatusError {
		score -= errorPenalty
	}
	if stream.Status == models.StreamStatusOffline {
		score -= offlinePenalty
	}

	if recent != nil {
		pen := 1 - decay
		score -= math.Min(float64(recent.Jumps*jumpWeight), jumpCap) * pen
		score -= math.Min(float64(recent.Resets*resetWeight), resetCap) * pen
		score -= math.Min(float64(recent.Errors*errorWeight), errorCap) * pen
	} else {
		score -= math.Min(float64(stream.Health.SequenceJumps*jumpWeight), jumpCap)
		score -= math.Min(float64(stream.Health.SequenceResets*resetWeight), resetCap)
		score -= math.Min(float64(stream.Health.TotalErrors*errorWeight), errorCap)
	}

	return clampScore(score)
}

// VideoScore rates the probed video stats in [0, 100]. Absent stats mean
// "unknown", not perfect.
func VideoScore(stream *models.Stream) float64 {
	if stream.Stats == nil || stream.Stats.Video == nil {
		return 50
	}
	score := 100.0
	video := stream.Stats.Video
	if video.Codec == "" {
		score -= 20
	}
	if video.Width < 720 {
		score -= 10
	}
	return clampScore(score)
}

// AudioScore rates the probed audio stats in [0, 100].
func AudioScore(stream *models.Stream) float64 {
	if stream.Stats == nil || stream.Stats.Audio == nil {
		return 50
	}
	score := 100.0
	audio := stream.Stats.Audio
	if audio.Codec == "" {
		score -= 20
	}
	if audio.SampleRate < 44100 {
		score -= 10
	}
	if audio.IsSilent {
		score -= 15
	}
	return clampScore(score)
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
