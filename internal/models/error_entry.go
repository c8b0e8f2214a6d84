package models

import (
	"crypto/rand"
	"fmt"
	"time"
)

// Ledger error types.
const (
	ErrorTypeManifestRetrieval     = "Manifest Retrieval"
	ErrorTypeMediaSequence         = "Media Sequence"
	ErrorTypePlaylistSize          = "Playlist Size"
	ErrorTypePlaylistContent       = "Playlist Content"
	ErrorTypeSegmentContinuity     = "Segment Continuity"
	ErrorTypeDiscontinuitySequence = "Discontinuity Sequence"
	ErrorTypeStaleManifest         = "Stale Manifest"
)

// ErrorRetention is how long ledger entries are kept on a stream record.
const ErrorRetention = 7 * 24 * time.Hour

// ErrorEntry is a single ledger entry on a stream record.
type ErrorEntry struct {
	EID       string    `json:"eid"`
	Date      time.Time `json:"date"`
	ErrorType string    `json:"errorType"`
	MediaType string    `json:"mediaType"`
	Variant   string    `json:"variant"`
	Details   string    `json:"details"`
	Code      *int      `json:"code,omitempty"`
}

// ErrorList is an ordered sequence of ledger entries, stored as a JSON column.
type ErrorList []ErrorEntry

// NewErrorID builds a ledger entry identifier of the form
// eid-<unix-ms>-<9-char-base36>.
func NewErrorID(now time.Time) string {
	const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"
	buf := make([]byte, 9)
	// crypto/rand never fails on supported platforms; a zeroed buffer still
	// yields a valid (if less unique) suffix.
	_, _ = rand.Read(buf)
	for i := range buf {
		buf[i] = base36[int(buf[i])%len(base36)]
	}
	return fmt.Sprintf("eid-%d-%s", now.UnixMilli(), string(buf))
}

// AppendError records a new ledger entry on the stream: fresh eid, date = now,
// variant = current bandwidth. Increments totalErrors and stamps the error
// time fields.
func (s *Stream) AppendError(errorType, details, mediaType string, code *int, now time.Time) ErrorEntry {
	if mediaType == "" {
		mediaType = "VIDEO"
	}
	entry := ErrorEntry{
		EID:       NewErrorID(now),
		Date:      now,
		ErrorType: errorType,
		MediaType: mediaType,
		Variant:   s.VariantLabel(),
		Details:   details,
		Code:      code,
	}
	s.StreamErrors = append(s.StreamErrors, entry)
	s.Health.TotalErrors++
	s.Health.TimeSinceLastError = 0
	t := now
	s.Health.LastErrorTime = &t
	return entry
}

// Prune returns the list aged out at the default retention horizon.
func (l ErrorList) Prune(now time.Time) ErrorList {
	return l.PruneBefore(now.Add(-ErrorRetention))
}

// PruneBefore returns the list with expired and malformed entries removed.
// Entries dated before the cutoff are dropped, as are entries with a zero
// date. The input list is not modified.
func (l ErrorList) PruneBefore(cutoff time.Time) ErrorList {
	if len(l) == 0 {
		return l
	}
	kept := make(ErrorList, 0, len(l))
	for _, e := range l {
		if e.Date.IsZero() || e.Date.Before(cutoff) {
			continue
		}
		kept = append(kept, e)
	}
	return kept
}
