// Package hls fetches and parses HLS playlists for the monitor.
package hls

import (
	"bytes"
	"fmt"

	"github.com/mogiioin/hls-m3u8/m3u8"
)

// Manifest is the parsed view of an HLS playlist consumed by the evaluator.
// A master playlist carries Variants; a media playlist carries Segments and
// the sequence/freshness tags.
type Manifest struct {
	IsMaster              bool
	Variants              []Variant
	Segments              []Segment
	MediaSequence         int64
	TargetDuration        int
	DiscontinuitySequence int64
	PlaylistType          string
}

// Variant is one rendition referenced from a master playlist.
type Variant struct {
	URI        string
	Bandwidth  int64
	Resolution string // "WxH" or empty
}

// Segment is one media segment from a media playlist.
type Segment struct {
	URI           string
	Duration      float64
	Discontinuity bool
}

// Parse decodes raw playlist bytes into a Manifest.
func Parse(data []byte) (*Manifest, error) {
	playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(data), false)
	if err != nil {
		return nil, fmt.Errorf("decoding playlist: %w", err)
	}

	switch listType {
	case m3u8.MASTER:
		master, ok := playlist.(*m3u8.MasterPlaylist)
		if !ok {
			return nil, fmt.Errorf("unexpected playlist type %T", playlist)
		}
		return fromMaster(master), nil
	case m3u8.MEDIA:
		media, ok := playlist.(*m3u8.MediaPlaylist)
		if !ok {
			return nil, fmt.Errorf("unexpected playlist type %T", playlist)
		}
		return fromMedia(media), nil
	default:
		return nil, fmt.Errorf("unrecognized playlist type")
	}
}

func fromMaster(master *m3u8.MasterPlaylist) *Manifest {
	manifest := &Manifest{IsMaster: true}
	for _, v := range master.Variants {
		if v == nil {
			continue
		}
		manifest.Variants = append(manifest.Variants, Variant{
			URI:        v.URI,
			Bandwidth:  int64(v.Bandwidth),
			Resolution: v.Resolution,
		})
	}
	return manifest
}

func fromMedia(media *m3u8.MediaPlaylist) *Manifest {
	manifest := &Manifest{
		MediaSequence:         int64(media.SeqNo),
		TargetDuration:        int(media.TargetDuration),
		DiscontinuitySequence: int64(media.DiscontinuitySeq),
		PlaylistType:          playlistTypeString(media.MediaType),
	}
	// The decoder's segment slice is ring-buffer backed and may hold nils.
	for _, seg := range media.Segments {
		if seg == nil {
			continue
		}
		manifest.Segments = append(manifest.Segments, Segment{
			URI:           seg.URI,
			Duration:      seg.Duration,
			Discontinuity: seg.Discontinuity,
		})
	}
	return manifest
}

func playlistTypeString(t m3u8.MediaType) string {
	switch t {
	case m3u8.EVENT:
		return "EVENT"
	case m3u8.VOD:
		return "VOD"
	default:
		return ""
	}
}

// LastSegment returns the newest segment in the playlist, or nil when empty.
func (m *Manifest) LastSegment() *Segment {
	if len(m.Segments) == 0 {
		return nil
	}
	return &m.Segments[len(m.Segments)-1]
}

// DiscontinuityCount returns the number of segments flagged with
// EXT-X-DISCONTINUITY.
func (m *Manifest) DiscontinuityCount() int {
	count := 0
	for _, seg := range m.Segments {
		if seg.Discontinuity {
			count++
		}
	}
	return count
}
