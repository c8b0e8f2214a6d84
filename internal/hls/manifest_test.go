package hls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMediaPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:100
#EXT-X-DISCONTINUITY-SEQUENCE:2
#EXTINF:6.000,
seg100.ts
#EXTINF:6.000,
seg101.ts
#EXT-X-DISCONTINUITY
#EXTINF:6.000,
seg102.ts
#EXTINF:5.500,
seg103.ts
`

const sampleMasterPlaylist = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=4500000,RESOLUTION=1920x1080,FRAME-RATE=25.000
hd/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=1500000,RESOLUTION=1280x720
sd/index.m3u8
`

func TestParse_MediaPlaylist(t *testing.T) {
	m, err := Parse([]byte(sampleMediaPlaylist))
	require.NoError(t, err)

	assert.False(t, m.IsMaster)
	assert.Equal(t, int64(100), m.MediaSequence)
	assert.Equal(t, 6, m.TargetDuration)
	assert.Equal(t, int64(2), m.DiscontinuitySequence)
	require.Len(t, m.Segments, 4)
	assert.Equal(t, "seg100.ts", m.Segments[0].URI)
	assert.InDelta(t, 6.0, m.Segments[0].Duration, 0.001)
	assert.False(t, m.Segments[0].Discontinuity)
	assert.True(t, m.Segments[2].Discontinuity)
	assert.Equal(t, 1, m.DiscontinuityCount())

	last := m.LastSegment()
	require.NotNil(t, last)
	assert.Equal(t, "seg103.ts", last.URI)
}

func TestParse_MasterPlaylist(t *testing.T) {
	m, err := Parse([]byte(sampleMasterPlaylist))
	require.NoError(t, err)

	assert.True(t, m.IsMaster)
	require.Len(t, m.Variants, 2)
	assert.Equal(t, "hd/index.m3u8", m.Variants[0].URI)
	assert.Equal(t, int64(4500000), m.Variants[0].Bandwidth)
	assert.Equal(t, "1920x1080", m.Variants[0].Resolution)
}

func TestParse_VODPlaylistType(t *testing.T) {
	playlist := `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-PLAYLIST-TYPE:VOD
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:6.000,
seg0.ts
#EXT-X-ENDLIST
`
	m, err := Parse([]byte(playlist))
	require.NoError(t, err)
	assert.Equal(t, "VOD", m.PlaylistType)
}

func TestParse_Garbage(t *testing.T) {
	_, err := Parse([]byte("this is not a playlist"))
	assert.Error(t, err)
}

func TestLastSegment_Empty(t *testing.T) {
	m := &Manifest{}
	assert.Nil(t, m.LastSegment())
}

func TestResolveURI(t *testing.T) {
	tests := []struct {
		name string
		base string
		ref  string
		want string
	}{
		{
			name: "relative replaces basename",
			base: "http://example.com/live/master.m3u8",
			ref:  "chunklist.m3u8",
			want: "http://example.com/live/chunklist.m3u8",
		},
		{
			name: "absolute kept verbatim",
			base: "http://example.com/live/master.m3u8",
			ref:  "https://cdn.example.com/hd/index.m3u8",
			want: "https://cdn.example.com/hd/index.m3u8",
		},
		{
			name: "relative with path prefix",
			base: "http://example.com/live/master.m3u8",
			ref:  "hd/index.m3u8",
			want: "http://example.com/live/hd/index.m3u8",
		},
		{
			name: "empty ref returns base",
			base: "http://example.com/live/master.m3u8",
			ref:  "",
			want: "http://example.com/live/master.m3u8",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveURI(tt.base, tt.ref))
		})
	}
}
