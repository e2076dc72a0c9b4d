// Package resolve turns one classified source URL into an ordered download
// plan: the segmented-playlist, adaptive-manifest and player-page resolvers,
// plus the fallback cascade that avoids emitting silent video.
package resolve

// A Chunk is one unit of the final assembly: either a resolved absolute URL
// still to be fetched, or inline bytes (a decoded init segment). Array order
// is playback order, fixed before any byte is fetched.
type Chunk struct {
	URL  string
	Data []byte
}

func URLChunk(url string) Chunk {
	return Chunk{URL: url}
}

func DataChunk(data []byte) Chunk {
	return Chunk{Data: data}
}

// Inline reports whether the chunk already carries its bytes.
func (c Chunk) Inline() bool {
	return c.Data != nil
}

// Family describes the audio/video composition of the selected source.
type Family string

const (
	FamilyMuxed              Family = "muxed"
	FamilyAudioVideo         Family = "audio_video"
	FamilyVideoEmbeddedAudio Family = "video_embedded_audio"
	FamilyProgressive        Family = "progressive"
	FamilyPlaylist           Family = "playlist"
)

// A Plan is the fully resolved download plan for one media source.
type Plan struct {
	Chunks       []Chunk
	SegmentCount int
	MimeType     string
	Extension    string
	Family       Family
}

// betterQuality reports whether quality (height1, bitrate1, segments1) beats
// (height2, bitrate2, segments2): height first, then bitrate, then segment
// count as a last-resort signal of completeness.
func betterQuality(height1 int, bitrate1 int64, segments1 int, height2 int, bitrate2 int64, segments2 int) bool {
	if height1 != height2 {
		return height1 > height2
	}
	if bitrate1 != bitrate2 {
		return bitrate1 > bitrate2
	}
	return segments1 > segments2
}
