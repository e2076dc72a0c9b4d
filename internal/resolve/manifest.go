package resolve

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mircov/lessongrab"
	"github.com/mircov/lessongrab/internal/fetch"
	"github.com/mircov/lessongrab/util"
)

// Manifest is the top-level adaptive-manifest document: per-family track
// arrays plus an optional manifest-level base URL. Fields the wire format
// may omit stay zero-valued and are defaulted per the selection rules.
type Manifest struct {
	BaseURL    string  `json:"base_url"`
	Muxed      []Track `json:"muxed"`
	AudioVideo []Track `json:"audio_video"`
	Video      []Track `json:"video"`
	Audio      []Track `json:"audio"`
}

// Track is one quality/codec variant inside an adaptive manifest.
type Track struct {
	ID          string       `json:"id"`
	Height      int          `json:"height"`
	MaxHeight   int          `json:"max_height"`
	Width       int          `json:"width"`
	Bitrate     int64        `json:"bitrate"`
	AvgBitrate  int64        `json:"avg_bitrate"`
	Bandwidth   int64        `json:"bandwidth"`
	BaseURL     string       `json:"base_url"`
	URL         string       `json:"url"`
	InitSegment string       `json:"init_segment"`
	Segments    []SegmentRef `json:"segments"`
	Codecs      string       `json:"codecs"`
	MimeType    string       `json:"mime_type"`
	AudioCodec  string       `json:"audio_codec"`
	Channels    int          `json:"channels"`
	HasAudio    *bool        `json:"has_audio"`
}

// SegmentRef is one segment reference: on the wire either a bare string or
// an object exposing a url/uri/path field.
type SegmentRef struct {
	URL string
}

func (s *SegmentRef) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		s.URL = str
		return nil
	}
	var obj struct {
		URL  string `json:"url"`
		URI  string `json:"uri"`
		Path string `json:"path"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	for _, candidate := range []string{obj.URL, obj.URI, obj.Path} {
		if candidate != "" {
			s.URL = candidate
			return nil
		}
	}
	return nil
}

func (s SegmentRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.URL)
}

// usable means the track can produce bytes at all: it has segments or a
// direct URL.
func (t *Track) usable() bool {
	return len(t.Segments) > 0 || t.URL != ""
}

func (t *Track) height() int {
	if t.MaxHeight > t.Height {
		return t.MaxHeight
	}
	return t.Height
}

func (t *Track) bitrate() int64 {
	max := t.Bitrate
	if t.AvgBitrate > max {
		max = t.AvgBitrate
	}
	if t.Bandwidth > max {
		max = t.Bandwidth
	}
	return max
}

// audioCodecTokens are codec-string fragments that indicate an audio stream
// is present inside the container.
var audioCodecTokens = []string{
	"mp4a",
	"aac",
	"opus",
	"ac-3",
	"ec-3",
	"vorbis",
}

// hasAudioSignal reports whether a video track exhibits any embedded-audio
// signal: an explicit flag, a positive channel count, a non-"none" audio
// codec field, a known audio codec token, or an audio MIME string.
func (t *Track) hasAudioSignal() bool {
	if t.HasAudio != nil && *t.HasAudio {
		return true
	}
	if t.Channels > 0 {
		return true
	}
	if t.AudioCodec != "" && !strings.EqualFold(t.AudioCodec, "none") {
		return true
	}
	codecs := strings.ToLower(t.Codecs)
	for _, token := range audioCodecTokens {
		if strings.Contains(codecs, token) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(t.MimeType), "audio")
}

// ManifestResolver parses a JSON adaptive manifest, runs the track-selection
// cascade, and resolves the chosen track's segments into a download plan.
type ManifestResolver struct {
	client fetch.Client
	log    *zap.SugaredLogger
}

func NewManifestResolver(client fetch.Client) *ManifestResolver {
	return &ManifestResolver{
		client: client,
		log:    zap.S().Named("manifest"),
	}
}

func (r *ManifestResolver) Resolve(ctx context.Context, manifestURL string) (*Plan, error) {
	text, err := r.client.FetchText(ctx, manifestURL)
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal([]byte(text), &manifest); err != nil {
		return nil, &lessongrab.ParseError{URL: manifestURL, Err: err}
	}
	track, family, err := selectTrack(&manifest, manifestURL)
	if err != nil {
		return nil, err
	}
	r.log.Debugw("selected track", "id", track.ID, "family", family, "height", track.height(), "bitrate", track.bitrate())
	return buildPlan(track, family, &manifest, manifestURL)
}

// selectTrack walks the family cascade in strict priority order. Video-only
// content with a separate audio track is reported as NeedsRemuxError so the
// caller can run the fallback cascade; video-only content with no audio at
// all is refused outright.
func selectTrack(m *Manifest, manifestURL string) (*Track, Family, error) {
	if best := bestUsable(m.Muxed, nil); best != nil {
		return best, FamilyMuxed, nil
	}
	if best := bestUsable(m.AudioVideo, nil); best != nil {
		return best, FamilyAudioVideo, nil
	}
	if anyUsable(m.Video) {
		if best := bestUsable(m.Video, (*Track).hasAudioSignal); best != nil {
			return best, FamilyVideoEmbeddedAudio, nil
		}
		if anyUsable(m.Audio) {
			return nil, "", &lessongrab.NeedsRemuxError{ManifestURL: manifestURL}
		}
	}
	return nil, "", fmt.Errorf("manifest %s: %w", manifestURL, lessongrab.ErrNoUsableTrack)
}

func anyUsable(tracks []Track) bool {
	for i := range tracks {
		if tracks[i].usable() {
			return true
		}
	}
	return false
}

// bestUsable picks the highest-quality usable track, optionally restricted
// to tracks passing the filter.
func bestUsable(tracks []Track, filter func(*Track) bool) *Track {
	var best *Track
	for i := range tracks {
		t := &tracks[i]
		if !t.usable() || (filter != nil && !filter(t)) {
			continue
		}
		if best == nil || betterQuality(t.height(), t.bitrate(), len(t.Segments), best.height(), best.bitrate(), len(best.Segments)) {
			best = t
		}
	}
	return best
}

func buildPlan(track *Track, family Family, manifest *Manifest, manifestURL string) (*Plan, error) {
	bases := baseCandidates(manifestURL, manifest.BaseURL, track.BaseURL)

	var chunks []Chunk
	if track.InitSegment != "" {
		data, err := decodeInitSegment(track.InitSegment)
		if err != nil {
			return nil, &lessongrab.ParseError{URL: manifestURL, Err: fmt.Errorf("invalid init segment: %w", err)}
		}
		chunks = append(chunks, DataChunk(data))
	}
	for _, ref := range track.Segments {
		if ref.URL == "" {
			continue
		}
		if resolved, ok := resolveAgainst(bases, ref.URL); ok {
			chunks = append(chunks, URLChunk(resolved))
		}
	}
	if len(track.Segments) == 0 && track.URL != "" {
		// Single-file fallback for tracks that expose only a direct URL.
		if resolved, ok := resolveAgainst(bases, track.URL); ok {
			chunks = append(chunks, URLChunk(resolved))
		}
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("manifest %s: %w", manifestURL, lessongrab.ErrNoSegments)
	}

	mimeType := track.MimeType
	if mimeType == "" {
		mimeType = "video/mp4"
	}
	return &Plan{
		Chunks:       chunks,
		SegmentCount: len(chunks),
		MimeType:     mimeType,
		Extension:    extensionForMime(mimeType),
		Family:       family,
	}, nil
}

// baseCandidates computes the base-URL fallback chain in priority order:
// track base (resolved against the manifest base, itself resolved against
// the manifest URL), then manifest base, then the manifest URL itself.
func baseCandidates(manifestURL string, manifestBase string, trackBase string) []string {
	var candidates []string
	manifestLevel := manifestURL
	if manifestBase != "" {
		if resolved, err := util.ResolveHTTP(manifestURL, manifestBase); err == nil {
			manifestLevel = resolved
		}
	}
	if trackBase != "" {
		if resolved, err := util.ResolveHTTP(manifestLevel, trackBase); err == nil {
			candidates = append(candidates, resolved)
		}
	}
	if manifestLevel != manifestURL {
		candidates = append(candidates, manifestLevel)
	}
	return append(candidates, manifestURL)
}

func resolveAgainst(bases []string, ref string) (string, bool) {
	for _, base := range bases {
		if resolved, err := util.ResolveHTTP(base, ref); err == nil {
			return resolved, true
		}
	}
	return "", false
}

// decodeInitSegment decodes the inline base64 initialization payload; this
// is never a network fetch. Both padded and unpadded encodings appear in the
// wild.
func decodeInitSegment(encoded string) ([]byte, error) {
	if data, err := base64.StdEncoding.DecodeString(encoded); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(encoded)
}

func extensionForMime(mimeType string) string {
	mimeType = strings.ToLower(mimeType)
	switch {
	case strings.Contains(mimeType, "mp4"):
		return "mp4"
	case strings.Contains(mimeType, "mpegurl"):
		return "m3u8"
	default:
		return "bin"
	}
}
