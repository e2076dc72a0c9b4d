package resolve

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/mircov/lessongrab"
	"github.com/mircov/lessongrab/generic"
	"github.com/mircov/lessongrab/internal/fetch"
	"github.com/mircov/lessongrab/util"
)

// segmentExtensions are the file extensions a playlist content line may end
// in (before any query string) to count as a direct segment reference.
var segmentExtensions = generic.NewSet(
	"ts",
	"m4s",
	"mp4",
	"m4v",
	"m4a",
	"aac",
)

var mapURIPattern = regexp.MustCompile(`URI="([^"]+)"`)

const initDirectivePrefix = "#EXT-X-MAP"

// PlaylistResolver resolves line-oriented segmented playlists, following at
// most one master → media hop, into an ordered segment list with any init
// segment first.
type PlaylistResolver struct {
	client fetch.Client
	log    *zap.SugaredLogger
}

func NewPlaylistResolver(client fetch.Client) *PlaylistResolver {
	return &PlaylistResolver{
		client: client,
		log:    zap.S().Named("playlist"),
	}
}

func (r *PlaylistResolver) Resolve(ctx context.Context, playlistURL string) (*Plan, error) {
	text, err := r.client.FetchText(ctx, playlistURL)
	if err != nil {
		return nil, err
	}

	baseURL := playlistURL
	if !hasSegmentLine(text) {
		// Master-level playlist: the last content line points at the media
		// playlist. Exactly one additional hop, no deeper recursion.
		mediaRef := lastContentLine(text)
		if mediaRef == "" {
			return nil, &lessongrab.ParseError{URL: playlistURL, Err: errors.New("master playlist has no media playlist reference")}
		}
		mediaURL, err := util.ResolveHTTP(playlistURL, mediaRef)
		if err != nil {
			return nil, &lessongrab.ParseError{URL: playlistURL, Err: fmt.Errorf("cannot resolve media playlist reference %q: %w", mediaRef, err)}
		}
		r.log.Debugw("following master playlist", "master", playlistURL, "media", mediaURL)
		if text, err = r.client.FetchText(ctx, mediaURL); err != nil {
			return nil, err
		}
		baseURL = mediaURL
	}

	var segments []Chunk
	var initURL string
	for _, line := range playlistLines(text) {
		if strings.HasPrefix(line, "#") {
			// The last init-segment directive encountered wins.
			if uri := initSegmentURI(line); uri != "" {
				if resolved, err := util.ResolveHTTP(baseURL, uri); err == nil {
					initURL = resolved
				}
			}
			continue
		}
		resolved, err := util.ResolveHTTP(baseURL, line)
		if err != nil {
			r.log.Debugw("discarding unresolvable segment line", "line", line, "error", err)
			continue
		}
		segments = append(segments, URLChunk(resolved))
	}
	if initURL != "" {
		segments = append([]Chunk{URLChunk(initURL)}, segments...)
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("playlist %s: %w", baseURL, lessongrab.ErrNoSegments)
	}
	return &Plan{
		Chunks:       segments,
		SegmentCount: len(segments),
		MimeType:     "video/mp2t",
		Extension:    "ts",
		Family:       FamilyPlaylist,
	}, nil
}

// playlistLines splits a playlist body into trimmed, non-empty lines.
func playlistLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func hasSegmentLine(text string) bool {
	for _, line := range playlistLines(text) {
		if !strings.HasPrefix(line, "#") && looksLikeSegment(line) {
			return true
		}
	}
	return false
}

func lastContentLine(text string) string {
	last := ""
	for _, line := range playlistLines(text) {
		if !strings.HasPrefix(line, "#") {
			last = line
		}
	}
	return last
}

func looksLikeSegment(line string) bool {
	// A query string doesn't stop a line being a segment reference.
	if i := strings.IndexByte(line, '?'); i >= 0 {
		line = line[:i]
	}
	i := strings.LastIndexByte(line, '.')
	if i < 0 {
		return false
	}
	return segmentExtensions.Contains(strings.ToLower(line[i+1:]))
}

func initSegmentURI(directive string) string {
	if !strings.HasPrefix(directive, initDirectivePrefix) {
		return ""
	}
	m := mapURIPattern.FindStringSubmatch(directive)
	if m == nil {
		return ""
	}
	return m[1]
}
