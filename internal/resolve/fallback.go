package resolve

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/mircov/lessongrab"
	"github.com/mircov/lessongrab/internal/fetch"
)

// EmbeddedSources are values scraped from an embedded player frame by an
// external collaborator; empty fields mean the collaborator found nothing.
type EmbeddedSources struct {
	PlayerPageURL  string
	ProgressiveURL string
	HLSURL         string
	DashURL        string
}

// FallbackInputs parameterize one run of the fallback cascade for a manifest
// that resolved to video-only content.
type FallbackInputs struct {
	// ManifestURL is the adaptive-manifest URL that raised the remux signal.
	ManifestURL string
	// OutputName is the filename to surface in a remux instruction.
	OutputName       string
	Embedded         EmbeddedSources
	PlayerPageURL    string
	ReferringPageURL string
}

var playerPageURLPattern = regexp.MustCompile(`https://player\.vimeo\.com/video/[0-9]+`)

// The rendition selector that excludes AV1/HEVC ladders; stripped when
// regenerating a playlist URL so an AVC-compatible ladder stays available.
const codecExclusionToken = "av1-hevc"

// FallbackOrchestrator walks the remux-avoidance cascade: frame progressive
// → player page → external-mux instruction → regenerated plain-segment
// playlist. Progressive wins because it needs no muxing at all; the
// regenerated playlist comes last because it re-derives a URL heuristically
// instead of following declared data.
type FallbackOrchestrator struct {
	playlists *PlaylistResolver
	players   *PlayerResolver
	client    fetch.Client
	log       *zap.SugaredLogger
}

func NewFallbackOrchestrator(client fetch.Client, playlists *PlaylistResolver, players *PlayerResolver) *FallbackOrchestrator {
	return &FallbackOrchestrator{
		playlists: playlists,
		players:   players,
		client:    client,
		log:       zap.S().Named("fallback"),
	}
}

func (o *FallbackOrchestrator) Resolve(ctx context.Context, in FallbackInputs) (*Plan, error) {
	if in.Embedded.ProgressiveURL != "" {
		o.log.Debugw("using frame-supplied progressive file", "url", in.Embedded.ProgressiveURL)
		return ProgressivePlan(in.Embedded.ProgressiveURL), nil
	}

	// A frame-supplied manifest is a candidate for external muxing unless a
	// later step finds something better.
	muxCandidate := in.Embedded.HLSURL
	if muxCandidate == "" {
		muxCandidate = in.Embedded.DashURL
	}

	playerURL := in.PlayerPageURL
	if playerURL == "" {
		playerURL = in.Embedded.PlayerPageURL
	}
	if playerURL == "" && in.ReferringPageURL != "" {
		playerURL = o.discoverPlayerPage(ctx, in.ReferringPageURL)
	}
	if playerURL != "" {
		result, err := o.players.Resolve(ctx, playerURL, PlayerOptions{PreferHLS: true})
		switch {
		case err == nil && result.ProgressiveURL != "":
			return ProgressivePlan(result.ProgressiveURL), nil
		case err == nil && result.ManifestURL != "":
			muxCandidate = result.ManifestURL
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			o.log.Debugw("player page fallback failed", "url", playerURL, "error", err)
		}
	}

	if muxCandidate != "" {
		return nil, &lessongrab.RemuxRequiredError{
			ManifestURL: muxCandidate,
			Filename:    in.OutputName,
			Command:     remuxCommand(muxCandidate, in.OutputName),
		}
	}

	tsURL, err := regeneratePlaylistURL(in.ManifestURL)
	if err != nil {
		return nil, fmt.Errorf("cannot derive playlist variant of %s: %w", in.ManifestURL, err)
	}
	o.log.Debugw("attempting regenerated playlist", "url", tsURL)
	return o.playlists.Resolve(ctx, tsURL)
}

// discoverPlayerPage fetches a referring page and pattern-matches the first
// embedded player-page URL out of its HTML. Best-effort.
func (o *FallbackOrchestrator) discoverPlayerPage(ctx context.Context, referringURL string) string {
	html, err := o.client.FetchText(ctx, referringURL)
	if err != nil {
		o.log.Debugw("cannot fetch referring page", "url", referringURL, "error", err)
		return ""
	}
	// Player URLs are often embedded with escaped slashes.
	html = strings.ReplaceAll(html, `\/`, "/")
	return playerPageURLPattern.FindString(html)
}

// ProgressivePlan wraps a single complete file URL as a one-chunk plan.
func ProgressivePlan(progressiveURL string) *Plan {
	return &Plan{
		Chunks:       []Chunk{URLChunk(progressiveURL)},
		SegmentCount: 1,
		MimeType:     "video/mp4",
		Extension:    "mp4",
		Family:       FamilyProgressive,
	}
}

func remuxCommand(manifestURL string, outputName string) string {
	return fmt.Sprintf(`ffmpeg -i "%s" -c copy "%s"`, manifestURL, outputName)
}

// regeneratePlaylistURL derives the plain-segment sibling of an adaptive
// manifest URL: same path family, playlist rendition instead of the
// fragmented-MP4 manifest, and any AV1/HEVC-exclusion filter stripped.
func regeneratePlaylistURL(manifestURL string) (string, error) {
	parsedURL, err := url.Parse(manifestURL)
	if err != nil {
		return "", err
	}
	if !strings.HasSuffix(parsedURL.Path, ".json") {
		return "", fmt.Errorf("no manifest filename in path %q", parsedURL.Path)
	}
	parsedURL.Path = strings.TrimSuffix(parsedURL.Path, ".json") + ".m3u8"

	query := parsedURL.Query()
	if omit := query.Get("omit"); omit != "" {
		var kept []string
		for _, token := range strings.Split(omit, ",") {
			if token != codecExclusionToken {
				kept = append(kept, token)
			}
		}
		if len(kept) == 0 {
			query.Del("omit")
		} else {
			query.Set("omit", strings.Join(kept, ","))
		}
		parsedURL.RawQuery = query.Encode()
	}
	return parsedURL.String(), nil
}
