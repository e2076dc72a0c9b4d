package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/mircov/lessongrab"
	"github.com/mircov/lessongrab/internal/fetch"
	"github.com/mircov/lessongrab/util"
)

// configMarkers are the assignment markers that precede the embedded player
// configuration object, tried in order.
var configMarkers = []string{
	"window.playerConfig =",
	"var config =",
}

type PlayerOptions struct {
	// PreferHLS orders the hls block before the dash block when no
	// progressive file is available.
	PreferHLS bool
	// SkipProgressive disables the progressive short-circuit entirely.
	SkipProgressive bool
}

// PlayerResult is either a progressive (single complete file) URL or an
// adaptive manifest URL; exactly one is set.
type PlayerResult struct {
	ProgressiveURL string
	ManifestURL    string
}

type progressiveFile struct {
	URL     string `json:"url"`
	Height  int    `json:"height"`
	Width   int    `json:"width"`
	Bitrate int64  `json:"bitrate"`
}

type cdnEntry struct {
	URL    string `json:"url"`
	AVCURL string `json:"avc_url"`
}

func (e *cdnEntry) usable() bool {
	return e.URL != "" || e.AVCURL != ""
}

func (e *cdnEntry) manifestURL() string {
	if e.URL != "" {
		return e.URL
	}
	return e.AVCURL
}

type cdnBlock struct {
	DefaultCDN string              `json:"default_cdn"`
	CDNs       map[string]cdnEntry `json:"cdns"`
}

type playerFiles struct {
	Progressive []progressiveFile `json:"progressive"`
	HLS         cdnBlock          `json:"hls"`
	Dash        cdnBlock          `json:"dash"`
}

type playerConfig struct {
	Request struct {
		Files playerFiles `json:"files"`
	} `json:"request"`
}

// PlayerResolver fetches an HTML player page, extracts the embedded JSON
// configuration object by brace-matching, and derives a progressive file or
// a manifest URL from it.
type PlayerResolver struct {
	client fetch.Client
	log    *zap.SugaredLogger
}

func NewPlayerResolver(client fetch.Client) *PlayerResolver {
	return &PlayerResolver{
		client: client,
		log:    zap.S().Named("player"),
	}
}

func (r *PlayerResolver) Resolve(ctx context.Context, pageURL string, opts PlayerOptions) (*PlayerResult, error) {
	html, err := r.client.FetchText(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	configText, err := extractConfigObject(html)
	if err != nil {
		return nil, &lessongrab.ParseError{URL: pageURL, Err: err}
	}
	var config playerConfig
	if err := json.Unmarshal([]byte(configText), &config); err != nil {
		return nil, &lessongrab.ParseError{URL: pageURL, Err: fmt.Errorf("embedded config is not valid JSON: %w", err)}
	}
	files := &config.Request.Files

	// Progressive is always preferred: it needs no further segment assembly.
	if !opts.SkipProgressive {
		if best := bestProgressive(files.Progressive); best != nil {
			resolved, err := util.ResolveHTTP(pageURL, best.URL)
			if err != nil {
				return nil, &lessongrab.ParseError{URL: pageURL, Err: fmt.Errorf("invalid progressive URL %q: %w", best.URL, err)}
			}
			r.log.Debugw("selected progressive file", "height", best.Height, "url", resolved)
			return &PlayerResult{ProgressiveURL: resolved}, nil
		}
	}

	blocks := []*cdnBlock{&files.Dash, &files.HLS}
	if opts.PreferHLS {
		blocks = []*cdnBlock{&files.HLS, &files.Dash}
	}
	for _, block := range blocks {
		entry := pickCDNEntry(block)
		if entry == nil {
			continue
		}
		resolved, err := util.ResolveHTTP(pageURL, entry.manifestURL())
		if err != nil {
			continue
		}
		return &PlayerResult{ManifestURL: resolved}, nil
	}
	return nil, fmt.Errorf("player page %s: %w", pageURL, lessongrab.ErrNoUsableTrack)
}

func bestProgressive(files []progressiveFile) *progressiveFile {
	var best *progressiveFile
	for i := range files {
		f := &files[i]
		if f.URL == "" {
			continue
		}
		if best == nil || betterQuality(f.Height, f.Bitrate, 0, best.Height, best.Bitrate, 0) {
			best = f
		}
	}
	return best
}

// pickCDNEntry prefers the entry named by the block's default-CDN key, then
// falls back to the first usable entry in key order.
func pickCDNEntry(block *cdnBlock) *cdnEntry {
	if entry, ok := block.CDNs[block.DefaultCDN]; ok && entry.usable() {
		return &entry
	}
	keys := make([]string, 0, len(block.CDNs))
	for key := range block.CDNs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if entry := block.CDNs[key]; entry.usable() {
			return &entry
		}
	}
	return nil
}

// extractConfigObject locates the first configuration assignment marker and
// returns the balanced brace-delimited object that follows it, respecting
// quoted-string contents and backslash escapes.
func extractConfigObject(html string) (string, error) {
	for _, marker := range configMarkers {
		i := strings.Index(html, marker)
		if i < 0 {
			continue
		}
		rest := html[i+len(marker):]
		start := strings.IndexByte(rest, '{')
		if start < 0 {
			continue
		}
		if obj, ok := scanBalancedObject(rest[start:]); ok {
			return obj, nil
		}
	}
	return "", errors.New("no embedded player configuration object found")
}

func scanBalancedObject(s string) (string, bool) {
	depth := 0
	var quote byte
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if quote != 0 {
			switch c {
			case '\\':
				escaped = true
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}
