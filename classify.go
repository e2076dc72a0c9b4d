package lessongrab

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/hashicorp/go-multierror"
)

var (
	// ErrUnsupportedSource means no classification rule matched the input URL.
	ErrUnsupportedSource = errors.New("unsupported source URL")
)

// SourceKind is the classification of a source URL, determined once per job
// and immutable thereafter.
type SourceKind string

const (
	SourceDirectPlaylist   SourceKind = "direct_playlist"
	SourceAdaptiveManifest SourceKind = "adaptive_manifest"
	SourcePlayerPage       SourceKind = "player_page"
)

// MediaIdentity is a stable key identifying one logical video regardless of
// which variant URL named it. Two URLs referring to the same video must
// classify to the same identity.
type MediaIdentity string

// Token returns the filename-stable portion of the identity: the part after
// the provider prefix, or the whole identity if there is no prefix.
func (id MediaIdentity) Token() string {
	s := string(id)
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// A Classification is the result of successfully matching a source URL.
type Classification struct {
	Kind     SourceKind
	Identity MediaIdentity
}

type classifyFunc = func(*url.URL) (*Classification, error)

type classifier struct {
	name  string
	match classifyFunc
}

// Rules are tried in order; the first match wins. Keep the direct-playlist
// rule first: a /media/ playlist URL hosted on the manifest CDN must still
// classify as a direct playlist.
var classifiers = []classifier{
	{"media-playlist", classifyDirectPlaylist},
	{"adaptive-manifest", classifyAdaptiveManifest},
	{"player-page", classifyPlayerPage},
}

var (
	mediaPathPattern  = regexp.MustCompile(`(?:^|/)media/([^/]+)/\d+(?:$|/)`)
	playerPathPattern = regexp.MustCompile(`^/video/(\d+)$`)
	numericIDPattern  = regexp.MustCompile(`\d{6,}`)
	opaqueIDPattern   = regexp.MustCompile(`(?i)^[0-9a-f-]{24,}$`)
)

const playerPageHost = "player.vimeo.com"

var manifestCDNSuffixes = []string{
	".vimeocdn.com",
	".akamaized.net",
}

// Classify parses a source URL into its SourceKind and MediaIdentity. It is
// pure and deterministic, so retried or duplicate submissions of the same
// URL collapse onto one identity. Returns an error wrapping
// ErrUnsupportedSource if no rule matches.
func Classify(rawURL string) (*Classification, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedSource, err)
	}
	var result error
	for _, c := range classifiers {
		if classification, err := c.match(parsedURL); classification != nil && err == nil {
			return classification, nil
		} else {
			result = multierror.Append(result, multierror.Prefix(err, fmt.Sprintf("[%v]", c.name)))
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrUnsupportedSource, result)
}

func classifyDirectPlaylist(u *url.URL) (*Classification, error) {
	m := mediaPathPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return nil, fmt.Errorf("path has no media/<key>/<resolution> pattern")
	}
	// The trailing digits are a resolution hint, not part of the identity.
	return &Classification{
		Kind:     SourceDirectPlaylist,
		Identity: MediaIdentity(m[1]),
	}, nil
}

func classifyAdaptiveManifest(u *url.URL) (*Classification, error) {
	if !isManifestCDNHost(u.Hostname()) {
		return nil, fmt.Errorf("unrecognised manifest host %q", u.Hostname())
	}
	if base := lastPathSegment(u.Path); base != "master.json" {
		return nil, fmt.Errorf("path does not name an adaptive manifest")
	}
	return &Classification{
		Kind:     SourceAdaptiveManifest,
		Identity: MediaIdentity("vimeo:" + manifestSeed(u)),
	}, nil
}

func classifyPlayerPage(u *url.URL) (*Classification, error) {
	if u.Hostname() != playerPageHost {
		return nil, fmt.Errorf("unrecognised player host %q", u.Hostname())
	}
	m := playerPathPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return nil, fmt.Errorf("path is not /video/<id>")
	}
	return &Classification{
		Kind:     SourcePlayerPage,
		Identity: MediaIdentity("vimeo:" + m[1]),
	}, nil
}

func isManifestCDNHost(host string) bool {
	for _, suffix := range manifestCDNSuffixes {
		if strings.HasSuffix(host, suffix) || host == strings.TrimPrefix(suffix, ".") {
			return true
		}
	}
	return false
}

// manifestSeed derives the stable portion of an adaptive-manifest identity.
// Tried in order: a numeric video ID in the path, an ID query parameter, an
// opaque token path segment, else the raw path.
func manifestSeed(u *url.URL) string {
	if id := numericIDPattern.FindString(u.Path); id != "" {
		return id
	}
	for _, param := range []string{"clip_id", "video_id", "id"} {
		if v := u.Query().Get(param); v != "" {
			return v
		}
	}
	for _, segment := range strings.Split(u.Path, "/") {
		if opaqueIDPattern.MatchString(segment) {
			return segment
		}
	}
	return u.Path
}

func lastPathSegment(p string) string {
	p = strings.Trim(p, "/")
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}
