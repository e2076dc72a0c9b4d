package lessongrab

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSegments means a playlist or manifest resolved to an empty
	// segment list.
	ErrNoSegments = errors.New("no usable segments")
	// ErrNoUsableTrack means the manifest had no track that could produce a
	// file with audio, and no separate audio track to mux against either.
	ErrNoUsableTrack = errors.New("no usable track")
)

// NetworkError is a failed transport operation or a non-2xx HTTP response.
// Retryable within the segment fetcher's budget, fatal everywhere else.
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("request to %s failed: HTTP %d", e.URL, e.StatusCode)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ParseError is a malformed playlist, manifest or embedded player config.
// Never retried.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse document at %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NeedsRemuxError is raised by the adaptive-manifest resolver when the only
// usable video tracks carry no audio but a separate audio track exists.
// Fatal for the resolver, but distinguished so the fallback cascade can run
// instead of reporting an opaque failure.
type NeedsRemuxError struct {
	ManifestURL string
}

func (e *NeedsRemuxError) Error() string {
	return fmt.Sprintf("manifest %s has only separate audio and video tracks", e.ManifestURL)
}

// RemuxRequiredError is the terminal outcome of the fallback cascade when a
// manifest needing external muxing is the best available source. It carries
// a ready-to-run instruction string; the mux itself is never performed here.
type RemuxRequiredError struct {
	ManifestURL string
	Filename    string
	Command     string
}

func (e *RemuxRequiredError) Error() string {
	return fmt.Sprintf("external remux required for %s, run: %s", e.ManifestURL, e.Command)
}
