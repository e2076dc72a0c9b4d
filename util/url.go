package util

import (
	"errors"
	"net/url"
)

var (
	ErrNotHTTP = errors.New("not an absolute http(s) URL")
)

// IsHTTPURL reports whether s parses as an absolute http or https URL with a
// non-empty host.
func IsHTTPURL(s string) bool {
	parsedURL, err := url.Parse(s)
	if err != nil {
		return false
	}
	return isHTTP(parsedURL)
}

// ResolveHTTP resolves ref against base and returns the result, requiring it
// to be an absolute http(s) URL.
func ResolveHTTP(base string, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	resolved := baseURL.ResolveReference(refURL)
	if !isHTTP(resolved) {
		return "", ErrNotHTTP
	}
	return resolved.String(), nil
}

func isHTTP(u *url.URL) bool {
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
