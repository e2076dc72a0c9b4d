package lessongrab

import (
	"strings"
)

// MaxFilenameLength is the rune limit applied to the composed name before
// the extension is appended.
const MaxFilenameLength = 120

// DefaultExtension is used when resolution did not determine a container.
const DefaultExtension = "ts"

// Filename composes the output filename for a download: the sanitized title
// (if any) followed by the identity's stable token, truncated, with the
// resolved extension appended.
func Filename(title string, identity MediaIdentity, ext string) string {
	name := SanitizeFilename(identity.Token())
	if title = SanitizeFilename(title); title != "" {
		name = title + " " + name
	}
	name = truncateRunes(name, MaxFilenameLength)
	if ext == "" {
		ext = DefaultExtension
	}
	return name + "." + ext
}

// SanitizeFilename strips characters that are illegal in common filesystems
// and collapses runs of whitespace into single spaces.
func SanitizeFilename(s string) string {
	var builder strings.Builder
	builder.Grow(len(s))
	for _, r := range s {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			continue
		}
		if r < 0x20 {
			continue
		}
		builder.WriteRune(r)
	}
	return strings.Join(strings.Fields(builder.String()), " ")
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimRight(string(runes[:n]), " ")
}
