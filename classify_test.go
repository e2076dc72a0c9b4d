package lessongrab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyDirectPlaylist(t *testing.T) {
	assert := assert.New(t)
	c, err := Classify("https://vod-adaptive.akamaized.net/exp=1/media/a1b2c3d4/720/playlist.m3u8")
	require.NoError(t, err)
	assert.Equal(SourceDirectPlaylist, c.Kind)
	assert.Equal(MediaIdentity("a1b2c3d4"), c.Identity)
}

func TestClassifyDirectPlaylistIgnoresResolution(t *testing.T) {
	assert := assert.New(t)
	low, err := Classify("https://cdn.example.com/media/a1b2c3d4/360/playlist.m3u8")
	require.NoError(t, err)
	high, err := Classify("https://cdn.example.com/media/a1b2c3d4/1080/playlist.m3u8")
	require.NoError(t, err)
	// Variant URLs for the same video share one identity.
	assert.Equal(low.Identity, high.Identity)
}

func TestClassifyAdaptiveManifest(t *testing.T) {
	assert := assert.New(t)
	for _, tc := range []struct {
		url      string
		identity MediaIdentity
	}{
		{"https://vod.akamaized.net/123456789/sep/video/master.json?base64_init=1", "vimeo:123456789"},
		{"https://skyfire.vimeocdn.com/exp=1/master.json?clip_id=987654", "vimeo:987654"},
		{"https://vod.akamaized.net/0a1b2c3d4e5f6a7b8c9d0e1f/master.json", "vimeo:0a1b2c3d4e5f6a7b8c9d0e1f"},
	} {
		c, err := Classify(tc.url)
		require.NoError(t, err, tc.url)
		assert.Equal(SourceAdaptiveManifest, c.Kind, tc.url)
		assert.Equal(tc.identity, c.Identity, tc.url)
	}
}

func TestClassifyPlayerPage(t *testing.T) {
	assert := assert.New(t)
	c, err := Classify("https://player.vimeo.com/video/123456789?h=abc")
	require.NoError(t, err)
	assert.Equal(SourcePlayerPage, c.Kind)
	assert.Equal(MediaIdentity("vimeo:123456789"), c.Identity)
}

func TestClassifyPrefersPlaylistOverManifestHost(t *testing.T) {
	// A /media/ playlist on the manifest CDN is still a direct playlist.
	c, err := Classify("https://vod.akamaized.net/media/a1b2c3d4/720/playlist.m3u8")
	require.NoError(t, err)
	assert.Equal(t, SourceDirectPlaylist, c.Kind)
}

func TestClassifyUnsupported(t *testing.T) {
	for _, url := range []string{
		"https://example.com/watch?v=123",
		"https://player.vimeo.com/about",
		"https://vod.akamaized.net/123456/playlist.m3u8",
		"not a url at all ://",
	} {
		_, err := Classify(url)
		assert.ErrorIs(t, err, ErrUnsupportedSource, url)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	url := "https://vod.akamaized.net/123456/master.json"
	first, err := Classify(url)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		c, err := Classify(url)
		require.NoError(t, err)
		assert.Equal(t, first, c)
	}
}

func TestMediaIdentityToken(t *testing.T) {
	assert := assert.New(t)
	assert.Equal("123456", MediaIdentity("vimeo:123456").Token())
	assert.Equal("a1b2c3d4", MediaIdentity("a1b2c3d4").Token())
}
