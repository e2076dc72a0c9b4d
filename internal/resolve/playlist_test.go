package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mircov/lessongrab"
)

func TestResolveMediaPlaylistSingleFetch(t *testing.T) {
	assert := assert.New(t)
	client := newStubClient(map[string]string{
		"https://h/a/b.m3u8": "#EXTM3U\nseg0.ts\nseg1.ts\n",
	})
	plan, err := NewPlaylistResolver(client).Resolve(context.Background(), "https://h/a/b.m3u8")
	require.NoError(t, err)
	assert.Equal([]string{"https://h/a/seg0.ts", "https://h/a/seg1.ts"}, chunkURLs(plan.Chunks))
	assert.Equal(2, plan.SegmentCount)
	assert.Equal("ts", plan.Extension)
	assert.Len(client.calls, 1)
}

func TestResolveMasterPlaylistTwoFetches(t *testing.T) {
	assert := assert.New(t)
	client := newStubClient(map[string]string{
		"https://h/master/playlist.m3u8": "#EXTM3U\n" +
			"#EXT-X-STREAM-INF:BANDWIDTH=100\n" +
			"low/index.m3u8\n" +
			"#EXT-X-STREAM-INF:BANDWIDTH=900\n" +
			"high/index.m3u8\n" +
			"#trailing comment\n",
		"https://h/master/high/index.m3u8": "#EXTM3U\nseg0.ts\nseg1.ts\n",
	})
	plan, err := NewPlaylistResolver(client).Resolve(context.Background(), "https://h/master/playlist.m3u8")
	require.NoError(t, err)
	// Media-level lines resolve against the media playlist's own URL, not
	// the master's.
	assert.Equal([]string{"https://h/master/high/seg0.ts", "https://h/master/high/seg1.ts"}, chunkURLs(plan.Chunks))
	assert.Equal([]string{"https://h/master/playlist.m3u8", "https://h/master/high/index.m3u8"}, client.calls)
}

func TestResolveInitSegmentFirstLastDirectiveWins(t *testing.T) {
	assert := assert.New(t)
	client := newStubClient(map[string]string{
		"https://h/a/b.m3u8": "#EXTM3U\n" +
			`#EXT-X-MAP:URI="init0.mp4"` + "\n" +
			"seg0.m4s\n" +
			`#EXT-X-MAP:URI="init1.mp4"` + "\n" +
			"seg1.m4s\n",
	})
	plan, err := NewPlaylistResolver(client).Resolve(context.Background(), "https://h/a/b.m3u8")
	require.NoError(t, err)
	assert.Equal([]string{
		"https://h/a/init1.mp4",
		"https://h/a/seg0.m4s",
		"https://h/a/seg1.m4s",
	}, chunkURLs(plan.Chunks))
}

func TestResolveSegmentWithQueryString(t *testing.T) {
	client := newStubClient(map[string]string{
		"https://h/a/b.m3u8": "#EXTM3U\nseg0.ts?token=abc\n",
	})
	plan, err := NewPlaylistResolver(client).Resolve(context.Background(), "https://h/a/b.m3u8")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://h/a/seg0.ts?token=abc"}, chunkURLs(plan.Chunks))
	assert.Len(t, client.calls, 1)
}

func TestResolveMasterWithoutContentLines(t *testing.T) {
	client := newStubClient(map[string]string{
		"https://h/a/b.m3u8": "#EXTM3U\n#EXT-X-VERSION:4\n",
	})
	_, err := NewPlaylistResolver(client).Resolve(context.Background(), "https://h/a/b.m3u8")
	var parseErr *lessongrab.ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestResolveEmptyMediaPlaylist(t *testing.T) {
	client := newStubClient(map[string]string{
		"https://h/a/b.m3u8":     "#EXTM3U\nmedia.m3u8\n",
		"https://h/a/media.m3u8": "#EXTM3U\n#EXT-X-ENDLIST\n",
	})
	_, err := NewPlaylistResolver(client).Resolve(context.Background(), "https://h/a/b.m3u8")
	assert.ErrorIs(t, err, lessongrab.ErrNoSegments)
}

func TestLooksLikeSegment(t *testing.T) {
	assert := assert.New(t)
	assert.True(looksLikeSegment("seg0.ts"))
	assert.True(looksLikeSegment("seg0.m4s?exp=123"))
	assert.True(looksLikeSegment("SEG0.TS"))
	assert.False(looksLikeSegment("index.m3u8"))
	assert.False(looksLikeSegment("nodot"))
}
