package lessongrab

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilename(t *testing.T) {
	assert := assert.New(t)
	assert.Equal("Intro Lesson 123456.mp4", Filename("Intro Lesson", "vimeo:123456", "mp4"))
	assert.Equal("a1b2c3d4.ts", Filename("", "a1b2c3d4", ""))
	assert.Equal("Week 1 Q&A 987654.m3u8", Filename(`Week 1: Q&A?`, "vimeo:987654", "m3u8"))
}

func TestFilenameTruncation(t *testing.T) {
	assert := assert.New(t)
	name := Filename(strings.Repeat("x", 300), "vimeo:123456", "mp4")
	assert.Equal(MaxFilenameLength, len([]rune(strings.TrimSuffix(name, ".mp4"))))
	assert.True(strings.HasSuffix(name, ".mp4"))
}

func TestSanitizeFilename(t *testing.T) {
	assert := assert.New(t)
	assert.Equal("ab", SanitizeFilename(`a<>:"/\|?*b`))
	assert.Equal("a b c", SanitizeFilename("a \t b \n\n c"))
	assert.Equal("tab", SanitizeFilename("ta\x01\x02b"))
	assert.Equal("", SanitizeFilename("   "))
}
