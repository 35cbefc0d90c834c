package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bililive-go/livearchiver/src/configs"
)

func TestURLBuilder_Defaults(t *testing.T) {
	cfg := configs.NewConfig()
	cfg.URLs.PublicBase = "https://cdn.example.org/"
	b, err := NewURLBuilder(cfg.URLs, "live")
	require.NoError(t, err)

	thumb, err := b.Thumbnail("abc")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.org/live/abc/image.png", thumb)

	playback, err := b.Playback("abc", "V1StGXR8_Z5jdHi6B-myT")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.org/live/abc/V1StGXR8_Z5jdHi6B-myT.mp4", playback)

	src, err := b.ThumbnailSource("abc")
	require.NoError(t, err)
	assert.Equal(t, "rtmp://127.0.0.1:1935/live/abc", src)
}

func TestURLBuilder_InvalidTemplate(t *testing.T) {
	cfg := configs.NewConfig()
	cfg.URLs.Playback = "{{ .ArchiveID "
	_, err := NewURLBuilder(cfg.URLs, "live")
	assert.ErrorContains(t, err, "urls.playback")
}

func TestURLBuilder_UnknownField(t *testing.T) {
	cfg := configs.NewConfig()
	cfg.URLs.Thumbnail = "{{ .Missing }}"
	b, err := NewURLBuilder(cfg.URLs, "live")
	require.NoError(t, err)
	_, err = b.Thumbnail("abc")
	assert.Error(t, err)
}
