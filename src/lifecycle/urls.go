package lifecycle

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig"

	"github.com/bililive-go/livearchiver/src/configs"
)

type urlData struct {
	PublicBase string
	App        string
	StreamKey  string
	ArchiveID  string
}

// URLBuilder 根据配置模板生成对外地址
type URLBuilder struct {
	publicBase string
	app        string
	thumbnail  *template.Template
	playback   *template.Template
	source     *template.Template
}

func NewURLBuilder(cfg configs.URLs, app string) (*URLBuilder, error) {
	parse := func(name, text string) (*template.Template, error) {
		t, err := template.New(name).Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("urls.%s: %w", name, err)
		}
		return t, nil
	}
	b := &URLBuilder{publicBase: cfg.PublicBase, app: app}
	var err error
	if b.thumbnail, err = parse("thumbnail", cfg.Thumbnail); err != nil {
		return nil, err
	}
	if b.playback, err = parse("playback", cfg.Playback); err != nil {
		return nil, err
	}
	if b.source, err = parse("thumbnail_source", cfg.ThumbnailSource); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *URLBuilder) render(t *template.Template, streamKey, archiveID string) (string, error) {
	var buf bytes.Buffer
	err := t.Execute(&buf, urlData{
		PublicBase: b.publicBase,
		App:        b.app,
		StreamKey:  streamKey,
		ArchiveID:  archiveID,
	})
	return buf.String(), err
}

// Thumbnail 缩略图公开地址
func (b *URLBuilder) Thumbnail(streamKey string) (string, error) {
	return b.render(b.thumbnail, streamKey, "")
}

// Playback 归档录像的点播地址
func (b *URLBuilder) Playback(streamKey, archiveID string) (string, error) {
	return b.render(b.playback, streamKey, archiveID)
}

// ThumbnailSource 截图时拉流的地址
func (b *URLBuilder) ThumbnailSource(streamKey string) (string, error) {
	return b.render(b.source, streamKey, "")
}
