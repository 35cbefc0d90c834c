package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bluele/gcache"
	"github.com/sirupsen/logrus"
)

// SourceFunc 返回某个推流码可供截图的拉流地址
type SourceFunc func(streamKey string) (string, error)

// PathFunc 返回某个推流码的缩略图存放路径
type PathFunc func(streamKey string) string

// ThumbnailGenerator 从直播流截取一帧作为缩略图
type ThumbnailGenerator struct {
	ffmpeg      *FFmpeg
	source      SourceFunc
	path        PathFunc
	timeout     time.Duration
	minInterval time.Duration
	// 最近刷新过的推流码
	recent gcache.Cache
}

func NewThumbnailGenerator(ffmpeg *FFmpeg, source SourceFunc, path PathFunc, minInterval time.Duration) *ThumbnailGenerator {
	g := &ThumbnailGenerator{
		ffmpeg:      ffmpeg,
		source:      source,
		path:        path,
		timeout:     30 * time.Second,
		minInterval: minInterval,
	}
	if minInterval > 0 {
		g.recent = gcache.New(1024).LRU().Expiration(minInterval).Build()
	}
	return g
}

// Generate 截取一帧写入缩略图路径，写入过程使用临时文件，完成后原子替换
func (g *ThumbnailGenerator) Generate(ctx context.Context, streamKey string) error {
	if streamKey == "" {
		return fmt.Errorf("empty stream key")
	}
	src, err := g.source(streamKey)
	if err != nil {
		return fmt.Errorf("failed to build thumbnail source: %w", err)
	}
	dst := g.path(streamKey)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmpFile, err := os.CreateTemp(filepath.Dir(dst), "image-*.png")
	if err != nil {
		return err
	}
	tmp := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmp)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	args := []string{"-y", "-i", src, "-frames:v", "1", "-q:v", "2", tmp}
	if _, err := g.ffmpeg.run(ctx, g.ffmpeg.FFmpegPath, args...); err != nil {
		return err
	}
	if info, err := os.Stat(tmp); err != nil || info.Size() == 0 {
		return fmt.Errorf("thumbnail was not created")
	}
	if err := os.Rename(tmp, dst); err != nil {
		return err
	}
	if g.recent != nil {
		_ = g.recent.Set(streamKey, time.Now())
	}
	logrus.WithField("stream_key", streamKey).Debug("thumbnail generated")
	return nil
}

// Refresh 与 Generate 相同，但在最小间隔内刷新过的推流码会被跳过
func (g *ThumbnailGenerator) Refresh(ctx context.Context, streamKey string) (bool, error) {
	if g.recent != nil {
		if _, err := g.recent.Get(streamKey); err == nil {
			return false, nil
		}
	}
	if err := g.Generate(ctx, streamKey); err != nil {
		return false, err
	}
	return true, nil
}
