// Package media 调用外部 ffmpeg/ffprobe 完成探测、重封装、压缩与截图
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/bililive-go/livearchiver/src/configs"
)

// ErrInsufficientSpace 目标卷剩余空间不足以容纳临时文件
var ErrInsufficientSpace = errors.New("insufficient disk space")

// FFmpeg 外部转码/探测工具
type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string

	freeSpace func(dir string) (uint64, error)
}

func NewFFmpeg(cfg configs.Media) *FFmpeg {
	return &FFmpeg{
		FFmpegPath:  cfg.FfmpegPath,
		FFprobePath: cfg.FfprobePath,
		freeSpace:   volumeFree,
	}
}

func volumeFree(dir string) (uint64, error) {
	usage, err := disk.Usage(dir)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// TempPath 返回处理过程中使用的临时兄弟文件，完成后重命名覆盖原文件
func TempPath(path string) string {
	return path + "_copy.mp4"
}

// RemuxArgs 只复制音视频流，重置旋转信息并标记音轨语言
func RemuxArgs(in, out string) []string {
	return []string{
		"-i", in,
		"-c:v", "copy",
		"-c:a", "copy",
		"-map_metadata", "0",
		"-metadata:s:v:0", "rotate=0",
		"-metadata:s:a:0", "language=eng",
		"-f", "mp4",
		out,
	}
}

// CompressArgs x264 单遍 crf 编码
func CompressArgs(in, out string, profile configs.CompressionProfile) []string {
	args := []string{
		"-n",
		"-loglevel", "error",
		"-i", in,
		"-vcodec", "libx264",
		"-crf", strconv.Itoa(profile.CRF),
		"-preset", profile.Preset,
	}
	if profile.Tune != "" {
		args = append(args, "-tune", profile.Tune)
	}
	return append(args, out)
}

func (f *FFmpeg) run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 512 {
			msg = msg[len(msg)-512:]
		}
		return nil, fmt.Errorf("%s failed: %w: %s", filepath.Base(bin), err, msg)
	}
	return stdout.Bytes(), nil
}

// ensureRoom 临时文件最多与源文件一样大
func (f *FFmpeg) ensureRoom(path string, size int64) error {
	if f.freeSpace == nil {
		return nil
	}
	free, err := f.freeSpace(filepath.Dir(path))
	if err != nil {
		logrus.WithError(err).WithField("path", path).Debug("failed to query free disk space")
		return nil
	}
	if size > 0 && free < uint64(size) {
		return fmt.Errorf("%w: need %s, have %s", ErrInsufficientSpace,
			humanize.IBytes(uint64(size)), humanize.IBytes(free))
	}
	return nil
}

// transformInPlace 执行 ffmpeg 输出到临时文件，成功后原子替换源文件
func (f *FFmpeg) transformInPlace(ctx context.Context, path string, build func(in, out string) []string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if err := f.ensureRoom(path, info.Size()); err != nil {
		return err
	}
	tmp := TempPath(path)
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale temp file: %w", err)
	}
	if _, err := f.run(ctx, f.FFmpegPath, build(path, tmp)...); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// Remux 无损重封装并替换原文件
func (f *FFmpeg) Remux(ctx context.Context, path string) error {
	return f.transformInPlace(ctx, path, RemuxArgs)
}

// Compress 按给定参数重新编码并替换原文件
func (f *FFmpeg) Compress(ctx context.Context, path string, profile configs.CompressionProfile) error {
	return f.transformInPlace(ctx, path, func(in, out string) []string {
		return CompressArgs(in, out, profile)
	})
}

// ProbeDuration 返回媒体时长（秒）
func (f *FFmpeg) ProbeDuration(ctx context.Context, path string) (float64, error) {
	out, err := f.run(ctx, f.FFprobePath, "-v", "error", "-print_format", "json", "-show_format", path)
	if err != nil {
		return 0, err
	}
	result := gjson.ParseBytes(out)
	duration := result.Get("format.duration")
	if !duration.Exists() {
		return 0, fmt.Errorf("ffprobe returned no duration: %s", strings.TrimSpace(string(out)))
	}
	return duration.Float(), nil
}
