package media

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeScript 写入可执行的假 ffmpeg/ffprobe
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes are not supported on windows")
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

// fakeFFmpeg 记录参数并把 "processed" 写入最后一个参数指向的文件
func fakeFFmpeg(t *testing.T, dir string) (bin, argsLog string) {
	argsLog = filepath.Join(dir, "ffmpeg.args")
	bin = writeScript(t, dir, "ffmpeg", `
for a in "$@"; do last="$a"; done
echo "$@" >> "`+argsLog+`"
printf 'processed' > "$last"
`)
	return bin, argsLog
}

// failingFFmpeg 写出半个文件后失败
func failingFFmpeg(t *testing.T, dir string) string {
	return writeScript(t, dir, "ffmpeg-fail", `
for a in "$@"; do last="$a"; done
printf 'partial' > "$last"
echo "boom" >&2
exit 1
`)
}

func readArgs(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(b)), "\n")
}
