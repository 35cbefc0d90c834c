// Package ingest 推流引擎的生命周期信号与管理 API
package ingest

import "strings"

// ResolveStreamKey 取推流路径（.../app/streamKey）的最后一段作为推流码
// 格式不正确时返回空字符串，调用方应视为无效
func ResolveStreamKey(path string) string {
	return path[strings.LastIndex(path, "/")+1:]
}
