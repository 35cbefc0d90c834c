// Package metrics Prometheus 指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "livearchiver"

// Admissions 推流准入结果：accepted / rejected / failed
var Admissions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "admissions_total",
	Help:      "Ingest start signals by admission result",
}, []string{"result"})

// Finalizations 归档结果：archived / degraded / duplicate / failed
var Finalizations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "finalizations_total",
	Help:      "Ingest stop signals by finalization result",
}, []string{"result"})

var FinalizationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "finalization_duration_seconds",
	Help:      "Time from stop signal to compression job enqueued",
	Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
})

// CompressionJobs 压缩任务结果：done / failed / duplicate
var CompressionJobs = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "compression_jobs_total",
	Help:      "Compression jobs consumed by result",
}, []string{"result", "profile"})

var CompressionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "compression_duration_seconds",
	Help:      "Wall time of a compression transcode",
	Buckets:   prometheus.ExponentialBuckets(1, 2, 16),
})

var CompressionRunning = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "compression_running",
	Help:      "Compression jobs currently transcoding",
})

// ScheduledRuns 定时任务执行次数
var ScheduledRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "scheduled_runs_total",
	Help:      "Scheduled task runs by task and result",
}, []string{"task", "result"})

var ChatMessagesPruned = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "chat_messages_pruned_total",
	Help:      "Chat messages deleted by the retention prune",
})

var ThumbnailRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "thumbnail_refreshes_total",
	Help:      "Thumbnail refresh attempts by result",
}, []string{"result"})

// HTTPRequests 按路由模板统计，避免把归档 ID 当作标签
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "http_requests_total",
	Help:      "HTTP requests by route template and status code",
}, []string{"route", "code"})
