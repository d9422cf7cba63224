package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 摄取流水线指标
var (
	IngestJobsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docchat_ingest_jobs_processed_total",
		Help: "成功处理的摄取任务总数",
	})

	IngestJobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docchat_ingest_jobs_failed_total",
		Help: "处理失败的摄取任务总数（含重试前的失败）",
	})

	IngestJobsDeadLettered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docchat_ingest_jobs_dead_lettered_total",
		Help: "进入死信主题的摄取任务总数",
	})

	IngestChunksCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docchat_ingest_chunks_created_total",
		Help: "写入向量库的文档块总数",
	})

	IngestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "docchat_ingest_duration_seconds",
		Help:    "单个摄取任务的处理耗时",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})
)

// 聊天指标
var (
	ChatRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docchat_chat_requests_total",
		Help: "聊天请求总数",
	}, []string{"status"})

	ChatDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "docchat_chat_duration_seconds",
		Help:    "聊天请求端到端耗时",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
	})
)

// Handler 返回Prometheus指标暴露处理器
func Handler() http.Handler {
	return promhttp.Handler()
}
