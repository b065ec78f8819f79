// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// チャット・資格情報・カレンダーの各サービスとワーカーから利用する。
type MetricsCollector interface {
	RecordChatTurn(outcome string)
	ObserveCredentialRefresh(result string)
	ObserveCalendarCall(op, result string)
	RecordDraftLatency(drafter string, duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordConversationsDeleted(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	chatTurns            *prometheus.CounterVec
	credentialRefresh    *prometheus.CounterVec
	calendarCalls        *prometheus.CounterVec
	draftLatency         *prometheus.HistogramVec
	httpStatus           *prometheus.CounterVec
	conversationsDeleted prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		chatTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calendar_assistant_chat_turns_total",
			Help: "チャットターンの結果別の合計数",
		}, []string{"outcome"}),
		credentialRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calendar_assistant_credential_refresh_total",
			Help: "アクセストークン更新の結果別の合計数",
		}, []string{"result"}),
		calendarCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calendar_assistant_calendar_calls_total",
			Help: "カレンダーAPI呼び出しの操作・結果別の合計数",
		}, []string{"operation", "result"}),
		draftLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "calendar_assistant_draft_latency_seconds",
			Help:    "返信生成のレイテンシ（秒）",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"drafter"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calendar_assistant_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		conversationsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "calendar_assistant_conversations_deleted_total",
			Help: "保持期間切れで削除された会話の合計数",
		}),
	}

	reg.MustRegister(
		c.chatTurns,
		c.credentialRefresh,
		c.calendarCalls,
		c.draftLatency,
		c.httpStatus,
		c.conversationsDeleted,
	)

	return c
}

// RecordChatTurn はチャットターンの結果を記録する。
func (c *Collector) RecordChatTurn(outcome string) {
	c.chatTurns.WithLabelValues(outcome).Inc()
}

// ObserveCredentialRefresh はアクセストークン更新の結果を記録する。
func (c *Collector) ObserveCredentialRefresh(result string) {
	c.credentialRefresh.WithLabelValues(result).Inc()
}

// ObserveCalendarCall はカレンダーAPI呼び出しの結果を記録する。
func (c *Collector) ObserveCalendarCall(op, result string) {
	c.calendarCalls.WithLabelValues(op, result).Inc()
}

// RecordDraftLatency は返信生成のレイテンシを記録する。
func (c *Collector) RecordDraftLatency(drafter string, duration time.Duration) {
	c.draftLatency.WithLabelValues(drafter).Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordConversationsDeleted は削除した会話数を記録する。
func (c *Collector) RecordConversationsDeleted(count int64) {
	c.conversationsDeleted.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
