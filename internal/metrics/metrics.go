// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ログイン試行の結果ラベル。
const (
	LoginSuccess = "success"
	LoginFailure = "failure"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェアやワーカーから利用する。
type MetricsCollector interface {
	RecordHTTPRequest(method, route string, statusCode int, duration time.Duration)
	RecordLogin(result string)
	RecordSessionCreated()
	RecordAuthRejected(reason string)
	RecordRateLimited(limitType string)
	RecordSessionsPurged(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	logins         *prometheus.CounterVec
	sessions       prometheus.Counter
	authRejected   *prometheus.CounterVec
	rateLimited    *prometheus.CounterVec
	sessionsPurged prometheus.Counter
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schedboard_http_requests_total",
			Help: "ルート・メソッド・ステータスコード別のHTTPリクエスト数",
		}, []string{"method", "route", "status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "schedboard_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schedboard_login_attempts_total",
			Help: "結果別のログイン試行数",
		}, []string{"result"}),
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schedboard_sessions_created_total",
			Help: "作成されたセッションの合計数",
		}),
		authRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schedboard_auth_rejected_total",
			Help: "認証ゲートで拒否されたリクエスト数",
		}, []string{"reason"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schedboard_rate_limited_total",
			Help: "レート制限で拒否されたリクエスト数",
		}, []string{"limit_type"}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schedboard_sessions_purged_total",
			Help: "クリーンアップで削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpDuration,
		c.logins,
		c.sessions,
		c.authRejected,
		c.rateLimited,
		c.sessionsPurged,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストの件数と処理時間を記録する。
// routeにはパスパラメータを含まないルートパターンを渡す。
func (c *Collector) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

// RecordSessionCreated はセッション作成を記録する。
func (c *Collector) RecordSessionCreated() {
	c.sessions.Inc()
}

// RecordAuthRejected は認証ゲートでの拒否を記録する。
func (c *Collector) RecordAuthRejected(reason string) {
	c.authRejected.WithLabelValues(reason).Inc()
}

// RecordRateLimited はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimited(limitType string) {
	c.rateLimited.WithLabelValues(limitType).Inc()
}

// RecordSessionsPurged は削除された期限切れセッション数を記録する。
func (c *Collector) RecordSessionsPurged(count int64) {
	c.sessionsPurged.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// 一部のコレクタが失敗しても、収集できたメトリクスは返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
