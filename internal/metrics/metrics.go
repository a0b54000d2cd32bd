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
// 認証サービス、メッセージング、ワーカーから利用する。
type MetricsCollector interface {
	RecordLogin(wasCreated bool)
	RecordLoginFailure()
	RecordSessionCacheHit()
	RecordSessionCacheMiss()
	RecordEmailSent()
	RecordEmailFailed(terminal bool)
	RecordHTTPStatus(statusCode int)
	RecordPhotoFetchLatency(duration time.Duration)
	RecordSessionsPurged(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins           *prometheus.CounterVec
	loginFailures    prometheus.Counter
	sessionCacheHit  prometheus.Counter
	sessionCacheMiss prometheus.Counter
	emailsSent       prometheus.Counter
	emailFailures    *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
	photoLatency     prometheus.Histogram
	sessionsPurged   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "epulo_login_total",
			Help: "ログイン成功の合計数（新規作成か既存かのラベル付き）",
		}, []string{"was_created"}),
		loginFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "epulo_login_failure_total",
			Help: "ログイン失敗の合計数",
		}),
		sessionCacheHit: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "epulo_session_cache_hit_total",
			Help: "セッションキャッシュヒットの合計数",
		}),
		sessionCacheMiss: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "epulo_session_cache_miss_total",
			Help: "セッションキャッシュミスの合計数",
		}),
		emailsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "epulo_emails_sent_total",
			Help: "送信されたオファーメールの合計数",
		}),
		emailFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "epulo_email_failure_total",
			Help: "メール送信失敗の合計数（リトライ予定か最終失敗かのラベル付き）",
		}, []string{"terminal"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "epulo_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		photoLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "epulo_photo_fetch_latency_seconds",
			Help:    "出品写真取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "epulo_sessions_purged_total",
			Help: "クリーンアップで削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.logins,
		c.loginFailures,
		c.sessionCacheHit,
		c.sessionCacheMiss,
		c.emailsSent,
		c.emailFailures,
		c.httpStatus,
		c.photoLatency,
		c.sessionsPurged,
	)

	return c
}

// RecordLogin はログイン成功を記録する。
// wasCreatedは今回のログインでユーザーが新規作成されたかを示す。
func (c *Collector) RecordLogin(wasCreated bool) {
	c.logins.WithLabelValues(strconv.FormatBool(wasCreated)).Inc()
}

// RecordLoginFailure はログイン失敗を記録する。
func (c *Collector) RecordLoginFailure() {
	c.loginFailures.Inc()
}

// RecordSessionCacheHit はセッションキャッシュヒットを記録する。
func (c *Collector) RecordSessionCacheHit() {
	c.sessionCacheHit.Inc()
}

// RecordSessionCacheMiss はセッションキャッシュミスを記録する。
func (c *Collector) RecordSessionCacheMiss() {
	c.sessionCacheMiss.Inc()
}

// RecordEmailSent はメール送信成功を記録する。
func (c *Collector) RecordEmailSent() {
	c.emailsSent.Inc()
}

// RecordEmailFailed はメール送信失敗を記録する。
// terminalは最大試行回数に達し再試行しない失敗かを示す。
func (c *Collector) RecordEmailFailed(terminal bool) {
	c.emailFailures.WithLabelValues(strconv.FormatBool(terminal)).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordPhotoFetchLatency は出品写真取得のレイテンシを記録する。
func (c *Collector) RecordPhotoFetchLatency(duration time.Duration) {
	c.photoLatency.Observe(duration.Seconds())
}

// RecordSessionsPurged は削除された期限切れセッション数を記録する。
func (c *Collector) RecordSessionsPurged(count int64) {
	c.sessionsPurged.Add(float64(count))
}

var _ MetricsCollector = (*Collector)(nil)

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
