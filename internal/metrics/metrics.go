// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// スクレイプサービスやWebhookサービスから利用する。
type MetricsCollector interface {
	RecordScrapeSuccess(jobType string)
	RecordScrapeFailure(jobType string)
	RecordProviderCall(actor string)
	RecordProviderJobLatency(actor string, duration time.Duration)
	RecordPagesFetched(count int)
	RecordProfilesCreated(count int)
	RecordProfilesUpdated(count int)
	RecordProfilesMerged(count int)
	RecordWebhookDelivery(success bool)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	scrapeSuccess      *prometheus.CounterVec
	scrapeFail         *prometheus.CounterVec
	providerCalls      *prometheus.CounterVec
	providerJobLatency *prometheus.HistogramVec
	pagesFetched       prometheus.Counter
	profilesCreated    prometheus.Counter
	profilesUpdated    prometheus.Counter
	profilesMerged     prometheus.Counter
	webhookSuccess     prometheus.Counter
	webhookFail        prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		scrapeSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engagemint_scrape_success_total",
			Help: "スクレイプジョブ成功の合計数",
		}, []string{"job_type"}),
		scrapeFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engagemint_scrape_fail_total",
			Help: "スクレイプジョブ失敗の合計数",
		}, []string{"job_type"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engagemint_provider_calls_total",
			Help: "プロバイダアクター呼び出しの合計数",
		}, []string{"actor"}),
		providerJobLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "engagemint_provider_job_latency_seconds",
			Help:    "プロバイダジョブの完了までのレイテンシ（秒）",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"actor"}),
		pagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engagemint_pages_fetched_total",
			Help: "取得したリアクション/コメントページの合計数",
		}),
		profilesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engagemint_profiles_created_total",
			Help: "新規作成されたプロフィールの合計数",
		}),
		profilesUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engagemint_profiles_updated_total",
			Help: "更新されたプロフィールの合計数",
		}),
		profilesMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engagemint_profiles_merged_total",
			Help: "マージで削除された重複プロフィールの合計数",
		}),
		webhookSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engagemint_webhook_delivery_success_total",
			Help: "Webhook送信成功の合計数",
		}),
		webhookFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engagemint_webhook_delivery_fail_total",
			Help: "Webhook送信失敗の合計数",
		}),
	}

	reg.MustRegister(
		c.scrapeSuccess,
		c.scrapeFail,
		c.providerCalls,
		c.providerJobLatency,
		c.pagesFetched,
		c.profilesCreated,
		c.profilesUpdated,
		c.profilesMerged,
		c.webhookSuccess,
		c.webhookFail,
	)

	return c
}

// RecordScrapeSuccess はスクレイプジョブの成功を記録する。
func (c *Collector) RecordScrapeSuccess(jobType string) {
	c.scrapeSuccess.WithLabelValues(jobType).Inc()
}

// RecordScrapeFailure はスクレイプジョブの失敗を記録する。
func (c *Collector) RecordScrapeFailure(jobType string) {
	c.scrapeFail.WithLabelValues(jobType).Inc()
}

// RecordProviderCall はプロバイダアクターの呼び出しを記録する。
func (c *Collector) RecordProviderCall(actor string) {
	c.providerCalls.WithLabelValues(actor).Inc()
}

// RecordProviderJobLatency はプロバイダジョブのレイテンシを記録する。
func (c *Collector) RecordProviderJobLatency(actor string, duration time.Duration) {
	c.providerJobLatency.WithLabelValues(actor).Observe(duration.Seconds())
}

// RecordPagesFetched は取得したページ数を記録する。
func (c *Collector) RecordPagesFetched(count int) {
	c.pagesFetched.Add(float64(count))
}

// RecordProfilesCreated は新規作成されたプロフィール数を記録する。
func (c *Collector) RecordProfilesCreated(count int) {
	c.profilesCreated.Add(float64(count))
}

// RecordProfilesUpdated は更新されたプロフィール数を記録する。
func (c *Collector) RecordProfilesUpdated(count int) {
	c.profilesUpdated.Add(float64(count))
}

// RecordProfilesMerged はマージで削除された重複プロフィール数を記録する。
func (c *Collector) RecordProfilesMerged(count int) {
	c.profilesMerged.Add(float64(count))
}

// RecordWebhookDelivery はWebhook送信の結果を記録する。
func (c *Collector) RecordWebhookDelivery(success bool) {
	if success {
		c.webhookSuccess.Inc()
	} else {
		c.webhookFail.Inc()
	}
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
