package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestNewCollector_Registers は全メトリクスがレジストリに登録されることを検証する。
func TestNewCollector_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordScrapeSuccess("reactions")
	c.RecordScrapeFailure("comments")
	c.RecordProviderCall("post-reactions")
	c.RecordProviderJobLatency("post-reactions", 5*time.Second)
	c.RecordPagesFetched(3)
	c.RecordProfilesCreated(10)
	c.RecordProfilesUpdated(5)
	c.RecordProfilesMerged(2)
	c.RecordWebhookDelivery(true)
	c.RecordWebhookDelivery(false)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("メトリクスの収集に失敗しました: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("メトリクスが登録されていません")
	}
}

// TestSetupMetricsRoute_ServesMetrics は/metricsパスでメトリクスが返ることを検証する。
func TestSetupMetricsRoute_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordScrapeSuccess("reactions")
	c.RecordPagesFetched(3)

	handler := SetupMetricsRoute(reg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	if !strings.Contains(bodyStr, "engagemint_scrape_success_total") {
		t.Error("response should contain engagemint_scrape_success_total metric")
	}
	if !strings.Contains(bodyStr, "engagemint_pages_fetched_total") {
		t.Error("response should contain engagemint_pages_fetched_total metric")
	}
}
