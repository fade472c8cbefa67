package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func newRateLimitTestHandler(mw func(next http.Handler) http.Handler) http.Handler {
	return mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func doRateLimitedRequest(handler http.Handler, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	req = req.WithContext(ContextWithUserID(req.Context(), userID))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterGeneral(t *testing.T) {
	config := RateLimiterConfig{
		GeneralRate:     rate.Limit(1.0 / 60.0),
		GeneralBurst:    3,
		ScrapeRate:      rate.Limit(1.0 / 60.0),
		ScrapeBurst:     1,
		CleanupInterval: time.Hour,
	}
	rl := NewRateLimiter(config)
	defer rl.Stop()

	handler := newRateLimitTestHandler(rl.GeneralMiddleware())

	t.Run("バースト以内のリクエストは許可される", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			rec := doRateLimitedRequest(handler, "user-1")
			if rec.Code != http.StatusOK {
				t.Errorf("リクエスト%dのステータスコードが一致しません: got %d, want %d", i+1, rec.Code, http.StatusOK)
			}
		}
	})

	t.Run("バースト超過のリクエストは429", func(t *testing.T) {
		rec := doRateLimitedRequest(handler, "user-1")
		if rec.Code != http.StatusTooManyRequests {
			t.Errorf("ステータスコードが一致しません: got %d, want %d", rec.Code, http.StatusTooManyRequests)
		}
		if rec.Header().Get("Retry-After") == "" {
			t.Error("Retry-Afterヘッダーが設定されるべきです")
		}
	})

	t.Run("別ユーザーのリクエストは独立して許可される", func(t *testing.T) {
		rec := doRateLimitedRequest(handler, "user-2")
		if rec.Code != http.StatusOK {
			t.Errorf("ステータスコードが一致しません: got %d, want %d", rec.Code, http.StatusOK)
		}
	})

	t.Run("ユーザーIDのないリクエストは401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコードが一致しません: got %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})
}

func TestRateLimiterScrapeIndependent(t *testing.T) {
	config := RateLimiterConfig{
		GeneralRate:     rate.Limit(100),
		GeneralBurst:    100,
		ScrapeRate:      rate.Limit(1.0 / 60.0),
		ScrapeBurst:     1,
		CleanupInterval: time.Hour,
	}
	rl := NewRateLimiter(config)
	defer rl.Stop()

	generalHandler := newRateLimitTestHandler(rl.GeneralMiddleware())
	scrapeHandler := newRateLimitTestHandler(rl.ScrapeMiddleware())

	// スクレイプの制限を使い切る
	if rec := doRateLimitedRequest(scrapeHandler, "user-1"); rec.Code != http.StatusOK {
		t.Fatalf("最初のスクレイプリクエストが許可されるべきです: got %d", rec.Code)
	}
	if rec := doRateLimitedRequest(scrapeHandler, "user-1"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("2回目のスクレイプリクエストは429になるべきです: got %d", rec.Code)
	}

	// API全般の制限には影響しない
	if rec := doRateLimitedRequest(generalHandler, "user-1"); rec.Code != http.StatusOK {
		t.Errorf("API全般のリクエストは許可されるべきです: got %d", rec.Code)
	}
}

func TestNewRateLimiterConfig(t *testing.T) {
	config := NewRateLimiterConfig(120, 10)

	if config.GeneralBurst != 120 {
		t.Errorf("GeneralBurstが一致しません: got %d, want %d", config.GeneralBurst, 120)
	}
	if config.ScrapeBurst != 10 {
		t.Errorf("ScrapeBurstが一致しません: got %d, want %d", config.ScrapeBurst, 10)
	}
	wantGeneral := rate.Limit(2.0)
	if config.GeneralRate != wantGeneral {
		t.Errorf("GeneralRateが一致しません: got %v, want %v", config.GeneralRate, wantGeneral)
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	config := RateLimiterConfig{
		GeneralRate:     rate.Limit(1),
		GeneralBurst:    1,
		ScrapeRate:      rate.Limit(1),
		ScrapeBurst:     1,
		CleanupInterval: time.Nanosecond,
	}
	rl := NewRateLimiter(config)
	defer rl.Stop()

	handler := newRateLimitTestHandler(rl.GeneralMiddleware())
	doRateLimitedRequest(handler, "user-1")

	if rl.GeneralLimiterCount() != 1 {
		t.Fatalf("リミッターのエントリ数が一致しません: got %d, want 1", rl.GeneralLimiterCount())
	}

	// TTL(CleanupInterval*2)経過後のクリーンアップでエントリが削除される
	time.Sleep(time.Millisecond)
	rl.cleanup()

	if rl.GeneralLimiterCount() != 0 {
		t.Errorf("クリーンアップ後のエントリ数が一致しません: got %d, want 0", rl.GeneralLimiterCount())
	}
}
