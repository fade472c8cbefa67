package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/engagemint/internal/metrics"
	"github.com/hitoshi/engagemint/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	APIKeyResolver    middleware.APIKeyResolver
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// スクレイプ
	ScrapeService ScrapeServiceInterface

	// 進捗照会
	ProgressFinder ProgressFinder

	// 投稿
	PostReader    PostReader
	PostRegistrar PostRegistrar

	// プロフィール
	ProfileReader ProfileReader
	ProfileMerger ProfileMerger

	// Webhook
	WebhookService WebhookServiceInterface

	// 設定
	SettingsStore SettingsStore

	// メトリクス
	MetricsCollector metrics.MetricsCollector
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → APIKey → RateLimit(General)
//
// ヘルスチェック（/healthz）は認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}

	scrapeHandler := NewScrapeHandler(deps.ScrapeService)
	progressHandler := NewProgressHandler(deps.ProgressFinder)
	postHandler := NewPostHandler(deps.PostReader, deps.PostRegistrar)
	profileHandler := NewProfileHandler(deps.ProfileReader, deps.ProfileMerger, deps.MetricsCollector)
	webhookHandler := NewWebhookHandler(deps.WebhookService)
	settingsHandler := NewSettingsHandler(deps.SettingsStore)

	// --- 認証不要のルート ---

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: APIKey → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAPIKeyMiddleware(deps.APIKeyResolver))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// スクレイプ操作
		r.Route("/api/scrape", func(r chi.Router) {
			// ジョブ開始系のみスクレイプ専用レート制限を追加する。
			// 進捗のポーリングは一般レート制限のみで受け付ける。
			r.Group(func(r chi.Router) {
				r.Use(deps.RateLimiter.ScrapeMiddleware())

				r.Post("/reactions", scrapeHandler.ScrapeReactions)
				r.Post("/comments", scrapeHandler.ScrapeComments)
				r.Post("/profile-posts", scrapeHandler.ScrapeProfilePosts)
				r.Post("/engagement", scrapeHandler.RefreshEngagement)
				r.Post("/enrich", scrapeHandler.EnrichProfiles)
			})

			r.Get("/progress/{jobID}", progressHandler.GetProgress)
		})

		// 投稿管理
		r.Route("/api/posts", func(r chi.Router) {
			r.Get("/", postHandler.ListPosts)
			r.Post("/", postHandler.RegisterPost)
			r.Get("/{id}", postHandler.GetPost)
		})

		// プロフィール管理
		r.Route("/api/profiles", func(r chi.Router) {
			r.Get("/", profileHandler.ListProfiles)
			r.Get("/search", profileHandler.SearchProfiles)
			r.Post("/merge", profileHandler.MergeProfiles)
			r.Get("/{id}", profileHandler.GetProfile)
		})

		// Webhook管理
		r.Route("/api/webhooks", func(r chi.Router) {
			r.Get("/", webhookHandler.ListWebhooks)
			r.Post("/", webhookHandler.CreateWebhook)

			r.Route("/{id}", func(r chi.Router) {
				r.Put("/", webhookHandler.UpdateWebhook)
				r.Delete("/", webhookHandler.DeleteWebhook)
				r.Post("/push", webhookHandler.PushWebhook)
			})
		})

		// ユーザー設定
		r.Route("/api/settings", func(r chi.Router) {
			r.Get("/", settingsHandler.GetSettings)
			r.Put("/", settingsHandler.UpdateSettings)
		})
	})

	return r
}
