// Package app はアプリケーションの起動とワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/engagemint/internal/collector"
	"github.com/hitoshi/engagemint/internal/config"
	"github.com/hitoshi/engagemint/internal/database"
	"github.com/hitoshi/engagemint/internal/engagement"
	"github.com/hitoshi/engagemint/internal/handler"
	"github.com/hitoshi/engagemint/internal/logger"
	"github.com/hitoshi/engagemint/internal/merge"
	"github.com/hitoshi/engagemint/internal/metrics"
	"github.com/hitoshi/engagemint/internal/middleware"
	"github.com/hitoshi/engagemint/internal/progress"
	"github.com/hitoshi/engagemint/internal/provider"
	"github.com/hitoshi/engagemint/internal/repository"
	"github.com/hitoshi/engagemint/internal/resolver"
	"github.com/hitoshi/engagemint/internal/scrape"
	"github.com/hitoshi/engagemint/internal/security"
	"github.com/hitoshi/engagemint/internal/webhook"
	"github.com/hitoshi/engagemint/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	postRepo := repository.NewPostgresPostRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)
	reactionRepo := repository.NewPostgresReactionRepo(db)
	commentRepo := repository.NewPostgresCommentRepo(db)
	settingsRepo := repository.NewPostgresSettingsRepo(db)
	webhookRepo := repository.NewPostgresWebhookRepo(db)
	jobRepo := repository.NewPostgresScrapeJobRepo(db)
	progressRepo := repository.NewPostgresProgressRepo(db)

	// 3. メトリクスとセキュリティサービスの初期化
	registry := prometheus.NewRegistry()
	metricsCollector := metrics.NewCollector(registry)

	sanitizer := security.NewTextSanitizer()
	webhookGuard := security.NewWebhookGuard()

	// 4. ドメインサービスの初期化
	providerClient := provider.NewClient(cfg.ProviderBaseURL, cfg.ProviderPollInterval, cfg.ProviderJobTimeout)

	pageCollector := collector.New(providerClient, collector.Options{
		ReactionPageSize:      cfg.ReactionPageSize,
		MaxReactionPages:      cfg.MaxReactionPages,
		ReactionConcurrency:   cfg.ReactionBatchSize,
		CommentBatchSize:      cfg.CommentBulkBatchSize,
		CommentConcurrency:    cfg.CommentMaxConcurrency,
		CommentMaxPages:       cfg.CommentMaxPages,
		EnrichmentChunkSize:   cfg.EnrichmentChunkSize,
		EnrichmentConcurrency: cfg.EnrichmentMaxConcurrency,
	}, metricsCollector)

	tracker := progress.NewTracker(progressRepo)
	profileResolver := resolver.New(profileRepo)
	engagementService := engagement.NewService(postRepo)
	webhookService := webhook.NewService(webhookRepo, profileRepo, webhookGuard, metricsCollector, cfg.WebhookTimeout, cfg.WebhookSendDelay)
	mergeEngine := merge.NewEngine(db, profileRepo, reactionRepo, commentRepo)

	scrapeService := scrape.NewService(scrape.Deps{
		Settings:         settingsRepo,
		Posts:            postRepo,
		Profiles:         profileRepo,
		Reactions:        reactionRepo,
		Comments:         commentRepo,
		Jobs:             jobRepo,
		Tracker:          tracker,
		Collector:        pageCollector,
		Fetcher:          providerClient,
		Resolver:         profileResolver,
		Engagement:       engagementService,
		Sanitizer:        sanitizer,
		Pusher:           webhookService,
		Metrics:          metricsCollector,
		ReactionPageSize: cfg.ReactionPageSize,
	})

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitScrape),
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		APIKeyResolver:    settingsRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		ScrapeService:  scrapeService,
		ProgressFinder: tracker,
		PostReader:     postRepo,
		PostRegistrar:  scrapeService,
		ProfileReader:  profileRepo,
		ProfileMerger:  mergeEngine,
		WebhookService: webhookService,
		SettingsStore:  settingsRepo,

		MetricsCollector: metricsCollector,
	})

	// /metrics はAPIミドルウェアチェーンの外に公開する
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.SetupMetricsRoute(registry))
	mux.Handle("/", router)

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はクリーンアップワーカーモードで起動する。
// 期限切れの進捗レコードとスクレイプジョブ監査レコードを定期削除する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. クリーンアップジョブの初期化
	progressRepo := repository.NewPostgresProgressRepo(db)
	cleanupJob := cleanup.NewCleanupJob(progressRepo, db, slog.Default())
	cleanupJob.ProgressRetention = cfg.ProgressRetention
	cleanupJob.JobRetentionDays = cfg.JobRetentionDays

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	// クリーンアップワーカーをメインgoroutineで実行（ブロッキング）
	cleanupJob.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /healthz エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
