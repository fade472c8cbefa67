// Package config は環境変数ベースのアプリケーション設定を提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Provider
	ProviderBaseURL      string
	ProviderPollInterval time.Duration
	ProviderJobTimeout   time.Duration

	// Collector
	ReactionPageSize         int
	MaxReactionPages         int
	ReactionBatchSize        int
	CommentBulkBatchSize     int
	CommentMaxConcurrency    int
	CommentMaxPages          int
	EnrichmentChunkSize      int
	EnrichmentMaxConcurrency int

	// Webhook
	WebhookTimeout   time.Duration
	WebhookSendDelay time.Duration

	// Cleanup
	ProgressRetention time.Duration
	JobRetentionDays  int
	CleanupInterval   time.Duration

	// Rate Limit
	RateLimitGeneral int
	RateLimitScrape  int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ProviderBaseURL = getEnvString("PROVIDER_BASE_URL", "https://api.scrapeprovider.com/v2")
	cfg.ProviderPollInterval = getEnvDuration("PROVIDER_POLL_INTERVAL", 5*time.Second)
	cfg.ProviderJobTimeout = getEnvDuration("PROVIDER_JOB_TIMEOUT", 30*time.Minute)

	cfg.ReactionPageSize = getEnvInt("REACTION_PAGE_SIZE", 100)
	cfg.MaxReactionPages = getEnvInt("MAX_REACTION_PAGES", 10)
	cfg.ReactionBatchSize = getEnvInt("REACTION_BATCH_SIZE", 8)
	cfg.CommentBulkBatchSize = getEnvInt("COMMENT_BULK_BATCH_SIZE", 100)
	cfg.CommentMaxConcurrency = getEnvInt("COMMENT_MAX_CONCURRENCY", 32)
	cfg.CommentMaxPages = getEnvInt("COMMENT_MAX_PAGES", 20)
	cfg.EnrichmentChunkSize = getEnvInt("ENRICHMENT_CHUNK_SIZE", 50)
	cfg.EnrichmentMaxConcurrency = getEnvInt("ENRICHMENT_MAX_CONCURRENCY", 32)

	cfg.WebhookTimeout = getEnvDuration("WEBHOOK_TIMEOUT", 10*time.Second)
	cfg.WebhookSendDelay = getEnvDuration("WEBHOOK_SEND_DELAY", 100*time.Millisecond)

	cfg.ProgressRetention = getEnvDuration("PROGRESS_RETENTION", 30*time.Second)
	cfg.JobRetentionDays = getEnvInt("JOB_RETENTION_DAYS", 30)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 1*time.Minute)

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitScrape = getEnvInt("RATE_LIMIT_SCRAPE", 10)

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
