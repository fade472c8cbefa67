package model

import "time"

// ScrapeJobType はスクレイプジョブの種別を表す。
type ScrapeJobType string

const (
	// ScrapeJobTypeReactions はリアクション取得ジョブ。
	ScrapeJobTypeReactions ScrapeJobType = "reactions"
	// ScrapeJobTypeComments はコメント取得ジョブ。
	ScrapeJobTypeComments ScrapeJobType = "comments"
	// ScrapeJobTypeProfilePosts はプロフィール投稿取得ジョブ。
	ScrapeJobTypeProfilePosts ScrapeJobType = "profile_posts"
	// ScrapeJobTypeEngagement はエンゲージメント差分検出ジョブ。
	ScrapeJobTypeEngagement ScrapeJobType = "engagement"
	// ScrapeJobTypeEnrichment はプロフィールエンリッチメントジョブ。
	ScrapeJobTypeEnrichment ScrapeJobType = "enrichment"
)

// ScrapeJobStatus はスクレイプジョブの終了状態を表す。
type ScrapeJobStatus string

const (
	// ScrapeJobStatusRunning はジョブが実行中であることを示す。
	ScrapeJobStatusRunning ScrapeJobStatus = "running"
	// ScrapeJobStatusCompleted はジョブが完了したことを示す（部分失敗を含む）。
	ScrapeJobStatusCompleted ScrapeJobStatus = "completed"
	// ScrapeJobStatusFailed はバッチ処理開始前の失敗を示す。
	ScrapeJobStatusFailed ScrapeJobStatus = "failed"
)

// ScrapeJob はトリガーされたバッチ操作1回につき1行の監査レコード。追記専用。
type ScrapeJob struct {
	ID        string
	UserID    string
	JobType   ScrapeJobType
	Status    ScrapeJobStatus
	PostIDs   []string
	ItemCount int
	ErrorText string
	StartedAt  time.Time
	FinishedAt *time.Time
}
