// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/engagemint/internal/model"
)

// PostRepository は投稿データの永続化インターフェース。
type PostRepository interface {
	// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Post, error)

	// FindByUserAndPostID は(user_id, post_id)で投稿を検索する。見つからない場合はnilを返す。
	FindByUserAndPostID(ctx context.Context, userID, postID string) (*model.Post, error)

	// ListByUser はユーザーの投稿一覧をscraped_at降順で返す。
	ListByUser(ctx context.Context, userID string) ([]*model.Post, error)

	// ListByUserAndIDs はユーザーの投稿のうち指定IDに該当するものを返す。
	ListByUserAndIDs(ctx context.Context, userID string, ids []string) ([]*model.Post, error)

	// Upsert は(user_id, post_id)を競合キーとして投稿を冪等にUPSERTする。
	// 2回目以降のUPSERTは既存行のフィールドを上書きし、新しい行を作らない。
	// 戻り値は保存後の行のID。
	Upsert(ctx context.Context, post *model.Post) (string, error)

	// FlagEngagement はengagement_needs_scrapingとengagement_last_updated_atを設定する。
	FlagEngagement(ctx context.Context, postID string, at time.Time) error

	// ClearEngagementFlags は指定投稿のengagement_needs_scrapingをfalseに、
	// engagement_last_updated_atをNULLに無条件でリセットする。
	ClearEngagementFlags(ctx context.Context, postIDs []string) error

	// StampReactionsScrape はlast_reactions_scrapeを更新する。
	StampReactionsScrape(ctx context.Context, postID string, at time.Time) error
}

// ProfileRepository はプロフィールデータの永続化インターフェース。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// FindByIdentifiers はサーバーサイド関数find_existing_profile_by_identifiersで
	// 多フィールドマッチングを行う。優先順位はurn > primary > secondary > public >
	// profile_url > alternative_urns包含で固定。見つからない場合はnilを返す。
	FindByIdentifiers(ctx context.Context, userID, urn, primary, secondary, public, profileURL string) (*model.Profile, error)

	// Create はプロフィールを作成する。
	Create(ctx context.Context, profile *model.Profile) error

	// Update はプロフィールの表示フィールド・識別子・エンリッチメント情報を更新する。
	Update(ctx context.Context, profile *model.Profile) error

	// AppendAlternativeURN はサーバーサイド関数add_alternative_urnで
	// alternative_urnsに重複なく追記する。
	AppendAlternativeURN(ctx context.Context, profileID, urn string) error

	// ListByUser はユーザーのプロフィール一覧をlast_updated降順で返す。
	// limitが0以下の場合は全件を返す。
	ListByUser(ctx context.Context, userID string, limit int) ([]*model.Profile, error)

	// ListByIDs は指定IDのプロフィールを返す。
	ListByIDs(ctx context.Context, ids []string) ([]*model.Profile, error)

	// SearchCandidates は名前または識別子の部分一致でマージ候補を検索する。
	SearchCandidates(ctx context.Context, userID, pattern string) ([]*model.Profile, error)

	// Delete は指定IDのプロフィールを削除する。
	Delete(ctx context.Context, id string) error

	// DeleteInTx はトランザクション内で複数プロフィールを削除する。
	// マージ時の付け替え後のloser削除に使用される。
	DeleteInTx(ctx context.Context, tx *sql.Tx, ids []string) error

	// EngagementStats はプロフィールのエンゲージメント集計を返す。
	// 見つからない場合はゼロ値を返す。
	EngagementStats(ctx context.Context, profileID string) (*ProfileEngagementStats, error)
}

// ReactionRepository はリアクションデータの永続化インターフェース。
type ReactionRepository interface {
	// Upsert は(post_id, reactor_profile_id, reaction_type)を競合キーとして
	// リアクションを冪等にUPSERTする。
	Upsert(ctx context.Context, reaction *model.Reaction) error

	// DeleteByPost は投稿のリアクションを全削除する。
	// フル再スクレイプのdelete-and-reinsert用。
	DeleteByPost(ctx context.Context, postID string) error

	// CountByPost は投稿のリアクション数を返す。
	CountByPost(ctx context.Context, postID string) (int, error)

	// RepointProfile は指定プロフィール群を参照するリアクションの
	// reactor_profile_idをkeeperIDに付け替える。
	RepointProfile(ctx context.Context, tx *sql.Tx, fromIDs []string, keeperID string) error
}

// CommentRepository はコメントデータの永続化インターフェース。
type CommentRepository interface {
	// Upsert は(post_id, comment_id)を競合キーとしてコメントを冪等にUPSERTする。
	Upsert(ctx context.Context, comment *model.Comment) error

	// RepointProfile は指定プロフィール群を参照するコメントの
	// commenter_profile_idをkeeperIDに付け替える。
	RepointProfile(ctx context.Context, tx *sql.Tx, fromIDs []string, keeperID string) error
}

// SettingsRepository はユーザー設定の永続化インターフェース。
type SettingsRepository interface {
	// FindByUserID はユーザー設定を取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.UserSettings, error)

	// Upsert はユーザー設定を冪等にUPSERTする。
	Upsert(ctx context.Context, settings *model.UserSettings) error

	// FindUserByAPIKey はプロバイダAPIキーからユーザーを逆引きする。
	// 見つからない場合はnilを返す。
	FindUserByAPIKey(ctx context.Context, apiKey string) (*model.UserSettings, error)
}

// WebhookRepository はWebhook設定の永続化インターフェース。
type WebhookRepository interface {
	// FindByID は指定IDのWebhookを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Webhook, error)

	// ListByUser はユーザーのWebhook一覧を返す。
	ListByUser(ctx context.Context, userID string) ([]*model.Webhook, error)

	// Create はWebhookを作成する。
	Create(ctx context.Context, webhook *model.Webhook) error

	// Update はWebhookの名前・URL・有効フラグを更新する。
	Update(ctx context.Context, webhook *model.Webhook) error

	// Delete は指定IDのWebhookを削除する。
	Delete(ctx context.Context, id string) error
}

// ScrapeJobRepository はスクレイプジョブ監査レコードの永続化インターフェース。追記専用。
type ScrapeJobRepository interface {
	// Create はジョブレコードを作成する。
	Create(ctx context.Context, job *model.ScrapeJob) error

	// Finish はジョブの終了状態・件数・エラーテキストを記録する。
	Finish(ctx context.Context, jobID string, status model.ScrapeJobStatus, itemCount int, errorText string) error
}

// ProgressRepository は進捗レコードの永続化インターフェース。
type ProgressRepository interface {
	// Create は進捗レコードを作成する。
	Create(ctx context.Context, record *model.ProgressRecord) error

	// Update は進捗レコードを上書き更新する。
	Update(ctx context.Context, record *model.ProgressRecord) error

	// FindByJobID は指定ジョブIDの進捗レコードを取得する。見つからない場合はnilを返す。
	FindByJobID(ctx context.Context, jobID string) (*model.ProgressRecord, error)

	// DeleteTerminalBefore は終端状態かつupdated_atがcutoffより古いレコードを削除し、
	// 削除件数を返す。
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ProfileEngagementStats はプロフィールのエンゲージメント集計を表す。
// Webhookペイロードの構築に使用される。
type ProfileEngagementStats struct {
	TotalReactions     int
	TotalComments      int
	PostsEngagedWith   int
	LastReactionType   string
	LastEngagedPostAt  *time.Time
	LastEngagedPostURL string
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
