// Package provider はスクレイピングプロバイダの非同期ジョブAPIクライアントを提供する。
// ジョブ投入→完了待ち→データセット取得の3段階で、アクターごとに型付きの
// 入出力スキーマを境界で検証する。
package provider

import "time"

// Actor はプロバイダ側の名前付きスクレイピングタスクを表す。
type Actor string

const (
	// ActorPostReactions は投稿のリアクションをページ単位で取得するアクター。
	ActorPostReactions Actor = "post-reactions"
	// ActorPostDetail は投稿メタデータを取得するアクター。
	ActorPostDetail Actor = "post-detail"
	// ActorPostComments は複数投稿のコメントをバッチ・ページ単位で取得するアクター。
	ActorPostComments Actor = "post-comments"
	// ActorProfilePosts はプロフィールの投稿一覧を取得するアクター。
	ActorProfilePosts Actor = "profile-posts"
	// ActorProfileEnrichment はプロフィールのエンリッチメントデータを取得するアクター。
	ActorProfileEnrichment Actor = "profile-enrichment"
)

// RunStatus はプロバイダ側ジョブのステータスを表す。
type RunStatus string

const (
	// RunStatusQueued はジョブが待機中であることを示す。
	RunStatusQueued RunStatus = "queued"
	// RunStatusRunning はジョブが実行中であることを示す。
	RunStatusRunning RunStatus = "running"
	// RunStatusSucceeded はジョブが成功したことを示す。
	RunStatusSucceeded RunStatus = "succeeded"
	// RunStatusFailed はジョブが失敗したことを示す。
	RunStatusFailed RunStatus = "failed"
)

// IsTerminal はステータスが終端状態かを返す。
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed
}

// ReactionsInput はpost-reactionsアクターの入力。
type ReactionsInput struct {
	PostURL string `json:"post_url"`
	Page    int    `json:"page"`
	Limit   int    `json:"limit"`
}

// PostDetailInput はpost-detailアクターの入力。
type PostDetailInput struct {
	PostURLs []string `json:"post_urls"`
}

// CommentsInput はpost-commentsアクターの入力。
// PostIDsは1回の呼び出しにつき最大100件（プロバイダ側のバッチ上限）。
type CommentsInput struct {
	PostIDs []string `json:"post_ids"`
	Page    int      `json:"page"`
	Limit   int      `json:"limit"`
}

// ProfilePostsInput はprofile-postsアクターの入力。
type ProfilePostsInput struct {
	ProfileURL string `json:"profile_url"`
	Limit      int    `json:"limit"`
}

// EnrichmentInput はprofile-enrichmentアクターの入力。
type EnrichmentInput struct {
	Identifiers []string `json:"identifiers"`
}

// ReactionItem はリアクション1件の取得結果。
type ReactionItem struct {
	ReactorProfileURL string `json:"reactor_profile_url"`
	ReactorURN        string `json:"reactor_urn"`
	Name              string `json:"name"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	Headline          string `json:"headline"`
	PictureURL        string `json:"picture_url"`
	PictureURLLarge   string `json:"picture_url_large"`
	ReactionType      string `json:"reaction_type"`
	// TotalReactions は対象投稿の総リアクション数。ページ1のメタデータとして
	// 全アイテムに複製されて返る。0の場合は不明。
	TotalReactions int `json:"total_reactions"`
}

// CommentItem はコメント1件の取得結果。
type CommentItem struct {
	PostID              string     `json:"post_id"`
	CommentID           string     `json:"comment_id"`
	CommenterProfileURL string     `json:"commenter_profile_url"`
	CommenterURN        string     `json:"commenter_urn"`
	Name                string     `json:"name"`
	FirstName           string     `json:"first_name"`
	LastName            string     `json:"last_name"`
	Headline            string     `json:"headline"`
	PictureURL          string     `json:"picture_url"`
	Text                string     `json:"text"`
	PostedAt            *time.Time `json:"posted_at"`
	// TotalComments は対象投稿の総コメント数。
	TotalComments int `json:"total_comments"`
}

// PostDetailItem は投稿メタデータ1件の取得結果。
type PostDetailItem struct {
	PostID           string     `json:"post_id"`
	URL              string     `json:"url"`
	URN              string     `json:"urn"`
	AuthorName       string     `json:"author_name"`
	AuthorHeadline   string     `json:"author_headline"`
	AuthorProfileURL string     `json:"author_profile_url"`
	Text             string     `json:"text"`
	NumLikes         int        `json:"num_likes"`
	NumComments      int        `json:"num_comments"`
	NumShares        int        `json:"num_shares"`
	PostedAt         *time.Time `json:"posted_at"`
}

// EnrichedProfile はエンリッチメント1件の取得結果。
type EnrichedProfile struct {
	Identifier         string     `json:"identifier"`
	URN                string     `json:"urn"`
	PublicIdentifier   string     `json:"public_identifier"`
	Name               string     `json:"name"`
	FirstName          string     `json:"first_name"`
	LastName           string     `json:"last_name"`
	Headline           string     `json:"headline"`
	PictureURL         string     `json:"picture_url"`
	Country            string     `json:"country"`
	City               string     `json:"city"`
	CurrentTitle       string     `json:"current_title"`
	CurrentCompany     string     `json:"current_company"`
	CompanyLinkedInURL string     `json:"company_linkedin_url"`
	EnrichedAt         *time.Time `json:"enriched_at"`
}

// submitResponse はジョブ投入APIのレスポンス。
type submitResponse struct {
	RunID string `json:"run_id"`
}

// runStatusResponse はジョブステータスAPIのレスポンス。
type runStatusResponse struct {
	RunID     string `json:"run_id"`
	Status    string `json:"status"`
	DatasetID string `json:"dataset_id"`
	Error     string `json:"error"`
}
