package model

import "time"

// Reaction は投稿に対するリアクションを表す。
// (post_id, reactor_profile_id, reaction_type) の組み合わせで一意となり、
// 冪等なUPSERTの競合キーとして使用される。
type Reaction struct {
	ID               string
	PostID           string
	ReactorProfileID string
	ReactionType     string // like, celebrate, support, love, insightful, funny
	ScrapedAt        time.Time
	PageNumber       int // 取得元ページ番号（プロビナンス）
}

// Comment は投稿に対するコメントを表す。
// プロバイダが採番するCommentIDで同一性を判定する。
type Comment struct {
	ID                 string
	PostID             string
	CommenterProfileID string
	// CommentID はプロバイダ側のコメント識別子。
	CommentID  string
	Text       string // サニタイズ済み
	PostedAt   *time.Time
	ScrapedAt  time.Time
	PageNumber int
}
