// Package model はドメインモデルを定義する。
package model

import "time"

// Post はLinkedInの投稿を表す。
// (user_id, post_id) の組み合わせで一意となり、UPSERTの競合キーとして使用される。
type Post struct {
	ID       string
	UserID   string
	PostID   string // LinkedIn上の投稿ID（URNの末尾部分）
	URL      string
	URN      string
	AuthorName       string
	AuthorHeadline   string
	AuthorProfileURL string
	Text     string // サニタイズ済み本文
	NumLikes    int
	NumComments int
	NumShares   int
	PostedAt            *time.Time
	ScrapedAt           *time.Time
	LastReactionsScrape *time.Time

	// EngagementNeedsScraping は直近のスクレイプでカウンターの変化が
	// 観測された場合にのみtrueになる。
	EngagementNeedsScraping bool
	// EngagementLastUpdatedAt はカウンター変化を検出した時刻。変化がない場合はnil。
	EngagementLastUpdatedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EngagementCounters は投稿のエンゲージメントカウンターの組を表す。
// 差分検出の入力として使用される。未取得の値は0として扱う。
type EngagementCounters struct {
	Likes    int
	Comments int
	Shares   int
}

// Counters は投稿の現在のカウンターをEngagementCountersとして返す。
func (p *Post) Counters() EngagementCounters {
	return EngagementCounters{
		Likes:    p.NumLikes,
		Comments: p.NumComments,
		Shares:   p.NumShares,
	}
}
