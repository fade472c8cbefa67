package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/engagemint/internal/model"
)

// postColumns は投稿テーブルのSELECT対象カラム。
const postColumns = `id, user_id, post_id, url, urn, author_name, author_headline,
	author_profile_url, text, num_likes, num_comments, num_shares,
	posted_at, scraped_at, last_reactions_scrape,
	engagement_needs_scraping, engagement_last_updated_at, created_at, updated_at`

// PostgresPostRepo はPostgreSQLを使用した投稿リポジトリ。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

// scanPost は1行をmodel.Postにスキャンする。
func scanPost(row interface{ Scan(...interface{}) error }) (*model.Post, error) {
	post := &model.Post{}
	var urn, authorName, authorHeadline, authorProfileURL, text sql.NullString
	var postedAt, scrapedAt, lastReactionsScrape, engagementLastUpdatedAt sql.NullTime

	err := row.Scan(
		&post.ID, &post.UserID, &post.PostID, &post.URL, &urn,
		&authorName, &authorHeadline, &authorProfileURL, &text,
		&post.NumLikes, &post.NumComments, &post.NumShares,
		&postedAt, &scrapedAt, &lastReactionsScrape,
		&post.EngagementNeedsScraping, &engagementLastUpdatedAt,
		&post.CreatedAt, &post.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	post.URN = nullStringValue(urn)
	post.AuthorName = nullStringValue(authorName)
	post.AuthorHeadline = nullStringValue(authorHeadline)
	post.AuthorProfileURL = nullStringValue(authorProfileURL)
	post.Text = nullStringValue(text)
	post.PostedAt = nullTimeValue(postedAt)
	post.ScrapedAt = nullTimeValue(scrapedAt)
	post.LastReactionsScrape = nullTimeValue(lastReactionsScrape)
	post.EngagementLastUpdatedAt = nullTimeValue(engagementLastUpdatedAt)

	return post, nil
}

// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindByID(ctx context.Context, id string) (*model.Post, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = $1`, id)

	post, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	return post, nil
}

// FindByUserAndPostID は(user_id, post_id)で投稿を検索する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindByUserAndPostID(ctx context.Context, userID, postID string) (*model.Post, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE user_id = $1 AND post_id = $2`,
		userID, postID)

	post, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("post_id による投稿の検索に失敗しました: %w", err)
	}
	return post, nil
}

// ListByUser はユーザーの投稿一覧をscraped_at降順で返す。
func (r *PostgresPostRepo) ListByUser(ctx context.Context, userID string) ([]*model.Post, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts
		 WHERE user_id = $1
		 ORDER BY scraped_at DESC NULLS LAST, created_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("投稿一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectPosts(rows)
}

// ListByUserAndIDs はユーザーの投稿のうち指定IDに該当するものを返す。
func (r *PostgresPostRepo) ListByUserAndIDs(ctx context.Context, userID string, ids []string) ([]*model.Post, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts
		 WHERE user_id = $1 AND id = ANY($2)`,
		userID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("ID指定の投稿一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectPosts(rows)
}

// collectPosts はrowsを走査してmodel.Postのスライスを構築する。
func collectPosts(rows *sql.Rows) ([]*model.Post, error) {
	var posts []*model.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("投稿行の読み取りに失敗しました: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("投稿一覧の走査に失敗しました: %w", err)
	}
	return posts, nil
}

// Upsert は(user_id, post_id)を競合キーとして投稿を冪等にUPSERTする。
// 2回目以降のUPSERTは既存行のフィールドを上書きし、新しい行を作らない。
func (r *PostgresPostRepo) Upsert(ctx context.Context, post *model.Post) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO posts (id, user_id, post_id, url, urn, author_name, author_headline,
		                    author_profile_url, text, num_likes, num_comments, num_shares,
		                    posted_at, scraped_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now(), now())
		 ON CONFLICT (user_id, post_id) DO UPDATE SET
		    url = EXCLUDED.url,
		    urn = COALESCE(EXCLUDED.urn, posts.urn),
		    author_name = COALESCE(EXCLUDED.author_name, posts.author_name),
		    author_headline = COALESCE(EXCLUDED.author_headline, posts.author_headline),
		    author_profile_url = COALESCE(EXCLUDED.author_profile_url, posts.author_profile_url),
		    text = COALESCE(EXCLUDED.text, posts.text),
		    num_likes = EXCLUDED.num_likes,
		    num_comments = EXCLUDED.num_comments,
		    num_shares = EXCLUDED.num_shares,
		    posted_at = COALESCE(EXCLUDED.posted_at, posts.posted_at),
		    scraped_at = EXCLUDED.scraped_at,
		    updated_at = now()
		 RETURNING id`,
		post.ID, post.UserID, post.PostID, post.URL, nullString(post.URN),
		nullString(post.AuthorName), nullString(post.AuthorHeadline),
		nullString(post.AuthorProfileURL), nullString(post.Text),
		post.NumLikes, post.NumComments, post.NumShares,
		post.PostedAt, post.ScrapedAt,
	)
	if err != nil {
		return "", fmt.Errorf("投稿のUPSERTに失敗しました: %w", err)
	}
	return id, nil
}

// FlagEngagement はengagement_needs_scrapingとengagement_last_updated_atを設定する。
func (r *PostgresPostRepo) FlagEngagement(ctx context.Context, postID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE posts SET engagement_needs_scraping = true,
		    engagement_last_updated_at = $2, updated_at = now()
		 WHERE id = $1`,
		postID, at)
	if err != nil {
		return fmt.Errorf("エンゲージメントフラグの設定に失敗しました: %w", err)
	}
	return nil
}

// ClearEngagementFlags は指定投稿のengagement_needs_scrapingをfalseに、
// engagement_last_updated_atをNULLに無条件でリセットする。
func (r *PostgresPostRepo) ClearEngagementFlags(ctx context.Context, postIDs []string) error {
	if len(postIDs) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE posts SET engagement_needs_scraping = false,
		    engagement_last_updated_at = NULL, updated_at = now()
		 WHERE id = ANY($1)`,
		pq.Array(postIDs))
	if err != nil {
		return fmt.Errorf("エンゲージメントフラグのクリアに失敗しました: %w", err)
	}
	return nil
}

// StampReactionsScrape はlast_reactions_scrapeを更新する。
func (r *PostgresPostRepo) StampReactionsScrape(ctx context.Context, postID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE posts SET last_reactions_scrape = $2, updated_at = now() WHERE id = $1`,
		postID, at)
	if err != nil {
		return fmt.Errorf("リアクションスクレイプ時刻の更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PostRepository = (*PostgresPostRepo)(nil)
