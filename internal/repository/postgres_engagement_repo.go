package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/engagemint/internal/model"
)

// PostgresReactionRepo はPostgreSQLを使用したリアクションリポジトリ。
type PostgresReactionRepo struct {
	db *sql.DB
}

// NewPostgresReactionRepo はPostgresReactionRepoを生成する。
func NewPostgresReactionRepo(db *sql.DB) *PostgresReactionRepo {
	return &PostgresReactionRepo{db: db}
}

// Upsert は(post_id, reactor_profile_id, reaction_type)を競合キーとして
// リアクションを冪等にUPSERTする。
func (r *PostgresReactionRepo) Upsert(ctx context.Context, reaction *model.Reaction) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reactions (id, post_id, reactor_profile_id, reaction_type, scraped_at, page_number)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (post_id, reactor_profile_id, reaction_type) DO UPDATE SET
		    scraped_at = EXCLUDED.scraped_at,
		    page_number = EXCLUDED.page_number`,
		reaction.ID, reaction.PostID, reaction.ReactorProfileID,
		reaction.ReactionType, reaction.ScrapedAt, reaction.PageNumber,
	)
	if err != nil {
		return fmt.Errorf("リアクションのUPSERTに失敗しました: %w", err)
	}
	return nil
}

// DeleteByPost は投稿のリアクションを全削除する。
// フル再スクレイプのdelete-and-reinsert用。
func (r *PostgresReactionRepo) DeleteByPost(ctx context.Context, postID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM reactions WHERE post_id = $1`, postID)
	if err != nil {
		return fmt.Errorf("リアクションの削除に失敗しました: %w", err)
	}
	return nil
}

// CountByPost は投稿のリアクション数を返す。
func (r *PostgresReactionRepo) CountByPost(ctx context.Context, postID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM reactions WHERE post_id = $1`, postID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("リアクション数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// RepointProfile は指定プロフィール群を参照するリアクションの
// reactor_profile_idをkeeperIDに付け替える。
// 競合キー重複（keeperが既に同じリアクションを持つ場合）は重複側を削除してから付け替える。
func (r *PostgresReactionRepo) RepointProfile(ctx context.Context, tx *sql.Tx, fromIDs []string, keeperID string) error {
	if len(fromIDs) == 0 {
		return nil
	}

	// keeper側に同一(post, type)のリアクションが既に存在する行は付け替えると
	// 一意制約に違反するため先に削除する
	_, err := tx.ExecContext(ctx,
		`DELETE FROM reactions r
		 WHERE r.reactor_profile_id = ANY($1)
		   AND EXISTS (
		       SELECT 1 FROM reactions k
		       WHERE k.post_id = r.post_id
		         AND k.reaction_type = r.reaction_type
		         AND k.reactor_profile_id = $2
		   )`,
		pq.Array(fromIDs), keeperID)
	if err != nil {
		return fmt.Errorf("重複リアクションの削除に失敗しました: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE reactions SET reactor_profile_id = $2
		 WHERE reactor_profile_id = ANY($1)`,
		pq.Array(fromIDs), keeperID)
	if err != nil {
		return fmt.Errorf("リアクションの付け替えに失敗しました: %w", err)
	}
	return nil
}

// PostgresCommentRepo はPostgreSQLを使用したコメントリポジトリ。
type PostgresCommentRepo struct {
	db *sql.DB
}

// NewPostgresCommentRepo はPostgresCommentRepoを生成する。
func NewPostgresCommentRepo(db *sql.DB) *PostgresCommentRepo {
	return &PostgresCommentRepo{db: db}
}

// Upsert は(post_id, comment_id)を競合キーとしてコメントを冪等にUPSERTする。
func (r *PostgresCommentRepo) Upsert(ctx context.Context, comment *model.Comment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO comments (id, post_id, commenter_profile_id, comment_id, text,
		                       posted_at, scraped_at, page_number)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (post_id, comment_id) DO UPDATE SET
		    commenter_profile_id = EXCLUDED.commenter_profile_id,
		    text = EXCLUDED.text,
		    posted_at = COALESCE(EXCLUDED.posted_at, comments.posted_at),
		    scraped_at = EXCLUDED.scraped_at,
		    page_number = EXCLUDED.page_number`,
		comment.ID, comment.PostID, comment.CommenterProfileID,
		comment.CommentID, nullString(comment.Text),
		comment.PostedAt, comment.ScrapedAt, comment.PageNumber,
	)
	if err != nil {
		return fmt.Errorf("コメントのUPSERTに失敗しました: %w", err)
	}
	return nil
}

// RepointProfile は指定プロフィール群を参照するコメントの
// commenter_profile_idをkeeperIDに付け替える。
func (r *PostgresCommentRepo) RepointProfile(ctx context.Context, tx *sql.Tx, fromIDs []string, keeperID string) error {
	if len(fromIDs) == 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE comments SET commenter_profile_id = $2
		 WHERE commenter_profile_id = ANY($1)`,
		pq.Array(fromIDs), keeperID)
	if err != nil {
		return fmt.Errorf("コメントの付け替えに失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ReactionRepository = (*PostgresReactionRepo)(nil)
var _ CommentRepository = (*PostgresCommentRepo)(nil)
