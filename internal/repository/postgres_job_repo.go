package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/engagemint/internal/model"
)

// PostgresScrapeJobRepo はPostgreSQLを使用したスクレイプジョブ監査リポジトリ。
type PostgresScrapeJobRepo struct {
	db *sql.DB
}

// NewPostgresScrapeJobRepo はPostgresScrapeJobRepoを生成する。
func NewPostgresScrapeJobRepo(db *sql.DB) *PostgresScrapeJobRepo {
	return &PostgresScrapeJobRepo{db: db}
}

// Create はジョブレコードを作成する。
func (r *PostgresScrapeJobRepo) Create(ctx context.Context, job *model.ScrapeJob) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO scrape_jobs (id, user_id, job_type, status, post_ids, item_count, error_text, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.UserID, string(job.JobType), string(job.Status),
		pq.Array(job.PostIDs), job.ItemCount, nullString(job.ErrorText), job.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("スクレイプジョブレコードの作成に失敗しました: %w", err)
	}
	return nil
}

// Finish はジョブの終了状態・件数・エラーテキストを記録する。
func (r *PostgresScrapeJobRepo) Finish(ctx context.Context, jobID string, status model.ScrapeJobStatus, itemCount int, errorText string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE scrape_jobs SET status = $2, item_count = $3, error_text = $4, finished_at = now()
		 WHERE id = $1`,
		jobID, string(status), itemCount, nullString(errorText),
	)
	if err != nil {
		return fmt.Errorf("スクレイプジョブレコードの更新に失敗しました: %w", err)
	}
	return nil
}

// PostgresProgressRepo はPostgreSQLを使用した進捗レコードリポジトリ。
// マルチインスタンス構成でも進捗が失われないよう、永続テーブルを単一の設計とする。
type PostgresProgressRepo struct {
	db *sql.DB
}

// NewPostgresProgressRepo はPostgresProgressRepoを生成する。
func NewPostgresProgressRepo(db *sql.DB) *PostgresProgressRepo {
	return &PostgresProgressRepo{db: db}
}

// Create は進捗レコードを作成する。
func (r *PostgresProgressRepo) Create(ctx context.Context, record *model.ProgressRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO scrape_progress (job_id, user_id, status, progress, current_step,
		                              total_posts, processed_posts, error_message, result,
		                              created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())`,
		record.JobID, record.UserID, string(record.Status), record.Progress,
		nullString(record.CurrentStep), record.TotalPosts, record.ProcessedPosts,
		nullString(record.ErrorMessage), record.Result,
	)
	if err != nil {
		return fmt.Errorf("進捗レコードの作成に失敗しました: %w", err)
	}
	return nil
}

// Update は進捗レコードを上書き更新する。
func (r *PostgresProgressRepo) Update(ctx context.Context, record *model.ProgressRecord) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE scrape_progress SET
		    status = $2, progress = $3, current_step = $4,
		    total_posts = $5, processed_posts = $6, error_message = $7,
		    result = $8, updated_at = now()
		 WHERE job_id = $1`,
		record.JobID, string(record.Status), record.Progress,
		nullString(record.CurrentStep), record.TotalPosts, record.ProcessedPosts,
		nullString(record.ErrorMessage), record.Result,
	)
	if err != nil {
		return fmt.Errorf("進捗レコードの更新に失敗しました: %w", err)
	}
	return nil
}

// FindByJobID は指定ジョブIDの進捗レコードを取得する。見つからない場合はnilを返す。
func (r *PostgresProgressRepo) FindByJobID(ctx context.Context, jobID string) (*model.ProgressRecord, error) {
	record := &model.ProgressRecord{}
	var status string
	var currentStep, errorMessage sql.NullString
	var result []byte

	err := r.db.QueryRowContext(ctx,
		`SELECT job_id, user_id, status, progress, current_step,
		        total_posts, processed_posts, error_message, result, created_at, updated_at
		 FROM scrape_progress WHERE job_id = $1`,
		jobID,
	).Scan(&record.JobID, &record.UserID, &status, &record.Progress, &currentStep,
		&record.TotalPosts, &record.ProcessedPosts, &errorMessage, &result,
		&record.CreatedAt, &record.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("進捗レコードの取得に失敗しました: %w", err)
	}

	record.Status = model.ProgressStatus(status)
	record.CurrentStep = nullStringValue(currentStep)
	record.ErrorMessage = nullStringValue(errorMessage)
	record.Result = result

	return record, nil
}

// DeleteTerminalBefore は終端状態かつupdated_atがcutoffより古いレコードを削除し、
// 削除件数を返す。
func (r *PostgresProgressRepo) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM scrape_progress
		 WHERE status IN ('completed', 'error') AND updated_at < $1`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("終端進捗レコードの削除に失敗しました: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return deleted, nil
}

// compile-time interface check
var _ ScrapeJobRepository = (*PostgresScrapeJobRepo)(nil)
var _ ProgressRepository = (*PostgresProgressRepo)(nil)
