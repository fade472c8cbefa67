// Package cleanup は進捗レコードとスクレイプジョブ監査レコードの
// 自動削除ジョブを提供する。終端状態に達した進捗レコードは保持期間
// （デフォルト30秒）経過後に、監査レコードは保持日数（デフォルト30日）
// 経過後に削除される。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/engagemint/internal/repository"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob は期限切れレコードの自動削除ジョブ。
// 定期実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	progress repository.ProgressRepository
	db       Executor
	logger   *slog.Logger

	// ProgressRetention は終端状態の進捗レコードの保持期間（デフォルト: 30秒）。
	ProgressRetention time.Duration
	// JobRetentionDays はスクレイプジョブ監査レコードの保持日数（デフォルト: 30）。
	JobRetentionDays int
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(progress repository.ProgressRepository, db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		progress:          progress,
		db:                db,
		logger:            logger,
		ProgressRetention: 30 * time.Second,
		JobRetentionDays:  30,
	}
}

// Run は期限切れの進捗レコードと監査レコードを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	cutoff := time.Now().Add(-j.ProgressRetention)
	progressDeleted, err := j.progress.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("進捗レコードのクリーンアップに失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("進捗レコードのクリーンアップに失敗: %w", err)
	}

	jobsDeleted, err := j.deleteOldScrapeJobs(ctx)
	if err != nil {
		j.logger.Error("スクレイプジョブレコードのクリーンアップに失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.JobRetentionDays),
		)
		return fmt.Errorf("スクレイプジョブレコードのクリーンアップに失敗: %w", err)
	}

	duration := time.Since(start)
	if progressDeleted > 0 || jobsDeleted > 0 {
		j.logger.Info("クリーンアップジョブが完了しました",
			slog.Int64("progress_deleted", progressDeleted),
			slog.Int64("jobs_deleted", jobsDeleted),
			slog.Float64("duration_ms", float64(duration.Milliseconds())),
		)
	}

	return nil
}

// deleteOldScrapeJobs は保持日数を超過した終端状態の監査レコードを削除する。
func (j *CleanupJob) deleteOldScrapeJobs(ctx context.Context) (int64, error) {
	interval := fmt.Sprintf("%d days", j.JobRetentionDays)

	query := `DELETE FROM scrape_jobs WHERE status <> 'running' AND started_at < now() - $1::interval`
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Start は指定間隔のティッカーでクリーンアップジョブを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("クリーンアップワーカーを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("progress_retention", j.ProgressRetention),
		slog.Int("job_retention_days", j.JobRetentionDays),
	)

	// 起動直後に1回実行
	if err := j.Run(ctx); err != nil {
		j.logger.Error("クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップワーカーを停止しました")
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("クリーンアップジョブの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
