// Package progress は長時間ジョブの進捗追跡を提供する。
// 進捗レコードは永続ストアに保存され、ポーリングAPIから参照される。
package progress

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hitoshi/engagemint/internal/model"
	"github.com/hitoshi/engagemint/internal/repository"
)

// Tracker は進捗レコードの作成・参照を行う。
type Tracker struct {
	repo repository.ProgressRepository
}

// NewTracker はTrackerを生成する。
func NewTracker(repo repository.ProgressRepository) *Tracker {
	return &Tracker{repo: repo}
}

// Find は指定ジョブIDの進捗レコードを取得する。見つからない場合はnilを返す。
func (t *Tracker) Find(ctx context.Context, jobID string) (*model.ProgressRecord, error) {
	return t.repo.FindByJobID(ctx, jobID)
}

// Start はstarting状態の進捗レコードを作成し、ジョブハンドルを返す。
func (t *Tracker) Start(ctx context.Context, jobID, userID string, totalPosts int) (*Job, error) {
	record := &model.ProgressRecord{
		JobID:       jobID,
		UserID:      userID,
		Status:      model.ProgressStatusStarting,
		Progress:    0,
		CurrentStep: "ジョブを開始しています",
		TotalPosts:  totalPosts,
	}
	if err := t.repo.Create(ctx, record); err != nil {
		return nil, err
	}
	return &Job{repo: t.repo, record: record}, nil
}

// Job は実行中ジョブ1件の進捗ハンドル。
// 更新はベストエフォートで、ストアへの書き込み失敗はジョブ本体を止めない。
type Job struct {
	repo   repository.ProgressRepository
	record *model.ProgressRecord
}

// Update はステータス・進捗率・現在ステップを更新する。
func (j *Job) Update(ctx context.Context, status model.ProgressStatus, percent int, step string) {
	j.record.Status = status
	j.record.Progress = percent
	j.record.CurrentStep = step
	j.flush(ctx)
}

// Advance は処理済み投稿数を更新し、進捗率をlo〜hiの範囲に按分して反映する。
func (j *Job) Advance(ctx context.Context, processed, lo, hi int, step string) {
	j.record.ProcessedPosts = processed
	if j.record.TotalPosts > 0 {
		j.record.Progress = lo + (hi-lo)*processed/j.record.TotalPosts
	}
	j.record.CurrentStep = step
	j.flush(ctx)
}

// Complete はジョブを正常終了させ、結果ペイロードを保存する。
func (j *Job) Complete(ctx context.Context, result any) {
	payload, err := json.Marshal(result)
	if err != nil {
		slog.Warn("結果ペイロードのエンコードに失敗しました", "jobID", j.record.JobID, "error", err)
	} else {
		j.record.Result = payload
	}
	j.record.Status = model.ProgressStatusCompleted
	j.record.Progress = 100
	j.record.CurrentStep = "完了しました"
	j.record.ErrorMessage = ""
	j.flush(ctx)
}

// Fail はジョブをエラー終了させる。
func (j *Job) Fail(ctx context.Context, jobErr error) {
	j.record.Status = model.ProgressStatusError
	j.record.ErrorMessage = jobErr.Error()
	j.record.CurrentStep = "エラーが発生しました"
	j.flush(ctx)
}

// JobID はジョブIDを返す。
func (j *Job) JobID() string {
	return j.record.JobID
}

func (j *Job) flush(ctx context.Context) {
	if err := j.repo.Update(ctx, j.record); err != nil {
		slog.Warn("進捗レコードの更新に失敗しました", "jobID", j.record.JobID, "error", err)
	}
}
