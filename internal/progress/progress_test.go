package progress

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/engagemint/internal/model"
)

// memProgressRepo はインメモリの進捗レコードストア。
type memProgressRepo struct {
	records map[string]*model.ProgressRecord
	failing bool
}

func newMemProgressRepo() *memProgressRepo {
	return &memProgressRepo{records: make(map[string]*model.ProgressRecord)}
}

func (m *memProgressRepo) Create(ctx context.Context, record *model.ProgressRecord) error {
	if m.failing {
		return errors.New("store unavailable")
	}
	clone := *record
	m.records[record.JobID] = &clone
	return nil
}

func (m *memProgressRepo) Update(ctx context.Context, record *model.ProgressRecord) error {
	if m.failing {
		return errors.New("store unavailable")
	}
	clone := *record
	m.records[record.JobID] = &clone
	return nil
}

func (m *memProgressRepo) FindByJobID(ctx context.Context, jobID string) (*model.ProgressRecord, error) {
	record, ok := m.records[jobID]
	if !ok {
		return nil, nil
	}
	return record, nil
}

func (m *memProgressRepo) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func TestStartCreatesStartingRecord(t *testing.T) {
	repo := newMemProgressRepo()
	tracker := NewTracker(repo)

	job, err := tracker.Start(context.Background(), "job-1", "user-1", 5)
	if err != nil {
		t.Fatalf("エラーが発生しました: %v", err)
	}
	if job.JobID() != "job-1" {
		t.Errorf("ジョブIDが一致しません: got %s", job.JobID())
	}

	stored := repo.records["job-1"]
	if stored == nil {
		t.Fatal("進捗レコードが作成されていません")
	}
	if stored.Status != model.ProgressStatusStarting {
		t.Errorf("ステータスが一致しません: got %s", stored.Status)
	}
	if stored.TotalPosts != 5 {
		t.Errorf("総投稿数が一致しません: got %d", stored.TotalPosts)
	}
}

func TestAdvanceScalesProgress(t *testing.T) {
	repo := newMemProgressRepo()
	tracker := NewTracker(repo)

	job, err := tracker.Start(context.Background(), "job-1", "user-1", 4)
	if err != nil {
		t.Fatalf("エラーが発生しました: %v", err)
	}

	job.Update(context.Background(), model.ProgressStatusScraping, 10, "データを取得しています")
	job.Advance(context.Background(), 2, 10, 90, "投稿を処理しています")

	stored := repo.records["job-1"]
	// 10 + (90-10) * 2/4 = 50
	if stored.Progress != 50 {
		t.Errorf("進捗率が一致しません: got %d, want 50", stored.Progress)
	}
	if stored.ProcessedPosts != 2 {
		t.Errorf("処理済み数が一致しません: got %d", stored.ProcessedPosts)
	}
}

func TestCompleteStoresResult(t *testing.T) {
	repo := newMemProgressRepo()
	tracker := NewTracker(repo)

	job, err := tracker.Start(context.Background(), "job-1", "user-1", 1)
	if err != nil {
		t.Fatalf("エラーが発生しました: %v", err)
	}

	job.Complete(context.Background(), map[string]int{"saved": 42})

	stored := repo.records["job-1"]
	if stored.Status != model.ProgressStatusCompleted {
		t.Errorf("ステータスが一致しません: got %s", stored.Status)
	}
	if stored.Progress != 100 {
		t.Errorf("進捗率が一致しません: got %d", stored.Progress)
	}

	var result map[string]int
	if err := json.Unmarshal(stored.Result, &result); err != nil {
		t.Fatalf("結果ペイロードのデコードに失敗しました: %v", err)
	}
	if result["saved"] != 42 {
		t.Errorf("結果ペイロードが一致しません: %v", result)
	}
}

func TestFailRecordsErrorMessage(t *testing.T) {
	repo := newMemProgressRepo()
	tracker := NewTracker(repo)

	job, err := tracker.Start(context.Background(), "job-1", "user-1", 1)
	if err != nil {
		t.Fatalf("エラーが発生しました: %v", err)
	}

	job.Fail(context.Background(), errors.New("プロバイダが応答しません"))

	stored := repo.records["job-1"]
	if stored.Status != model.ProgressStatusError {
		t.Errorf("ステータスが一致しません: got %s", stored.Status)
	}
	if stored.ErrorMessage != "プロバイダが応答しません" {
		t.Errorf("エラーメッセージが一致しません: got %s", stored.ErrorMessage)
	}
}

func TestUpdateFailureDoesNotPanic(t *testing.T) {
	repo := newMemProgressRepo()
	tracker := NewTracker(repo)

	job, err := tracker.Start(context.Background(), "job-1", "user-1", 1)
	if err != nil {
		t.Fatalf("エラーが発生しました: %v", err)
	}

	// ストア障害中の更新はベストエフォートで無視される
	repo.failing = true
	job.Update(context.Background(), model.ProgressStatusSaving, 80, "保存しています")
	job.Complete(context.Background(), nil)
}
