package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/engagemint/internal/model"
)

type fakeResult struct {
	rowsAffected int64
}

func (r *fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r *fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

// mockExecutor はExecutorインターフェースのモック実装。
// テストではPostgreSQLを使わず、SQLクエリの内容と引数を検証する。
type mockExecutor struct {
	execCalled bool
	query      string
	args       []interface{}
	result     sql.Result
	err        error
}

func (m *mockExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	m.execCalled = true
	m.query = query
	m.args = args
	return m.result, m.err
}

// mockProgressRepo はProgressRepositoryのモック実装。
type mockProgressRepo struct {
	deleteCalled bool
	gotCutoff    time.Time
	deleted      int64
	err          error
}

func (m *mockProgressRepo) Create(ctx context.Context, record *model.ProgressRecord) error {
	return nil
}

func (m *mockProgressRepo) Update(ctx context.Context, record *model.ProgressRecord) error {
	return nil
}

func (m *mockProgressRepo) FindByJobID(ctx context.Context, jobID string) (*model.ProgressRecord, error) {
	return nil, nil
}

func (m *mockProgressRepo) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.deleteCalled = true
	m.gotCutoff = cutoff
	return m.deleted, m.err
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestNewCleanupJob_Defaults(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockProgressRepo{}, &mockExecutor{result: &fakeResult{}}, newTestLogger(&buf))

	if job.ProgressRetention != 30*time.Second {
		t.Errorf("ProgressRetention = %v, want %v", job.ProgressRetention, 30*time.Second)
	}
	if job.JobRetentionDays != 30 {
		t.Errorf("JobRetentionDays = %d, want 30", job.JobRetentionDays)
	}
}

func TestCleanupJob_Run_DeletesTerminalProgress(t *testing.T) {
	var buf bytes.Buffer
	progress := &mockProgressRepo{deleted: 4}
	job := NewCleanupJob(progress, &mockExecutor{result: &fakeResult{}}, newTestLogger(&buf))

	before := time.Now().Add(-job.ProgressRetention)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}
	after := time.Now().Add(-job.ProgressRetention)

	if !progress.deleteCalled {
		t.Fatal("DeleteTerminalBefore が呼び出されなかった")
	}
	// カットオフは現在時刻からProgressRetentionを引いた時刻
	if progress.gotCutoff.Before(before) || progress.gotCutoff.After(after) {
		t.Errorf("カットオフ時刻が期待範囲外: %v", progress.gotCutoff)
	}
}

func TestCleanupJob_Run_DeletesOldScrapeJobs(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 7}}
	job := NewCleanupJob(&mockProgressRepo{}, mock, newTestLogger(&buf))

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	if !mock.execCalled {
		t.Fatal("ExecContext が呼び出されなかった")
	}
	if !strings.Contains(mock.query, "DELETE FROM scrape_jobs") {
		t.Errorf("クエリに 'DELETE FROM scrape_jobs' が含まれていない: %s", mock.query)
	}
	// 実行中のジョブは削除対象外
	if !strings.Contains(mock.query, "running") {
		t.Errorf("クエリにrunning除外条件が含まれていない: %s", mock.query)
	}

	if len(mock.args) < 1 {
		t.Fatal("ExecContext に引数が渡されなかった")
	}
	argStr, ok := mock.args[0].(string)
	if !ok {
		t.Fatalf("第1引数が string ではない: %T", mock.args[0])
	}
	if argStr != "30 days" {
		t.Errorf("interval引数 = %q, want %q", argStr, "30 days")
	}
}

func TestCleanupJob_Run_CustomRetention(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{}}
	job := NewCleanupJob(&mockProgressRepo{}, mock, newTestLogger(&buf))
	job.JobRetentionDays = 90

	_ = job.Run(context.Background())

	argStr, ok := mock.args[0].(string)
	if !ok {
		t.Fatalf("第1引数が string ではない: %T", mock.args[0])
	}
	if argStr != "90 days" {
		t.Errorf("interval引数 = %q, want %q", argStr, "90 days")
	}
}

func TestCleanupJob_Run_ReturnsErrorOnProgressFailure(t *testing.T) {
	var buf bytes.Buffer
	progress := &mockProgressRepo{err: sql.ErrConnDone}
	mock := &mockExecutor{result: &fakeResult{}}
	job := NewCleanupJob(progress, mock, newTestLogger(&buf))

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("DBエラー時に Run() は nil でないエラーを返すべき")
	}
	// 進捗削除が失敗した場合は監査レコードの削除に進まない
	if mock.execCalled {
		t.Error("進捗削除の失敗後にExecContextが呼ばれるべきではない")
	}
}

func TestCleanupJob_Run_Idempotent_ZeroRows(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockProgressRepo{}, &mockExecutor{result: &fakeResult{}}, newTestLogger(&buf))

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("1回目の Run() がエラーを返した: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("2回目の Run() がエラーを返した: %v", err)
	}
}

func TestCleanupJob_Run_LogsErrorOnDBFailure(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{err: sql.ErrConnDone}
	job := NewCleanupJob(&mockProgressRepo{}, mock, newTestLogger(&buf))

	_ = job.Run(context.Background())

	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("エラー時にERRORレベルのログが記録されていない。ログ出力: %s", buf.String())
	}
}
