package model

import "time"

// ProgressStatus は長時間ジョブの進捗ステータスを表す。
type ProgressStatus string

const (
	// ProgressStatusStarting はジョブが開始直後であることを示す。
	ProgressStatusStarting ProgressStatus = "starting"
	// ProgressStatusScraping はプロバイダからのデータ取得中であることを示す。
	ProgressStatusScraping ProgressStatus = "scraping"
	// ProgressStatusProcessing は取得データの処理中であることを示す。
	ProgressStatusProcessing ProgressStatus = "processing"
	// ProgressStatusSaving はデータ保存中であることを示す。
	ProgressStatusSaving ProgressStatus = "saving"
	// ProgressStatusCompleted はジョブが正常終了したことを示す。
	ProgressStatusCompleted ProgressStatus = "completed"
	// ProgressStatusError はジョブがエラー終了したことを示す。
	ProgressStatusError ProgressStatus = "error"
)

// IsTerminal はステータスが終端状態（completed/error）かを返す。
func (s ProgressStatus) IsTerminal() bool {
	return s == ProgressStatusCompleted || s == ProgressStatusError
}

// ProgressRecord はジョブIDをキーとする一時的な進捗状態を表す。
// ジョブ開始時に作成され、実行中に繰り返し更新される。
// 終端状態に達してから一定時間経過後に削除可能となる。
type ProgressRecord struct {
	JobID       string
	UserID      string
	Status      ProgressStatus
	Progress    int // 0-100
	CurrentStep string
	TotalPosts     int
	ProcessedPosts int
	ErrorMessage   string
	// Result は完了時の結果ペイロード（JSON）。未完了の場合はnil。
	Result    []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}
