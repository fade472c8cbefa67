package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/engagemint/internal/middleware"
	"github.com/hitoshi/engagemint/internal/model"
)

// ProgressFinder は進捗照会のためのインターフェース。
type ProgressFinder interface {
	// Find は指定ジョブIDの進捗レコードを取得する。見つからない場合はnilを返す。
	Find(ctx context.Context, jobID string) (*model.ProgressRecord, error)
}

// ProgressHandler は進捗照会のHTTPハンドラー。
type ProgressHandler struct {
	finder ProgressFinder
}

// NewProgressHandler はProgressHandlerを生成する。
func NewProgressHandler(finder ProgressFinder) *ProgressHandler {
	return &ProgressHandler{finder: finder}
}

// progressResponse は進捗レコードのAPIレスポンス。
type progressResponse struct {
	JobID          string          `json:"job_id"`
	Status         string          `json:"status"`
	Progress       int             `json:"progress"`
	CurrentStep    string          `json:"current_step"`
	TotalPosts     int             `json:"total_posts"`
	ProcessedPosts int             `json:"processed_posts"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
}

// GetProgress は進捗レコードを取得する。
// GET /api/scrape/progress/:jobID
//
// 終端状態のレコードは保持期限の経過後に削除されるため、
// 削除後の照会は404になる。
func (h *ProgressHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	jobID := chi.URLParam(r, "jobID")

	record, err := h.finder.Find(r.Context(), jobID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if record == nil || record.UserID != userID {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewJobNotFoundError(jobID))
		return
	}

	writeJSON(w, http.StatusOK, progressResponse{
		JobID:          record.JobID,
		Status:         string(record.Status),
		Progress:       record.Progress,
		CurrentStep:    record.CurrentStep,
		TotalPosts:     record.TotalPosts,
		ProcessedPosts: record.ProcessedPosts,
		ErrorMessage:   record.ErrorMessage,
		Result:         json.RawMessage(record.Result),
	})
}
