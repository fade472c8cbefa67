package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/engagemint/internal/middleware"
)

// ScrapeServiceInterface はスクレイプハンドラーが必要とするサービスインターフェース。
// 各操作はジョブを非同期に開始し、進捗照会用のジョブIDを返す。
type ScrapeServiceInterface interface {
	// ScrapePostReactions は投稿URLのリアクションをスクレイプするジョブを開始する。
	ScrapePostReactions(ctx context.Context, userID string, postURLs []string) (string, error)
	// ScrapePostComments は保存済み投稿のコメントをスクレイプするジョブを開始する。
	ScrapePostComments(ctx context.Context, userID string, postRowIDs []string) (string, error)
	// ScrapeProfilePosts はプロフィールの投稿一覧を取得するジョブを開始する。
	ScrapeProfilePosts(ctx context.Context, userID, profileURL string, limit int) (string, error)
	// RefreshEngagement は保存済み投稿のカウンター差分検出ジョブを開始する。
	RefreshEngagement(ctx context.Context, userID string, postRowIDs []string) (string, error)
	// EnrichProfiles はプロフィールのエンリッチメントジョブを開始する。
	EnrichProfiles(ctx context.Context, userID string, profileIDs []string) (string, error)
}

// ScrapeHandler はスクレイプ操作のHTTPハンドラー。
type ScrapeHandler struct {
	service ScrapeServiceInterface
}

// NewScrapeHandler はScrapeHandlerを生成する。
func NewScrapeHandler(service ScrapeServiceInterface) *ScrapeHandler {
	return &ScrapeHandler{service: service}
}

// scrapeReactionsRequest はリアクションスクレイプリクエストのボディ。
type scrapeReactionsRequest struct {
	PostURLs []string `json:"post_urls"`
}

// scrapeCommentsRequest はコメントスクレイプリクエストのボディ。
type scrapeCommentsRequest struct {
	PostIDs []string `json:"post_ids"`
}

// scrapeProfilePostsRequest はプロフィール投稿取得リクエストのボディ。
type scrapeProfilePostsRequest struct {
	ProfileURL string `json:"profile_url"`
	Limit      int    `json:"limit"`
}

// refreshEngagementRequest はエンゲージメント差分検出リクエストのボディ。
type refreshEngagementRequest struct {
	PostIDs []string `json:"post_ids"`
}

// enrichProfilesRequest はエンリッチメントリクエストのボディ。
type enrichProfilesRequest struct {
	ProfileIDs []string `json:"profile_ids"`
}

// jobStartedResponse はジョブ開始時のレスポンス。
type jobStartedResponse struct {
	JobID string `json:"job_id"`
}

// ScrapeReactions はリアクションスクレイプを開始する。
// POST /api/scrape/reactions
func (h *ScrapeHandler) ScrapeReactions(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req scrapeReactionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	jobID, err := h.service.ScrapePostReactions(r.Context(), userID, req.PostURLs)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, jobStartedResponse{JobID: jobID})
}

// ScrapeComments はコメントスクレイプを開始する。
// POST /api/scrape/comments
func (h *ScrapeHandler) ScrapeComments(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req scrapeCommentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	jobID, err := h.service.ScrapePostComments(r.Context(), userID, req.PostIDs)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, jobStartedResponse{JobID: jobID})
}

// ScrapeProfilePosts はプロフィール投稿の取得を開始する。
// POST /api/scrape/profile-posts
func (h *ScrapeHandler) ScrapeProfilePosts(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req scrapeProfilePostsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	jobID, err := h.service.ScrapeProfilePosts(r.Context(), userID, req.ProfileURL, req.Limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, jobStartedResponse{JobID: jobID})
}

// RefreshEngagement はエンゲージメント差分検出を開始する。
// POST /api/scrape/engagement
func (h *ScrapeHandler) RefreshEngagement(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req refreshEngagementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	jobID, err := h.service.RefreshEngagement(r.Context(), userID, req.PostIDs)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, jobStartedResponse{JobID: jobID})
}

// EnrichProfiles はプロフィールエンリッチメントを開始する。
// POST /api/scrape/enrich
func (h *ScrapeHandler) EnrichProfiles(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req enrichProfilesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	jobID, err := h.service.EnrichProfiles(r.Context(), userID, req.ProfileIDs)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, jobStartedResponse{JobID: jobID})
}
