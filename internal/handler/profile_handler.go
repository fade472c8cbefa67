package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/engagemint/internal/merge"
	"github.com/hitoshi/engagemint/internal/metrics"
	"github.com/hitoshi/engagemint/internal/middleware"
	"github.com/hitoshi/engagemint/internal/model"
)

// defaultProfileListLimit はプロフィール一覧のデフォルト件数。
const defaultProfileListLimit = 100

// ProfileReader はプロフィール照会のためのインターフェース。
// repository.ProfileRepositoryの部分集合として定義する。
type ProfileReader interface {
	FindByID(ctx context.Context, id string) (*model.Profile, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*model.Profile, error)
	SearchCandidates(ctx context.Context, userID, pattern string) ([]*model.Profile, error)
}

// ProfileMerger は重複プロフィールのマージ実行インターフェース。
type ProfileMerger interface {
	MergeAll(ctx context.Context, userID, pattern string) (*merge.Summary, error)
}

// ProfileHandler はプロフィール管理のHTTPハンドラー。
type ProfileHandler struct {
	profiles  ProfileReader
	merger    ProfileMerger
	collector metrics.MetricsCollector
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(profiles ProfileReader, merger ProfileMerger, collector metrics.MetricsCollector) *ProfileHandler {
	return &ProfileHandler{
		profiles:  profiles,
		merger:    merger,
		collector: collector,
	}
}

// profileResponse はプロフィールのAPIレスポンス。
type profileResponse struct {
	ID                  string     `json:"id"`
	URN                 string     `json:"urn,omitempty"`
	PrimaryIdentifier   string     `json:"primary_identifier,omitempty"`
	SecondaryIdentifier string     `json:"secondary_identifier,omitempty"`
	PublicIdentifier    string     `json:"public_identifier,omitempty"`
	AlternativeURNs     []string   `json:"alternative_urns,omitempty"`
	ProfileURL          string     `json:"profile_url,omitempty"`
	Name                string     `json:"name,omitempty"`
	FirstName           string     `json:"first_name,omitempty"`
	LastName            string     `json:"last_name,omitempty"`
	Headline            string     `json:"headline,omitempty"`
	PictureURL          string     `json:"picture_url,omitempty"`
	Country             string     `json:"country,omitempty"`
	City                string     `json:"city,omitempty"`
	CurrentTitle        string     `json:"current_title,omitempty"`
	CurrentCompany      string     `json:"current_company,omitempty"`
	CompanyLinkedInURL  string     `json:"company_linkedin_url,omitempty"`
	LastEnriched        *time.Time `json:"last_enriched,omitempty"`
	FirstSeen           time.Time  `json:"first_seen"`
	LastUpdated         time.Time  `json:"last_updated"`
}

// toProfileResponse はmodel.ProfileからAPIレスポンスに変換する。
func toProfileResponse(profile *model.Profile) profileResponse {
	return profileResponse{
		ID:                  profile.ID,
		URN:                 profile.URN,
		PrimaryIdentifier:   profile.PrimaryIdentifier,
		SecondaryIdentifier: profile.SecondaryIdentifier,
		PublicIdentifier:    profile.PublicIdentifier,
		AlternativeURNs:     profile.AlternativeURNs,
		ProfileURL:          profile.ProfileURL,
		Name:                profile.Name,
		FirstName:           profile.FirstName,
		LastName:            profile.LastName,
		Headline:            profile.Headline,
		PictureURL:          profile.PictureURL,
		Country:             profile.Country,
		City:                profile.City,
		CurrentTitle:        profile.CurrentTitle,
		CurrentCompany:      profile.CurrentCompany,
		CompanyLinkedInURL:  profile.CompanyLinkedInURL,
		LastEnriched:        profile.LastEnriched,
		FirstSeen:           profile.FirstSeen,
		LastUpdated:         profile.LastUpdated,
	}
}

// ListProfiles はユーザーのプロフィール一覧を返す。
// GET /api/profiles?limit=N
func (h *ProfileHandler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	limit := defaultProfileListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
				Code:     model.ErrCodeInvalidRequest,
				Message:  "limitパラメータが不正です。",
				Category: "validation",
				Action:   "0以上の整数を指定してください。0は全件を意味します。",
			})
			return
		}
		limit = parsed
	}

	profiles, err := h.profiles.ListByUser(r.Context(), userID, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]profileResponse, 0, len(profiles))
	for _, profile := range profiles {
		responses = append(responses, toProfileResponse(profile))
	}

	writeJSON(w, http.StatusOK, responses)
}

// GetProfile はプロフィール詳細を返す。他ユーザーのプロフィールは404として扱う。
// GET /api/profiles/:id
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	profileID := chi.URLParam(r, "id")

	profile, err := h.profiles.FindByID(r.Context(), profileID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if profile == nil || profile.UserID != userID {
		writeAPIErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     model.ErrCodeProfileNotFound,
			Message:  "指定されたプロフィールが見つかりません。",
			Category: "validation",
			Action:   "プロフィールIDを確認してください。",
		})
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

// SearchProfiles は名前または識別子の部分一致でプロフィールを検索する。
// GET /api/profiles/search?q=pattern
func (h *ProfileHandler) SearchProfiles(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	pattern := r.URL.Query().Get("q")
	if pattern == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "検索パターンが指定されていません。",
			Category: "validation",
			Action:   "qパラメータに検索文字列を指定してください。",
		})
		return
	}

	profiles, err := h.profiles.SearchCandidates(r.Context(), userID, pattern)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]profileResponse, 0, len(profiles))
	for _, profile := range profiles {
		responses = append(responses, toProfileResponse(profile))
	}

	writeJSON(w, http.StatusOK, responses)
}

// mergeProfilesRequest はマージ実行リクエストのボディ。
type mergeProfilesRequest struct {
	// Pattern は対象を名前・識別子の部分一致で絞り込む。空なら全件が対象。
	Pattern string `json:"pattern"`
}

// MergeProfiles は重複プロフィールの検出とマージを同期的に実行する。
// POST /api/profiles/merge
func (h *ProfileHandler) MergeProfiles(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	// ボディは省略可能（省略時は全プロフィールを対象にする）
	var req mergeProfilesRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			writeInvalidBody(w)
			return
		}
	}

	summary, err := h.merger.MergeAll(r.Context(), userID, req.Pattern)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.collector != nil && summary.ProfilesRemoved > 0 {
		h.collector.RecordProfilesMerged(summary.ProfilesRemoved)
	}

	writeJSON(w, http.StatusOK, summary)
}
