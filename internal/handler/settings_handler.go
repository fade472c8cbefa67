package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/engagemint/internal/middleware"
	"github.com/hitoshi/engagemint/internal/model"
)

// SettingsStore はユーザー設定の永続化インターフェース。
// repository.SettingsRepositoryの部分集合として定義する。
type SettingsStore interface {
	FindByUserID(ctx context.Context, userID string) (*model.UserSettings, error)
	Upsert(ctx context.Context, settings *model.UserSettings) error
}

// SettingsHandler はユーザー設定のHTTPハンドラー。
type SettingsHandler struct {
	store SettingsStore
}

// NewSettingsHandler はSettingsHandlerを生成する。
func NewSettingsHandler(store SettingsStore) *SettingsHandler {
	return &SettingsHandler{store: store}
}

// updateSettingsRequest はユーザー設定更新リクエストのボディ。
type updateSettingsRequest struct {
	ProviderAPIKey string `json:"provider_api_key"`
}

// settingsResponse はユーザー設定のAPIレスポンス。
// APIキーはマスクした末尾4文字のみを返す。
type settingsResponse struct {
	HasProviderAPIKey  bool       `json:"has_provider_api_key"`
	ProviderAPIKeyHint string     `json:"provider_api_key_hint,omitempty"`
	UpdatedAt          *time.Time `json:"updated_at,omitempty"`
}

// maskAPIKey はAPIキーの末尾4文字のみを残してマスクする。
func maskAPIKey(apiKey string) string {
	if len(apiKey) <= 4 {
		return strings.Repeat("*", len(apiKey))
	}
	return "****" + apiKey[len(apiKey)-4:]
}

// GetSettings はユーザー設定を返す。APIキーそのものは返さない。
// GET /api/settings
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	settings, err := h.store.FindByUserID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := settingsResponse{}
	if settings != nil && settings.ProviderAPIKey != "" {
		resp.HasProviderAPIKey = true
		resp.ProviderAPIKeyHint = maskAPIKey(settings.ProviderAPIKey)
		resp.UpdatedAt = &settings.UpdatedAt
	}

	writeJSON(w, http.StatusOK, resp)
}

// UpdateSettings はプロバイダAPIキーを登録・更新する。
// PUT /api/settings
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	apiKey := strings.TrimSpace(req.ProviderAPIKey)
	if apiKey == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "プロバイダAPIキーが空です。",
			Category: "validation",
			Action:   "provider_api_keyに有効なAPIキーを指定してください。",
		})
		return
	}

	if err := h.store.Upsert(r.Context(), &model.UserSettings{
		UserID:         userID,
		ProviderAPIKey: apiKey,
	}); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, settingsResponse{
		HasProviderAPIKey:  true,
		ProviderAPIKeyHint: maskAPIKey(apiKey),
	})
}
