package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/engagemint/internal/middleware"
	"github.com/hitoshi/engagemint/internal/model"
)

// WebhookServiceInterface はWebhookハンドラーが必要とするサービスインターフェース。
type WebhookServiceInterface interface {
	// List はユーザーのWebhook一覧を返す。
	List(ctx context.Context, userID string) ([]*model.Webhook, error)
	// Create はURL検証を通過したWebhookを作成する。
	Create(ctx context.Context, userID, name, rawURL string) (*model.Webhook, error)
	// Update は所有権を確認したうえでWebhookを更新する。
	Update(ctx context.Context, userID, webhookID, name, rawURL string, enabled bool) (*model.Webhook, error)
	// Delete は所有権を確認したうえでWebhookを削除する。
	Delete(ctx context.Context, userID, webhookID string) error
	// PushToWebhook は指定Webhookへプロフィール群を送信し、送信件数を返す。
	PushToWebhook(ctx context.Context, userID, webhookID string, profileIDs []string) (int, error)
}

// WebhookHandler はWebhook管理のHTTPハンドラー。
type WebhookHandler struct {
	service WebhookServiceInterface
}

// NewWebhookHandler はWebhookHandlerを生成する。
func NewWebhookHandler(service WebhookServiceInterface) *WebhookHandler {
	return &WebhookHandler{service: service}
}

// createWebhookRequest はWebhook作成リクエストのボディ。
type createWebhookRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// updateWebhookRequest はWebhook更新リクエストのボディ。
type updateWebhookRequest struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Enabled bool   `json:"enabled"`
}

// webhookResponse はWebhookのAPIレスポンス。
type webhookResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// toWebhookResponse はmodel.WebhookからAPIレスポンスに変換する。
func toWebhookResponse(hook *model.Webhook) webhookResponse {
	return webhookResponse{
		ID:        hook.ID,
		Name:      hook.Name,
		URL:       hook.URL,
		Enabled:   hook.Enabled,
		CreatedAt: hook.CreatedAt,
		UpdatedAt: hook.UpdatedAt,
	}
}

// ListWebhooks はユーザーのWebhook一覧を返す。
// GET /api/webhooks
func (h *WebhookHandler) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	hooks, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]webhookResponse, 0, len(hooks))
	for _, hook := range hooks {
		responses = append(responses, toWebhookResponse(hook))
	}

	writeJSON(w, http.StatusOK, responses)
}

// CreateWebhook はWebhookを作成する。
// POST /api/webhooks
func (h *WebhookHandler) CreateWebhook(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req createWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}
	if req.URL == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError("Webhook URLが空です"))
		return
	}

	hook, err := h.service.Create(r.Context(), userID, req.Name, req.URL)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toWebhookResponse(hook))
}

// UpdateWebhook はWebhookを更新する。
// PUT /api/webhooks/:id
func (h *WebhookHandler) UpdateWebhook(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	webhookID := chi.URLParam(r, "id")

	var req updateWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	hook, err := h.service.Update(r.Context(), userID, webhookID, req.Name, req.URL, req.Enabled)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toWebhookResponse(hook))
}

// pushWebhookRequest はWebhook手動送信リクエストのボディ。
// profile_idsが空の場合は全プロフィールが対象となる。
type pushWebhookRequest struct {
	ProfileIDs []string `json:"profile_ids"`
}

// pushWebhookResponse はWebhook手動送信のAPIレスポンス。
type pushWebhookResponse struct {
	Pushed int `json:"pushed"`
}

// PushWebhook は指定Webhookへプロフィール群を手動送信する。
// POST /api/webhooks/:id/push
func (h *WebhookHandler) PushWebhook(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	webhookID := chi.URLParam(r, "id")

	// ボディは省略可能（省略時は全プロフィールを送信する）
	var req pushWebhookRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			writeInvalidBody(w)
			return
		}
	}

	pushed, err := h.service.PushToWebhook(r.Context(), userID, webhookID, req.ProfileIDs)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pushWebhookResponse{Pushed: pushed})
}

// DeleteWebhook はWebhookを削除する。
// DELETE /api/webhooks/:id
func (h *WebhookHandler) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	webhookID := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), userID, webhookID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
