package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/engagemint/internal/middleware"
	"github.com/hitoshi/engagemint/internal/model"
)

// PostReader は投稿照会のためのインターフェース。
// repository.PostRepositoryの部分集合として定義する。
type PostReader interface {
	FindByID(ctx context.Context, id string) (*model.Post, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Post, error)
}

// PostRegistrar は投稿URLの登録のためのインターフェース。
type PostRegistrar interface {
	RegisterPost(ctx context.Context, userID, postURL string) (*model.Post, error)
}

// PostHandler は投稿の登録と照会のHTTPハンドラー。
type PostHandler struct {
	posts     PostReader
	registrar PostRegistrar
}

// NewPostHandler はPostHandlerを生成する。
func NewPostHandler(posts PostReader, registrar PostRegistrar) *PostHandler {
	return &PostHandler{posts: posts, registrar: registrar}
}

// registerPostRequest は投稿登録リクエストのボディ。
type registerPostRequest struct {
	URL string `json:"url"`
}

// postResponse は投稿のAPIレスポンス。
type postResponse struct {
	ID                      string     `json:"id"`
	PostID                  string     `json:"post_id"`
	URL                     string     `json:"url"`
	URN                     string     `json:"urn,omitempty"`
	AuthorName              string     `json:"author_name,omitempty"`
	AuthorHeadline          string     `json:"author_headline,omitempty"`
	AuthorProfileURL        string     `json:"author_profile_url,omitempty"`
	Text                    string     `json:"text,omitempty"`
	NumLikes                int        `json:"num_likes"`
	NumComments             int        `json:"num_comments"`
	NumShares               int        `json:"num_shares"`
	PostedAt                *time.Time `json:"posted_at,omitempty"`
	ScrapedAt               *time.Time `json:"scraped_at,omitempty"`
	LastReactionsScrape     *time.Time `json:"last_reactions_scrape,omitempty"`
	EngagementNeedsScraping bool       `json:"engagement_needs_scraping"`
	EngagementLastUpdatedAt *time.Time `json:"engagement_last_updated_at,omitempty"`
}

// toPostResponse はmodel.PostからAPIレスポンスに変換する。
func toPostResponse(post *model.Post) postResponse {
	return postResponse{
		ID:                      post.ID,
		PostID:                  post.PostID,
		URL:                     post.URL,
		URN:                     post.URN,
		AuthorName:              post.AuthorName,
		AuthorHeadline:          post.AuthorHeadline,
		AuthorProfileURL:        post.AuthorProfileURL,
		Text:                    post.Text,
		NumLikes:                post.NumLikes,
		NumComments:             post.NumComments,
		NumShares:               post.NumShares,
		PostedAt:                post.PostedAt,
		ScrapedAt:               post.ScrapedAt,
		LastReactionsScrape:     post.LastReactionsScrape,
		EngagementNeedsScraping: post.EngagementNeedsScraping,
		EngagementLastUpdatedAt: post.EngagementLastUpdatedAt,
	}
}

// RegisterPost は投稿URLを登録する。
// POST /api/posts
func (h *PostHandler) RegisterPost(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req registerPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBody(w)
		return
	}

	post, err := h.registrar.RegisterPost(r.Context(), userID, req.URL)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPostResponse(post))
}

// ListPosts はユーザーの投稿一覧を返す。
// GET /api/posts
func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	posts, err := h.posts.ListByUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]postResponse, 0, len(posts))
	for _, post := range posts {
		responses = append(responses, toPostResponse(post))
	}

	writeJSON(w, http.StatusOK, responses)
}

// GetPost は投稿詳細を返す。他ユーザーの投稿は404として扱う。
// GET /api/posts/:id
func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	postID := chi.URLParam(r, "id")

	post, err := h.posts.FindByID(r.Context(), postID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if post == nil || post.UserID != userID {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewPostNotFoundError(postID))
		return
	}

	writeJSON(w, http.StatusOK, toPostResponse(post))
}
