// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/engagemint/internal/model"
)

// apiKeyHeader はAPIキー認証に使用するリクエストヘッダー。
const apiKeyHeader = "X-API-Key"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// APIKeyResolver はAPIキーからユーザー設定を逆引きするインターフェース。
// repository.SettingsRepositoryの部分集合として定義する。
type APIKeyResolver interface {
	FindUserByAPIKey(ctx context.Context, apiKey string) (*model.UserSettings, error)
}

// NewAPIKeyMiddleware はX-API-KeyヘッダーからユーザーをAPIキーで特定し、
// ユーザーIDをリクエストコンテキストに注入するミドルウェアを返す。
// ヘッダーがない、またはキーが未登録のリクエストには401 Unauthorizedを返す。
func NewAPIKeyMiddleware(resolver APIKeyResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := r.Header.Get(apiKeyHeader)
			if apiKey == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			settings, err := resolver.FindUserByAPIKey(r.Context(), apiKey)
			if err != nil {
				slog.Error("APIキーによるユーザーの特定に失敗しました",
					slog.String("error", err.Error()),
				)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if settings == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userIDContextKey, settings.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// APIキーミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
