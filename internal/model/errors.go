package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, provider, persistence, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeInvalidURL         = "INVALID_URL"
	ErrCodeMissingAPIKey      = "MISSING_API_KEY"
	ErrCodeProviderError      = "PROVIDER_ERROR"
	ErrCodePersistenceError   = "PERSISTENCE_ERROR"
	ErrCodePostNotFound       = "POST_NOT_FOUND"
	ErrCodeProfileNotFound    = "PROFILE_NOT_FOUND"
	ErrCodeWebhookNotFound    = "WEBHOOK_NOT_FOUND"
	ErrCodeJobNotFound        = "JOB_NOT_FOUND"
	ErrCodeWebhookURLBlocked  = "WEBHOOK_URL_BLOCKED"
	ErrCodeIdentityUnresolved = "IDENTITY_UNRESOLVED"
)

// ProviderError はスクレイピングプロバイダとの通信失敗を表す。
// リモートジョブの失敗、タイムアウト、不正なレスポンスが該当する。
// この層ではリトライされず、進捗レコードのerrorフィールドに伝播する。
type ProviderError struct {
	Actor  string // 失敗したアクター名
	Stage  string // submit, poll, fetch のいずれか
	Reason string
	Err    error
}

// Error はerrorインターフェースを実装する。
func (e *ProviderError) Error() string {
	return fmt.Sprintf("プロバイダエラー (actor=%s, stage=%s): %s", e.Actor, e.Stage, e.Reason)
}

// Unwrap はラップされたエラーを返す。
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいLinkedIn投稿/プロフィールURLを入力してください。",
	}
}

// NewMissingAPIKeyError はプロバイダAPIキー未設定エラーを生成する。
func NewMissingAPIKeyError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingAPIKey,
		Message:  "スクレイピングプロバイダのAPIキーが設定されていません。",
		Category: "validation",
		Action:   "設定画面からAPIキーを登録してください。",
	}
}

// NewPostNotFoundError は投稿未検出エラーを生成する。
func NewPostNotFoundError(postID string) *APIError {
	return &APIError{
		Code:     ErrCodePostNotFound,
		Message:  fmt.Sprintf("指定された投稿が見つかりません: %s", postID),
		Category: "validation",
		Action:   "投稿IDを確認してください。",
	}
}

// NewWebhookNotFoundError はWebhook未検出エラーを生成する。
func NewWebhookNotFoundError(webhookID string) *APIError {
	return &APIError{
		Code:     ErrCodeWebhookNotFound,
		Message:  fmt.Sprintf("指定されたWebhookが見つかりません: %s", webhookID),
		Category: "validation",
		Action:   "Webhook IDを確認してください。",
	}
}

// NewJobNotFoundError は進捗レコード未検出エラーを生成する。
func NewJobNotFoundError(jobID string) *APIError {
	return &APIError{
		Code:     ErrCodeJobNotFound,
		Message:  fmt.Sprintf("指定されたジョブが見つかりません: %s", jobID),
		Category: "validation",
		Action:   "ジョブIDを確認してください。終端状態のジョブは一定時間後に削除されます。",
	}
}

// NewWebhookURLBlockedError はWebhook URLがセキュリティポリシーで
// ブロックされた場合のエラーを生成する。
func NewWebhookURLBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeWebhookURLBlocked,
		Message:  "セキュリティポリシーにより、指定されたWebhook URLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているエンドポイントのURLを入力してください。プライベートIPへの送信は許可されていません。",
	}
}
