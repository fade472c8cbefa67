// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService はスクレイピングで取得した投稿本文・コメント・
// ヘッドラインなどの文字列からHTMLを除去し、プレーンテキストとして保存する。
// WebhookGuardService はWebhook送信先URLへのSSRF攻撃を防止する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はスクレイプ済みテキストのサニタイズ機能の
// インターフェースを定義する。保存前のすべての外部由来文字列に適用される。
type TextSanitizerService interface {
	// Sanitize は文字列からすべてのHTMLタグを除去し、
	// エンティティをデコードしたプレーンテキストを返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// スクレイピング結果はリッチテキストとして表示されないため、
// タグを一切許可しないStrictPolicyを使用する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize は文字列からHTMLタグを除去したプレーンテキストを返す。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	// StrictPolicyはテキストをエスケープして返すため、
	// 保存用のプレーンテキストとしてはデコードして戻す
	cleaned := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}
