package model

import "time"

// Webhook はユーザーが設定したプロフィール送信先を表す。
type Webhook struct {
	ID        string
	UserID    string
	Name      string
	URL       string
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserSettings はユーザーごとの設定を表す。
// スクレイピングプロバイダのAPIキーを保持する。
type UserSettings struct {
	UserID         string
	ProviderAPIKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
