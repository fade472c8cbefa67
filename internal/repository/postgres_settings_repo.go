package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/engagemint/internal/model"
)

// PostgresSettingsRepo はPostgreSQLを使用したユーザー設定リポジトリ。
type PostgresSettingsRepo struct {
	db *sql.DB
}

// NewPostgresSettingsRepo はPostgresSettingsRepoを生成する。
func NewPostgresSettingsRepo(db *sql.DB) *PostgresSettingsRepo {
	return &PostgresSettingsRepo{db: db}
}

// FindByUserID はユーザー設定を取得する。見つからない場合はnilを返す。
func (r *PostgresSettingsRepo) FindByUserID(ctx context.Context, userID string) (*model.UserSettings, error) {
	settings := &model.UserSettings{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, provider_api_key, created_at, updated_at
		 FROM user_settings WHERE user_id = $1`,
		userID,
	).Scan(&settings.UserID, &settings.ProviderAPIKey, &settings.CreatedAt, &settings.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザー設定の取得に失敗しました: %w", err)
	}
	return settings, nil
}

// Upsert はユーザー設定を冪等にUPSERTする。
func (r *PostgresSettingsRepo) Upsert(ctx context.Context, settings *model.UserSettings) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_settings (user_id, provider_api_key, created_at, updated_at)
		 VALUES ($1, $2, now(), now())
		 ON CONFLICT (user_id) DO UPDATE SET
		    provider_api_key = EXCLUDED.provider_api_key,
		    updated_at = now()`,
		settings.UserID, settings.ProviderAPIKey,
	)
	if err != nil {
		return fmt.Errorf("ユーザー設定のUPSERTに失敗しました: %w", err)
	}
	return nil
}

// FindUserByAPIKey はプロバイダAPIキーからユーザーを逆引きする。
// 見つからない場合はnilを返す。
func (r *PostgresSettingsRepo) FindUserByAPIKey(ctx context.Context, apiKey string) (*model.UserSettings, error) {
	settings := &model.UserSettings{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, provider_api_key, created_at, updated_at
		 FROM user_settings WHERE provider_api_key = $1`,
		apiKey,
	).Scan(&settings.UserID, &settings.ProviderAPIKey, &settings.CreatedAt, &settings.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("APIキーによるユーザーの検索に失敗しました: %w", err)
	}
	return settings, nil
}

// compile-time interface check
var _ SettingsRepository = (*PostgresSettingsRepo)(nil)
