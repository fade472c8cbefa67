package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/engagemint/internal/model"
)

// PostgresWebhookRepo はPostgreSQLを使用したWebhookリポジトリ。
type PostgresWebhookRepo struct {
	db *sql.DB
}

// NewPostgresWebhookRepo はPostgresWebhookRepoを生成する。
func NewPostgresWebhookRepo(db *sql.DB) *PostgresWebhookRepo {
	return &PostgresWebhookRepo{db: db}
}

// FindByID は指定IDのWebhookを取得する。見つからない場合はnilを返す。
func (r *PostgresWebhookRepo) FindByID(ctx context.Context, id string) (*model.Webhook, error) {
	webhook := &model.Webhook{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, url, enabled, created_at, updated_at
		 FROM webhooks WHERE id = $1`,
		id,
	).Scan(&webhook.ID, &webhook.UserID, &webhook.Name, &webhook.URL,
		&webhook.Enabled, &webhook.CreatedAt, &webhook.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Webhookの取得に失敗しました: %w", err)
	}
	return webhook, nil
}

// ListByUser はユーザーのWebhook一覧を返す。
func (r *PostgresWebhookRepo) ListByUser(ctx context.Context, userID string) ([]*model.Webhook, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, url, enabled, created_at, updated_at
		 FROM webhooks WHERE user_id = $1 ORDER BY created_at ASC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("Webhook一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var webhooks []*model.Webhook
	for rows.Next() {
		webhook := &model.Webhook{}
		if err := rows.Scan(&webhook.ID, &webhook.UserID, &webhook.Name, &webhook.URL,
			&webhook.Enabled, &webhook.CreatedAt, &webhook.UpdatedAt); err != nil {
			return nil, fmt.Errorf("Webhook行の読み取りに失敗しました: %w", err)
		}
		webhooks = append(webhooks, webhook)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Webhook一覧の走査に失敗しました: %w", err)
	}
	return webhooks, nil
}

// Create はWebhookを作成する。
func (r *PostgresWebhookRepo) Create(ctx context.Context, webhook *model.Webhook) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO webhooks (id, user_id, name, url, enabled, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now(), now())`,
		webhook.ID, webhook.UserID, webhook.Name, webhook.URL, webhook.Enabled,
	)
	if err != nil {
		return fmt.Errorf("Webhookの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はWebhookの名前・URL・有効フラグを更新する。
func (r *PostgresWebhookRepo) Update(ctx context.Context, webhook *model.Webhook) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE webhooks SET name = $2, url = $3, enabled = $4, updated_at = now()
		 WHERE id = $1`,
		webhook.ID, webhook.Name, webhook.URL, webhook.Enabled,
	)
	if err != nil {
		return fmt.Errorf("Webhookの更新に失敗しました: %w", err)
	}
	return nil
}

// Delete は指定IDのWebhookを削除する。
func (r *PostgresWebhookRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("Webhookの削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ WebhookRepository = (*PostgresWebhookRepo)(nil)
