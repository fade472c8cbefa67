// Package webhook はWebhookの管理とプロフィールデータの送信を提供する。
// 送信はSSRF防止付きクライアントで行い、1件につき1回だけ試行する。
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/engagemint/internal/metrics"
	"github.com/hitoshi/engagemint/internal/model"
	"github.com/hitoshi/engagemint/internal/repository"
	"github.com/hitoshi/engagemint/internal/security"
)

// exportDateLayout はWebhookペイロードの日時フォーマット。
// 受信側のスプレッドシート連携が期待する固定形式で、常にUTCで出力される。
const exportDateLayout = "2006-01-02 15:04:05+00"

// Service はWebhookの管理と送信を行う。
type Service struct {
	webhooks  repository.WebhookRepository
	profiles  repository.ProfileRepository
	guard     security.WebhookGuardService
	metrics   metrics.MetricsCollector
	client    *http.Client
	sendDelay time.Duration
}

// NewService はServiceを生成する。
func NewService(webhooks repository.WebhookRepository, profiles repository.ProfileRepository, guard security.WebhookGuardService, collector metrics.MetricsCollector, timeout, sendDelay time.Duration) *Service {
	return &Service{
		webhooks:  webhooks,
		profiles:  profiles,
		guard:     guard,
		metrics:   collector,
		client:    guard.NewSafeClient(timeout),
		sendDelay: sendDelay,
	}
}

// List はユーザーのWebhook一覧を返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Webhook, error) {
	return s.webhooks.ListByUser(ctx, userID)
}

// Create はWebhookを登録する。URLは事前にSSRF検証される。
func (s *Service) Create(ctx context.Context, userID, name, rawURL string) (*model.Webhook, error) {
	if err := s.guard.ValidateURL(rawURL); err != nil {
		slog.Warn("Webhook URLがブロックされました", "userID", userID, "error", err)
		return nil, model.NewWebhookURLBlockedError()
	}

	webhook := &model.Webhook{
		ID:      uuid.NewString(),
		UserID:  userID,
		Name:    name,
		URL:     rawURL,
		Enabled: true,
	}
	if err := s.webhooks.Create(ctx, webhook); err != nil {
		return nil, err
	}
	return webhook, nil
}

// Update はWebhookの名前・URL・有効フラグを更新する。
// 他ユーザーのWebhookは存在しないものとして扱う。
func (s *Service) Update(ctx context.Context, userID, webhookID, name, rawURL string, enabled bool) (*model.Webhook, error) {
	webhook, err := s.owned(ctx, userID, webhookID)
	if err != nil {
		return nil, err
	}

	if rawURL != webhook.URL {
		if err := s.guard.ValidateURL(rawURL); err != nil {
			return nil, model.NewWebhookURLBlockedError()
		}
	}

	webhook.Name = name
	webhook.URL = rawURL
	webhook.Enabled = enabled
	if err := s.webhooks.Update(ctx, webhook); err != nil {
		return nil, err
	}
	return webhook, nil
}

// Delete はWebhookを削除する。
func (s *Service) Delete(ctx context.Context, userID, webhookID string) error {
	webhook, err := s.owned(ctx, userID, webhookID)
	if err != nil {
		return err
	}
	return s.webhooks.Delete(ctx, webhook.ID)
}

func (s *Service) owned(ctx context.Context, userID, webhookID string) (*model.Webhook, error) {
	webhook, err := s.webhooks.FindByID(ctx, webhookID)
	if err != nil {
		return nil, err
	}
	if webhook == nil || webhook.UserID != userID {
		return nil, model.NewWebhookNotFoundError(webhookID)
	}
	return webhook, nil
}

// PushProfiles は指定プロフィール群をユーザーの有効なWebhook全てに送信する。
// 送信は1件ずつ間隔を空けて行い、失敗してもリトライしない。
func (s *Service) PushProfiles(ctx context.Context, userID string, profileIDs []string) error {
	if len(profileIDs) == 0 {
		return nil
	}

	hooks, err := s.webhooks.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	var enabled []*model.Webhook
	for _, hook := range hooks {
		if hook.Enabled {
			enabled = append(enabled, hook)
		}
	}
	if len(enabled) == 0 {
		return nil
	}

	profiles, err := s.profiles.ListByIDs(ctx, profileIDs)
	if err != nil {
		return err
	}

	sent := 0
	for _, profile := range profiles {
		stats, err := s.profiles.EngagementStats(ctx, profile.ID)
		if err != nil {
			slog.Warn("エンゲージメント集計の取得に失敗しました", "profileID", profile.ID, "error", err)
			stats = &repository.ProfileEngagementStats{}
		}
		fields := buildProfileFields(profile, stats)

		for _, hook := range enabled {
			if sent > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(s.sendDelay):
				}
			}
			s.deliver(ctx, hook, buildProfilePayload(hook, fields))
			sent++
		}
	}

	slog.Info("Webhook送信が完了しました",
		"userID", userID, "profiles", len(profiles), "webhooks", len(enabled))
	return nil
}

// PushToWebhook は指定Webhook 1件へプロフィール群を送信し、送信件数を返す。
// profileIDsが空の場合はユーザーの全プロフィールが対象となる。
// 手動トリガーのため、無効化されたWebhookへも送信する。
func (s *Service) PushToWebhook(ctx context.Context, userID, webhookID string, profileIDs []string) (int, error) {
	hook, err := s.owned(ctx, userID, webhookID)
	if err != nil {
		return 0, err
	}

	var profiles []*model.Profile
	if len(profileIDs) == 0 {
		profiles, err = s.profiles.ListByUser(ctx, userID, 0)
	} else {
		profiles, err = s.profiles.ListByIDs(ctx, profileIDs)
	}
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, profile := range profiles {
		// ID指定経由で他ユーザーのプロフィールが混入しても送信しない
		if profile.UserID != userID {
			continue
		}
		if sent > 0 {
			select {
			case <-ctx.Done():
				return sent, ctx.Err()
			case <-time.After(s.sendDelay):
			}
		}

		stats, err := s.profiles.EngagementStats(ctx, profile.ID)
		if err != nil {
			slog.Warn("エンゲージメント集計の取得に失敗しました", "profileID", profile.ID, "error", err)
			stats = &repository.ProfileEngagementStats{}
		}
		s.deliver(ctx, hook, buildProfilePayload(hook, buildProfileFields(profile, stats)))
		sent++
	}

	slog.Info("Webhookへの手動送信が完了しました",
		"userID", userID, "webhookID", hook.ID, "profiles", sent)
	return sent, nil
}

// deliver は1件のペイロードを1回だけ送信する。
func (s *Service) deliver(ctx context.Context, hook *model.Webhook, payload map[string]any) {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("ペイロードのエンコードに失敗しました", "webhookID", hook.ID, "error", err)
		s.metrics.RecordWebhookDelivery(false)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		s.metrics.RecordWebhookDelivery(false)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Warn("Webhook送信に失敗しました", "webhookID", hook.ID, "url", hook.URL, "error", err)
		s.metrics.RecordWebhookDelivery(false)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		slog.Warn("Webhookがエラーを返しました",
			"webhookID", hook.ID, "status", resp.StatusCode)
		s.metrics.RecordWebhookDelivery(false)
		return
	}
	s.metrics.RecordWebhookDelivery(true)
}

// buildProfileFields はプロフィール1件の表示フィールドマップを構築する。
// キー名は受信側のスプレッドシート連携が期待する固定の表示名。
func buildProfileFields(profile *model.Profile, stats *repository.ProfileEngagementStats) map[string]any {
	return map[string]any{
		"Name":                   profile.Name,
		"First Name":             profile.FirstName,
		"Last Name":              profile.LastName,
		"URN":                    profile.URN,
		"Profile URL":            profile.ProfileURL,
		"Profile Picture URL":    profile.PictureURL,
		"Country":                profile.Country,
		"City":                   profile.City,
		"Headline":               profile.Headline,
		"Current Title":          profile.CurrentTitle,
		"Current Company":        profile.CurrentCompany,
		"Company LinkedIn URL":   profile.CompanyLinkedInURL,
		"Last Engaged Post Date": formatExportTime(stats.LastEngagedPostAt),
		"Last Engaged Post URL":  stats.LastEngagedPostURL,
		"Reaction Type":          stats.LastReactionType,
		"Total Reactions":        stats.TotalReactions,
		"Total Comments":         stats.TotalComments,
		"Posts Engaged With":     stats.PostsEngagedWith,
		"First Seen":             formatExportTime(&profile.FirstSeen),
		"Last Updated":           formatExportTime(&profile.LastUpdated),
		"Last Enriched":          formatExportTime(profile.LastEnriched),
	}
}

// buildProfilePayload は送信ペイロードを構築する。
// 固定形式の2階層: profileマップとmetadataマップ。metadataには
// 送信先Webhook名・送信時刻・送信元タグが入る。
func buildProfilePayload(hook *model.Webhook, fields map[string]any) map[string]any {
	return map[string]any{
		"profile": fields,
		"metadata": map[string]any{
			"webhook_name": hook.Name,
			"source":       "engagemint",
			"sent_at":      formatExportTime(ptrTime(time.Now())),
		},
	}
}

// formatExportTime は日時を固定フォーマットのUTC文字列にする。nilは空文字列。
func formatExportTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(exportDateLayout)
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
