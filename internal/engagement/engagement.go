// Package engagement は投稿のエンゲージメントカウンターの差分検出を提供する。
package engagement

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/engagemint/internal/model"
	"github.com/hitoshi/engagemint/internal/repository"
)

// Changed は保存済みカウンターと新規取得カウンターを比較し、
// いずれかの値が異なる場合にtrueを返す。増減の方向は区別しない。
func Changed(stored, fresh model.EngagementCounters) bool {
	return stored.Likes != fresh.Likes ||
		stored.Comments != fresh.Comments ||
		stored.Shares != fresh.Shares
}

// Service はカウンター差分の検出結果を投稿のフラグに反映する。
type Service struct {
	posts repository.PostRepository
}

// NewService はServiceを生成する。
func NewService(posts repository.PostRepository) *Service {
	return &Service{posts: posts}
}

// Apply は投稿の保存済みカウンターとfreshを比較し、差分がある場合のみ
// engagement_needs_scrapingフラグを立てる。フラグを立てた場合はtrueを返す。
func (s *Service) Apply(ctx context.Context, post *model.Post, fresh model.EngagementCounters, now time.Time) (bool, error) {
	if !Changed(post.Counters(), fresh) {
		return false, nil
	}

	if err := s.posts.FlagEngagement(ctx, post.ID, now); err != nil {
		return false, err
	}

	slog.Info("エンゲージメントの変化を検出しました",
		"postID", post.PostID,
		"likes", fresh.Likes, "comments", fresh.Comments, "shares", fresh.Shares)
	return true, nil
}

// Clear は指定投稿群のフラグを無条件でリセットする。
// 変化の有無にかかわらず、処理済みの投稿すべてに対して呼ばれる。
func (s *Service) Clear(ctx context.Context, postIDs []string) error {
	if len(postIDs) == 0 {
		return nil
	}
	return s.posts.ClearEngagementFlags(ctx, postIDs)
}
