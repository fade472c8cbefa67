package engagement

import (
	"context"
	"testing"
	"time"

	"github.com/hitoshi/engagemint/internal/model"
	"github.com/hitoshi/engagemint/internal/repository"
)

func TestChanged(t *testing.T) {
	cases := []struct {
		name   string
		stored model.EngagementCounters
		fresh  model.EngagementCounters
		want   bool
	}{
		{
			name:   "変化なし",
			stored: model.EngagementCounters{Likes: 10, Comments: 2, Shares: 0},
			fresh:  model.EngagementCounters{Likes: 10, Comments: 2, Shares: 0},
			want:   false,
		},
		{
			name:   "いいね増加",
			stored: model.EngagementCounters{Likes: 10, Comments: 2, Shares: 0},
			fresh:  model.EngagementCounters{Likes: 11, Comments: 2, Shares: 0},
			want:   true,
		},
		{
			name:   "いいね減少も変化として扱う",
			stored: model.EngagementCounters{Likes: 10, Comments: 2, Shares: 0},
			fresh:  model.EngagementCounters{Likes: 9, Comments: 2, Shares: 0},
			want:   true,
		},
		{
			name:   "コメントのみ変化",
			stored: model.EngagementCounters{Likes: 10, Comments: 2, Shares: 0},
			fresh:  model.EngagementCounters{Likes: 10, Comments: 3, Shares: 0},
			want:   true,
		},
		{
			name:   "シェアのみ変化",
			stored: model.EngagementCounters{Likes: 10, Comments: 2, Shares: 0},
			fresh:  model.EngagementCounters{Likes: 10, Comments: 2, Shares: 1},
			want:   true,
		},
		{
			name:   "全てゼロ同士",
			stored: model.EngagementCounters{},
			fresh:  model.EngagementCounters{},
			want:   false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Changed(tc.stored, tc.fresh); got != tc.want {
				t.Errorf("Changed() = %v, want %v", got, tc.want)
			}
		})
	}
}

// flagPostRepo はフラグ操作の呼び出しを記録するモック。
type flagPostRepo struct {
	repository.PostRepository
	flagged   []string
	flaggedAt time.Time
	cleared   []string
}

func (m *flagPostRepo) FlagEngagement(ctx context.Context, postID string, at time.Time) error {
	m.flagged = append(m.flagged, postID)
	m.flaggedAt = at
	return nil
}

func (m *flagPostRepo) ClearEngagementFlags(ctx context.Context, postIDs []string) error {
	m.cleared = append(m.cleared, postIDs...)
	return nil
}

func TestApplyFlagsOnlyOnChange(t *testing.T) {
	repo := &flagPostRepo{}
	svc := NewService(repo)
	now := time.Now()

	post := &model.Post{ID: "id-1", PostID: "post-1", NumLikes: 10, NumComments: 2}

	// 変化なし: フラグは立たない
	flagged, err := svc.Apply(context.Background(), post, model.EngagementCounters{Likes: 10, Comments: 2}, now)
	if err != nil {
		t.Fatalf("エラーが発生しました: %v", err)
	}
	if flagged {
		t.Error("変化がない場合はフラグを立てるべきではありません")
	}
	if len(repo.flagged) != 0 {
		t.Errorf("FlagEngagementが呼ばれるべきではありません: %v", repo.flagged)
	}

	// 変化あり: フラグが立つ
	flagged, err = svc.Apply(context.Background(), post, model.EngagementCounters{Likes: 11, Comments: 2}, now)
	if err != nil {
		t.Fatalf("エラーが発生しました: %v", err)
	}
	if !flagged {
		t.Error("変化がある場合はフラグを立てるべきです")
	}
	if len(repo.flagged) != 1 || repo.flagged[0] != "id-1" {
		t.Errorf("フラグ対象が一致しません: %v", repo.flagged)
	}
}

func TestClear(t *testing.T) {
	repo := &flagPostRepo{}
	svc := NewService(repo)

	if err := svc.Clear(context.Background(), []string{"id-1", "id-2"}); err != nil {
		t.Fatalf("エラーが発生しました: %v", err)
	}
	if len(repo.cleared) != 2 {
		t.Errorf("クリア対象数が一致しません: %v", repo.cleared)
	}

	// 空のリストはリポジトリを呼ばない
	repo.cleared = nil
	if err := svc.Clear(context.Background(), nil); err != nil {
		t.Fatalf("エラーが発生しました: %v", err)
	}
	if repo.cleared != nil {
		t.Error("空のリストではClearEngagementFlagsを呼ぶべきではありません")
	}
}
