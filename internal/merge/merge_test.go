package merge

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hitoshi/engagemint/internal/model"
	"github.com/hitoshi/engagemint/internal/repository"
)

// mergeProfileRepo はマージエンジン用のProfileRepositoryフェイク。
// 呼び出し順をeventsに記録する。
type mergeProfileRepo struct {
	profiles      []*model.Profile
	listCalled    bool
	searchPattern string
	appended      []string
	events        *[]string
}

func (m *mergeProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	return nil, nil
}

func (m *mergeProfileRepo) FindByIdentifiers(ctx context.Context, userID, urn, primary, secondary, public, profileURL string) (*model.Profile, error) {
	return nil, nil
}

func (m *mergeProfileRepo) Create(ctx context.Context, profile *model.Profile) error { return nil }

func (m *mergeProfileRepo) Update(ctx context.Context, profile *model.Profile) error {
	*m.events = append(*m.events, "update")
	return nil
}

func (m *mergeProfileRepo) AppendAlternativeURN(ctx context.Context, profileID, urn string) error {
	m.appended = append(m.appended, urn)
	*m.events = append(*m.events, "append")
	return nil
}

func (m *mergeProfileRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*model.Profile, error) {
	m.listCalled = true
	return m.profiles, nil
}

func (m *mergeProfileRepo) ListByIDs(ctx context.Context, ids []string) ([]*model.Profile, error) {
	return nil, nil
}

func (m *mergeProfileRepo) SearchCandidates(ctx context.Context, userID, pattern string) ([]*model.Profile, error) {
	m.searchPattern = pattern
	return m.profiles, nil
}

func (m *mergeProfileRepo) Delete(ctx context.Context, id string) error { return nil }

func (m *mergeProfileRepo) DeleteInTx(ctx context.Context, tx *sql.Tx, ids []string) error {
	*m.events = append(*m.events, "delete")
	return nil
}

func (m *mergeProfileRepo) EngagementStats(ctx context.Context, profileID string) (*repository.ProfileEngagementStats, error) {
	return &repository.ProfileEngagementStats{}, nil
}

// failingTxBeginner はトランザクション開始を常に失敗させる。
type failingTxBeginner struct {
	events *[]string
}

func (f *failingTxBeginner) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	*f.events = append(*f.events, "begin")
	return nil, errors.New("データベース接続が失われました")
}

type noopReactionRepo struct{}

func (noopReactionRepo) Upsert(ctx context.Context, reaction *model.Reaction) error { return nil }
func (noopReactionRepo) DeleteByPost(ctx context.Context, postID string) error      { return nil }
func (noopReactionRepo) CountByPost(ctx context.Context, postID string) (int, error) {
	return 0, nil
}
func (noopReactionRepo) RepointProfile(ctx context.Context, tx *sql.Tx, fromIDs []string, keeperID string) error {
	return nil
}

type noopCommentRepo struct{}

func (noopCommentRepo) Upsert(ctx context.Context, comment *model.Comment) error { return nil }
func (noopCommentRepo) RepointProfile(ctx context.Context, tx *sql.Tx, fromIDs []string, keeperID string) error {
	return nil
}

func TestGroupByIdentifiersSharedURN(t *testing.T) {
	profiles := []*model.Profile{
		{ID: "a", URN: "ACoAAB123"},
		{ID: "b", PrimaryIdentifier: "ACoAAB123"},
		{ID: "c", URN: "ACoAZZZ999"},
	}

	groups := groupByIdentifiers(profiles)
	if len(groups) != 1 {
		t.Fatalf("グループ数が一致しません: got %d, want 1", len(groups))
	}
	if len(groups[0]) != 2 {
		t.Errorf("グループサイズが一致しません: got %d, want 2", len(groups[0]))
	}
}

func TestGroupByIdentifiersTransitive(t *testing.T) {
	// a-b はスラッグを共有、b-c はURNを共有。推移的にa,b,cが1グループになる。
	profiles := []*model.Profile{
		{ID: "a", SecondaryIdentifier: "tanaka-taro"},
		{ID: "b", PublicIdentifier: "tanaka-taro", URN: "ACoAAB123"},
		{ID: "c", PrimaryIdentifier: "ACoAAB123"},
	}

	groups := groupByIdentifiers(profiles)
	if len(groups) != 1 {
		t.Fatalf("グループ数が一致しません: got %d, want 1", len(groups))
	}
	if len(groups[0]) != 3 {
		t.Errorf("グループサイズが一致しません: got %d, want 3", len(groups[0]))
	}
}

func TestGroupByIdentifiersAlternativeURN(t *testing.T) {
	profiles := []*model.Profile{
		{ID: "a", AlternativeURNs: []string{"ACoAXYZ999"}},
		{ID: "b", URN: "ACoAXYZ999"},
	}

	groups := groupByIdentifiers(profiles)
	if len(groups) != 1 {
		t.Fatalf("alternative_urns経由のマッチが機能していません: got %d groups", len(groups))
	}
}

func TestGroupByIdentifiersNoFalsePositives(t *testing.T) {
	// 空の識別子同士はマッチしない。URN空間とスラッグ空間は分離される。
	profiles := []*model.Profile{
		{ID: "a"},
		{ID: "b"},
		{ID: "c", URN: "tanaka-taro"},
		{ID: "d", SecondaryIdentifier: "tanaka-taro"},
	}

	groups := groupByIdentifiers(profiles)
	if len(groups) != 0 {
		t.Errorf("誤ったグループが検出されました: %d groups", len(groups))
	}
}

func TestGroupByIdentifiersMultipleGroups(t *testing.T) {
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	profiles := []*model.Profile{
		{ID: "a", URN: "ACoAAB123", FirstSeen: t1},
		{ID: "b", PrimaryIdentifier: "ACoAAB123", FirstSeen: t2},
		{ID: "c", ProfileURL: "https://www.linkedin.com/in/sato/", FirstSeen: t2},
		{ID: "d", ProfileURL: "https://www.linkedin.com/in/sato/", FirstSeen: t2},
		{ID: "e", URN: "ACoAZZZ999", FirstSeen: t1},
	}

	groups := groupByIdentifiers(profiles)

	got := make([][]string, 0, len(groups))
	for _, group := range groups {
		ids := make([]string, 0, len(group))
		for _, p := range group {
			ids = append(ids, p.ID)
		}
		got = append(got, ids)
	}

	// グループは先頭メンバーのfirst_seen昇順で返る
	want := [][]string{{"a", "b"}, {"c", "d"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("グループ構成が一致しません (-want +got):\n%s", diff)
	}
}

func TestElectKeeperPrefersEnriched(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	// Bの方が新しいが、public_identifierを持つためkeeperに選ばれる
	a := &model.Profile{ID: "a", FirstSeen: older}
	b := &model.Profile{ID: "b", PublicIdentifier: "tanaka-taro", FirstSeen: newer}

	keeper := electKeeper([]*model.Profile{a, b})
	if keeper.ID != "b" {
		t.Errorf("エンリッチ済みプロフィールが優先されるべきです: got %s", keeper.ID)
	}
}

func TestElectKeeperOldestFirstSeen(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	a := &model.Profile{ID: "a", PublicIdentifier: "x", FirstSeen: newer}
	b := &model.Profile{ID: "b", PublicIdentifier: "y", FirstSeen: older}

	keeper := electKeeper([]*model.Profile{a, b})
	if keeper.ID != "b" {
		t.Errorf("first_seenが古いプロフィールが優先されるべきです: got %s", keeper.ID)
	}
}

func TestLoserURNs(t *testing.T) {
	loser := &model.Profile{
		URN:               "ACoAAB123",
		PrimaryIdentifier: "ACoAAB456",
		AlternativeURNs:   []string{"ACoAXYZ999"},
	}

	urns := loserURNs(loser)
	if len(urns) != 3 {
		t.Errorf("URN数が一致しません: got %d, want 3", len(urns))
	}
}

func TestFindDuplicateGroupsPatternUsesSearch(t *testing.T) {
	var events []string
	repo := &mergeProfileRepo{events: &events}
	engine := NewEngine(&failingTxBeginner{events: &events}, repo, noopReactionRepo{}, noopCommentRepo{})

	if _, err := engine.FindDuplicateGroups(context.Background(), "user-123", "田中"); err != nil {
		t.Fatalf("FindDuplicateGroupsに失敗しました: %v", err)
	}
	if repo.searchPattern != "田中" {
		t.Errorf("patternが候補検索に渡されていません: got %q", repo.searchPattern)
	}
	if repo.listCalled {
		t.Error("pattern指定時に全件取得が呼ばれるべきではありません")
	}

	if _, err := engine.FindDuplicateGroups(context.Background(), "user-123", ""); err != nil {
		t.Fatalf("FindDuplicateGroupsに失敗しました: %v", err)
	}
	if !repo.listCalled {
		t.Error("pattern省略時は全件が対象になるべきです")
	}
}

func TestMergeGroupAbsorbsIdentifiersBeforeTransaction(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	var events []string
	repo := &mergeProfileRepo{
		profiles: []*model.Profile{
			{ID: "keep", UserID: "user-123", URN: "ACoAAAA111", PublicIdentifier: "tanaka-taro", FirstSeen: older},
			{ID: "lose", UserID: "user-123", URN: "ACoAZZZ999", SecondaryIdentifier: "tanaka-taro", FirstSeen: newer},
		},
		events: &events,
	}
	engine := NewEngine(&failingTxBeginner{events: &events}, repo, noopReactionRepo{}, noopCommentRepo{})

	summary, err := engine.MergeAll(context.Background(), "user-123", "")
	if err != nil {
		t.Fatalf("MergeAllに失敗しました: %v", err)
	}

	// トランザクションが失敗してもloserの識別子はすでにkeeperへ引き継がれている
	if summary.GroupsMerged != 0 {
		t.Errorf("失敗したグループがマージ成功として数えられています: %d", summary.GroupsMerged)
	}
	if len(summary.Results) != 1 || summary.Results[0].Error == "" {
		t.Fatalf("グループ結果にエラーが記録されていません: %+v", summary.Results)
	}
	if len(repo.appended) != 1 || repo.appended[0] != "ACoAZZZ999" {
		t.Errorf("loserのURNが引き継がれていません: %v", repo.appended)
	}

	beginIdx, appendIdx := -1, -1
	for i, event := range events {
		switch event {
		case "begin":
			if beginIdx == -1 {
				beginIdx = i
			}
		case "append":
			if appendIdx == -1 {
				appendIdx = i
			}
		}
	}
	if appendIdx == -1 || beginIdx == -1 || appendIdx > beginIdx {
		t.Errorf("識別子の引き継ぎがトランザクション開始より前に行われていません: %v", events)
	}
}
