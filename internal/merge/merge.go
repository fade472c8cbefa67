// Package merge は重複プロフィールの検出とマージを提供する。
// 識別子を共有するプロフィールをグループ化し、各グループのkeeperに
// エンゲージメントを付け替えたうえでloserを削除する。
package merge

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/hitoshi/engagemint/internal/model"
	"github.com/hitoshi/engagemint/internal/repository"
)

// Engine は重複プロフィールのマージを実行する。
type Engine struct {
	db        repository.TxBeginner
	profiles  repository.ProfileRepository
	reactions repository.ReactionRepository
	comments  repository.CommentRepository
}

// NewEngine はEngineを生成する。
func NewEngine(db repository.TxBeginner, profiles repository.ProfileRepository, reactions repository.ReactionRepository, comments repository.CommentRepository) *Engine {
	return &Engine{db: db, profiles: profiles, reactions: reactions, comments: comments}
}

// GroupResult は1グループのマージ結果を表す。
type GroupResult struct {
	KeeperID  string   `json:"keeper_id"`
	MergedIDs []string `json:"merged_ids"`
	Error     string   `json:"error,omitempty"`
}

// Summary はマージ実行全体の結果を表す。
type Summary struct {
	GroupsFound     int           `json:"groups_found"`
	GroupsMerged    int           `json:"groups_merged"`
	ProfilesRemoved int           `json:"profiles_removed"`
	Results         []GroupResult `json:"results"`
}

// FindDuplicateGroups は対象プロフィールを識別子の共有関係でグループ化し、
// 2件以上のグループのみを返す。patternが空の場合はユーザーの全プロフィールを、
// 空でない場合は名前・識別子の部分一致で絞り込んだ候補のみを対象とする。
// URN・primary_identifier・alternative_urnsは同じ不透明ID空間として、
// secondary_identifier・public_identifierは同じスラッグ空間として照合する。
func (e *Engine) FindDuplicateGroups(ctx context.Context, userID, pattern string) ([][]*model.Profile, error) {
	var profiles []*model.Profile
	var err error
	if pattern == "" {
		profiles, err = e.profiles.ListByUser(ctx, userID, 0)
	} else {
		profiles, err = e.profiles.SearchCandidates(ctx, userID, pattern)
	}
	if err != nil {
		return nil, err
	}
	return groupByIdentifiers(profiles), nil
}

// MergeAll は重複グループを検出し、各グループを独立にマージする。
// あるグループのマージが失敗しても他のグループの処理は継続する。
func (e *Engine) MergeAll(ctx context.Context, userID, pattern string) (*Summary, error) {
	groups, err := e.FindDuplicateGroups(ctx, userID, pattern)
	if err != nil {
		return nil, err
	}

	summary := &Summary{GroupsFound: len(groups)}
	for _, group := range groups {
		result := e.mergeGroup(ctx, group)
		summary.Results = append(summary.Results, result)
		if result.Error == "" {
			summary.GroupsMerged++
			summary.ProfilesRemoved += len(result.MergedIDs)
		}
	}

	slog.Info("重複プロフィールのマージが完了しました",
		"userID", userID,
		"groupsFound", summary.GroupsFound,
		"groupsMerged", summary.GroupsMerged,
		"profilesRemoved", summary.ProfilesRemoved)
	return summary, nil
}

// mergeGroup は1グループをマージする。keeperを選定し、1トランザクション内で
// リアクション・コメントの付け替えとloserの削除を行う。
func (e *Engine) mergeGroup(ctx context.Context, group []*model.Profile) GroupResult {
	keeper := electKeeper(group)

	var loserIDs []string
	var losers []*model.Profile
	for _, p := range group {
		if p.ID != keeper.ID {
			loserIDs = append(loserIDs, p.ID)
			losers = append(losers, p)
		}
	}

	result := GroupResult{KeeperID: keeper.ID, MergedIDs: loserIDs}

	// loserの識別子は削除前にkeeperへ引き継ぐ。追記は冪等なので、
	// この後のマージが失敗しても余分なalternative_urnsが残るだけで
	// 識別子が失われることはない。
	if err := e.absorbIdentifiers(ctx, keeper, losers); err != nil {
		result.Error = err.Error()
		return result
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer tx.Rollback()

	if err := e.reactions.RepointProfile(ctx, tx, loserIDs, keeper.ID); err != nil {
		result.Error = err.Error()
		return result
	}
	if err := e.comments.RepointProfile(ctx, tx, loserIDs, keeper.ID); err != nil {
		result.Error = err.Error()
		return result
	}
	if err := e.profiles.DeleteInTx(ctx, tx, loserIDs); err != nil {
		result.Error = err.Error()
		return result
	}
	if err := tx.Commit(); err != nil {
		result.Error = err.Error()
		return result
	}

	slog.Info("プロフィールグループをマージしました",
		"keeperID", keeper.ID, "merged", len(loserIDs))
	return result
}

// absorbIdentifiers はloserのURN・不透明ID・alternative_urnsをkeeperの
// alternative_urnsに追記し、keeperの欠落フィールドをloserからバックフィルする。
func (e *Engine) absorbIdentifiers(ctx context.Context, keeper *model.Profile, losers []*model.Profile) error {
	changed := false

	for _, loser := range losers {
		for _, urn := range loserURNs(loser) {
			if urn == "" || urn == keeper.URN || urn == keeper.PrimaryIdentifier || keeper.HasAlternativeURN(urn) {
				continue
			}
			if err := e.profiles.AppendAlternativeURN(ctx, keeper.ID, urn); err != nil {
				return err
			}
			keeper.AlternativeURNs = append(keeper.AlternativeURNs, urn)
		}

		if keeper.Name == "" && loser.Name != "" {
			keeper.Name = loser.Name
			changed = true
		}
		if keeper.Headline == "" && loser.Headline != "" {
			keeper.Headline = loser.Headline
			changed = true
		}
		if keeper.PictureURL == "" && loser.PictureURL != "" {
			keeper.PictureURL = loser.PictureURL
			changed = true
		}
		if keeper.ProfileURL == "" && loser.ProfileURL != "" {
			keeper.ProfileURL = loser.ProfileURL
			changed = true
		}
		if keeper.SecondaryIdentifier == "" && loser.SecondaryIdentifier != "" {
			keeper.SecondaryIdentifier = loser.SecondaryIdentifier
			changed = true
		}
		if keeper.LastEnriched == nil && loser.LastEnriched != nil {
			keeper.Country = loser.Country
			keeper.City = loser.City
			keeper.CurrentTitle = loser.CurrentTitle
			keeper.CurrentCompany = loser.CurrentCompany
			keeper.CompanyLinkedInURL = loser.CompanyLinkedInURL
			keeper.LastEnriched = loser.LastEnriched
			changed = true
		}
	}

	if changed {
		keeper.LastUpdated = time.Now()
		return e.profiles.Update(ctx, keeper)
	}
	return nil
}

// loserURNs はloserが持つ不透明ID系の識別子をすべて返す。
func loserURNs(loser *model.Profile) []string {
	urns := []string{loser.URN, loser.PrimaryIdentifier}
	urns = append(urns, loser.AlternativeURNs...)
	return urns
}

// electKeeper はグループのkeeperを選定する。
// public_identifierを持つ（エンリッチ済みの）プロフィールを優先し、
// 同条件ならfirst_seenが最も古いものを選ぶ。
func electKeeper(group []*model.Profile) *model.Profile {
	candidates := make([]*model.Profile, len(group))
	copy(candidates, group)

	sort.SliceStable(candidates, func(i, j int) bool {
		iEnriched := candidates[i].PublicIdentifier != ""
		jEnriched := candidates[j].PublicIdentifier != ""
		if iEnriched != jEnriched {
			return iEnriched
		}
		if !candidates[i].FirstSeen.Equal(candidates[j].FirstSeen) {
			return candidates[i].FirstSeen.Before(candidates[j].FirstSeen)
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates[0]
}

// groupByIdentifiers はプロフィールをunion-findでグループ化する。
func groupByIdentifiers(profiles []*model.Profile) [][]*model.Profile {
	parent := make([]int, len(profiles))
	for i := range parent {
		parent[i] = i
	}

	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(i, j int) {
		ri, rj := find(i), find(j)
		if ri != rj {
			parent[rj] = ri
		}
	}

	// 識別子値→最初に観測したプロフィールindex
	owners := make(map[string]int)
	claim := func(i int, space, value string) {
		if value == "" {
			return
		}
		key := space + ":" + value
		if owner, ok := owners[key]; ok {
			union(owner, i)
		} else {
			owners[key] = i
		}
	}

	for i, p := range profiles {
		claim(i, "id", p.URN)
		claim(i, "id", p.PrimaryIdentifier)
		for _, urn := range p.AlternativeURNs {
			claim(i, "id", urn)
		}
		claim(i, "slug", p.SecondaryIdentifier)
		claim(i, "slug", p.PublicIdentifier)
		claim(i, "url", p.ProfileURL)
	}

	grouped := make(map[int][]*model.Profile)
	for i, p := range profiles {
		root := find(i)
		grouped[root] = append(grouped[root], p)
	}

	var groups [][]*model.Profile
	for _, group := range grouped {
		if len(group) > 1 {
			groups = append(groups, group)
		}
	}

	// 安定した出力順のためkeeper候補のfirst_seenでソートする
	sort.Slice(groups, func(i, j int) bool {
		return groups[i][0].FirstSeen.Before(groups[j][0].FirstSeen)
	})
	return groups
}
