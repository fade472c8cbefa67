// Package resolver はスクレイプ結果の未解決エンゲージャーを
// 正規化されたプロフィール行に解決する。
// 同一人物が複数の識別子表現で現れても、可能な限り1行に収束させる。
package resolver

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/engagemint/internal/identifier"
	"github.com/hitoshi/engagemint/internal/model"
	"github.com/hitoshi/engagemint/internal/repository"
)

// Result はバッチ解決の結果を表す。
type Result struct {
	// ProfileIDs は入力キー（プロフィールURL、なければURN）から
	// 解決後のプロフィールIDへの対応表。
	ProfileIDs map[string]string
	// NewIDs は今回のバッチで新規作成されたプロフィールのID。
	// エンリッチメント対象の選定に使用される。
	NewIDs []string
	// AllIDs は今回のバッチで処理された全プロフィールのID（新規＋既存）。
	AllIDs []string
}

// Resolver はエンゲージャーのアイデンティティ解決を行う。
type Resolver struct {
	profiles repository.ProfileRepository
}

// New はResolverを生成する。
func New(profiles repository.ProfileRepository) *Resolver {
	return &Resolver{profiles: profiles}
}

// Resolve はエンゲージャーのバッチを解決する。
// バッチ内の同一URL/URNの重複は1回だけ処理され、識別子で既存プロフィールに
// マッチした場合は表示フィールドの更新と識別子のバックフィルを行う。
// マッチしない場合は新規プロフィールを作成する。
// 識別子が1つも導出できないエンゲージャーはスキップされる。
func (r *Resolver) Resolve(ctx context.Context, userID string, engagers []model.RawEngager) (*Result, error) {
	result := &Result{ProfileIDs: make(map[string]string)}
	now := time.Now()

	seen := make(map[string]bool)
	for _, engager := range engagers {
		key := engagerKey(engager)
		if key == "" {
			slog.Warn("識別子を導出できないエンゲージャーをスキップします", "name", engager.Name)
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true

		profileID, created, err := r.resolveOne(ctx, userID, engager, now)
		if err != nil {
			return nil, err
		}

		result.ProfileIDs[key] = profileID
		result.AllIDs = append(result.AllIDs, profileID)
		if created {
			result.NewIDs = append(result.NewIDs, profileID)
		}
	}

	return result, nil
}

// ProfileIDFor は解決結果から指定エンゲージャーのプロフィールIDを引く。
// 解決されていない場合は空文字列を返す。
func (res *Result) ProfileIDFor(engager model.RawEngager) string {
	return res.ProfileIDs[engagerKey(engager)]
}

func engagerKey(engager model.RawEngager) string {
	if engager.ProfileURL != "" {
		return engager.ProfileURL
	}
	return engager.URN
}

func (r *Resolver) resolveOne(ctx context.Context, userID string, engager model.RawEngager, now time.Time) (string, bool, error) {
	urn := identifier.NormalizeURN(engager.URN)
	ids := identifier.Extract(engager.ProfileURL)

	existing, err := r.profiles.FindByIdentifiers(ctx, userID,
		urn, ids.Primary, ids.Secondary, ids.Public, engager.ProfileURL)
	if err != nil {
		return "", false, err
	}

	if existing != nil {
		if err := r.updateExisting(ctx, existing, engager, urn, ids, now); err != nil {
			return "", false, err
		}
		return existing.ID, false, nil
	}

	profile := &model.Profile{
		ID:                  uuid.NewString(),
		UserID:              userID,
		URN:                 urn,
		PrimaryIdentifier:   ids.Primary,
		SecondaryIdentifier: ids.Secondary,
		PublicIdentifier:    ids.Public,
		ProfileURL:          engager.ProfileURL,
		Name:                engager.Name,
		FirstName:           engager.FirstName,
		LastName:            engager.LastName,
		Headline:            engager.Headline,
		PictureURL:          preferredPicture(engager),
		FirstSeen:           now,
		LastUpdated:         now,
	}
	if err := r.profiles.Create(ctx, profile); err != nil {
		return "", false, err
	}

	slog.Debug("新規プロフィールを作成しました", "profileID", profile.ID, "name", profile.Name)
	return profile.ID, true, nil
}

// updateExisting はマッチした既存プロフィールに対して表示フィールドの更新、
// 欠落識別子のバックフィル、相違URNの追記を行う。
func (r *Resolver) updateExisting(ctx context.Context, existing *model.Profile, engager model.RawEngager, urn string, ids identifier.Identifiers, now time.Time) error {
	changed := false

	// 表示フィールドは新しい非空値で上書きする
	if engager.Name != "" && engager.Name != existing.Name {
		existing.Name = engager.Name
		changed = true
	}
	if engager.FirstName != "" && engager.FirstName != existing.FirstName {
		existing.FirstName = engager.FirstName
		changed = true
	}
	if engager.LastName != "" && engager.LastName != existing.LastName {
		existing.LastName = engager.LastName
		changed = true
	}
	if engager.Headline != "" && engager.Headline != existing.Headline {
		existing.Headline = engager.Headline
		changed = true
	}
	if picture := preferredPicture(engager); picture != "" && picture != existing.PictureURL {
		existing.PictureURL = picture
		changed = true
	}

	// 識別子は欠落している場合のみバックフィルする（上書きはしない）
	if existing.PrimaryIdentifier == "" && ids.Primary != "" {
		existing.PrimaryIdentifier = ids.Primary
		changed = true
	}
	if existing.SecondaryIdentifier == "" && ids.Secondary != "" {
		existing.SecondaryIdentifier = ids.Secondary
		changed = true
	}
	if existing.PublicIdentifier == "" && ids.Public != "" {
		existing.PublicIdentifier = ids.Public
		changed = true
	}
	if existing.ProfileURL == "" && engager.ProfileURL != "" {
		existing.ProfileURL = engager.ProfileURL
		changed = true
	}

	switch {
	case urn == "":
	case existing.URN == "":
		existing.URN = urn
		changed = true
	case existing.URN != urn && !existing.HasAlternativeURN(urn):
		// 既存と異なるURNが観測された場合は本体を書き換えず追記専用集合に残す
		if err := r.profiles.AppendAlternativeURN(ctx, existing.ID, urn); err != nil {
			return err
		}
		existing.AlternativeURNs = append(existing.AlternativeURNs, urn)
	}

	if changed {
		existing.LastUpdated = now
		if err := r.profiles.Update(ctx, existing); err != nil {
			return err
		}
	}
	return nil
}

// preferredPicture は高解像度画像を優先して返す。
func preferredPicture(engager model.RawEngager) string {
	if engager.PictureURLLarge != "" {
		return engager.PictureURLLarge
	}
	return engager.PictureURL
}
