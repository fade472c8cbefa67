package model

import "time"

// Profile はLinkedIn上の人物の正規化されたアイデンティティを表す。
// 1ユーザーのデータセット内で同一人物のProfile行は1行であることを目指すが、
// 厳密な一意性はResolverとMerge Engineによる近似的な保証にとどまる。
type Profile struct {
	ID     string
	UserID string

	// URN は正規化済みのLinkedIn URN（プレフィックス除去後の素のID）。
	URN string
	// PrimaryIdentifier はACoA形式の不透明ID。
	PrimaryIdentifier string
	// SecondaryIdentifier はプロフィールURLのパスに現れるvanityスラッグ。
	SecondaryIdentifier string
	// PublicIdentifier はSecondaryIdentifierの別名。マッチングに使用される。
	// 非nullであればエンリッチ済みとみなされ、マージ時のkeeper選定で優先される。
	PublicIdentifier string
	// AlternativeURNs は過去に観測された識別子文字列の追記専用集合。
	AlternativeURNs []string

	ProfileURL string
	Name       string
	FirstName  string
	LastName   string
	Headline   string
	PictureURL string

	// エンリッチメントで取得されるフィールド
	Country           string
	City              string
	CurrentTitle      string
	CurrentCompany    string
	CompanyLinkedInURL string
	LastEnriched      *time.Time

	FirstSeen   time.Time
	LastUpdated time.Time
}

// HasAlternativeURN はalternative_urnsに指定のURNが含まれるかを返す。
func (p *Profile) HasAlternativeURN(urn string) bool {
	for _, u := range p.AlternativeURNs {
		if u == urn {
			return true
		}
	}
	return false
}

// RawEngager はスクレイピングプロバイダから取得した未解決の
// リアクター/コメンターのレコードを表す。Resolverへの入力となる。
type RawEngager struct {
	ProfileURL string
	URN        string
	Name       string
	FirstName  string
	LastName   string
	Headline   string
	PictureURL string
	// PictureURLLarge は取得できた場合の高解像度画像URL。優先して保存される。
	PictureURLLarge string
}
