// Package identifier はLinkedInの識別子の解析と正規化を提供する。
// プロフィールURL/URNから正規化された識別子トリプル
// （primary=ACoA形式の不透明ID、secondary=vanityスラッグ、public=secondaryの別名）
// を導出する。全関数は純粋かつ全域で、失敗しない。
package identifier

import "strings"

const (
	// acoaPrefix はACoA形式の不透明プロフィールIDのプレフィックス。
	acoaPrefix = "ACoA"
	// personURNPrefix は人物URNの既知プレフィックス。
	personURNPrefix = "urn:li:person:"
	// profilePathMarker はプロフィールURLのパスマーカー。
	profilePathMarker = "/in/"
)

// Identifiers は正規化された識別子トリプルを表す。
// 解析できなかったフィールドは空文字列となる。
type Identifiers struct {
	// Primary はACoA形式の不透明ID。
	Primary string
	// Secondary はvanityスラッグ。
	Secondary string
	// Public はSecondaryの別名（マッチング用）。
	Public string
}

// Extract は入力文字列から識別子トリプルを導出する。
//
//   - 入力がACoAプレフィックスで始まる場合、そのままPrimaryとして返す。
//   - プロフィールURLの場合、/in/ に続くパスセグメントを取り出し、
//     ACoA形状であればPrimary、そうでなければSecondary（Publicにも複製）とする。
//   - 解析不能な入力は全フィールド空のIdentifiersを返す。
//
// 冪等性: 抽出済みのPrimary値を再入力しても同じPrimary値が得られる。
func Extract(input string) Identifiers {
	input = strings.TrimSpace(input)
	if input == "" {
		return Identifiers{}
	}

	// URNプレフィックスは先に剥がす（urn:li:person:ACoA... 形式に対応）
	input = NormalizeURN(input)

	// 既に不透明IDの場合はそのまま返す
	if strings.HasPrefix(input, acoaPrefix) {
		return Identifiers{Primary: input}
	}

	// プロフィールURLからパスセグメントを抽出する
	idx := strings.Index(input, profilePathMarker)
	if idx < 0 {
		return Identifiers{}
	}

	segment := input[idx+len(profilePathMarker):]
	// 後続のパス、クエリ、フラグメントを切り落とす
	if i := strings.IndexAny(segment, "/?#"); i >= 0 {
		segment = segment[:i]
	}
	segment = strings.TrimSpace(segment)
	if segment == "" {
		return Identifiers{}
	}

	if strings.HasPrefix(segment, acoaPrefix) {
		return Identifiers{Primary: segment}
	}

	return Identifiers{Secondary: segment, Public: segment}
}

// NormalizeURN はURN文字列を正規化する。
// 既知のプレフィックス（urn:li:person:）を剥がして素のIDを返す。
// プレフィックスがない場合は入力をそのまま返す。
func NormalizeURN(urn string) string {
	if strings.HasPrefix(urn, personURNPrefix) {
		return urn[len(personURNPrefix):]
	}
	return urn
}
