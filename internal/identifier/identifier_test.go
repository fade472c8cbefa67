package identifier

import "testing"

// ACoA形式の不透明IDがそのままPrimaryとして返ることを検証
func TestExtract_OpaqueID(t *testing.T) {
	got := Extract("ACoAABxxxx123")

	if got.Primary != "ACoAABxxxx123" {
		t.Errorf("Primary = %q, want %q", got.Primary, "ACoAABxxxx123")
	}
	if got.Secondary != "" || got.Public != "" {
		t.Errorf("Secondary/Public should be empty, got %q / %q", got.Secondary, got.Public)
	}
}

// プロフィールURLのvanityスラッグがSecondaryとPublicに複製されることを検証
func TestExtract_VanityURL(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"素のURL", "https://www.linkedin.com/in/jdoe", "jdoe"},
		{"末尾スラッシュ", "https://www.linkedin.com/in/jdoe/", "jdoe"},
		{"クエリ付き", "https://www.linkedin.com/in/jdoe?utm=x", "jdoe"},
		{"サブパス付き", "https://www.linkedin.com/in/jdoe/details/", "jdoe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.input)
			if got.Secondary != tt.want {
				t.Errorf("Secondary = %q, want %q", got.Secondary, tt.want)
			}
			if got.Public != tt.want {
				t.Errorf("Public = %q, want %q", got.Public, tt.want)
			}
			if got.Primary != "" {
				t.Errorf("Primary should be empty, got %q", got.Primary)
			}
		})
	}
}

// /in/ パスにACoA形式のIDが含まれる場合はPrimaryとして扱われることを検証
func TestExtract_OpaqueIDInURL(t *testing.T) {
	got := Extract("https://www.linkedin.com/in/ACoAAByyyy456/")

	if got.Primary != "ACoAAByyyy456" {
		t.Errorf("Primary = %q, want %q", got.Primary, "ACoAAByyyy456")
	}
	if got.Secondary != "" {
		t.Errorf("Secondary should be empty, got %q", got.Secondary)
	}
}

// 解析不能な入力は全フィールド空になることを検証（全域性）
func TestExtract_Unparseable(t *testing.T) {
	tests := []string{
		"",
		"   ",
		"https://example.com/profile/jdoe",
		"not a url at all",
	}

	for _, input := range tests {
		got := Extract(input)
		if got.Primary != "" || got.Secondary != "" || got.Public != "" {
			t.Errorf("Extract(%q) = %+v, want all empty", input, got)
		}
	}
}

// 抽出済みのPrimary値を再入力しても同じ値が得られることを検証（冪等性）
func TestExtract_Idempotent(t *testing.T) {
	first := Extract("https://www.linkedin.com/in/ACoAABzzzz789/")
	second := Extract(first.Primary)

	if second.Primary != first.Primary {
		t.Errorf("re-extracted Primary = %q, want %q", second.Primary, first.Primary)
	}
}

// URN形式の入力も解析できることを検証
func TestExtract_URNInput(t *testing.T) {
	got := Extract("urn:li:person:ACoAABqqqq000")

	if got.Primary != "ACoAABqqqq000" {
		t.Errorf("Primary = %q, want %q", got.Primary, "ACoAABqqqq000")
	}
}

// URNの正規化を検証
func TestNormalizeURN(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"プレフィックス付きURN", "urn:li:person:ACoAAB123", "ACoAAB123"},
		{"素のID", "ACoAAB123", "ACoAAB123"},
		{"別種のURN", "urn:li:activity:999", "urn:li:activity:999"},
		{"空文字列", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeURN(tt.input); got != tt.want {
				t.Errorf("NormalizeURN(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
