package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/engagemint/internal/merge"
	"github.com/hitoshi/engagemint/internal/model"
)

// mockProfileReader はProfileReaderのモック実装。
type mockProfileReader struct {
	findByIDFn         func(ctx context.Context, id string) (*model.Profile, error)
	listByUserFn       func(ctx context.Context, userID string, limit int) ([]*model.Profile, error)
	searchCandidatesFn func(ctx context.Context, userID, pattern string) ([]*model.Profile, error)
}

func (m *mockProfileReader) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockProfileReader) ListByUser(ctx context.Context, userID string, limit int) ([]*model.Profile, error) {
	if m.listByUserFn != nil {
		return m.listByUserFn(ctx, userID, limit)
	}
	return nil, nil
}

func (m *mockProfileReader) SearchCandidates(ctx context.Context, userID, pattern string) ([]*model.Profile, error) {
	if m.searchCandidatesFn != nil {
		return m.searchCandidatesFn(ctx, userID, pattern)
	}
	return nil, nil
}

// mockProfileMerger はProfileMergerのモック実装。
type mockProfileMerger struct {
	mergeAllFn func(ctx context.Context, userID, pattern string) (*merge.Summary, error)
}

func (m *mockProfileMerger) MergeAll(ctx context.Context, userID, pattern string) (*merge.Summary, error) {
	if m.mergeAllFn != nil {
		return m.mergeAllFn(ctx, userID, pattern)
	}
	return &merge.Summary{}, nil
}

// recordingCollector はマージ件数の記録を検証するためのメトリクスモック。
type recordingCollector struct {
	merged int
}

func (c *recordingCollector) RecordScrapeSuccess(jobType string)                       {}
func (c *recordingCollector) RecordScrapeFailure(jobType string)                       {}
func (c *recordingCollector) RecordProviderCall(actor string)                          {}
func (c *recordingCollector) RecordProviderJobLatency(actor string, dur time.Duration) {}
func (c *recordingCollector) RecordPagesFetched(n int)                                 {}
func (c *recordingCollector) RecordProfilesCreated(n int)                              {}
func (c *recordingCollector) RecordProfilesUpdated(n int)                              {}
func (c *recordingCollector) RecordProfilesMerged(n int)                               { c.merged += n }
func (c *recordingCollector) RecordWebhookDelivery(success bool)                       {}

func TestProfileHandler_ListProfiles_DefaultLimit(t *testing.T) {
	var gotLimit int
	reader := &mockProfileReader{
		listByUserFn: func(ctx context.Context, userID string, limit int) ([]*model.Profile, error) {
			gotLimit = limit
			return []*model.Profile{
				{ID: "prof-1", UserID: userID, Name: "田中太郎"},
			}, nil
		},
	}
	h := NewProfileHandler(reader, &mockProfileMerger{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/profiles", nil)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.ListProfiles(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコードが一致しません: got %d, want %d", w.Code, http.StatusOK)
	}
	if gotLimit != defaultProfileListLimit {
		t.Errorf("limitが一致しません: got %d, want %d", gotLimit, defaultProfileListLimit)
	}

	var resp []profileResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスのデコードに失敗しました: %v", err)
	}
	if len(resp) != 1 || resp[0].Name != "田中太郎" {
		t.Errorf("レスポンスが一致しません: %+v", resp)
	}
}

func TestProfileHandler_ListProfiles_InvalidLimit(t *testing.T) {
	h := NewProfileHandler(&mockProfileReader{}, &mockProfileMerger{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/profiles?limit=abc", nil)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.ListProfiles(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("ステータスコードが一致しません: got %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestProfileHandler_GetProfile_OtherUsersProfileIsNotFound(t *testing.T) {
	reader := &mockProfileReader{
		findByIDFn: func(ctx context.Context, id string) (*model.Profile, error) {
			return &model.Profile{ID: id, UserID: "someone-else"}, nil
		},
	}
	h := NewProfileHandler(reader, &mockProfileMerger{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/profiles/prof-1", nil)
	req = withUserID(req, "user-123")
	req = withChiURLParam(req, "id", "prof-1")
	w := httptest.NewRecorder()

	h.GetProfile(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("ステータスコードが一致しません: got %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestProfileHandler_SearchProfiles_RequiresQuery(t *testing.T) {
	h := NewProfileHandler(&mockProfileReader{}, &mockProfileMerger{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/profiles/search", nil)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.SearchProfiles(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("ステータスコードが一致しません: got %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestProfileHandler_MergeProfiles(t *testing.T) {
	merger := &mockProfileMerger{
		mergeAllFn: func(ctx context.Context, userID, pattern string) (*merge.Summary, error) {
			return &merge.Summary{
				GroupsFound:     2,
				GroupsMerged:    2,
				ProfilesRemoved: 3,
				Results: []merge.GroupResult{
					{KeeperID: "prof-1", MergedIDs: []string{"prof-2", "prof-3"}},
					{KeeperID: "prof-4", MergedIDs: []string{"prof-5"}},
				},
			}, nil
		},
	}
	collector := &recordingCollector{}
	h := NewProfileHandler(&mockProfileReader{}, merger, collector)

	req := httptest.NewRequest(http.MethodPost, "/api/profiles/merge", bytes.NewBufferString(`{}`))
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.MergeProfiles(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコードが一致しません: got %d, want %d", w.Code, http.StatusOK)
	}

	var summary merge.Summary
	if err := json.NewDecoder(w.Body).Decode(&summary); err != nil {
		t.Fatalf("レスポンスのデコードに失敗しました: %v", err)
	}
	if summary.ProfilesRemoved != 3 {
		t.Errorf("profiles_removedが一致しません: got %d, want 3", summary.ProfilesRemoved)
	}
	if collector.merged != 3 {
		t.Errorf("メトリクスに記録されたマージ件数が一致しません: got %d, want 3", collector.merged)
	}
}

func TestProfileHandler_MergeProfiles_PatternScoped(t *testing.T) {
	var gotPattern string
	merger := &mockProfileMerger{
		mergeAllFn: func(ctx context.Context, userID, pattern string) (*merge.Summary, error) {
			gotPattern = pattern
			return &merge.Summary{}, nil
		},
	}
	h := NewProfileHandler(&mockProfileReader{}, merger, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/profiles/merge", bytes.NewBufferString(`{"pattern":"田中"}`))
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.MergeProfiles(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコードが一致しません: got %d, want %d", w.Code, http.StatusOK)
	}
	if gotPattern != "田中" {
		t.Errorf("patternがマージエンジンに渡されていません: got %q, want %q", gotPattern, "田中")
	}
}

func TestProfileHandler_MergeProfiles_EmptyBodyMeansFullScan(t *testing.T) {
	gotPattern := "unset"
	merger := &mockProfileMerger{
		mergeAllFn: func(ctx context.Context, userID, pattern string) (*merge.Summary, error) {
			gotPattern = pattern
			return &merge.Summary{}, nil
		},
	}
	h := NewProfileHandler(&mockProfileReader{}, merger, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/profiles/merge", nil)
	req = withUserID(req, "user-123")
	w := httptest.NewRecorder()

	h.MergeProfiles(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコードが一致しません: got %d, want %d", w.Code, http.StatusOK)
	}
	if gotPattern != "" {
		t.Errorf("ボディ省略時は全件対象になるべきです: got %q", gotPattern)
	}
}
