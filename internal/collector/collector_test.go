package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/engagemint/internal/metrics"
	"github.com/hitoshi/engagemint/internal/provider"
)

// fakeClient はページ構成を宣言的に定義できるプロバイダクライアントのモック。
type fakeClient struct {
	mu sync.Mutex

	reactionTotal    int
	reactionCalls    int
	commentPages     map[string][][]provider.CommentItem // postID→page(1始まり)→items
	commentTotals    map[string]int
	commentFailPosts map[string]bool // このIDを含む取得を失敗させる
	commentCalls     int
	enrichCalls      int
	enrichFailChunk  int // このindexのチャンクを失敗させる(-1で無効)
	enrichSeenChunks [][]string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		commentPages:     make(map[string][][]provider.CommentItem),
		commentTotals:    make(map[string]int),
		commentFailPosts: make(map[string]bool),
		enrichFailChunk:  -1,
	}
}

func (f *fakeClient) FetchReactions(ctx context.Context, apiKey string, input provider.ReactionsInput) ([]provider.ReactionItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactionCalls++

	start := (input.Page - 1) * input.Limit
	if start >= f.reactionTotal {
		return nil, nil
	}
	count := f.reactionTotal - start
	if count > input.Limit {
		count = input.Limit
	}

	items := make([]provider.ReactionItem, count)
	for i := range items {
		items[i] = provider.ReactionItem{
			ReactorURN:     fmt.Sprintf("ACoA%06d", start+i),
			ReactionType:   "like",
			TotalReactions: f.reactionTotal,
		}
	}
	return items, nil
}

func (f *fakeClient) FetchComments(ctx context.Context, apiKey string, input provider.CommentsInput) ([]provider.CommentItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commentCalls++

	for _, postID := range input.PostIDs {
		if f.commentFailPosts[postID] {
			return nil, errors.New("provider down for this batch")
		}
	}

	var items []provider.CommentItem
	for _, postID := range input.PostIDs {
		pages := f.commentPages[postID]
		if input.Page <= len(pages) {
			for _, item := range pages[input.Page-1] {
				item.TotalComments = f.commentTotals[postID]
				items = append(items, item)
			}
		}
	}
	return items, nil
}

func (f *fakeClient) FetchEnrichment(ctx context.Context, apiKey string, input provider.EnrichmentInput) ([]provider.EnrichedProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chunkIndex := f.enrichCalls
	f.enrichCalls++
	f.enrichSeenChunks = append(f.enrichSeenChunks, input.Identifiers)

	if chunkIndex == f.enrichFailChunk {
		return nil, errors.New("chunk failed")
	}

	items := make([]provider.EnrichedProfile, len(input.Identifiers))
	for i, id := range input.Identifiers {
		items[i] = provider.EnrichedProfile{Identifier: id, Name: "名前 " + id}
	}
	return items, nil
}

func testOptions() Options {
	return Options{
		ReactionPageSize:      100,
		MaxReactionPages:      10,
		ReactionConcurrency:   8,
		CommentBatchSize:      100,
		CommentConcurrency:    4,
		CommentMaxPages:       20,
		EnrichmentChunkSize:   50,
		EnrichmentConcurrency: 4,
	}
}

func newTestCollector(client ProviderClient) *Collector {
	return New(client, testOptions(), metrics.NewCollector(prometheus.NewRegistry()))
}

func TestCollectReactionsSinglePage(t *testing.T) {
	client := newFakeClient()
	client.reactionTotal = 40

	c := newTestCollector(client)
	result, err := c.CollectReactions(context.Background(), "key", "https://www.linkedin.com/posts/a")
	if err != nil {
		t.Fatalf("エラーが発生しました: %v", err)
	}

	if client.reactionCalls != 1 {
		t.Errorf("取得回数が一致しません: got %d, want 1", client.reactionCalls)
	}
	if len(result.Items) != 40 {
		t.Errorf("アイテム数が一致しません: got %d, want 40", len(result.Items))
	}
	if result.PagesFetched != 1 {
		t.Errorf("ページ数が一致しません: got %d, want 1", result.PagesFetched)
	}
}

func TestCollectReactionsMultiPage(t *testing.T) {
	// 総数250、ページサイズ100 → ちょうど3回の取得で全件が集まる
	client := newFakeClient()
	client.reactionTotal = 250

	c := newTestCollector(client)
	result, err := c.CollectReactions(context.Background(), "key", "https://www.linkedin.com/posts/a")
	if err != nil {
		t.Fatalf("エラーが発生しました: %v", err)
	}

	if client.reactionCalls != 3 {
		t.Errorf("取得回数が一致しません: got %d, want 3", client.reactionCalls)
	}
	if len(result.Items) != 250 {
		t.Errorf("アイテム数が一致しません: got %d, want 250", len(result.Items))
	}
	if result.Total != 250 {
		t.Errorf("総数が一致しません: got %d", result.Total)
	}
}

func TestCollectReactionsPageCap(t *testing.T) {
	// 総数2000はページ上限10でキャップされる
	client := newFakeClient()
	client.reactionTotal = 2000

	c := newTestCollector(client)
	result, err := c.CollectReactions(context.Background(), "key", "https://www.linkedin.com/posts/a")
	if err != nil {
		t.Fatalf("エラーが発生しました: %v", err)
	}

	if client.reactionCalls != 10 {
		t.Errorf("取得回数が一致しません: got %d, want 10", client.reactionCalls)
	}
	if len(result.Items) != 1000 {
		t.Errorf("アイテム数が一致しません: got %d, want 1000", len(result.Items))
	}
}

func TestCollectCommentsWithFollowUp(t *testing.T) {
	client := newFakeClient()
	// post-1は2ページ、post-2は1ページで収まる
	client.commentPages["post-1"] = [][]provider.CommentItem{
		{
			{PostID: "post-1", CommentID: "c1"},
			{PostID: "post-1", CommentID: "c2"},
		},
		{
			{PostID: "post-1", CommentID: "c3"},
		},
	}
	client.commentTotals["post-1"] = 3
	client.commentPages["post-2"] = [][]provider.CommentItem{
		{{PostID: "post-2", CommentID: "c4"}},
	}
	client.commentTotals["post-2"] = 1

	opts := testOptions()
	opts.ReactionPageSize = 2 // コメントのページサイズとして流用される
	c := New(client, opts, metrics.NewCollector(prometheus.NewRegistry()))

	result, err := c.CollectComments(context.Background(), "key", []string{"post-1", "post-2"})
	if err != nil {
		t.Fatalf("エラーが発生しました: %v", err)
	}

	if len(result.ByPost["post-1"]) != 3 {
		t.Errorf("post-1のコメント数が一致しません: got %d, want 3", len(result.ByPost["post-1"]))
	}
	if len(result.ByPost["post-2"]) != 1 {
		t.Errorf("post-2のコメント数が一致しません: got %d, want 1", len(result.ByPost["post-2"]))
	}
	// バッチ1回 + post-1の追いページング1回
	if client.commentCalls != 2 {
		t.Errorf("取得回数が一致しません: got %d, want 2", client.commentCalls)
	}
}

func TestCollectCommentsStopsOnStalePage(t *testing.T) {
	client := newFakeClient()
	// 総数は3と報告されるが、2ページ目以降は同じコメントしか返らない
	client.commentPages["post-1"] = [][]provider.CommentItem{
		{{PostID: "post-1", CommentID: "c1"}},
		{{PostID: "post-1", CommentID: "c1"}},
		{{PostID: "post-1", CommentID: "c1"}},
	}
	client.commentTotals["post-1"] = 3

	opts := testOptions()
	opts.ReactionPageSize = 1
	c := New(client, opts, metrics.NewCollector(prometheus.NewRegistry()))

	result, err := c.CollectComments(context.Background(), "key", []string{"post-1"})
	if err != nil {
		t.Fatalf("エラーが発生しました: %v", err)
	}

	if len(result.ByPost["post-1"]) != 1 {
		t.Errorf("コメント数が一致しません: got %d, want 1", len(result.ByPost["post-1"]))
	}
	// バッチ1回 + 新規なしと判明した2ページ目の1回で打ち切り
	if client.commentCalls != 2 {
		t.Errorf("取得回数が一致しません: got %d, want 2", client.commentCalls)
	}
}

func TestCollectCommentsBatchFailureIsolated(t *testing.T) {
	client := newFakeClient()
	client.commentPages["good-1"] = [][]provider.CommentItem{
		{{PostID: "good-1", CommentID: "c1"}},
	}
	client.commentTotals["good-1"] = 1
	client.commentPages["good-2"] = [][]provider.CommentItem{
		{{PostID: "good-2", CommentID: "c2"}},
	}
	client.commentTotals["good-2"] = 1
	client.commentFailPosts["bad"] = true

	opts := testOptions()
	opts.CommentBatchSize = 1 // 1投稿=1バッチにして失敗を分離させる
	c := New(client, opts, metrics.NewCollector(prometheus.NewRegistry()))

	result, err := c.CollectComments(context.Background(), "key", []string{"good-1", "bad", "good-2"})
	if err != nil {
		t.Fatalf("バッチの失敗は全体エラーにすべきではありません: %v", err)
	}

	// 失敗したバッチ以外の結果は失われない
	if len(result.ByPost["good-1"]) != 1 {
		t.Errorf("good-1のコメントが失われています: got %d", len(result.ByPost["good-1"]))
	}
	if len(result.ByPost["good-2"]) != 1 {
		t.Errorf("good-2のコメントが失われています: got %d", len(result.ByPost["good-2"]))
	}
	if len(result.FailedPosts) != 1 {
		t.Fatalf("失敗投稿数が一致しません: got %d, want 1", len(result.FailedPosts))
	}
	if result.FailedPosts["bad"] == "" {
		t.Error("失敗投稿のエラーメッセージが記録されるべきです")
	}
}

func TestCollectCommentsFollowUpStopsAtExpectedPages(t *testing.T) {
	client := newFakeClient()
	// 総数10・ページサイズ2だが、各ページは新規1件しか返さない。
	// 想定ページ数ceil(10/2)=5に余裕2を足した7ページ目で打ち切られ、
	// 絶対上限の20ページまでは進まない。
	pages := make([][]provider.CommentItem, 25)
	for i := range pages {
		pages[i] = []provider.CommentItem{
			{PostID: "post-1", CommentID: fmt.Sprintf("c%d", i+1)},
		}
	}
	client.commentPages["post-1"] = pages
	client.commentTotals["post-1"] = 10

	opts := testOptions()
	opts.ReactionPageSize = 2
	c := New(client, opts, metrics.NewCollector(prometheus.NewRegistry()))

	result, err := c.CollectComments(context.Background(), "key", []string{"post-1"})
	if err != nil {
		t.Fatalf("エラーが発生しました: %v", err)
	}

	// バッチ1回 + 2〜7ページ目の6回
	if client.commentCalls != 7 {
		t.Errorf("取得回数が一致しません: got %d, want 7", client.commentCalls)
	}
	if len(result.ByPost["post-1"]) != 7 {
		t.Errorf("コメント数が一致しません: got %d, want 7", len(result.ByPost["post-1"]))
	}
}

func TestCollectEnrichmentChunks(t *testing.T) {
	client := newFakeClient()

	identifiers := make([]string, 120)
	for i := range identifiers {
		identifiers[i] = fmt.Sprintf("ACoA%06d", i)
	}

	c := newTestCollector(client)
	items, failed := c.CollectEnrichment(context.Background(), "key", identifiers)

	if client.enrichCalls != 3 {
		t.Errorf("チャンク数が一致しません: got %d, want 3", client.enrichCalls)
	}
	if len(items) != 120 {
		t.Errorf("アイテム数が一致しません: got %d, want 120", len(items))
	}
	if failed != 0 {
		t.Errorf("失敗チャンク数が一致しません: got %d, want 0", failed)
	}
}

func TestCollectEnrichmentChunkFailureIsolated(t *testing.T) {
	client := newFakeClient()
	client.enrichFailChunk = 0

	identifiers := make([]string, 100)
	for i := range identifiers {
		identifiers[i] = fmt.Sprintf("ACoA%06d", i)
	}

	opts := testOptions()
	opts.EnrichmentConcurrency = 1 // チャンクの実行順を決定的にする
	c := New(client, opts, metrics.NewCollector(prometheus.NewRegistry()))

	items, failed := c.CollectEnrichment(context.Background(), "key", identifiers)
	if failed != 1 {
		t.Errorf("失敗チャンク数が一致しません: got %d, want 1", failed)
	}
	if len(items) != 50 {
		t.Errorf("部分結果が返るべきです: got %d, want 50", len(items))
	}
}
