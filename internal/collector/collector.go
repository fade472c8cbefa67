// Package collector はプロバイダからのページング取得を編成する。
// リアクションのページ分割取得、コメントの一括バッチ＋追いページング、
// エンリッチメントのチャンク分割を担当し、取得結果を生のまま上位層に渡す。
package collector

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/engagemint/internal/metrics"
	"github.com/hitoshi/engagemint/internal/provider"
)

// ProviderClient はコレクターが必要とするプロバイダ操作のインターフェース。
type ProviderClient interface {
	FetchReactions(ctx context.Context, apiKey string, input provider.ReactionsInput) ([]provider.ReactionItem, error)
	FetchComments(ctx context.Context, apiKey string, input provider.CommentsInput) ([]provider.CommentItem, error)
	FetchEnrichment(ctx context.Context, apiKey string, input provider.EnrichmentInput) ([]provider.EnrichedProfile, error)
}

// Options はコレクターのページング・並行度設定。
type Options struct {
	// ReactionPageSize はリアクション1ページの取得件数。
	ReactionPageSize int
	// MaxReactionPages は1投稿あたりのリアクションページ数の上限。
	MaxReactionPages int
	// ReactionConcurrency は2ページ目以降の並行取得数。
	ReactionConcurrency int
	// CommentBatchSize は一括コメント取得の1バッチあたりの投稿数上限。
	CommentBatchSize int
	// CommentConcurrency はコメント取得の並行数上限。
	CommentConcurrency int
	// CommentMaxPages は1投稿あたりのコメントページ数の上限。
	CommentMaxPages int
	// EnrichmentChunkSize はエンリッチメント1チャンクあたりの識別子数。
	EnrichmentChunkSize int
	// EnrichmentConcurrency はエンリッチメントチャンクの並行取得数。
	EnrichmentConcurrency int
}

// Collector はページング取得の編成を行う。
type Collector struct {
	client  ProviderClient
	opts    Options
	metrics metrics.MetricsCollector
}

// New はCollectorを生成する。
func New(client ProviderClient, opts Options, collector metrics.MetricsCollector) *Collector {
	return &Collector{client: client, opts: opts, metrics: collector}
}

// ReactionsResult はリアクション収集の結果を表す。
type ReactionsResult struct {
	Items []provider.ReactionItem
	// Total はプロバイダが報告した投稿の総リアクション数。不明な場合は0。
	Total int
	// PagesFetched は実際に取得したページ数。
	PagesFetched int
}

// CollectReactions は1投稿のリアクションをページ分割で収集する。
// まず1ページ目を取得し、総数が1ページに収まらない場合のみ
// 2ページ目以降を並行取得する。ページ数は上限でキャップされる。
func (c *Collector) CollectReactions(ctx context.Context, apiKey, postURL string) (*ReactionsResult, error) {
	pageSize := c.opts.ReactionPageSize

	c.metrics.RecordProviderCall(string(provider.ActorPostReactions))
	firstPage, err := c.client.FetchReactions(ctx, apiKey, provider.ReactionsInput{
		PostURL: postURL,
		Page:    1,
		Limit:   pageSize,
	})
	if err != nil {
		return nil, err
	}

	result := &ReactionsResult{Items: firstPage, Total: reportedTotal(firstPage), PagesFetched: 1}
	c.metrics.RecordPagesFetched(1)

	if result.Total <= pageSize || len(firstPage) < pageSize {
		return result, nil
	}

	totalPages := (result.Total + pageSize - 1) / pageSize
	if totalPages > c.opts.MaxReactionPages {
		slog.Warn("リアクションページ数が上限を超えるため打ち切ります",
			"postURL", postURL, "total", result.Total, "cap", c.opts.MaxReactionPages)
		totalPages = c.opts.MaxReactionPages
	}

	pages := make([][]provider.ReactionItem, totalPages+1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.ReactionConcurrency)

	for page := 2; page <= totalPages; page++ {
		g.Go(func() error {
			c.metrics.RecordProviderCall(string(provider.ActorPostReactions))
			items, err := c.client.FetchReactions(gctx, apiKey, provider.ReactionsInput{
				PostURL: postURL,
				Page:    page,
				Limit:   pageSize,
			})
			if err != nil {
				return err
			}
			pages[page] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for page := 2; page <= totalPages; page++ {
		result.Items = append(result.Items, pages[page]...)
		result.PagesFetched++
	}
	c.metrics.RecordPagesFetched(result.PagesFetched - 1)

	return result, nil
}

// followUpSafetyMargin は追いページングで想定ページ数に上乗せする余裕。
// プロバイダの報告総数とページ内容のずれを吸収する。
const followUpSafetyMargin = 2

// CommentsResult はコメント収集の結果を表す。
type CommentsResult struct {
	// ByPost は投稿IDごとの収集済みコメント。
	ByPost map[string][]provider.CommentItem
	// Totals は投稿IDごとのプロバイダ報告総コメント数。
	Totals map[string]int
	// FailedPosts は取得に失敗した投稿IDごとのエラーメッセージ。
	// 失敗した投稿は空（または部分的な）結果として扱われ、
	// 他の投稿の収集は継続する。
	FailedPosts map[string]string
	// PagesFetched は実際に取得したページ数（バッチ呼び出しを含む）。
	PagesFetched int
}

// CollectComments は複数投稿のコメントを収集する。
// まず投稿IDをバッチに分割して1ページ目を一括取得し、
// 総数が1ページに収まらなかった投稿だけを2ページ目以降で追いページングする。
// 1バッチの失敗は対象投稿のFailedPostsへの記録に留め、他バッチを止めない。
func (c *Collector) CollectComments(ctx context.Context, apiKey string, postIDs []string) (*CommentsResult, error) {
	result := &CommentsResult{
		ByPost:      make(map[string][]provider.CommentItem),
		Totals:      make(map[string]int),
		FailedPosts: make(map[string]string),
	}
	if len(postIDs) == 0 {
		return result, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.CommentConcurrency)

	for _, batch := range chunkStrings(postIDs, c.opts.CommentBatchSize) {
		g.Go(func() error {
			c.metrics.RecordProviderCall(string(provider.ActorPostComments))
			items, err := c.client.FetchComments(gctx, apiKey, provider.CommentsInput{
				PostIDs: batch,
				Page:    1,
				Limit:   c.opts.ReactionPageSize,
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				for _, postID := range batch {
					result.FailedPosts[postID] = err.Error()
				}
				slog.Warn("コメントバッチの取得に失敗しました",
					"posts", len(batch), "error", err)
				return nil
			}
			result.PagesFetched++
			for _, item := range items {
				result.ByPost[item.PostID] = append(result.ByPost[item.PostID], item)
				if item.TotalComments > result.Totals[item.PostID] {
					result.Totals[item.PostID] = item.TotalComments
				}
			}
			return nil
		})
	}
	g.Wait()
	c.metrics.RecordPagesFetched(result.PagesFetched)

	c.followUpComments(ctx, apiKey, result)
	return result, nil
}

// followUpComments は1ページ目で取り切れなかった投稿を個別に追いページングする。
// 各投稿について、空ページ・総数到達・新規コメントなし・想定ページ数＋余裕・
// 絶対ページ上限のいずれかに達した時点で打ち切る。
// 1投稿の取得失敗はFailedPostsに記録し、他の投稿の追いページングは継続する。
func (c *Collector) followUpComments(ctx context.Context, apiKey string, result *CommentsResult) {
	var pending []string
	for postID, total := range result.Totals {
		if total > len(result.ByPost[postID]) {
			pending = append(pending, postID)
		}
	}
	if len(pending) == 0 {
		return
	}

	pageSize := c.opts.ReactionPageSize

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.CommentConcurrency)

	for _, postID := range pending {
		g.Go(func() error {
			mu.Lock()
			seen := make(map[string]bool)
			for _, item := range result.ByPost[postID] {
				seen[item.CommentID] = true
			}
			total := result.Totals[postID]
			mu.Unlock()

			// 総数から算出した想定ページ数に余裕を足し、絶対上限でキャップする
			expectedPages := 1
			if pageSize > 0 {
				expectedPages = (total + pageSize - 1) / pageSize
			}
			lastPage := expectedPages + followUpSafetyMargin
			if lastPage > c.opts.CommentMaxPages {
				lastPage = c.opts.CommentMaxPages
			}

			for page := 2; page <= lastPage; page++ {
				if len(seen) >= total {
					break
				}

				c.metrics.RecordProviderCall(string(provider.ActorPostComments))
				items, err := c.client.FetchComments(gctx, apiKey, provider.CommentsInput{
					PostIDs: []string{postID},
					Page:    page,
					Limit:   pageSize,
				})
				if err != nil {
					mu.Lock()
					result.FailedPosts[postID] = err.Error()
					mu.Unlock()
					slog.Warn("コメントの追いページングに失敗しました",
						"postID", postID, "page", page, "error", err)
					break
				}
				if len(items) == 0 {
					break
				}

				fresh := 0
				mu.Lock()
				result.PagesFetched++
				for _, item := range items {
					if seen[item.CommentID] {
						continue
					}
					seen[item.CommentID] = true
					fresh++
					result.ByPost[postID] = append(result.ByPost[postID], item)
				}
				mu.Unlock()
				c.metrics.RecordPagesFetched(1)

				// 既知のコメントしか返らなくなったらそれ以上進まない
				if fresh == 0 {
					break
				}
			}
			return nil
		})
	}
	g.Wait()
}

// CollectEnrichment は識別子をチャンクに分割し、並行でエンリッチメントを収集する。
// チャンク単位で失敗を分離し、失敗したチャンクはスキップして残りを返す。
func (c *Collector) CollectEnrichment(ctx context.Context, apiKey string, identifiers []string) ([]provider.EnrichedProfile, int) {
	if len(identifiers) == 0 {
		return nil, 0
	}

	var mu sync.Mutex
	var collected []provider.EnrichedProfile
	failedChunks := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.EnrichmentConcurrency)

	for _, chunk := range chunkStrings(identifiers, c.opts.EnrichmentChunkSize) {
		g.Go(func() error {
			c.metrics.RecordProviderCall(string(provider.ActorProfileEnrichment))
			items, err := c.client.FetchEnrichment(gctx, apiKey, provider.EnrichmentInput{
				Identifiers: chunk,
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failedChunks++
				slog.Warn("エンリッチメントチャンクの取得に失敗しました",
					"chunkSize", len(chunk), "error", err)
				return nil
			}
			collected = append(collected, items...)
			return nil
		})
	}
	g.Wait()

	return collected, failedChunks
}

// reportedTotal はページ内アイテムから総リアクション数を読み取る。
func reportedTotal(items []provider.ReactionItem) int {
	total := 0
	for _, item := range items {
		if item.TotalReactions > total {
			total = item.TotalReactions
		}
	}
	return total
}

// chunkStrings はスライスをsize件ごとのチャンクに分割する。
func chunkStrings(values []string, size int) [][]string {
	if size <= 0 {
		return [][]string{values}
	}
	var chunks [][]string
	for start := 0; start < len(values); start += size {
		end := start + size
		if end > len(values) {
			end = len(values)
		}
		chunks = append(chunks, values[start:end])
	}
	return chunks
}
