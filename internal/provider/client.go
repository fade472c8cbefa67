package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/hitoshi/engagemint/internal/model"
)

// Client はスクレイピングプロバイダの非同期ジョブAPIクライアント。
// この層ではリトライを行わない。失敗は*model.ProviderErrorとして
// 呼び出し元に返し、ターゲット単位のエラー分離は上位層が担う。
type Client struct {
	http         *resty.Client
	pollInterval time.Duration
	jobTimeout   time.Duration
}

// NewClient はClientを生成する。
func NewClient(baseURL string, pollInterval, jobTimeout time.Duration) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:         httpClient,
		pollInterval: pollInterval,
		jobTimeout:   jobTimeout,
	}
}

// FetchReactions はpost-reactionsアクターを実行し、1ページ分のリアクションを返す。
func (c *Client) FetchReactions(ctx context.Context, apiKey string, input ReactionsInput) ([]ReactionItem, error) {
	if input.PostURL == "" {
		return nil, &model.ProviderError{Actor: string(ActorPostReactions), Stage: "submit", Reason: "投稿URLが空です"}
	}

	var items []ReactionItem
	if err := c.run(ctx, apiKey, ActorPostReactions, input, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// FetchPostDetails はpost-detailアクターを実行し、投稿メタデータを返す。
func (c *Client) FetchPostDetails(ctx context.Context, apiKey string, input PostDetailInput) ([]PostDetailItem, error) {
	if len(input.PostURLs) == 0 {
		return nil, &model.ProviderError{Actor: string(ActorPostDetail), Stage: "submit", Reason: "投稿URLが指定されていません"}
	}

	var items []PostDetailItem
	if err := c.run(ctx, apiKey, ActorPostDetail, input, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// FetchComments はpost-commentsアクターを実行し、バッチ内の全投稿の
// 1ページ分のコメントを返す。
func (c *Client) FetchComments(ctx context.Context, apiKey string, input CommentsInput) ([]CommentItem, error) {
	if len(input.PostIDs) == 0 {
		return nil, &model.ProviderError{Actor: string(ActorPostComments), Stage: "submit", Reason: "投稿IDが指定されていません"}
	}

	var items []CommentItem
	if err := c.run(ctx, apiKey, ActorPostComments, input, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// FetchProfilePosts はprofile-postsアクターを実行し、プロフィールの投稿一覧を返す。
func (c *Client) FetchProfilePosts(ctx context.Context, apiKey string, input ProfilePostsInput) ([]PostDetailItem, error) {
	if input.ProfileURL == "" {
		return nil, &model.ProviderError{Actor: string(ActorProfilePosts), Stage: "submit", Reason: "プロフィールURLが空です"}
	}

	var items []PostDetailItem
	if err := c.run(ctx, apiKey, ActorProfilePosts, input, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// FetchEnrichment はprofile-enrichmentアクターを実行し、
// 識別子ごとのエンリッチメントデータを返す。
func (c *Client) FetchEnrichment(ctx context.Context, apiKey string, input EnrichmentInput) ([]EnrichedProfile, error) {
	if len(input.Identifiers) == 0 {
		return nil, &model.ProviderError{Actor: string(ActorProfileEnrichment), Stage: "submit", Reason: "識別子が指定されていません"}
	}

	var items []EnrichedProfile
	if err := c.run(ctx, apiKey, ActorProfileEnrichment, input, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// run はジョブ投入→ポーリング→データセット取得を1セットで実行し、
// 結果をoutにデコードする。
func (c *Client) run(ctx context.Context, apiKey string, actor Actor, input any, out any) error {
	runID, err := c.submit(ctx, apiKey, actor, input)
	if err != nil {
		return err
	}

	datasetID, err := c.poll(ctx, apiKey, actor, runID)
	if err != nil {
		return err
	}

	return c.fetchDataset(ctx, apiKey, actor, datasetID, out)
}

// submit はアクターのジョブを投入し、ランIDを返す。
func (c *Client) submit(ctx context.Context, apiKey string, actor Actor, input any) (string, error) {
	var submitted submitResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(apiKey).
		SetBody(input).
		SetResult(&submitted).
		Post(fmt.Sprintf("/actors/%s/runs", actor))
	if err != nil {
		return "", &model.ProviderError{
			Actor: string(actor), Stage: "submit",
			Reason: "ジョブの投入リクエストに失敗しました", Err: err,
		}
	}
	if resp.IsError() {
		return "", &model.ProviderError{
			Actor: string(actor), Stage: "submit",
			Reason: fmt.Sprintf("ジョブの投入が拒否されました (status=%d)", resp.StatusCode()),
		}
	}
	if submitted.RunID == "" {
		return "", &model.ProviderError{
			Actor: string(actor), Stage: "submit",
			Reason: "プロバイダがランIDを返しませんでした",
		}
	}

	slog.Debug("プロバイダジョブを投入しました", "actor", actor, "runID", submitted.RunID)
	return submitted.RunID, nil
}

// poll はランが終端状態になるまでステータスを問い合わせ、
// 成功時はデータセットIDを返す。ジョブタイムアウトで打ち切る。
func (c *Client) poll(ctx context.Context, apiKey string, actor Actor, runID string) (string, error) {
	deadline := time.Now().Add(c.jobTimeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var status runStatusResponse

		resp, err := c.http.R().
			SetContext(ctx).
			SetAuthToken(apiKey).
			SetResult(&status).
			Get(fmt.Sprintf("/runs/%s", runID))
		if err != nil {
			return "", &model.ProviderError{
				Actor: string(actor), Stage: "poll",
				Reason: "ランステータスの取得に失敗しました", Err: err,
			}
		}
		if resp.IsError() {
			return "", &model.ProviderError{
				Actor: string(actor), Stage: "poll",
				Reason: fmt.Sprintf("ランステータスの取得が拒否されました (status=%d)", resp.StatusCode()),
			}
		}

		switch RunStatus(status.Status) {
		case RunStatusSucceeded:
			if status.DatasetID == "" {
				return "", &model.ProviderError{
					Actor: string(actor), Stage: "poll",
					Reason: "成功したランにデータセットIDがありません",
				}
			}
			return status.DatasetID, nil
		case RunStatusFailed:
			reason := status.Error
			if reason == "" {
				reason = "リモートジョブが失敗しました"
			}
			return "", &model.ProviderError{Actor: string(actor), Stage: "poll", Reason: reason}
		}

		if time.Now().After(deadline) {
			return "", &model.ProviderError{
				Actor: string(actor), Stage: "poll",
				Reason: fmt.Sprintf("ジョブが%v以内に完了しませんでした", c.jobTimeout),
			}
		}

		select {
		case <-ctx.Done():
			return "", &model.ProviderError{
				Actor: string(actor), Stage: "poll",
				Reason: "ポーリングがキャンセルされました", Err: ctx.Err(),
			}
		case <-ticker.C:
		}
	}
}

// fetchDataset は完了したランのデータセットを取得し、outにデコードする。
func (c *Client) fetchDataset(ctx context.Context, apiKey string, actor Actor, datasetID string, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(apiKey).
		Get(fmt.Sprintf("/datasets/%s/items", datasetID))
	if err != nil {
		return &model.ProviderError{
			Actor: string(actor), Stage: "fetch",
			Reason: "データセットの取得に失敗しました", Err: err,
		}
	}
	if resp.IsError() {
		return &model.ProviderError{
			Actor: string(actor), Stage: "fetch",
			Reason: fmt.Sprintf("データセットの取得が拒否されました (status=%d)", resp.StatusCode()),
		}
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return &model.ProviderError{
			Actor: string(actor), Stage: "fetch",
			Reason: "データセットのデコードに失敗しました", Err: err,
		}
	}
	return nil
}
