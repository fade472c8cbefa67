// Package scrape はスクレイピングのオーケストレーションを提供する。
// 各操作はジョブIDを即時に返し、実体は背後で非同期に実行される。
// 進捗は進捗ストア経由でポーリングAPIから参照できる。
package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/engagemint/internal/collector"
	"github.com/hitoshi/engagemint/internal/engagement"
	"github.com/hitoshi/engagemint/internal/metrics"
	"github.com/hitoshi/engagemint/internal/model"
	"github.com/hitoshi/engagemint/internal/progress"
	"github.com/hitoshi/engagemint/internal/provider"
	"github.com/hitoshi/engagemint/internal/repository"
	"github.com/hitoshi/engagemint/internal/resolver"
	"github.com/hitoshi/engagemint/internal/security"
)

// EngagementCollector はスクレイプサービスが利用するページング収集のインターフェース。
type EngagementCollector interface {
	CollectReactions(ctx context.Context, apiKey, postURL string) (*collector.ReactionsResult, error)
	CollectComments(ctx context.Context, apiKey string, postIDs []string) (*collector.CommentsResult, error)
	CollectEnrichment(ctx context.Context, apiKey string, identifiers []string) ([]provider.EnrichedProfile, int)
}

// PostFetcher は投稿メタデータ取得のインターフェース。
type PostFetcher interface {
	FetchPostDetails(ctx context.Context, apiKey string, input provider.PostDetailInput) ([]provider.PostDetailItem, error)
	FetchProfilePosts(ctx context.Context, apiKey string, input provider.ProfilePostsInput) ([]provider.PostDetailItem, error)
}

// ProfileResolver はエンゲージャーのアイデンティティ解決のインターフェース。
type ProfileResolver interface {
	Resolve(ctx context.Context, userID string, engagers []model.RawEngager) (*resolver.Result, error)
}

// ProfilePusher は新規プロフィールのWebhook送信のインターフェース。
type ProfilePusher interface {
	PushProfiles(ctx context.Context, userID string, profileIDs []string) error
}

// Deps はServiceの依存関係をまとめる。
type Deps struct {
	Settings   repository.SettingsRepository
	Posts      repository.PostRepository
	Profiles   repository.ProfileRepository
	Reactions  repository.ReactionRepository
	Comments   repository.CommentRepository
	Jobs       repository.ScrapeJobRepository
	Tracker    *progress.Tracker
	Collector  EngagementCollector
	Fetcher    PostFetcher
	Resolver   ProfileResolver
	Engagement *engagement.Service
	Sanitizer  security.TextSanitizerService
	Pusher     ProfilePusher
	Metrics    metrics.MetricsCollector

	// ReactionPageSize はリアクションのページ番号算出に使用される。
	ReactionPageSize int
}

// Service はスクレイプ操作のオーケストレーター。
type Service struct {
	deps Deps

	// runAsync は背景実行の起動方法。テストでは同期実行に差し替えられる。
	runAsync func(fn func())
}

// NewService はServiceを生成する。
func NewService(deps Deps) *Service {
	return &Service{
		deps:     deps,
		runAsync: func(fn func()) { go fn() },
	}
}

// TargetError はバッチ内の1ターゲットの失敗を表す。
type TargetError struct {
	Target  string `json:"target"`
	Message string `json:"message"`
}

// BatchResult はバッチ操作の結果ペイロード。
type BatchResult struct {
	Processed   int           `json:"processed"`
	Failed      int           `json:"failed"`
	NewProfiles int           `json:"new_profiles"`
	SavedItems  int           `json:"saved_items"`
	Errors      []TargetError `json:"errors,omitempty"`
	Message     string        `json:"message,omitempty"`
}

// ScrapePostReactions は投稿URL群のリアクションスクレイプを開始し、ジョブIDを返す。
// 1ターゲットの失敗は他のターゲットの処理を止めない。
func (s *Service) ScrapePostReactions(ctx context.Context, userID string, postURLs []string) (string, error) {
	if len(postURLs) == 0 {
		return "", model.NewInvalidURLError("投稿URLが指定されていません")
	}
	for _, postURL := range postURLs {
		if err := validateLinkedInURL(postURL); err != nil {
			return "", err
		}
	}

	apiKey, err := s.apiKey(ctx, userID)
	if err != nil {
		return "", err
	}

	job, auditID, err := s.begin(ctx, userID, model.ScrapeJobTypeReactions, postURLs, len(postURLs))
	if err != nil {
		return "", err
	}

	s.runAsync(func() {
		s.runReactions(context.Background(), job, auditID, userID, apiKey, postURLs)
	})
	return job.JobID(), nil
}

// ScrapePostComments は保存済み投稿群のコメントスクレイプを開始し、ジョブIDを返す。
func (s *Service) ScrapePostComments(ctx context.Context, userID string, postRowIDs []string) (string, error) {
	if len(postRowIDs) == 0 {
		return "", model.NewInvalidURLError("投稿が指定されていません")
	}

	posts, err := s.deps.Posts.ListByUserAndIDs(ctx, userID, postRowIDs)
	if err != nil {
		return "", err
	}
	if len(posts) == 0 {
		return "", model.NewPostNotFoundError(strings.Join(postRowIDs, ", "))
	}

	apiKey, err := s.apiKey(ctx, userID)
	if err != nil {
		return "", err
	}

	job, auditID, err := s.begin(ctx, userID, model.ScrapeJobTypeComments, postRowIDs, len(posts))
	if err != nil {
		return "", err
	}

	s.runAsync(func() {
		s.runComments(context.Background(), job, auditID, userID, apiKey, posts)
	})
	return job.JobID(), nil
}

// ScrapeProfilePosts はプロフィールの投稿一覧スクレイプを開始し、ジョブIDを返す。
func (s *Service) ScrapeProfilePosts(ctx context.Context, userID, profileURL string, limit int) (string, error) {
	if err := validateLinkedInURL(profileURL); err != nil {
		return "", err
	}

	apiKey, err := s.apiKey(ctx, userID)
	if err != nil {
		return "", err
	}

	job, auditID, err := s.begin(ctx, userID, model.ScrapeJobTypeProfilePosts, []string{profileURL}, 1)
	if err != nil {
		return "", err
	}

	s.runAsync(func() {
		s.runProfilePosts(context.Background(), job, auditID, userID, apiKey, profileURL, limit)
	})
	return job.JobID(), nil
}

// RefreshEngagement はユーザーの投稿群のエンゲージメントカウンターを再取得し、
// 変化のあった投稿にフラグを立てるジョブを開始する。
// postRowIDsが空の場合はユーザーの全投稿が対象になる。
func (s *Service) RefreshEngagement(ctx context.Context, userID string, postRowIDs []string) (string, error) {
	var posts []*model.Post
	var err error
	if len(postRowIDs) == 0 {
		posts, err = s.deps.Posts.ListByUser(ctx, userID)
	} else {
		posts, err = s.deps.Posts.ListByUserAndIDs(ctx, userID, postRowIDs)
	}
	if err != nil {
		return "", err
	}
	if len(posts) == 0 {
		return "", model.NewPostNotFoundError("対象の投稿がありません")
	}

	apiKey, err := s.apiKey(ctx, userID)
	if err != nil {
		return "", err
	}

	job, auditID, err := s.begin(ctx, userID, model.ScrapeJobTypeEngagement, postRowIDs, len(posts))
	if err != nil {
		return "", err
	}

	s.runAsync(func() {
		s.runRefreshEngagement(context.Background(), job, auditID, userID, apiKey, posts)
	})
	return job.JobID(), nil
}

// RegisterPost は投稿URLを検証し、投稿行として登録する。
// メタデータの取得は行わず、後続のリアクションスクレイプで補完される。
// 同じURLの再登録は既存行をそのまま返す。
func (s *Service) RegisterPost(ctx context.Context, userID, postURL string) (*model.Post, error) {
	if err := validateLinkedInURL(postURL); err != nil {
		return nil, err
	}
	postID := postIDFromURL(postURL)
	if postID == "" {
		return nil, model.NewInvalidURLError("URLから投稿IDを特定できませんでした")
	}

	existing, err := s.deps.Posts.FindByUserAndPostID(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	post := &model.Post{
		ID:     uuid.NewString(),
		UserID: userID,
		PostID: postID,
		URL:    postURL,
	}
	rowID, err := s.deps.Posts.Upsert(ctx, post)
	if err != nil {
		return nil, err
	}
	post.ID = rowID

	slog.Info("投稿を登録しました", "userID", userID, "postID", postID)
	return post, nil
}

// EnrichProfiles は指定プロフィール群のエンリッチメントジョブを開始する。
func (s *Service) EnrichProfiles(ctx context.Context, userID string, profileIDs []string) (string, error) {
	if len(profileIDs) == 0 {
		return "", model.NewInvalidURLError("プロフィールが指定されていません")
	}

	apiKey, err := s.apiKey(ctx, userID)
	if err != nil {
		return "", err
	}

	job, auditID, err := s.begin(ctx, userID, model.ScrapeJobTypeEnrichment, nil, len(profileIDs))
	if err != nil {
		return "", err
	}

	s.runAsync(func() {
		s.runEnrichment(context.Background(), job, auditID, userID, apiKey, profileIDs)
	})
	return job.JobID(), nil
}

// apiKey はユーザー設定からプロバイダAPIキーを取得する。
func (s *Service) apiKey(ctx context.Context, userID string) (string, error) {
	settings, err := s.deps.Settings.FindByUserID(ctx, userID)
	if err != nil {
		return "", err
	}
	if settings == nil || settings.ProviderAPIKey == "" {
		return "", model.NewMissingAPIKeyError()
	}
	return settings.ProviderAPIKey, nil
}

// begin は進捗レコードと監査レコードを作成する。
func (s *Service) begin(ctx context.Context, userID string, jobType model.ScrapeJobType, targets []string, total int) (*progress.Job, string, error) {
	jobID := uuid.NewString()

	job, err := s.deps.Tracker.Start(ctx, jobID, userID, total)
	if err != nil {
		return nil, "", err
	}

	audit := &model.ScrapeJob{
		ID:        uuid.NewString(),
		UserID:    userID,
		JobType:   jobType,
		Status:    model.ScrapeJobStatusRunning,
		PostIDs:   targets,
		StartedAt: time.Now(),
	}
	if err := s.deps.Jobs.Create(ctx, audit); err != nil {
		return nil, "", err
	}

	return job, audit.ID, nil
}

// finish は監査レコードを閉じ、メトリクスを記録する。
func (s *Service) finish(ctx context.Context, auditID string, jobType model.ScrapeJobType, result *BatchResult) {
	status := model.ScrapeJobStatusCompleted
	var errorText string
	if result.Processed == 0 && result.Failed > 0 {
		status = model.ScrapeJobStatusFailed
	}
	if len(result.Errors) > 0 {
		parts := make([]string, len(result.Errors))
		for i, e := range result.Errors {
			parts[i] = fmt.Sprintf("%s: %s", e.Target, e.Message)
		}
		errorText = strings.Join(parts, "; ")
	}

	if err := s.deps.Jobs.Finish(ctx, auditID, status, result.SavedItems, errorText); err != nil {
		slog.Warn("監査レコードの更新に失敗しました", "auditID", auditID, "error", err)
	}

	if status == model.ScrapeJobStatusCompleted {
		s.deps.Metrics.RecordScrapeSuccess(string(jobType))
	} else {
		s.deps.Metrics.RecordScrapeFailure(string(jobType))
	}
}

// runReactions はリアクションスクレイプ本体。投稿ごとに
// 取得→解決→delete-and-reinsertを行い、最後に新規プロフィールの
// エンリッチメントとWebhook送信を行う。
func (s *Service) runReactions(ctx context.Context, job *progress.Job, auditID, userID, apiKey string, postURLs []string) {
	result := &BatchResult{}
	var newProfileIDs []string

	job.Update(ctx, model.ProgressStatusScraping, 5, "リアクションを取得しています")

	for i, postURL := range postURLs {
		saved, created, err := s.scrapeOnePostReactions(ctx, userID, apiKey, postURL)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, TargetError{Target: postURL, Message: err.Error()})
			slog.Error("投稿のリアクションスクレイプに失敗しました", "postURL", postURL, "error", err)
		} else {
			result.Processed++
			result.SavedItems += saved
			newProfileIDs = append(newProfileIDs, created...)
		}
		job.Advance(ctx, i+1, 10, 70, fmt.Sprintf("投稿を処理しています (%d/%d)", i+1, len(postURLs)))
	}
	result.NewProfiles = len(newProfileIDs)

	if len(newProfileIDs) > 0 {
		job.Update(ctx, model.ProgressStatusProcessing, 75, "新規プロフィールをエンリッチしています")
		s.enrichByIDs(ctx, userID, apiKey, newProfileIDs)

		job.Update(ctx, model.ProgressStatusSaving, 90, "Webhookに送信しています")
		if s.deps.Pusher != nil {
			if err := s.deps.Pusher.PushProfiles(ctx, userID, newProfileIDs); err != nil {
				slog.Warn("Webhook送信に失敗しました", "userID", userID, "error", err)
			}
		}
	}

	job.Complete(ctx, result)
	s.finish(ctx, auditID, model.ScrapeJobTypeReactions, result)
}

// scrapeOnePostReactions は1投稿のリアクションを取得し、
// 投稿行のUPSERT、プロフィール解決、リアクションの全削除・再挿入を行う。
// 戻り値は保存したリアクション数と新規作成されたプロフィールID。
func (s *Service) scrapeOnePostReactions(ctx context.Context, userID, apiKey, postURL string) (int, []string, error) {
	details, err := s.deps.Fetcher.FetchPostDetails(ctx, apiKey, provider.PostDetailInput{PostURLs: []string{postURL}})
	if err != nil {
		return 0, nil, err
	}
	if len(details) == 0 {
		return 0, nil, fmt.Errorf("投稿情報を取得できませんでした: %s", postURL)
	}

	postRowID, err := s.upsertPost(ctx, userID, details[0])
	if err != nil {
		return 0, nil, err
	}

	collected, err := s.deps.Collector.CollectReactions(ctx, apiKey, postURL)
	if err != nil {
		return 0, nil, err
	}

	engagers := make([]model.RawEngager, len(collected.Items))
	for i, item := range collected.Items {
		engagers[i] = model.RawEngager{
			ProfileURL:      item.ReactorProfileURL,
			URN:             item.ReactorURN,
			Name:            s.deps.Sanitizer.Sanitize(item.Name),
			FirstName:       s.deps.Sanitizer.Sanitize(item.FirstName),
			LastName:        s.deps.Sanitizer.Sanitize(item.LastName),
			Headline:        s.deps.Sanitizer.Sanitize(item.Headline),
			PictureURL:      item.PictureURL,
			PictureURLLarge: item.PictureURLLarge,
		}
	}

	resolved, err := s.deps.Resolver.Resolve(ctx, userID, engagers)
	if err != nil {
		return 0, nil, err
	}
	s.deps.Metrics.RecordProfilesCreated(len(resolved.NewIDs))
	s.deps.Metrics.RecordProfilesUpdated(len(resolved.AllIDs) - len(resolved.NewIDs))

	// フル再スクレイプ: 既存リアクションを消してから今回の取得分を入れ直す
	if err := s.deps.Reactions.DeleteByPost(ctx, postRowID); err != nil {
		return 0, nil, err
	}

	now := time.Now()
	saved := 0
	for i, item := range collected.Items {
		profileID := resolved.ProfileIDFor(engagers[i])
		if profileID == "" {
			continue
		}
		reaction := &model.Reaction{
			ID:               uuid.NewString(),
			PostID:           postRowID,
			ReactorProfileID: profileID,
			ReactionType:     strings.ToLower(item.ReactionType),
			ScrapedAt:        now,
			PageNumber:       pageOf(i, s.deps.ReactionPageSize),
		}
		if err := s.deps.Reactions.Upsert(ctx, reaction); err != nil {
			return saved, resolved.NewIDs, err
		}
		saved++
	}

	if err := s.deps.Posts.StampReactionsScrape(ctx, postRowID, now); err != nil {
		return saved, resolved.NewIDs, err
	}
	// 再スクレイプ済みの投稿は変化フラグを無条件でリセットする
	if err := s.deps.Engagement.Clear(ctx, []string{postRowID}); err != nil {
		return saved, resolved.NewIDs, err
	}

	return saved, resolved.NewIDs, nil
}

// runComments はコメントスクレイプ本体。
func (s *Service) runComments(ctx context.Context, job *progress.Job, auditID, userID, apiKey string, posts []*model.Post) {
	result := &BatchResult{}

	job.Update(ctx, model.ProgressStatusScraping, 10, "コメントを取得しています")

	rowIDByPostID := make(map[string]string, len(posts))
	linkedinIDs := make([]string, len(posts))
	for i, post := range posts {
		rowIDByPostID[post.PostID] = post.ID
		linkedinIDs[i] = post.PostID
	}

	collected, err := s.deps.Collector.CollectComments(ctx, apiKey, linkedinIDs)
	if err != nil {
		result.Failed = len(posts)
		result.Errors = append(result.Errors, TargetError{Target: "batch", Message: err.Error()})
		job.Fail(ctx, err)
		s.finish(ctx, auditID, model.ScrapeJobTypeComments, result)
		return
	}

	job.Update(ctx, model.ProgressStatusProcessing, 50, "コメント投稿者を解決しています")

	// 取得に失敗した投稿は空結果として扱い、エラー一覧に記録する
	for linkedinID, message := range collected.FailedPosts {
		result.Failed++
		result.Errors = append(result.Errors, TargetError{Target: linkedinID, Message: message})
		slog.Warn("コメントを取得できなかった投稿があります", "postID", linkedinID, "error", message)
	}

	processed := 0
	var newProfileIDs []string
	for linkedinID, items := range collected.ByPost {
		rowID, ok := rowIDByPostID[linkedinID]
		if !ok {
			continue
		}

		saved, created, err := s.saveComments(ctx, userID, rowID, items)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, TargetError{Target: linkedinID, Message: err.Error()})
			slog.Error("コメントの保存に失敗しました", "postID", linkedinID, "error", err)
		} else {
			result.Processed++
			result.SavedItems += saved
			newProfileIDs = append(newProfileIDs, created...)
		}
		processed++
		job.Advance(ctx, processed, 50, 90, "コメントを保存しています")
	}
	result.NewProfiles = len(newProfileIDs)

	if len(newProfileIDs) > 0 {
		job.Update(ctx, model.ProgressStatusSaving, 92, "新規プロフィールをエンリッチしています")
		s.enrichByIDs(ctx, userID, apiKey, newProfileIDs)
		if s.deps.Pusher != nil {
			if err := s.deps.Pusher.PushProfiles(ctx, userID, newProfileIDs); err != nil {
				slog.Warn("Webhook送信に失敗しました", "userID", userID, "error", err)
			}
		}
	}

	job.Complete(ctx, result)
	s.finish(ctx, auditID, model.ScrapeJobTypeComments, result)
}

// saveComments は1投稿分のコメントを解決して保存する。
func (s *Service) saveComments(ctx context.Context, userID, postRowID string, items []provider.CommentItem) (int, []string, error) {
	engagers := make([]model.RawEngager, len(items))
	for i, item := range items {
		engagers[i] = model.RawEngager{
			ProfileURL: item.CommenterProfileURL,
			URN:        item.CommenterURN,
			Name:       s.deps.Sanitizer.Sanitize(item.Name),
			FirstName:  s.deps.Sanitizer.Sanitize(item.FirstName),
			LastName:   s.deps.Sanitizer.Sanitize(item.LastName),
			Headline:   s.deps.Sanitizer.Sanitize(item.Headline),
			PictureURL: item.PictureURL,
		}
	}

	resolved, err := s.deps.Resolver.Resolve(ctx, userID, engagers)
	if err != nil {
		return 0, nil, err
	}
	s.deps.Metrics.RecordProfilesCreated(len(resolved.NewIDs))

	now := time.Now()
	saved := 0
	for i, item := range items {
		profileID := resolved.ProfileIDFor(engagers[i])
		if profileID == "" {
			continue
		}
		comment := &model.Comment{
			ID:                 uuid.NewString(),
			PostID:             postRowID,
			CommenterProfileID: profileID,
			CommentID:          item.CommentID,
			Text:               s.deps.Sanitizer.Sanitize(item.Text),
			PostedAt:           item.PostedAt,
			ScrapedAt:          now,
			PageNumber:         pageOf(i, s.deps.ReactionPageSize),
		}
		if err := s.deps.Comments.Upsert(ctx, comment); err != nil {
			return saved, resolved.NewIDs, err
		}
		saved++
	}
	return saved, resolved.NewIDs, nil
}

// runProfilePosts はプロフィール投稿スクレイプ本体。
// 投稿が1件も見つからない場合もエラーではなく情報付きの完了として扱う。
func (s *Service) runProfilePosts(ctx context.Context, job *progress.Job, auditID, userID, apiKey, profileURL string, limit int) {
	result := &BatchResult{}

	job.Update(ctx, model.ProgressStatusScraping, 20, "プロフィールの投稿を取得しています")

	items, err := s.deps.Fetcher.FetchProfilePosts(ctx, apiKey, provider.ProfilePostsInput{
		ProfileURL: profileURL,
		Limit:      limit,
	})
	if err != nil {
		result.Failed = 1
		result.Errors = append(result.Errors, TargetError{Target: profileURL, Message: err.Error()})
		job.Fail(ctx, err)
		s.finish(ctx, auditID, model.ScrapeJobTypeProfilePosts, result)
		return
	}

	if len(items) == 0 {
		result.Processed = 1
		result.Message = "このプロフィールには公開投稿がありません"
		job.Complete(ctx, result)
		s.finish(ctx, auditID, model.ScrapeJobTypeProfilePosts, result)
		return
	}

	job.Update(ctx, model.ProgressStatusSaving, 60, "投稿を保存しています")

	for _, item := range items {
		if _, err := s.upsertPost(ctx, userID, item); err != nil {
			result.Errors = append(result.Errors, TargetError{Target: item.PostID, Message: err.Error()})
			slog.Error("投稿の保存に失敗しました", "postID", item.PostID, "error", err)
			continue
		}
		result.SavedItems++
	}
	result.Processed = 1

	job.Complete(ctx, result)
	s.finish(ctx, auditID, model.ScrapeJobTypeProfilePosts, result)
}

// runRefreshEngagement はエンゲージメント差分検出本体。
// 投稿のカウンターを再取得し、保存値と比較して変化した投稿にフラグを立てる。
func (s *Service) runRefreshEngagement(ctx context.Context, job *progress.Job, auditID, userID, apiKey string, posts []*model.Post) {
	result := &BatchResult{}

	job.Update(ctx, model.ProgressStatusScraping, 10, "投稿のカウンターを再取得しています")

	urls := make([]string, len(posts))
	byPostID := make(map[string]*model.Post, len(posts))
	for i, post := range posts {
		urls[i] = post.URL
		byPostID[post.PostID] = post
	}

	details, err := s.deps.Fetcher.FetchPostDetails(ctx, apiKey, provider.PostDetailInput{PostURLs: urls})
	if err != nil {
		result.Failed = len(posts)
		result.Errors = append(result.Errors, TargetError{Target: "batch", Message: err.Error()})
		job.Fail(ctx, err)
		s.finish(ctx, auditID, model.ScrapeJobTypeEngagement, result)
		return
	}

	job.Update(ctx, model.ProgressStatusProcessing, 50, "カウンターの変化を検出しています")

	now := time.Now()
	changed := 0
	for i, detail := range details {
		post, ok := byPostID[detail.PostID]
		if !ok {
			continue
		}

		fresh := model.EngagementCounters{
			Likes:    detail.NumLikes,
			Comments: detail.NumComments,
			Shares:   detail.NumShares,
		}
		flagged, err := s.deps.Engagement.Apply(ctx, post, fresh, now)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, TargetError{Target: detail.PostID, Message: err.Error()})
			continue
		}
		if flagged {
			changed++
		}

		// フラグ判定後にカウンターを最新値で上書きする
		if _, err := s.upsertPost(ctx, userID, detail); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, TargetError{Target: detail.PostID, Message: err.Error()})
			continue
		}
		result.Processed++
		job.Advance(ctx, i+1, 50, 95, "投稿を更新しています")
	}
	result.SavedItems = changed

	job.Complete(ctx, result)
	s.finish(ctx, auditID, model.ScrapeJobTypeEngagement, result)
}

// runEnrichment はエンリッチメント本体。
func (s *Service) runEnrichment(ctx context.Context, job *progress.Job, auditID, userID, apiKey string, profileIDs []string) {
	result := &BatchResult{}

	job.Update(ctx, model.ProgressStatusScraping, 20, "プロフィールをエンリッチしています")

	enriched, failedChunks := s.enrichByIDs(ctx, userID, apiKey, profileIDs)
	result.Processed = enriched
	result.Failed = failedChunks
	result.SavedItems = enriched

	job.Complete(ctx, result)
	s.finish(ctx, auditID, model.ScrapeJobTypeEnrichment, result)
}

// enrichByIDs はプロフィール群のエンリッチメントを実行し、
// 取得結果を各プロフィール行に反映する。戻り値は更新件数と失敗チャンク数。
func (s *Service) enrichByIDs(ctx context.Context, userID, apiKey string, profileIDs []string) (int, int) {
	profiles, err := s.deps.Profiles.ListByIDs(ctx, profileIDs)
	if err != nil {
		slog.Warn("エンリッチ対象プロフィールの取得に失敗しました", "error", err)
		return 0, 0
	}

	byIdentifier := make(map[string]*model.Profile)
	var identifiers []string
	for _, profile := range profiles {
		id := enrichmentIdentifier(profile)
		if id == "" {
			continue
		}
		if _, ok := byIdentifier[id]; !ok {
			identifiers = append(identifiers, id)
		}
		byIdentifier[id] = profile
	}
	if len(identifiers) == 0 {
		return 0, 0
	}

	items, failedChunks := s.deps.Collector.CollectEnrichment(ctx, apiKey, identifiers)

	now := time.Now()
	updated := 0
	for _, item := range items {
		profile, ok := byIdentifier[item.Identifier]
		if !ok {
			continue
		}
		applyEnrichment(profile, item, s.deps.Sanitizer)
		profile.LastEnriched = &now
		profile.LastUpdated = now

		if err := s.deps.Profiles.Update(ctx, profile); err != nil {
			slog.Warn("エンリッチ結果の保存に失敗しました", "profileID", profile.ID, "error", err)
			continue
		}
		updated++
	}
	s.deps.Metrics.RecordProfilesUpdated(updated)

	return updated, failedChunks
}

// applyEnrichment はエンリッチメント結果をプロフィールに反映する。
// 識別子は欠落フィールドのみバックフィルし、属性情報は常に最新値で上書きする。
func applyEnrichment(profile *model.Profile, item provider.EnrichedProfile, sanitizer security.TextSanitizerService) {
	if profile.URN == "" && item.URN != "" {
		profile.URN = item.URN
	}
	if profile.PublicIdentifier == "" && item.PublicIdentifier != "" {
		profile.PublicIdentifier = item.PublicIdentifier
	}
	if item.Name != "" {
		profile.Name = sanitizer.Sanitize(item.Name)
	}
	if item.FirstName != "" {
		profile.FirstName = sanitizer.Sanitize(item.FirstName)
	}
	if item.LastName != "" {
		profile.LastName = sanitizer.Sanitize(item.LastName)
	}
	if item.Headline != "" {
		profile.Headline = sanitizer.Sanitize(item.Headline)
	}
	if item.PictureURL != "" {
		profile.PictureURL = item.PictureURL
	}
	profile.Country = sanitizer.Sanitize(item.Country)
	profile.City = sanitizer.Sanitize(item.City)
	profile.CurrentTitle = sanitizer.Sanitize(item.CurrentTitle)
	profile.CurrentCompany = sanitizer.Sanitize(item.CurrentCompany)
	profile.CompanyLinkedInURL = item.CompanyLinkedInURL
}

// enrichmentIdentifier はエンリッチメントに使用する識別子を優先順で選ぶ。
func enrichmentIdentifier(profile *model.Profile) string {
	switch {
	case profile.URN != "":
		return profile.URN
	case profile.PrimaryIdentifier != "":
		return profile.PrimaryIdentifier
	case profile.PublicIdentifier != "":
		return profile.PublicIdentifier
	case profile.SecondaryIdentifier != "":
		return profile.SecondaryIdentifier
	}
	return ""
}

// upsertPost はプロバイダの投稿メタデータを投稿行としてUPSERTする。
func (s *Service) upsertPost(ctx context.Context, userID string, item provider.PostDetailItem) (string, error) {
	now := time.Now()
	post := &model.Post{
		ID:               uuid.NewString(),
		UserID:           userID,
		PostID:           item.PostID,
		URL:              item.URL,
		URN:              item.URN,
		AuthorName:       s.deps.Sanitizer.Sanitize(item.AuthorName),
		AuthorHeadline:   s.deps.Sanitizer.Sanitize(item.AuthorHeadline),
		AuthorProfileURL: item.AuthorProfileURL,
		Text:             s.deps.Sanitizer.Sanitize(item.Text),
		NumLikes:         item.NumLikes,
		NumComments:      item.NumComments,
		NumShares:        item.NumShares,
		PostedAt:         item.PostedAt,
		ScrapedAt:        &now,
	}
	return s.deps.Posts.Upsert(ctx, post)
}

// pageOf はアイテムのindexから取得ページ番号を算出する。
func pageOf(index, pageSize int) int {
	if pageSize <= 0 {
		return 1
	}
	return index/pageSize + 1
}

// postIDFromURL は投稿URLからLinkedInの投稿IDを取り出す。
// activity形式とugcPost形式の両方に対応し、特定できない場合は空文字列を返す。
func postIDFromURL(rawURL string) string {
	for _, marker := range []string{"activity:", "activity-", "ugcPost:", "ugcPost-"} {
		idx := strings.Index(rawURL, marker)
		if idx < 0 {
			continue
		}
		rest := rawURL[idx+len(marker):]
		end := 0
		for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
			end++
		}
		if end > 0 {
			return rest[:end]
		}
	}
	return ""
}

// validateLinkedInURL は入力URLがLinkedInのものかを検証する。
func validateLinkedInURL(rawURL string) error {
	if rawURL == "" {
		return model.NewInvalidURLError("URLが空です")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return model.NewInvalidURLError(err.Error())
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return model.NewInvalidURLError("httpまたはhttpsのURLを指定してください")
	}
	host := strings.ToLower(parsed.Hostname())
	if host != "linkedin.com" && !strings.HasSuffix(host, ".linkedin.com") {
		return model.NewInvalidURLError("LinkedInのURLではありません")
	}
	return nil
}
