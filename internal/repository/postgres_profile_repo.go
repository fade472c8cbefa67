package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/engagemint/internal/model"
)

// profileColumns はプロフィールテーブルのSELECT対象カラム。
const profileColumns = `id, user_id, urn, primary_identifier, secondary_identifier,
	public_identifier, alternative_urns, profile_url, name, first_name, last_name,
	headline, picture_url, country, city, current_title, current_company,
	company_linkedin_url, last_enriched, first_seen, last_updated`

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// scanProfile は1行をmodel.Profileにスキャンする。
func scanProfile(row interface{ Scan(...interface{}) error }) (*model.Profile, error) {
	profile := &model.Profile{}
	var urn, primaryID, secondaryID, publicID, profileURL sql.NullString
	var name, firstName, lastName, headline, pictureURL sql.NullString
	var country, city, currentTitle, currentCompany, companyURL sql.NullString
	var lastEnriched sql.NullTime

	err := row.Scan(
		&profile.ID, &profile.UserID, &urn, &primaryID, &secondaryID,
		&publicID, pq.Array(&profile.AlternativeURNs), &profileURL,
		&name, &firstName, &lastName, &headline, &pictureURL,
		&country, &city, &currentTitle, &currentCompany, &companyURL,
		&lastEnriched, &profile.FirstSeen, &profile.LastUpdated,
	)
	if err != nil {
		return nil, err
	}

	profile.URN = nullStringValue(urn)
	profile.PrimaryIdentifier = nullStringValue(primaryID)
	profile.SecondaryIdentifier = nullStringValue(secondaryID)
	profile.PublicIdentifier = nullStringValue(publicID)
	profile.ProfileURL = nullStringValue(profileURL)
	profile.Name = nullStringValue(name)
	profile.FirstName = nullStringValue(firstName)
	profile.LastName = nullStringValue(lastName)
	profile.Headline = nullStringValue(headline)
	profile.PictureURL = nullStringValue(pictureURL)
	profile.Country = nullStringValue(country)
	profile.City = nullStringValue(city)
	profile.CurrentTitle = nullStringValue(currentTitle)
	profile.CurrentCompany = nullStringValue(currentCompany)
	profile.CompanyLinkedInURL = nullStringValue(companyURL)
	profile.LastEnriched = nullTimeValue(lastEnriched)

	return profile, nil
}

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)

	profile, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	return profile, nil
}

// FindByIdentifiers はサーバーサイド関数で多フィールドマッチングを行う。
// 見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByIdentifiers(ctx context.Context, userID, urn, primary, secondary, public, profileURL string) (*model.Profile, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM find_existing_profile_by_identifiers($1, $2, $3, $4, $5, $6)`,
		userID, urn, primary, secondary, public, profileURL)

	profile, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("識別子によるプロフィールの検索に失敗しました: %w", err)
	}
	return profile, nil
}

// Create はプロフィールを作成する。
func (r *PostgresProfileRepo) Create(ctx context.Context, profile *model.Profile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (id, user_id, urn, primary_identifier, secondary_identifier,
		                       public_identifier, alternative_urns, profile_url, name,
		                       first_name, last_name, headline, picture_url,
		                       country, city, current_title, current_company,
		                       company_linkedin_url, last_enriched, first_seen, last_updated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		         $14, $15, $16, $17, $18, $19, $20, $21)`,
		profile.ID, profile.UserID, nullString(profile.URN),
		nullString(profile.PrimaryIdentifier), nullString(profile.SecondaryIdentifier),
		nullString(profile.PublicIdentifier), pq.Array(profile.AlternativeURNs),
		nullString(profile.ProfileURL), nullString(profile.Name),
		nullString(profile.FirstName), nullString(profile.LastName),
		nullString(profile.Headline), nullString(profile.PictureURL),
		nullString(profile.Country), nullString(profile.City),
		nullString(profile.CurrentTitle), nullString(profile.CurrentCompany),
		nullString(profile.CompanyLinkedInURL), profile.LastEnriched,
		profile.FirstSeen, profile.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("プロフィールの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はプロフィールの表示フィールド・識別子・エンリッチメント情報を更新する。
func (r *PostgresProfileRepo) Update(ctx context.Context, profile *model.Profile) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET
		    urn = $2, primary_identifier = $3, secondary_identifier = $4,
		    public_identifier = $5, profile_url = $6, name = $7,
		    first_name = $8, last_name = $9, headline = $10, picture_url = $11,
		    country = $12, city = $13, current_title = $14, current_company = $15,
		    company_linkedin_url = $16, last_enriched = $17, last_updated = $18
		 WHERE id = $1`,
		profile.ID, nullString(profile.URN),
		nullString(profile.PrimaryIdentifier), nullString(profile.SecondaryIdentifier),
		nullString(profile.PublicIdentifier), nullString(profile.ProfileURL),
		nullString(profile.Name), nullString(profile.FirstName),
		nullString(profile.LastName), nullString(profile.Headline),
		nullString(profile.PictureURL), nullString(profile.Country),
		nullString(profile.City), nullString(profile.CurrentTitle),
		nullString(profile.CurrentCompany), nullString(profile.CompanyLinkedInURL),
		profile.LastEnriched, profile.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	return nil
}

// AppendAlternativeURN はサーバーサイド関数でalternative_urnsに重複なく追記する。
func (r *PostgresProfileRepo) AppendAlternativeURN(ctx context.Context, profileID, urn string) error {
	_, err := r.db.ExecContext(ctx,
		`SELECT add_alternative_urn($1, $2)`, profileID, urn)
	if err != nil {
		return fmt.Errorf("alternative_urnsへの追記に失敗しました: %w", err)
	}
	return nil
}

// ListByUser はユーザーのプロフィール一覧をlast_updated降順で返す。
// limitが0以下の場合は全件を返す。
func (r *PostgresProfileRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*model.Profile, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles
		 WHERE user_id = $1 ORDER BY last_updated DESC LIMIT NULLIF(GREATEST($2, 0), 0)`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("プロフィール一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectProfiles(rows)
}

// ListByIDs は指定IDのプロフィールを返す。
func (r *PostgresProfileRepo) ListByIDs(ctx context.Context, ids []string) ([]*model.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = ANY($1)`,
		pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("ID指定のプロフィール一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectProfiles(rows)
}

// SearchCandidates は名前または識別子の部分一致でマージ候補を検索する。
func (r *PostgresProfileRepo) SearchCandidates(ctx context.Context, userID, pattern string) ([]*model.Profile, error) {
	like := "%" + pattern + "%"
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles
		 WHERE user_id = $1
		   AND (name ILIKE $2 OR urn ILIKE $2 OR primary_identifier ILIKE $2
		        OR secondary_identifier ILIKE $2 OR public_identifier ILIKE $2)
		 ORDER BY first_seen ASC`,
		userID, like)
	if err != nil {
		return nil, fmt.Errorf("マージ候補の検索に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectProfiles(rows)
}

// collectProfiles はrowsを走査してmodel.Profileのスライスを構築する。
func collectProfiles(rows *sql.Rows) ([]*model.Profile, error) {
	var profiles []*model.Profile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("プロフィール行の読み取りに失敗しました: %w", err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("プロフィール一覧の走査に失敗しました: %w", err)
	}
	return profiles, nil
}

// Delete は指定IDのプロフィールを削除する。
func (r *PostgresProfileRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("プロフィールの削除に失敗しました: %w", err)
	}
	return nil
}

// DeleteInTx はトランザクション内で複数プロフィールを削除する。
func (r *PostgresProfileRepo) DeleteInTx(ctx context.Context, tx *sql.Tx, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM profiles WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("プロフィールの一括削除に失敗しました: %w", err)
	}
	return nil
}

// EngagementStats はプロフィールのエンゲージメント集計を返す。
func (r *PostgresProfileRepo) EngagementStats(ctx context.Context, profileID string) (*ProfileEngagementStats, error) {
	stats := &ProfileEngagementStats{}

	err := r.db.QueryRowContext(ctx,
		`SELECT
		    (SELECT count(*) FROM reactions WHERE reactor_profile_id = $1),
		    (SELECT count(*) FROM comments WHERE commenter_profile_id = $1),
		    (SELECT count(DISTINCT post_id) FROM (
		        SELECT post_id FROM reactions WHERE reactor_profile_id = $1
		        UNION
		        SELECT post_id FROM comments WHERE commenter_profile_id = $1
		    ) engaged)`,
		profileID,
	).Scan(&stats.TotalReactions, &stats.TotalComments, &stats.PostsEngagedWith)
	if err != nil {
		return nil, fmt.Errorf("エンゲージメント集計の取得に失敗しました: %w", err)
	}

	// 直近にエンゲージした投稿とリアクション種別
	var lastType, lastURL sql.NullString
	var lastAt sql.NullTime
	err = r.db.QueryRowContext(ctx,
		`SELECT r.reaction_type, p.url, p.posted_at
		 FROM reactions r
		 JOIN posts p ON p.id = r.post_id
		 WHERE r.reactor_profile_id = $1
		 ORDER BY r.scraped_at DESC
		 LIMIT 1`,
		profileID,
	).Scan(&lastType, &lastURL, &lastAt)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("直近エンゲージメントの取得に失敗しました: %w", err)
	}

	stats.LastReactionType = nullStringValue(lastType)
	stats.LastEngagedPostURL = nullStringValue(lastURL)
	stats.LastEngagedPostAt = nullTimeValue(lastAt)

	return stats, nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
