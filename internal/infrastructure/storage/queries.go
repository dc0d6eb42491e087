package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"MedArticles/internal/domain"
)

// Stats summarizes the store contents.
type Stats struct {
	Articles     int            `json:"total_articles"`
	Classified   int            `json:"classified"`
	Relevant     int            `json:"relevant"`
	Hidden       int            `json:"hidden"`
	AverageScore float64        `json:"avg_ranking_score"`
	ByCategory   map[string]int `json:"by_category"`
}

var articleSelect = []string{
	"a.id", "a.pmid", "a.title", "a.abstract", "a.journal", "a.authors", "a.author_affiliations",
	"a.publication_date", "a.doi", "a.url", "a.keywords", "a.mesh_terms", "a.publication_type",
	"a.created_at", "a.updated_at",
	"c.article_id", "c.participants", "c.is_relevant", "c.reason", "c.medical_category",
	"c.clinical_bottom_line", "c.tags",
	"c.focus_points", "c.type_points", "c.prevalence_points", "c.hospitalization_points",
	"c.clinical_outcome_points", "c.impact_factor_points", "c.temporality_points",
	"c.prevention_penalty_points", "c.biologic_penalty_points", "c.screening_penalty_points",
	"c.scores_penalty_points", "c.subanalysis_penalty_points", "c.neurology_penalty_points",
	"c.classifier_version", "c.hidden_from_dashboard", "c.created_at", "c.updated_at",
}

// ListClassified returns classified articles joined with their records.
func (r *Repository) ListClassified(ctx context.Context, q domain.ListQuery) ([]domain.StoredArticle, error) {
	sel := r.builder.
		Select(articleSelect...).
		From("classifications c").
		Join("articles a ON a.id = c.article_id")

	if !q.IncludeHidden {
		sel = sel.Where(sq.Eq{"c.hidden_from_dashboard": false})
	}
	if q.RelevantOnly {
		sel = sel.Where(sq.Eq{"c.is_relevant": true})
	}
	if q.Category != "" {
		sel = sel.Where(sq.Eq{"c.medical_category": string(q.Category)})
	}

	switch q.SortBy {
	case domain.SortByDate:
		sel = sel.OrderBy("a.publication_date DESC", "a.id DESC")
	case domain.SortByTitle:
		sel = sel.OrderBy("a.title ASC")
	default:
		sel = sel.OrderBy("c.ranking_score DESC", "a.publication_date DESC", "a.id DESC")
	}
	if q.Limit > 0 {
		sel = sel.Limit(q.Limit)
	}

	query, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query classified: %w", err)
	}
	defer rows.Close()

	var out []domain.StoredArticle
	for rows.Next() {
		item, err := scanStored(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// FindByPMID returns one article and its record when classified.
func (r *Repository) FindByPMID(ctx context.Context, pmid string) (domain.StoredArticle, error) {
	query, args, err := r.builder.
		Select(articleSelect...).
		From("articles a").
		LeftJoin("classifications c ON c.article_id = a.id").
		Where(sq.Eq{"a.pmid": pmid}).
		ToSql()
	if err != nil {
		return domain.StoredArticle{}, fmt.Errorf("build find query: %w", err)
	}

	item, err := scanStored(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StoredArticle{}, ErrNotFound
	}
	return item, err
}

// SetHidden toggles the dashboard visibility of a classified article.
func (r *Repository) SetHidden(ctx context.Context, pmid string, hidden bool) error {
	query, args, err := r.builder.
		Update("classifications").
		Set("hidden_from_dashboard", hidden).
		Set("updated_at", sq.Expr("CURRENT_TIMESTAMP")).
		Where("article_id = (SELECT id FROM articles WHERE pmid = ?)", pmid).
		ToSql()
	if err != nil {
		return fmt.Errorf("build hide update: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update hidden flag: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Statistics aggregates totals and the per-category breakdown of relevant articles.
func (r *Repository) Statistics(ctx context.Context) (Stats, error) {
	stats := Stats{ByCategory: map[string]int{}}

	query, args, err := r.builder.Select("COUNT(*)").From("articles").ToSql()
	if err != nil {
		return stats, fmt.Errorf("build count query: %w", err)
	}
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&stats.Articles); err != nil {
		return stats, fmt.Errorf("count articles: %w", err)
	}

	query, args, err = r.builder.
		Select(
			"COUNT(*)",
			"COALESCE(SUM(CASE WHEN is_relevant THEN 1 ELSE 0 END), 0)",
			"COALESCE(SUM(CASE WHEN hidden_from_dashboard THEN 1 ELSE 0 END), 0)",
			"COALESCE(AVG(CASE WHEN is_relevant THEN ranking_score END), 0)",
		).
		From("classifications").
		ToSql()
	if err != nil {
		return stats, fmt.Errorf("build totals query: %w", err)
	}
	var avg sql.NullFloat64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&stats.Classified, &stats.Relevant, &stats.Hidden, &avg); err != nil {
		return stats, fmt.Errorf("read totals: %w", err)
	}
	stats.AverageScore = roundTo(avg.Float64, 2)

	query, args, err = r.builder.
		Select("medical_category", "COUNT(*)").
		From("classifications").
		Where(sq.Eq{"is_relevant": true}).
		GroupBy("medical_category").
		ToSql()
	if err != nil {
		return stats, fmt.Errorf("build category query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return stats, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			category string
			count    int
		)
		if err := rows.Scan(&category, &count); err != nil {
			return stats, fmt.Errorf("scan category: %w", err)
		}
		stats.ByCategory[category] = count
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("rows iteration: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStored(row rowScanner) (domain.StoredArticle, error) {
	var (
		item                    domain.StoredArticle
		created, updated        timestamp
		recCreated, recUpdated  timestamp
		articleID, participants sql.NullInt64
		relevant, hidden        sql.NullBool
		reason, category        sql.NullString
		bottom, tags, version   sql.NullString
		points                  [13]sql.NullInt64
	)
	a := &item.Article

	dest := []any{
		&item.ID, &a.PMID, &a.Title, &a.Abstract, &a.Journal, &a.Authors, &a.AuthorAffiliations,
		&a.PublicationDate, &a.DOI, &a.URL, &a.Keywords, &a.MeshTerms, &a.PublicationType,
		&created, &updated,
		&articleID, &participants, &relevant, &reason, &category, &bottom, &tags,
	}
	for i := range points {
		dest = append(dest, &points[i])
	}
	dest = append(dest, &version, &hidden, &recCreated, &recUpdated)

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return item, err
		}
		return item, fmt.Errorf("scan article: %w", err)
	}
	item.CreatedAt = created.Time
	item.UpdatedAt = updated.Time

	if !articleID.Valid {
		return item, nil
	}

	rec := &domain.ClassificationRecord{
		Decision: domain.FilterDecision{IsRelevant: relevant.Bool, Reason: reason.String},
		Classification: domain.Classification{
			Category:           domain.ParseCategory(category.String),
			ClinicalBottomLine: bottom.String,
			Tags:               decodeTags(tags.String),
			Breakdown: domain.ScoreBreakdown{
				Focus:              int(points[0].Int64),
				StudyType:          int(points[1].Int64),
				Prevalence:         int(points[2].Int64),
				Hospitalization:    int(points[3].Int64),
				ClinicalOutcome:    int(points[4].Int64),
				ImpactFactor:       int(points[5].Int64),
				Temporality:        int(points[6].Int64),
				PreventionPenalty:  int(points[7].Int64),
				BiologicPenalty:    int(points[8].Int64),
				ScreeningPenalty:   int(points[9].Int64),
				ScoresPenalty:      int(points[10].Int64),
				SubanalysisPenalty: int(points[11].Int64),
				NeurologyPenalty:   int(points[12].Int64),
			},
		},
		ClassifierVersion: version.String,
		Hidden:            hidden.Bool,
		CreatedAt:         recCreated.Time,
		UpdatedAt:         recUpdated.Time,
	}
	if participants.Valid {
		n := participants.Int64
		rec.Classification.Participants = &n
	}
	item.Record = rec
	return item, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(raw), nil
}

func decodeTags(raw string) []string {
	tags := []string{}
	if strings.TrimSpace(raw) == "" {
		return tags
	}
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return []string{}
	}
	return tags
}

// timestamp scans DATETIME and TIMESTAMPTZ columns from either driver.
type timestamp struct {
	Time  time.Time
	Valid bool
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.DateOnly,
}

func (t *timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t = timestamp{}
		return nil
	case time.Time:
		*t = timestamp{Time: v.UTC(), Valid: true}
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	}
	return fmt.Errorf("unsupported timestamp type %T", src)
}

func (t *timestamp) parse(value string) error {
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			*t = timestamp{Time: parsed.UTC(), Valid: true}
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", value)
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
